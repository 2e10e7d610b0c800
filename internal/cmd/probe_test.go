package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vectormap/internal/tile"
)

func TestParseTileArg(t *testing.T) {
	tests := []struct {
		in      string
		want    tile.Coords
		wantErr bool
	}{
		{"13/4317/2692", tile.New(4317, 2692, 13), false},
		{"0/0/0", tile.New(0, 0, 0), false},
		{"13/4317", tile.Coords{}, true},
		{"a/b/c", tile.Coords{}, true},
		{"2/9/0", tile.Coords{}, true}, // x out of range at z=2
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTileArg(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
