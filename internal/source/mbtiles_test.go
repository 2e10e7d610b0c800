package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// writeTestMBTiles creates a minimal MBTiles file with one tile at
// XYZ 13/4317/2692 and metadata.
func writeTestMBTiles(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mbtiles")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
	`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO metadata (name, value) VALUES ('minzoom','0'), ('maxzoom','13')`)
	require.NoError(t, err)

	// XYZ y=2692 at z=13 is TMS row 2^13-1-2692 = 5499.
	_, err = db.Exec(
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (13, 4317, 5499, ?)`,
		[]byte{0x1a, 0x00},
	)
	require.NoError(t, err)

	return path
}

func TestMBTilesSource(t *testing.T) {
	path := writeTestMBTiles(t)

	s, err := OpenMBTiles(path)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 13, s.MaxZoom())
	require.Equal(t, 0, s.MinZoom())

	data, err := s.Fetch(context.Background(), tile.New(4317, 2692, 13))
	require.NoError(t, err)
	require.Equal(t, []byte{0x1a, 0x00}, data)

	_, err = s.Fetch(context.Background(), tile.New(0, 0, 13))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenMBTiles_MissingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mbtiles")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE notatiles (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenMBTiles(path)
	require.Error(t, err)
}
