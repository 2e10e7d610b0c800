package mvt

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/MeKo-Tech/vectormap/internal/geometry"
	"github.com/MeKo-Tech/vectormap/internal/tile"
	"github.com/stretchr/testify/require"
)

// Wire-format encoding helpers for building test tiles byte by byte.

func varint(v uint64) []byte {
	var out []byte
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func bytesField(tag int, payload []byte) []byte {
	out := varint(uint64(tag<<3 | 2))
	out = append(out, varint(uint64(len(payload)))...)
	return append(out, payload...)
}

func varintField(tag int, v uint64) []byte {
	out := varint(uint64(tag << 3))
	return append(out, varint(v)...)
}

func stringValue(s string) []byte {
	return bytesField(1, []byte(s))
}

func intValue(v uint64) []byte {
	return varintField(5, v)
}

// cmd packs an MVT geometry command header.
func cmd(id, count int) []byte {
	return varint(uint64(count<<3 | id))
}

func geom(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func deltas(vals ...int64) []byte {
	var out []byte
	for _, v := range vals {
		out = append(out, varint(zigzag(v))...)
	}
	return out
}

type testFeature struct {
	typ  int
	geom []byte
	tags []uint64
}

type testLayer struct {
	name     string
	extent   uint64
	keys     []string
	values   [][]byte
	features []testFeature
}

func encodeTile(layers ...testLayer) []byte {
	var out []byte
	for _, l := range layers {
		var lb []byte
		lb = append(lb, bytesField(1, []byte(l.name))...)
		for _, f := range l.features {
			var fb []byte
			if len(f.tags) > 0 {
				var packed []byte
				for _, t := range f.tags {
					packed = append(packed, varint(t)...)
				}
				fb = append(fb, bytesField(2, packed)...)
			}
			fb = append(fb, varintField(3, uint64(f.typ))...)
			fb = append(fb, bytesField(4, f.geom)...)
			lb = append(lb, bytesField(2, fb)...)
		}
		for _, k := range l.keys {
			lb = append(lb, bytesField(3, []byte(k))...)
		}
		for _, v := range l.values {
			lb = append(lb, bytesField(4, v)...)
		}
		if l.extent != 0 {
			lb = append(lb, varintField(5, l.extent)...)
		}
		out = append(out, bytesField(3, lb)...)
	}
	return out
}

func TestParse_PolygonToMercator(t *testing.T) {
	// Square covering the middle quarter of tile 0/0/0: world mercator
	// coordinates [0.25,0.75]².
	square := geom(
		cmd(cmdMoveTo, 1), deltas(1024, 1024),
		cmd(cmdLineTo, 3), deltas(2048, 0, 0, 2048, -2048, 0),
		cmd(cmdClosePath, 1),
	)

	data := encodeTile(testLayer{
		name:     "water",
		extent:   4096,
		features: []testFeature{{typ: 3, geom: square}},
	})

	content, err := Parse(data, tile.New(0, 0, 0), Options{})
	require.NoError(t, err)
	require.Len(t, content.Features, 1)

	fs := content.Features[0]
	require.Equal(t, "water", fs.Layer)
	require.Equal(t, geometry.KindPolygon, fs.Kind)
	require.Len(t, fs.Indices, 6)

	for i := 0; i < len(fs.Vertices); i += 2 {
		require.GreaterOrEqual(t, fs.Vertices[i], 0.25)
		require.LessOrEqual(t, fs.Vertices[i], 0.75)
		require.GreaterOrEqual(t, fs.Vertices[i+1], 0.25)
		require.LessOrEqual(t, fs.Vertices[i+1], 0.75)
	}

	for _, idx := range fs.Indices {
		require.Less(t, int(idx), fs.VertexCount())
	}
}

func TestParse_CursorTrace(t *testing.T) {
	// MoveTo(+2,+2) LineTo(+2,0) LineTo(0,+2): cursor trace (2,2) (4,2)
	// (4,4) at extent 4 in tile 0/0/1 → mercator /8.
	trace := geom(
		cmd(cmdMoveTo, 1), deltas(2, 2),
		cmd(cmdLineTo, 2), deltas(2, 0, 0, 2),
	)

	data := encodeTile(testLayer{
		name:     "transportation",
		extent:   4,
		features: []testFeature{{typ: 2, geom: trace}},
	})

	content, err := Parse(data, tile.New(0, 0, 1), Options{})
	require.NoError(t, err)
	require.Len(t, content.Features, 1)

	fs := content.Features[0]
	require.Equal(t, geometry.KindLine, fs.Kind)
	require.Equal(t, []float64{
		(0 + 0.5) / 2, (0 + 0.5) / 2,
		(0 + 1.0) / 2, (0 + 0.5) / 2,
		(0 + 1.0) / 2, (0 + 1.0) / 2,
	}, fs.Vertices)
	require.Equal(t, []uint32{0, 1, 1, 2}, fs.Indices)
}

func TestParse_NegativeDeltas(t *testing.T) {
	// Deltas with negative zigzag values must move the cursor backwards.
	trace := geom(
		cmd(cmdMoveTo, 1), deltas(8, 8),
		cmd(cmdLineTo, 1), deltas(-4, -6),
	)

	data := encodeTile(testLayer{
		name:     "boundary",
		extent:   16,
		features: []testFeature{{typ: 2, geom: trace}},
	})

	content, err := Parse(data, tile.New(0, 0, 0), Options{})
	require.NoError(t, err)
	fs := content.Features[0]
	require.Equal(t, []float64{0.5, 0.5, 0.25, 0.125}, fs.Vertices)
}

func TestParse_Allowlist(t *testing.T) {
	point := geom(cmd(cmdMoveTo, 1), deltas(100, 100))

	data := encodeTile(
		testLayer{name: "water", extent: 4096, features: []testFeature{{typ: 1, geom: point}}},
		testLayer{name: "poi", extent: 4096, features: []testFeature{{typ: 1, geom: point}}},
	)

	content, err := Parse(data, tile.New(0, 0, 0), Options{
		Allowlist: map[string]bool{"water": true},
	})
	require.NoError(t, err)
	require.Len(t, content.Features, 1)
	require.Equal(t, "water", content.Features[0].Layer)
}

func TestParse_MultiPoint(t *testing.T) {
	multi := geom(cmd(cmdMoveTo, 2), deltas(100, 100, 50, 50))

	data := encodeTile(testLayer{
		name:     "poi",
		extent:   4096,
		features: []testFeature{{typ: 1, geom: multi}},
	})

	content, err := Parse(data, tile.New(0, 0, 0), Options{})
	require.NoError(t, err)
	require.Len(t, content.Features, 1)
	require.Equal(t, 2, content.Features[0].VertexCount())
}

func TestParse_Labels(t *testing.T) {
	point := geom(cmd(cmdMoveTo, 1), deltas(2048, 2048))

	data := encodeTile(testLayer{
		name:   "place",
		extent: 4096,
		keys:   []string{"name", "rank"},
		values: [][]byte{stringValue("Hannover"), intValue(3)},
		features: []testFeature{
			{typ: 1, geom: point, tags: []uint64{0, 0, 1, 1}},
		},
	})

	content, err := Parse(data, tile.New(0, 0, 0), Options{
		LabelLayers: map[string]float64{"place": 100},
	})
	require.NoError(t, err)
	require.Len(t, content.Labels, 1)

	lbl := content.Labels[0]
	require.Equal(t, "Hannover", lbl.Text)
	require.Equal(t, "place", lbl.Layer)
	require.InDelta(t, 0.5, lbl.X, 1e-12)
	require.InDelta(t, 0.5, lbl.Y, 1e-12)
	require.InDelta(t, 97.0, lbl.Priority, 1e-12) // base 100 - rank 3
}

func TestParse_LabelRequiresText(t *testing.T) {
	point := geom(cmd(cmdMoveTo, 1), deltas(10, 10))

	data := encodeTile(testLayer{
		name:     "place",
		extent:   4096,
		features: []testFeature{{typ: 1, geom: point}},
	})

	content, err := Parse(data, tile.New(0, 0, 0), Options{
		LabelLayers: map[string]float64{"place": 100},
	})
	require.NoError(t, err)
	require.Empty(t, content.Labels)
}

func TestParse_Gzip(t *testing.T) {
	point := geom(cmd(cmdMoveTo, 1), deltas(100, 100))
	raw := encodeTile(testLayer{
		name:     "water",
		extent:   4096,
		features: []testFeature{{typ: 1, geom: point}},
	})

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	content, err := Parse(buf.Bytes(), tile.New(0, 0, 0), Options{})
	require.NoError(t, err)
	require.Len(t, content.Features, 1)
}

func TestParse_TruncatedGeometry(t *testing.T) {
	// LineTo promises two points but delivers one and a half.
	truncated := geom(
		cmd(cmdMoveTo, 1), deltas(2, 3),
		cmd(cmdLineTo, 2), deltas(2, 3, 4),
	)

	data := encodeTile(testLayer{
		name:     "water",
		extent:   4096,
		features: []testFeature{{typ: 2, geom: truncated}},
	})

	_, err := Parse(data, tile.New(0, 0, 0), Options{})
	require.Error(t, err)
}

func TestParse_EmptyPayload(t *testing.T) {
	content, err := Parse(nil, tile.New(0, 0, 0), Options{})
	require.NoError(t, err)
	require.Empty(t, content.Features)
	require.Empty(t, content.Labels)
}

func TestParse_GarbagePayload(t *testing.T) {
	_, err := Parse([]byte{0x99, 0xff, 0x12, 0x00, 0x01}, tile.New(0, 0, 0), Options{})
	require.Error(t, err)
}
