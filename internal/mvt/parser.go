// Package mvt decodes Mapbox Vector Tile payloads into renderable
// feature sets and label candidates, transforming tile-local integer
// coordinates straight into global unit-square mercator.
package mvt

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/vectormap/internal/geometry"
	"github.com/MeKo-Tech/vectormap/internal/pbf"
	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// MVT geometry command ids.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// defaultExtent is the MVT layer extent used when the layer omits one.
const defaultExtent = 4096

// Options configures the parser.
type Options struct {
	// Allowlist restricts decoding to the named layers. A nil map keeps
	// every layer; features of layers outside the set are skipped without
	// being parsed.
	Allowlist map[string]bool
	// LabelLayers maps layer names that produce labels to their base
	// priority.
	LabelLayers map[string]float64
	// Logger for decode diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Content is everything decoded from one tile payload.
type Content struct {
	Features []geometry.FeatureSet
	Labels   []Label
}

// Parse decodes a raw (optionally gzipped) MVT payload for the given
// tile. A malformed payload aborts the whole tile; the caller marks it
// Failed. Individual degenerate features are skipped silently.
func Parse(data []byte, coord tile.Coords, opts Options) (*Content, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if isGzip(data) {
		var err error
		data, err = gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing tile %s: %w", coord, err)
		}
	}

	p := &parser{
		coord:   coord,
		scale:   math.Exp2(float64(coord.Z)),
		opts:    opts,
		log:     log,
		tess:    geometry.NewTessellator(nil),
		sets:    make(map[setKey]*geometry.FeatureSet),
		content: &Content{},
	}

	r := pbf.NewReader(data)
	for r.Next() {
		if r.Tag() == 3 && r.Wire() == pbf.WireBytes {
			layerData, err := r.ReadBytes()
			if err != nil {
				return nil, fmt.Errorf("reading layer of tile %s: %w", coord, err)
			}
			if err := p.parseLayer(layerData); err != nil {
				return nil, fmt.Errorf("parsing layer of tile %s: %w", coord, err)
			}
			continue
		}
		if err := r.Skip(); err != nil {
			return nil, fmt.Errorf("skipping field of tile %s: %w", coord, err)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("tile %s: %w", coord, err)
	}

	p.finish()
	return p.content, nil
}

type setKey struct {
	layer string
	kind  geometry.Kind
}

type parser struct {
	coord tile.Coords
	scale float64
	opts  Options
	log   *slog.Logger
	tess  *geometry.Tessellator

	sets    map[setKey]*geometry.FeatureSet
	order   []setKey
	content *Content
}

// layer holds the lazily collected pieces of one MVT layer.
type layer struct {
	name     string
	extent   uint64
	keys     []string
	values   [][]byte
	features [][]byte
}

func (p *parser) parseLayer(data []byte) error {
	var l layer
	l.extent = defaultExtent

	r := pbf.NewReader(data)
	for r.Next() {
		var err error
		switch {
		case r.Tag() == 1 && r.Wire() == pbf.WireBytes: // name
			l.name, err = r.ReadString()
		case r.Tag() == 2 && r.Wire() == pbf.WireBytes: // feature
			var b []byte
			if b, err = r.ReadBytes(); err == nil {
				l.features = append(l.features, b)
			}
		case r.Tag() == 3 && r.Wire() == pbf.WireBytes: // key
			var k string
			if k, err = r.ReadString(); err == nil {
				l.keys = append(l.keys, k)
			}
		case r.Tag() == 4 && r.Wire() == pbf.WireBytes: // value
			var b []byte
			if b, err = r.ReadBytes(); err == nil {
				l.values = append(l.values, b)
			}
		case r.Tag() == 5 && r.Wire() == pbf.WireVarint: // extent
			l.extent, err = r.ReadVarint()
		default:
			err = r.Skip()
		}
		if err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return err
	}

	if p.opts.Allowlist != nil && !p.opts.Allowlist[l.name] {
		return nil // features stay unparsed
	}
	if l.extent == 0 {
		l.extent = defaultExtent
	}

	for _, f := range l.features {
		if err := p.parseFeature(&l, f); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseFeature(l *layer, data []byte) error {
	var geomData []byte
	var tags []uint64
	kind := geometry.Kind(0)

	r := pbf.NewReader(data)
	for r.Next() {
		var err error
		switch {
		case r.Tag() == 2 && r.Wire() == pbf.WireBytes: // packed tags
			var packed []byte
			if packed, err = r.ReadBytes(); err == nil {
				tags, err = readPacked(packed)
			}
		case r.Tag() == 3 && r.Wire() == pbf.WireVarint: // type
			var v uint64
			if v, err = r.ReadVarint(); err == nil {
				kind = geometry.Kind(v)
			}
		case r.Tag() == 4 && r.Wire() == pbf.WireBytes: // geometry
			geomData, err = r.ReadBytes()
		default:
			err = r.Skip()
		}
		if err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return err
	}

	if kind < geometry.KindPoint || kind > geometry.KindPolygon || len(geomData) == 0 {
		p.log.Debug("skipping feature", "layer", l.name, "type", int(kind))
		return nil
	}

	rings, err := p.decodeGeometry(geomData, float64(l.extent))
	if err != nil {
		return err
	}
	if len(rings) == 0 {
		return nil
	}

	fs := p.set(l.name, kind)
	switch kind {
	case geometry.KindPolygon:
		geometry.BuildPolygon(fs, p.tess, rings)
	case geometry.KindLine:
		for _, ring := range rings {
			geometry.BuildLine(fs, ring)
		}
	case geometry.KindPoint:
		for _, ring := range rings {
			geometry.BuildPoints(fs, ring)
		}
		p.extractLabel(l, tags, rings)
	}
	return nil
}

// decodeGeometry walks the MVT command stream, accumulating the cursor
// and emitting one ring per MoveTo. Coordinates are normalized by the
// layer extent and shifted into global mercator.
func (p *parser) decodeGeometry(data []byte, extent float64) ([][]geometry.Point, error) {
	r := pbf.NewReader(data)

	var rings [][]geometry.Point
	var ring []geometry.Point
	var cx, cy int64

	toMercator := func() geometry.Point {
		u := float64(cx) / extent
		v := float64(cy) / extent
		return geometry.Point{
			X: (float64(p.coord.X) + u) / p.scale,
			Y: (float64(p.coord.Y) + v) / p.scale,
		}
	}

	for !r.EOF() {
		cmd, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}

		id := cmd & 0x7
		count := cmd >> 3

		switch id {
		case cmdMoveTo:
			for i := uint64(0); i < count; i++ {
				dx, err := r.ReadZigzag()
				if err != nil {
					return nil, err
				}
				dy, err := r.ReadZigzag()
				if err != nil {
					return nil, err
				}
				cx += dx
				cy += dy
				if len(ring) > 0 {
					rings = append(rings, ring)
				}
				ring = []geometry.Point{toMercator()}
			}
		case cmdLineTo:
			for i := uint64(0); i < count; i++ {
				dx, err := r.ReadZigzag()
				if err != nil {
					return nil, err
				}
				dy, err := r.ReadZigzag()
				if err != nil {
					return nil, err
				}
				cx += dx
				cy += dy
				ring = append(ring, toMercator())
			}
		case cmdClosePath:
			for i := uint64(0); i < count; i++ {
				if len(ring) > 0 {
					ring = append(ring, ring[0])
				}
			}
		default:
			return nil, fmt.Errorf("geometry command %d: %w", id, pbf.ErrMalformed)
		}
	}

	if len(ring) > 0 {
		rings = append(rings, ring)
	}
	return rings, nil
}

func (p *parser) set(name string, kind geometry.Kind) *geometry.FeatureSet {
	key := setKey{layer: name, kind: kind}
	if fs, ok := p.sets[key]; ok {
		return fs
	}
	fs := &geometry.FeatureSet{Layer: name, Kind: kind}
	p.sets[key] = fs
	p.order = append(p.order, key)
	return fs
}

func (p *parser) finish() {
	for _, key := range p.order {
		fs := p.sets[key]
		if !fs.Empty() {
			p.content.Features = append(p.content.Features, *fs)
		}
	}
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// readPacked decodes a packed varint field.
func readPacked(data []byte) ([]uint64, error) {
	r := pbf.NewReader(data)
	var out []uint64
	for !r.EOF() {
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
