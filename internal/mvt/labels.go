package mvt

import (
	"github.com/MeKo-Tech/vectormap/internal/geometry"
	"github.com/MeKo-Tech/vectormap/internal/pbf"
)

// Label is a text placement candidate extracted from a point feature.
// Labels live and die with their owning tile.
type Label struct {
	Text     string
	X, Y     float64 // global mercator
	Layer    string
	Priority float64
}

// extractLabel turns a point feature in a label layer into a Label at
// the feature's first vertex. The text comes from the name tag (falling
// back to housenumber and ref); a numeric rank tag lowers the layer's
// base priority so that rank 1 places before rank 10.
func (p *parser) extractLabel(l *layer, tags []uint64, rings [][]geometry.Point) {
	base, ok := p.opts.LabelLayers[l.name]
	if !ok {
		return
	}
	if len(rings) == 0 || len(rings[0]) == 0 {
		return
	}

	var name, fallback string
	priority := base

	for i := 0; i+1 < len(tags); i += 2 {
		ki, vi := tags[i], tags[i+1]
		if ki >= uint64(len(l.keys)) || vi >= uint64(len(l.values)) {
			continue
		}
		switch l.keys[ki] {
		case "name":
			if name == "" {
				if s, ok := decodeStringValue(l.values[vi]); ok {
					name = s
				}
			}
		case "housenumber", "ref":
			if fallback == "" {
				if s, ok := decodeStringValue(l.values[vi]); ok {
					fallback = s
				}
			}
		case "rank":
			if rank, ok := decodeNumericValue(l.values[vi]); ok {
				priority = base - rank
			}
		}
	}

	text := name
	if text == "" {
		text = fallback
	}
	if text == "" {
		return
	}

	pos := rings[0][0]
	p.content.Labels = append(p.content.Labels, Label{
		Text:     text,
		X:        pos.X,
		Y:        pos.Y,
		Layer:    l.name,
		Priority: priority,
	})
}

// MVT Value is a oneof; only the variants labels care about are decoded.
func decodeStringValue(data []byte) (string, bool) {
	r := pbf.NewReader(data)
	for r.Next() {
		if r.Tag() == 1 && r.Wire() == pbf.WireBytes {
			s, err := r.ReadString()
			return s, err == nil
		}
		if r.Skip() != nil {
			return "", false
		}
	}
	return "", false
}

func decodeNumericValue(data []byte) (float64, bool) {
	r := pbf.NewReader(data)
	for r.Next() {
		switch r.Tag() {
		case 2: // float
			v, err := r.ReadFloat()
			return float64(v), err == nil
		case 3: // double
			v, err := r.ReadDouble()
			return v, err == nil
		case 4, 5: // int64, uint64
			v, err := r.ReadVarint()
			return float64(v), err == nil
		case 6: // sint64
			v, err := r.ReadZigzag()
			return float64(v), err == nil
		default:
			if r.Skip() != nil {
				return 0, false
			}
		}
	}
	return 0, false
}
