package render

// GlobalLayerOrder is the bottom-to-top paint order of known layers.
// Layers absent from this list draw after it, in first-seen order.
var GlobalLayerOrder = []string{
	"background",
	"landcover",
	"park",
	"landuse",
	"water",
	"boundary",
	"transportation",
	"building",
	"housenumber",
	"label",
}

// DefaultColors is the built-in fill palette, overridable per layer via
// the map options.
var DefaultColors = map[string]Color{
	"background":     {0.95, 0.94, 0.91, 1.0},
	"landcover":      {0.85, 0.90, 0.80, 1.0},
	"park":           {0.78, 0.89, 0.78, 1.0},
	"landuse":        {0.90, 0.89, 0.85, 1.0},
	"water":          {0.65, 0.80, 0.92, 1.0},
	"boundary":       {0.60, 0.55, 0.60, 1.0},
	"transportation": {0.98, 0.97, 0.95, 1.0},
	"building":       {0.84, 0.81, 0.78, 1.0},
	"housenumber":    {0.45, 0.42, 0.40, 1.0},
	"label":          {0.20, 0.20, 0.25, 1.0},
}

var layerRank = func() map[string]int {
	m := make(map[string]int, len(GlobalLayerOrder))
	for i, name := range GlobalLayerOrder {
		m[name] = i
	}
	return m
}()

// orderLayers returns the draw order for the layer names present this
// frame: known layers by GlobalLayerOrder rank, unknown layers after
// them in the order they were first seen.
func orderLayers(present []string) []string {
	var known, unknown []string
	seen := make(map[string]bool, len(present))
	for _, name := range present {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := layerRank[name]; ok {
			known = append(known, name)
		} else {
			unknown = append(unknown, name)
		}
	}

	// Insertion sort by rank keeps this allocation-free for the handful
	// of layers a style carries.
	for i := 1; i < len(known); i++ {
		for j := i; j > 0 && layerRank[known[j]] < layerRank[known[j-1]]; j-- {
			known[j], known[j-1] = known[j-1], known[j]
		}
	}

	return append(known, unknown...)
}
