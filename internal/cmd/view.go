package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/vectormap/internal/engine"
	"github.com/MeKo-Tech/vectormap/internal/glhost"
	"github.com/MeKo-Tech/vectormap/internal/render"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Open an interactive map window",
	RunE:  runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().Int("width", 1280, "Window width in pixels")
	viewCmd.Flags().Int("height", 800, "Window height in pixels")
	viewCmd.Flags().Float64("lng", 9.7320, "Initial center longitude")
	viewCmd.Flags().Float64("lat", 52.3759, "Initial center latitude")
	viewCmd.Flags().Float64("zoom", 12, "Initial zoom level")
	viewCmd.Flags().Float64("min-zoom", 0, "Minimum zoom level")
	viewCmd.Flags().Float64("max-zoom", 18, "Maximum zoom level")
	viewCmd.Flags().Int("max-tile-zoom", 14, "Finest tile zoom the source carries")
	viewCmd.Flags().Int("tile-buffer", 1, "Extra ring of tiles planned around the viewport")
	viewCmd.Flags().Int("fetch-workers", runtime.NumCPU(), "Concurrent tile fetch workers")
	viewCmd.Flags().StringSlice("disable-layers", nil, "Layers to hide at startup")
}

func runView(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	width, _ := flags.GetInt("width")
	height, _ := flags.GetInt("height")

	win, err := glhost.NewWindow(glhost.WindowConfig{
		Title:  "vectormap",
		Width:  width,
		Height: height,
	})
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	defer win.Close()

	lng, _ := flags.GetFloat64("lng")
	lat, _ := flags.GetFloat64("lat")
	zoom, _ := flags.GetFloat64("zoom")
	minZoom, _ := flags.GetFloat64("min-zoom")
	maxZoom, _ := flags.GetFloat64("max-zoom")
	maxTileZoom, _ := flags.GetInt("max-tile-zoom")
	tileBuffer, _ := flags.GetInt("tile-buffer")
	workers, _ := flags.GetInt("fetch-workers")
	disabled, _ := flags.GetStringSlice("disable-layers")

	m, err := engine.New(win.Device(), engine.Options{
		ViewportW: width,
		ViewportH: height,
		CenterLng: lng,
		CenterLat: lat,
		Zoom:      zoom,
		MinZoom:   minZoom,
		MaxZoom:   maxZoom,

		TileURL:     viper.GetString("tile-url"),
		MBTilesPath: viper.GetString("mbtiles"),
		MaxTileZoom: maxTileZoom,
		TileBuffer:  tileBuffer,
		Workers:     workers,

		LayerColors:    configLayerColors(),
		DisabledLayers: disabled,

		RequestRedraw: win.RequestRedraw,
	})
	if err != nil {
		return fmt.Errorf("creating map: %w", err)
	}
	defer m.Close()

	slog.Info("map ready",
		"center_lng", lng, "center_lat", lat, "zoom", zoom,
		"source_url", viper.GetString("tile-url"),
		"mbtiles", viper.GetString("mbtiles"),
	)

	win.Run(m)
	return nil
}

// configLayerColors reads the layer_colors section of the config file:
// a map of layer name to [r, g, b, a] components in [0,1].
func configLayerColors() map[string]render.Color {
	raw := viper.GetStringMap("layer_colors")
	if len(raw) == 0 {
		return nil
	}

	colors := make(map[string]render.Color, len(raw))
	for name, value := range raw {
		parts, ok := value.([]any)
		if !ok || len(parts) != 4 {
			slog.Warn("ignoring malformed layer color", "layer", name)
			continue
		}
		var c render.Color
		valid := true
		for i, part := range parts {
			f, ok := toFloat(part)
			if !ok {
				valid = false
				break
			}
			c[i] = float32(f)
		}
		if !valid {
			slog.Warn("ignoring malformed layer color", "layer", name)
			continue
		}
		colors[name] = c
	}
	return colors
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
