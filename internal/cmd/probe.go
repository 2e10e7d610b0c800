package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/vectormap/internal/engine"
	"github.com/MeKo-Tech/vectormap/internal/mvt"
	"github.com/MeKo-Tech/vectormap/internal/render"
	"github.com/MeKo-Tech/vectormap/internal/source"
	"github.com/MeKo-Tech/vectormap/internal/tile"
)

var probeCmd = &cobra.Command{
	Use:   "probe z/x/y",
	Short: "Fetch and decode a single tile, printing per-layer statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Duration("timeout", 30*time.Second, "Fetch timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	coord, err := parseTileArg(args[0])
	if err != nil {
		return err
	}

	src, err := openProbeSource()
	if err != nil {
		return err
	}
	defer src.Close()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	start := time.Now()
	data, err := src.Fetch(ctx, coord)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", coord, err)
	}

	allow := make(map[string]bool)
	for _, name := range render.GlobalLayerOrder {
		allow[name] = true
	}
	for name := range engine.DefaultLabelLayers {
		allow[name] = true
	}

	content, err := mvt.Parse(data, coord, mvt.Options{
		Allowlist:   allow,
		LabelLayers: engine.DefaultLabelLayers,
	})
	if err != nil {
		return fmt.Errorf("decoding %s: %w", coord, err)
	}

	fmt.Printf("tile %s: %d bytes, %d feature sets, %d labels (%.0f ms)\n",
		coord, len(data), len(content.Features), len(content.Labels),
		float64(time.Since(start).Milliseconds()))
	for _, fs := range content.Features {
		fmt.Printf("  %-16s %-8s %6d vertices %6d indices\n",
			fs.Layer, fs.Kind, fs.VertexCount(), len(fs.Indices))
	}
	return nil
}

func parseTileArg(s string) (tile.Coords, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return tile.Coords{}, fmt.Errorf("tile must be z/x/y, got %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return tile.Coords{}, fmt.Errorf("tile must be z/x/y, got %q", s)
		}
		nums[i] = n
	}
	c := tile.New(nums[1], nums[2], nums[0])
	if !c.Valid() {
		return tile.Coords{}, fmt.Errorf("tile %s out of range", c)
	}
	return c, nil
}

func openProbeSource() (source.TileSource, error) {
	if path := viper.GetString("mbtiles"); path != "" {
		return source.OpenMBTiles(path)
	}
	if url := viper.GetString("tile-url"); url != "" {
		return source.NewHTTPSource(source.HTTPConfig{URLTemplate: url})
	}
	return nil, fmt.Errorf("no tile source configured (set --tile-url or --mbtiles)")
}
