package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/vectormap/internal/tile"
)

const defaultUserAgent = "vectormap/1.0"

// HTTPConfig configures an HTTP tile source.
type HTTPConfig struct {
	// URLTemplate is the tile endpoint with {z}, {x} and {y} placeholders,
	// e.g. "https://host/data/v3/{z}/{x}/{y}.pbf".
	URLTemplate string
	// Timeout bounds a single fetch (default: 30s).
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// MaxZoom is the finest zoom the server carries (default: 14).
	MaxZoom int
	// Logger for fetch diagnostics.
	Logger *slog.Logger
}

// HTTPSource fetches tiles from a remote tile server.
type HTTPSource struct {
	client    *http.Client
	template  string
	userAgent string
	maxZoom   int
	log       *slog.Logger
}

// NewHTTPSource creates an HTTP tile source from the config.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if !strings.Contains(cfg.URLTemplate, "{z}") ||
		!strings.Contains(cfg.URLTemplate, "{x}") ||
		!strings.Contains(cfg.URLTemplate, "{y}") {
		return nil, fmt.Errorf("url template %q must contain {z}, {x} and {y}", cfg.URLTemplate)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxZoom == 0 {
		cfg.MaxZoom = 14
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &HTTPSource{
		client:    &http.Client{Timeout: cfg.Timeout},
		template:  cfg.URLTemplate,
		userAgent: cfg.UserAgent,
		maxZoom:   cfg.MaxZoom,
		log:       cfg.Logger,
	}, nil
}

// Fetch implements TileSource. 404 and 410 responses map to ErrNotFound;
// other non-2xx statuses are errors.
func (s *HTTPSource) Fetch(ctx context.Context, coord tile.Coords) ([]byte, error) {
	url := s.URL(coord)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", coord, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching tile %s: %w", coord, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetching tile %s: unexpected status %d", coord, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading tile %s: %w", coord, err)
	}

	s.log.Debug("tile fetched",
		"tile", coord.Key(),
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// URL expands the template for a tile coordinate.
func (s *HTTPSource) URL(coord tile.Coords) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(coord.Z),
		"{x}", strconv.Itoa(coord.X),
		"{y}", strconv.Itoa(coord.Y),
	)
	return r.Replace(s.template)
}

// MaxZoom implements TileSource.
func (s *HTTPSource) MaxZoom() int { return s.maxZoom }

// Close implements TileSource.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
