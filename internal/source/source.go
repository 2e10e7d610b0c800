// Package source provides tile payload sources: a remote HTTP vector
// tile server and a local MBTiles database.
package source

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// ErrNotFound reports a tile that does not exist at the source. The
// store turns it into an empty Ready tile rather than a failure.
var ErrNotFound = errors.New("source: tile not found")

// TileSource delivers raw MVT payloads for tile coordinates. Payloads
// may still be gzipped; the parser sniffs for that. Implementations must
// be safe for concurrent use by the fetch workers.
type TileSource interface {
	// Fetch returns the raw payload for the tile, ErrNotFound when the
	// source has no such tile, or another error on failure.
	Fetch(ctx context.Context, coord tile.Coords) ([]byte, error)
	// MaxZoom returns the finest zoom level the source carries, or a
	// negative value when unknown.
	MaxZoom() int
	// Close releases underlying resources.
	Close() error
}
