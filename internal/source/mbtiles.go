package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// MBTilesSource reads vector tiles from a local MBTiles database. It is
// the offline counterpart of HTTPSource; payloads come back still
// gzipped when the file stores them that way, which is fine because the
// parser sniffs for the magic bytes.
type MBTilesSource struct {
	db      *sql.DB
	path    string
	maxZoom int
	minZoom int
}

// OpenMBTiles opens an MBTiles file read-only.
func OpenMBTiles(path string) (*MBTilesSource, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tiles'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database does not contain tiles table")
	}

	s := &MBTilesSource{db: db, path: path, maxZoom: -1, minZoom: -1}
	s.readZoomRange()
	return s, nil
}

// readZoomRange pulls minzoom/maxzoom from the metadata table; missing
// or unparsable entries leave the range unknown.
func (s *MBTilesSource) readZoomRange() {
	rows, err := s.db.Query("SELECT name, value FROM metadata WHERE name IN ('minzoom','maxzoom')")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if rows.Scan(&name, &value) != nil {
			continue
		}
		if z, err := strconv.Atoi(value); err == nil {
			switch name {
			case "minzoom":
				s.minZoom = z
			case "maxzoom":
				s.maxZoom = z
			}
		}
	}
}

// Fetch implements TileSource. Coordinates are XYZ and flipped to the
// TMS rows MBTiles stores.
func (s *MBTilesSource) Fetch(ctx context.Context, coord tile.Coords) ([]byte, error) {
	tmsY := (1 << uint(coord.Z)) - 1 - coord.Y

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		coord.Z, coord.X, tmsY,
	).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile %s: %w", coord, err)
	}
	return data, nil
}

// MaxZoom implements TileSource.
func (s *MBTilesSource) MaxZoom() int { return s.maxZoom }

// MinZoom returns the coarsest stored zoom, or negative when unknown.
func (s *MBTilesSource) MinZoom() int { return s.minZoom }

// Close implements TileSource.
func (s *MBTilesSource) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
