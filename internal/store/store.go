// Package store owns the tile cache and its asynchronous fill pipeline:
// viewport-driven fetch planning, parallel fetch+decode workers, ancestor
// fallback selection and age-based eviction.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/vectormap/internal/geometry"
	"github.com/MeKo-Tech/vectormap/internal/mvt"
	"github.com/MeKo-Tech/vectormap/internal/source"
	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// State is the lifecycle state of a cache entry.
type State int

const (
	// Loading means a fetch has been dispatched and not yet committed.
	Loading State = iota
	// Ready means the tile decoded successfully (possibly to nothing).
	Ready
	// Failed means the payload could not be decoded.
	Failed
)

// Tile is one cache entry. Features and Labels are immutable once the
// state is Ready; renderers hold them only for the duration of a frame.
type Tile struct {
	Coord    tile.Coords
	State    State
	Features []geometry.FeatureSet
	Labels   []mvt.Label
	LoadedAt time.Time
}

// Status is a point-in-time snapshot of the fetch pipeline.
type Status struct {
	ActiveFetches  int      `json:"active_fetches"`
	QueuedFetches  int      `json:"queued_fetches"`
	TotalCompleted int64    `json:"total_completed"`
	TotalFailed    int64    `json:"total_failed"`
	TotalBytes     int64    `json:"total_bytes"`
	CurrentTiles   []string `json:"current_tiles"`
}

// Config configures a Store.
type Config struct {
	// Source delivers raw tile payloads.
	Source source.TileSource
	// ParseOpts are handed to the MVT parser for every tile.
	ParseOpts mvt.Options
	// Workers is the number of concurrent fetch workers (default: 4).
	Workers int
	// QueueSize is the fetch queue capacity (default: 256).
	QueueSize int
	// TileBuffer widens the planned viewport span by this many tiles on
	// every side (default: 1).
	TileBuffer int
	// MaxTileZoom caps planning; defaults to the source's MaxZoom, or 14.
	MaxTileZoom int
	// TTL is the age beyond which off-screen Ready tiles are pruned
	// (default: 300s).
	TTL time.Duration
	// OnTileReady is invoked (from a worker goroutine) after a tile
	// commits, so the host can request a redraw.
	OnTileReady func(tile.Coords)
	// Now returns the current time; replaced in tests.
	Now func() time.Time
	// Logger for pipeline diagnostics.
	Logger *slog.Logger
}

// Store is the process-wide tile cache. A single mutex serializes all
// map access; workers commit results under it and the render thread
// snapshots handles once per frame.
type Store struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	tiles map[string]*Tile

	jobs      chan tile.Coords
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	activeFetches  atomic.Int32
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalBytes     atomic.Int64
	inFlight       sync.Map // key -> time.Time
}

// New creates a Store with the given config.
func New(cfg Config) *Store {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.TileBuffer <= 0 {
		cfg.TileBuffer = 1
	}
	if cfg.MaxTileZoom == 0 {
		cfg.MaxTileZoom = 14
		if cfg.Source != nil && cfg.Source.MaxZoom() > 0 {
			cfg.MaxTileZoom = cfg.Source.MaxZoom()
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:    cfg,
		log:    cfg.Logger,
		tiles:  make(map[string]*Tile),
		jobs:   make(chan tile.Coords, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the fetch workers.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		s.log.Info("starting tile fetch workers", "workers", s.cfg.Workers)
		for i := 0; i < s.cfg.Workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
	})
}

// Stop shuts the workers down and waits for them.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.jobs)
		s.wg.Wait()
	})
}

// Plan enumerates the tiles needed for the viewport, enqueues fetches
// for the missing ones, and returns the viewport tile set (without the
// placeholder ancestors) for renderable selection.
func (s *Store) Plan(bbox orb.Bound, camZoom float64) []tile.Coords {
	z := int(camZoom)
	if z > s.cfg.MaxTileZoom {
		z = s.cfg.MaxTileZoom
	}
	if z < 0 {
		z = 0
	}

	viewport := tile.Span(bbox, z, s.cfg.TileBuffer)

	// Parents and grandparents serve as over-zoom placeholders while the
	// target tiles load.
	wanted := make([]tile.Coords, 0, len(viewport)*3)
	seen := make(map[string]bool, len(viewport)*3)
	for _, c := range viewport {
		for _, cand := range []tile.Coords{c, c.Parent(), c.Parent().Parent()} {
			if !cand.Valid() || seen[cand.Key()] {
				continue
			}
			seen[cand.Key()] = true
			wanted = append(wanted, cand)
		}
	}

	s.mu.Lock()
	var dispatch []tile.Coords
	for _, c := range wanted {
		if _, ok := s.tiles[c.Key()]; ok {
			continue
		}
		// Inserting the Loading entry before dispatch guarantees at most
		// one in-flight fetch per key.
		s.tiles[c.Key()] = &Tile{Coord: c, State: Loading}
		dispatch = append(dispatch, c)
	}
	s.mu.Unlock()

	for _, c := range dispatch {
		select {
		case s.jobs <- c:
		default:
			// Queue full: withdraw the entry so the next plan retries.
			s.mu.Lock()
			delete(s.tiles, c.Key())
			s.mu.Unlock()
			s.log.Warn("fetch queue full, dropping tile", "tile", c.Key())
		}
	}

	return viewport
}

// Renderable returns, for each viewport tile, the nearest Ready ancestor
// (the tile itself first), deduplicated so a coarse tile stands in for
// all of its pending descendants at most once.
func (s *Store) Renderable(viewport []tile.Coords) []*Tile {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Tile
	seen := make(map[string]bool)
	for _, c := range viewport {
		cur := c
		for {
			if t, ok := s.tiles[cur.Key()]; ok && t.State == Ready {
				if !seen[cur.Key()] {
					seen[cur.Key()] = true
					out = append(out, t)
				}
				break
			}
			if cur.Z == 0 {
				break
			}
			cur = cur.Parent()
		}
	}
	return out
}

// Prune evicts Ready and Failed tiles older than maxAge whose key is not
// in the keep set. Loading entries are never pruned (the in-flight rule depends
// on them).
func (s *Store) Prune(maxAge time.Duration, keep []tile.Coords) int {
	keepSet := make(map[string]bool, len(keep))
	for _, c := range keep {
		keepSet[c.Key()] = true
	}

	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, t := range s.tiles {
		if t.State == Loading || keepSet[key] {
			continue
		}
		if now.Sub(t.LoadedAt) > maxAge {
			delete(s.tiles, key)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug("pruned tiles", "removed", removed, "remaining", len(s.tiles))
	}
	return removed
}

// Get returns the cache entry for a key, or nil.
func (s *Store) Get(key string) *Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiles[key]
}

// Len returns the number of cache entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}

// Status reports the current pipeline counters.
func (s *Store) Status() Status {
	var current []string
	s.inFlight.Range(func(key, _ any) bool {
		current = append(current, key.(string))
		return true
	})

	return Status{
		ActiveFetches:  int(s.activeFetches.Load()),
		QueuedFetches:  len(s.jobs),
		TotalCompleted: s.totalCompleted.Load(),
		TotalFailed:    s.totalFailed.Load(),
		TotalBytes:     s.totalBytes.Load(),
		CurrentTiles:   current,
	}
}

func (s *Store) worker(id int) {
	defer s.wg.Done()
	log := s.log.With("worker_id", id)
	log.Debug("fetch worker started")

	for {
		select {
		case <-s.ctx.Done():
			log.Debug("fetch worker stopping")
			return
		case coord, ok := <-s.jobs:
			if !ok {
				return
			}
			s.fetchTile(coord)
		}
	}
}

// fetchTile runs one fetch+decode task and commits the outcome under the
// store mutex. A network error removes the entry (the next plan
// retries); a decode error marks the tile Failed.
func (s *Store) fetchTile(coord tile.Coords) {
	key := coord.Key()

	s.activeFetches.Add(1)
	s.inFlight.Store(key, s.cfg.Now())
	defer func() {
		s.activeFetches.Add(-1)
		s.inFlight.Delete(key)
	}()

	start := s.cfg.Now()
	log := s.log.With("tile", key)

	data, err := s.cfg.Source.Fetch(s.ctx, coord)
	switch {
	case errors.Is(err, source.ErrNotFound):
		// Empty tile: Ready with no feature sets.
		s.commit(&Tile{Coord: coord, State: Ready, LoadedAt: s.cfg.Now()})
		s.totalCompleted.Add(1)
		return
	case err != nil:
		s.totalFailed.Add(1)
		log.Error("tile fetch failed", "error", err)
		s.remove(key)
		return
	}

	content, err := mvt.Parse(data, coord, s.cfg.ParseOpts)
	if err != nil {
		s.totalFailed.Add(1)
		log.Error("tile decode failed", "error", err, "bytes", len(data))
		s.commit(&Tile{Coord: coord, State: Failed, LoadedAt: s.cfg.Now()})
		return
	}

	s.totalCompleted.Add(1)
	s.totalBytes.Add(int64(len(data)))
	log.Info("tile loaded",
		"feature_sets", len(content.Features),
		"labels", len(content.Labels),
		"bytes", len(data),
		"duration_ms", s.cfg.Now().Sub(start).Milliseconds(),
	)

	s.commit(&Tile{
		Coord:    coord,
		State:    Ready,
		Features: content.Features,
		Labels:   content.Labels,
		LoadedAt: s.cfg.Now(),
	})
}

func (s *Store) commit(t *Tile) {
	s.mu.Lock()
	s.tiles[t.Coord.Key()] = t
	s.mu.Unlock()

	if s.cfg.OnTileReady != nil {
		s.cfg.OnTileReady(t.Coord)
	}
}

func (s *Store) remove(key string) {
	s.mu.Lock()
	delete(s.tiles, key)
	s.mu.Unlock()
}
