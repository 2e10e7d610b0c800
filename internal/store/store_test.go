package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vectormap/internal/source"
	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// stubSource serves canned payloads and counts fetches per key.
type stubSource struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	counts   map[string]*atomic.Int32
	delay    time.Duration
}

func newStubSource() *stubSource {
	return &stubSource{
		payloads: make(map[string][]byte),
		errs:     make(map[string]error),
		counts:   make(map[string]*atomic.Int32),
	}
}

func (s *stubSource) Fetch(ctx context.Context, coord tile.Coords) ([]byte, error) {
	s.mu.Lock()
	c, ok := s.counts[coord.Key()]
	if !ok {
		c = &atomic.Int32{}
		s.counts[coord.Key()] = c
	}
	payload := s.payloads[coord.Key()]
	err, hasErr := s.errs[coord.Key()]
	delay := s.delay
	s.mu.Unlock()

	c.Add(1)
	if delay > 0 {
		time.Sleep(delay)
	}
	if hasErr {
		return nil, err
	}
	if payload == nil {
		return nil, source.ErrNotFound
	}
	return payload, nil
}

func (s *stubSource) MaxZoom() int { return 14 }
func (s *stubSource) Close() error { return nil }

func (s *stubSource) count(key string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[key]; ok {
		return c.Load()
	}
	return 0
}

func waitIdle(t *testing.T, s *Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.Status()
		if st.ActiveFetches == 0 && st.QueuedFetches == 0 {
			// One more settle pass for commits racing the counters.
			time.Sleep(5 * time.Millisecond)
			st = s.Status()
			if st.ActiveFetches == 0 && st.QueuedFetches == 0 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("store did not go idle")
}

func smallBBox() orb.Bound {
	return orb.Bound{
		Min: orb.Point{9.70, 52.36},
		Max: orb.Point{9.76, 52.40},
	}
}

func TestPlan_InsertsLoadingBeforeDispatch(t *testing.T) {
	src := newStubSource()
	s := New(Config{Source: src, Workers: 2})
	// Workers intentionally not started: entries must appear as Loading.

	viewport := s.Plan(smallBBox(), 13)
	require.NotEmpty(t, viewport)

	for _, c := range viewport {
		entry := s.Get(c.Key())
		require.NotNil(t, entry, "no entry for %s", c)
		require.Equal(t, Loading, entry.State)
	}

	// Parents and grandparents are planned as well.
	parent := viewport[0].Parent()
	require.NotNil(t, s.Get(parent.Key()))
	require.NotNil(t, s.Get(parent.Parent().Key()))
}

func TestPlan_NeverDoubleFetches(t *testing.T) {
	src := newStubSource()
	src.delay = 20 * time.Millisecond

	s := New(Config{Source: src, Workers: 4})
	s.Start()
	defer s.Stop()

	// Replanning the same viewport while fetches are in flight must not
	// dispatch a second fetch for any key.
	s.Plan(smallBBox(), 13)
	s.Plan(smallBBox(), 13)
	s.Plan(smallBBox(), 13)
	waitIdle(t, s)

	src.mu.Lock()
	defer src.mu.Unlock()
	for key, c := range src.counts {
		require.LessOrEqual(t, c.Load(), int32(1), "tile %s fetched %d times", key, c.Load())
	}
}

func TestFetch_NotFoundBecomesEmptyReady(t *testing.T) {
	src := newStubSource() // serves ErrNotFound for everything
	s := New(Config{Source: src, Workers: 2})
	s.Start()
	defer s.Stop()

	viewport := s.Plan(smallBBox(), 13)
	waitIdle(t, s)

	entry := s.Get(viewport[0].Key())
	require.NotNil(t, entry)
	require.Equal(t, Ready, entry.State)
	require.Empty(t, entry.Features)
}

func TestFetch_NetworkErrorRemovesEntry(t *testing.T) {
	src := newStubSource()
	s := New(Config{Source: src, Workers: 1})

	viewport := s.Plan(smallBBox(), 13)
	key := viewport[0].Key()

	src.mu.Lock()
	for k := range allPlanned(s) {
		src.errs[k] = errors.New("connection refused")
	}
	src.mu.Unlock()

	s.Start()
	defer s.Stop()
	waitIdle(t, s)

	require.Nil(t, s.Get(key), "failed fetch should drop the entry for retry")

	// A later plan dispatches the same key again.
	s.Plan(smallBBox(), 13)
	waitIdle(t, s)
	require.GreaterOrEqual(t, src.count(key), int32(2))
}

func TestFetch_MalformedTileBecomesFailed(t *testing.T) {
	src := newStubSource()
	s := New(Config{Source: src, Workers: 1})

	viewport := s.Plan(smallBBox(), 13)
	key := viewport[0].Key()

	src.mu.Lock()
	for k := range allPlanned(s) {
		src.payloads[k] = []byte{0x99, 0xff, 0x01, 0x02}
	}
	src.mu.Unlock()

	s.Start()
	defer s.Stop()
	waitIdle(t, s)

	entry := s.Get(key)
	require.NotNil(t, entry)
	require.Equal(t, Failed, entry.State)
}

func TestRenderable_OverzoomFallback(t *testing.T) {
	s := New(Config{Source: newStubSource()})

	// Only tile 2/1/2 is Ready; the viewport wants 8/4/4.
	ready := tile.New(2, 1, 2)
	s.tiles[ready.Key()] = &Tile{Coord: ready, State: Ready, LoadedAt: time.Now()}

	got := s.Renderable([]tile.Coords{tile.New(8, 4, 4)})
	require.Len(t, got, 1)
	require.Equal(t, ready, got[0].Coord)
}

func TestRenderable_DeduplicatesSharedAncestor(t *testing.T) {
	s := New(Config{Source: newStubSource()})

	ready := tile.New(0, 0, 0)
	s.tiles[ready.Key()] = &Tile{Coord: ready, State: Ready, LoadedAt: time.Now()}

	viewport := []tile.Coords{
		tile.New(0, 0, 2), tile.New(1, 0, 2), tile.New(0, 1, 2), tile.New(1, 1, 2),
	}
	got := s.Renderable(viewport)
	require.Len(t, got, 1, "one ancestor stands in for all descendants")
}

func TestRenderable_PrefersSelfOverAncestor(t *testing.T) {
	s := New(Config{Source: newStubSource()})

	self := tile.New(8, 4, 4)
	parent := self.Parent()
	s.tiles[self.Key()] = &Tile{Coord: self, State: Ready, LoadedAt: time.Now()}
	s.tiles[parent.Key()] = &Tile{Coord: parent, State: Ready, LoadedAt: time.Now()}

	got := s.Renderable([]tile.Coords{self})
	require.Len(t, got, 1)
	require.Equal(t, self, got[0].Coord)
}

func TestRenderable_SkipsLoadingAndFailed(t *testing.T) {
	s := New(Config{Source: newStubSource()})

	c := tile.New(8, 4, 4)
	s.tiles[c.Key()] = &Tile{Coord: c, State: Loading}
	s.tiles[c.Parent().Key()] = &Tile{Coord: c.Parent(), State: Failed}

	require.Empty(t, s.Renderable([]tile.Coords{c}))
}

func TestPrune(t *testing.T) {
	now := time.Now()
	clock := now
	s := New(Config{
		Source: newStubSource(),
		Now:    func() time.Time { return clock },
	})

	old := tile.New(1, 1, 3)
	fresh := tile.New(2, 1, 3)
	kept := tile.New(3, 1, 3)
	loading := tile.New(4, 1, 3)

	s.tiles[old.Key()] = &Tile{Coord: old, State: Ready, LoadedAt: now.Add(-10 * time.Minute)}
	s.tiles[fresh.Key()] = &Tile{Coord: fresh, State: Ready, LoadedAt: now.Add(-1 * time.Minute)}
	s.tiles[kept.Key()] = &Tile{Coord: kept, State: Ready, LoadedAt: now.Add(-10 * time.Minute)}
	s.tiles[loading.Key()] = &Tile{Coord: loading, State: Loading}

	removed := s.Prune(5*time.Minute, []tile.Coords{kept})
	require.Equal(t, 1, removed)
	require.Nil(t, s.Get(old.Key()))
	require.NotNil(t, s.Get(fresh.Key()), "fresh tile survives")
	require.NotNil(t, s.Get(kept.Key()), "viewport tile survives regardless of age")
	require.NotNil(t, s.Get(loading.Key()), "loading entries are never pruned")
}

func TestStatusCounters(t *testing.T) {
	src := newStubSource()
	s := New(Config{Source: src, Workers: 2})
	s.Start()
	defer s.Stop()

	s.Plan(smallBBox(), 13)
	waitIdle(t, s)

	st := s.Status()
	require.Zero(t, st.ActiveFetches)
	require.Positive(t, st.TotalCompleted)
}

func allPlanned(s *Store) map[string]*Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Tile, len(s.tiles))
	for k, v := range s.tiles {
		out[k] = v
	}
	return out
}
