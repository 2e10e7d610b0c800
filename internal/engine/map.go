// Package engine wires the camera, tile store, batcher and label engine
// into the host-facing Map API and owns the per-frame control flow.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/vectormap/internal/camera"
	"github.com/MeKo-Tech/vectormap/internal/label"
	"github.com/MeKo-Tech/vectormap/internal/mvt"
	"github.com/MeKo-Tech/vectormap/internal/render"
	"github.com/MeKo-Tech/vectormap/internal/source"
	"github.com/MeKo-Tech/vectormap/internal/store"
	"github.com/MeKo-Tech/vectormap/internal/tile"
)

// pruneInterval is how often the store is swept for stale tiles.
const pruneInterval = 30 * time.Second

// DefaultLabelLayers maps label-producing layers to their base priority.
var DefaultLabelLayers = map[string]float64{
	"place":       100,
	"label":       50,
	"housenumber": 10,
}

// Options configures a Map.
type Options struct {
	ViewportW, ViewportH int

	CenterLng, CenterLat float64
	Zoom                 float64
	MinZoom, MaxZoom     float64

	// TileURL is the remote tile template; MBTilesPath selects a local
	// file instead. Source, when set, overrides both.
	TileURL     string
	MBTilesPath string
	Source      source.TileSource

	MaxTileZoom int
	TileBuffer  int
	Workers     int
	TileTTL     time.Duration

	// Layers is the layer allowlist; defaults to the global layer order.
	Layers []string
	// LabelLayers overrides DefaultLabelLayers.
	LabelLayers map[string]float64

	LayerColors    map[string]render.Color
	DisabledLayers []string

	// RequestRedraw is called (from any goroutine) when new content is
	// ready and the host should schedule a frame.
	RequestRedraw func()

	Now    func() time.Time
	Logger *slog.Logger
}

// Map is the renderer facade the host drives: feed it input and resize
// events, call Render once per frame.
type Map struct {
	opts Options
	log  *slog.Logger

	cam     *camera.Camera
	store   *store.Store
	src     source.TileSource
	batcher *render.Batcher
	labels  *label.Engine
	driver  *Driver

	now       func() time.Time
	dirty     atomic.Bool
	viewport  []tile.Coords
	lastPrune time.Time

	dragging bool
	rotating bool
	cursorX  float64
	cursorY  float64
}

// New constructs the full pipeline. Shader compilation or an unusable
// tile source fail construction; everything after that degrades
// per-tile.
func New(gpu render.GPU, opts Options) (*Map, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.TileTTL <= 0 {
		opts.TileTTL = 300 * time.Second
	}

	src, err := openSource(opts)
	if err != nil {
		return nil, err
	}

	cam := camera.New(camera.Config{
		Lng:     opts.CenterLng,
		Lat:     opts.CenterLat,
		Zoom:    opts.Zoom,
		MinZoom: opts.MinZoom,
		MaxZoom: opts.MaxZoom,
		Width:   opts.ViewportW,
		Height:  opts.ViewportH,
	})

	batcher, err := render.NewBatcher(gpu, opts.LayerColors, log)
	if err != nil {
		return nil, err
	}
	for _, name := range opts.DisabledLayers {
		batcher.SetLayerDisabled(name, true)
	}

	labels, err := label.NewEngine(gpu, log)
	if err != nil {
		return nil, err
	}

	m := &Map{
		opts:    opts,
		log:     log,
		cam:     cam,
		src:     src,
		batcher: batcher,
		labels:  labels,
		now:     now,
	}

	m.store = store.New(store.Config{
		Source:      src,
		ParseOpts:   parseOptions(opts, log),
		Workers:     opts.Workers,
		TileBuffer:  opts.TileBuffer,
		MaxTileZoom: opts.MaxTileZoom,
		TTL:         opts.TileTTL,
		Now:         now,
		Logger:      log,
		OnTileReady: func(tile.Coords) {
			m.dirty.Store(true)
			if opts.RequestRedraw != nil {
				opts.RequestRedraw()
			}
		},
	})
	m.driver = NewDriver(now, m.plan)
	m.lastPrune = now()

	m.store.Start()
	m.plan()
	return m, nil
}

func openSource(opts Options) (source.TileSource, error) {
	switch {
	case opts.Source != nil:
		return opts.Source, nil
	case opts.MBTilesPath != "":
		return source.OpenMBTiles(opts.MBTilesPath)
	case opts.TileURL != "":
		return source.NewHTTPSource(source.HTTPConfig{
			URLTemplate: opts.TileURL,
			MaxZoom:     opts.MaxTileZoom,
			Logger:      opts.Logger,
		})
	default:
		return nil, fmt.Errorf("no tile source configured")
	}
}

func parseOptions(opts Options, log *slog.Logger) mvt.Options {
	layers := opts.Layers
	if layers == nil {
		layers = render.GlobalLayerOrder
	}
	allow := make(map[string]bool, len(layers))
	for _, name := range layers {
		allow[name] = true
	}

	labelLayers := opts.LabelLayers
	if labelLayers == nil {
		labelLayers = DefaultLabelLayers
	}
	for name := range labelLayers {
		allow[name] = true
	}

	return mvt.Options{
		Allowlist:   allow,
		LabelLayers: labelLayers,
		Logger:      log,
	}
}

// Camera exposes the camera for read access (debug HUDs, tests).
func (m *Map) Camera() *camera.Camera { return m.cam }

// Store exposes the tile store for status probes.
func (m *Map) Store() *store.Store { return m.store }

// OnInput applies a host input event to the camera and notifies the
// debounce driver.
func (m *Map) OnInput(ev any) {
	switch e := ev.(type) {
	case PressEvent:
		m.cursorX, m.cursorY = e.X, e.Y
		switch e.Button {
		case ButtonLeft:
			m.dragging = true
		case ButtonRight:
			m.rotating = true
		}

	case ReleaseEvent:
		switch e.Button {
		case ButtonLeft:
			m.dragging = false
		case ButtonRight:
			m.rotating = false
		}

	case MoveEvent:
		dx := e.X - m.cursorX
		dy := e.Y - m.cursorY
		m.cursorX, m.cursorY = e.X, e.Y

		switch {
		case m.dragging:
			m.cam.Pan(dx, dy)
			m.driver.NotePan()
			m.dirty.Store(true)
		case m.rotating:
			m.cam.SetBearing(m.cam.Bearing() + dx*0.3)
			m.cam.SetPitch(m.cam.Pitch() - dy*0.3)
			m.driver.NoteRotation()
			m.dirty.Store(true)
		}

	case WheelEvent:
		m.cam.ZoomAt(e.Delta, e.X, e.Y)
		m.driver.NoteZoom(e.Delta)
		m.dirty.Store(true)
	}
}

// OnResize updates the viewport.
func (m *Map) OnResize(w, h int) {
	m.cam.Resize(w, h)
	m.labels.Invalidate()
	m.driver.NotePan() // footprint changed, plan now
	m.dirty.Store(true)
}

// Render draws one frame: tick the debounce driver, snapshot the
// renderable tiles, batch the map layers, then place labels on top.
func (m *Map) Render(dt time.Duration) {
	_ = dt // event-driven hosts pass the real delta; nothing animates yet

	m.driver.Tick()
	m.dirty.Store(false)

	viewport := m.viewportTiles()
	tiles := m.store.Renderable(viewport)

	m.batcher.Draw(m.cam, tiles)
	m.labels.Draw(m.cam, tiles)

	if m.now().Sub(m.lastPrune) > pruneInterval {
		m.store.Prune(m.opts.TileTTL, m.viewport)
		m.lastPrune = m.now()

		st := m.store.Status()
		m.log.Debug("tile pipeline",
			"cached", m.store.Len(),
			"active_fetches", st.ActiveFetches,
			"queued", st.QueuedFetches,
			"completed", st.TotalCompleted,
			"failed", st.TotalFailed,
			"bytes", st.TotalBytes,
		)
	}
}

// Dirty reports whether new content arrived since the last frame.
func (m *Map) Dirty() bool { return m.dirty.Load() }

// SetLayerColor overrides a layer fill color at runtime.
func (m *Map) SetLayerColor(name string, c render.Color) {
	m.batcher.SetLayerColor(name, c)
	m.dirty.Store(true)
}

// DisableLayer hides a layer.
func (m *Map) DisableLayer(name string) {
	m.batcher.SetLayerDisabled(name, true)
	m.dirty.Store(true)
}

// EnableLayer re-enables a hidden layer.
func (m *Map) EnableLayer(name string) {
	m.batcher.SetLayerDisabled(name, false)
	m.dirty.Store(true)
}

// Close stops the fetch pipeline and releases the tile source.
func (m *Map) Close() error {
	m.store.Stop()
	return m.src.Close()
}

// plan runs fetch planning for the current viewport and remembers the
// viewport tile set for pruning.
func (m *Map) plan() {
	m.viewport = m.store.Plan(m.cam.Bounds(), m.cam.Zoom())
}

// viewportTiles enumerates the tiles covering the current view without
// planning fetches; renderable selection needs it every frame even while
// planning is debounced.
func (m *Map) viewportTiles() []tile.Coords {
	z := int(m.cam.Zoom())
	if maxZ := m.storeMaxZoom(); z > maxZ {
		z = maxZ
	}
	if z < 0 {
		z = 0
	}
	buffer := m.opts.TileBuffer
	if buffer <= 0 {
		buffer = 1
	}
	return tile.Span(m.cam.Bounds(), z, buffer)
}

func (m *Map) storeMaxZoom() int {
	if m.opts.MaxTileZoom > 0 {
		return m.opts.MaxTileZoom
	}
	if m.src != nil && m.src.MaxZoom() > 0 {
		return m.src.MaxZoom()
	}
	return 14
}
