package glhost

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/MeKo-Tech/vectormap/internal/engine"
)

func init() {
	// GLFW and the GL context are bound to the main OS thread.
	runtime.LockOSThread()
}

// WindowConfig configures the host window.
type WindowConfig struct {
	Title  string
	Width  int
	Height int
	Logger *slog.Logger
}

// Window owns the GLFW window and translates its events into engine
// input.
type Window struct {
	win    *glfw.Window
	device *Device
	log    *slog.Logger
	redraw chan struct{}
}

// NewWindow creates the window and GL context. Must be called from the
// main goroutine.
func NewWindow(cfg WindowConfig) (*Window, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing glfw: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}
	win.MakeContextCurrent()
	glfw.SwapInterval(1)

	device, err := NewDevice()
	if err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, err
	}

	return &Window{
		win:    win,
		device: device,
		log:    cfg.Logger,
		redraw: make(chan struct{}, 1),
	}, nil
}

// Device returns the GL-backed GPU.
func (w *Window) Device() *Device { return w.device }

// RequestRedraw schedules a frame from any goroutine.
func (w *Window) RequestRedraw() {
	select {
	case w.redraw <- struct{}{}:
	default:
	}
	glfw.PostEmptyEvent()
}

// Run drives the map until the window closes. Rendering is on demand:
// input, tile arrival and resize wake the loop; otherwise it sleeps in
// the event pump.
func (w *Window) Run(m *engine.Map) {
	w.installCallbacks(m)

	// Initial size may differ from the requested one (HiDPI).
	fbW, fbH := w.win.GetFramebufferSize()
	w.device.Viewport(fbW, fbH)
	m.OnResize(fbW, fbH)

	last := time.Now()
	for !w.win.ShouldClose() {
		glfw.WaitEventsTimeout(0.25)

		select {
		case <-w.redraw:
		default:
		}
		if !m.Dirty() && time.Since(last) < time.Second {
			continue
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		w.device.Clear(0.95, 0.94, 0.91, 1.0)
		m.Render(dt)
		w.win.SwapBuffers()
	}
}

// Close tears the window down.
func (w *Window) Close() {
	w.win.Destroy()
	glfw.Terminate()
}

func (w *Window) installCallbacks(m *engine.Map) {
	w.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.device.Viewport(width, height)
		m.OnResize(width, height)
	})

	w.win.SetMouseButtonCallback(func(win *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		x, y := win.GetCursorPos()
		b := engine.ButtonLeft
		if button == glfw.MouseButtonRight {
			b = engine.ButtonRight
		}
		switch action {
		case glfw.Press:
			m.OnInput(engine.PressEvent{X: x, Y: y, Button: b})
		case glfw.Release:
			m.OnInput(engine.ReleaseEvent{X: x, Y: y, Button: b})
		}
	})

	w.win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		m.OnInput(engine.MoveEvent{X: x, Y: y})
	})

	w.win.SetScrollCallback(func(win *glfw.Window, _, yoff float64) {
		x, y := win.GetCursorPos()
		m.OnInput(engine.WheelEvent{Delta: yoff * 0.25, X: x, Y: y})
	})
}
