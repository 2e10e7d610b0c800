// Package camera implements the double-precision viewport camera: a Web
// Mercator perspective view with bearing and pitch, screen↔world
// ray-casting, and anchored zooming.
//
// All math stays in float64. Matrices handed to the GPU are downcast to
// float32 only in camera-relative form; an absolute mercator coordinate
// never enters a float32, because at high zoom that loses the fractional
// bits that separate adjacent vertices.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/vectormap/internal/mercator"
)

const (
	// tileSize is the pixel size of one tile at integer zoom.
	tileSize = 512.0
	// fovY is the vertical field of view of the perspective projection.
	fovY = 60.0
	// maxPitch keeps the horizon off screen; at 90° the ground plane
	// never intersects the view frustum.
	maxPitch = 60.0

	wEpsilon = 1e-12
)

// OffscreenSentinel is returned by WorldToScreen for points that project
// behind the camera.
const OffscreenSentinel = -1e9

// State is the comparable camera state; two identical States produce
// bit-identical matrices, which the label engine uses as a cache key.
type State struct {
	MX, MY  float64
	Zoom    float64
	Bearing float64
	Pitch   float64
	Width   int
	Height  int
}

// Camera holds the mutable viewport state. The frame driver is its only
// writer.
type Camera struct {
	state   State
	minZoom float64
	maxZoom float64
}

// Config is the initial camera setup.
type Config struct {
	Lng, Lat float64
	Zoom     float64
	MinZoom  float64
	MaxZoom  float64
	Width    int
	Height   int
}

// New creates a camera centered on the given geographic point.
func New(cfg Config) *Camera {
	if cfg.MaxZoom <= 0 {
		cfg.MaxZoom = 20
	}
	if cfg.Width <= 0 {
		cfg.Width = 1
	}
	if cfg.Height <= 0 {
		cfg.Height = 1
	}

	c := &Camera{
		minZoom: cfg.MinZoom,
		maxZoom: cfg.MaxZoom,
	}
	center := mercator.FromLngLat(cfg.Lng, cfg.Lat)
	c.state = State{
		MX:     center.X,
		MY:     center.Y,
		Zoom:   clampF(cfg.Zoom, cfg.MinZoom, cfg.MaxZoom),
		Width:  cfg.Width,
		Height: cfg.Height,
	}
	return c
}

// State returns the current camera state.
func (c *Camera) State() State { return c.state }

// Center returns the mercator center.
func (c *Camera) Center() (mx, my float64) { return c.state.MX, c.state.MY }

// Zoom returns the continuous zoom level.
func (c *Camera) Zoom() float64 { return c.state.Zoom }

// Bearing returns the bearing in degrees, normalized to [0,360).
func (c *Camera) Bearing() float64 { return c.state.Bearing }

// Pitch returns the pitch in degrees.
func (c *Camera) Pitch() float64 { return c.state.Pitch }

// Viewport returns the viewport size in pixels.
func (c *Camera) Viewport() (w, h int) { return c.state.Width, c.state.Height }

// WorldSize returns the pixel extent of the whole mercator square at
// the current zoom.
func (c *Camera) WorldSize() float64 {
	return tileSize * math.Exp2(c.state.Zoom)
}

// Altitude returns the camera height in pixels, chosen so screen pixels
// and mercator pixels are 1:1 at the center of an unpitched view.
func (c *Camera) Altitude() float64 {
	return float64(c.state.Height) / 2.0 / math.Tan(mgl64.DegToRad(fovY/2))
}

// Resize updates the viewport size.
func (c *Camera) Resize(w, h int) {
	if w > 0 {
		c.state.Width = w
	}
	if h > 0 {
		c.state.Height = h
	}
}

// Pan translates the center by a screen-pixel delta. Dragging the map
// surface down moves the camera north (mercator y decreases).
func (c *Camera) Pan(dxPixels, dyPixels float64) {
	ws := c.WorldSize()
	c.state.MX -= dxPixels / ws
	c.state.MY -= dyPixels / ws
	c.state.MX = clampF(c.state.MX, 0, 1)
	c.state.MY = clampF(c.state.MY, 0, 1)
}

// SetZoom sets the zoom with clamping.
func (c *Camera) SetZoom(z float64) {
	c.state.Zoom = clampF(z, c.minZoom, c.maxZoom)
}

// ZoomAt changes zoom by delta while keeping the world point under the
// screen position (sx,sy) fixed.
func (c *Camera) ZoomAt(delta, sx, sy float64) {
	before, okBefore := c.unproject(sx, sy)
	c.SetZoom(c.state.Zoom + delta)
	after, okAfter := c.unproject(sx, sy)
	if !okBefore || !okAfter {
		return
	}
	c.state.MX += before.X - after.X
	c.state.MY += before.Y - after.Y
	c.state.MX = clampF(c.state.MX, 0, 1)
	c.state.MY = clampF(c.state.MY, 0, 1)
}

// SetBearing sets the bearing in degrees, normalized to [0,360).
func (c *Camera) SetBearing(deg float64) {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	c.state.Bearing = deg
}

// SetPitch sets the pitch in degrees, clamped to [0, 60].
func (c *Camera) SetPitch(deg float64) {
	c.state.Pitch = clampF(deg, 0, maxPitch)
}

// ViewProjection returns the full double-precision view-projection
// matrix over absolute mercator coordinates. It is used for ray-casting
// and label projection, never uploaded to the GPU.
func (c *Camera) ViewProjection() mgl64.Mat4 {
	return c.projectionView().Mul4(
		mgl64.Translate3D(-c.state.MX, -c.state.MY, 0))
}

// RelativeViewProjection returns the view-projection matrix for
// camera-relative vertices (vertex minus center, in mercator units).
// This is the matrix that may be downcast for GPU upload.
func (c *Camera) RelativeViewProjection() mgl64.Mat4 {
	return c.projectionView()
}

// RelativeViewProjectionF32 downcasts the camera-relative matrix for
// upload, column-major.
func (c *Camera) RelativeViewProjectionF32() [16]float32 {
	m := c.RelativeViewProjection()
	var out [16]float32
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// projectionView composes everything except the center translation.
func (c *Camera) projectionView() mgl64.Mat4 {
	ws := c.WorldSize()
	alt := c.Altitude()
	aspect := float64(c.state.Width) / float64(c.state.Height)

	proj := mgl64.Perspective(mgl64.DegToRad(fovY), aspect, 0.1, 100*alt)
	view := mgl64.Translate3D(0, 0, -alt).
		Mul4(mgl64.HomogRotate3DX(mgl64.DegToRad(-c.state.Pitch))).
		Mul4(mgl64.HomogRotate3DZ(mgl64.DegToRad(c.state.Bearing)))
	// The Y flip converts mercator y-down into GL y-up.
	world := mgl64.Scale3D(ws, -ws, 1)

	return proj.Mul4(view).Mul4(world)
}

// ScreenToWorld casts a ray through the screen pixel and intersects it
// with the ground plane, returning the mercator hit point. A degenerate
// ray returns the camera center.
func (c *Camera) ScreenToWorld(sx, sy float64) (mx, my float64) {
	p, ok := c.unproject(sx, sy)
	if !ok {
		return c.state.MX, c.state.MY
	}
	return p.X, p.Y
}

// unproject returns the ground-plane intersection and whether the ray
// actually hits it in front of the camera.
func (c *Camera) unproject(sx, sy float64) (mercator.Point, bool) {
	w := float64(c.state.Width)
	h := float64(c.state.Height)

	nx := 2.0*sx/w - 1.0
	ny := 1.0 - 2.0*sy/h

	vp := c.ViewProjection()
	if math.Abs(vp.Det()) < wEpsilon {
		return mercator.Point{}, false
	}
	inv := vp.Inv()

	near := inv.Mul4x1(mgl64.Vec4{nx, ny, -1, 1})
	far := inv.Mul4x1(mgl64.Vec4{nx, ny, 1, 1})
	if math.Abs(near.W()) < wEpsilon || math.Abs(far.W()) < wEpsilon {
		return mercator.Point{}, false
	}

	a := near.Mul(1 / near.W())
	b := far.Mul(1 / far.W())

	dz := b.Z() - a.Z()
	if math.Abs(dz) < wEpsilon {
		return mercator.Point{}, false // ray parallel to the ground plane
	}

	t := -a.Z() / dz
	if t < 0 {
		return mercator.Point{}, false // intersection behind the camera
	}

	return mercator.Point{
		X: a.X() + t*(b.X()-a.X()),
		Y: a.Y() + t*(b.Y()-a.Y()),
	}, true
}

// WorldToScreen projects a mercator point to screen pixels. Points at or
// behind the camera plane return the off-screen sentinel.
func (c *Camera) WorldToScreen(mx, my float64) (sx, sy float64) {
	clip := c.ViewProjection().Mul4x1(mgl64.Vec4{mx, my, 0, 1})
	if clip.W() < wEpsilon {
		return OffscreenSentinel, OffscreenSentinel
	}

	ndcX := clip.X() / clip.W()
	ndcY := clip.Y() / clip.W()

	return (ndcX + 1) / 2 * float64(c.state.Width),
		(1 - ndcY) / 2 * float64(c.state.Height)
}

// Bounds returns a geographic rectangle around the on-screen footprint,
// built from the ground hits of the four screen corners. Each corner is
// capped at 4 × the larger viewport side (in world pixels) from the
// center; a corner whose ray misses the ground (high pitch, above the
// horizon) widens the box to that cap in every direction. Visible ground
// farther out than the cap is not included.
func (c *Camera) Bounds() orb.Bound {
	w := float64(c.state.Width)
	h := float64(c.state.Height)

	// The largest footprint a corner may contribute. Beyond this the
	// geometry is too far away to matter for tile planning.
	maxHalf := 4.0 * math.Max(w, h) / c.WorldSize()

	minX, maxX := c.state.MX, c.state.MX
	minY, maxY := c.state.MY, c.state.MY

	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}
	for _, s := range corners {
		p, ok := c.unproject(s[0], s[1])
		if !ok {
			// Horizon ray: take the full clamp box in that direction.
			minX = math.Min(minX, c.state.MX-maxHalf)
			maxX = math.Max(maxX, c.state.MX+maxHalf)
			minY = math.Min(minY, c.state.MY-maxHalf)
			maxY = math.Max(maxY, c.state.MY+maxHalf)
			continue
		}
		minX = math.Min(minX, math.Max(p.X, c.state.MX-maxHalf))
		maxX = math.Max(maxX, math.Min(p.X, c.state.MX+maxHalf))
		minY = math.Min(minY, math.Max(p.Y, c.state.MY-maxHalf))
		maxY = math.Max(maxY, math.Min(p.Y, c.state.MY+maxHalf))
	}

	minX, maxX = clampF(minX, 0, 1), clampF(maxX, 0, 1)
	minY, maxY = clampF(minY, 0, 1), clampF(maxY, 0, 1)

	// Mercator y grows southward, so minY is the north edge.
	minLng, maxLat := mercator.ToLngLat(mercator.Point{X: minX, Y: minY})
	maxLng, minLat := mercator.ToLngLat(mercator.Point{X: maxX, Y: maxY})

	return orb.Bound{
		Min: orb.Point{minLng, minLat},
		Max: orb.Point{maxLng, maxLat},
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
