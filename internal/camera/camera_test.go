package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vectormap/internal/mercator"
)

func testCamera() *Camera {
	return New(Config{
		Lng: 0, Lat: 0,
		Zoom:    5,
		MinZoom: 0, MaxZoom: 18,
		Width: 1024, Height: 768,
	})
}

func TestCenterProjectsToScreenCenter(t *testing.T) {
	c := testCamera()
	mx, my := c.Center()

	sx, sy := c.WorldToScreen(mx, my)
	require.InDelta(t, 512, sx, 1e-6)
	require.InDelta(t, 384, sy, 1e-6)
}

func TestScreenToWorld_RoundTrip(t *testing.T) {
	c := testCamera()

	screens := [][2]float64{
		{512, 384}, {100, 200}, {1000, 700}, {0, 0}, {1024, 768},
	}
	for _, s := range screens {
		mx, my := c.ScreenToWorld(s[0], s[1])
		sx, sy := c.WorldToScreen(mx, my)
		require.InDelta(t, s[0], sx, 1e-6, "sx for %v", s)
		require.InDelta(t, s[1], sy, 1e-6, "sy for %v", s)
	}
}

func TestScreenToWorld_RoundTripPitchedRotated(t *testing.T) {
	c := testCamera()
	c.SetBearing(37)
	c.SetPitch(45)

	mx, my := c.ScreenToWorld(300, 500)
	sx, sy := c.WorldToScreen(mx, my)
	require.InDelta(t, 300, sx, 1e-6)
	require.InDelta(t, 500, sy, 1e-6)
}

func TestPixelScaleIsOneToOneAtCenter(t *testing.T) {
	// Altitude is chosen so one screen pixel equals one mercator pixel
	// at the view center when unpitched.
	c := testCamera()
	mx, my := c.Center()
	ws := c.WorldSize()

	gotX, gotY := c.ScreenToWorld(512+10, 384)
	require.InDelta(t, mx+10/ws, gotX, 1e-12)
	require.InDelta(t, my, gotY, 1e-12)

	gotX, gotY = c.ScreenToWorld(512, 384+10)
	require.InDelta(t, mx, gotX, 1e-12)
	require.InDelta(t, my+10/ws, gotY, 1e-12)
}

func TestPan(t *testing.T) {
	c := testCamera()
	mx, my := c.Center()
	ws := c.WorldSize()

	c.Pan(50, -30)
	gotX, gotY := c.Center()
	require.InDelta(t, mx-50/ws, gotX, 1e-15)
	require.InDelta(t, my+30/ws, gotY, 1e-15)
}

func TestZoomAt_AnchorInvariant(t *testing.T) {
	// Viewport 1024x768, camera at (0,0) zoom 5:
	// ZoomAt(+1, 100, 200) keeps the anchored world point within half a
	// pixel of (100,200).
	c := testCamera()

	ax, ay := c.ScreenToWorld(100, 200)
	c.ZoomAt(1.0, 100, 200)
	require.InDelta(t, 6.0, c.Zoom(), 1e-12)

	sx, sy := c.WorldToScreen(ax, ay)
	require.InDelta(t, 100, sx, 0.5)
	require.InDelta(t, 200, sy, 0.5)
}

func TestZoomAt_AnchorInvariantWhileRotated(t *testing.T) {
	c := testCamera()
	c.SetBearing(120)
	c.SetPitch(30)

	ax, ay := c.ScreenToWorld(700, 600)
	c.ZoomAt(-1.5, 700, 600)

	sx, sy := c.WorldToScreen(ax, ay)
	require.InDelta(t, 700, sx, 1.0)
	require.InDelta(t, 600, sy, 1.0)
}

func TestZoomClamping(t *testing.T) {
	c := New(Config{Zoom: 5, MinZoom: 2, MaxZoom: 10, Width: 800, Height: 600})

	c.SetZoom(25)
	require.Equal(t, 10.0, c.Zoom())
	c.SetZoom(-3)
	require.Equal(t, 2.0, c.Zoom())
}

func TestPitchClamping(t *testing.T) {
	c := testCamera()
	c.SetPitch(80)
	require.Equal(t, 60.0, c.Pitch())
	c.SetPitch(-5)
	require.Equal(t, 0.0, c.Pitch())
}

func TestBearingNormalization(t *testing.T) {
	c := testCamera()
	c.SetBearing(370)
	require.InDelta(t, 10, c.Bearing(), 1e-12)
	c.SetBearing(-90)
	require.InDelta(t, 270, c.Bearing(), 1e-12)
}

func TestRelativeMatrixMatchesAbsolute(t *testing.T) {
	// The camera-relative matrix applied to (p - center) must agree with
	// the absolute matrix applied to p; this is the invariant that makes
	// the float32 downcast safe.
	c := testCamera()
	c.SetBearing(45)
	c.SetPitch(20)
	mx, my := c.Center()

	p := mgl64.Vec4{mx + 1e-4, my - 2e-4, 0, 1}
	rel := mgl64.Vec4{1e-4, -2e-4, 0, 1}

	abs := c.ViewProjection().Mul4x1(p)
	got := c.RelativeViewProjection().Mul4x1(rel)

	for i := 0; i < 4; i++ {
		require.InDelta(t, abs[i], got[i], 1e-9)
	}
}

func TestBounds_ContainsVisibleGround(t *testing.T) {
	c := testCamera()
	b := c.Bounds()

	// All four corner unprojections fall inside the bounds.
	for _, s := range [][2]float64{{0, 0}, {1024, 0}, {0, 768}, {1024, 768}} {
		mx, my := c.ScreenToWorld(s[0], s[1])
		lng, lat := mercator.ToLngLat(mercator.Point{X: mx, Y: my})
		require.GreaterOrEqual(t, lng, b.Min.Lon()-1e-9)
		require.LessOrEqual(t, lng, b.Max.Lon()+1e-9)
		require.GreaterOrEqual(t, lat, b.Min.Lat()-1e-9)
		require.LessOrEqual(t, lat, b.Max.Lat()+1e-9)
	}
}

func TestBounds_OverApproximatesWhenPitched(t *testing.T) {
	c := testCamera()
	flat := c.Bounds()

	c.SetPitch(60)
	pitched := c.Bounds()

	// Pitching tips the far edge outward; the planned area must grow,
	// never shrink below the flat footprint.
	require.LessOrEqual(t, pitched.Min.Lon(), flat.Min.Lon()+1e-9)
	require.GreaterOrEqual(t, pitched.Max.Lon(), flat.Max.Lon()-1e-9)
	require.GreaterOrEqual(t, pitched.Max.Lat(), flat.Max.Lat()-1e-9)
}

func TestWorldToScreen_BehindCameraSentinel(t *testing.T) {
	c := testCamera()
	c.SetPitch(60)

	// A point far behind the pitched camera must not produce a fake
	// on-screen position.
	mx, my := c.Center()
	sx, sy := c.WorldToScreen(mx, my+0.4)
	onScreen := sx >= 0 && sx <= 1024 && sy >= 0 && sy <= 768
	require.False(t, onScreen && sx != OffscreenSentinel && sy != OffscreenSentinel,
		"behind-camera point projected on screen at (%v,%v)", sx, sy)
}

func TestResize(t *testing.T) {
	c := testCamera()
	c.Resize(2048, 1536)
	w, h := c.Viewport()
	require.Equal(t, 2048, w)
	require.Equal(t, 1536, h)

	// Center stays centered after resize.
	mx, my := c.Center()
	sx, sy := c.WorldToScreen(mx, my)
	require.InDelta(t, 1024, sx, 1e-6)
	require.InDelta(t, 768, sy, 1e-6)
}

func TestStateComparable(t *testing.T) {
	a := testCamera()
	b := testCamera()
	require.Equal(t, a.State(), b.State())

	b.Pan(1, 0)
	require.NotEqual(t, a.State(), b.State())
}

func TestAltitudeMatchesFov(t *testing.T) {
	c := testCamera()
	want := 384.0 / math.Tan(mgl64.DegToRad(30))
	require.InDelta(t, want, c.Altitude(), 1e-9)
}
