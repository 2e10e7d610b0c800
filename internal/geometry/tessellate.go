package geometry

import (
	"errors"
	"math"
)

// VertexCombiner is invoked whenever the tessellator synthesizes a vertex
// that was not part of the input rings (hole bridges, intersection
// splits). Even-odd winding makes the position alone sufficient, so the
// renderer installs NopCombiner; callers carrying per-vertex attributes
// can blend them here.
type VertexCombiner interface {
	Combine(x, y float64)
}

// NopCombiner ignores synthesized vertices.
type NopCombiner struct{}

// Combine implements VertexCombiner.
func (NopCombiner) Combine(float64, float64) {}

// ErrDegenerate reports input whose rings collapse to nothing drawable.
var ErrDegenerate = errors.New("geometry: degenerate polygon")

// Tessellator triangulates cleaned polygon rings with even-odd winding.
// Rings whose orientation opposes the first ring are treated as holes of
// the preceding exterior ring, matching MVT ring ordering. The zero value
// is not usable; create with NewTessellator. A Tessellator is reusable
// but not safe for concurrent use.
type Tessellator struct {
	comb VertexCombiner

	verts  []float64
	index  []uint32
	lookup map[[2]float64]uint32
}

// NewTessellator creates a tessellator with the given combiner.
// A nil combiner defaults to NopCombiner.
func NewTessellator(comb VertexCombiner) *Tessellator {
	if comb == nil {
		comb = NopCombiner{}
	}
	return &Tessellator{comb: comb}
}

// Tessellate triangulates the ring set and returns a deduplicated vertex
// pool (x,y pairs) plus a triangle index list. Rings must already be
// cleaned (CleanRing). Self-intersecting rings are split at their
// crossing points: each computed intersection vertex goes through the
// combiner and joins the vertex pool, and the resulting simple loops are
// clipped independently.
func (t *Tessellator) Tessellate(rings [][]Point) ([]float64, []uint32, error) {
	t.reset()

	var outer []Point
	var holes [][]Point
	var outerSign float64

	flushGroup := func() {
		if outer != nil {
			t.tessellateGroup(outer, holes)
		}
		outer, holes = nil, nil
	}

	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		sign := math.Copysign(1, signedArea(ring))
		switch {
		case outer == nil:
			outer, outerSign = ring, sign
		case sign == outerSign:
			// Same orientation as the first ring: a new exterior.
			flushGroup()
			outer = ring
		default:
			holes = append(holes, ring)
		}
	}
	flushGroup()

	if len(t.index) == 0 {
		return nil, nil, ErrDegenerate
	}
	return t.verts, t.index, nil
}

func (t *Tessellator) reset() {
	t.verts = t.verts[:0]
	t.index = t.index[:0]
	t.lookup = make(map[[2]float64]uint32)
}

// tessellateGroup resolves self-intersections, bridges the holes into
// the exterior and ear-clips the resulting simple polygons.
func (t *Tessellator) tessellateGroup(outer []Point, holes [][]Point) {
	loops := t.resolveSelfIntersections(outer)
	if len(loops) == 0 {
		return
	}

	// The largest loop carries the holes; sibling loops produced by a
	// split fill on their own.
	carrier := 0
	for i, loop := range loops {
		if math.Abs(signedArea(loop)) > math.Abs(signedArea(loops[carrier])) {
			carrier = i
		}
	}
	for i, loop := range loops {
		if i != carrier {
			t.clipLoop(loop)
		}
	}

	poly := loops[carrier]
	for _, hole := range holes {
		for _, hl := range t.resolveSelfIntersections(hole) {
			poly = t.bridgeHole(poly, hl)
		}
	}
	t.clipLoop(poly)
}

// clipLoop normalizes a loop to counter-clockwise and ear-clips it.
func (t *Tessellator) clipLoop(poly []Point) {
	if len(poly) < 3 {
		return
	}
	// Work on a y-up counter-clockwise polygon so the convexity test has
	// one sign.
	if signedArea(poly) < 0 {
		reversed := make([]Point, len(poly))
		for i, p := range poly {
			reversed[len(poly)-1-i] = p
		}
		poly = reversed
	}
	t.earClip(poly)
}

// resolveSelfIntersections splits a ring at every proper edge crossing.
// Each crossing point is a synthesized vertex: it is handed to the
// combiner and spliced into both edges, after which the ring decomposes
// into simple loops at its repeated vertices. A ring with no crossings
// comes back as a single loop.
func (t *Tessellator) resolveSelfIntersections(ring []Point) [][]Point {
	pts := ring

	// Each pass removes one crossing; the cap guards against float
	// near-misses reintroducing one forever.
	maxPasses := 4 * len(ring)
	for pass := 0; pass < maxPasses; pass++ {
		i, j, p, found := firstCrossing(pts)
		if !found {
			break
		}
		t.comb.Combine(p.X, p.Y)

		split := make([]Point, 0, len(pts)+2)
		split = append(split, pts[:i+1]...)
		split = append(split, p)
		split = append(split, pts[i+1:j+1]...)
		split = append(split, p)
		split = append(split, pts[j+1:]...)
		pts = split
	}

	return splitLoops(pts)
}

// firstCrossing finds the first pair of non-adjacent edges that properly
// intersect and returns their indices plus the intersection point.
func firstCrossing(pts []Point) (int, int, Point, bool) {
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // adjacent through the wrap
			}
			c, d := pts[j], pts[(j+1)%n]
			if segmentsIntersect(a, b, c, d) {
				return i, j, intersectionPoint(a, b, c, d), true
			}
		}
	}
	return 0, 0, Point{}, false
}

// intersectionPoint computes where segment a-b crosses segment c-d.
// Callers guarantee a proper intersection, so the denominator is
// nonzero.
func intersectionPoint(a, b, c, d Point) Point {
	rx, ry := b.X-a.X, b.Y-a.Y
	sx, sy := d.X-c.X, d.Y-c.Y
	denom := rx*sy - ry*sx
	u := ((c.X-a.X)*sy - (c.Y-a.Y)*sx) / denom
	return Point{X: a.X + u*rx, Y: a.Y + u*ry}
}

// splitLoops walks a ring and peels off a simple loop every time the
// walk returns to a vertex already on the path.
func splitLoops(pts []Point) [][]Point {
	var loops [][]Point
	path := make([]Point, 0, len(pts))

	for _, p := range pts {
		if k := indexOfPoint(path, p); k >= 0 {
			loop := append([]Point(nil), path[k:]...)
			if len(loop) >= 3 {
				loops = append(loops, loop)
			}
			path = path[:k+1]
			continue
		}
		path = append(path, p)
	}
	if len(path) >= 3 {
		loops = append(loops, path)
	}
	return loops
}

func indexOfPoint(pts []Point, p Point) int {
	for i, q := range pts {
		if samePoint(q, p) {
			return i
		}
	}
	return -1
}

// bridgeHole splices a hole ring into the polygon through a two-way
// bridge between the hole's rightmost vertex and a visible polygon
// vertex. The two duplicated bridge endpoints are synthesized vertices.
func (t *Tessellator) bridgeHole(poly, hole []Point) []Point {
	h := rightmostIndex(hole)

	// Prefer a polygon vertex the bridge can reach without crossing an
	// edge; fall back to the nearest vertex when the polygon already
	// self-intersects.
	best := -1
	bestDist := math.Inf(1)
	for i, p := range poly {
		d := dist2(p, hole[h])
		if d >= bestDist {
			continue
		}
		if segmentCrossesRing(hole[h], p, poly) {
			continue
		}
		best, bestDist = i, d
	}
	if best == -1 {
		for i, p := range poly {
			if d := dist2(p, hole[h]); d < bestDist {
				best, bestDist = i, d
			}
		}
	}

	out := make([]Point, 0, len(poly)+len(hole)+2)
	out = append(out, poly[:best+1]...)
	for k := 0; k < len(hole); k++ {
		out = append(out, hole[(h+k)%len(hole)])
	}
	// Close the bridge with duplicates of both endpoints.
	out = append(out, hole[h], poly[best])
	out = append(out, poly[best+1:]...)

	t.comb.Combine(hole[h].X, hole[h].Y)
	t.comb.Combine(poly[best].X, poly[best].Y)

	return out
}

// earClip triangulates a counter-clockwise simple polygon. Crossings
// are already resolved upstream; if float noise still leaves no clean
// ear, the most convex remaining vertex is clipped anyway so the loop
// always terminates.
func (t *Tessellator) earClip(poly []Point) {
	n := len(poly)
	if n < 3 {
		return
	}

	work := make([]int, n)
	for i := range work {
		work[i] = i
	}

	for len(work) > 3 {
		ear := -1
		for i := range work {
			if t.isEar(poly, work, i) {
				ear = i
				break
			}
		}
		if ear == -1 {
			ear = mostConvex(poly, work)
		}

		prev := work[(ear-1+len(work))%len(work)]
		cur := work[ear]
		next := work[(ear+1)%len(work)]
		t.emit(poly[prev], poly[cur], poly[next])

		work = append(work[:ear], work[ear+1:]...)
	}

	t.emit(poly[work[0]], poly[work[1]], poly[work[2]])
}

func (t *Tessellator) isEar(poly []Point, work []int, i int) bool {
	prev := poly[work[(i-1+len(work))%len(work)]]
	cur := poly[work[i]]
	next := poly[work[(i+1)%len(work)]]

	if cross(prev, cur, next) <= 0 {
		return false // reflex or collinear
	}

	for _, w := range work {
		p := poly[w]
		if samePoint(p, prev) || samePoint(p, cur) || samePoint(p, next) {
			continue
		}
		if pointInTriangle(p, prev, cur, next) {
			return false
		}
	}
	return true
}

func (t *Tessellator) emit(a, b, c Point) {
	// Degenerate slivers produced by forced ears are dropped.
	if math.Abs(cross(a, b, c)) <= epsilon {
		return
	}
	t.index = append(t.index, t.addVertex(a), t.addVertex(b), t.addVertex(c))
}

func (t *Tessellator) addVertex(p Point) uint32 {
	key := [2]float64{p.X, p.Y}
	if i, ok := t.lookup[key]; ok {
		return i
	}
	i := uint32(len(t.verts) / 2)
	t.verts = append(t.verts, p.X, p.Y)
	t.lookup[key] = i
	return i
}

func mostConvex(poly []Point, work []int) int {
	best, bestCross := 0, math.Inf(-1)
	for i := range work {
		prev := poly[work[(i-1+len(work))%len(work)]]
		cur := poly[work[i]]
		next := poly[work[(i+1)%len(work)]]
		if c := cross(prev, cur, next); c > bestCross {
			best, bestCross = i, c
		}
	}
	return best
}

func rightmostIndex(ring []Point) int {
	best := 0
	for i, p := range ring {
		if p.X > ring[best].X {
			best = i
		}
	}
	return best
}

func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func dist2(a, b Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

func pointInTriangle(p, a, b, c Point) bool {
	d1 := cross(p, a, b)
	d2 := cross(p, b, c)
	d3 := cross(p, c, a)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// segmentCrossesRing reports whether segment a-b properly intersects any
// edge of the ring, ignoring edges that share an endpoint with it.
func segmentCrossesRing(a, b Point, ring []Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		p, q := ring[i], ring[(i+1)%n]
		if samePoint(p, a) || samePoint(p, b) || samePoint(q, a) || samePoint(q, b) {
			continue
		}
		if segmentsIntersect(a, b, p, q) {
			return true
		}
	}
	return false
}

func segmentsIntersect(a, b, c, d Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
