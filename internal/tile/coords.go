// Package tile provides slippy-map tile coordinate algebra for the
// Web Mercator quadtree.
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Coords identifies a tile in the Web Mercator tile pyramid.
type Coords struct {
	X int // Tile column (0 to 2^zoom - 1, west to east)
	Y int // Tile row (0 to 2^zoom - 1, north to south)
	Z int // Zoom level
}

// New creates a Coords from x, y, z values.
func New(x, y, z int) Coords {
	return Coords{X: x, Y: y, Z: z}
}

// Key returns the cache key for this tile in "x/y/z" format.
func (c Coords) Key() string {
	return fmt.Sprintf("%d/%d/%d", c.X, c.Y, c.Z)
}

// String returns a human-readable representation of the tile coordinate.
func (c Coords) String() string {
	return c.Key()
}

// Valid reports whether the coordinate lies inside the pyramid.
func (c Coords) Valid() bool {
	if c.Z < 0 {
		return false
	}
	n := 1 << uint(c.Z)
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// Parent returns the containing tile one zoom level up.
// The parent of a z=0 tile is itself.
func (c Coords) Parent() Coords {
	if c.Z == 0 {
		return c
	}
	return Coords{X: c.X / 2, Y: c.Y / 2, Z: c.Z - 1}
}

// Children returns the four tiles covering this tile at z+1.
func (c Coords) Children() [4]Coords {
	return [4]Coords{
		{X: 2 * c.X, Y: 2 * c.Y, Z: c.Z + 1},
		{X: 2*c.X + 1, Y: 2 * c.Y, Z: c.Z + 1},
		{X: 2 * c.X, Y: 2*c.Y + 1, Z: c.Z + 1},
		{X: 2*c.X + 1, Y: 2*c.Y + 1, Z: c.Z + 1},
	}
}

// FromLngLat returns the tile containing the geographic point at the
// given zoom using the standard slippy-map formula.
func FromLngLat(lng, lat float64, z int) Coords {
	t := maptile.At(orb.Point{lng, lat}, maptile.Zoom(z))
	return clamp(Coords{X: int(t.X), Y: int(t.Y), Z: z})
}

// Bounds returns the geographic bounding box of the tile in WGS84.
// maxLat comes from the tile's own row and minLat from the row below,
// because Mercator y grows southward.
func (c Coords) Bounds() orb.Bound {
	n := math.Exp2(float64(c.Z))

	minLng := float64(c.X)/n*360.0 - 180.0
	maxLng := float64(c.X+1)/n*360.0 - 180.0
	minLat := rowToLat(float64(c.Y+1), n)
	maxLat := rowToLat(float64(c.Y), n)

	return orb.Bound{
		Min: orb.Point{minLng, minLat},
		Max: orb.Point{maxLng, maxLat},
	}
}

// rowToLat converts a fractional tile row to latitude.
func rowToLat(y, n float64) float64 {
	return 180.0 / math.Pi * math.Atan(math.Sinh(math.Pi*(1.0-2.0*y/n)))
}

// Span enumerates the rectangular block of tiles at zoom z covering the
// bounding box, expanded by buffer tiles on every side. Coordinates are
// clamped to the pyramid, so a span near the edge of the world shrinks
// rather than wrapping.
func Span(bbox orb.Bound, z, buffer int) []Coords {
	if z < 0 {
		z = 0
	}
	n := 1 << uint(z)

	min := FromLngLat(bbox.Min.Lon(), bbox.Max.Lat(), z) // north-west corner
	max := FromLngLat(bbox.Max.Lon(), bbox.Min.Lat(), z) // south-east corner

	minX := clampInt(min.X-buffer, 0, n-1)
	maxX := clampInt(max.X+buffer, 0, n-1)
	minY := clampInt(min.Y-buffer, 0, n-1)
	maxY := clampInt(max.Y+buffer, 0, n-1)

	tiles := make([]Coords, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, Coords{X: x, Y: y, Z: z})
		}
	}
	return tiles
}

func clamp(c Coords) Coords {
	n := 1 << uint(c.Z)
	c.X = clampInt(c.X, 0, n-1)
	c.Y = clampInt(c.Y, 0, n-1)
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
