package display

import "math"

// Rect describes a rectangular region in logical compositor coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Point is a position in logical compositor coordinates.
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair.
type Size struct {
	Width  int
	Height int
}

// Contains reports whether p lies inside r. The right and bottom edges are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= float64(r.X) && p.X < float64(r.X+r.Width) &&
		p.Y >= float64(r.Y) && p.Y < float64(r.Y+r.Height)
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Origin returns the top-left corner of r as a Point.
func (r Rect) Origin() Point {
	return Point{X: float64(r.X), Y: float64(r.Y)}
}

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// ToPhysical scales p by scale and rounds to the nearest pixel.
func (p Point) ToPhysical(scale float64) (int, int) {
	return int(math.Round(p.X * scale)), int(math.Round(p.Y * scale))
}
