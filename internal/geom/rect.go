// Package geom holds the scene-space math shared by the engine, the
// rasterizer and the image placement code: points, axis-aligned rectangles
// and 2D affine matrices.
package geom

import "math"

// Epsilon is the tolerance used for floating point comparisons.
const Epsilon = 1e-9

// Point is a position in scene or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

// Mul scales both coordinates.
func (p Point) Mul(k float64) Point {
	return Point{p.X * k, p.Y * k}
}

// IsFinite reports whether neither coordinate is NaN or infinite.
func (p Point) IsFinite() bool {
	return IsFinite(p.X) && IsFinite(p.Y)
}

// NearlyEquals compares two points within Epsilon scaled by magnitude.
func (p Point) NearlyEquals(q Point) bool {
	return NearlyEqual(p.X, q.X) && NearlyEqual(p.Y, q.Y)
}

// Rect represents an axis-aligned bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains checks if a point is inside the rect. Edges are inclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// IsEmpty checks if the rect has zero or negative area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest rect containing both rects.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}

	minX := min(r.X, other.X)
	minY := min(r.Y, other.Y)
	maxX := max(r.X+r.Width, other.X+other.Width)
	maxY := max(r.Y+r.Height, other.Y+other.Height)

	return Rect{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

// Center returns the center point of the rect.
func (r Rect) Center() Point {
	return Point{r.X + r.Width/2, r.Y + r.Height/2}
}

// Translate returns the rect moved by d.
func (r Rect) Translate(d Point) Rect {
	r.X += d.X
	r.Y += d.Y
	return r
}

// IsFinite reports whether every component is a finite number.
func (r Rect) IsFinite() bool {
	return IsFinite(r.X) && IsFinite(r.Y) && IsFinite(r.Width) && IsFinite(r.Height)
}

// BoundsOf returns the axis-aligned bounding box of a set of points.
func BoundsOf(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// FitWithin returns the largest rect with the aspect ratio of
// naturalW x naturalH that fits inside box, centered in it.
// A degenerate natural size fills the box.
func FitWithin(naturalW, naturalH float64, box Rect) Rect {
	if naturalW <= 0 || naturalH <= 0 || box.IsEmpty() {
		return box
	}
	scale := math.Min(box.Width/naturalW, box.Height/naturalH)
	w, h := naturalW*scale, naturalH*scale
	c := box.Center()
	return Rect{
		X:      c.X - w/2,
		Y:      c.Y - h/2,
		Width:  w,
		Height: h,
	}
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NearlyEqual compares a and b with a relative tolerance for large values.
func NearlyEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= Epsilon {
		return true
	}
	return diff <= Epsilon*math.Max(math.Abs(a), math.Abs(b))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
