package geometry

import (
	"gonum.org/v1/gonum/floats"
)

// MinPolygonPoints is the smallest number of vertices that encloses an area.
const MinPolygonPoints = 3

// Polygon is an ordered list of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Polygon []Point2D

// Valid reports whether the polygon has enough vertices to enclose an area.
func (p Polygon) Valid() bool {
	return len(p) >= MinPolygonPoints
}

// Finite reports whether every vertex has finite coordinates.
func (p Polygon) Finite() bool {
	for _, pt := range p {
		if !pt.IsFinite() {
			return false
		}
	}
	return true
}

// Rounded returns a copy with every vertex snapped to the nearest pixel.
func (p Polygon) Rounded() Polygon {
	out := make(Polygon, len(p))
	for i, pt := range p {
		out[i] = pt.Round().ToFloat()
	}
	return out
}

// Bounds computes the axis-aligned bounding box of the vertices.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	xs := make([]float64, len(p))
	ys := make([]float64, len(p))
	for i, pt := range p {
		xs[i] = pt.X
		ys[i] = pt.Y
	}
	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Contains tests if a point is inside the polygon using ray casting, which
// implements the even-odd fill rule: regions of a self-intersecting polygon
// crossed an even number of times are outside.
func (p Polygon) Contains(pt Point2D) bool {
	if len(p) < MinPolygonPoints {
		return false
	}

	inside := false
	n := len(p)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := p[i], p[j]

		// Check if ray from pt going right intersects edge pi-pj
		if ((pi.Y > pt.Y) != (pj.Y > pt.Y)) &&
			(pt.X < (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}
