// Package mask rasterises polygons into single-channel coverage masks.
package mask

import (
	"image"

	"manga-patcher/pkg/geometry"
)

// Build returns a width x height mask that is 255 inside poly and 0
// elsewhere. Vertices are rounded to whole pixels first, a pixel is inside
// when its centre is (even-odd rule). Returns nil for polygons with fewer
// than three points.
func Build(poly geometry.Polygon, width, height int) *image.Gray {
	if !poly.Valid() || width <= 0 || height <= 0 {
		return nil
	}

	rounded := poly.Rounded()
	m := image.NewGray(image.Rect(0, 0, width, height))

	// Only scan the part of the canvas the polygon can touch.
	b := rounded.Bounds()
	x0 := clamp(int(b.X), 0, width)
	y0 := clamp(int(b.Y), 0, height)
	x1 := clamp(int(b.X+b.Width)+1, 0, width)
	y1 := clamp(int(b.Y+b.Height)+1, 0, height)

	for y := y0; y < y1; y++ {
		row := m.Pix[y*m.Stride:]
		for x := x0; x < x1; x++ {
			if rounded.Contains(geometry.Point2D{X: float64(x) + 0.5, Y: float64(y) + 0.5}) {
				row[x] = 255
			}
		}
	}
	return m
}

// Coverage returns the fraction of mask pixels that are nonzero.
func Coverage(m *image.Gray) float64 {
	if m == nil {
		return 0
	}
	b := m.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	set := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.GrayAt(x, y).Y != 0 {
				set++
			}
		}
	}
	return float64(set) / float64(total)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
