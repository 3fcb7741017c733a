package geometry

import (
	"math"
	"testing"
)

func TestPolygonBounds(t *testing.T) {
	poly := Polygon{{X: 4, Y: 10}, {X: 20, Y: 2}, {X: 12, Y: 30}}
	got := poly.Bounds()
	want := Rect{X: 4, Y: 2, Width: 16, Height: 28}
	if got != want {
		t.Fatalf("Bounds() = %+v, want %+v", got, want)
	}
	if c := got.Center(); c.X != 12 || c.Y != 16 {
		t.Errorf("Center() = %+v, want (12,16)", c)
	}
}

func TestPolygonContains(t *testing.T) {
	square := Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	tests := []struct {
		name string
		pt   Point2D
		want bool
	}{
		{"center", Point2D{X: 5, Y: 5}, true},
		{"outside right", Point2D{X: 11, Y: 5}, false},
		{"outside above", Point2D{X: 5, Y: -1}, false},
		{"near corner", Point2D{X: 0.5, Y: 0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := square.Contains(tt.pt); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.pt, got, tt.want)
			}
		})
	}
}

func TestPolygonContainsEvenOdd(t *testing.T) {
	// Five-pointed star drawn by joining every second vertex of a pentagon.
	// The central pentagon is wound twice and is outside under even-odd.
	var star Polygon
	for i := 0; i < 5; i++ {
		a := -math.Pi/2 + float64(i*2)*2*math.Pi/5
		star = append(star, Point2D{X: 50 + 40*math.Cos(a), Y: 50 + 40*math.Sin(a)})
	}

	if star.Contains(Point2D{X: 50, Y: 50}) {
		t.Error("star centre should be outside under even-odd")
	}
	// Tip of the top arm.
	if !star.Contains(Point2D{X: 50, Y: 15}) {
		t.Error("star arm should be inside")
	}
}

func TestPolygonRounded(t *testing.T) {
	poly := Polygon{{X: 1.4, Y: 1.5}, {X: -0.5, Y: 2.6}, {X: 3, Y: 3}}
	got := poly.Rounded()
	want := Polygon{{X: 1, Y: 2}, {X: -1, Y: 3}, {X: 3, Y: 3}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vertex %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPolygonValidity(t *testing.T) {
	if (Polygon{{X: 0, Y: 0}, {X: 1, Y: 1}}).Valid() {
		t.Error("two points should not be valid")
	}
	if (Polygon{{X: 0, Y: 0}, {X: math.NaN(), Y: 1}, {X: 2, Y: 2}}).Finite() {
		t.Error("NaN vertex should not be finite")
	}
}

func TestRectIntWithin(t *testing.T) {
	tests := []struct {
		r    RectInt
		want bool
	}{
		{RectInt{X: 0, Y: 0, Width: 100, Height: 100}, true},
		{RectInt{X: 95, Y: 0, Width: 20, Height: 20}, false},
		{RectInt{X: -1, Y: 0, Width: 10, Height: 10}, false},
		{RectInt{X: 80, Y: 80, Width: 20, Height: 20}, true},
		{RectInt{X: math.MaxInt - 40, Y: 0, Width: 2000, Height: 20}, false},
		{RectInt{X: 0, Y: math.MaxInt, Width: 10, Height: math.MaxInt}, false},
		{RectInt{X: 10, Y: 10, Width: -5, Height: 5}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Within(100, 100); got != tt.want {
			t.Errorf("%+v.Within(100,100) = %v, want %v", tt.r, got, tt.want)
		}
	}
}
