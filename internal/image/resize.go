package image

import (
	"image"

	"golang.org/x/image/draw"
)

// Resize scales img to width x height with Catmull-Rom resampling. The
// source is returned unchanged when it already has the target size.
func Resize(img *image.NRGBA, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
