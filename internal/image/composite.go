package image

import (
	"errors"
	"fmt"
	"image"

	"manga-patcher/pkg/geometry"
)

// ErrOutOfBounds is returned when a layer would extend past the canvas.
var ErrOutOfBounds = errors.New("layer out of bounds")

// Composite alpha-blends layers onto a 4-channel canvas in placement order.
type Composite struct {
	Canvas *image.NRGBA

	// Channels of the source image the canvas was built from.
	Channels int
}

// NewComposite copies base into a new NRGBA canvas.
func NewComposite(base image.Image) *Composite {
	return &Composite{
		Canvas:   ToNRGBA(base),
		Channels: Channels(base),
	}
}

// Width returns the canvas width in pixels.
func (c *Composite) Width() int {
	return c.Canvas.Bounds().Dx()
}

// Height returns the canvas height in pixels.
func (c *Composite) Height() int {
	return c.Canvas.Bounds().Dy()
}

// Place blends layer with its top-left corner at pos. A layer that does not
// fit entirely inside the canvas is rejected and the canvas is unchanged.
func (c *Composite) Place(layer *image.NRGBA, pos geometry.PointInt) error {
	lb := layer.Bounds()
	rect := geometry.RectInt{X: pos.X, Y: pos.Y, Width: lb.Dx(), Height: lb.Dy()}
	if !rect.Within(c.Width(), c.Height()) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) on %dx%d canvas", ErrOutOfBounds,
			rect.Width, rect.Height, rect.X, rect.Y, c.Width(), c.Height())
	}

	dst := c.Canvas
	for y := 0; y < rect.Height; y++ {
		srcRow := layer.Pix[layer.PixOffset(lb.Min.X, lb.Min.Y+y):]
		dstRow := dst.Pix[dst.PixOffset(rect.X, rect.Y+y):]
		for x := 0; x < rect.Width; x++ {
			blendPixel(dstRow[x*4:x*4+4], srcRow[x*4:x*4+4])
		}
	}
	return nil
}

// Render returns the canvas in the channel layout of the original base:
// opaque bases are flattened back to 3 channels.
func (c *Composite) Render() image.Image {
	if c.Channels == 3 {
		return Flatten(c.Canvas)
	}
	return c.Canvas
}

// blendPixel computes dst = a*src + (1-a)*dst on all four channels, where a
// is the source alpha.
func blendPixel(dst, src []uint8) {
	a := uint32(src[3])
	switch a {
	case 0:
		return
	case 255:
		copy(dst, src)
		return
	}
	inv := 255 - a
	for i := 0; i < 4; i++ {
		dst[i] = uint8((a*uint32(src[i]) + inv*uint32(dst[i]) + 127) / 255)
	}
}
