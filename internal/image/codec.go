// Package image provides raster decoding, encoding, format detection and
// alpha compositing for patches and pages.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is a raster container format as reported by image.Decode.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
)

// JPEGQuality is used for JPEG output and for the lossy fallback.
const JPEGQuality = 95

// ErrEmptyImage is returned for zero-length input or images with no pixels.
var ErrEmptyImage = errors.New("empty image")

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP bytes and reports the
// detected container format.
func Decode(data []byte) (image.Image, Format, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, Format(name), nil
}

// DecodeConfig reads only the header and reports the image size and
// container format.
func DecodeConfig(data []byte) (image.Config, Format, error) {
	if len(data) == 0 {
		return image.Config{}, "", ErrEmptyImage
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", ErrEmptyImage
	}
	return cfg, Format(name), nil
}

// Encode writes img in the requested format. Formats without an encoder fall
// back to JPEG at JPEGQuality; the format actually written is returned.
func Encode(w io.Writer, img image.Image, f Format) (Format, error) {
	var err error
	switch f {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		f = FormatJPEG
		err = jpeg.Encode(w, Flatten(img), &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return f, fmt.Errorf("failed to encode %s: %w", f, err)
	}
	return f, nil
}

// EncodeBytes is Encode into a new buffer.
func EncodeBytes(img image.Image, f Format) ([]byte, Format, error) {
	var buf bytes.Buffer
	written, err := Encode(&buf, img, f)
	if err != nil {
		return nil, written, err
	}
	return buf.Bytes(), written, nil
}

// EncodePNG encodes losslessly. Opaque RGBA images are written as 3-channel
// PNG, anything with transparency keeps its alpha channel.
func EncodePNG(img image.Image) ([]byte, error) {
	data, _, err := EncodeBytes(img, FormatPNG)
	return data, err
}

// Channels reports 4 when the image carries any transparency, 3 otherwise.
func Channels(img image.Image) int {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return 3
	}
	return 4
}

// ToNRGBA copies img into a non-premultiplied 4-channel buffer.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ToRGB copies the colour channels of img into an opaque buffer, discarding
// alpha without compositing.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 255
		}
	}
	return dst
}

// Flatten drops the alpha channel of an NRGBA image, keeping the stored
// colour values. Other image types are converted through ToRGB.
func Flatten(img image.Image) *image.RGBA {
	n, ok := img.(*image.NRGBA)
	if !ok {
		return ToRGB(img)
	}
	b := n.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):]
		row := dst.Pix[dst.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			row[x*4+0] = src[x*4+0]
			row[x*4+1] = src[x*4+1]
			row[x*4+2] = src[x*4+2]
			row[x*4+3] = 255
		}
	}
	return dst
}

// Transparent returns a fully transparent canvas.
func Transparent(width, height int) *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, width, height))
}

// WithAlpha combines the colour channels of rgb with mask as the alpha
// channel. Both must have the same size.
func WithAlpha(rgb *image.RGBA, mask *image.Gray) (*image.NRGBA, error) {
	if rgb.Bounds().Size() != mask.Bounds().Size() {
		return nil, fmt.Errorf("mask size %v does not match image size %v",
			mask.Bounds().Size(), rgb.Bounds().Size())
	}
	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := rgb.PixOffset(rgb.Rect.Min.X+x, rgb.Rect.Min.Y+y)
			d := dst.PixOffset(x, y)
			dst.Pix[d+0] = rgb.Pix[s+0]
			dst.Pix[d+1] = rgb.Pix[s+1]
			dst.Pix[d+2] = rgb.Pix[s+2]
			dst.Pix[d+3] = mask.GrayAt(mask.Rect.Min.X+x, mask.Rect.Min.Y+y).Y
		}
	}
	return dst, nil
}
