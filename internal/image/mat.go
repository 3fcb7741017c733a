package image

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// RGBToMat converts an RGBA image to a BGR gocv.Mat, ignoring alpha.
func RGBToMat(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), ErrEmptyImage
	}

	data := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		out := data[y*w*3:]
		for x := 0; x < w; x++ {
			out[x*3+0] = row[x*4+2] // B
			out[x*3+1] = row[x*4+1] // G
			out[x*3+2] = row[x*4+0] // R
		}
	}
	return ownedMat(h, w, gocv.MatTypeCV8UC3, data)
}

// GrayToMat converts a single-channel image to a CV_8UC1 Mat.
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), ErrEmptyImage
	}

	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(data[y*w:(y+1)*w], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return ownedMat(h, w, gocv.MatTypeCV8UC1, data)
}

// MatToRGB converts a BGR Mat to an opaque RGBA image.
func MatToRGB(mat gocv.Mat) (*image.RGBA, error) {
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("expected CV_8UC3 mat, got type %v", mat.Type())
	}
	data, err := continuousBytes(mat)
	if err != nil {
		return nil, err
	}

	w, h := mat.Cols(), mat.Rows()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		in := data[y*w*3:]
		for x := 0; x < w; x++ {
			row[x*4+0] = in[x*3+2] // R
			row[x*4+1] = in[x*3+1] // G
			row[x*4+2] = in[x*3+0] // B
			row[x*4+3] = 255
		}
	}
	return img, nil
}

// MatToGray converts a CV_8UC1 Mat to a Gray image.
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("expected CV_8UC1 mat, got type %v", mat.Type())
	}
	data, err := continuousBytes(mat)
	if err != nil {
		return nil, err
	}

	w, h := mat.Cols(), mat.Rows()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+w], data[y*w:(y+1)*w])
	}
	return img, nil
}

// ownedMat builds a Mat over data and clones it, since NewMatFromBytes
// shares the Go buffer.
func ownedMat(rows, cols int, typ gocv.MatType, data []byte) (gocv.Mat, error) {
	shared, err := gocv.NewMatFromBytes(rows, cols, typ, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %w", err)
	}
	defer shared.Close()
	return shared.Clone(), nil
}

// continuousBytes returns the raw pixel bytes of mat, cloning region views
// that are not laid out contiguously.
func continuousBytes(mat gocv.Mat) ([]byte, error) {
	if mat.Empty() {
		return nil, ErrEmptyImage
	}
	if mat.IsContinuous() {
		return mat.ToBytes(), nil
	}
	c := mat.Clone()
	defer c.Close()
	return c.ToBytes(), nil
}
