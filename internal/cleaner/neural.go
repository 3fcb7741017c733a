package cleaner

import (
	"context"
	"fmt"
	"image"
	"image/color"

	imgutil "manga-patcher/internal/image"

	"gocv.io/x/gocv"
)

// Mask construction parameters for the neural cleaner.
const (
	adaptiveBlockSize = 11
	adaptiveC         = 2
	cannyLow          = 50
	cannyHigh         = 150
	closeRounds       = 2
	openRounds        = 1
)

// Neural builds a text mask with OpenCV and delegates reconstruction to an
// external inpainting model.
type Neural struct {
	inpainter        Inpainter
	threshold        int
	dilateIterations int
	padMultiple      int
}

// NewNeural creates a neural cleaner around inp.
func NewNeural(inp Inpainter, opts Options) *Neural {
	pad := opts.PadMultiple
	if pad <= 0 {
		pad = 1
	}
	return &Neural{
		inpainter:        inp,
		threshold:        opts.Threshold,
		dilateIterations: opts.DilateIterations,
		padMultiple:      pad,
	}
}

// Name implements Cleaner.
func (n *Neural) Name() string {
	return ModelNameLama
}

// WithThreshold implements Cleaner. The inpainter is shared, not copied.
func (n *Neural) WithThreshold(threshold int) Cleaner {
	cp := *n
	cp.threshold = threshold
	return &cp
}

// Clean implements Cleaner.
func (n *Neural) Clean(ctx context.Context, img *image.RGBA) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imgutil.RGBToMat(img)
	if err != nil {
		return nil, fmt.Errorf("neural clean: %w", err)
	}
	defer src.Close()

	maskMat := n.TextMask(src)
	defer maskMat.Close()

	if gocv.CountNonZero(maskMat) == 0 {
		return cloneRGBA(img), nil
	}

	mask, err := imgutil.MatToGray(maskMat)
	if err != nil {
		return nil, fmt.Errorf("neural clean: %w", err)
	}
	return n.InpaintMask(ctx, img, mask)
}

// TextMask combines adaptive thresholding, global thresholding and Canny
// edges, closes twice, opens once and dilates. The caller closes the result.
func (n *Neural) TextMask(src gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	adaptive := gocv.NewMat()
	defer adaptive.Close()
	gocv.AdaptiveThreshold(gray, &adaptive, 255, gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinaryInv, adaptiveBlockSize, adaptiveC)

	global := gocv.NewMat()
	defer global.Close()
	gocv.Threshold(gray, &global, float32(n.threshold), 255, gocv.ThresholdBinaryInv)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, cannyLow, cannyHigh)

	combined := gocv.NewMat()
	defer combined.Close()
	gocv.BitwiseOr(adaptive, global, &combined)

	withEdges := gocv.NewMat()
	defer withEdges.Close()
	gocv.BitwiseOr(combined, edges, &withEdges)

	closed := morph(withEdges, gocv.MorphClose, closeRounds)
	defer closed.Close()

	opened := morph(closed, gocv.MorphOpen, openRounds)
	defer opened.Close()

	return dilate(opened, n.dilateIterations)
}

// InpaintMask pads img and mask with reflected borders up to the inpainter's
// size multiple, runs the inpainter and crops the result back to img's size.
func (n *Neural) InpaintMask(ctx context.Context, img *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	size := img.Bounds().Size()
	if mask.Bounds().Size() != size {
		return nil, fmt.Errorf("mask size %v does not match image size %v", mask.Bounds().Size(), size)
	}

	paddedImg, paddedMask, err := n.pad(img, mask)
	if err != nil {
		return nil, err
	}

	result, err := n.inpainter.Inpaint(ctx, paddedImg, paddedMask)
	if err != nil {
		return nil, fmt.Errorf("inpaint: %w", err)
	}
	if result.Bounds().Size() != paddedImg.Bounds().Size() {
		return nil, fmt.Errorf("inpaint returned %v, want %v",
			result.Bounds().Size(), paddedImg.Bounds().Size())
	}

	return crop(result, size.X, size.Y), nil
}

// PadAmount returns how many pixels must be added to reach the next multiple.
func (n *Neural) PadAmount(v int) int {
	return (n.padMultiple - v%n.padMultiple) % n.padMultiple
}

func (n *Neural) pad(img *image.RGBA, mask *image.Gray) (*image.RGBA, *image.Gray, error) {
	size := img.Bounds().Size()
	bottom, right := n.PadAmount(size.Y), n.PadAmount(size.X)
	if bottom == 0 && right == 0 {
		return img, mask, nil
	}

	srcMat, err := imgutil.RGBToMat(img)
	if err != nil {
		return nil, nil, err
	}
	defer srcMat.Close()
	maskMat, err := imgutil.GrayToMat(mask)
	if err != nil {
		return nil, nil, err
	}
	defer maskMat.Close()

	paddedSrc := gocv.NewMat()
	defer paddedSrc.Close()
	gocv.CopyMakeBorder(srcMat, &paddedSrc, 0, bottom, 0, right, gocv.BorderReflect, color.RGBA{})

	paddedMask := gocv.NewMat()
	defer paddedMask.Close()
	gocv.CopyMakeBorder(maskMat, &paddedMask, 0, bottom, 0, right, gocv.BorderReflect, color.RGBA{})

	outImg, err := imgutil.MatToRGB(paddedSrc)
	if err != nil {
		return nil, nil, err
	}
	outMask, err := imgutil.MatToGray(paddedMask)
	if err != nil {
		return nil, nil, err
	}
	return outImg, outMask, nil
}

func crop(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	sub := img.SubImage(image.Rect(b.Min.X, b.Min.Y, b.Min.X+w, b.Min.Y+h)).(*image.RGBA)
	return cloneRGBA(sub)
}
