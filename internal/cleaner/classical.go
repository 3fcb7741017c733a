package cleaner

import (
	"context"
	"fmt"
	"image"

	imgutil "manga-patcher/internal/image"

	"gocv.io/x/gocv"
)

// Classical removes dark text with a global threshold and Telea inpainting.
type Classical struct {
	threshold        int
	dilateIterations int
	inpaintRadius    int
}

// NewClassical creates a classical cleaner.
func NewClassical(opts Options) *Classical {
	return &Classical{
		threshold:        opts.Threshold,
		dilateIterations: opts.DilateIterations,
		inpaintRadius:    opts.InpaintRadius,
	}
}

// Name implements Cleaner.
func (c *Classical) Name() string {
	return ModelNameOpenCV
}

// WithThreshold implements Cleaner.
func (c *Classical) WithThreshold(threshold int) Cleaner {
	cp := *c
	cp.threshold = threshold
	return &cp
}

// Clean implements Cleaner.
func (c *Classical) Clean(ctx context.Context, img *image.RGBA) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imgutil.RGBToMat(img)
	if err != nil {
		return nil, fmt.Errorf("classical clean: %w", err)
	}
	defer src.Close()

	mask := c.TextMask(src)
	defer mask.Close()

	// Nothing dark enough to be text.
	if gocv.CountNonZero(mask) == 0 {
		return cloneRGBA(img), nil
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Inpaint(src, mask, &dst, float32(c.inpaintRadius), gocv.Telea)

	out, err := imgutil.MatToRGB(dst)
	if err != nil {
		return nil, fmt.Errorf("classical clean: %w", err)
	}
	return out, nil
}

// TextMask thresholds a BGR image: pixels at or below the threshold become
// 255, then the mask is dilated. The caller closes the result.
func (c *Classical) TextMask(src gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, float32(c.threshold), 255, gocv.ThresholdBinaryInv)

	return dilate(binary, c.dilateIterations)
}
