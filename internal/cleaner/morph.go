package cleaner

import (
	"image"

	"gocv.io/x/gocv"
)

// textKernel is the 3x3 rectangular structuring element used for every
// morphology step.
func textKernel() gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
}

// dilate returns src dilated iterations times. src is not modified.
func dilate(src gocv.Mat, iterations int) gocv.Mat {
	kernel := textKernel()
	defer kernel.Close()

	out := src.Clone()
	for i := 0; i < iterations; i++ {
		next := gocv.NewMat()
		gocv.Dilate(out, &next, kernel)
		out.Close()
		out = next
	}
	return out
}

// morph applies op rounds times. src is not modified.
func morph(src gocv.Mat, op gocv.MorphType, rounds int) gocv.Mat {
	kernel := textKernel()
	defer kernel.Close()

	out := src.Clone()
	for i := 0; i < rounds; i++ {
		next := gocv.NewMat()
		gocv.MorphologyEx(out, &next, op, kernel)
		out.Close()
		out = next
	}
	return out
}
