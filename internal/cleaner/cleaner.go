// Package cleaner removes printed text from captured manga regions.
//
// Two strategies implement Cleaner: Classical thresholds dark pixels and fills
// them with OpenCV's Telea inpainting, Neural builds a richer text mask and
// hands pixel synthesis to an external Inpainter. The strategy is chosen once
// at startup with New and shared read-only between requests.
package cleaner

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Mode selects a cleaning strategy.
type Mode string

const (
	ModeOpenCV Mode = "opencv"
	ModeLama   Mode = "lama"
)

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOpenCV:
		return ModeOpenCV, nil
	case ModeLama:
		return ModeLama, nil
	}
	return "", fmt.Errorf("unknown cleaner mode %q (want %q or %q)", s, ModeOpenCV, ModeLama)
}

// Model names reported by the status endpoint.
const (
	ModelNameOpenCV = "opencv-telea"
	ModelNameLama   = "anime-big-lama"
)

// Cleaner removes text from an opaque image and returns a new image of the
// same size. Implementations must be safe for concurrent use.
type Cleaner interface {
	// Name identifies the strategy's model.
	Name() string

	// Clean returns a cleaned copy of img. img is not modified.
	Clean(ctx context.Context, img *image.RGBA) (*image.RGBA, error)

	// WithThreshold returns a cleaner that treats pixels at or below
	// threshold (0-255) as text.
	WithThreshold(threshold int) Cleaner
}

// Inpainter reconstructs the pixels of rgb where mask is nonzero. The output
// has the same size as the input. Callers pad inputs to the size multiple the
// backend requires.
type Inpainter interface {
	Inpaint(ctx context.Context, rgb *image.RGBA, mask *image.Gray) (*image.RGBA, error)
}

// Options configures both strategies.
type Options struct {
	// Threshold is the default text threshold (0-255).
	Threshold int

	// DilateIterations grows the text mask with a 3x3 kernel to absorb
	// anti-aliasing halos.
	DilateIterations int

	// InpaintRadius is the Telea neighbourhood radius in pixels.
	InpaintRadius int

	// PadMultiple is the size multiple the Inpainter requires.
	PadMultiple int

	// Inpainter is required for ModeLama.
	Inpainter Inpainter
}

// DefaultOptions returns the tuned defaults for manga pages.
func DefaultOptions() Options {
	return Options{
		Threshold:        200,
		DilateIterations: 1,
		InpaintRadius:    3,
		PadMultiple:      8,
	}
}

// New builds the cleaner for mode.
func New(mode Mode, opts Options) (Cleaner, error) {
	if opts.DilateIterations < 0 {
		return nil, fmt.Errorf("dilate iterations must be >= 0, got %d", opts.DilateIterations)
	}
	switch mode {
	case ModeOpenCV:
		if opts.InpaintRadius <= 0 {
			return nil, fmt.Errorf("inpaint radius must be > 0, got %d", opts.InpaintRadius)
		}
		return NewClassical(opts), nil
	case ModeLama:
		if opts.Inpainter == nil {
			return nil, fmt.Errorf("cleaner mode %q requires an inpainter", mode)
		}
		if opts.PadMultiple <= 0 {
			return nil, fmt.Errorf("pad multiple must be > 0, got %d", opts.PadMultiple)
		}
		return NewNeural(opts.Inpainter, opts), nil
	}
	return nil, fmt.Errorf("unknown cleaner mode %q", mode)
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()*4], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}
