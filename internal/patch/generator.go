// Package patch orchestrates translation patch generation and merging.
//
// Generator turns a captured page region into a cleaned, optionally
// polygon-masked patch with replacement text. Compositor blends patches back
// onto a full page in the page's own container format. Both are the only
// place where lower-level failures are classified into Kind values.
package patch

import (
	"context"
	"fmt"
	"image"
	"time"

	"manga-patcher/internal/cleaner"
	imgutil "manga-patcher/internal/image"
	"manga-patcher/internal/logger"
	"manga-patcher/internal/mask"
	"manga-patcher/internal/render"
	"manga-patcher/pkg/geometry"
)

// DefaultCleanerThreshold is used when a request does not set one.
const DefaultCleanerThreshold = 200

// Readiness reports whether the configured cleaner can serve requests.
type Readiness interface {
	CleanerReady() bool
}

// PatchRequest describes one patch to generate.
type PatchRequest struct {
	// Region is the encoded captured region.
	Region []byte

	// Lines are rendered as given, one per row.
	Lines []string

	Font  render.FontDescriptor
	Style render.Style

	// Polygon restricts the cleaned background when it has at least three
	// points. Shorter polygons are ignored.
	Polygon geometry.Polygon

	// AlphaBackground skips cleaning and draws text on a transparent canvas.
	AlphaBackground bool

	// CleanerThreshold is the text threshold (0-255) for this request.
	CleanerThreshold int
}

// Validate checks request values that do not depend on the region.
func (r PatchRequest) Validate() error {
	if r.CleanerThreshold < 0 || r.CleanerThreshold > 255 {
		return fmt.Errorf("%w: cleaner threshold %d outside 0-255", ErrInvalidRequest, r.CleanerThreshold)
	}
	if !r.Polygon.Finite() {
		return fmt.Errorf("%w: polygon has non-finite coordinates", ErrInvalidRequest)
	}
	if err := r.Font.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := r.Style.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// PatchResult is an encoded patch and its dimensions.
type PatchResult struct {
	// PNG holds the encoded patch.
	PNG []byte

	Width  int
	Height int

	// Channels is 4 for masked and alpha-background patches, 3 otherwise.
	Channels int
}

// Generator produces patches. It is safe for concurrent use.
type Generator struct {
	cleaner  cleaner.Cleaner
	renderer *render.Renderer
	ready    Readiness
}

// NewGenerator creates a generator. ready gates every request that needs
// cleaning.
func NewGenerator(c cleaner.Cleaner, r *render.Renderer, ready Readiness) *Generator {
	return &Generator{
		cleaner:  c,
		renderer: r,
		ready:    ready,
	}
}

// Generate runs decode, clean, mask, render and encode for one request.
func (g *Generator) Generate(ctx context.Context, req PatchRequest) (*PatchResult, error) {
	const op = "generate"
	log := logger.WithContext(ctx).With().Str("component", "patch").Logger()
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, newError(op, KindInput, err, "validate")
	}

	// Fail fast before decoding when the cleaner is needed but not loaded.
	if !req.AlphaBackground && (g.cleaner == nil || g.ready == nil || !g.ready.CleanerReady()) {
		return nil, newError(op, KindUnavailable, ErrNotReady, "clean")
	}

	region, format, err := imgutil.Decode(req.Region)
	if err != nil {
		return nil, newError(op, KindInput, fmt.Errorf("%w: %v", ErrDecode, err), "region")
	}
	w, h := region.Bounds().Dx(), region.Bounds().Dy()
	dims := fmt.Sprintf("%dx%d", w, h)

	masked := req.Polygon.Valid()

	anchor := geometry.Point2D{X: float64(w) / 2, Y: float64(h) / 2}
	if masked {
		anchor = req.Polygon.Rounded().Bounds().Center()
	}

	var canvas image.Image
	switch {
	case req.AlphaBackground:
		canvas = imgutil.Transparent(w, h)

	default:
		cleaned, err := g.cleaner.WithThreshold(req.CleanerThreshold).Clean(ctx, imgutil.ToRGB(region))
		if err != nil {
			log.Error().Err(err).Str("stage", "clean").Str("size", dims).Msg("Cleaning failed")
			return nil, newError(op, KindInternal, err, "clean "+dims)
		}
		canvas = cleaned

		if masked {
			m := mask.Build(req.Polygon, w, h)
			log.Debug().Str("size", dims).Float64("coverage", mask.Coverage(m)).Msg("Polygon mask built")
			withAlpha, err := imgutil.WithAlpha(cleaned, m)
			if err != nil {
				log.Error().Err(err).Str("stage", "mask").Str("size", dims).Msg("Masking failed")
				return nil, newError(op, KindInternal, err, "mask "+dims)
			}
			canvas = withAlpha
		}
	}

	out, err := g.renderer.Render(canvas, req.Lines, anchor, req.Font, req.Style)
	if err != nil {
		log.Error().Err(err).Str("stage", "render").Str("size", dims).Msg("Rendering failed")
		return nil, newError(op, KindInternal, err, "render "+dims)
	}

	data, err := imgutil.EncodePNG(out)
	if err != nil {
		log.Error().Err(err).Str("stage", "encode").Str("size", dims).Msg("Encoding failed")
		return nil, newError(op, KindInternal, err, "encode "+dims)
	}

	result := &PatchResult{
		PNG:      data,
		Width:    w,
		Height:   h,
		Channels: imgutil.Channels(out),
	}
	log.Info().
		Str("size", dims).
		Str("source_format", string(format)).
		Bool("alpha_background", req.AlphaBackground).
		Bool("masked", masked && !req.AlphaBackground).
		Int("lines", len(req.Lines)).
		Int("channels", result.Channels).
		Dur("duration", time.Since(start)).
		Msg("Patch generated")
	return result, nil
}
