package patch

import (
	"context"
	"errors"
	"fmt"
	"time"

	imgutil "manga-patcher/internal/image"
	"manga-patcher/internal/logger"
	"manga-patcher/pkg/geometry"
)

// Overlay is one encoded patch placed on the page.
type Overlay struct {
	// Image is the encoded patch. Its alpha channel is used when present.
	Image []byte

	// X and Y are the top-left placement, rounded to whole pixels.
	X float64
	Y float64

	// Width and Height resize the patch when both are set.
	Width  *int
	Height *int

	// Err is set when the caller could not extract Image from its
	// transport encoding. The overlay is skipped with this reason.
	Err error
}

// MergeRequest is a page and the overlays to apply in order.
type MergeRequest struct {
	Page     []byte
	Overlays []Overlay
}

// SkippedOverlay records an overlay that was not applied.
type SkippedOverlay struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// MergeResult is the encoded page after merging.
type MergeResult struct {
	Data   []byte
	Format imgutil.Format

	Width  int
	Height int

	Applied int
	Skipped []SkippedOverlay
}

// Compositor merges patches onto pages. It holds no state and is safe for
// concurrent use.
type Compositor struct{}

// NewCompositor creates a compositor.
func NewCompositor() *Compositor {
	return &Compositor{}
}

// Merge blends every overlay onto the page in list order. Overlays that fail
// to decode, have invalid sizes or do not fit on the page are skipped and
// reported; only an undecodable page fails the merge.
func (c *Compositor) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	const op = "merge"
	log := logger.WithContext(ctx).With().Str("component", "merge").Logger()
	start := time.Now()

	page, format, err := imgutil.Decode(req.Page)
	if err != nil {
		return nil, newError(op, KindInput, fmt.Errorf("%w: %v", ErrDecode, err), "page")
	}

	comp := imgutil.NewComposite(page)
	dims := fmt.Sprintf("%dx%d", comp.Width(), comp.Height())
	result := &MergeResult{Width: comp.Width(), Height: comp.Height()}

	for i, ov := range req.Overlays {
		if err := ctx.Err(); err != nil {
			return nil, newError(op, KindInternal, err, dims)
		}
		if err := c.apply(comp, ov); err != nil {
			log.Warn().
				Err(err).
				Int("overlay", i).
				Str("page_size", dims).
				Msg("Skipping overlay")
			result.Skipped = append(result.Skipped, SkippedOverlay{Index: i, Reason: err.Error()})
			continue
		}
		result.Applied++
	}

	data, written, err := imgutil.EncodeBytes(comp.Render(), format)
	if err != nil {
		log.Error().Err(err).Str("stage", "encode").Str("page_size", dims).Msg("Encoding failed")
		return nil, newError(op, KindInternal, err, "encode "+dims)
	}
	result.Data = data
	result.Format = written

	log.Info().
		Str("page_size", dims).
		Str("source_format", string(format)).
		Str("output_format", string(written)).
		Int("applied", result.Applied).
		Int("skipped", len(result.Skipped)).
		Dur("duration", time.Since(start)).
		Msg("Patches merged")
	return result, nil
}

var errOverlaySize = errors.New("invalid overlay size")

// apply places one overlay. The target rectangle is bounds checked from the
// header alone, before the patch is decoded or resized.
func (c *Compositor) apply(comp *imgutil.Composite, ov Overlay) error {
	if ov.Err != nil {
		return ov.Err
	}
	cfg, _, err := imgutil.DecodeConfig(ov.Image)
	if err != nil {
		return err
	}

	w, h := cfg.Width, cfg.Height
	resize := ov.Width != nil && ov.Height != nil
	if resize {
		w, h = *ov.Width, *ov.Height
		if w <= 0 || h <= 0 {
			return fmt.Errorf("%w: %dx%d", errOverlaySize, w, h)
		}
	}

	pos := geometry.Point2D{X: ov.X, Y: ov.Y}
	if !pos.IsFinite() {
		return fmt.Errorf("invalid overlay position (%v,%v)", ov.X, ov.Y)
	}
	// Rounding is only defined for coordinates that fit in an int.
	if pos.X <= -0.5 || pos.Y <= -0.5 || pos.X >= float64(comp.Width()) || pos.Y >= float64(comp.Height()) {
		return fmt.Errorf("%w: %dx%d at (%v,%v) on %dx%d canvas", imgutil.ErrOutOfBounds,
			w, h, ov.X, ov.Y, comp.Width(), comp.Height())
	}
	target := geometry.RectInt{X: pos.Round().X, Y: pos.Round().Y, Width: w, Height: h}
	if !target.Within(comp.Width(), comp.Height()) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) on %dx%d canvas", imgutil.ErrOutOfBounds,
			w, h, target.X, target.Y, comp.Width(), comp.Height())
	}

	img, _, err := imgutil.Decode(ov.Image)
	if err != nil {
		return err
	}
	layer := imgutil.ToNRGBA(img)
	if resize {
		layer = imgutil.Resize(layer, w, h)
	}
	return comp.Place(layer, geometry.PointInt{X: target.X, Y: target.Y})
}
