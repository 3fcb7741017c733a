// Package render lays out and draws replacement text onto cleaned patches.
//
// Text is never wrapped or resized: the caller's line breaks and font size
// are authoritative. The block is centred line by line and its ink bounding
// box is centred on an anchor point. Outlines are produced by redrawing the
// block at every integer offset within the stroke width, which keeps the
// glyph metrics (and therefore the centring) identical to the unstroked text.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	imgutil "manga-patcher/internal/image"
	"manga-patcher/pkg/geometry"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// LineSpacing is the gap in pixels added between consecutive lines.
const LineSpacing = 4

// Style holds colours and outline settings.
type Style struct {
	TextColor   color.RGBA
	StrokeColor *color.RGBA
	StrokeWidth int
}

// Validate checks the stroke width.
func (s Style) Validate() error {
	if s.StrokeWidth < 0 {
		return fmt.Errorf("stroke width must be >= 0, got %d", s.StrokeWidth)
	}
	return nil
}

// HasStroke reports whether an outline is drawn.
func (s Style) HasStroke() bool {
	return s.StrokeColor != nil && s.StrokeWidth > 0
}

// Line is one laid out line. Dot is the baseline origin relative to the
// block origin.
type Line struct {
	Text    string
	Dot     geometry.Point2D
	Advance float64
}

// Block is a measured multi-line text block.
type Block struct {
	// Origin is where the block's (0,0) lands on the target image.
	Origin geometry.PointInt

	// Ink is the ink bounding box relative to the block origin.
	Ink geometry.Rect

	Lines []Line
}

// Layout measures lines with face and positions the block so the centre of
// its ink bounding box lands on anchor.
func Layout(face font.Face, lines []string, anchor geometry.Point2D) Block {
	metrics := face.Metrics()
	lineAdvance := metrics.Ascent + metrics.Descent + fixed.I(LineSpacing)

	advances := make([]fixed.Int26_6, len(lines))
	var widest fixed.Int26_6
	for i, text := range lines {
		advances[i] = font.MeasureString(face, text)
		if advances[i] > widest {
			widest = advances[i]
		}
	}

	block := Block{Lines: make([]Line, len(lines))}
	var ink fixed.Rectangle26_6
	haveInk := false
	for i, text := range lines {
		dot := fixed.Point26_6{
			X: (widest - advances[i]) / 2,
			Y: metrics.Ascent + lineAdvance*fixed.Int26_6(i),
		}
		block.Lines[i] = Line{
			Text:    text,
			Dot:     geometry.Point2D{X: fromFixed(dot.X), Y: fromFixed(dot.Y)},
			Advance: fromFixed(advances[i]),
		}

		b, _ := font.BoundString(face, text)
		if b.Empty() {
			continue
		}
		b = b.Add(dot)
		if !haveInk {
			ink, haveInk = b, true
		} else {
			ink = ink.Union(b)
		}
	}

	if haveInk {
		block.Ink = geometry.Rect{
			X:      fromFixed(ink.Min.X),
			Y:      fromFixed(ink.Min.Y),
			Width:  fromFixed(ink.Max.X - ink.Min.X),
			Height: fromFixed(ink.Max.Y - ink.Min.Y),
		}
	}
	block.Origin = geometry.PointInt{
		X: int(math.Round(anchor.X - block.Ink.Width/2 - block.Ink.X)),
		Y: int(math.Round(anchor.Y - block.Ink.Height/2 - block.Ink.Y)),
	}
	return block
}

// Renderer draws text with fonts from a registry. It is safe for concurrent
// use.
type Renderer struct {
	fonts *Fonts
}

// NewRenderer creates a renderer backed by fonts.
func NewRenderer(fonts *Fonts) *Renderer {
	return &Renderer{fonts: fonts}
}

// Fonts returns the font registry.
func (r *Renderer) Fonts() *Fonts {
	return r.fonts
}

// Render draws lines centred on anchor and returns a new image of the same
// size as base. Opaque bases produce an opaque *image.RGBA; bases with
// transparency produce an *image.NRGBA that keeps the base alpha, with text
// drawn at full opacity.
func (r *Renderer) Render(base image.Image, lines []string, anchor geometry.Point2D, fd FontDescriptor, style Style) (image.Image, error) {
	if err := fd.Validate(); err != nil {
		return nil, err
	}
	if err := style.Validate(); err != nil {
		return nil, err
	}

	opaque := imgutil.Channels(base) == 3
	if len(lines) == 0 {
		if opaque {
			return imgutil.ToRGB(base), nil
		}
		return imgutil.ToNRGBA(base), nil
	}

	// Lines may carry their own breaks.
	split := strings.Split(strings.Join(lines, "\n"), "\n")

	face := r.fonts.Face(fd)
	defer face.Close()

	block := Layout(face, split, anchor)

	dc := gg.NewContextForImage(base)
	dc.SetFontFace(face)

	if style.HasStroke() {
		stroke := *style.StrokeColor
		stroke.A = 255
		dc.SetColor(stroke)
		w := style.StrokeWidth
		for dx := -w; dx <= w; dx++ {
			for dy := -w; dy <= w; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				drawBlock(dc, block, dx, dy)
			}
		}
	}

	text := style.TextColor
	text.A = 255
	dc.SetColor(text)
	drawBlock(dc, block, 0, 0)

	if opaque {
		return dc.Image(), nil
	}
	return imgutil.ToNRGBA(dc.Image()), nil
}

func drawBlock(dc *gg.Context, b Block, dx, dy int) {
	ox := float64(b.Origin.X + dx)
	oy := float64(b.Origin.Y + dy)
	for _, line := range b.Lines {
		if line.Text == "" {
			continue
		}
		dc.DrawString(line.Text, ox+line.Dot.X, oy+line.Dot.Y)
	}
}

func fromFixed(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
