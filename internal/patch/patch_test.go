package patch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"manga-patcher/internal/cleaner"
	imgutil "manga-patcher/internal/image"
	"manga-patcher/internal/render"
	"manga-patcher/pkg/geometry"
)

type readyFlag bool

func (r readyFlag) CleanerReady() bool { return bool(r) }

// fakeCleaner paints the whole region with fill and records thresholds.
type fakeCleaner struct {
	fill       color.RGBA
	err        error
	threshold  int
	thresholds *[]int
}

func newFakeCleaner(fill color.RGBA) *fakeCleaner {
	return &fakeCleaner{fill: fill, thresholds: new([]int)}
}

func (f *fakeCleaner) Name() string { return "fake" }

func (f *fakeCleaner) WithThreshold(t int) cleaner.Cleaner {
	cp := *f
	cp.threshold = t
	return &cp
}

func (f *fakeCleaner) Clean(_ context.Context, img *image.RGBA) (*image.RGBA, error) {
	*f.thresholds = append(*f.thresholds, f.threshold)
	if f.err != nil {
		return nil, f.err
	}
	out := image.NewRGBA(img.Bounds())
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i+0], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = f.fill.R, f.fill.G, f.fill.B, 255
	}
	return out, nil
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encode(t *testing.T, img image.Image, f imgutil.Format) []byte {
	t.Helper()
	data, _, err := imgutil.EncodeBytes(img, f)
	if err != nil {
		t.Fatalf("encode %s: %v", f, err)
	}
	return data
}

func decode(t *testing.T, data []byte) (*image.NRGBA, imgutil.Format, int) {
	t.Helper()
	img, f, err := imgutil.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return imgutil.ToNRGBA(img), f, imgutil.Channels(img)
}

func newGenerator(t *testing.T, c cleaner.Cleaner, ready bool) *Generator {
	t.Helper()
	return NewGenerator(c, render.NewRenderer(render.NewFonts(t.TempDir())), readyFlag(ready))
}

func baseRequest(t *testing.T, w, h int) PatchRequest {
	return PatchRequest{
		Region:           encode(t, solid(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), imgutil.FormatPNG),
		Font:             render.FontDescriptor{Family: render.FamilyRegular, SizePx: 12},
		Style:            render.Style{TextColor: color.RGBA{A: 255}},
		CleanerThreshold: DefaultCleanerThreshold,
	}
}

func TestGenerateAlphaBackground(t *testing.T) {
	// Cleaner not ready: alpha background must not need it.
	g := newGenerator(t, newFakeCleaner(color.RGBA{}), false)
	req := baseRequest(t, 50, 30)
	req.AlphaBackground = true

	res, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Width != 50 || res.Height != 30 || res.Channels != 4 {
		t.Fatalf("result = %dx%d ch%d, want 50x30 ch4", res.Width, res.Height, res.Channels)
	}
	img, format, channels := decode(t, res.PNG)
	if format != imgutil.FormatPNG || channels != 4 {
		t.Errorf("encoded as %s with %d channels", format, channels)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			t.Fatalf("pixel %d has alpha %d, want fully transparent", i/4, img.Pix[i])
		}
	}
}

func TestGenerateAlphaBackgroundWithText(t *testing.T) {
	g := newGenerator(t, nil, false)
	req := baseRequest(t, 80, 40)
	req.AlphaBackground = true
	req.Lines = []string{"Hi"}

	res, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	img, _, _ := decode(t, res.PNG)
	if img.NRGBAAt(0, 0).A != 0 || img.NRGBAAt(79, 39).A != 0 {
		t.Error("area away from text must stay transparent")
	}
	drawn := false
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 255 {
			drawn = true
			break
		}
	}
	if !drawn {
		t.Error("no opaque text pixels")
	}
}

func TestGenerateOpaqueUsesThreshold(t *testing.T) {
	fc := newFakeCleaner(color.RGBA{G: 200, A: 255})
	g := newGenerator(t, fc, true)
	req := baseRequest(t, 20, 10)
	req.CleanerThreshold = 150

	res, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Channels != 3 {
		t.Errorf("channels = %d, want 3", res.Channels)
	}
	img, _, channels := decode(t, res.PNG)
	if channels != 3 {
		t.Errorf("encoded patch has %d channels, want 3", channels)
	}
	if got := img.NRGBAAt(5, 5); got != (color.NRGBA{G: 200, A: 255}) {
		t.Errorf("pixel = %v, want cleaned fill", got)
	}
	if len(*fc.thresholds) != 1 || (*fc.thresholds)[0] != 150 {
		t.Errorf("cleaner thresholds = %v, want [150]", *fc.thresholds)
	}
}

func TestGeneratePolygonMasksBackground(t *testing.T) {
	g := newGenerator(t, newFakeCleaner(color.RGBA{R: 10, G: 20, B: 30, A: 255}), true)
	req := baseRequest(t, 10, 10)
	req.Polygon = geometry.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10}}

	res, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Channels != 4 {
		t.Fatalf("channels = %d, want 4", res.Channels)
	}
	img, _, _ := decode(t, res.PNG)
	if got := img.NRGBAAt(5, 1); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("inside pixel = %v, want cleaned and opaque", got)
	}
	if got := img.NRGBAAt(0, 9).A; got != 0 {
		t.Errorf("outside pixel alpha = %d, want 0", got)
	}
}

func TestGenerateShortPolygonIsIgnored(t *testing.T) {
	g := newGenerator(t, newFakeCleaner(color.RGBA{R: 1, A: 255}), true)
	req := baseRequest(t, 10, 10)
	req.Polygon = geometry.Polygon{{X: 0, Y: 0}, {X: 10, Y: 10}}

	res, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Channels != 3 {
		t.Errorf("channels = %d, want 3 without masking", res.Channels)
	}
}

func TestGenerateErrors(t *testing.T) {
	boom := errors.New("opencv exploded")

	tests := []struct {
		name     string
		cleaner  cleaner.Cleaner
		ready    bool
		mutate   func(*PatchRequest)
		wantKind Kind
		wantErr  error
	}{
		{
			name:     "not ready",
			cleaner:  newFakeCleaner(color.RGBA{}),
			ready:    false,
			mutate:   func(*PatchRequest) {},
			wantKind: KindUnavailable,
			wantErr:  ErrNotReady,
		},
		{
			name:     "not ready checked before decode",
			cleaner:  newFakeCleaner(color.RGBA{}),
			ready:    false,
			mutate:   func(r *PatchRequest) { r.Region = []byte("not an image") },
			wantKind: KindUnavailable,
			wantErr:  ErrNotReady,
		},
		{
			name:     "undecodable region",
			cleaner:  newFakeCleaner(color.RGBA{}),
			ready:    true,
			mutate:   func(r *PatchRequest) { r.Region = []byte("not an image") },
			wantKind: KindInput,
			wantErr:  ErrDecode,
		},
		{
			name:     "threshold out of range",
			cleaner:  newFakeCleaner(color.RGBA{}),
			ready:    true,
			mutate:   func(r *PatchRequest) { r.CleanerThreshold = 300 },
			wantKind: KindInput,
			wantErr:  ErrInvalidRequest,
		},
		{
			name:     "negative stroke",
			cleaner:  newFakeCleaner(color.RGBA{}),
			ready:    true,
			mutate:   func(r *PatchRequest) { r.Style.StrokeWidth = -2 },
			wantKind: KindInput,
			wantErr:  ErrInvalidRequest,
		},
		{
			name:     "cleaner failure",
			cleaner:  &fakeCleaner{err: boom, thresholds: new([]int)},
			ready:    true,
			mutate:   func(*PatchRequest) {},
			wantKind: KindInternal,
			wantErr:  boom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, tt.cleaner, tt.ready)
			req := baseRequest(t, 8, 8)
			tt.mutate(&req)

			_, err := g.Generate(context.Background(), req)
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", KindOf(err), tt.wantKind)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func intp(v int) *int { return &v }

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func TestMergeOpaqueOverlayReplacesPage(t *testing.T) {
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page:     encode(t, solid(2, 2, blue), imgutil.FormatPNG),
		Overlays: []Overlay{{Image: encode(t, solid(2, 2, red), imgutil.FormatPNG)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	img, _, _ := decode(t, res.Data)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := img.NRGBAAt(x, y); got != red {
				t.Errorf("(%d,%d) = %v, want red", x, y, got)
			}
		}
	}
	if res.Applied != 1 || len(res.Skipped) != 0 {
		t.Errorf("applied=%d skipped=%v", res.Applied, res.Skipped)
	}
}

func TestMergeTransparentOverlayLeavesPage(t *testing.T) {
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page:     encode(t, solid(2, 2, blue), imgutil.FormatPNG),
		Overlays: []Overlay{{Image: encode(t, solid(2, 2, color.NRGBA{R: 255}), imgutil.FormatPNG)}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	img, _, _ := decode(t, res.Data)
	if got := img.NRGBAAt(1, 1); got != blue {
		t.Errorf("pixel = %v, want blue", got)
	}
}

func TestMergeSkipsOutOfBounds(t *testing.T) {
	page := solid(100, 100, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page: encode(t, page, imgutil.FormatPNG),
		Overlays: []Overlay{{
			Image: encode(t, solid(20, 20, red), imgutil.FormatPNG),
			X:     95,
			Y:     0,
		}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Index != 0 || res.Applied != 0 {
		t.Fatalf("skipped = %v applied = %d", res.Skipped, res.Applied)
	}
	img, _, _ := decode(t, res.Data)
	for i := range page.Pix {
		if img.Pix[i] != page.Pix[i] {
			t.Fatalf("page changed at byte %d", i)
		}
	}
}

func TestMergeKeepsPageFormat(t *testing.T) {
	page := solid(16, 12, blue)
	for _, f := range []imgutil.Format{imgutil.FormatPNG, imgutil.FormatJPEG, imgutil.FormatGIF, imgutil.FormatBMP, imgutil.FormatTIFF} {
		t.Run(string(f), func(t *testing.T) {
			res, err := NewCompositor().Merge(context.Background(), MergeRequest{Page: encode(t, page, f)})
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			_, got, _ := decode(t, res.Data)
			if got != f || res.Format != f {
				t.Errorf("output format = %s (reported %s), want %s", got, res.Format, f)
			}
			if res.Width != 16 || res.Height != 12 {
				t.Errorf("size = %dx%d", res.Width, res.Height)
			}
		})
	}
}

func TestMergeContinuesPastBadOverlay(t *testing.T) {
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page: encode(t, solid(10, 10, blue), imgutil.FormatPNG),
		Overlays: []Overlay{
			{Image: []byte("garbage")},
			{Image: encode(t, solid(2, 2, red), imgutil.FormatPNG), Width: intp(0), Height: intp(3)},
			{Image: encode(t, solid(2, 2, red), imgutil.FormatPNG), X: 4, Y: 4},
		},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Applied != 1 || len(res.Skipped) != 2 {
		t.Fatalf("applied=%d skipped=%v", res.Applied, res.Skipped)
	}
	if res.Skipped[0].Index != 0 || res.Skipped[1].Index != 1 {
		t.Errorf("skipped indexes = %v", res.Skipped)
	}
	img, _, _ := decode(t, res.Data)
	if img.NRGBAAt(5, 5) != red {
		t.Error("valid overlay was not applied")
	}
}

func TestMergeResizesAndRounds(t *testing.T) {
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page: encode(t, solid(10, 10, blue), imgutil.FormatPNG),
		Overlays: []Overlay{{
			Image:  encode(t, solid(2, 2, red), imgutil.FormatPNG),
			X:      0.6,
			Y:      1.4,
			Width:  intp(4),
			Height: intp(4),
		}},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	img, _, _ := decode(t, res.Data)
	// Placed at (1,1), 4x4.
	if img.NRGBAAt(1, 1) != red || img.NRGBAAt(4, 4) != red {
		t.Error("resized overlay not covering (1,1)-(4,4)")
	}
	if img.NRGBAAt(0, 0) != blue || img.NRGBAAt(5, 5) != blue {
		t.Error("overlay extends past its resized rectangle")
	}
}

func TestMergeLaterOverlaysWin(t *testing.T) {
	green := color.NRGBA{G: 255, A: 255}
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page: encode(t, solid(4, 4, blue), imgutil.FormatPNG),
		Overlays: []Overlay{
			{Image: encode(t, solid(3, 3, red), imgutil.FormatPNG)},
			{Image: encode(t, solid(2, 2, green), imgutil.FormatPNG), X: 1, Y: 1},
		},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	img, _, _ := decode(t, res.Data)
	if img.NRGBAAt(0, 0) != red || img.NRGBAAt(2, 2) != green {
		t.Errorf("got %v and %v", img.NRGBAAt(0, 0), img.NRGBAAt(2, 2))
	}
}

func TestMergeRejectsBadPage(t *testing.T) {
	_, err := NewCompositor().Merge(context.Background(), MergeRequest{Page: []byte{1, 2, 3}})
	if KindOf(err) != KindInput || !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want input decode error", err)
	}
}

func TestMergeSkipsHostileGeometry(t *testing.T) {
	page := solid(100, 100, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	src := encode(t, solid(20, 20, red), imgutil.FormatPNG)

	tests := []struct {
		name string
		ov   Overlay
	}{
		{"huge x", Overlay{Image: src, X: 9223372036854774784}},
		{"huge y", Overlay{Image: src, Y: 1e300}},
		{"huge negative x", Overlay{Image: src, X: -9223372036854774784}},
		{"oversized resize", Overlay{Image: src, Width: intp(50000), Height: intp(50000)}},
		{"resize overflowing int", Overlay{Image: src, X: 10, Width: intp(math.MaxInt), Height: intp(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewCompositor().Merge(context.Background(), MergeRequest{
				Page:     encode(t, page, imgutil.FormatPNG),
				Overlays: []Overlay{tt.ov},
			})
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if res.Applied != 0 || len(res.Skipped) != 1 {
				t.Fatalf("applied=%d skipped=%v", res.Applied, res.Skipped)
			}
			if !strings.Contains(res.Skipped[0].Reason, imgutil.ErrOutOfBounds.Error()) {
				t.Errorf("reason = %q, want out of bounds", res.Skipped[0].Reason)
			}
			img, _, _ := decode(t, res.Data)
			for i := range page.Pix {
				if img.Pix[i] != page.Pix[i] {
					t.Fatalf("page changed at byte %d", i)
				}
			}
		})
	}
}

func TestMergeReportsTransportError(t *testing.T) {
	res, err := NewCompositor().Merge(context.Background(), MergeRequest{
		Page: encode(t, solid(4, 4, blue), imgutil.FormatPNG),
		Overlays: []Overlay{
			{Err: errors.New("patchImageBase64: invalid base64")},
			{Image: encode(t, solid(2, 2, red), imgutil.FormatPNG)},
		},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Applied != 1 || len(res.Skipped) != 1 {
		t.Fatalf("applied=%d skipped=%v", res.Applied, res.Skipped)
	}
	if res.Skipped[0].Reason != "patchImageBase64: invalid base64" {
		t.Errorf("reason = %q", res.Skipped[0].Reason)
	}
}
