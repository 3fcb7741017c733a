package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"manga-patcher/internal/cleaner"
	"manga-patcher/internal/ocr"
)

// DefaultPingInterval is how often the cleaner loader polls the inpainting
// server while it starts up.
const DefaultPingInterval = 2 * time.Second

// Pinger checks whether a remote collaborator is up.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanerLoader waits for pinger (when set) and then runs c on a small
// synthetic region to verify the OpenCV bindings work.
func CleanerLoader(c cleaner.Cleaner, pinger Pinger, interval time.Duration) LoadFunc {
	return func(ctx context.Context) error {
		if c == nil {
			return fmt.Errorf("no cleaner configured")
		}
		if pinger != nil {
			if err := waitForPing(ctx, pinger, interval); err != nil {
				return err
			}
		}
		return selfTest(ctx, c)
	}
}

// OCRLoader creates the Tesseract engine and installs it in s.
func OCRLoader(s *State, language string) LoadFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		engine, err := ocr.NewEngine(language)
		if err != nil {
			return err
		}
		s.SetOCR(engine)
		return nil
	}
}

// waitForPing polls until the collaborator answers or ctx is done.
func waitForPing(ctx context.Context, p Pinger, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	lastErr := p.Ping(ctx)
	if lastErr == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("collaborator not ready: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
			if lastErr = p.Ping(ctx); lastErr == nil {
				return nil
			}
		}
	}
}

func selfTest(ctx context.Context, c cleaner.Cleaner) error {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(6, 6, 10, 10), image.NewUniform(color.Black), image.Point{}, draw.Src)

	out, err := c.Clean(ctx, img)
	if err != nil {
		return fmt.Errorf("cleaner self-test failed: %w", err)
	}
	if out.Bounds().Size() != img.Bounds().Size() {
		return fmt.Errorf("cleaner self-test returned %v, want %v", out.Bounds().Size(), img.Bounds().Size())
	}
	return nil
}
