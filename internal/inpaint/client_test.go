package inpaint

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fakeServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/inpaint", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func formImage(t *testing.T, r *http.Request, field string) image.Image {
	t.Helper()
	f, _, err := r.FormFile(field)
	if err != nil {
		t.Errorf("missing form field %q: %v", field, err)
		return nil
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Errorf("field %q is not a PNG: %v", field, err)
		return nil
	}
	return img
}

func TestInpaintRoundTrip(t *testing.T) {
	var maskSet int
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		img := formImage(t, r, "image")
		mask := formImage(t, r, "mask")
		if img == nil || mask == nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		b := mask.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if g := color.GrayModel.Convert(mask.At(x, y)).(color.Gray); g.Y != 0 {
					maskSet++
				}
			}
		}
		out := image.NewRGBA(img.Bounds())
		for i := range out.Pix {
			out.Pix[i] = 255
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, out)
	})

	rgb := image.NewRGBA(image.Rect(0, 0, 16, 8))
	mask := image.NewGray(rgb.Bounds())
	mask.SetGray(3, 3, color.Gray{Y: 255})
	mask.SetGray(4, 3, color.Gray{Y: 255})

	out, err := c.Inpaint(context.Background(), rgb, mask)
	if err != nil {
		t.Fatalf("Inpaint: %v", err)
	}
	if out.Bounds().Size() != image.Pt(16, 8) {
		t.Errorf("size = %v", out.Bounds().Size())
	}
	if out.RGBAAt(0, 0) != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel = %v, want server output", out.RGBAAt(0, 0))
	}
	if maskSet != 2 {
		t.Errorf("server saw %d mask pixels, want 2", maskSet)
	}
}

func TestInpaintServerError(t *testing.T) {
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	})
	rgb := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if _, err := c.Inpaint(context.Background(), rgb, image.NewGray(rgb.Bounds())); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestInpaintRejectsWrongSize(t *testing.T) {
	c := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
		_, _ = w.Write(buf.Bytes())
	})
	rgb := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if _, err := c.Inpaint(context.Background(), rgb, image.NewGray(rgb.Bounds())); err == nil {
		t.Error("expected error for size mismatch")
	}
}

func TestPing(t *testing.T) {
	c := fakeServer(t, func(http.ResponseWriter, *http.Request) {})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := NewClient(down.URL, time.Second).Ping(context.Background()); err == nil {
		t.Error("expected error while server is loading")
	}
}

func TestNewClientTrimsBaseURL(t *testing.T) {
	if got := NewClient("http://lama:8080//", 0).BaseURL(); got != "http://lama:8080" {
		t.Errorf("BaseURL() = %q", got)
	}
}
