package config

import (
	"testing"
	"time"

	"manga-patcher/internal/cleaner"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/app/sock/manga-ocr.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.CleanerMode != cleaner.ModeOpenCV || cfg.CleanerThreshold != 200 {
		t.Errorf("cleaner = %s/%d", cfg.CleanerMode, cfg.CleanerThreshold)
	}
	if cfg.InpaintPadMultiple != 8 || cfg.InpaintTimeout != 60*time.Second {
		t.Errorf("inpaint = %d/%v", cfg.InpaintPadMultiple, cfg.InpaintTimeout)
	}
	if !cfg.OCREnabled || cfg.OCRLanguage != "jpn_vert" {
		t.Errorf("ocr = %v/%q", cfg.OCREnabled, cfg.OCRLanguage)
	}
	opts := cfg.CleanerOptions()
	if opts.InpaintRadius != 3 || opts.DilateIterations != 1 {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLEANER_MODE", "LAMA")
	t.Setenv("INPAINT_URL", "http://lama:8080")
	t.Setenv("CLEANER_THRESHOLD", "180")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CleanerMode != cleaner.ModeLama {
		t.Errorf("mode = %q, want normalized lama", cfg.CleanerMode)
	}
	if cfg.CleanerThreshold != 180 || cfg.OCREnabled || cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown mode", map[string]string{"CLEANER_MODE": "magic"}},
		{"lama without url", map[string]string{"CLEANER_MODE": "lama"}},
		{"threshold range", map[string]string{"CLEANER_THRESHOLD": "256"}},
		{"bad integer", map[string]string{"CLEANER_DILATE_ITERATIONS": "two"}},
		{"bad duration", map[string]string{"INPAINT_TIMEOUT": "soon"}},
		{"bad bool", map[string]string{"OCR_ENABLED": "maybe"}},
		{"zero radius", map[string]string{"CLEANER_INPAINT_RADIUS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
