// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"manga-patcher/internal/cleaner"
	"manga-patcher/internal/logger"
)

type Config struct {
	// Transport
	SocketPath      string
	ListenAddr      string
	ShutdownTimeout time.Duration

	// Cleaner
	CleanerMode             cleaner.Mode
	CleanerThreshold        int
	CleanerDilateIterations int
	CleanerInpaintRadius    int

	// Remote inpainting server (lama mode)
	InpaintURL         string
	InpaintPadMultiple int
	InpaintTimeout     time.Duration

	// Background model loading
	ModelLoadTimeout time.Duration

	// Rendering
	FontDir string

	// OCR
	OCREnabled  bool
	OCRLanguage string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	config, err := parse()
	if err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func parse() (*Config, error) {
	p := &parser{}
	config := &Config{
		SocketPath:      getEnv("SOCKET_PATH", "/app/sock/manga-ocr.sock"),
		ListenAddr:      getEnv("LISTEN_ADDR", ""),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		CleanerMode:             cleaner.Mode(getEnv("CLEANER_MODE", string(cleaner.ModeOpenCV))),
		CleanerThreshold:        p.int("CLEANER_THRESHOLD", 200),
		CleanerDilateIterations: p.int("CLEANER_DILATE_ITERATIONS", 1),
		CleanerInpaintRadius:    p.int("CLEANER_INPAINT_RADIUS", 3),

		InpaintURL:         getEnv("INPAINT_URL", ""),
		InpaintPadMultiple: p.int("INPAINT_PAD_MULTIPLE", 8),
		InpaintTimeout:     p.duration("INPAINT_TIMEOUT", 60*time.Second),

		ModelLoadTimeout: p.duration("MODEL_LOAD_TIMEOUT", 5*time.Minute),

		FontDir: getEnv("FONT_DIR", "/app/fonts"),

		OCREnabled:  p.bool("OCR_ENABLED", true),
		OCRLanguage: getEnv("OCR_LANGUAGE", "jpn_vert"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}
	if p.err != nil {
		return nil, p.err
	}
	return config, nil
}

func (c *Config) validate() error {
	mode, err := cleaner.ParseMode(string(c.CleanerMode))
	if err != nil {
		return fmt.Errorf("CLEANER_MODE: %w", err)
	}
	c.CleanerMode = mode

	if mode == cleaner.ModeLama && c.InpaintURL == "" {
		return fmt.Errorf("INPAINT_URL is required when CLEANER_MODE=%s", cleaner.ModeLama)
	}
	if c.SocketPath == "" && c.ListenAddr == "" {
		return fmt.Errorf("SOCKET_PATH or LISTEN_ADDR is required")
	}
	if c.CleanerThreshold < 0 || c.CleanerThreshold > 255 {
		return fmt.Errorf("CLEANER_THRESHOLD must be 0-255, got %d", c.CleanerThreshold)
	}
	if c.CleanerDilateIterations < 0 {
		return fmt.Errorf("CLEANER_DILATE_ITERATIONS must be >= 0, got %d", c.CleanerDilateIterations)
	}
	if c.CleanerInpaintRadius <= 0 {
		return fmt.Errorf("CLEANER_INPAINT_RADIUS must be > 0, got %d", c.CleanerInpaintRadius)
	}
	if c.InpaintPadMultiple <= 0 {
		return fmt.Errorf("INPAINT_PAD_MULTIPLE must be > 0, got %d", c.InpaintPadMultiple)
	}
	return nil
}

// CleanerOptions returns the cleaner options without an inpainter.
func (c *Config) CleanerOptions() cleaner.Options {
	return cleaner.Options{
		Threshold:        c.CleanerThreshold,
		DilateIterations: c.CleanerDilateIterations,
		InpaintRadius:    c.CleanerInpaintRadius,
		PadMultiple:      c.InpaintPadMultiple,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects the first conversion error so Load can report it.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d
}
