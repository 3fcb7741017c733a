package cmd

import (
	"fmt"

	"manga-patcher/internal/app"
	"manga-patcher/internal/cleaner"
	"manga-patcher/internal/config"
	"manga-patcher/internal/inpaint"
	"manga-patcher/internal/logger"
)

// buildCleaner creates the configured cleaner. The pinger is non-nil in
// lama mode so the loader can wait for the inpainting server.
func buildCleaner(cfg *config.Config) (cleaner.Cleaner, app.Pinger, error) {
	opts := cfg.CleanerOptions()

	var pinger app.Pinger
	if cfg.CleanerMode == cleaner.ModeLama {
		client := inpaint.NewClient(cfg.InpaintURL, cfg.InpaintTimeout)
		opts.Inpainter = client
		pinger = client
		log := logger.WithComponent("cleaner")
		log.Info().
			Str("inpaint_url", client.BaseURL()).
			Dur("timeout", cfg.InpaintTimeout).
			Msg("Using remote inpainting server")
	}

	c, err := cleaner.New(cfg.CleanerMode, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cleaner: %w", err)
	}
	return c, pinger, nil
}
