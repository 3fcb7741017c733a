package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"manga-patcher/internal/app"
	"manga-patcher/internal/config"
	"manga-patcher/internal/logger"
	"manga-patcher/internal/patch"
	"manga-patcher/internal/render"
	"manga-patcher/internal/server"
	"manga-patcher/internal/version"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long: `Start the HTTP service. Models load in the background: the socket is
bound immediately and endpoints that need a model answer 503 until it is
ready.

Configuration is read from the environment (and a .env file if present):
  SOCKET_PATH        unix socket path (default /app/sock/manga-ocr.sock)
  LISTEN_ADDR        TCP address; overrides SOCKET_PATH when set
  CLEANER_MODE       opencv or lama
  INPAINT_URL        inpainting server, required for lama
  OCR_ENABLED        load the Tesseract engine (default true)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("socket", "", "Unix socket path (overrides SOCKET_PATH)")
	serveCmd.Flags().String("listen", "", "TCP listen address (overrides LISTEN_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("socket"); v != "" {
		cfg.SocketPath = v
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}

	c, pinger, err := buildCleaner(cfg)
	if err != nil {
		return err
	}

	state := app.NewState(cfg.CleanerMode, c, version.BuildID)
	defer func() {
		if err := state.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release models")
		}
	}()

	state.On(app.EventTaskReady, func(data interface{}) {
		st := data.(app.TaskStatus)
		log.Info().Str("task", st.Name).Dur("duration", st.Duration).Msg("Model ready")
	})
	state.On(app.EventTaskFailed, func(data interface{}) {
		st := data.(app.TaskStatus)
		log.Error().Str("task", st.Name).Str("error", st.Error).Msg("Model failed to load")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.ModelLoadTimeout)
	sup := state.Supervisor()
	sup.Start(loadCtx, app.TaskCleaner, app.CleanerLoader(c, pinger, app.DefaultPingInterval))
	if cfg.OCREnabled {
		sup.Start(loadCtx, app.TaskOCR, app.OCRLoader(state, cfg.OCRLanguage))
	}
	go func() {
		sup.Wait()
		cancelLoad()
	}()

	log.Info().
		Str("version", version.Version).
		Str("build_id", version.BuildID).
		Str("cleaner_mode", string(cfg.CleanerMode)).
		Bool("ocr_enabled", cfg.OCREnabled).
		Msg("Starting service")

	renderer := render.NewRenderer(render.NewFonts(cfg.FontDir))
	log.Info().Str("font_dir", renderer.Fonts().Dir()).Msg("Font registry ready")
	srv := server.New(state, patch.NewGenerator(c, renderer, state), patch.NewCompositor())

	ln, err := server.Listen(cfg.SocketPath, cfg.ListenAddr)
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx, ln, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Service stopped")
	return nil
}
