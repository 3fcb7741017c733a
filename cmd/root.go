package cmd

import (
	"fmt"
	"os"

	"manga-patcher/internal/logger"
	"manga-patcher/internal/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "manga-patcher",
	Short: "Manga text cleaning and patch rendering service",
	Long: `manga-patcher removes printed text from captured manga regions, renders
translated text in its place and composites the resulting patches back onto
full pages.

Run "manga-patcher serve" to start the HTTP service on a unix socket, or use
the patch and merge subcommands to run the same pipeline on local files.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(version.String() + "\n")
}
