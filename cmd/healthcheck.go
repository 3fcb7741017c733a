package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"manga-patcher/internal/config"
	"manga-patcher/internal/server"

	"github.com/spf13/cobra"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running service",
	Long: `Call GET /health on a running service over its unix socket (or TCP address)
and exit non-zero when it does not answer. Intended for container health
checks.`,
	Args: cobra.NoArgs,
	RunE: runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)

	healthcheckCmd.Flags().Bool("require-models", false, "Fail until every model has loaded")
	healthcheckCmd.Flags().Duration("timeout", 5*time.Second, "Request timeout")
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	requireModels, _ := cmd.Flags().GetBool("require-models")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, baseURL := newServiceClient(cfg.SocketPath, cfg.ListenAddr, timeout)
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	var health server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}
	if requireModels && !health.ModelLoaded {
		return fmt.Errorf("models not loaded")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (models loaded: %t, cleaner: %s, build: %s)\n",
		health.Status, health.ModelLoaded, health.CleanerMode, health.BuildID)
	return nil
}

// newServiceClient returns a client and base URL for the service. A TCP
// address wins over the socket, matching Listen.
func newServiceClient(socketPath, addr string, timeout time.Duration) (*http.Client, string) {
	if addr != "" {
		return &http.Client{Timeout: timeout}, "http://" + addr
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}, "http://unix"
}
