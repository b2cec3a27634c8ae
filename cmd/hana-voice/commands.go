package main

import (
	"os"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the voice
// service.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the voice service",
		Long: `Start the voice service with every endpoint enabled.

The server will:
1. Load configuration from the specified file
2. Resolve the audio codec tool (ffmpeg)
3. Serve the WebSocket relay and telephony endpoints
4. Expose health, admin, and Prometheus metrics endpoints
5. Watch the configuration file for limit changes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  hana-voice serve

  # Start with custom config
  hana-voice serve --config /etc/hana/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hana.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildTokenCmd creates the "token" command that mints a session token
// from the local configuration, for testing relay clients.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		clientIP   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a relay client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(configPath, clientIP)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hana.yaml",
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&clientIP, "client-ip", "127.0.0.1",
		"Client address to bind into the token")

	return cmd
}

// buildStatusCmd creates the "status" command that queries a running
// instance.
func buildStatusCmd() *cobra.Command {
	var (
		addr      string
		apiSecret string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), addr, apiSecret)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080",
		"host:port of the running service")
	cmd.Flags().StringVar(&apiSecret, "api-secret", os.Getenv("HANA_API_SECRET"),
		"API secret for the admin endpoints")

	return cmd
}
