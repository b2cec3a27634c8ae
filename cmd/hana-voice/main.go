// Package main provides the CLI entry point for the Hana voice service.
//
// Hana mediates real-time Arabic voice conversations: it terminates
// WebSocket audio relays and telephony calls, converts between the wire
// codec and canonical PCM, drives a healthcare questionnaire, and
// submits collected answers to the survey backend.
//
// # Basic Usage
//
// Start the server:
//
//	hana-voice serve --config hana.yaml
//
// Mint a session token for a relay client:
//
//	hana-voice token --config hana.yaml
//
// Check a running instance:
//
//	hana-voice status --addr localhost:8080
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "hana-voice",
		Short:         "Arabic healthcare voice service",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(buildServeCmd(), buildTokenCmd(), buildStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
