package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackreconciler",
	Short: "Keeps a local music library in step with streaming playlists.",
	Long: `trackreconciler compares playlists from streaming services against a local
music library, keeps a ledger of the tracks that are missing and optionally
acquires them through a slskd daemon.

Configuration is read from the environment and from a .env file.`,
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
