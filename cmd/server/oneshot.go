package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
)

func init() {
	rootCmd.AddCommand(scanCmd, reconcileCmd, sweepCmd, cleanupCmd)
	sweepCmd.Flags().Bool("verify-downloaded", false, "also report DOWNLOADED records no longer found in the library")
	cleanupCmd.Flags().Bool("resolved", false, "also delete DOWNLOADED and RESOLVED_MANUALLY history")
}

// withComponents runs fn with a signal-aware context and a built object graph.
func withComponents(fn func(ctx context.Context, c *components) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the library index from LIBRARY_ROOT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(ctx context.Context, c *components) error {
			n, err := c.library.Rebuild(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d tracks under %s\n", n, c.cfg.LibraryRoot)
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [service:playlistId ...]",
	Short: "Run one reconciliation pass",
	Long:  "Run one reconciliation pass over the given playlists, or over every selected playlist when none are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := make([]domain.PlaylistRef, 0, len(args))
		for _, arg := range args {
			ref, err := playlist.ParseRef(arg)
			if err != nil {
				return err
			}
			targets = append(targets, ref)
		}

		return withComponents(func(ctx context.Context, c *components) error {
			outcomes, err := c.orch.RunReconcile(ctx, targets)
			for _, o := range outcomes {
				line := fmt.Sprintf("%-40s %-9s processed=%d missing=%d resolved=%d", o.Unit, o.Result, o.Processed, o.Missing, o.Resolved)
				if o.Error != "" {
					line += " error=" + o.Error
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return err
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-check open ledger records and drop those now in the library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, _ := cmd.Flags().GetBool("verify-downloaded")
		return withComponents(func(ctx context.Context, c *components) error {
			removed, err := c.orch.RunSweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)

			if !verify {
				return nil
			}
			gone, err := c.orch.VerifyDownloaded(ctx)
			if err != nil {
				return err
			}
			for _, id := range gone {
				fmt.Fprintf(cmd.OutOrStdout(), "downloaded record %s is no longer in the library\n", id)
			}
			return nil
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge invalid ledger records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, _ := cmd.Flags().GetBool("resolved")
		return withComponents(func(ctx context.Context, c *components) error {
			res, err := c.ledger.Cleanup(resolved)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d invalid and %d resolved records\n", res.Invalid, res.Resolved)
			return nil
		})
	},
}
