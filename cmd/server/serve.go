package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	httpapp "github.com/cesargomez89/trackreconciler/internal/http"
	"github.com/cesargomez89/trackreconciler/internal/library"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the acquisition worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := build(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if n, err := c.db.PruneExpiredCache(); err != nil {
		c.log.Warn("Failed to prune cache", "error", err)
	} else if n > 0 {
		c.log.Info("Pruned expired cache entries", "count", n)
	}

	// Without WATCH_LIBRARY the watcher only serves Trigger and the periodic rescan.
	watchRoot := ""
	if c.cfg.WatchLibrary {
		watchRoot = c.cfg.LibraryRoot
	}
	watcher := library.NewWatcher(watchRoot, c.cfg.WatchDebounce, c.cfg.WatchInterval, func(ctx context.Context) error {
		_, err := c.index.Refresh(ctx)
		return err
	}, c.log)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()
	c.resolver.OnStaleIndex = watcher.Trigger

	if n, err := c.index.Count(); err == nil && n == 0 {
		c.log.Info("Library index is empty, scheduling a scan")
		watcher.Trigger()
	}

	h := httpapp.NewHandler(c.ledger, c.playlists, c.library, c.orch, c.settings)
	h.Logger = c.log.WithComponent("http")

	if acq := c.buildAcquisition(); acq != nil {
		acq.coord.OnAcquired = watcher.Trigger
		acq.worker.Start()
		defer acq.worker.Stop()
		h.WithAcquisition(acq.sources, acq.worker)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + c.cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	c.log.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	c.log.Info("Server exiting")
	return nil
}
