package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cesargomez89/trackreconciler/internal/app"
	"github.com/cesargomez89/trackreconciler/internal/catalog"
	"github.com/cesargomez89/trackreconciler/internal/config"
	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/downloader"
	"github.com/cesargomez89/trackreconciler/internal/httpclient"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/musicbrainz"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
	"github.com/cesargomez89/trackreconciler/internal/reconcile"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// components is the object graph shared by every subcommand.
type components struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *store.DB
	settings *store.SettingsRepo

	index    *library.Index
	resolver *matcher.Resolver
	registry *playlist.Registry
	orch     *reconcile.Orchestrator

	ledger    *app.LedgerService
	playlists *app.PlaylistService
	library   *app.LibraryService
}

func build(ctx context.Context) (*components, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}

	index := library.NewIndex(db, library.NewScanner(log), library.Config{
		Root:         cfg.LibraryRoot,
		FuzzyFloor:   cfg.FuzzyFloor,
		ProbeTimeout: cfg.FSProbeTimeout,
	}, log)
	resolver := matcher.NewResolver(index, matcher.Config{
		FuzzyThreshold: cfg.FuzzyThreshold,
		FuzzyMargin:    cfg.FuzzyMargin,
	}, log)

	sources := []playlist.Source{
		playlist.NewDeezerSource(cfg.DeezerAPIURL, httpclient.NewClient(&http.Client{Timeout: constants.DefaultHTTPTimeout}, constants.DeezerRate)),
	}
	if cfg.SpotifyEnabled() {
		sources = append(sources, playlist.NewSpotifySource(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret))
	}
	registry := playlist.NewRegistry(sources...)
	log.Info("Playlist sources registered", "services", registry.Names())

	return &components{
		cfg:       cfg,
		log:       log,
		db:        db,
		settings:  store.NewSettingsRepo(db),
		index:     index,
		resolver:  resolver,
		registry:  registry,
		orch:      reconcile.NewOrchestrator(db, registry, resolver, cfg.LibraryRoot, log),
		ledger:    app.NewLedgerService(db, log),
		playlists: app.NewPlaylistService(db, registry, resolver, log),
		library:   app.NewLibraryService(index, resolver, log),
	}, nil
}

func (c *components) Close() {
	c.orch.Shutdown()
	if err := c.db.Close(); err != nil {
		c.log.Error("Failed to close DB", "error", err)
	}
}

// acquisition holds the optional download pipeline.
type acquisition struct {
	sources *catalog.SourceManager
	coord   *downloader.Coordinator
	worker  *downloader.Worker
}

// buildAcquisition wires slskd, the organizer and the worker. It returns nil
// when no download source is configured.
func (c *components) buildAcquisition() *acquisition {
	cfg := c.cfg
	if !cfg.AcquisitionEnabled() {
		c.log.Info("Acquisition disabled; set SLSKD_URL and SLSKD_DOWNLOADS_DIR to enable it")
		return nil
	}

	sm := catalog.NewSourceManager(catalog.SlskdConfig{
		BaseURL:      cfg.SlskdURL,
		APIKey:       cfg.SlskdToken,
		DownloadsDir: cfg.SlskdDownloadsDir,
		SearchSettle: cfg.SearchSettle,
	}, c.db, cfg.CacheTTL, c.log)
	if saved, err := c.settings.Get(store.SettingSlskdURL); err == nil && saved != "" {
		sm.SetBaseURL(saved)
	}

	organizer := downloader.NewOrganizer(cfg.LibraryRoot, cfg.SlskdDownloadsDir, cfg.OrganizeTemplate, c.log)
	if cfg.EnrichTags {
		mb := musicbrainz.NewCachedClient(musicbrainz.NewClient(cfg.MusicBrainzURL, nil), c.db, cfg.CacheTTL)
		organizer.WithTagFiller(app.NewMetadataEnricher(mb, c.log))
	}

	coord := downloader.NewCoordinator(c.db, sm, c.resolver, downloader.Config{
		LibraryRoot:      cfg.LibraryRoot,
		CatalogThreshold: cfg.CatalogThreshold,
		MaxAttempts:      cfg.MaxAttempts,
		RetryBase:        cfg.RetryBase,
		RetryCap:         cfg.RetryCap,
		SearchTimeout:    cfg.SearchTimeout,
		DownloadTimeout:  cfg.DownloadTimeout,
		ConfirmAttempts:  cfg.ConfirmAttempts,
	}, c.log).WithOrganizer(organizer, c.index)

	return &acquisition{
		sources: sm,
		coord:   coord,
		worker:  downloader.NewWorker(c.db, coord, cfg.Concurrency, cfg.PollInterval, c.log),
	}
}
