package httpapp

import (
	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/trackreconciler/internal/app"
	"github.com/cesargomez89/trackreconciler/internal/catalog"
	"github.com/cesargomez89/trackreconciler/internal/downloader"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/reconcile"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type Handler struct {
	Ledger       *app.LedgerService
	Playlists    *app.PlaylistService
	Library      *app.LibraryService
	Orchestrator *reconcile.Orchestrator
	SettingsRepo *store.SettingsRepo
	Logger       *logger.Logger

	// Sources and Worker are nil when acquisition is disabled.
	Sources *catalog.SourceManager
	Worker  *downloader.Worker

	// ExportDir receives exported .m3u files.
	ExportDir string
}

func NewHandler(ledger *app.LedgerService, playlists *app.PlaylistService, library *app.LibraryService, orch *reconcile.Orchestrator, sr *store.SettingsRepo) *Handler {
	return &Handler{
		Ledger:       ledger,
		Playlists:    playlists,
		Library:      library,
		Orchestrator: orch,
		SettingsRepo: sr,
		Logger:       logger.Default().WithComponent("http"),
	}
}

// WithAcquisition exposes the download source and worker.
func (h *Handler) WithAcquisition(sources *catalog.SourceManager, w *downloader.Worker) *Handler {
	h.Sources = sources
	h.Worker = w
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/status", h.Status)

		r.Get("/missing", h.ListMissing)
		r.Get("/missing/counts", h.MissingCounts)
		r.Get("/missing/{id}", h.GetMissing)
		r.Post("/missing/{id}/dismiss", h.DismissMissing)
		r.Post("/missing/{id}/resolve", h.ResolveMissing)
		r.Post("/missing/{id}/acquire", h.AcquireMissing)
		r.Post("/missing/{id}/retry", h.RetryMissing)

		r.Post("/reconcile", h.StartReconcile)
		r.Delete("/reconcile", h.StopReconcile)
		r.Post("/sweep", h.StartSweep)
		r.Delete("/sweep", h.StopSweep)
		r.Post("/cleanup", h.Cleanup)

		r.Get("/playlists", h.ListPlaylists)
		r.Post("/playlists", h.AddPlaylist)
		r.Delete("/playlists", h.RemovePlaylist)
		r.Post("/playlists/{service}/{id}/select", h.SelectPlaylist)
		r.Post("/playlists/{service}/{id}/deselect", h.DeselectPlaylist)
		r.Post("/playlists/{service}/{id}/export", h.ExportPlaylist)

		r.Get("/library", h.LibraryStats)
		r.Get("/library/tracks/{id}", h.GetLibraryTrack)
		r.Post("/library/rescan", h.RescanLibrary)

		r.Get("/jobs", h.ListJobs)
		r.Get("/source", h.GetSource)
		r.Put("/source", h.SetSource)
		r.Delete("/source", h.ResetSource)
	})
}
