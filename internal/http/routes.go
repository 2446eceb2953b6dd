package httpapp

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/http/dto"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Repo.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Operations domain.StatusFeed           `json:"operations"`
	Counts     map[domain.LedgerStatus]int `json:"counts"`
	ActiveJobs int                         `json:"active_jobs"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Ledger.Counts()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := statusResponse{Operations: h.Orchestrator.Status(), Counts: counts}
	if h.Worker != nil {
		resp.ActiveJobs = len(h.Worker.Jobs())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Missing-track ledger

func (h *Handler) ListMissing(w http.ResponseWriter, r *http.Request) {
	status, errs := dto.ValidateStatus(r.URL.Query().Get("status"))
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	page, err := h.Ledger.List(status, queryInt(r, "page", 1), queryInt(r, "page_size", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MissingTrackPage{
		Items:      dto.NewMissingTrackList(page.Items),
		Pagination: dto.NewPagination(page.Page, page.PageSize, page.Total),
	})
}

func (h *Handler) MissingCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Ledger.Counts()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) GetMissing(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewMissingTrackResponse(rec))
}

func (h *Handler) DismissMissing(w http.ResponseWriter, r *http.Request) {
	h.respondRecord(w, r)(h.Ledger.Dismiss(chi.URLParam(r, "id")))
}

func (h *Handler) ResolveMissing(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	h.respondRecord(w, r)(h.Ledger.ResolveManually(chi.URLParam(r, "id"), req.LibraryTrackID))
}

func (h *Handler) AcquireMissing(w http.ResponseWriter, r *http.Request) {
	h.respondRecord(w, r)(h.Ledger.StartAcquisition(chi.URLParam(r, "id")))
}

func (h *Handler) RetryMissing(w http.ResponseWriter, r *http.Request) {
	h.respondRecord(w, r)(h.Ledger.Retry(chi.URLParam(r, "id")))
}

func (h *Handler) respondRecord(w http.ResponseWriter, r *http.Request) func(*domain.MissingTrack, error) {
	return func(rec *domain.MissingTrack, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.NewMissingTrackResponse(rec))
	}
}

// Operations

func (h *Handler) StartReconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	targets, errs := req.Validate()
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	if err := h.Orchestrator.StartReconcile(targets); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Orchestrator.Status())
}

func (h *Handler) StopReconcile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": h.Orchestrator.Stop(domain.OperationReconciling)})
}

func (h *Handler) StartSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.StartSweep(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Orchestrator.Status())
}

func (h *Handler) StopSweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": h.Orchestrator.Stop(domain.OperationSweeping)})
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.Cleanup(queryBool(r, "include_resolved"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Playlists

func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	pls, err := h.Playlists.List(queryBool(r, "selected"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pls == nil {
		pls = []*domain.Playlist{}
	}
	writeJSON(w, http.StatusOK, pls)
}

func (h *Handler) AddPlaylist(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ref, errs := req.Validate()
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	pl, err := h.Playlists.Add(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Selected != nil && !*req.Selected {
		if err := h.Playlists.Deselect(ref); err != nil {
			h.writeError(w, r, err)
			return
		}
		pl.Selected = false
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (h *Handler) RemovePlaylist(w http.ResponseWriter, r *http.Request) {
	req := dto.PlaylistRequest{Ref: r.URL.Query().Get("ref")}
	if req.Ref == "" {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	ref, errs := req.Validate()
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	if err := h.Playlists.Remove(ref); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectPlaylist(w http.ResponseWriter, r *http.Request) {
	h.setSelected(w, r, true)
}

func (h *Handler) DeselectPlaylist(w http.ResponseWriter, r *http.Request) {
	h.setSelected(w, r, false)
}

func (h *Handler) setSelected(w http.ResponseWriter, r *http.Request, selected bool) {
	ref := pathRef(r)
	var err error
	if selected {
		err = h.Playlists.Select(ref)
	} else {
		err = h.Playlists.Deselect(ref)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pl, err := h.Playlists.Repo.GetPlaylist(ref.Service, ref.PlaylistID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (h *Handler) ExportPlaylist(w http.ResponseWriter, r *http.Request) {
	dir := h.ExportDir
	if dir == "" {
		dir = filepath.Join(h.Library.Index.Root(), "Playlists")
	}
	path, n, err := h.Playlists.ExportM3U(r.Context(), pathRef(r), dir)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"path": path, "tracks": n})
}

func pathRef(r *http.Request) domain.PlaylistRef {
	return domain.PlaylistRef{
		Service:    chi.URLParam(r, "service"),
		PlaylistID: chi.URLParam(r, "id"),
	}
}

// Library

func (h *Handler) LibraryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Library.Stats()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetLibraryTrack(w http.ResponseWriter, r *http.Request) {
	track, err := h.Library.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (h *Handler) RescanLibrary(w http.ResponseWriter, r *http.Request) {
	n, err := h.Library.Rebuild(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tracks": n})
}

// Acquisition

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []domain.DownloadJob{}
	if h.Worker != nil {
		jobs = append(jobs, h.Worker.Jobs()...)
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	if h.Sources == nil {
		h.writeError(w, r, errAcquisitionDisabled)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSourceData(h.Sources.BaseURL(), h.Sources.DefaultURL()))
}

func (h *Handler) SetSource(w http.ResponseWriter, r *http.Request) {
	if h.Sources == nil {
		h.writeError(w, r, errAcquisitionDisabled)
		return
	}
	var req dto.SourceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	h.Sources.SetBaseURL(req.URL)
	if err := h.SettingsRepo.Set(store.SettingSlskdURL, req.URL); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Info("Download source changed", "url", req.URL)
	writeJSON(w, http.StatusOK, dto.FromSourceData(h.Sources.BaseURL(), h.Sources.DefaultURL()))
}

func (h *Handler) ResetSource(w http.ResponseWriter, r *http.Request) {
	if h.Sources == nil {
		h.writeError(w, r, errAcquisitionDisabled)
		return
	}
	h.Sources.SetBaseURL(h.Sources.DefaultURL())
	if err := h.SettingsRepo.Delete(store.SettingSlskdURL); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSourceData(h.Sources.BaseURL(), h.Sources.DefaultURL()))
}
