package httpapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesargomez89/trackreconciler/internal/app"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/http/dto"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
	"github.com/cesargomez89/trackreconciler/internal/reconcile"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type testServer struct {
	db     *store.DB
	index  *library.Index
	source *playlist.StaticSource
	orch   *reconcile.Orchestrator
	router chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test_http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.Discard()
	root := t.TempDir()
	index := library.NewIndex(db, library.NewScanner(log), library.Config{Root: root, ProbeTimeout: time.Second}, log)
	resolver := matcher.NewResolver(index, matcher.Config{FuzzyThreshold: 0.85, FuzzyMargin: 0.05}, log)
	source := playlist.NewStaticSource("static")
	registry := playlist.NewRegistry(source)
	orch := reconcile.NewOrchestrator(db, registry, resolver, root, log)
	t.Cleanup(orch.Shutdown)

	h := NewHandler(
		app.NewLedgerService(db, log),
		app.NewPlaylistService(db, registry, resolver, log),
		app.NewLibraryService(index, resolver, log),
		orch,
		store.NewSettingsRepo(db),
	)
	h.Logger = log
	h.ExportDir = t.TempDir()

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testServer{db: db, index: index, source: source, orch: orch, router: r}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) addMissing(t *testing.T, title, artist string) *domain.MissingTrack {
	t.Helper()
	rec, err := s.db.UpsertMissing(domain.CandidateTrack{
		Title:              title,
		Artist:             artist,
		SourcePlaylistID:   "pl1",
		SourcePlaylistName: "Mix",
		SourceServiceName:  "static",
	}, domain.Absent())
	require.NoError(t, err)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListMissing(t *testing.T) {
	s := newTestServer(t)
	s.addMissing(t, "One", "Artist")
	s.addMissing(t, "Two", "Artist")
	s.addMissing(t, "Three", "Artist")

	rec := s.do(t, http.MethodGet, "/api/missing?status=pending&page=1&page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page dto.MissingTrackPage
	decode(t, rec, &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Pagination.TotalItems)
	assert.True(t, page.Pagination.HasNext)
	assert.Equal(t, "PENDING", page.Items[0].Status)

	rec = s.do(t, http.MethodGet, "/api/missing?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMissing_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/missing/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDismissMissing_Twice(t *testing.T) {
	s := newTestServer(t)
	m := s.addMissing(t, "Song", "Artist")

	rec := s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.MissingTrackResponse
	decode(t, rec, &resp)
	assert.Equal(t, "DISMISSED", resp.Status)

	rec = s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/dismiss", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResolveMissing(t *testing.T) {
	s := newTestServer(t)
	m := s.addMissing(t, "Song", "Artist")

	rec := s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/resolve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/resolve", `{"library_track_id":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/resolve", `{"library_track_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := s.index.Rebuild(context.Background(), []domain.RawTrack{
		{LibraryID: "lib1", Title: "Song (Live)", Artist: "Artist", FilePath: "/music/song.flac"},
	})
	require.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/resolve", `{"library_track_id":"lib1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.MissingTrackResponse
	decode(t, rec, &resp)
	assert.Equal(t, "RESOLVED_MANUALLY", resp.Status)
	assert.Equal(t, "lib1", resp.LibraryTrackID)
}

func TestAcquireMissing(t *testing.T) {
	s := newTestServer(t)
	m := s.addMissing(t, "Song", "Artist")

	rec := s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/acquire", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := s.db.TransitionMissing(m.ID, domain.StatusDismissed, domain.TransitionFields{})
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/api/missing/"+m.ID+"/retry", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReconcile(t *testing.T) {
	s := newTestServer(t)
	s.source.Set("pl1", "Classics",
		domain.SourceTrack{Title: "Imagine", Artist: "John Lennon"},
		domain.SourceTrack{Title: "Heroes", Artist: "David Bowie"},
	)
	_, err := s.index.Rebuild(context.Background(), []domain.RawTrack{
		{LibraryID: "a", Title: "Imagine", Artist: "John Lennon", FilePath: "/music/a.flac"},
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/reconcile", `{"targets":["no-colon"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reconcile", `{"targets":["static:pl1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.orch.Wait()

	n, err := s.db.CountMissing(domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec = s.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Operations domain.StatusFeed           `json:"operations"`
		Counts     map[domain.LedgerStatus]int `json:"counts"`
	}
	decode(t, rec, &status)
	require.NotEmpty(t, status.Operations.Recent)
	assert.Equal(t, domain.OutcomeOK, status.Operations.Recent[0].Result)
	assert.Equal(t, 1, status.Counts[domain.StatusPending])

	rec = s.do(t, http.MethodDelete, "/api/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stopped":false`)
}

func TestSweep(t *testing.T) {
	s := newTestServer(t)
	s.addMissing(t, "Imagine", "John Lennon")
	_, err := s.index.Rebuild(context.Background(), []domain.RawTrack{
		{LibraryID: "a", Title: "Imagine", Artist: "John Lennon", FilePath: "/music/a.flac"},
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/sweep", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.orch.Wait()

	n, err := s.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPlaylists(t *testing.T) {
	s := newTestServer(t)
	s.source.Set("pl1", "Classics", domain.SourceTrack{Title: "Imagine", Artist: "John Lennon"})

	rec := s.do(t, http.MethodPost, "/api/playlists", `{"ref":"static:pl1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var pl domain.Playlist
	decode(t, rec, &pl)
	assert.Equal(t, "Classics", pl.Name)
	assert.True(t, pl.Selected)

	rec = s.do(t, http.MethodPost, "/api/playlists", `{"ref":"nowhere:pl1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/playlists", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/playlists/static/pl1/deselect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &pl)
	assert.False(t, pl.Selected)

	rec = s.do(t, http.MethodGet, "/api/playlists?selected=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/playlists?ref=static:pl1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/playlists?ref=static:pl1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanup(t *testing.T) {
	s := newTestServer(t)
	s.addMissing(t, "Main Theme (From the TV Series)", "Orchestra")
	s.addMissing(t, "Song", "Artist")

	rec := s.do(t, http.MethodPost, "/api/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res app.CleanupResult
	decode(t, rec, &res)
	assert.Equal(t, int64(1), res.Invalid)
}

func TestAcquisitionDisabled(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/source", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
