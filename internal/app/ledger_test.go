package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

func setupTestDB(t *testing.T) (*store.DB, func()) {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test_app.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	cleanup := func() {
		db.Close()
	}
	return db, cleanup
}

func addMissing(t *testing.T, db *store.DB, title, artist, playlistName string) *domain.MissingTrack {
	t.Helper()
	rec, err := db.UpsertMissing(domain.CandidateTrack{
		Title:              title,
		Artist:             artist,
		SourcePlaylistID:   "pl1",
		SourcePlaylistName: playlistName,
		SourceServiceName:  "static",
	}, domain.Absent())
	if err != nil {
		t.Fatalf("UpsertMissing failed: %v", err)
	}
	return rec
}

func TestLedgerService_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	for _, title := range []string{"One", "Two", "Three"} {
		addMissing(t, db, title, "Artist", "Mix")
	}

	page, err := svc.List(domain.StatusPending, 1, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Expected total 3, got %d", page.Total)
	}
	if len(page.Items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(page.Items))
	}

	page, err = svc.List(domain.StatusPending, 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("Expected 1 item on page 2, got %d", len(page.Items))
	}

	page, err = svc.List("", 0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Page != 1 || page.PageSize != 50 {
		t.Errorf("Expected default paging, got page %d size %d", page.Page, page.PageSize)
	}

	if _, err := svc.List("BOGUS", 1, 10); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestLedgerService_Dismiss(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	rec := addMissing(t, db, "Song", "Artist", "Mix")

	got, err := svc.Dismiss(rec.ID)
	if err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	if got.Status != domain.StatusDismissed {
		t.Errorf("Expected DISMISSED, got %s", got.Status)
	}

	_, err = svc.Dismiss(rec.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected invalid transition on a terminal record, got %v", err)
	}

	_, err = svc.Dismiss("missing-id")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestLedgerService_ResolveManually(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	rec := addMissing(t, db, "Yesterday", "The Beatles", "Mix")

	_, err := svc.ResolveManually(rec.ID, "no-such-track")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found for an unindexed track, got %v", err)
	}

	err = db.UpsertLibraryTrack(&domain.LibraryTrack{
		ID:               "lib-1",
		Title:            "Yesterday",
		Artist:           "The Beatles",
		NormalizedTitle:  "yesterday",
		NormalizedArtist: "the beatles",
		FilePath:         "/music/yesterday.flac",
		IndexedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertLibraryTrack failed: %v", err)
	}

	got, err := svc.ResolveManually(rec.ID, "lib-1")
	if err != nil {
		t.Fatalf("ResolveManually failed: %v", err)
	}
	if got.Status != domain.StatusResolvedManually {
		t.Errorf("Expected RESOLVED_MANUALLY, got %s", got.Status)
	}
	if got.LibraryTrackID != "lib-1" {
		t.Errorf("Expected library track lib-1, got %s", got.LibraryTrackID)
	}
}

func TestLedgerService_StartAcquisitionAndRetry(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	rec := addMissing(t, db, "Song", "Artist", "Mix")

	later := time.Now().Add(time.Hour)
	if err := db.ScheduleMissing(rec.ID, later); err != nil {
		t.Fatalf("ScheduleMissing failed: %v", err)
	}

	got, err := svc.StartAcquisition(rec.ID)
	if err != nil {
		t.Fatalf("StartAcquisition failed: %v", err)
	}
	if got.NextAttemptAt != nil {
		t.Errorf("Expected record to be due now, got %v", got.NextAttemptAt)
	}

	if _, err := db.TransitionMissing(rec.ID, domain.StatusSearching, domain.TransitionFields{NextAttemptAt: &later}); err != nil {
		t.Fatalf("TransitionMissing failed: %v", err)
	}
	got, err = svc.Retry(rec.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got.NextAttemptAt != nil {
		t.Errorf("Expected backoff cleared, got %v", got.NextAttemptAt)
	}

	if _, err := db.TransitionMissing(rec.ID, domain.StatusFailed, domain.TransitionFields{}); err != nil {
		t.Fatalf("TransitionMissing failed: %v", err)
	}
	_, err = svc.Retry(rec.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected FAILED to be terminal, got %v", err)
	}
	_, err = svc.StartAcquisition(rec.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected FAILED to be terminal, got %v", err)
	}
}

func TestLedgerService_Cleanup(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	addMissing(t, db, "Theme from The Simpsons", "Danny Elfman", "Mix")
	addMissing(t, db, "Kept Song", "Artist", "Keep no_delete")
	keep := addMissing(t, db, "Real Song", "Real Artist", "Mix")
	done := addMissing(t, db, "Done Song", "Real Artist", "Mix")
	if _, err := db.TransitionMissing(done.ID, domain.StatusResolvedManually, domain.TransitionFields{}); err != nil {
		t.Fatalf("TransitionMissing failed: %v", err)
	}

	res, err := svc.Cleanup(false)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if res.Invalid != 2 {
		t.Errorf("Expected 2 invalid records purged, got %d", res.Invalid)
	}

	res, err = svc.Cleanup(true)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if res.Resolved != 1 {
		t.Errorf("Expected 1 resolved record purged, got %d", res.Resolved)
	}

	counts, err := svc.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[domain.StatusPending] != 1 {
		t.Errorf("Expected 1 pending record left, got %d", counts[domain.StatusPending])
	}
	if _, err := svc.Get(keep.ID); err != nil {
		t.Errorf("Expected real record kept, got %v", err)
	}
}

func TestLedgerService_GetUnknown(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewLedgerService(db, logger.Discard())
	if _, err := svc.Get("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}
