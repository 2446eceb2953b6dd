package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type fixture struct {
	db     *store.DB
	index  *library.Index
	source *playlist.StaticSource
	orch   *Orchestrator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.Discard()
	root := t.TempDir()
	index := library.NewIndex(db, library.NewScanner(log), library.Config{Root: root, ProbeTimeout: time.Second}, log)
	resolver := matcher.NewResolver(index, matcher.Config{FuzzyThreshold: 0.85, FuzzyMargin: 0.05}, log)

	source := playlist.NewStaticSource("static")
	orch := NewOrchestrator(db, playlist.NewRegistry(source), resolver, root, log)
	t.Cleanup(orch.Shutdown)

	return &fixture{db: db, index: index, source: source, orch: orch}
}

func (f *fixture) library(t *testing.T, tracks ...domain.RawTrack) {
	t.Helper()
	_, err := f.index.Rebuild(context.Background(), tracks)
	require.NoError(t, err)
}

func lib(id, title, artist string) domain.RawTrack {
	return domain.RawTrack{LibraryID: id, Title: title, Artist: artist, FilePath: "/music/" + id + ".flac"}
}

func src(title, artist string) domain.SourceTrack {
	return domain.SourceTrack{Title: title, Artist: artist}
}

var ref = domain.PlaylistRef{Service: "static", PlaylistID: "pl1"}

func (f *fixture) classics() {
	f.source.Set("pl1", "Classics",
		src("Imagine", "John Lennon"),
		src("Yesterday (Remastered 2009)", "The Beatles"),
	)
}

func TestReconcile_AllPresent(t *testing.T) {
	f := setup(t)
	f.classics()
	f.library(t, lib("a", "Imagine", "John Lennon"), lib("b", "Yesterday", "The Beatles"))

	outcomes, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeOK, outcomes[0].Result)
	assert.Equal(t, 2, outcomes[0].Resolved)

	n, err := f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReconcile_OneMissingThroughDownload(t *testing.T) {
	f := setup(t)
	f.classics()
	f.library(t, lib("a", "Imagine", "John Lennon"))

	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	pending, err := f.db.ListMissingByStatus(domain.StatusPending, 50, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	rec := pending[0]
	assert.Equal(t, "Yesterday (Remastered 2009)", rec.Title)
	assert.Equal(t, "The Beatles", rec.Artist)
	assert.Equal(t, "Classics", rec.SourcePlaylistName)

	// Simulated acquisition.
	extRef := "ext-1"
	libID := "b"
	for _, step := range []struct {
		to     domain.LedgerStatus
		fields domain.TransitionFields
	}{
		{domain.StatusSearching, domain.TransitionFields{}},
		{domain.StatusFoundExternal, domain.TransitionFields{ExternalDownloadRef: &extRef}},
		{domain.StatusDownloading, domain.TransitionFields{}},
		{domain.StatusDownloaded, domain.TransitionFields{LibraryTrackID: &libID}},
	} {
		_, err := f.db.TransitionMissing(rec.ID, step.to, step.fields)
		require.NoError(t, err, "transition to %s", step.to)
	}

	pending, err = f.db.ListMissingByStatus(domain.StatusPending, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := f.db.GetMissing(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.Status)
}

func TestReconcile_RerunTouchesExisting(t *testing.T) {
	f := setup(t)
	f.classics()

	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)
	_, err = f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	n, err := f.db.CountMissing(domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReconcile_SelfHealsOnRerun(t *testing.T) {
	f := setup(t)
	f.classics()

	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	f.library(t, lib("a", "Imagine", "John Lennon"), lib("b", "Yesterday", "The Beatles"))
	_, err = f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	n, err := f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReconcile_FailureIsolatedPerPlaylist(t *testing.T) {
	f := setup(t)
	f.classics()
	f.source.Fail("broken", domain.ErrServiceUnavailable)
	_, err := f.db.SavePlaylist(domain.PlaylistRef{Service: "static", PlaylistID: "broken", Name: "Broken"})
	require.NoError(t, err)
	_, err = f.db.SavePlaylist(domain.PlaylistRef{Service: "static", PlaylistID: "pl1", Name: "Classics"})
	require.NoError(t, err)

	outcomes, err := f.orch.RunReconcile(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byUnit := map[string]domain.OperationOutcome{}
	for _, o := range outcomes {
		byUnit[o.Unit] = o
	}
	assert.Equal(t, domain.OutcomeFailed, byUnit["static:broken"].Result)
	assert.Equal(t, domain.OutcomeOK, byUnit["static:pl1"].Result)

	n, err := f.db.CountMissing(domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	broken, err := f.db.GetPlaylist("static", "broken")
	require.NoError(t, err)
	require.NotNil(t, broken.LastError)
	assert.Contains(t, *broken.LastError, "unavailable")
}

func TestReconcile_UnknownService(t *testing.T) {
	f := setup(t)
	outcomes, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{{Service: "nope", PlaylistID: "x"}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeFailed, outcomes[0].Result)
}

func TestReconcile_SkipsUntitledEntries(t *testing.T) {
	f := setup(t)
	f.source.Set("pl1", "Mixed", src("", "Someone"), src("Imagine", "John Lennon"))

	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	n, err := f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweep_ConvergesAndIsIdempotent(t *testing.T) {
	f := setup(t)
	f.source.Set("pl1", "Mix",
		src("Imagine", "John Lennon"),
		src("Yesterday", "The Beatles"),
		src("Jolene", "Dolly Parton"),
		src("Hurt", "Johnny Cash"),
	)
	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	n, err := f.db.CountMissing("")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	f.library(t, lib("a", "Imagine", "John Lennon"), lib("b", "Yesterday", "The Beatles"))

	removed, err := f.orch.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err = f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err = f.orch.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	n, err = f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	at, err := store.NewSettingsRepo(f.db).GetTime(store.SettingLastSweepAt)
	require.NoError(t, err)
	assert.False(t, at.IsZero())
}

func TestSweep_LeavesTerminalRecords(t *testing.T) {
	f := setup(t)
	f.source.Set("pl1", "Mix", src("Imagine", "John Lennon"))
	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	recs, err := f.db.ListMissing(10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	_, err = f.db.TransitionMissing(recs[0].ID, domain.StatusDismissed, domain.TransitionFields{})
	require.NoError(t, err)

	f.library(t, lib("a", "Imagine", "John Lennon"))
	removed, err := f.orch.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	got, err := f.db.GetMissing(recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDismissed, got.Status)
}

func TestVerifyDownloaded(t *testing.T) {
	f := setup(t)
	f.source.Set("pl1", "Mix", src("Imagine", "John Lennon"))
	_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
	require.NoError(t, err)

	recs, err := f.db.ListMissing(10, 0)
	require.NoError(t, err)
	id := recs[0].ID
	extRef := "ext"
	for _, to := range []domain.LedgerStatus{domain.StatusSearching, domain.StatusFoundExternal, domain.StatusDownloading, domain.StatusDownloaded} {
		_, err := f.db.TransitionMissing(id, to, domain.TransitionFields{ExternalDownloadRef: &extRef})
		require.NoError(t, err)
	}

	gone, err := f.orch.VerifyDownloaded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, gone)

	f.library(t, lib("a", "Imagine", "John Lennon"))
	gone, err = f.orch.VerifyDownloaded(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gone)

	got, err := f.db.GetMissing(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.Status)
}

// blockingSource holds every fetch until released or cancelled.
type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) Name() string { return "slow" }

func (b *blockingSource) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]domain.SourceTrack, error) {
	select {
	case <-b.release:
		return []domain.SourceTrack{src("Imagine", "John Lennon")}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingSource) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	return "Slow", nil
}

func TestOperationLock_RejectsOverlap(t *testing.T) {
	f := setup(t)
	slow := &blockingSource{release: make(chan struct{})}
	f.orch.sources.Register(slow)
	target := []domain.PlaylistRef{{Service: "slow", PlaylistID: "x"}}

	require.NoError(t, f.orch.StartReconcile(target))
	err := f.orch.StartReconcile(target)
	assert.True(t, errors.Is(err, domain.ErrAlreadyRunning))

	assert.Eventually(t, func() bool {
		return f.orch.Status().Reconcile.Running
	}, time.Second, 10*time.Millisecond)

	// Sweeps share the operation lock.
	err = f.orch.StartSweep()
	assert.True(t, errors.Is(err, domain.ErrAlreadyRunning))
	_, err = f.orch.RunSweep(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAlreadyRunning))
	assert.Equal(t, domain.OperationReconciling, f.orch.Status().Kind)
	assert.False(t, f.orch.Status().Sweep.Running)

	close(slow.release)
	f.orch.Wait()

	status := f.orch.Status()
	assert.Equal(t, domain.OperationNone, status.Kind)
	assert.False(t, status.Reconcile.Running)
	assert.NotNil(t, status.Reconcile.FinishedAt)
	assert.NotEmpty(t, status.Recent)

	require.NoError(t, f.orch.StartReconcile(target))
	f.orch.Wait()
	require.NoError(t, f.orch.StartSweep())
	f.orch.Wait()
	assert.NotNil(t, f.orch.Status().Sweep.FinishedAt)
}

// cancellingIndex cancels the pass while the filesystem listing is built.
type cancellingIndex struct {
	*library.Index
	cancel context.CancelFunc
}

func (c *cancellingIndex) Listing(ctx context.Context, root string) (*library.Listing, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestReconcile_CancelledLookupLeavesLedgerAlone(t *testing.T) {
	f := setup(t)
	f.classics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orch.resolver = matcher.NewResolver(&cancellingIndex{Index: f.index, cancel: cancel}, matcher.Config{}, logger.Discard())

	outcomes, _ := f.orch.RunReconcile(ctx, []domain.PlaylistRef{ref})
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeCancelled, outcomes[0].Result)
	assert.Zero(t, outcomes[0].Processed)
	assert.Zero(t, outcomes[0].Missing)

	open, err := f.db.ListOpenMissing()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestStop_CancelsPass(t *testing.T) {
	f := setup(t)
	slow := &blockingSource{release: make(chan struct{})}
	f.orch.sources.Register(slow)

	require.NoError(t, f.orch.StartReconcile([]domain.PlaylistRef{{Service: "slow", PlaylistID: "x"}}))
	assert.Eventually(t, func() bool {
		return f.orch.Status().Reconcile.Running
	}, time.Second, 10*time.Millisecond)

	assert.True(t, f.orch.Stop(domain.OperationReconciling))
	f.orch.Wait()

	status := f.orch.Status()
	assert.False(t, status.Reconcile.Running)
	assert.Equal(t, "cancelled", status.Reconcile.Error)

	n, err := f.db.CountMissing("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.False(t, f.orch.Stop(domain.OperationReconciling))
}

func TestRecentOutcomesCapped(t *testing.T) {
	f := setup(t)
	f.source.Set("pl1", "Mix", src("Imagine", "John Lennon"))
	for i := 0; i < 25; i++ {
		_, err := f.orch.RunReconcile(context.Background(), []domain.PlaylistRef{ref})
		require.NoError(t, err)
	}
	assert.Len(t, f.orch.Status().Recent, 20)
}
