// Package downloader acquires missing tracks from the external catalog and
// carries their ledger records through the acquisition states.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/trackreconciler/internal/catalog"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/storage"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// Resolver re-checks a candidate against the library.
type Resolver interface {
	Resolve(ctx context.Context, c domain.CandidateTrack, root string) domain.MatchOutcome
}

// Indexer takes a freshly organized file into the library index.
type Indexer interface {
	Upsert(raw domain.RawTrack) error
}

type Config struct {
	LibraryRoot      string
	CatalogThreshold float64
	MaxAttempts      int
	RetryBase        time.Duration
	RetryCap         time.Duration
	SearchTimeout    time.Duration
	DownloadTimeout  time.Duration
	ConfirmAttempts  int
}

// Coordinator implements search, submit, poll and terminal handling for
// acquisition attempts. It holds no job state of its own.
type Coordinator struct {
	repo      *store.DB
	source    catalog.Source
	resolver  Resolver
	organizer *Organizer
	indexer   Indexer
	cfg       Config
	logger    *logger.Logger

	// OnAcquired runs after a download lands, to request an index refresh.
	OnAcquired func()
}

func NewCoordinator(repo *store.DB, source catalog.Source, resolver Resolver, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 1
	}
	return &Coordinator{
		repo:     repo,
		source:   source,
		resolver: resolver,
		cfg:      cfg,
		logger:   log.WithComponent("acquisition"),
	}
}

// WithOrganizer moves finished downloads into the library and indexes them.
func (c *Coordinator) WithOrganizer(o *Organizer, ix Indexer) *Coordinator {
	c.organizer = o
	c.indexer = ix
	return c
}

// bounded applies d to ctx; zero means no limit beyond ctx.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Backoff is the delay before retry number attempt (1-based).
func (c *Coordinator) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.cfg.RetryCap > 0 && d >= c.cfg.RetryCap {
			return c.cfg.RetryCap
		}
	}
	if c.cfg.RetryCap > 0 && d > c.cfg.RetryCap {
		return c.cfg.RetryCap
	}
	return d
}

// Search looks the record up in the catalog and keeps the first hit that
// passes validation. Misses and catalog errors count as failed attempts.
func (c *Coordinator) Search(ctx context.Context, rec *domain.MissingTrack) (string, error) {
	log := c.logger.WithRecord(rec.ID, rec.Title)

	if rec.Status == domain.StatusPending {
		updated, err := c.repo.TransitionMissing(rec.ID, domain.StatusSearching, domain.TransitionFields{})
		if err != nil {
			return "", err
		}
		rec = updated
	}
	if rec.Status != domain.StatusSearching {
		return "", &domain.InvalidTransitionError{ID: rec.ID, From: rec.Status, To: domain.StatusSearching}
	}

	searchCtx, cancel := bounded(ctx, c.cfg.SearchTimeout)
	defer cancel()

	hits, err := c.source.SearchCatalog(searchCtx, rec.Title, rec.Artist, rec.Album)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn("Catalog search failed", "error", err)
		return "", c.failAttempt(rec, fmt.Errorf("catalog search failed: %w", err))
	}

	for _, hit := range hits {
		if !catalog.Validate(rec.Title, rec.Artist, hit, c.cfg.CatalogThreshold) {
			continue
		}
		ref := hit.ExternalRef
		if _, err := c.repo.TransitionMissing(rec.ID, domain.StatusFoundExternal, domain.TransitionFields{
			ExternalDownloadRef: &ref,
			ClearError:          true,
		}); err != nil {
			return "", err
		}
		log.Info("Found external match", "ref", ref, "score", hit.Score)
		return ref, nil
	}

	log.Info("No acceptable catalog match", "hits", len(hits))
	return "", c.failAttempt(rec, fmt.Errorf("no catalog match among %d results", len(hits)))
}

// Submit starts a download for a FOUND_EXTERNAL record and moves it to
// DOWNLOADING. A download that cannot be started is a failed attempt.
func (c *Coordinator) Submit(ctx context.Context, rec *domain.MissingTrack) (*domain.DownloadJob, error) {
	if rec.ExternalDownloadRef == "" {
		return nil, fmt.Errorf("record %s has no external reference", rec.ID)
	}
	log := c.logger.WithRecord(rec.ID, rec.Title)

	updated, err := c.repo.TransitionMissing(rec.ID, domain.StatusDownloading, domain.TransitionFields{})
	if err != nil {
		return nil, err
	}
	if err := c.repo.MarkAttempted(rec.ID); err != nil {
		log.Warn("Failed to stamp attempt", "error", err)
	}

	hint := storage.DestinationHint(rec.Artist, rec.Album)
	startCtx, cancel := bounded(ctx, c.cfg.DownloadTimeout)
	defer cancel()
	handle, err := c.source.StartDownload(startCtx, rec.ExternalDownloadRef, hint)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-submit; the record is resubmitted on restart.
			return nil, ctx.Err()
		}
		log.Warn("Failed to start download", "error", err)
		return nil, c.failAttempt(updated, fmt.Errorf("failed to start download: %w", err))
	}

	job := &domain.DownloadJob{
		ID:             uuid.New().String(),
		MissingTrackID: rec.ID,
		ExternalRef:    rec.ExternalDownloadRef,
		Handle:         handle,
		AttemptNumber:  updated.AttemptCount + 1,
		State:          domain.JobQueued,
		SubmittedAt:    time.Now().UTC(),
	}
	log.Info("Download submitted", "job_id", job.ID, "handle", handle, "attempt", job.AttemptNumber)
	return job, nil
}

// Poll refreshes job from the download engine. Poll errors leave the job
// state unchanged.
func (c *Coordinator) Poll(ctx context.Context, job *domain.DownloadJob) domain.JobState {
	pollCtx, cancel := bounded(ctx, c.cfg.DownloadTimeout)
	defer cancel()
	p, err := c.source.PollJob(pollCtx, job.Handle)
	if err != nil {
		c.logger.Debug("Poll failed", "job_id", job.ID, "error", err)
		return job.State
	}
	job.State = p.State
	job.Error = p.Error
	if p.LocalPath != "" {
		job.LocalPath = p.LocalPath
	}
	return job.State
}

// OnTerminal settles a finished job. It reports whether the job is done;
// false means a successful download is still awaiting confirmation.
func (c *Coordinator) OnTerminal(ctx context.Context, job *domain.DownloadJob) (bool, error) {
	rec, err := c.repo.GetMissing(job.MissingTrackID)
	if errors.Is(err, domain.ErrNotFound) {
		// Deleted by a sweep or cleanup while downloading.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Status != domain.StatusDownloading {
		// An operator resolved or dismissed it meanwhile.
		return true, nil
	}
	log := c.logger.WithRecord(rec.ID, rec.Title)

	if job.State == domain.JobFailed {
		msg := job.Error
		if msg == "" {
			msg = "download failed"
		}
		log.Warn("Download failed", "job_id", job.ID, "error", msg)
		_, err := c.fail(rec, errors.New(msg))
		return true, err
	}

	if job.OrganizedPath == "" && job.LocalPath != "" {
		c.organize(ctx, job, rec, log)
	}

	ok, err := c.Confirm(ctx, rec)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	job.Confirmations++
	if job.Confirmations < c.cfg.ConfirmAttempts {
		log.Debug("Download not visible in library yet", "confirmations", job.Confirmations)
		return false, nil
	}
	log.Warn("Download could not be confirmed, will recheck later", "confirmations", job.Confirmations)
	return true, c.repo.ScheduleMissing(rec.ID, time.Now().Add(c.recheckDelay()))
}

func (c *Coordinator) organize(ctx context.Context, job *domain.DownloadJob, rec *domain.MissingTrack, log *logger.Logger) {
	defer func() {
		if c.OnAcquired != nil {
			c.OnAcquired()
		}
	}()
	if c.organizer == nil {
		return
	}

	raw, err := c.organizer.Organize(ctx, job.LocalPath, rec)
	if err != nil {
		log.Warn("Failed to organize download", "path", job.LocalPath, "error", err)
		return
	}
	job.OrganizedPath = raw.FilePath
	if c.indexer != nil {
		if err := c.indexer.Upsert(raw); err != nil {
			log.Warn("Failed to index download", "path", raw.FilePath, "error", err)
		}
	}
	log.Info("Download organized", "path", raw.FilePath)
}

// Confirm re-resolves a DOWNLOADING record and closes it as DOWNLOADED when
// the track is visible in the library.
func (c *Coordinator) Confirm(ctx context.Context, rec *domain.MissingTrack) (bool, error) {
	outcome := c.resolver.Resolve(ctx, rec.Candidate(), c.cfg.LibraryRoot)
	if !outcome.Present {
		return false, nil
	}
	libID := outcome.LibraryTrackID
	if _, err := c.repo.TransitionMissing(rec.ID, domain.StatusDownloaded, domain.TransitionFields{
		LibraryTrackID: &libID,
		ClearError:     true,
	}); err != nil {
		return false, err
	}
	c.logger.WithRecord(rec.ID, rec.Title).Info("Download confirmed", "tier", outcome.Tier, "library_track_id", libID)
	return true, nil
}

// Recheck confirms a DOWNLOADING record that has no live job, and pushes
// the next check out when it is still not visible.
func (c *Coordinator) Recheck(ctx context.Context, rec *domain.MissingTrack) error {
	ok, err := c.Confirm(ctx, rec)
	if err != nil || ok {
		return err
	}
	return c.repo.ScheduleMissing(rec.ID, time.Now().Add(c.recheckDelay()))
}

// Recover handles a DOWNLOADING record whose job was lost with the process:
// confirm it, or send it back to FOUND_EXTERNAL for resubmission.
func (c *Coordinator) Recover(ctx context.Context, rec *domain.MissingTrack) error {
	ok, err := c.Confirm(ctx, rec)
	if err != nil || ok {
		return err
	}
	_, err = c.repo.TransitionMissing(rec.ID, domain.StatusFoundExternal, domain.TransitionFields{})
	return err
}

func (c *Coordinator) recheckDelay() time.Duration {
	if c.cfg.RetryCap > 0 {
		return c.cfg.RetryCap
	}
	return c.Backoff(c.cfg.MaxAttempts)
}

// fail records a failed attempt for a SEARCHING or DOWNLOADING record and
// either schedules the retry or closes the record as FAILED. The error is a
// ledger error, never cause.
func (c *Coordinator) fail(rec *domain.MissingTrack, cause error) (exhausted bool, err error) {
	attempt := rec.AttemptCount + 1
	retryAt := time.Now().Add(c.Backoff(attempt))

	updated, err := c.repo.RecordAttemptFailure(rec.ID, cause, retryAt)
	if err != nil {
		return false, err
	}

	if updated.AttemptCount >= c.cfg.MaxAttempts {
		if _, err := c.repo.TransitionMissing(rec.ID, domain.StatusFailed, domain.TransitionFields{}); err != nil {
			return false, err
		}
		c.logger.WithRecord(rec.ID, rec.Title).Warn("Retries exhausted", "attempts", updated.AttemptCount, "error", cause)
		return true, nil
	}

	if updated.Status == domain.StatusDownloading {
		if _, err := c.repo.TransitionMissing(rec.ID, domain.StatusFoundExternal, domain.TransitionFields{
			NextAttemptAt: &retryAt,
		}); err != nil {
			return false, err
		}
	}
	return false, nil
}

// failAttempt is fail for callers that report the attempt's own error.
func (c *Coordinator) failAttempt(rec *domain.MissingTrack, cause error) error {
	exhausted, err := c.fail(rec, cause)
	switch {
	case err != nil:
		return err
	case exhausted:
		return fmt.Errorf("%w: %v", domain.ErrRetriesExhausted, cause)
	}
	return cause
}
