package downloader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// Worker drives acquisition in the background. Each tick polls live jobs,
// then advances due ledger records with bounded concurrency.
type Worker struct {
	coord         *Coordinator
	dispatcher    *Dispatcher
	ctx           context.Context
	Repo          *store.DB
	Logger        *logger.Logger
	jobs          map[string]*domain.DownloadJob
	busy          map[string]bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	tickMu        sync.Mutex
	MaxConcurrent int
	PollInterval  time.Duration
}

func NewWorker(repo *store.DB, coord *Coordinator, concurrency int, pollInterval time.Duration, log *logger.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.Default()
	}
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrency
	}
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}

	w := &Worker{
		coord:         coord,
		Repo:          repo,
		Logger:        log.WithComponent("worker"),
		jobs:          make(map[string]*domain.DownloadJob),
		busy:          make(map[string]bool),
		MaxConcurrent: concurrency,
		PollInterval:  pollInterval,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.dispatcher = NewDispatcher()
	search := StepFunc(w.searchStep)
	w.dispatcher.Register(domain.StatusPending, search)
	w.dispatcher.Register(domain.StatusSearching, search)
	w.dispatcher.Register(domain.StatusFoundExternal, StepFunc(w.submitStep))
	w.dispatcher.Register(domain.StatusDownloading, StepFunc(w.recheckStep))

	return w
}

func (w *Worker) Start() {
	w.Logger.Info("Starting worker", "concurrency", w.MaxConcurrent, "poll_interval", w.PollInterval)

	w.RecoverInterrupted(w.ctx)

	w.wg.Add(1)
	go w.processRecords()
}

func (w *Worker) Stop() {
	w.Logger.Info("Stopping worker")
	w.cancel()
	w.wg.Wait()
}

// RecoverInterrupted settles DOWNLOADING records whose jobs did not survive
// a restart.
func (w *Worker) RecoverInterrupted(ctx context.Context) {
	recs, err := w.Repo.ListMissingIn(domain.StatusDownloading)
	if err != nil {
		w.Logger.Error("Failed to find interrupted downloads", "error", err)
		return
	}

	for _, rec := range recs {
		if w.hasJob(rec.ID) {
			continue
		}
		w.Logger.Info("Recovering interrupted download", "record_id", rec.ID)
		if err := w.coord.Recover(ctx, rec); err != nil {
			w.Logger.Error("Failed to recover download", "record_id", rec.ID, "error", err)
		}
	}
}

func (w *Worker) processRecords() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Tick(w.ctx)
		}
	}
}

// Tick runs one acquisition pass and waits for it to finish.
func (w *Worker) Tick(ctx context.Context) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	w.pollJobs(ctx)
	w.dispatchDue(ctx)
}

// Jobs returns a snapshot of live download jobs, oldest first.
func (w *Worker) Jobs() []domain.DownloadJob {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.DownloadJob, 0, len(w.jobs))
	for _, j := range w.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].SubmittedAt.Before(out[k].SubmittedAt) })
	return out
}

func (w *Worker) pollJobs(ctx context.Context) {
	for _, job := range w.Jobs() {
		if ctx.Err() != nil {
			return
		}
		state := w.coord.Poll(ctx, &job)
		if !state.IsTerminal() {
			w.putJob(&job)
			continue
		}

		done, err := w.coord.OnTerminal(ctx, &job)
		if err != nil {
			w.Logger.Error("Failed to settle download", "job_id", job.ID, "record_id", job.MissingTrackID, "error", err)
			var invalid *domain.InvalidTransitionError
			done = done || errors.As(err, &invalid) || errors.Is(err, domain.ErrNotFound)
		}
		if done {
			w.dropJob(job.MissingTrackID)
		} else {
			w.putJob(&job)
		}
	}
}

func (w *Worker) dispatchDue(ctx context.Context) {
	recs, err := w.Repo.ListMissingIn(
		domain.StatusPending,
		domain.StatusSearching,
		domain.StatusFoundExternal,
		domain.StatusDownloading,
	)
	if err != nil {
		w.Logger.Error("Failed to list open records", "error", err)
		return
	}

	now := time.Now()
	w.mu.Lock()
	slots := w.MaxConcurrent - len(w.jobs)
	w.mu.Unlock()

	sem := make(chan struct{}, w.MaxConcurrent)
	var wg sync.WaitGroup

	for _, rec := range recs {
		if rec.NextAttemptAt != nil && rec.NextAttemptAt.After(now) {
			continue
		}
		if !w.dispatcher.Handles(rec.Status) {
			continue
		}
		if rec.Status == domain.StatusFoundExternal {
			if slots <= 0 {
				continue
			}
			slots--
		}
		if !w.claim(rec.ID) {
			continue
		}

		select {
		case <-ctx.Done():
			w.release(rec.ID)
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(rec *domain.MissingTrack) {
			defer wg.Done()
			defer func() { <-sem }()
			defer w.release(rec.ID)
			w.runRecord(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

func (w *Worker) runRecord(ctx context.Context, rec *domain.MissingTrack) {
	log := w.Logger.WithRecord(rec.ID, rec.Title)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in acquisition step", "status", rec.Status, "panic", r)
			_, _ = w.Repo.RecordAttemptFailure(rec.ID, fmt.Errorf("panic: %v", r), time.Now().Add(w.coord.Backoff(rec.AttemptCount+1)))
		}
	}()

	if err := w.dispatcher.Dispatch(ctx, rec, log); err != nil && ctx.Err() == nil {
		log.Debug("Acquisition step ended with error", "status", rec.Status, "error", err)
	}
}

func (w *Worker) searchStep(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error {
	_, err := w.coord.Search(ctx, rec)
	return err
}

func (w *Worker) submitStep(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error {
	job, err := w.coord.Submit(ctx, rec)
	if err != nil {
		return err
	}
	w.putJob(job)
	return nil
}

// recheckStep only sees DOWNLOADING records without a live job: downloads
// whose confirmation ran out.
func (w *Worker) recheckStep(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error {
	if w.hasJob(rec.ID) {
		return nil
	}
	return w.coord.Recheck(ctx, rec)
}

func (w *Worker) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy[id] || w.jobs[id] != nil {
		return false
	}
	w.busy[id] = true
	return true
}

func (w *Worker) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.busy, id)
}

func (w *Worker) hasJob(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobs[id] != nil
}

func (w *Worker) putJob(job *domain.DownloadJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs[job.MissingTrackID] = job
}

func (w *Worker) dropJob(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.jobs, id)
}
