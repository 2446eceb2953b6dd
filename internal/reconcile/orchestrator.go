// Package reconcile walks source playlists against the library, keeps the
// missing-track ledger current and runs verification sweeps over it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// Orchestrator runs reconciliation passes and verification sweeps. Both
// share one operation lock: a start while anything runs is rejected, not
// queued.
type Orchestrator struct {
	repo     *store.DB
	settings *store.SettingsRepo
	sources  *playlist.Registry
	resolver *matcher.Resolver
	root     string
	logger   *logger.Logger

	opMu sync.Mutex

	reconcileStatus atomic.Pointer[domain.OperationStatus]
	sweepStatus     atomic.Pointer[domain.OperationStatus]

	recentMu sync.Mutex
	recent   []domain.OperationOutcome

	cancelMu sync.Mutex
	cancels  map[domain.OperationKind]context.CancelFunc

	baseCtx  context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

func NewOrchestrator(repo *store.DB, sources *playlist.Registry, resolver *matcher.Resolver, libraryRoot string, log *logger.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		repo:     repo,
		settings: store.NewSettingsRepo(repo),
		sources:  sources,
		resolver: resolver,
		root:     libraryRoot,
		logger:   log.WithComponent("reconcile"),
		cancels:  make(map[domain.OperationKind]context.CancelFunc),
		baseCtx:  ctx,
		shutdown: cancel,
	}
	o.reconcileStatus.Store(&domain.OperationStatus{Kind: domain.OperationReconciling})
	o.sweepStatus.Store(&domain.OperationStatus{Kind: domain.OperationSweeping})
	return o
}

// StartReconcile begins a pass in the background. No targets means every
// selected playlist.
func (o *Orchestrator) StartReconcile(targets []domain.PlaylistRef) error {
	if err := o.acquire(); err != nil {
		return err
	}
	ctx := o.begin(domain.OperationReconciling)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.opMu.Unlock()
		defer o.end(domain.OperationReconciling)
		if _, err := o.runReconcile(ctx, targets); err != nil {
			o.logger.Error("Reconciliation failed", "error", err)
		}
	}()
	return nil
}

// RunReconcile is the synchronous form of StartReconcile.
func (o *Orchestrator) RunReconcile(ctx context.Context, targets []domain.PlaylistRef) ([]domain.OperationOutcome, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.opMu.Unlock()
	return o.runReconcile(ctx, targets)
}

// StartSweep begins a verification sweep in the background.
func (o *Orchestrator) StartSweep() error {
	if err := o.acquire(); err != nil {
		return err
	}
	ctx := o.begin(domain.OperationSweeping)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.opMu.Unlock()
		defer o.end(domain.OperationSweeping)
		if _, err := o.runSweep(ctx); err != nil {
			o.logger.Error("Verification sweep failed", "error", err)
		}
	}()
	return nil
}

// RunSweep is the synchronous form of StartSweep. It returns the number of
// records removed.
func (o *Orchestrator) RunSweep(ctx context.Context) (int, error) {
	if err := o.acquire(); err != nil {
		return 0, err
	}
	defer o.opMu.Unlock()
	return o.runSweep(ctx)
}

// acquire takes the operation lock or reports what holds it.
func (o *Orchestrator) acquire() error {
	if o.opMu.TryLock() {
		return nil
	}
	kind := o.Status().Kind
	if kind == domain.OperationNone {
		return fmt.Errorf("%w: another operation is in progress", domain.ErrAlreadyRunning)
	}
	return fmt.Errorf("%w: %s in progress", domain.ErrAlreadyRunning, kind)
}

// Stop cancels the running operation of the given kind. It reports whether
// one was running.
func (o *Orchestrator) Stop(kind domain.OperationKind) bool {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	cancel, ok := o.cancels[kind]
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels everything and waits for background work to return.
func (o *Orchestrator) Shutdown() {
	o.shutdown()
	o.wg.Wait()
}

// Wait blocks until background operations started so far have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) begin(kind domain.OperationKind) context.Context {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancelMu.Lock()
	o.cancels[kind] = cancel
	o.cancelMu.Unlock()
	return ctx
}

func (o *Orchestrator) end(kind domain.OperationKind) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if cancel, ok := o.cancels[kind]; ok {
		cancel()
		delete(o.cancels, kind)
	}
}

// Status is the dashboard feed. Every field is a snapshot.
func (o *Orchestrator) Status() domain.StatusFeed {
	rec := *o.reconcileStatus.Load()
	sweep := *o.sweepStatus.Load()

	kind := domain.OperationNone
	switch {
	case rec.Running:
		kind = domain.OperationReconciling
	case sweep.Running:
		kind = domain.OperationSweeping
	}

	o.recentMu.Lock()
	recent := append([]domain.OperationOutcome(nil), o.recent...)
	o.recentMu.Unlock()

	return domain.StatusFeed{Kind: kind, Reconcile: rec, Sweep: sweep, Recent: recent}
}

func (o *Orchestrator) statusFor(kind domain.OperationKind) *atomic.Pointer[domain.OperationStatus] {
	if kind == domain.OperationSweeping {
		return &o.sweepStatus
	}
	return &o.reconcileStatus
}

func (o *Orchestrator) publish(kind domain.OperationKind, s *domain.OperationStatus) {
	o.statusFor(kind).Store(s)
}

func (o *Orchestrator) started(kind domain.OperationKind, total int) {
	now := time.Now().UTC()
	o.publish(kind, &domain.OperationStatus{Kind: kind, Running: true, Total: total, StartedAt: &now})
}

func (o *Orchestrator) progress(kind domain.OperationKind, processed, total int, current string) {
	o.publish(kind, o.statusFor(kind).Load().WithProgress(processed, total, current))
}

func (o *Orchestrator) finished(kind domain.OperationKind, err error) {
	o.publish(kind, o.statusFor(kind).Load().Finished(time.Now().UTC(), err))
}

func (o *Orchestrator) record(out domain.OperationOutcome) {
	o.recentMu.Lock()
	defer o.recentMu.Unlock()
	o.recent = append([]domain.OperationOutcome{out}, o.recent...)
	if len(o.recent) > constants.MaxRecentOutcomes {
		o.recent = o.recent[:constants.MaxRecentOutcomes]
	}
}

func outcomeResult(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return domain.OutcomeCancelled
	case err != nil:
		return domain.OutcomeFailed
	}
	return domain.OutcomeOK
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// cancelled reports ctx cancellation as an error for the status feed.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.New("cancelled")
	}
	return nil
}
