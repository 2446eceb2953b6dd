package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arunsworld/nursery"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type fetched struct {
	ref    domain.PlaylistRef
	tracks []domain.SourceTrack
	err    error
}

// targetsOrSelected resolves an empty target list to every selected playlist.
func (o *Orchestrator) targetsOrSelected(targets []domain.PlaylistRef) ([]domain.PlaylistRef, error) {
	if len(targets) > 0 {
		return targets, nil
	}
	playlists, err := o.repo.ListPlaylists(true)
	if err != nil {
		return nil, fmt.Errorf("failed to list selected playlists: %w", err)
	}
	refs := make([]domain.PlaylistRef, 0, len(playlists))
	for _, p := range playlists {
		refs = append(refs, domain.PlaylistRef{Service: p.Service, PlaylistID: p.PlaylistID, Name: p.Name})
	}
	return refs, nil
}

// fetchAll pulls every target concurrently. A failed fetch is kept on its
// own entry and never cancels its siblings.
func (o *Orchestrator) fetchAll(ctx context.Context, targets []domain.PlaylistRef) []fetched {
	results := make([]fetched, len(targets))
	jobs := make([]nursery.ConcurrentJob, len(targets))
	for i, ref := range targets {
		results[i].ref = ref
		jobs[i] = func(context.Context, chan error) {
			src, err := o.sources.Get(ref.Service)
			if err != nil {
				results[i].err = err
				return
			}
			tracks, err := src.FetchPlaylistTracks(ctx, ref.PlaylistID)
			if err != nil {
				results[i].err = err
				return
			}
			results[i].tracks = tracks
			if results[i].ref.Name == "" {
				if name, err := src.PlaylistName(ctx, ref.PlaylistID); err == nil {
					results[i].ref.Name = name
				}
			}
		}
	}
	if len(jobs) > 0 {
		_ = nursery.RunConcurrently(jobs...)
	}
	return results
}

func (o *Orchestrator) runReconcile(ctx context.Context, targets []domain.PlaylistRef) (outcomes []domain.OperationOutcome, err error) {
	kind := domain.OperationReconciling
	o.started(kind, 0)
	defer func() {
		if err == nil {
			err = cancelled(ctx)
		}
		o.finished(kind, err)
	}()

	targets, err = o.targetsOrSelected(targets)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		o.logger.Info("No playlists selected for reconciliation")
		return nil, nil
	}

	results := o.fetchAll(ctx, targets)

	total := 0
	for _, r := range results {
		total += len(r.tracks)
	}
	o.progress(kind, 0, total, "")

	// One batch per pass: the filesystem tier's directory cache lives for
	// exactly this walk.
	batch := o.resolver.NewBatch(o.root)
	processed := 0
	for _, r := range results {
		if ctx.Err() != nil {
			break
		}
		out := o.reconcilePlaylist(ctx, batch, r, &processed, total)
		o.record(out)
		outcomes = append(outcomes, out)
	}

	o.logger.Info("Reconciliation pass finished", "playlists", len(results), "tracks", processed)
	return outcomes, nil
}

func (o *Orchestrator) reconcilePlaylist(ctx context.Context, batch *matcher.Batch, r fetched, processed *int, total int) domain.OperationOutcome {
	log := o.logger.WithPlaylist(r.ref.Service, r.ref.PlaylistID)
	out := domain.OperationOutcome{Kind: domain.OperationReconciling, Unit: r.ref.String()}
	defer func() {
		out.FinishedAt = time.Now().UTC()
		if syncErr := o.repo.RecordPlaylistSync(r.ref.Service, r.ref.PlaylistID, r.ref.Name, outcomeErr(out)); syncErr != nil {
			log.Warn("Failed to record playlist sync", "error", syncErr)
		}
	}()

	if r.err != nil {
		log.Warn("Playlist fetch failed", "error", r.err)
		out.Result = domain.OutcomeFailed
		out.Error = r.err.Error()
		return out
	}

	for _, t := range r.tracks {
		if ctx.Err() != nil {
			break
		}
		*processed++
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		o.progress(domain.OperationReconciling, *processed, total, t.Artist+" - "+t.Title)

		c := domain.CandidateTrack{
			Title:              t.Title,
			Artist:             t.Artist,
			Album:              t.Album,
			DurationSeconds:    t.DurationSeconds,
			SourcePlaylistID:   r.ref.PlaylistID,
			SourcePlaylistName: r.ref.Name,
			SourceServiceName:  r.ref.Service,
		}
		outcome := batch.Resolve(ctx, c)
		if ctx.Err() != nil {
			// A cancelled lookup is not a verified absence.
			break
		}
		out.Processed++
		if outcome.Present {
			out.Resolved++
		} else {
			out.Missing++
		}

		if _, err := o.repo.UpsertMissing(c, outcome); err != nil {
			log.Error("Failed to update ledger", "title", t.Title, "artist", t.Artist, "error", err)
		}
	}

	out.Result = outcomeResult(ctx, nil)
	if out.Result == domain.OutcomeCancelled {
		out.Error = "cancelled"
	}
	log.Info("Playlist reconciled", "processed", out.Processed, "missing", out.Missing, "present", out.Resolved)
	return out
}

func outcomeErr(out domain.OperationOutcome) error {
	if out.Result == domain.OutcomeFailed {
		return errors.New(out.Error)
	}
	return nil
}

func (o *Orchestrator) runSweep(ctx context.Context) (removed int, err error) {
	kind := domain.OperationSweeping
	o.started(kind, 0)
	out := domain.OperationOutcome{Kind: kind, Unit: "ledger"}
	defer func() {
		if err == nil {
			err = cancelled(ctx)
		}
		out.Result = outcomeResult(ctx, err)
		out.Error = errString(err)
		out.FinishedAt = time.Now().UTC()
		o.record(out)
		o.finished(kind, err)
	}()

	records, err := o.repo.ListOpenMissing()
	if err != nil {
		return 0, fmt.Errorf("failed to list open records: %w", err)
	}
	o.progress(kind, 0, len(records), "")

	batch := o.resolver.NewBatch(o.root)
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		o.progress(kind, i+1, len(records), rec.Artist+" - "+rec.Title)

		present := batch.Resolve(ctx, rec.Candidate()).Present
		if ctx.Err() != nil {
			break
		}
		out.Processed++
		if !present {
			out.Missing++
			continue
		}
		if err := o.repo.DeleteMissing(rec.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			o.logger.WithRecord(rec.ID, rec.Title).Error("Failed to remove resolved record", "error", err)
			continue
		}
		removed++
		out.Resolved++
	}

	if ctx.Err() == nil {
		if err := o.settings.SetTime(store.SettingLastSweepAt, time.Now().UTC()); err != nil {
			o.logger.Warn("Failed to record sweep time", "error", err)
		}
	}
	o.logger.Info("Verification sweep finished", "checked", out.Processed, "removed", removed)
	return removed, nil
}

// VerifyDownloaded re-checks DOWNLOADED records and returns the ids whose
// files the resolver can no longer find. Records are left untouched.
func (o *Orchestrator) VerifyDownloaded(ctx context.Context) ([]string, error) {
	records, err := o.repo.ListMissingIn(domain.StatusDownloaded)
	if err != nil {
		return nil, err
	}
	batch := o.resolver.NewBatch(o.root)
	var gone []string
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return gone, err
		}
		present := batch.Resolve(ctx, rec.Candidate()).Present
		if err := ctx.Err(); err != nil {
			return gone, err
		}
		if !present {
			gone = append(gone, rec.ID)
		}
	}
	return gone, nil
}
