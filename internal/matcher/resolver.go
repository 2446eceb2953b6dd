// Package matcher decides whether a playlist track is already in the local
// library.
package matcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
)

// Index is the library view the resolver reads from.
type Index interface {
	LookupExact(normalizedTitle, normalizedArtist string) (*domain.LibraryTrack, error)
	LookupFuzzyCandidates(normalizedTitle, normalizedArtist string) ([]domain.ScoredTrack, error)
	Listing(ctx context.Context, root string) (*library.Listing, error)
}

type Config struct {
	FuzzyThreshold float64
	FuzzyMargin    float64
}

// Stats are cumulative resolver counters, mostly useful for tuning thresholds.
type Stats struct {
	Exact      int64 `json:"exact"`
	Fuzzy      int64 `json:"fuzzy"`
	Filesystem int64 `json:"filesystem"`
	Absent     int64 `json:"absent"`
	Ambiguous  int64 `json:"ambiguous"`
	Errors     int64 `json:"errors"`
}

type Resolver struct {
	index  Index
	cfg    Config
	logger *logger.Logger

	// OnStaleIndex runs after a filesystem-tier hit. It must not block.
	OnStaleIndex func()

	exact, fuzzy, filesystem, absent, ambiguous, errors atomic.Int64
}

func NewResolver(index Index, cfg Config, log *logger.Logger) *Resolver {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = constants.DefaultFuzzyThreshold
	}
	if cfg.FuzzyMargin <= 0 {
		cfg.FuzzyMargin = constants.DefaultFuzzyMargin
	}
	return &Resolver{index: index, cfg: cfg, logger: log.WithComponent("resolver")}
}

// Resolve runs the exact, fuzzy and filesystem tiers in order and stops at
// the first hit. Errors inside a tier count as a miss for that tier.
func (r *Resolver) Resolve(ctx context.Context, c domain.CandidateTrack, root string) domain.MatchOutcome {
	return r.NewBatch(root).Resolve(ctx, c)
}

// Batch shares one lazily built filesystem listing across many resolutions.
type Batch struct {
	r    *Resolver
	root string

	once    sync.Once
	listing *library.Listing
	err     error
}

func (r *Resolver) NewBatch(root string) *Batch {
	return &Batch{r: r, root: root}
}

func (b *Batch) Resolve(ctx context.Context, c domain.CandidateTrack) domain.MatchOutcome {
	r := b.r
	nt, na := normalize.Key(c.Title, c.Artist)
	log := &logger.Logger{Logger: r.logger.With("title", c.Title, "artist", c.Artist)}

	if nt != "" {
		if out, ok := r.exactTier(nt, na, log); ok {
			return out
		}
		if out, ok := r.fuzzyTier(nt, na, log); ok {
			return out
		}
	}
	if out, ok := b.filesystemTier(ctx, c, log); ok {
		return out
	}

	r.absent.Add(1)
	return domain.Absent()
}

func (r *Resolver) exactTier(nt, na string, log *logger.Logger) (domain.MatchOutcome, bool) {
	hit, err := r.index.LookupExact(nt, na)
	if err != nil {
		r.errors.Add(1)
		log.Warn("Exact lookup failed", "error", err)
		return domain.MatchOutcome{}, false
	}
	if hit == nil {
		return domain.MatchOutcome{}, false
	}
	r.exact.Add(1)
	return domain.Present(hit.ID, domain.TierExact, 1), true
}

func (r *Resolver) fuzzyTier(nt, na string, log *logger.Logger) (domain.MatchOutcome, bool) {
	candidates, err := r.index.LookupFuzzyCandidates(nt, na)
	if err != nil {
		r.errors.Add(1)
		log.Warn("Fuzzy lookup failed", "error", err)
		return domain.MatchOutcome{}, false
	}
	best, ok, ambiguous := Pick(candidates, r.cfg.FuzzyThreshold, r.cfg.FuzzyMargin)
	if ambiguous {
		r.ambiguous.Add(1)
		log.Debug("Ambiguous fuzzy match", "top", candidates[0].Score, "runner_up", candidates[1].Score)
	}
	if !ok {
		return domain.MatchOutcome{}, false
	}
	r.fuzzy.Add(1)
	return domain.Present(best.Track.ID, domain.TierFuzzy, best.Score), true
}

// Pick applies the acceptance rule to candidates sorted best first: the top
// score must reach threshold and beat the runner-up by at least margin.
func Pick(candidates []domain.ScoredTrack, threshold, margin float64) (best domain.ScoredTrack, ok, ambiguous bool) {
	if len(candidates) == 0 || candidates[0].Score < threshold {
		return domain.ScoredTrack{}, false, false
	}
	// Scores are rounded before comparing so 0.90-0.85 counts as a full margin.
	if len(candidates) > 1 && round(candidates[0].Score-candidates[1].Score) < round(margin) {
		return domain.ScoredTrack{}, false, true
	}
	return candidates[0], true, false
}

func round(f float64) float64 {
	const scale = 1e9
	if f < 0 {
		return -float64(int64(-f*scale+0.5)) / scale
	}
	return float64(int64(f*scale+0.5)) / scale
}

func (b *Batch) filesystemTier(ctx context.Context, c domain.CandidateTrack, log *logger.Logger) (domain.MatchOutcome, bool) {
	r := b.r
	if b.root == "" {
		return domain.MatchOutcome{}, false
	}
	b.once.Do(func() {
		b.listing, b.err = r.index.Listing(ctx, b.root)
	})
	if b.err != nil {
		r.errors.Add(1)
		log.Warn("Filesystem probe failed", "root", b.root, "error", b.err)
		return domain.MatchOutcome{}, false
	}

	path, ok := b.listing.Probe(c.Title, c.Artist)
	if !ok {
		return domain.MatchOutcome{}, false
	}
	r.filesystem.Add(1)
	log.Info("Found on filesystem but not in index", "path", path)
	if r.OnStaleIndex != nil {
		r.OnStaleIndex()
	}
	return domain.Present("", domain.TierFilesystem, 1), true
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Exact:      r.exact.Load(),
		Fuzzy:      r.fuzzy.Load(),
		Filesystem: r.filesystem.Load(),
		Absent:     r.absent.Load(),
		Ambiguous:  r.ambiguous.Load(),
		Errors:     r.errors.Load(),
	}
}
