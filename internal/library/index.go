// Package library maintains the local library index and probes the library
// filesystem for tracks the index has not seen yet.
package library

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hbollon/go-edlib"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

type Config struct {
	Root         string
	FuzzyFloor   float64
	ProbeTimeout time.Duration
}

// Index is the store-backed library index.
type Index struct {
	db       *store.DB
	settings *store.SettingsRepo
	scanner  *Scanner
	cfg      Config
	logger   *logger.Logger

	refreshMu sync.Mutex
}

func NewIndex(db *store.DB, scanner *Scanner, cfg Config, log *logger.Logger) *Index {
	if cfg.FuzzyFloor <= 0 {
		cfg.FuzzyFloor = constants.DefaultFuzzyFloor
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = constants.DefaultFSProbeTimeout
	}
	return &Index{
		db:       db,
		settings: store.NewSettingsRepo(db),
		scanner:  scanner,
		cfg:      cfg,
		logger:   log.WithComponent("library"),
	}
}

func (ix *Index) Root() string {
	return ix.cfg.Root
}

// Rebuild replaces the whole index with raws. Readers see the previous index
// until the new one is committed.
func (ix *Index) Rebuild(ctx context.Context, raws []domain.RawTrack) (int, error) {
	now := time.Now().UTC()
	tracks := make([]*domain.LibraryTrack, 0, len(raws))
	for _, raw := range raws {
		t := toLibraryTrack(raw, now)
		if t.NormalizedTitle == "" {
			ix.logger.Debug("Skipping track without a usable title", "path", raw.FilePath)
			continue
		}
		tracks = append(tracks, t)
	}

	count, err := ix.db.ReplaceLibrary(ctx, tracks)
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild library index: %w", err)
	}
	ix.logger.Info("Library index rebuilt", "tracks", count)
	return count, nil
}

// Refresh scans the configured root and rebuilds the index from it.
// Concurrent calls are serialized.
func (ix *Index) Refresh(ctx context.Context) (int, error) {
	if ix.scanner == nil || ix.cfg.Root == "" {
		return 0, fmt.Errorf("library root not configured")
	}

	ix.refreshMu.Lock()
	defer ix.refreshMu.Unlock()

	raws, err := ix.scanner.Scan(ctx, ix.cfg.Root)
	if err != nil {
		return 0, fmt.Errorf("library scan failed: %w", err)
	}
	count, err := ix.Rebuild(ctx, raws)
	if err != nil {
		return 0, err
	}

	if err := ix.settings.SetTime(store.SettingLibraryScannedAt, time.Now()); err != nil {
		ix.logger.Warn("Failed to record scan time", "error", err)
	}
	if err := ix.settings.Set(store.SettingLibraryScanSource, ix.cfg.Root); err != nil {
		ix.logger.Warn("Failed to record scan root", "error", err)
	}
	return count, nil
}

// Upsert indexes or re-indexes a single file.
func (ix *Index) Upsert(raw domain.RawTrack) error {
	return ix.db.UpsertLibraryTrack(toLibraryTrack(raw, time.Now().UTC()))
}

func (ix *Index) Count() (int, error) {
	return ix.db.CountLibrary()
}

// LastScan returns when the index was last rebuilt from disk.
func (ix *Index) LastScan() (time.Time, error) {
	return ix.settings.GetTime(store.SettingLibraryScannedAt)
}

func (ix *Index) Get(id string) (*domain.LibraryTrack, error) {
	return ix.db.GetLibraryTrack(id)
}

// LookupExact returns the track with exactly these normalized keys, or nil.
func (ix *Index) LookupExact(normalizedTitle, normalizedArtist string) (*domain.LibraryTrack, error) {
	return ix.db.FindLibraryExact(normalizedTitle, normalizedArtist)
}

// LookupFuzzyCandidates returns tracks by the exact normalized artist whose
// title similarity reaches the floor, best first.
func (ix *Index) LookupFuzzyCandidates(normalizedTitle, normalizedArtist string) ([]domain.ScoredTrack, error) {
	tracks, err := ix.db.ListLibraryByArtist(normalizedArtist)
	if err != nil {
		return nil, err
	}

	var scored []domain.ScoredTrack
	for _, t := range tracks {
		score := Similarity(normalizedTitle, t.NormalizedTitle)
		if score >= ix.cfg.FuzzyFloor {
			scored = append(scored, domain.ScoredTrack{Track: t, Score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// Listing snapshots root for filesystem probing, bounded by the probe timeout.
func (ix *Index) Listing(ctx context.Context, root string) (*Listing, error) {
	if root == "" {
		root = ix.cfg.Root
	}
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.ProbeTimeout)
	defer cancel()

	l, err := BuildListing(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrTransientIO, root, err)
	}
	return l, nil
}

// ExistsOnFilesystem probes root for a file matching title and artist.
func (ix *Index) ExistsOnFilesystem(ctx context.Context, title, artist, root string) (bool, error) {
	l, err := ix.Listing(ctx, root)
	if err != nil {
		return false, err
	}
	_, ok := l.Probe(title, artist)
	return ok, nil
}

// Similarity scores two normalized strings in [0, 1] by Levenshtein distance.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil {
		return 0
	}
	return float64(score)
}

func toLibraryTrack(raw domain.RawTrack, indexedAt time.Time) *domain.LibraryTrack {
	nt, na := normalize.Key(raw.Title, raw.Artist)
	return &domain.LibraryTrack{
		ID:               raw.LibraryID,
		Title:            raw.Title,
		Artist:           raw.Artist,
		Artists:          domain.StringSlice(raw.Artists),
		Album:            raw.Album,
		NormalizedTitle:  nt,
		NormalizedArtist: na,
		FilePath:         raw.FilePath,
		Duration:         raw.Duration,
		IndexedAt:        indexedAt,
	}
}
