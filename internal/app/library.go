package app

import (
	"context"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
)

type LibraryService struct {
	Index    *library.Index
	Resolver *matcher.Resolver
	Logger   *logger.Logger
}

func NewLibraryService(index *library.Index, resolver *matcher.Resolver, log *logger.Logger) *LibraryService {
	return &LibraryService{Index: index, Resolver: resolver, Logger: log.WithComponent("library")}
}

// Rebuild rescans the library root and replaces the index.
func (s *LibraryService) Rebuild(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.Index.Refresh(ctx)
	if err != nil {
		return 0, err
	}
	s.Logger.Info("Library rebuilt", "tracks", n, "duration", time.Since(start))
	return n, nil
}

type LibraryStats struct {
	Root      string        `json:"root"`
	Tracks    int           `json:"tracks"`
	ScannedAt *time.Time    `json:"scanned_at,omitempty"`
	Matching  matcher.Stats `json:"matching"`
}

func (s *LibraryService) Stats() (*LibraryStats, error) {
	n, err := s.Index.Count()
	if err != nil {
		return nil, err
	}
	stats := &LibraryStats{Root: s.Index.Root(), Tracks: n}
	if at, err := s.Index.LastScan(); err == nil && !at.IsZero() {
		stats.ScannedAt = &at
	}
	if s.Resolver != nil {
		stats.Matching = s.Resolver.Stats()
	}
	return stats, nil
}

// Get returns one indexed track.
func (s *LibraryService) Get(id string) (*domain.LibraryTrack, error) {
	return s.Index.Get(id)
}
