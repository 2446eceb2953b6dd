// Package playlist fetches track lists from streaming-service playlists.
package playlist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

// Source is one streaming service's playlist API.
type Source interface {
	Name() string
	// FetchPlaylistTracks returns the playlist entries in order. It fails with
	// domain.ErrNotFound or domain.ErrServiceUnavailable.
	FetchPlaylistTracks(ctx context.Context, playlistID string) ([]domain.SourceTrack, error)
	PlaylistName(ctx context.Context, playlistID string) (string, error)
}

// Registry maps service names to sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[strings.ToLower(s.Name())] = s
}

func (r *Registry) Get(service string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[strings.ToLower(service)]
	if !ok {
		return nil, fmt.Errorf("%w: playlist service %q", domain.ErrNotFound, service)
	}
	return s, nil
}

// Names lists the registered services, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) FetchPlaylistTracks(ctx context.Context, service, playlistID string) ([]domain.SourceTrack, error) {
	s, err := r.Get(service)
	if err != nil {
		return nil, err
	}
	return s.FetchPlaylistTracks(ctx, playlistID)
}

// ParseRef parses "service:playlistId". A bare id is rejected.
func ParseRef(s string) (domain.PlaylistRef, error) {
	service, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || service == "" || id == "" {
		return domain.PlaylistRef{}, fmt.Errorf("invalid playlist reference %q, want service:playlistId", s)
	}
	return domain.PlaylistRef{Service: strings.ToLower(service), PlaylistID: id}, nil
}

// StaticSource serves fixed playlists. Used in tests and for offline runs.
type StaticSource struct {
	ServiceName string

	mu        sync.Mutex
	playlists map[string][]domain.SourceTrack
	names     map[string]string
	errs      map[string]error
	Fetches   int
}

func NewStaticSource(name string) *StaticSource {
	return &StaticSource{
		ServiceName: name,
		playlists:   make(map[string][]domain.SourceTrack),
		names:       make(map[string]string),
		errs:        make(map[string]error),
	}
}

func (s *StaticSource) Set(playlistID, name string, tracks ...domain.SourceTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[playlistID] = tracks
	s.names[playlistID] = name
	delete(s.errs, playlistID)
}

func (s *StaticSource) Fail(playlistID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[playlistID] = err
}

func (s *StaticSource) Name() string {
	return s.ServiceName
}

func (s *StaticSource) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]domain.SourceTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[playlistID]; ok {
		return nil, err
	}
	tracks, ok := s.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: playlist %s", domain.ErrNotFound, playlistID)
	}
	return append([]domain.SourceTrack(nil), tracks...), nil
}

func (s *StaticSource) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[playlistID]
	if !ok {
		return "", fmt.Errorf("%w: playlist %s", domain.ErrNotFound, playlistID)
	}
	return name, nil
}
