package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cesargomez89/trackreconciler/internal/constants"
	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/matcher"
	"github.com/cesargomez89/trackreconciler/internal/playlist"
	"github.com/cesargomez89/trackreconciler/internal/storage"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// PlaylistService manages the playlists registered for reconciliation.
type PlaylistService struct {
	Repo     *store.DB
	Sources  *playlist.Registry
	Resolver *matcher.Resolver
	Logger   *logger.Logger
}

func NewPlaylistService(repo *store.DB, sources *playlist.Registry, resolver *matcher.Resolver, log *logger.Logger) *PlaylistService {
	return &PlaylistService{Repo: repo, Sources: sources, Resolver: resolver, Logger: log.WithComponent("playlists")}
}

// Add registers and selects a playlist. The service must be known; the
// name is looked up when the ref carries none.
func (s *PlaylistService) Add(ctx context.Context, ref domain.PlaylistRef) (*domain.Playlist, error) {
	src, err := s.Sources.Get(ref.Service)
	if err != nil {
		return nil, err
	}
	if ref.Name == "" {
		name, err := src.PlaylistName(ctx, ref.PlaylistID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up playlist %s: %w", ref, err)
		}
		ref.Name = name
	}

	pl, err := s.Repo.SavePlaylist(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to save playlist: %w", err)
	}
	s.Logger.Info("Playlist added", "playlist", ref.String(), "name", pl.Name)
	return pl, nil
}

func (s *PlaylistService) List(selectedOnly bool) ([]*domain.Playlist, error) {
	return s.Repo.ListPlaylists(selectedOnly)
}

func (s *PlaylistService) Select(ref domain.PlaylistRef) error {
	return s.Repo.SetPlaylistSelected(ref.Service, ref.PlaylistID, true)
}

func (s *PlaylistService) Deselect(ref domain.PlaylistRef) error {
	return s.Repo.SetPlaylistSelected(ref.Service, ref.PlaylistID, false)
}

// Remove forgets a playlist. Ledger records detected from it are kept.
func (s *PlaylistService) Remove(ref domain.PlaylistRef) error {
	if err := s.Repo.DeletePlaylist(ref.Service, ref.PlaylistID); err != nil {
		return err
	}
	s.Logger.Info("Playlist removed", "playlist", ref.String())
	return nil
}

// ExportM3U writes an extended M3U of the playlist entries present in the
// library, in playlist order, and returns the file path and entry count.
// Filesystem-tier hits have no indexed file and are left out.
func (s *PlaylistService) ExportM3U(ctx context.Context, ref domain.PlaylistRef, dir string) (string, int, error) {
	tracks, err := s.Sources.FetchPlaylistTracks(ctx, ref.Service, ref.PlaylistID)
	if err != nil {
		return "", 0, err
	}
	if ref.Name == "" {
		if pl, err := s.Repo.GetPlaylist(ref.Service, ref.PlaylistID); err == nil {
			ref.Name = pl.Name
		}
	}
	if ref.Name == "" {
		ref.Name = ref.PlaylistID
	}

	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return "", 0, fmt.Errorf("failed to create playlists directory: %w", err)
	}
	playlistPath := filepath.Join(dir, storage.Sanitize(ref.Name)+".m3u")

	f, err := os.Create(playlistPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create playlist file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("#EXTM3U\n"); err != nil {
		return "", 0, fmt.Errorf("failed to write playlist header: %w", err)
	}

	batch := s.Resolver.NewBatch("")
	written := 0
	for _, t := range tracks {
		out := batch.Resolve(ctx, domain.CandidateTrack{Title: t.Title, Artist: t.Artist, Album: t.Album})
		if !out.Present || out.LibraryTrackID == "" {
			continue
		}
		lt, err := s.Repo.GetLibraryTrack(out.LibraryTrackID)
		if err != nil {
			continue
		}
		path := lt.FilePath
		if rel, err := filepath.Rel(dir, lt.FilePath); err == nil {
			path = rel
		}
		line := fmt.Sprintf("#EXTINF:%d,%s - %s\n%s\n", lt.Duration, lt.Artist, lt.Title, path)
		if _, err := f.WriteString(line); err != nil {
			return "", 0, fmt.Errorf("failed to write track to playlist: %w", err)
		}
		written++
	}

	s.Logger.Info("Playlist exported", "playlist", ref.String(), "path", playlistPath, "tracks", written, "of", len(tracks))
	return playlistPath, written, nil
}
