package library

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/storage"
	"github.com/cesargomez89/trackreconciler/internal/tagging"
)

// Scanner walks a library root and reads track metadata from audio files.
type Scanner struct {
	logger *logger.Logger
}

func NewScanner(log *logger.Logger) *Scanner {
	return &Scanner{logger: log.WithComponent("scanner")}
}

// Scan returns one RawTrack per audio file under root, ordered by path.
// Unreadable entries are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]domain.RawTrack, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", root)
	}

	var tracks []domain.RawTrack
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Warn("Skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !storage.IsAudioFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		tags := tagging.ReadOrInfer(path, rel)
		tracks = append(tracks, domain.RawTrack{
			LibraryID: TrackID(rel),
			Title:     tags.Title,
			Artist:    tags.Artist,
			Artists:   tags.Artists,
			Album:     tags.Album,
			FilePath:  path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].FilePath < tracks[j].FilePath })
	s.logger.Info("Library scan complete", "root", root, "tracks", len(tracks))
	return tracks, nil
}

// TrackID derives a stable library id from a root-relative path.
func TrackID(rel string) string {
	sum := sha1.Sum([]byte(filepath.ToSlash(rel)))
	return hex.EncodeToString(sum[:10])
}
