package downloader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/library"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/storage"
	"github.com/cesargomez89/trackreconciler/internal/tagging"
)

// TagFiller completes partial tags from an external metadata source.
type TagFiller interface {
	FillTags(ctx context.Context, tags *tagging.Tags) error
}

// Organizer files finished downloads into the library layout.
type Organizer struct {
	libraryRoot  string
	downloadsDir string
	template     string
	filler       TagFiller
	logger       *logger.Logger
}

func NewOrganizer(libraryRoot, downloadsDir, template string, log *logger.Logger) *Organizer {
	return &Organizer{
		libraryRoot:  libraryRoot,
		downloadsDir: downloadsDir,
		template:     template,
		logger:       log.WithComponent("organizer"),
	}
}

// WithTagFiller enables metadata lookups for files without album tags.
func (o *Organizer) WithTagFiller(f TagFiller) *Organizer {
	o.filler = f
	return o
}

// Organize moves path into the library under the layout template and
// returns the track as it should be indexed. Tags missing from the file are
// taken from rec, then from the file and folder names. An existing file at
// the target is kept and the download is left where it is.
func (o *Organizer) Organize(ctx context.Context, path string, rec *domain.MissingTrack) (domain.RawTrack, error) {
	if !storage.FileExists(path) {
		return domain.RawTrack{}, fmt.Errorf("downloaded file %s: %w", path, domain.ErrNotFound)
	}

	tags, err := tagging.ReadTags(path)
	if err != nil || tags == nil {
		tags = &tagging.Tags{}
	}
	inferred := tagging.FromPath(filepath.Base(path))
	if tags.Title == "" {
		tags.Title = rec.Title
	}
	if tags.Artist == "" {
		tags.Artist = rec.Artist
		tags.Artists = []string{rec.Artist}
	}
	if tags.Album == "" {
		tags.Album = rec.Album
	}
	if o.filler != nil {
		if err := o.filler.FillTags(ctx, tags); err != nil {
			o.logger.Warn("Metadata lookup failed", "title", tags.Title, "error", err)
		}
	}
	if tags.Album == "" {
		if dir := filepath.Dir(path); filepath.Clean(dir) != filepath.Clean(o.downloadsDir) {
			tags.Album = filepath.Base(dir)
		}
	}
	if tags.TrackNumber == 0 {
		tags.TrackNumber = inferred.TrackNumber
	}

	folderArtist := tags.AlbumArtist
	if folderArtist == "" {
		folderArtist = tags.Artist
	}
	data := storage.NewLayoutData(folderArtist, tags.Album, tags.TrackNumber, tags.Title, storage.SafeAtoi(tags.Year))
	target, err := storage.BuildTargetPath(o.libraryRoot, o.template, data, filepath.Ext(path))
	if err != nil {
		return domain.RawTrack{}, err
	}

	if storage.FileExists(target) {
		o.logger.Info("Track already in library, skipping move", "path", target)
	} else {
		if err := storage.MoveFile(path, target); err != nil {
			return domain.RawTrack{}, err
		}
		if o.downloadsDir != "" {
			if _, err := storage.PruneEmptyDirs(o.downloadsDir); err != nil {
				o.logger.Warn("Failed to prune download folders", "error", err)
			}
		}
	}

	libRel, err := filepath.Rel(o.libraryRoot, target)
	if err != nil {
		libRel = target
	}
	return domain.RawTrack{
		LibraryID: library.TrackID(libRel),
		Title:     tags.Title,
		Artist:    tags.Artist,
		Artists:   tags.Artists,
		Album:     tags.Album,
		FilePath:  target,
	}, nil
}
