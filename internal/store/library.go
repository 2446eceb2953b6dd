package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

const libraryColumns = `id, title, artist, artists, album, normalized_title, normalized_artist, file_path, duration, indexed_at`

const upsertLibraryTrack = `INSERT INTO library_tracks (` + libraryColumns + `)
	VALUES (:id, :title, :artist, :artists, :album, :normalized_title, :normalized_artist, :file_path, :duration, :indexed_at)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		artist = excluded.artist,
		artists = excluded.artists,
		album = excluded.album,
		normalized_title = excluded.normalized_title,
		normalized_artist = excluded.normalized_artist,
		file_path = excluded.file_path,
		duration = excluded.duration,
		indexed_at = excluded.indexed_at`

// ReplaceLibrary swaps the whole index in one transaction. Readers keep
// seeing the previous index until commit.
func (db *DB) ReplaceLibrary(ctx context.Context, tracks []*domain.LibraryTrack) (int, error) {
	err := db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM library_tracks`); err != nil {
			return fmt.Errorf("failed to clear library: %w", err)
		}
		stmt, err := tx.PrepareNamedContext(ctx, upsertLibraryTrack)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range tracks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, t); err != nil {
				return fmt.Errorf("failed to insert %s: %w", t.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return db.CountLibrary()
}

func (db *DB) UpsertLibraryTrack(t *domain.LibraryTrack) error {
	if t.IndexedAt.IsZero() {
		t.IndexedAt = time.Now().UTC()
	}
	_, err := db.NamedExec(upsertLibraryTrack, t)
	return err
}

func (db *DB) GetLibraryTrack(id string) (*domain.LibraryTrack, error) {
	t := &domain.LibraryTrack{}
	err := db.Get(t, `SELECT `+libraryColumns+` FROM library_tracks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindLibraryExact returns nil when no track has exactly these keys.
func (db *DB) FindLibraryExact(normalizedTitle, normalizedArtist string) (*domain.LibraryTrack, error) {
	t := &domain.LibraryTrack{}
	err := db.Get(t, `SELECT `+libraryColumns+` FROM library_tracks
		WHERE normalized_artist = ? AND normalized_title = ?
		ORDER BY id LIMIT 1`, normalizedArtist, normalizedTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) ListLibraryByArtist(normalizedArtist string) ([]*domain.LibraryTrack, error) {
	var tracks []*domain.LibraryTrack
	err := db.Select(&tracks, `SELECT `+libraryColumns+` FROM library_tracks
		WHERE normalized_artist = ? ORDER BY id`, normalizedArtist)
	return tracks, err
}

func (db *DB) CountLibrary() (int, error) {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM library_tracks`)
	return count, err
}
