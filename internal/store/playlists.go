package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

const playlistColumns = `id, service, playlist_id, name, selected, last_synced_at, last_error, created_at`

// SavePlaylist registers a playlist, or renames and reselects an existing one.
func (db *DB) SavePlaylist(ref domain.PlaylistRef) (*domain.Playlist, error) {
	_, err := db.Exec(`INSERT INTO playlists (service, playlist_id, name, selected, created_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(service, playlist_id) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN playlists.name ELSE excluded.name END,
			selected = 1`, ref.Service, ref.PlaylistID, ref.Name, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return db.GetPlaylist(ref.Service, ref.PlaylistID)
}

func (db *DB) GetPlaylist(service, playlistID string) (*domain.Playlist, error) {
	p := &domain.Playlist{}
	err := db.Get(p, `SELECT `+playlistColumns+` FROM playlists WHERE service = ? AND playlist_id = ?`, service, playlistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) ListPlaylists(selectedOnly bool) ([]*domain.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists`
	if selectedOnly {
		query += ` WHERE selected = 1`
	}
	query += ` ORDER BY id ASC`

	var playlists []*domain.Playlist
	err := db.Select(&playlists, query)
	return playlists, err
}

func (db *DB) SetPlaylistSelected(service, playlistID string, selected bool) error {
	res, err := db.Exec(`UPDATE playlists SET selected = ? WHERE service = ? AND playlist_id = ?`, selected, service, playlistID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) DeletePlaylist(service, playlistID string) error {
	res, err := db.Exec(`DELETE FROM playlists WHERE service = ? AND playlist_id = ?`, service, playlistID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordPlaylistSync stores the outcome of the latest fetch. Unknown playlists are ignored.
func (db *DB) RecordPlaylistSync(service, playlistID, name string, syncErr error) error {
	var lastErr interface{}
	if syncErr != nil {
		lastErr = syncErr.Error()
	}
	_, err := db.Exec(`UPDATE playlists SET
			last_synced_at = ?,
			last_error = ?,
			name = CASE WHEN ? = '' THEN name ELSE ? END
		WHERE service = ? AND playlist_id = ?`,
		time.Now().UTC(), lastErr, name, name, service, playlistID)
	return err
}
