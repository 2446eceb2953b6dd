package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/normalize"
)

const missingColumns = `id, title, artist, album, normalized_title, normalized_artist,
	source_playlist_id, source_playlist_name, source_service_name, status,
	external_download_ref, library_track_id, attempt_count,
	last_attempt_at, next_attempt_at, last_error, created_at, updated_at`

// selfHealStatuses are the statuses a Present outcome may delete. Completed
// history (DOWNLOADED, RESOLVED_MANUALLY, DISMISSED) is kept.
var selfHealStatuses = []domain.LedgerStatus{
	domain.StatusPending,
	domain.StatusSearching,
	domain.StatusFoundExternal,
	domain.StatusDownloading,
	domain.StatusFailed,
}

// UpsertMissing folds a resolver outcome into the ledger. Present deletes a
// stale record and returns nil; Absent creates a PENDING record or touches
// the existing one.
func (db *DB) UpsertMissing(c domain.CandidateTrack, outcome domain.MatchOutcome) (*domain.MissingTrack, error) {
	nt, na := normalize.Key(c.Title, c.Artist)
	now := time.Now().UTC()

	if outcome.Present {
		query, args := inStatuses(`DELETE FROM missing_tracks
			WHERE normalized_title = ? AND normalized_artist = ? AND source_playlist_id = ?
			AND status IN (%s)`, selfHealStatuses, nt, na, c.SourcePlaylistID)
		_, err := db.Exec(query, args...)
		return nil, err
	}

	rec := &domain.MissingTrack{
		ID:                 uuid.New().String(),
		Title:              c.Title,
		Artist:             c.Artist,
		Album:              c.Album,
		NormalizedTitle:    nt,
		NormalizedArtist:   na,
		SourcePlaylistID:   c.SourcePlaylistID,
		SourcePlaylistName: c.SourcePlaylistName,
		SourceServiceName:  c.SourceServiceName,
		Status:             domain.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := db.NamedExec(`INSERT INTO missing_tracks (id, title, artist, album, normalized_title, normalized_artist,
			source_playlist_id, source_playlist_name, source_service_name, status, created_at, updated_at)
		VALUES (:id, :title, :artist, :album, :normalized_title, :normalized_artist,
			:source_playlist_id, :source_playlist_name, :source_service_name, :status, :created_at, :updated_at)
		ON CONFLICT(normalized_title, normalized_artist, source_playlist_id) DO UPDATE SET
			source_playlist_name = excluded.source_playlist_name,
			updated_at = excluded.updated_at`, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert missing track: %w", err)
	}

	return db.findMissingByIdentity(nt, na, c.SourcePlaylistID)
}

func (db *DB) findMissingByIdentity(nt, na, playlistID string) (*domain.MissingTrack, error) {
	rec := &domain.MissingTrack{}
	err := db.Get(rec, `SELECT `+missingColumns+` FROM missing_tracks
		WHERE normalized_title = ? AND normalized_artist = ? AND source_playlist_id = ?`, nt, na, playlistID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (db *DB) GetMissing(id string) (*domain.MissingTrack, error) {
	rec := &domain.MissingTrack{}
	err := db.Get(rec, `SELECT `+missingColumns+` FROM missing_tracks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (db *DB) ListMissingByStatus(status domain.LedgerStatus, limit, offset int) ([]*domain.MissingTrack, error) {
	var recs []*domain.MissingTrack
	err := db.Select(&recs, `SELECT `+missingColumns+` FROM missing_tracks
		WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, status, limit, offset)
	return recs, err
}

func (db *DB) ListMissing(limit, offset int) ([]*domain.MissingTrack, error) {
	var recs []*domain.MissingTrack
	err := db.Select(&recs, `SELECT `+missingColumns+` FROM missing_tracks
		ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	return recs, err
}

// ListMissingIn returns every record in the given statuses, oldest first.
func (db *DB) ListMissingIn(statuses ...domain.LedgerStatus) ([]*domain.MissingTrack, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args := inStatuses(`SELECT `+missingColumns+` FROM missing_tracks
		WHERE status IN (%s) ORDER BY created_at ASC, id ASC`, statuses)
	var recs []*domain.MissingTrack
	err := db.Select(&recs, query, args...)
	return recs, err
}

func (db *DB) ListOpenMissing() ([]*domain.MissingTrack, error) {
	return db.ListMissingIn(domain.OpenStatuses...)
}

func (db *DB) CountMissing(status domain.LedgerStatus) (int, error) {
	var count int
	var err error
	if status == "" {
		err = db.Get(&count, `SELECT COUNT(*) FROM missing_tracks`)
	} else {
		err = db.Get(&count, `SELECT COUNT(*) FROM missing_tracks WHERE status = ?`, status)
	}
	return count, err
}

func (db *DB) MissingStatusCounts() (map[domain.LedgerStatus]int, error) {
	type row struct {
		Status domain.LedgerStatus `db:"status"`
		Count  int                 `db:"count"`
	}
	var rows []row
	if err := db.Select(&rows, `SELECT status, COUNT(*) AS count FROM missing_tracks GROUP BY status`); err != nil {
		return nil, err
	}
	counts := make(map[domain.LedgerStatus]int, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// TransitionMissing moves a record to a new status. The update is guarded on
// the status it was read in, so a concurrent writer makes it fail with
// InvalidTransition instead of overwriting.
func (db *DB) TransitionMissing(id string, to domain.LedgerStatus, fields domain.TransitionFields) (*domain.MissingTrack, error) {
	cur, err := db.GetMissing(id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(cur.Status, to) {
		return nil, &domain.InvalidTransitionError{ID: id, From: cur.Status, To: to}
	}

	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{to, now}
	if fields.ExternalDownloadRef != nil {
		sets = append(sets, "external_download_ref = ?")
		args = append(args, *fields.ExternalDownloadRef)
	}
	if fields.LibraryTrackID != nil {
		sets = append(sets, "library_track_id = ?")
		args = append(args, *fields.LibraryTrackID)
	}
	if fields.NextAttemptAt != nil {
		sets = append(sets, "next_attempt_at = ?")
		args = append(args, fields.NextAttemptAt.UTC())
	} else {
		sets = append(sets, "next_attempt_at = NULL")
	}
	if fields.ClearError {
		sets = append(sets, "last_error = NULL")
	}
	args = append(args, id, cur.Status)

	res, err := db.Exec(`UPDATE missing_tracks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		latest, err := db.GetMissing(id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.InvalidTransitionError{ID: id, From: latest.Status, To: to}
	}
	return db.GetMissing(id)
}

// RecordAttemptFailure bumps the attempt counter and stores the error. A
// non-zero retryAt schedules when the record is next due.
func (db *DB) RecordAttemptFailure(id string, cause error, retryAt time.Time) (*domain.MissingTrack, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := time.Now().UTC()
	var next interface{}
	if !retryAt.IsZero() {
		next = retryAt.UTC()
	}

	res, err := db.Exec(`UPDATE missing_tracks SET
			attempt_count = attempt_count + 1,
			last_attempt_at = ?,
			last_error = ?,
			next_attempt_at = ?,
			updated_at = ?
		WHERE id = ?`, now, msg, next, now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound
	}
	return db.GetMissing(id)
}

// MarkAttempted stamps last_attempt_at without counting a failure.
func (db *DB) MarkAttempted(id string) error {
	now := time.Now().UTC()
	res, err := db.Exec(`UPDATE missing_tracks SET last_attempt_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ScheduleMissing sets when an open record is next due; the zero time means now.
func (db *DB) ScheduleMissing(id string, at time.Time) error {
	var next interface{}
	if !at.IsZero() {
		next = at.UTC()
	}
	query, args := inStatuses(`UPDATE missing_tracks SET next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status IN (%s)`, domain.OpenStatuses, next, time.Now().UTC(), id)
	res, err := db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		rec, err := db.GetMissing(id)
		if err != nil {
			return err
		}
		return &domain.InvalidTransitionError{ID: id, From: rec.Status, To: rec.Status}
	}
	return nil
}

// DeleteMissing removes a record outright. Used for false-positive correction.
func (db *DB) DeleteMissing(id string) error {
	res, err := db.Exec(`DELETE FROM missing_tracks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PurgeInvalidMissing deletes records that mention any keyword, plus records
// from playlists whose name carries the preserve marker.
func (db *DB) PurgeInvalidMissing(keywords []string, marker string) (int64, error) {
	var conds []string
	var args []interface{}
	if marker != "" {
		conds = append(conds, "LOWER(source_playlist_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(marker)+"%")
	}
	for _, kw := range keywords {
		like := "%" + strings.ToLower(kw) + "%"
		conds = append(conds, "LOWER(title) LIKE ? OR LOWER(artist) LIKE ? OR LOWER(source_playlist_name) LIKE ?")
		args = append(args, like, like, like)
	}
	if len(conds) == 0 {
		return 0, nil
	}

	res, err := db.Exec(`DELETE FROM missing_tracks WHERE `+strings.Join(conds, " OR "), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeResolvedMissing deletes DOWNLOADED and RESOLVED_MANUALLY history.
func (db *DB) PurgeResolvedMissing() (int64, error) {
	res, err := db.Exec(`DELETE FROM missing_tracks WHERE status IN (?, ?)`,
		domain.StatusDownloaded, domain.StatusResolvedManually)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// inStatuses expands a single %s placeholder into one bind parameter per status.
func inStatuses(query string, statuses []domain.LedgerStatus, leading ...interface{}) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := append([]interface{}{}, leading...)
	for i, s := range statuses {
		marks[i] = "?"
		args = append(args, s)
	}
	return fmt.Sprintf(query, strings.Join(marks, ", ")), args
}
