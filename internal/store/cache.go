package store

import (
	"database/sql"
	"errors"
	"time"
)

// The cache table holds catalog searches and MusicBrainz lookups. Keys are
// namespaced by a prefix ("search:", "mb:recording:").

// GetCache returns nil for missing or expired keys.
func (db *DB) GetCache(key string) ([]byte, error) {
	var row struct {
		Data      []byte       `db:"data"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}
	err := db.Get(&row, "SELECT data, expires_at FROM cache WHERE key = ?", key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	case row.ExpiresAt.Valid && time.Now().After(row.ExpiresAt.Time):
		return nil, nil
	}
	return row.Data, nil
}

// SetCache stores data under key. A zero ttl never expires.
func (db *DB) SetCache(key string, data []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}

	_, err := db.Exec(`
		INSERT INTO cache (key, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, key, data, expiresAt)
	return err
}

// ClearCache drops every key starting with prefix; an empty prefix drops all.
func (db *DB) ClearCache(prefix string) error {
	if prefix == "" {
		_, err := db.Exec("DELETE FROM cache")
		return err
	}
	_, err := db.Exec("DELETE FROM cache WHERE substr(key, 1, ?) = ?", len(prefix), prefix)
	return err
}

// PruneExpiredCache deletes expired entries and returns how many went.
func (db *DB) PruneExpiredCache() (int64, error) {
	res, err := db.Exec("DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
