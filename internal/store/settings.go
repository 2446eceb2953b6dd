package store

import (
	"database/sql"
	"errors"
	"time"
)

type SettingsRepo struct {
	db *DB
}

func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(key string) (string, error) {
	var value string
	err := r.db.Get(&value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SettingsRepo) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (r *SettingsRepo) Delete(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetTime reads a setting stored with SetTime; the zero time means unset.
func (r *SettingsRepo) GetTime(key string) (time.Time, error) {
	v, err := r.Get(key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (r *SettingsRepo) SetTime(key string, t time.Time) error {
	return r.Set(key, t.UTC().Format(time.RFC3339Nano))
}

const (
	SettingLibraryScannedAt  = "library_scanned_at"
	SettingLibraryScanSource = "library_scan_root"
	SettingLastSweepAt       = "last_sweep_at"
	SettingSlskdURL          = "slskd_url"
)
