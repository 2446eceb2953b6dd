package store

const Schema = `
CREATE TABLE IF NOT EXISTS library_tracks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	artists TEXT NOT NULL DEFAULT '[]',  -- JSON array
	album TEXT NOT NULL DEFAULT '',
	normalized_title TEXT NOT NULL,
	normalized_artist TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_library_lookup ON library_tracks(normalized_artist, normalized_title);

CREATE TABLE IF NOT EXISTS missing_tracks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	album TEXT NOT NULL DEFAULT '',
	normalized_title TEXT NOT NULL,
	normalized_artist TEXT NOT NULL,
	source_playlist_id TEXT NOT NULL DEFAULT '',
	source_playlist_name TEXT NOT NULL DEFAULT '',
	source_service_name TEXT NOT NULL DEFAULT '',

	-- Lifecycle
	status TEXT NOT NULL DEFAULT 'PENDING',
	external_download_ref TEXT NOT NULL DEFAULT '',
	library_track_id TEXT NOT NULL DEFAULT '',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_attempt_at DATETIME,
	next_attempt_at DATETIME,
	last_error TEXT,

	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One record per track per source playlist
CREATE UNIQUE INDEX IF NOT EXISTS idx_missing_identity
ON missing_tracks(normalized_title, normalized_artist, source_playlist_id);

CREATE INDEX IF NOT EXISTS idx_missing_status ON missing_tracks(status, updated_at);

CREATE TABLE IF NOT EXISTS playlists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	playlist_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	selected BOOLEAN NOT NULL DEFAULT 1,
	last_synced_at DATETIME,
	last_error TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(service, playlist_id)
);

CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	data BLOB,
	expires_at DATETIME
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
