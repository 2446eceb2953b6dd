package config

import (
	"strings"
	"testing"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/constants"
)

func validConfig() Config {
	return Config{
		Port:             "8080",
		DBPath:           "test.db",
		LogLevel:         "info",
		LogFormat:        "text",
		LibraryRoot:      "/music",
		FuzzyThreshold:   constants.DefaultFuzzyThreshold,
		FuzzyMargin:      constants.DefaultFuzzyMargin,
		FuzzyFloor:       constants.DefaultFuzzyFloor,
		CatalogThreshold: constants.DefaultCatalogThreshold,
		MaxAttempts:      3,
		Concurrency:      2,
		ConfirmAttempts:  5,
		RetryBase:        time.Second,
		RetryCap:         time.Minute,
		PollInterval:     time.Second,
		SlskdURL:         constants.DefaultSlskdURL,
		DeezerAPIURL:     constants.DefaultDeezerAPIURL,
		OrganizeTemplate: constants.DefaultOrganizeLayout,
	}
}

func TestLoad(t *testing.T) {
	cfg := Load()

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}
	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}
	if cfg.FuzzyThreshold != constants.DefaultFuzzyThreshold {
		t.Errorf("Expected FuzzyThreshold to be %v, got %v", constants.DefaultFuzzyThreshold, cfg.FuzzyThreshold)
	}
	if cfg.MaxAttempts != constants.DefaultMaxAttempts {
		t.Errorf("Expected MaxAttempts to be %d, got %d", constants.DefaultMaxAttempts, cfg.MaxAttempts)
	}
	if cfg.RetryCap != constants.DefaultAcquireRetryCap {
		t.Errorf("Expected RetryCap to be %v, got %v", constants.DefaultAcquireRetryCap, cfg.RetryCap)
	}
	if !cfg.EnrichTags {
		t.Error("Expected tag enrichment to default on")
	}
	if cfg.DownloadTimeout != constants.DefaultDownloadTimeout {
		t.Errorf("Expected DownloadTimeout to be %v, got %v", constants.DefaultDownloadTimeout, cfg.DownloadTimeout)
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LIBRARY_ROOT", "/srv/music")
	t.Setenv("FUZZY_THRESHOLD", "0.9")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BASE", "2m")
	t.Setenv("POLL_INTERVAL", "10")
	t.Setenv("WATCH_LIBRARY", "true")
	t.Setenv("CONFIRM_ATTEMPTS", "not-a-number")
	t.Setenv("DOWNLOAD_TIMEOUT", "45s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}
	if cfg.LibraryRoot != "/srv/music" {
		t.Errorf("Expected LibraryRoot to be /srv/music, got %s", cfg.LibraryRoot)
	}
	if cfg.FuzzyThreshold != 0.9 {
		t.Errorf("Expected FuzzyThreshold to be 0.9, got %v", cfg.FuzzyThreshold)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts to be 5, got %d", cfg.MaxAttempts)
	}
	if cfg.DownloadTimeout != 45*time.Second {
		t.Errorf("Expected DownloadTimeout to be 45s, got %v", cfg.DownloadTimeout)
	}
	if cfg.RetryBase != 2*time.Minute {
		t.Errorf("Expected RetryBase to be 2m, got %v", cfg.RetryBase)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("Expected PollInterval to be 10s, got %v", cfg.PollInterval)
	}
	if !cfg.WatchLibrary {
		t.Error("Expected WatchLibrary to be true")
	}
	if cfg.ConfirmAttempts != constants.DefaultConfirmAttempts {
		t.Errorf("Expected invalid CONFIRM_ATTEMPTS to fall back to default, got %d", cfg.ConfirmAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT cannot be empty"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "PORT must be between"},
		{"missing library root", func(c *Config) { c.LibraryRoot = "" }, "LIBRARY_ROOT"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
		{"threshold above one", func(c *Config) { c.FuzzyThreshold = 1.5 }, "FUZZY_THRESHOLD"},
		{"floor above threshold", func(c *Config) { c.FuzzyFloor = 0.9 }, "FUZZY_FLOOR cannot exceed"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "MAX_ATTEMPTS"},
		{"cap below base", func(c *Config) { c.RetryCap = time.Millisecond }, "RETRY_BASE"},
		{"bad slskd url", func(c *Config) { c.SlskdURL = "localhost" }, "SLSKD_URL"},
		{"bad musicbrainz url", func(c *Config) { c.MusicBrainzURL = "musicbrainz" }, "MUSICBRAINZ_URL"},
		{"broken template", func(c *Config) { c.OrganizeTemplate = "{{.Artist" }, "ORGANIZE_TEMPLATE"},
		{"half spotify creds", func(c *Config) { c.SpotifyClientID = "id" }, "SPOTIFY_CLIENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	cfg := validConfig()
	if cfg.SpotifyEnabled() {
		t.Error("Expected Spotify to be disabled without credentials")
	}
	cfg.SpotifyClientID, cfg.SpotifyClientSecret = "id", "secret"
	if !cfg.SpotifyEnabled() {
		t.Error("Expected Spotify to be enabled")
	}

	if cfg.AcquisitionEnabled() {
		t.Error("Expected acquisition to be disabled without a downloads dir")
	}
	cfg.SlskdDownloadsDir = "/downloads"
	if !cfg.AcquisitionEnabled() {
		t.Error("Expected acquisition to be enabled")
	}
}
