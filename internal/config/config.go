package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/joho/godotenv"

	"github.com/cesargomez89/trackreconciler/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	LogFile   string

	LibraryRoot   string
	WatchLibrary  bool
	WatchDebounce time.Duration
	WatchInterval time.Duration

	FuzzyThreshold   float64
	FuzzyMargin      float64
	FuzzyFloor       float64
	CatalogThreshold float64
	FSProbeTimeout   time.Duration
	SearchTimeout    time.Duration
	DownloadTimeout  time.Duration

	MaxAttempts     int
	RetryBase       time.Duration
	RetryCap        time.Duration
	Concurrency     int
	PollInterval    time.Duration
	ConfirmAttempts int
	SearchSettle    time.Duration

	SlskdURL          string
	SlskdToken        string
	SlskdDownloadsDir string
	OrganizeTemplate  string

	EnrichTags     bool
	MusicBrainzURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	DeezerAPIURL        string

	CacheTTL time.Duration
}

// Load reads .env if present, then the environment, falling back to defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", constants.DefaultPort),
		DBPath:    getEnv("DB_PATH", constants.DefaultDBPath),
		LogLevel:  getEnv("LOG_LEVEL", constants.DefaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", constants.DefaultLogFormat),
		LogFile:   getEnv("LOG_FILE", ""),

		LibraryRoot:   getEnv("LIBRARY_ROOT", ""),
		WatchLibrary:  getEnvBool("WATCH_LIBRARY", false),
		WatchDebounce: getEnvDuration("WATCH_DEBOUNCE", constants.DefaultWatchDebounce),
		WatchInterval: getEnvDuration("WATCH_INTERVAL", constants.DefaultWatchInterval),

		FuzzyThreshold:   getEnvFloat("FUZZY_THRESHOLD", constants.DefaultFuzzyThreshold),
		FuzzyMargin:      getEnvFloat("FUZZY_MARGIN", constants.DefaultFuzzyMargin),
		FuzzyFloor:       getEnvFloat("FUZZY_FLOOR", constants.DefaultFuzzyFloor),
		CatalogThreshold: getEnvFloat("CATALOG_THRESHOLD", constants.DefaultCatalogThreshold),
		FSProbeTimeout:   getEnvDuration("FS_PROBE_TIMEOUT", constants.DefaultFSProbeTimeout),
		SearchTimeout:    getEnvDuration("SEARCH_TIMEOUT", constants.DefaultSearchTimeout),
		DownloadTimeout:  getEnvDuration("DOWNLOAD_TIMEOUT", constants.DefaultDownloadTimeout),

		MaxAttempts:     getEnvInt("MAX_ATTEMPTS", constants.DefaultMaxAttempts),
		RetryBase:       getEnvDuration("RETRY_BASE", constants.DefaultAcquireRetry),
		RetryCap:        getEnvDuration("RETRY_CAP", constants.DefaultAcquireRetryCap),
		Concurrency:     getEnvInt("ACQUIRE_CONCURRENCY", constants.DefaultConcurrency),
		PollInterval:    getEnvDuration("POLL_INTERVAL", constants.DefaultPollInterval),
		ConfirmAttempts: getEnvInt("CONFIRM_ATTEMPTS", constants.DefaultConfirmAttempts),
		SearchSettle:    getEnvDuration("SEARCH_SETTLE", constants.DefaultSearchSettle),

		SlskdURL:          getEnv("SLSKD_URL", constants.DefaultSlskdURL),
		SlskdToken:        getEnv("SLSKD_TOKEN", ""),
		SlskdDownloadsDir: getEnv("SLSKD_DOWNLOADS_DIR", ""),
		OrganizeTemplate:  getEnv("ORGANIZE_TEMPLATE", constants.DefaultOrganizeLayout),

		EnrichTags:     getEnvBool("ENRICH_TAGS", true),
		MusicBrainzURL: getEnv("MUSICBRAINZ_URL", ""),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		DeezerAPIURL:        getEnv("DEEZER_API_URL", constants.DefaultDeezerAPIURL),

		CacheTTL: getEnvDuration("CACHE_TTL", constants.DefaultCacheTTL),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.LibraryRoot == "" {
		errors = append(errors, "LIBRARY_ROOT cannot be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// Similarity thresholds
	for name, v := range map[string]float64{
		"FUZZY_THRESHOLD":   c.FuzzyThreshold,
		"FUZZY_MARGIN":      c.FuzzyMargin,
		"FUZZY_FLOOR":       c.FuzzyFloor,
		"CATALOG_THRESHOLD": c.CatalogThreshold,
	} {
		if v < 0 || v > 1 {
			errors = append(errors, fmt.Sprintf("%s must be between 0 and 1, got: %g", name, v))
		}
	}
	if c.FuzzyFloor > c.FuzzyThreshold {
		errors = append(errors, "FUZZY_FLOOR cannot exceed FUZZY_THRESHOLD")
	}

	if c.MaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("MAX_ATTEMPTS must be at least 1, got: %d", c.MaxAttempts))
	}
	if c.Concurrency < 1 {
		errors = append(errors, fmt.Sprintf("ACQUIRE_CONCURRENCY must be at least 1, got: %d", c.Concurrency))
	}
	if c.ConfirmAttempts < 1 {
		errors = append(errors, fmt.Sprintf("CONFIRM_ATTEMPTS must be at least 1, got: %d", c.ConfirmAttempts))
	}
	if c.RetryBase <= 0 || c.RetryCap < c.RetryBase {
		errors = append(errors, "RETRY_BASE must be positive and not exceed RETRY_CAP")
	}
	if c.PollInterval <= 0 {
		errors = append(errors, "POLL_INTERVAL must be positive")
	}

	if c.SlskdURL != "" {
		if u, err := url.Parse(c.SlskdURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("SLSKD_URL is not a valid URL: %s", c.SlskdURL))
		}
	}
	if c.MusicBrainzURL != "" {
		if u, err := url.Parse(c.MusicBrainzURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("MUSICBRAINZ_URL is not a valid URL: %s", c.MusicBrainzURL))
		}
	}
	if c.DeezerAPIURL == "" {
		errors = append(errors, "DEEZER_API_URL cannot be empty")
	} else if _, err := url.Parse(c.DeezerAPIURL); err != nil {
		errors = append(errors, fmt.Sprintf("DEEZER_API_URL is not a valid URL: %s", c.DeezerAPIURL))
	}

	if _, err := template.New("layout").Parse(c.OrganizeTemplate); err != nil {
		errors = append(errors, fmt.Sprintf("ORGANIZE_TEMPLATE is invalid: %v", err))
	}

	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		errors = append(errors, "SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// AcquisitionEnabled reports whether a download source is configured.
func (c *Config) AcquisitionEnabled() bool {
	return c.SlskdURL != "" && c.SlskdDownloadsDir != ""
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}
