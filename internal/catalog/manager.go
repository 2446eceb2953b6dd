package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/httpclient"
	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/store"
)

// SourceManager owns the active slskd source and lets the daemon URL change
// at runtime. It is itself a Source.
type SourceManager struct {
	source     Source
	cached     *CachedSource
	logger     *logger.Logger
	client     *httpclient.Client
	cfg        SlskdConfig
	defaultURL string
	mu         sync.RWMutex
}

func NewSourceManager(cfg SlskdConfig, db *store.DB, cacheTTL time.Duration, log *logger.Logger) *SourceManager {
	client := httpclient.NewClient(nil, 0)
	slskd := NewSlskdSource(cfg, client, log)
	var cached *CachedSource
	if db != nil {
		cached = NewCachedSource(slskd, NewStoreCache(db), cacheTTL)
	}
	return &SourceManager{
		source:     slskd,
		cached:     cached,
		logger:     log,
		client:     client,
		cfg:        cfg,
		defaultURL: cfg.BaseURL,
	}
}

func (m *SourceManager) DefaultURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultURL
}

func (m *SourceManager) BaseURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.BaseURL
}

func (m *SourceManager) Current() Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cached != nil {
		return m.cached
	}
	return m.source
}

// SetBaseURL points the manager at another slskd daemon and drops cached
// searches from the previous one. Handles issued by the old daemon will no
// longer resolve.
func (m *SourceManager) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger != nil {
		m.logger.Info("Setting catalog source", "url", baseURL)
	}
	m.cfg.BaseURL = baseURL
	m.source = NewSlskdSource(m.cfg, m.client, m.logger)
	if m.cached != nil {
		m.cached.source = m.source
		_ = m.cached.ClearCache()
	}
}

func (m *SourceManager) SearchCatalog(ctx context.Context, title, artist, album string) ([]domain.CatalogHit, error) {
	return m.Current().SearchCatalog(ctx, title, artist, album)
}

func (m *SourceManager) StartDownload(ctx context.Context, externalRef, destinationHint string) (domain.JobHandle, error) {
	return m.Current().StartDownload(ctx, externalRef, destinationHint)
}

func (m *SourceManager) PollJob(ctx context.Context, handle domain.JobHandle) (domain.JobPoll, error) {
	return m.Current().PollJob(ctx, handle)
}

var _ Source = (*SourceManager)(nil)
