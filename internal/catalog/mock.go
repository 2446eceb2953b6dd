package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/cesargomez89/trackreconciler/internal/domain"
)

// MockSource is a scripted in-memory catalog. Hits are keyed by the search
// query; jobs walk through the polls queued for their ref, ending on the last.
type MockSource struct {
	mu        sync.Mutex
	hits      map[string][]domain.CatalogHit
	polls     map[string][]domain.JobPoll
	jobs      map[domain.JobHandle]string
	searchErr error
	startErr  error
	searches  int
	starts    int
}

func NewMockSource() *MockSource {
	return &MockSource{
		hits:  make(map[string][]domain.CatalogHit),
		polls: make(map[string][]domain.JobPoll),
		jobs:  make(map[domain.JobHandle]string),
	}
}

// AddHit registers a hit returned for title/artist searches.
func (m *MockSource) AddHit(title, artist string, hit domain.CatalogHit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := Query(title, artist)
	m.hits[q] = append(m.hits[q], hit)
}

// ScriptJob sets the sequence of poll results for downloads of ref.
func (m *MockSource) ScriptJob(ref string, polls ...domain.JobPoll) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[ref] = polls
}

func (m *MockSource) FailSearch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

func (m *MockSource) FailStart(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockSource) Searches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches
}

func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockSource) SearchCatalog(ctx context.Context, title, artist, album string) ([]domain.CatalogHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	hits := append([]domain.CatalogHit(nil), m.hits[Query(title, artist)]...)
	Rank(hits)
	return hits, nil
}

func (m *MockSource) StartDownload(ctx context.Context, externalRef, destinationHint string) (domain.JobHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	m.starts++
	handle := domain.JobHandle(fmt.Sprintf("mock-%d", m.starts))
	m.jobs[handle] = externalRef
	return handle, nil
}

func (m *MockSource) PollJob(ctx context.Context, handle domain.JobHandle) (domain.JobPoll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.jobs[handle]
	if !ok {
		return domain.JobPoll{}, fmt.Errorf("job %s: %w", handle, domain.ErrNotFound)
	}
	script := m.polls[ref]
	if len(script) == 0 {
		return domain.JobPoll{State: domain.JobSucceeded}, nil
	}
	poll := script[0]
	if len(script) > 1 {
		m.polls[ref] = script[1:]
	}
	return poll, nil
}

var _ Source = (*MockSource)(nil)
