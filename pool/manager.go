package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattsp1290/blackholio-go-client/internal/credentials"
	"github.com/mattsp1290/blackholio-go-client/model"
)

// poolKey builds the "language:host:port" index key named in spec.md §4.8.
func poolKey(language model.Language, host string, port int) string {
	return fmt.Sprintf("%s:%s:%d", language, host, port)
}

// AggregateStats is the Manager-wide metrics snapshot, per spec.md §4.8
// "Aggregated metrics".
type AggregateStats struct {
	TotalPools  int
	PerPool     map[string]Stats
	TotalAcq    uint64
	TotalFailed uint64
	SuccessRate float64
}

// Manager indexes pools by (language, host, port), lazily constructing
// them on first use, and coordinates global shutdown.
type Manager struct {
	mu       sync.RWMutex
	pools    map[string]*Pool
	defaults Config
	store    *credentials.Store
}

// NewManager builds a Manager that applies defaults to every pool it
// lazily constructs.
func NewManager(defaults Config, store *credentials.Store) *Manager {
	return &Manager{
		pools:    make(map[string]*Pool),
		defaults: defaults,
		store:    store,
	}
}

// GetOrCreate returns the pool for endpoint's (language, host, port),
// constructing it with cfg (falling back to the manager's defaults when
// cfg is the zero value) if this is the first use.
func (m *Manager) GetOrCreate(endpoint model.Endpoint, cfg Config) (*Pool, error) {
	key := poolKey(endpoint.Language, endpoint.Host, endpoint.Port)

	m.mu.RLock()
	if p, ok := m.pools[key]; ok {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[key]; ok {
		return p, nil
	}

	effective := cfg
	if effective.MaxConns == 0 {
		effective = m.defaults
	}
	p, err := New(endpoint, effective, m.store)
	if err != nil {
		return nil, err
	}
	m.pools[key] = p
	return p, nil
}

// GetSession acquires a session from the pool for endpoint's (language,
// host, port), creating that pool lazily with the manager's defaults. The
// endpoint must name its language; none is filled in here. This is the
// entry point named get_session in spec.md §4.8.
func (m *Manager) GetSession(ctx context.Context, endpoint model.Endpoint, timeout time.Duration) (*PooledSession, error) {
	p, err := m.GetOrCreate(endpoint, Config{})
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx, timeout)
}

// Get returns an already-constructed pool, if one exists for the key.
func (m *Manager) Get(endpoint model.Endpoint) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[poolKey(endpoint.Language, endpoint.Host, endpoint.Port)]
	return p, ok
}

// AllStats aggregates metrics across every pool the manager owns.
func (m *Manager) AllStats() AggregateStats {
	m.mu.RLock()
	pools := make(map[string]*Pool, len(m.pools))
	for k, p := range m.pools {
		pools[k] = p
	}
	m.mu.RUnlock()

	agg := AggregateStats{
		TotalPools: len(pools),
		PerPool:    make(map[string]Stats, len(pools)),
	}
	for k, p := range pools {
		s := p.Stats()
		agg.PerPool[k] = s
		agg.TotalAcq += s.TotalRequests
		agg.TotalFailed += s.FailedRequests
	}
	if agg.TotalAcq > 0 {
		agg.SuccessRate = 1 - float64(agg.TotalFailed)/float64(agg.TotalAcq)
	}
	return agg
}

// Shutdown drains and closes every pool concurrently, waiting for all to
// finish, per spec.md §4.8 "Global shutdown drains all pools concurrently".
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(pools))
	for _, p := range pools {
		go func(p *Pool) {
			defer wg.Done()
			p.Close()
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
