// Package pool bounds a set of sessions against one SpacetimeDB endpoint:
// fair hand-out, background health checks, idle eviction, and a circuit
// breaker gating acquisition after a run of connect failures.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattsp1290/blackholio-go-client/breaker"
	"github.com/mattsp1290/blackholio-go-client/internal/credentials"
	"github.com/mattsp1290/blackholio-go-client/model"
	"github.com/mattsp1290/blackholio-go-client/session"
)

// State is a Pool's lifecycle stage: inactive -> initializing -> active ->
// draining -> shutdown, monotonic.
type State string

const (
	StateInactive     State = "inactive"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateDraining     State = "draining"
	StateShutdown     State = "shutdown"
)

// HealthStatus summarizes a pool's idle-session health at a point in time.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Config configures one Pool. All durations must be > 0; MinConns <=
// MaxConns; MaxConns >= 1, per spec.md §4.6.
type Config struct {
	MinConns            int
	MaxConns            int
	MaxIdle             time.Duration
	HealthCheckInterval time.Duration
	ConnTimeout         time.Duration
	RequestTimeout      time.Duration
	Retries             int
	BackoffFactor       float64
	MaxDelay            time.Duration
	BreakerThreshold    int
	BreakerTimeout      time.Duration
	HealthChecksOn      bool
	MetricsOn           bool
}

// WithDefaults fills zero-valued tunables with spec.md's named defaults.
// MinConns is left as given, since 0 (no warm-up) is a valid setting.
func (c Config) WithDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 5 * time.Minute
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.ConnTimeout <= 0 {
		c.ConnTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Validate enforces spec.md §4.6's bounds.
func (c Config) Validate() error {
	if c.MinConns < 0 {
		return fmt.Errorf("pool: min_conns must be >= 0, got %d", c.MinConns)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("pool: max_conns must be >= 1, got %d", c.MaxConns)
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("pool: min_conns (%d) must be <= max_conns (%d)", c.MinConns, c.MaxConns)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"max_idle", c.MaxIdle}, {"health_check_interval", c.HealthCheckInterval},
		{"conn_timeout", c.ConnTimeout}, {"request_timeout", c.RequestTimeout},
		{"max_delay", c.MaxDelay}, {"breaker_timeout", c.BreakerTimeout},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("pool: %s must be > 0, got %s", f.name, f.d)
		}
	}
	return nil
}

// pooledSession is one session owned by a Pool, carrying use/idle metadata.
// use_count and error_count are monotonically non-decreasing for the
// lifetime of the underlying session, per the pooled-session invariant.
type pooledSession struct {
	sess       *session.Session
	createdAt  time.Time
	lastUsedAt time.Time
	useCount   int
	errorCount int
	lastErr    error
}

// PooledSession is the handle a caller acquires: the live session plus a
// Release method returning it to its owning pool.
type PooledSession struct {
	pool *Pool
	ps   *pooledSession
}

// Session returns the underlying session for sending requests.
func (h *PooledSession) Session() *session.Session { return h.ps.sess }

// Release returns the session to its pool, marking it idle and signaling
// one waiter. reportErr, if non-nil, is the fault observed while the
// caller held the session; it counts toward error_count and the pool's
// circuit breaker.
func (h *PooledSession) Release(reportErr error) {
	h.pool.release(h.ps, reportErr)
}

// Stats is a Pool's metrics snapshot, per spec.md §4.6 "Metrics snapshot".
type Stats struct {
	State             State
	TotalSessions     int
	Active            int
	Idle              int
	Failed            int
	TotalRequests     uint64
	Successful        uint64
	FailedRequests    uint64
	SuccessRate       float64
	HealthStatus      HealthStatus
	LastHealthCheck   time.Time
	BreakerState      breaker.State
	BreakerFailures   int
}

// Pool bounds a set of sessions against one endpoint, grounded on
// JeelKantaria-db-bouncer's TenantPool: a mutex-guarded idle/active split
// with a sync.Cond for fair, deadline-aware hand-out, plus two background
// maintenance goroutines.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	endpoint model.Endpoint
	cfg      Config
	store    *credentials.Store
	breaker  *breaker.Breaker

	state State

	idle   []*pooledSession // FIFO: oldest idle session at index 0
	active map[*pooledSession]struct{}

	totalRequests  uint64
	successful     uint64
	failedRequests uint64

	lastHealthCheck time.Time

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Pool for endpoint and starts its background maintenance
// goroutines. The pool moves from Inactive to Initializing at once; the
// background warm-up marks it Active as soon as its first session is added,
// or when warm-up ends even if no dial succeeded (immediately Active if
// MinConns is 0).
func New(endpoint model.Endpoint, cfg Config, store *credentials.Store) (*Pool, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		endpoint: endpoint,
		cfg:      cfg,
		store:    store,
		breaker:  breaker.New(breaker.Config{Threshold: cfg.BreakerThreshold, Timeout: cfg.BreakerTimeout}),
		state:    StateInactive,
		idle:     make([]*pooledSession, 0),
		active:   make(map[*pooledSession]struct{}),
		stopCh:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	p.state = StateInitializing
	p.mu.Unlock()

	if cfg.MinConns > 0 {
		go p.warmUp()
	} else {
		p.mu.Lock()
		p.state = StateActive
		p.mu.Unlock()
	}

	if cfg.HealthChecksOn {
		p.wg.Add(1)
		go p.healthLoop()
	}
	p.wg.Add(1)
	go p.idleEvictionLoop()

	return p, nil
}

func (p *Pool) warmUp() {
	for i := 0; i < p.cfg.MinConns; i++ {
		ps, err := p.gatedDial(context.Background())
		if err != nil {
			continue
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			ps.sess.Disconnect(context.Background())
			return
		}
		p.idle = append(p.idle, ps)
		p.state = StateActive
		p.mu.Unlock()
	}
	p.mu.Lock()
	if p.state == StateInitializing {
		p.state = StateActive
	}
	p.mu.Unlock()
}

// dial opens and connects a new session, without touching the breaker.
// Callers that gate their own dial attempts against the breaker (Acquire,
// gatedDial) wrap this; reused idle sessions never call it at all.
func (p *Pool) dial(ctx context.Context) (*pooledSession, error) {
	sessCfg := session.Config{Endpoint: p.endpoint, ConnectionTimeout: p.cfg.ConnTimeout}
	sess, err := session.New(sessCfg, p.store)
	if err != nil {
		return nil, err
	}
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	return &pooledSession{sess: sess, createdAt: now, lastUsedAt: now}, nil
}

// gatedDial is dial gated by the breaker, for background paths (warm-up,
// health refill) that do not go through Acquire's own Allow check.
func (p *Pool) gatedDial(ctx context.Context) (*pooledSession, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, model.NewError(model.KindServerUnavailable, "pool.dial", err)
	}
	ps, err := p.dial(ctx)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, err
	}
	p.breaker.RecordSuccess()
	return ps, nil
}

// Acquire hands out an idle, healthy session or creates a new one if under
// max_conns; otherwise it blocks on the pool's condition variable until a
// session is released or timeout elapses, per spec.md §4.6 "Acquire". The
// breaker is checked once per call: reusing an idle session never dials,
// so it cannot itself observe a fresh failure, but an already-open breaker
// still fails the acquire immediately.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*PooledSession, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, model.NewError(model.KindServerUnavailable, "pool.Acquire", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool: closed for %s", p.endpoint.CredentialKey())
		}

		for len(p.idle) > 0 {
			ps := p.idle[0]
			p.idle = p.idle[1:]

			if !ps.sess.IsWebSocketOpen() {
				p.mu.Unlock()
				ps.sess.Disconnect(context.Background())
				p.mu.Lock()
				continue
			}

			ps.useCount++
			ps.lastUsedAt = time.Now()
			p.active[ps] = struct{}{}
			p.mu.Unlock()
			return &PooledSession{pool: p, ps: ps}, nil
		}

		if len(p.idle)+len(p.active) < p.cfg.MaxConns {
			p.mu.Unlock()

			ps, err := p.dial(ctx)
			if err != nil {
				p.breaker.RecordFailure()
				return nil, err
			}
			p.breaker.RecordSuccess()
			ps.useCount++
			ps.lastUsedAt = time.Now()

			p.mu.Lock()
			p.active[ps] = struct{}{}
			p.mu.Unlock()
			return &PooledSession{pool: p, ps: ps}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, model.NewError(model.KindTimeout, "pool.Acquire", fmt.Errorf("acquire timeout after %s: pool exhausted", timeout))
		}

		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.cond.Wait()
		timer.Stop()
	}
}

func (p *Pool) release(ps *pooledSession, reportErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, ps)
	p.totalRequests++
	if reportErr != nil {
		ps.errorCount++
		ps.lastErr = reportErr
		p.failedRequests++
		p.breaker.RecordFailure()
	} else {
		p.successful++
	}

	if p.closed || !ps.sess.IsWebSocketOpen() {
		ps.sess.Disconnect(context.Background())
		p.cond.Signal()
		return
	}

	ps.lastUsedAt = time.Now()
	p.idle = append(p.idle, ps)
	p.cond.Signal()
}

// healthLoop verifies idle-session health every HealthCheckInterval,
// removing any that fail and refilling up to MinConns.
func (p *Pool) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkHealth()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	candidates := make([]*pooledSession, len(p.idle))
	copy(candidates, p.idle)
	p.mu.Unlock()

	var failed int
	healthy := make([]*pooledSession, 0, len(candidates))
	for _, ps := range candidates {
		if !ps.sess.IsWebSocketOpen() {
			failed++
			ps.sess.Disconnect(ctx)
			continue
		}
		healthy = append(healthy, ps)
	}

	p.mu.Lock()
	p.idle = healthy
	p.lastHealthCheck = time.Now()
	needed := p.cfg.MinConns - (len(p.idle) + len(p.active))
	p.mu.Unlock()

	for i := 0; i < needed; i++ {
		ps, err := p.gatedDial(ctx)
		if err != nil {
			break
		}
		p.mu.Lock()
		p.idle = append(p.idle, ps)
		p.mu.Unlock()
	}
}

// idleEvictionLoop removes sessions idle longer than MaxIdle, every 60s,
// while leaving at least MinConns in the pool.
func (p *Pool) idleEvictionLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	kept := make([]*pooledSession, 0, len(p.idle))
	var evicted []*pooledSession
	for _, ps := range p.idle {
		size := len(p.idle) + len(p.active) - len(evicted)
		if size > p.cfg.MinConns && time.Since(ps.lastUsedAt) > p.cfg.MaxIdle {
			evicted = append(evicted, ps)
			continue
		}
		kept = append(kept, ps)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, ps := range evicted {
		ps.sess.Disconnect(context.Background())
	}
}

// HealthStatusNow computes the aggregate health classification by probing
// every idle and active session at call time: unhealthy if empty, degraded
// if fewer than half the sessions are healthy, else healthy.
func (p *Pool) HealthStatusNow() HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(p.idle) + len(p.active)
	if size == 0 {
		return HealthUnhealthy
	}
	healthyCount := 0
	for _, ps := range p.idle {
		if ps.sess.IsWebSocketOpen() {
			healthyCount++
		}
	}
	for ps := range p.active {
		if ps.sess.IsWebSocketOpen() {
			healthyCount++
		}
	}
	if float64(healthyCount) < float64(size)*0.5 {
		return HealthDegraded
	}
	return HealthHealthy
}

// Stats returns the pool's metrics snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.totalRequests
	var successRate float64
	if total > 0 {
		successRate = float64(p.successful) / float64(total)
	}

	return Stats{
		State:           p.state,
		TotalSessions:   len(p.idle) + len(p.active),
		Active:          len(p.active),
		Idle:            len(p.idle),
		TotalRequests:   total,
		Successful:      p.successful,
		FailedRequests:  p.failedRequests,
		SuccessRate:     successRate,
		HealthStatus:    p.HealthStatusNow(),
		LastHealthCheck: p.lastHealthCheck,
		BreakerState:    p.breaker.State(),
		BreakerFailures: p.breaker.Failures(),
	}
}

// Drain transitions the pool to Draining, closes idle sessions, and waits
// (up to 30s) for active ones to be released before force-closing them.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.state = StateDraining
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ps := range idle {
		ps.sess.Disconnect(context.Background())
	}

	deadline := time.After(30 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		remaining := len(p.active)
		p.mu.Unlock()
		if remaining == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline:
			p.mu.Lock()
			active := p.active
			p.active = make(map[*pooledSession]struct{})
			p.mu.Unlock()
			for ps := range active {
				ps.sess.Disconnect(context.Background())
			}
			return
		}
	}
}

// Close drains the pool and marks it permanently shut down. Safe to call
// more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.cond.Broadcast()
	p.mu.Unlock()

	p.Drain()

	p.wg.Wait()

	p.mu.Lock()
	p.state = StateShutdown
	p.mu.Unlock()
}
