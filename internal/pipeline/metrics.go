package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// stageNames are the four stages process_outbound/process_inbound compose,
// in the order named in spec.md §4.4.
const (
	stageConvert   = "convert"
	stageValidate  = "validate"
	stageAdapt     = "adapt"
	stageSerialize = "serialize"
)

// Metrics accumulates per-pipeline counters. Scalars use atomics so a
// caller can read Operations/Successes/Failures without taking the mutex;
// the per-error-kind map and per-stage timing totals need it since they are
// not representable as a single machine word.
type Metrics struct {
	operations atomic.Uint64
	successes  atomic.Uint64
	failures   atomic.Uint64
	bytes      atomic.Uint64
	objects    atomic.Uint64

	mu          sync.Mutex
	totalWall   time.Duration
	stageTotals map[string]time.Duration
	errorKinds  map[string]uint64
}

func newMetrics() *Metrics {
	return &Metrics{
		stageTotals: make(map[string]time.Duration),
		errorKinds:  make(map[string]uint64),
	}
}

func (m *Metrics) recordSuccess(wall time.Duration, stages map[string]time.Duration, byteCount, objectCount int) {
	m.operations.Add(1)
	m.successes.Add(1)
	m.bytes.Add(uint64(byteCount))
	m.objects.Add(uint64(objectCount))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalWall += wall
	for k, v := range stages {
		m.stageTotals[k] += v
	}
}

func (m *Metrics) recordFailure(wall time.Duration, stages map[string]time.Duration, errorKind string) {
	m.operations.Add(1)
	m.failures.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalWall += wall
	for k, v := range stages {
		m.stageTotals[k] += v
	}
	m.errorKinds[errorKind]++
}

// Snapshot returns the current metrics as a plain map, matching the
// get_metrics() shape named in spec.md §4.4.
func (m *Metrics) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	stages := make(map[string]float64, len(m.stageTotals))
	for k, v := range m.stageTotals {
		stages[k] = v.Seconds()
	}
	errorKinds := make(map[string]uint64, len(m.errorKinds))
	for k, v := range m.errorKinds {
		errorKinds[k] = v
	}

	return map[string]any{
		"operations":       m.operations.Load(),
		"successes":        m.successes.Load(),
		"failures":         m.failures.Load(),
		"bytes_processed":  m.bytes.Load(),
		"objects_processed": m.objects.Load(),
		"total_wall_seconds": m.totalWall.Seconds(),
		"stage_seconds":    stages,
		"error_kinds":      errorKinds,
	}
}
