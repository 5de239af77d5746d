package session

import (
	"context"
	"sync"
	"time"

	"github.com/mattsp1290/blackholio-go-client/internal/wire"
)

// slotResult is what a completionSlot resolves with: either a decoded
// server message or an error (including cancellation).
type slotResult struct {
	value wire.ServerMessage
	err   error
}

// completionSlot is a single-shot future a sent request waits on.
type completionSlot struct {
	ch chan slotResult
}

func (s *completionSlot) await(ctx context.Context, timeout time.Duration) (wire.ServerMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-s.ch:
		return res.value, res.err
	case <-timer.C:
		return wire.ServerMessage{}, context.DeadlineExceeded
	case <-ctx.Done():
		return wire.ServerMessage{}, ctx.Err()
	}
}

// correlationRegistry maps request_id to a completionSlot. Entries are
// created on send and removed on first resolution (value, error, or
// cancellation) — Testable Property 3.
type correlationRegistry struct {
	mu    sync.Mutex
	slots map[string]*completionSlot
}

func newCorrelationRegistry() *correlationRegistry {
	return &correlationRegistry{slots: make(map[string]*completionSlot)}
}

func (r *correlationRegistry) create(requestID string) *completionSlot {
	slot := &completionSlot{ch: make(chan slotResult, 1)}
	r.mu.Lock()
	r.slots[requestID] = slot
	r.mu.Unlock()
	return slot
}

// resolve delivers sm to requestID's slot if one is outstanding, removing
// it from the registry. Returns false if no slot was outstanding, meaning
// the caller should fall back to discriminator-based event dispatch.
func (r *correlationRegistry) resolve(requestID string, sm wire.ServerMessage) bool {
	r.mu.Lock()
	slot, ok := r.slots[requestID]
	if ok {
		delete(r.slots, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	var err error
	if sm.Kind == wire.KindError && sm.Error != nil {
		err = &wireError{message: sm.Error.Message}
	}
	slot.ch <- slotResult{value: sm, err: err}
	return true
}

// remove deletes requestID's slot without resolving it: used after a
// timeout or send failure, where the slot was never delivered a value.
func (r *correlationRegistry) remove(requestID string) {
	r.mu.Lock()
	delete(r.slots, requestID)
	r.mu.Unlock()
}

// cancelAll resolves every outstanding slot with context.Canceled, for
// graceful disconnect — spec.md §4.5 "fail all outstanding completion
// slots with cancellation".
func (r *correlationRegistry) cancelAll() {
	r.mu.Lock()
	slots := r.slots
	r.slots = make(map[string]*completionSlot)
	r.mu.Unlock()

	for _, slot := range slots {
		slot.ch <- slotResult{err: context.Canceled}
	}
}

// wireError wraps a server-reported Error payload's message as a plain Go
// error.
type wireError struct{ message string }

func (e *wireError) Error() string { return e.message }
