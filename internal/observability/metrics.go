package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for client-side operations.
type Metrics struct {
	mu       sync.Mutex
	authOps  map[string]int64
	channel  map[string]int64
	inbound  map[string]int64
	storeErr int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		authOps: make(map[string]int64),
		channel: make(map[string]int64),
		inbound: make(map[string]int64),
	}
}

// RecordAuthOp increments the counter for an auth operation outcome.
func (m *Metrics) RecordAuthOp(op string, ok bool) {
	if m == nil {
		return
	}
	key := op + "|ok"
	if !ok {
		key = op + "|err"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authOps[key]++
}

// RecordChannel increments a channel-lifecycle counter (connect, reconnect,
// disconnect, give_up).
func (m *Metrics) RecordChannel(event string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel[event]++
}

// RecordInbound increments the counter for a received named event.
func (m *Metrics) RecordInbound(event string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound[event]++
}

// RecordStorageError counts swallowed persistence failures.
func (m *Metrics) RecordStorageError() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr++
}

// Snapshot returns a flat copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.authOps)+len(m.channel)+len(m.inbound)+1)
	for k, v := range m.authOps {
		out["auth|"+k] = v
	}
	for k, v := range m.channel {
		out["channel|"+k] = v
	}
	for k, v := range m.inbound {
		out["inbound|"+k] = v
	}
	if m.storeErr > 0 {
		out["storage|err"] = m.storeErr
	}
	return out
}
