package tokenkit

import (
	"sync"
	"sync/atomic"
)

// Token lifecycle events counted by the Manager.
const (
	EventCacheHit        = "token.cache_hit"
	EventRefreshed       = "token.refreshed"
	EventRefreshFailed   = "token.refresh_failed"
	EventAuthorized      = "token.authorized"
	EventAuthorizeFailed = "token.authorize_failed"
)

// MetricsRecorder increments counters for token events.
type MetricsRecorder interface {
	Increment(event string)
}

type nopMetrics struct{}

func (nopMetrics) Increment(string) {}

// EventCounter tallies token events in process memory.
type EventCounter struct {
	mutex  sync.RWMutex
	totals map[string]*atomic.Int64
}

// NewEventCounter constructs an empty in-memory event counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{totals: make(map[string]*atomic.Int64)}
}

func (counter *EventCounter) total(event string) *atomic.Int64 {
	counter.mutex.RLock()
	total, ok := counter.totals[event]
	counter.mutex.RUnlock()
	if ok {
		return total
	}
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	if total, ok = counter.totals[event]; !ok {
		total = new(atomic.Int64)
		counter.totals[event] = total
	}
	return total
}

// Increment adds one to the event total.
func (counter *EventCounter) Increment(event string) {
	counter.total(event).Add(1)
}

// Count returns the event total; unseen events count zero.
func (counter *EventCounter) Count(event string) int64 {
	counter.mutex.RLock()
	defer counter.mutex.RUnlock()
	if total, ok := counter.totals[event]; ok {
		return total.Load()
	}
	return 0
}

// Snapshot copies every event total.
func (counter *EventCounter) Snapshot() map[string]int64 {
	counter.mutex.RLock()
	defer counter.mutex.RUnlock()
	snapshot := make(map[string]int64, len(counter.totals))
	for event, total := range counter.totals {
		snapshot[event] = total.Load()
	}
	return snapshot
}
