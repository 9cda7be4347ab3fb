// Package history keeps the most recent request metrics in memory and
// fans new records out to live subscribers.
package history

import (
	"sync"

	"github.com/radicai/ad-agent-api/pkg/models"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 200

// RequestLog is a thread-safe ring buffer of the last N request metrics.
type RequestLog struct {
	mu          sync.RWMutex
	entries     []models.RequestMetrics
	maxEntries  int
	subscribers map[chan models.RequestMetrics]struct{}
}

// NewRequestLog creates a log that retains up to maxEntries records.
func NewRequestLog(maxEntries int) *RequestLog {
	if maxEntries <= 0 {
		maxEntries = DefaultCapacity
	}
	return &RequestLog{
		entries:     make([]models.RequestMetrics, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[chan models.RequestMetrics]struct{}),
	}
}

// Add appends a record and broadcasts it to all subscribers.
func (l *RequestLog) Add(m models.RequestMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, m)

	for ch := range l.subscribers {
		select {
		case ch <- m:
		default:
			// slow subscriber misses this record
		}
	}
}

// Recent returns up to n records, oldest first. n <= 0 returns all.
func (l *RequestLog) Recent(n int) []models.RequestMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.entries)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]models.RequestMetrics, n)
	copy(out, l.entries[total-n:])
	return out
}

// Find returns the record with the given request id.
func (l *RequestLog) Find(requestID string) (models.RequestMetrics, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].RequestID == requestID {
			return l.entries[i], true
		}
	}
	return models.RequestMetrics{}, false
}

// Len returns the number of retained records.
func (l *RequestLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe returns a channel that receives new records as they arrive.
// Call Unsubscribe when done.
func (l *RequestLog) Subscribe() chan models.RequestMetrics {
	ch := make(chan models.RequestMetrics, 64)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (l *RequestLog) Unsubscribe(ch chan models.RequestMetrics) {
	l.mu.Lock()
	delete(l.subscribers, ch)
	l.mu.Unlock()
	close(ch)
}
