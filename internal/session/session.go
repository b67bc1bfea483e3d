// Package session models one dashboard session and the memo that keeps
// pipeline step results for the lifetime of that session.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dvloznov/sabadell-dashboard/internal/metrics"
)

// Session identifies one run of the pipeline. Step results computed under
// a session are reused until the session is replaced.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// New starts a session with a fresh id.
func New() Session {
	return Session{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
}

// Memo is an LRU cache with TTL keyed by session, step and step input.
type Memo struct {
	cache *expirable.LRU[string, any]
}

// NewMemo creates a memo holding at most size entries, each living for ttl.
func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{cache: expirable.NewLRU[string, any](size, nil, ttl)}
}

func memoKey(sessionID, step, input string) string {
	return sessionID + "\x00" + step + "\x00" + input
}

// Get returns the cached value of step for input within the session.
func (m *Memo) Get(sessionID, step, input string) (any, bool) {
	v, ok := m.cache.Get(memoKey(sessionID, step, input))
	if ok {
		metrics.CacheLookups.WithLabelValues(step, "hit").Inc()
		return v, true
	}
	metrics.CacheLookups.WithLabelValues(step, "miss").Inc()
	return nil, false
}

// Set stores the value of step for input within the session.
func (m *Memo) Set(sessionID, step, input string, v any) {
	m.cache.Add(memoKey(sessionID, step, input), v)
}

// InvalidateSession drops every entry stored under sessionID and returns
// how many were removed.
func (m *Memo) InvalidateSession(sessionID string) int {
	prefix := sessionID + "\x00"
	removed := 0
	for _, k := range m.cache.Keys() {
		if strings.HasPrefix(k, prefix) && m.cache.Remove(k) {
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (m *Memo) Len() int {
	return m.cache.Len()
}

// Do returns the memoized result of step for input, computing it with fn on
// a miss. Errors are not cached.
func Do[T any](m *Memo, sessionID, step, input string, fn func() (T, error)) (T, error) {
	if v, ok := m.Get(sessionID, step, input); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err := fn()
	if err != nil {
		var zero T
		return zero, err
	}
	m.Set(sessionID, step, input, v)
	return v, nil
}
