package data

import (
	"sync"
	"time"
)

// TimeProvider supplies the timestamps AnalysisRepo writes when a caller leaves them unset.
type TimeProvider interface {
	Now() time.Time
}

// SystemTime reads the wall clock.
type SystemTime struct{}

// Now returns the current time.
func (SystemTime) Now() time.Time { return time.Now() }

// FixedTimeProvider returns a pinned instant until moved with Advance.
type FixedTimeProvider struct {
	mu sync.Mutex
	at time.Time
}

// NewFixedTimeProvider creates a FixedTimeProvider pinned at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{at: t}
}

// Now returns the pinned instant.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

// Advance moves the pinned instant forward by d.
func (f *FixedTimeProvider) Advance(d time.Duration) {
	f.mu.Lock()
	f.at = f.at.Add(d)
	f.mu.Unlock()
}

// dbTimestamp normalizes t to UTC at the microsecond precision of timestamptz,
// so the ordering guard in UpsertStatus compares the same values Postgres stores.
func dbTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
