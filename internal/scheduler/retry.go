package scheduler

import (
	"sync"
	"time"
)

// RetryTracker counts consecutive failed attempts per post. Entries live in
// memory only and are dropped on success, when the post is given up on, or
// when the post stops being scheduled.
type RetryTracker struct {
	mu      sync.Mutex
	entries map[int64]retryEntry
}

type retryEntry struct {
	count       int
	lastFailure time.Time
}

func NewRetryTracker() *RetryTracker {
	return &RetryTracker{entries: make(map[int64]retryEntry)}
}

func (t *RetryTracker) Count(postID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[postID].count
}

// RecordFailure bumps the post's count and returns the new value.
func (t *RetryTracker) RecordFailure(postID int64, at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[postID]
	e.count++
	e.lastFailure = at
	t.entries[postID] = e
	return e.count
}

func (t *RetryTracker) Clear(postID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, postID)
}

// Retain drops the entries of posts not in keep.
func (t *RetryTracker) Retain(keep map[int64]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.entries {
		if _, ok := keep[id]; !ok {
			delete(t.entries, id)
		}
	}
}

// InBackoff reports whether the post failed less than delay times its
// failure count ago.
func (t *RetryTracker) InBackoff(postID int64, now time.Time, delay time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[postID]
	if !ok || e.count == 0 {
		return false
	}
	return now.Sub(e.lastFailure) < delay*time.Duration(e.count)
}

func (t *RetryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
