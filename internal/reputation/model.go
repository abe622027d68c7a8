// Package reputation maintains a published success-rate snapshot per referrer.
// Response status changes mark a referrer dirty; a background job recomputes
// dirty referrers from their response history and stores the result.
package reputation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/refmarket/internal/response"
)

// ErrReputationNotFound is returned when no reputation has been stored for a referrer.
var ErrReputationNotFound = errors.New("reputation not found")

// Reputation is a referrer's resolved-response record at a point in time.
type Reputation struct {
	ReferrerID  string    `json:"referrer_id"`
	Approved    int       `json:"approved"`
	Acted       int       `json:"acted"`
	SuccessRate float64   `json:"success_rate"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Compute builds a Reputation from an outcome. A referrer with nothing acted
// on has a success rate of 0.
func Compute(referrerID string, o response.Outcome, now time.Time) Reputation {
	return Reputation{
		ReferrerID:  referrerID,
		Approved:    o.Approved,
		Acted:       o.Acted,
		SuccessRate: o.SuccessRate(),
		ComputedAt:  now,
	}
}

// DirtyTracker tracks which referrers have response changes that require
// recomputation. Thread-safe via RWMutex.
type DirtyTracker struct {
	mu         sync.RWMutex
	dirtyFlags map[string]time.Time // referrerID -> time marked dirty
}

// NewDirtyTracker creates a new DirtyTracker instance.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{
		dirtyFlags: make(map[string]time.Time),
	}
}

// MarkDirty marks a referrer as needing recomputation.
func (t *DirtyTracker) MarkDirty(referrerID string) {
	t.mu.Lock()
	t.dirtyFlags[referrerID] = time.Now()
	t.mu.Unlock()
}

// ClearDirty removes the flag if it was set at or before markedBefore, so a
// change that lands during recomputation is not lost.
func (t *DirtyTracker) ClearDirty(referrerID string, markedBefore time.Time) {
	t.mu.Lock()
	if at, ok := t.dirtyFlags[referrerID]; ok && !at.After(markedBefore) {
		delete(t.dirtyFlags, referrerID)
	}
	t.mu.Unlock()
}

// DirtyReferrers returns the dirty referrer IDs in sorted order.
func (t *DirtyTracker) DirtyReferrers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.dirtyFlags))
	for id := range t.dirtyFlags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsDirty checks if a referrer is marked dirty.
func (t *DirtyTracker) IsDirty(referrerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.dirtyFlags[referrerID]
	return exists
}

// DirtyCount returns the number of dirty referrers.
func (t *DirtyTracker) DirtyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirtyFlags)
}
