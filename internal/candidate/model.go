// Package candidate provides the candidate profile model and the snapshot
// sources the ranking engine reads activity and premium signals from.
package candidate

import (
	"context"
	"time"

	"github.com/onnwee/refmarket/internal/account"
)

// Candidate is the full candidate profile as stored by the profile service.
type Candidate struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"-"`
	Phone       string     `json:"-"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	IsPremium   bool       `json:"is_premium"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Identity returns the redacted view of the candidate.
func (c *Candidate) Identity() account.Identity {
	return account.Identity{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// Snapshot returns the read-only projection used for scoring.
func (c *Candidate) Snapshot() Snapshot {
	return Snapshot{
		ID:          c.ID,
		LastLoginAt: c.LastLoginAt,
		IsPremium:   c.IsPremium,
	}
}

// Snapshot is the subset of candidate state the ranking engine scores on.
type Snapshot struct {
	ID          string     `json:"id"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	IsPremium   bool       `json:"is_premium"`
}

// ActiveWithin reports whether the candidate logged in within window of now.
// A candidate that never logged in is not active.
func (s Snapshot) ActiveWithin(now time.Time, window time.Duration) bool {
	if s.LastLoginAt == nil {
		return false
	}
	return now.Sub(*s.LastLoginAt) <= window
}

// SnapshotSource loads candidate snapshots in bulk.
type SnapshotSource interface {
	// Snapshots returns the snapshots for the given candidate IDs keyed by ID.
	// Unknown IDs are absent from the result. An empty input returns an empty
	// map without touching storage.
	Snapshots(ctx context.Context, ids []string) (map[string]Snapshot, error)
}
