// Package audit records who changed what on marketplace entities. Entries are
// append-only and queried newest first.
package audit

import (
	"errors"
	"time"
)

var (
	ErrInvalidEntityType = errors.New("entity type cannot be empty")
	ErrInvalidEntityID   = errors.New("entity ID cannot be empty")
	ErrInvalidAction     = errors.New("action is not recognised")
	ErrMissingActor      = errors.New("actor ID cannot be empty")
)

// Entity types.
const (
	EntityResponse = "response"
)

// Actions.
const (
	ActionResponseApproved = "response.approved"
	ActionResponseRejected = "response.rejected"
)

var validActions = map[string]bool{
	ActionResponseApproved: true,
	ActionResponseRejected: true,
}

// Log is one recorded change.
type Log struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entry is the input for recording a change.
type Entry struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	FromStatus string
	ToStatus   string
	RequestID  string
}

// Validate checks the required fields and the action whitelist.
func (e Entry) Validate() error {
	switch {
	case e.ActorID == "":
		return ErrMissingActor
	case e.EntityType == "":
		return ErrInvalidEntityType
	case e.EntityID == "":
		return ErrInvalidEntityID
	case !validActions[e.Action]:
		return ErrInvalidAction
	}
	return nil
}
