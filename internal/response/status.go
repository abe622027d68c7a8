package response

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a response.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPurchased Status = "purchased"
)

var (
	// ErrInvalidStatus is returned for a status string outside the known set.
	ErrInvalidStatus = errors.New("invalid response status")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid response status transition")
)

// transitions lists the allowed next states. Resolved states never return
// to pending.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPurchased},
}

// ParseStatus converts s to a Status. The empty string means pending.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPurchased:
		return true
	}
	return false
}

// CanTransitionTo reports whether a response in state s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Acted reports whether the requirement owner has resolved the response.
// Only approved and rejected responses count towards a referrer's success rate.
func (s Status) Acted() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	return string(s)
}
