// Package response provides the referrer response model, its status state
// machine and the repositories the ranking engine reads response history from.
package response

import (
	"errors"
	"time"

	"github.com/onnwee/refmarket/internal/account"
	"github.com/onnwee/refmarket/internal/candidate"
)

var (
	ErrResponseNotFound  = errors.New("response not found")
	ErrDuplicateResponse = errors.New("response already exists for this requirement, candidate and referrer")
)

// Response is a referrer's proposal of one candidate for one requirement.
// Candidate and Referrer are the joined full entities and must be redacted
// before leaving the service.
type Response struct {
	ID            string    `json:"id"`
	RequirementID string    `json:"requirement_id"`
	CandidateID   string    `json:"candidate_id"`
	ReferrerID    string    `json:"referrer_id"`
	Justification string    `json:"justification"`
	Price         int64     `json:"price"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`

	Candidate *candidate.Candidate `json:"-"`
	Referrer  *account.Referrer    `json:"-"`
}

// Outcome is a referrer's resolved response history across all requirements.
type Outcome struct {
	Approved int `json:"approved"`
	Acted    int `json:"acted"`
}

// SuccessRate returns Approved/Acted, or 0 when nothing has been acted on.
func (o Outcome) SuccessRate() float64 {
	if o.Acted <= 0 {
		return 0
	}
	return float64(o.Approved) / float64(o.Acted)
}
