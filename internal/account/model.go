// Package account provides the referrer account model and the redacted
// identity view that is safe to embed in responses returned to other referrers.
package account

import "time"

// Referrer is a marketplace user who refers candidates to requirements and
// owns requirements of their own.
type Referrer struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"-"`
	PasswordHash string    `json:"-"`
	RefreshToken string    `json:"-"`
	Balance      int64     `json:"-"` // smallest currency unit
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the public projection of a person. Ranking output exposes
// nothing beyond these three fields.
type Identity struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Identity returns the redacted view of the referrer.
func (r *Referrer) Identity() Identity {
	return Identity{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}
