package ranking

import (
	"time"

	"github.com/onnwee/refmarket/internal/account"
	"github.com/onnwee/refmarket/internal/response"
)

// CircleRelation is the referrer's social-graph distance from the viewer.
type CircleRelation string

const (
	CircleDirect   CircleRelation = "direct"
	CircleIndirect CircleRelation = "indirect"
	CircleNone     CircleRelation = "none"
)

// ScoreDetails is the auditable breakdown behind a score. Component scores
// are rounded to two decimals; SuccessRate to four.
type ScoreDetails struct {
	SuccessRate  float64 `json:"success_rate"`
	SuccessScore float64 `json:"success_score"`

	// Reserved components; always zero under the default weights.
	ReviewScore  float64 `json:"review_score"`
	InvitedScore float64 `json:"invited_score"`

	CandidateActive      bool       `json:"candidate_active"`
	CandidateLastLoginAt *time.Time `json:"candidate_last_login_at,omitempty"`
	ActiveScore          float64    `json:"active_score"`

	RecentInterest     bool    `json:"recent_interest"`
	InterestWindowDays int     `json:"interest_window_days"`
	InterestScore      float64 `json:"interest_score"`

	CircleRelation CircleRelation `json:"circle_relation"`
	CircleScore    float64        `json:"circle_score"`

	IsPremium    bool    `json:"is_premium"`
	PremiumScore float64 `json:"premium_score"`

	Total       float64 `json:"total"`
	CappedTotal float64 `json:"capped_total"`
}

// ScoredResponse is a response as shown to the requirement owner: its own
// fields, redacted people and the computed score.
type ScoredResponse struct {
	ID            string           `json:"id"`
	RequirementID string           `json:"requirement_id"`
	CandidateID   string           `json:"candidate_id"`
	ReferrerID    string           `json:"referrer_id"`
	Justification string           `json:"justification"`
	Price         int64            `json:"price"`
	Status        response.Status  `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	Candidate     account.Identity `json:"candidate"`
	Referrer      account.Identity `json:"referrer"`

	Score        float64      `json:"score"`
	ScoreDetails ScoreDetails `json:"score_details"`
}

// Compose scores one response against the batch signals. r is not modified.
func Compose(r response.Response, signals *Signals, now time.Time, weights *Weights) ScoredResponse {
	if weights == nil {
		weights = DefaultWeights()
	}
	if signals == nil {
		signals = NewSignals()
	}

	rate := signals.SuccessRate(r.ReferrerID)
	snap := signals.Snapshots[r.CandidateID]
	active := ActiveWithin(snap.LastLoginAt, now, ActiveWindow)
	recent := signals.HasRecentInterest(r.ReferrerID, r.CandidateID)
	circle := signals.Circle(r.ReferrerID)

	d := ScoreDetails{
		SuccessRate:          roundTo(rate, 4),
		SuccessScore:         roundTo(SuccessWeight(rate, weights.SuccessRate), 2),
		ReviewScore:          0,
		InvitedScore:         0,
		CandidateActive:      active,
		CandidateLastLoginAt: snap.LastLoginAt,
		ActiveScore:          roundTo(FlagWeight(active, weights.CandidateActive), 2),
		RecentInterest:       recent,
		InterestWindowDays:   InterestWindowDays,
		InterestScore:        roundTo(FlagWeight(recent, weights.RecentInterest), 2),
		CircleRelation:       circle,
		CircleScore:          roundTo(CircleWeight(circle, weights), 2),
		IsPremium:            snap.IsPremium,
		PremiumScore:         roundTo(FlagWeight(snap.IsPremium, weights.Premium), 2),
	}

	d.Total = roundTo(d.SuccessScore+d.ReviewScore+d.InvitedScore+
		d.ActiveScore+d.InterestScore+d.CircleScore+d.PremiumScore, 2)
	d.CappedTotal = CapScore(d.Total)

	return ScoredResponse{
		ID:            r.ID,
		RequirementID: r.RequirementID,
		CandidateID:   r.CandidateID,
		ReferrerID:    r.ReferrerID,
		Justification: r.Justification,
		Price:         r.Price,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		Candidate:     candidateIdentity(r),
		Referrer:      referrerIdentity(r),
		Score:         d.CappedTotal,
		ScoreDetails:  d,
	}
}

func candidateIdentity(r response.Response) account.Identity {
	if r.Candidate == nil {
		return account.Identity{ID: r.CandidateID}
	}
	return r.Candidate.Identity()
}

func referrerIdentity(r response.Response) account.Identity {
	if r.Referrer == nil {
		return account.Identity{ID: r.ReferrerID}
	}
	return r.Referrer.Identity()
}
