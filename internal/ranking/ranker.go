package ranking

import (
	"errors"
	"sort"

	"github.com/onnwee/refmarket/internal/response"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrMissingViewer is returned when a ranking request has no viewer.
var ErrMissingViewer = errors.New("ranking requires a viewer")

// RankRequest asks for one page of ranked responses.
type RankRequest struct {
	RequirementID string
	ViewerID      string
	Page          int
	Limit         int
	Status        string
}

// normalized returns a copy with defaults applied and the parsed status.
func (r RankRequest) normalized() (RankRequest, response.Status, error) {
	if r.ViewerID == "" {
		return r, "", ErrMissingViewer
	}
	status, err := response.ParseStatus(r.Status)
	if err != nil {
		return r, "", err
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	r.Status = string(status)
	return r, status, nil
}

// SortScored orders items by score descending, then newest first, then by ID
// so equal inputs always produce the same order.
func SortScored(items []ScoredResponse) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Paginate returns the 1-indexed page of items. Out-of-range pages are empty.
func Paginate(items []ScoredResponse, page, limit int) []ScoredResponse {
	if page < 1 || limit < 1 {
		return []ScoredResponse{}
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []ScoredResponse{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
