package response

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/refmarket/internal/account"
	"github.com/onnwee/refmarket/internal/candidate"
	"github.com/onnwee/refmarket/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// The ORDER BY only fixes the fetch order; the ranking engine re-sorts.
const listByRequirementQuery = `
	SELECT r.id, r.requirement_id, r.candidate_id, r.referrer_id,
	       r.justification, r.price, r.status, r.created_at,
	       c.first_name, c.last_name, c.email, c.phone, c.last_login_at, c.created_at,
	       f.first_name, f.last_name, f.email, f.balance, f.created_at
	FROM responses r
	JOIN candidates c ON c.id = r.candidate_id
	JOIN referrers f ON f.id = r.referrer_id
	WHERE r.requirement_id = $1 AND r.status = $2
	ORDER BY r.created_at DESC
`

// ListByRequirement loads the responses for a requirement with candidate and
// referrer joined.
func (p *PostgresRepository) ListByRequirement(ctx context.Context, requirementID string, status Status) (out []Response, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "responses", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := p.db.QueryContext(ctx, listByRequirementQuery, requirementID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         Response
			c         candidate.Candidate
			ref       account.Referrer
			st        string
			lastLogin sql.NullTime
		)
		if err := rows.Scan(
			&r.ID, &r.RequirementID, &r.CandidateID, &r.ReferrerID,
			&r.Justification, &r.Price, &st, &r.CreatedAt,
			&c.FirstName, &c.LastName, &c.Email, &c.Phone, &lastLogin, &c.CreatedAt,
			&ref.FirstName, &ref.LastName, &ref.Email, &ref.Balance, &ref.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		r.Status = Status(st)
		c.ID = r.CandidateID
		if lastLogin.Valid {
			t := lastLogin.Time
			c.LastLoginAt = &t
		}
		ref.ID = r.ReferrerID
		r.Candidate = &c
		r.Referrer = &ref
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}
	return out, nil
}

const referrerOutcomesQuery = `
	SELECT referrer_id,
	       COUNT(*) FILTER (WHERE status = 'approved') AS approved,
	       COUNT(*) FILTER (WHERE status IN ('approved', 'rejected')) AS acted
	FROM responses
	WHERE referrer_id = ANY($1)
	GROUP BY referrer_id
`

// ReferrerOutcomes counts resolved responses per referrer in a single query.
func (p *PostgresRepository) ReferrerOutcomes(ctx context.Context, referrerIDs []string) (result map[string]Outcome, err error) {
	result = make(map[string]Outcome, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return result, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "responses", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := p.db.QueryContext(ctx, referrerOutcomesQuery, pq.Array(referrerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query referrer outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			o  Outcome
		)
		if err := rows.Scan(&id, &o.Approved, &o.Acted); err != nil {
			return nil, fmt.Errorf("failed to scan referrer outcome: %w", err)
		}
		result[id] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrer outcomes: %w", err)
	}
	return result, nil
}

// GetByID loads a single response.
func (p *PostgresRepository) GetByID(ctx context.Context, id string) (r *Response, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "responses", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, requirement_id, candidate_id, referrer_id, justification, price, status, created_at
		FROM responses
		WHERE id = $1
	`

	r = &Response{}
	var st string
	err = p.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.RequirementID, &r.CandidateID, &r.ReferrerID,
		&r.Justification, &r.Price, &st, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResponseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	r.Status = Status(st)
	return r, nil
}

// Insert creates a pending response. The unique triple constraint turns a
// second submission into ErrDuplicateResponse.
func (p *PostgresRepository) Insert(ctx context.Context, r *Response) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "responses", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if r.Status == "" {
		r.Status = StatusPending
	}

	query := `
		INSERT INTO responses (requirement_id, candidate_id, referrer_id, justification, price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (requirement_id, candidate_id, referrer_id) DO NOTHING
		RETURNING id, created_at
	`

	err = p.db.QueryRowContext(ctx, query,
		r.RequirementID, r.CandidateID, r.ReferrerID, r.Justification, r.Price, string(r.Status),
	).Scan(&r.ID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateResponse
	}
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// UpdateStatus applies a validated transition. The update is conditional on
// the status that was read, so a concurrent change surfaces as
// ErrInvalidTransition instead of being overwritten.
func (p *PostgresRepository) UpdateStatus(ctx context.Context, id string, next Status) (*Response, error) {
	current, err := p.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "responses", tracing.DBOperationUpdate)
	res, err := p.db.ExecContext(ctx,
		`UPDATE responses SET status = $1 WHERE id = $2 AND status = $3`,
		string(next), id, string(current.Status))
	endSpan(err)
	if err != nil {
		return nil, fmt.Errorf("failed to update response status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}

	current.Status = next
	return current, nil
}
