package circle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/refmarket/internal/tracing"
)

// PostgresRepository implements Source using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const directMembersQuery = `
	SELECT CASE WHEN inviter_id = $1 THEN accepter_id ELSE inviter_id END AS member_id
	FROM circles
	WHERE status = 'accepted'
	  AND ((inviter_id = $1 AND accepter_id = ANY($2))
	    OR (accepter_id = $1 AND inviter_id = ANY($2)))
`

// DirectMembers implements Source.
func (p *PostgresRepository) DirectMembers(ctx context.Context, viewerID string, referrerIDs []string) (map[string]struct{}, error) {
	if viewerID == "" || len(referrerIDs) == 0 {
		return make(map[string]struct{}), nil
	}
	return p.queryIDs(ctx, directMembersQuery, viewerID, pq.Array(referrerIDs))
}

const neighborsQuery = `
	SELECT CASE WHEN inviter_id = $1 THEN accepter_id ELSE inviter_id END AS member_id
	FROM circles
	WHERE status = 'accepted'
	  AND (inviter_id = $1 OR accepter_id = $1)
	  AND inviter_id <> accepter_id
`

// Neighbors implements Source.
func (p *PostgresRepository) Neighbors(ctx context.Context, viewerID string) (map[string]struct{}, error) {
	if viewerID == "" {
		return make(map[string]struct{}), nil
	}
	return p.queryIDs(ctx, neighborsQuery, viewerID)
}

const indirectMembersQuery = `
	SELECT inviter_id, accepter_id
	FROM circles
	WHERE status = 'accepted'
	  AND ((inviter_id = ANY($1) AND accepter_id = ANY($2))
	    OR (accepter_id = ANY($1) AND inviter_id = ANY($2)))
`

// IndirectMembers implements Source. Reach is exactly two hops from the viewer,
// and the viewer itself counts when it is a batch referrer next to a neighbor.
func (p *PostgresRepository) IndirectMembers(ctx context.Context, neighborIDs, referrerIDs []string) (result map[string]struct{}, err error) {
	result = make(map[string]struct{})
	if len(neighborIDs) == 0 || len(referrerIDs) == 0 {
		return result, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "circles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := p.db.QueryContext(ctx, indirectMembersQuery, pq.Array(neighborIDs), pq.Array(referrerIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query indirect circle: %w", err)
	}
	defer rows.Close()

	neighbors := toSet(neighborIDs)
	referrers := toSet(referrerIDs)
	for rows.Next() {
		var inviterID, accepterID string
		if err := rows.Scan(&inviterID, &accepterID); err != nil {
			return nil, fmt.Errorf("failed to scan circle relation: %w", err)
		}
		collectIndirect(inviterID, accepterID, neighbors, referrers, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circle relations: %w", err)
	}
	return result, nil
}

func (p *PostgresRepository) queryIDs(ctx context.Context, query string, args ...any) (result map[string]struct{}, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "circles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query circle members: %w", err)
	}
	defer rows.Close()

	result = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan circle member: %w", err)
		}
		result[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circle members: %w", err)
	}
	return result, nil
}
