package response

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_ListByRequirement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
	login := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "requirement_id", "candidate_id", "referrer_id", "justification", "price", "status", "created_at",
		"first_name", "last_name", "email", "phone", "last_login_at", "created_at",
		"first_name", "last_name", "email", "balance", "created_at",
	}).AddRow(
		"resp-1", "req-1", "c1", "r1", "strong fit", int64(2500), "pending", created,
		"Ada", "Lovelace", "ada@example.com", "+100", login, created,
		"Rey", "Ferrer", "rey@example.com", int64(9000), created,
	)
	mock.ExpectQuery(`FROM responses r\s+JOIN candidates c`).
		WithArgs("req-1", "pending").
		WillReturnRows(rows)

	repo := NewPostgresRepository(db)
	got, err := repo.ListByRequirement(context.Background(), "req-1", StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, int64(2500), r.Price)
	require.NotNil(t, r.Candidate)
	assert.Equal(t, "c1", r.Candidate.ID)
	assert.Equal(t, "ada@example.com", r.Candidate.Email)
	require.NotNil(t, r.Candidate.LastLoginAt)
	assert.True(t, r.Candidate.LastLoginAt.Equal(login))
	require.NotNil(t, r.Referrer)
	assert.Equal(t, "r1", r.Referrer.ID)
	assert.Equal(t, int64(9000), r.Referrer.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReferrerOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT referrer_id`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"referrer_id", "approved", "acted"}).
			AddRow("r1", 2, 3).
			AddRow("r2", 0, 0))

	repo := NewPostgresRepository(db)
	got, err := repo.ReferrerOutcomes(context.Background(), []string{"r1", "r2", "r3"})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Approved: 2, Acted: 3}, got["r1"])
	assert.Equal(t, 0.0, got["r2"].SuccessRate())
	_, ok := got["r3"]
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReferrerOutcomes_EmptyInputSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	got, err := NewPostgresRepository(db).ReferrerOutcomes(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReferrerOutcomes_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("timeout")
	mock.ExpectQuery(`SELECT referrer_id`).WillReturnError(dbErr)

	_, err = NewPostgresRepository(db).ReferrerOutcomes(context.Background(), []string{"r1"})
	assert.ErrorIs(t, err, dbErr)
}

func TestPostgresRepository_Insert_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO responses`).
		WithArgs("req-1", "c1", "r1", "fit", int64(100), "pending").
		WillReturnError(sql.ErrNoRows)

	err = NewPostgresRepository(db).Insert(context.Background(), &Response{
		RequirementID: "req-1", CandidateID: "c1", ReferrerID: "r1", Justification: "fit", Price: 100,
	})
	assert.ErrorIs(t, err, ErrDuplicateResponse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO responses`).
		WithArgs("req-1", "c1", "r1", "fit", int64(100), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("resp-9", created))

	r := &Response{RequirementID: "req-1", CandidateID: "c1", ReferrerID: "r1", Justification: "fit", Price: 100}
	require.NoError(t, NewPostgresRepository(db).Insert(context.Background(), r))
	assert.Equal(t, "resp-9", r.ID)
	assert.Equal(t, StatusPending, r.Status)
	assert.True(t, r.CreatedAt.Equal(created))
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	getRows := func(status string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "requirement_id", "candidate_id", "referrer_id", "justification", "price", "status", "created_at"}).
			AddRow("resp-1", "req-1", "c1", "r1", "fit", int64(100), status, created)
	}

	mock.ExpectQuery(`FROM responses\s+WHERE id = \$1`).WithArgs("resp-1").WillReturnRows(getRows("pending"))
	mock.ExpectExec(`UPDATE responses SET status`).
		WithArgs("approved", "resp-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	got, err := repo.UpdateStatus(context.Background(), "resp-1", StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)

	// Resolved responses never return to pending; no UPDATE is issued.
	mock.ExpectQuery(`FROM responses\s+WHERE id = \$1`).WithArgs("resp-1").WillReturnRows(getRows("rejected"))
	_, err = repo.UpdateStatus(context.Background(), "resp-1", StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// A concurrent change leaves zero rows affected.
	mock.ExpectQuery(`FROM responses\s+WHERE id = \$1`).WithArgs("resp-1").WillReturnRows(getRows("pending"))
	mock.ExpectExec(`UPDATE responses SET status`).
		WithArgs("rejected", "resp-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = repo.UpdateStatus(context.Background(), "resp-1", StatusRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM responses`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = NewPostgresRepository(db).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrResponseNotFound)
}
