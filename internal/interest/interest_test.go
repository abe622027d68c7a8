package interest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKey(t *testing.T) {
	if got := PairKey("r1", "c1"); got != "r1::c1" {
		t.Errorf("PairKey() = %q", got)
	}
}

func TestInMemoryRepository_AcceptedPairs(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	since := now.Add(-14 * 24 * time.Hour)

	repo := NewInMemoryRepository()
	repo.Add(&Interest{ReferrerID: "r1", CandidateID: "c1", Status: StatusAccepted, CreatedAt: now.Add(-5 * 24 * time.Hour)})
	repo.Add(&Interest{ReferrerID: "r1", CandidateID: "c2", Status: StatusPending, CreatedAt: now.Add(-time.Hour)})
	repo.Add(&Interest{ReferrerID: "r2", CandidateID: "c1", Status: StatusAccepted, CreatedAt: now.Add(-20 * 24 * time.Hour)})
	repo.Add(&Interest{ReferrerID: "r2", CandidateID: "c2", Status: StatusAccepted, CreatedAt: since})
	repo.Add(&Interest{ReferrerID: "r3", CandidateID: "c1", Status: StatusAccepted, CreatedAt: now})

	got, err := repo.AcceptedPairs(context.Background(), []string{"r1", "r2"}, []string{"c1", "c2"}, since)
	if err != nil {
		t.Fatalf("AcceptedPairs() error = %v", err)
	}

	want := []string{"r1::c1", "r2::c2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d pairs, got %v", len(want), got)
	}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			t.Errorf("missing pair %s", k)
		}
	}
}

func TestInMemoryRepository_AcceptedPairs_EmptySets(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Add(&Interest{ReferrerID: "r1", CandidateID: "c1", Status: StatusAccepted})

	got, _ := repo.AcceptedPairs(context.Background(), nil, []string{"c1"}, time.Time{})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	got, _ = repo.AcceptedPairs(context.Background(), []string{"r1"}, nil, time.Time{})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestPostgresRepository_AcceptedPairs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2026, 10, 5, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT DISTINCT referrer_id, candidate_id\s+FROM interests`).
		WithArgs(since, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"referrer_id", "candidate_id"}).
			AddRow("r1", "c1").
			AddRow("r2", "c3"))

	got, err := NewPostgresRepository(db).AcceptedPairs(context.Background(), []string{"r1", "r2"}, []string{"c1", "c3"}, since)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "r1::c1")
	assert.Contains(t, got, "r2::c3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AcceptedPairs_EmptyInputSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	got, err := NewPostgresRepository(db).AcceptedPairs(context.Background(), []string{"r1"}, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AcceptedPairs_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("deadlock detected")
	mock.ExpectQuery(`FROM interests`).WillReturnError(dbErr)

	_, err = NewPostgresRepository(db).AcceptedPairs(context.Background(), []string{"r1"}, []string{"c1"}, time.Now())
	assert.ErrorIs(t, err, dbErr)
}
