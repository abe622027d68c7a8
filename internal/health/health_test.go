package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DBChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDBChecker(db), mock
}

func TestDBChecker_Healthy(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectPing()
	mock.ExpectQuery(`SELECT t FROM unnest`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"t"}))

	assert.NoError(t, checker.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBChecker_MissingTables(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectPing()
	mock.ExpectQuery(`SELECT t FROM unnest`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"t"}).AddRow("circles"))

	err := checker.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circles")
}

func TestDBChecker_PingFails(t *testing.T) {
	checker, mock := newMockDB(t)
	pingErr := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(pingErr)

	err := checker.HealthCheck(context.Background())
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewRedisChecker(client)
	assert.NoError(t, checker.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, checker.HealthCheck(context.Background()))
}

func TestRedisChecker_CancelledContext(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewRedisChecker(client).HealthCheck(ctx))
}
