package store

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresInsertNonce_UniqueViolationReportsReplay(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO interop_nonces").
		WithArgs("abc123", "scarlet", "jason").
		WillReturnError(assertablePgUniqueError{})

	inserted, err := s.InsertNonce(ctx, "abc123", "scarlet", "jason")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolveApproval(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE approval_queue SET status").
		WithArgs("approved", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.ResolveApproval(ctx, 7, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// assertablePgUniqueError mimics the text lib/pq surfaces for a unique-key
// violation, which isUniqueViolation matches on regardless of driver.
type assertablePgUniqueError struct{}

func (assertablePgUniqueError) Error() string {
	return `pq: duplicate key value violates unique constraint "interop_nonces_pkey"`
}
