package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const findQuery = `(?s)^\s*SELECT\s+id,\s*username,\s*password_hash\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s+OR\s+email\s*=\s*\$1\s+LIMIT\s+1\s*$`

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgresStore(conn), mock
}

func TestFindByLoginIdentifier_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash"}).
		AddRow("7f8c3c1e-3a64-4a43-a8a5-1b0a6f1b8c11", "alice", "$2a$10$hash")
	mock.ExpectQuery(findQuery).WithArgs("alice@example.com").WillReturnRows(rows)

	cred, err := store.FindByLoginIdentifier(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "7f8c3c1e-3a64-4a43-a8a5-1b0a6f1b8c11", cred.SubjectID)
	assert.Equal(t, "alice", cred.DisplayName)
	assert.Equal(t, "$2a$10$hash", cred.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByLoginIdentifier_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectQuery(findQuery).WithArgs("nobody").WillReturnError(sql.ErrNoRows)

	_, err := store.FindByLoginIdentifier(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByLoginIdentifier_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectQuery(findQuery).WithArgs("alice").WillReturnError(errors.New("connection reset"))

	_, err := store.FindByLoginIdentifier(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

const insertUserQuery = `(?s)^\s*INSERT\s+INTO\s+users\s+\(id,\s*username,\s*email,\s*password_hash\)\s+VALUES\s+\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`

func TestCreate(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "bob", "bob@example.com", "$2a$10$hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Create(context.Background(), "bob", "bob@example.com", "$2a$10$hash")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.DisplayName)
	_, err = uuid.Parse(id.SubjectID)
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectExec(insertUserQuery).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := store.Create(context.Background(), "bob", "alice@example.com", "$2a$10$hash")
	assert.ErrorIs(t, err, ErrExists)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestCreate_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)
	mock.ExpectExec(insertUserQuery).WillReturnError(errors.New("connection reset"))

	_, err := store.Create(context.Background(), "bob", "bob@example.com", "$2a$10$hash")
	assert.ErrorIs(t, err, ErrUnavailable)
}
