package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AntonTsoy/session-service/internal/db"
)

const uniqueViolation pq.ErrorCode = "23505"

type PostgresStore struct {
	db db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

func (s *PostgresStore) FindByLoginIdentifier(ctx context.Context, identifier string) (*Credential, error) {
	query := `
		SELECT id, username, password_hash
		FROM users
		WHERE username = $1 OR email = $1
		LIMIT 1`

	var cred Credential
	err := s.db.QueryRowContext(ctx, query, identifier).
		Scan(&cred.SubjectID, &cred.DisplayName, &cred.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &cred, nil
}

func (s *PostgresStore) Create(ctx context.Context, username, email, passwordHash string) (Identity, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)`

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, username, email, passwordHash); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Identity{}, ErrExists
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Identity{SubjectID: id, DisplayName: username}, nil
}
