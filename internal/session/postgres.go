package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AntonTsoy/session-service/internal/db"
)

var _ Registry = (*PostgresRegistry)(nil)

// PostgresRegistry keeps refresh sessions in the refresh_sessions table.
// Mutations of one subject are serialized with a transaction-scoped advisory lock.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(conn *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: conn}
}

const (
	lockSubjectQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	supersedeQuery = `
		WITH deleted AS (
			DELETE FROM refresh_sessions WHERE subject_id = $1 RETURNING expires_at
		)
		SELECT count(*) FROM deleted WHERE expires_at > $2`

	insertQuery = `
		INSERT INTO refresh_sessions (token_value, subject_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`

	consumeQuery = `
		DELETE FROM refresh_sessions
		WHERE token_value = $1 AND subject_id = $2 AND expires_at > $3`

	findQuery = `
		SELECT token_value, subject_id, created_at, expires_at
		FROM refresh_sessions
		WHERE token_value = $1 AND expires_at > $2`

	deleteByValueQuery   = `DELETE FROM refresh_sessions WHERE token_value = $1`
	deleteBySubjectQuery = `DELETE FROM refresh_sessions WHERE subject_id = $1`
	sweepQuery           = `DELETE FROM refresh_sessions WHERE expires_at <= $1`
)

func (r *PostgresRegistry) Replace(ctx context.Context, rec Record) (int, error) {
	var superseded int
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, lockSubjectQuery, rec.SubjectID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, supersedeQuery, rec.SubjectID, rec.CreatedAt).Scan(&superseded); err != nil {
			return err
		}
		return insert(ctx, tx, rec)
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return superseded, nil
}

func (r *PostgresRegistry) Rotate(ctx context.Context, presented string, next Record) error {
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, lockSubjectQuery, next.SubjectID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, consumeQuery, presented, next.SubjectID, next.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, deleteBySubjectQuery, next.SubjectID); err != nil {
			return err
		}
		return insert(ctx, tx, next)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *PostgresRegistry) FindByValue(ctx context.Context, value string, now time.Time) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, findQuery, value, now).
		Scan(&rec.TokenValue, &rec.SubjectID, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, unavailable(err)
	}
	return rec, nil
}

func (r *PostgresRegistry) DeleteByValue(ctx context.Context, value string) error {
	if _, err := r.db.ExecContext(ctx, deleteByValueQuery, value); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *PostgresRegistry) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	return r.exec(ctx, deleteBySubjectQuery, subjectID)
}

func (r *PostgresRegistry) Sweep(ctx context.Context, now time.Time) (int, error) {
	return r.exec(ctx, sweepQuery, now)
}

func (r *PostgresRegistry) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func insert(ctx context.Context, tx db.DBTX, rec Record) error {
	_, err := tx.ExecContext(ctx, insertQuery, rec.TokenValue, rec.SubjectID, rec.CreatedAt, rec.ExpiresAt)
	return err
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
