package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/platform/sentinel"
	txcontext "dictkeys/pkg/platform/tx"
)

// PostgresStore persists verification records. Counter changes are single
// atomic statements so concurrent guesses cannot exceed the maximum.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const verificationColumns = `key_id, user_id, code_hash, failed_attempts, locked, issued_at, expires_at`

func (s *PostgresStore) Upsert(ctx context.Context, v *models.Verification) error {
	query := `
		INSERT INTO key_verifications (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key_id, user_id) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		v.KeyID,
		v.UserID,
		v.CodeHash,
		v.FailedAttempts,
		v.Locked,
		v.IssuedAt,
		v.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, keyID, userID uuid.UUID) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM key_verifications WHERE key_id = $1 AND user_id = $2`
	v, err := scanVerification(s.execer(ctx).QueryRowContext(ctx, query, keyID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, keyID, userID uuid.UUID, maxAttempts int) (*models.Verification, error) {
	query := `
		UPDATE key_verifications SET
			failed_attempts = failed_attempts + 1,
			locked = failed_attempts + 1 >= $3
		WHERE key_id = $1 AND user_id = $2 AND NOT locked
		RETURNING ` + verificationColumns
	v, err := scanVerification(s.execer(ctx).QueryRowContext(ctx, query, keyID, userID, maxAttempts))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already locked, or missing.
			return s.Find(ctx, keyID, userID)
		}
		return nil, fmt.Errorf("record verification failure: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) Reset(ctx context.Context, keyID, userID uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE key_verifications SET failed_attempts = 0, locked = FALSE WHERE key_id = $1 AND user_id = $2`,
		keyID, userID)
	if err != nil {
		return fmt.Errorf("reset verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset verification rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanVerification(row *sql.Row) (*models.Verification, error) {
	var v models.Verification
	err := row.Scan(
		&v.KeyID,
		&v.UserID,
		&v.CodeHash,
		&v.FailedAttempts,
		&v.Locked,
		&v.IssuedAt,
		&v.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
