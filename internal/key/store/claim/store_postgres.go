package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dictkeys/internal/key/models"
	"dictkeys/internal/platform/postgres"
	"dictkeys/pkg/platform/sentinel"
	txcontext "dictkeys/pkg/platform/tx"
)

// PostgresStore persists claims. The partial unique index claims_open_idx
// enforces one open claim per kind per key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const claimColumns = `
	id, key_id, key_value, kind, status, directory_claim_id, counterpart_ispb,
	counterpart_document, opened_at, last_changed_at, resolution_at, canceled_at,
	closed_at, cancel_reason
`

func (s *PostgresStore) Create(ctx context.Context, claim *models.Claim) error {
	query := `INSERT INTO claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		claim.ID,
		claim.KeyID,
		claim.KeyValue,
		string(claim.Kind),
		string(claim.Status),
		claim.DirectoryClaimID,
		claim.CounterpartISPB,
		claim.CounterpartDocument,
		claim.OpenedAt,
		claim.LastChangedAt,
		claim.ResolutionAt,
		claim.CanceledAt,
		claim.ClosedAt,
		claim.CancelReason,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, keyID uuid.UUID, kind models.ClaimKind) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE key_id = $1 AND kind = $2 AND closed_at IS NULL`
	return s.findOne(ctx, query, keyID, string(kind))
}

func (s *PostgresStore) FindByDirectoryID(ctx context.Context, directoryClaimID string) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE directory_claim_id = $1 ORDER BY opened_at DESC LIMIT 1`
	return s.findOne(ctx, query, directoryClaimID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Claim, error) {
	claim, err := scanClaim(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return claim, nil
}

func (s *PostgresStore) ListByKey(ctx context.Context, keyID uuid.UUID) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE key_id = $1 ORDER BY opened_at ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	claims := []*models.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func (s *PostgresStore) Update(ctx context.Context, claim *models.Claim) error {
	query := `
		UPDATE claims SET
			status = $2,
			last_changed_at = $3,
			resolution_at = $4,
			canceled_at = $5,
			closed_at = $6,
			cancel_reason = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		claim.ID,
		string(claim.Status),
		claim.LastChangedAt,
		claim.ResolutionAt,
		claim.CanceledAt,
		claim.ClosedAt,
		claim.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	return requireOneRow(res, "update claim")
}

func requireOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		claim        models.Claim
		kind, status string
		resolutionAt sql.NullTime
		canceledAt   sql.NullTime
		closedAt     sql.NullTime
	)
	err := row.Scan(
		&claim.ID,
		&claim.KeyID,
		&claim.KeyValue,
		&kind,
		&status,
		&claim.DirectoryClaimID,
		&claim.CounterpartISPB,
		&claim.CounterpartDocument,
		&claim.OpenedAt,
		&claim.LastChangedAt,
		&resolutionAt,
		&canceledAt,
		&closedAt,
		&claim.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	claim.Kind = models.ClaimKind(kind)
	claim.Status = models.ClaimStatus(status)
	if resolutionAt.Valid {
		claim.ResolutionAt = &resolutionAt.Time
	}
	if canceledAt.Valid {
		claim.CanceledAt = &canceledAt.Time
	}
	if closedAt.Valid {
		claim.ClosedAt = &closedAt.Time
	}
	return &claim, nil
}
