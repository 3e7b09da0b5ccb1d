package key

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dictkeys/internal/key/models"
	"dictkeys/internal/platform/postgres"
	"dictkeys/pkg/platform/sentinel"
	txcontext "dictkeys/pkg/platform/tx"
)

// PostgresStore persists keys in PostgreSQL. The partial unique index
// keys_live_value_idx enforces one live key per value.
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

const keyColumns = `
	id, key_value, key_type, owner_id, owner_document, state, previous_state,
	last_trigger, failure_code, failure_message, version, created_at, updated_at,
	state_changed_at
`

func (s *PostgresStore) Create(ctx context.Context, key *models.Key) error {
	query := `INSERT INTO keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		key.ID,
		key.Value,
		string(key.Type),
		key.OwnerID,
		key.OwnerDocument,
		string(key.State),
		string(key.PreviousState),
		string(key.LastTrigger),
		key.FailureCode,
		key.FailureMessage,
		key.Version,
		key.CreatedAt,
		key.UpdatedAt,
		key.StateChangedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE id = $1`
	key, err := scanKey(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find key by id: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) FindLiveByValue(ctx context.Context, value string) (*models.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys
		WHERE key_value = $1 AND NOT (state = ANY($2))`
	key, err := scanKey(s.execer(ctx).QueryRowContext(ctx, query, value, pq.Array(terminalStates())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find live key by value: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE owner_id = $1 ORDER BY created_at ASC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list keys by owner: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

// CompareAndSwap updates the row only if it still has the expected state and
// version. A zero-row update is reported as ErrStaleWrite (or ErrNotFound
// when the key does not exist).
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key *models.Key, expectedState models.State, expectedVersion int64) error {
	query := `
		UPDATE keys SET
			state = $4,
			previous_state = $5,
			last_trigger = $6,
			failure_code = $7,
			failure_message = $8,
			version = $9,
			updated_at = $10,
			state_changed_at = $11
		WHERE id = $1 AND state = $2 AND version = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		key.ID,
		string(expectedState),
		expectedVersion,
		string(key.State),
		string(key.PreviousState),
		string(key.LastTrigger),
		key.FailureCode,
		key.FailureMessage,
		key.Version,
		key.UpdatedAt,
		key.StateChangedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update key rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, key.ID); err != nil {
			return err
		}
		return sentinel.ErrStaleWrite
	}
	return nil
}

// ListOverdue returns up to limit keys in one of states whose field is older
// than cutoff, oldest first.
func (s *PostgresStore) ListOverdue(ctx context.Context, states []models.State, field models.AgeField, cutoff time.Time, limit int) ([]*models.Key, error) {
	column := "state_changed_at"
	if field == models.AgeFromCreated {
		column = "created_at"
	}
	query := `SELECT ` + keyColumns + ` FROM keys
		WHERE state = ANY($1) AND ` + column + ` < $2
		ORDER BY ` + column + ` ASC
		LIMIT $3`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(stateStrings(states)), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*models.Key, error) {
	var (
		key                                    models.Key
		keyType, state, previousState, trigger string
	)
	err := row.Scan(
		&key.ID,
		&key.Value,
		&keyType,
		&key.OwnerID,
		&key.OwnerDocument,
		&state,
		&previousState,
		&trigger,
		&key.FailureCode,
		&key.FailureMessage,
		&key.Version,
		&key.CreatedAt,
		&key.UpdatedAt,
		&key.StateChangedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Type = models.KeyType(keyType)
	key.State = models.State(state)
	key.PreviousState = models.State(previousState)
	key.LastTrigger = models.Trigger(trigger)
	return &key, nil
}

func scanKeys(rows *sql.Rows) ([]*models.Key, error) {
	keys := []*models.Key{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func stateStrings(states []models.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func terminalStates() []string {
	return stateStrings(models.TerminalStates)
}
