package ledger

import (
	"context"
	"errors"
	"fmt"

	"cardcore/internal/money"
	"cardcore/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrLedgerEntryExists is returned by Append when a ledger entry with this
// idempotency key has already been recorded. Settlement operations use
// this to detect and no-op on replayed requests.
var ErrLedgerEntryExists = errors.New("ledger entry idempotency key already used")

// LedgerStore persists the append-only LedgerEntry audit trail.
type LedgerStore struct{}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Append records a new ledger entry. Entries are never updated or deleted.
func (s *LedgerStore) Append(ctx context.Context, q storage.Querier, e *LedgerEntry) error {
	query := `INSERT INTO ledger_entries (
		id, account_ref, entry_type, amount, currency, transaction_type,
		authorization_id, card_id, idempotency_key, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := q.Exec(ctx, query,
		e.ID, e.AccountRef, e.EntryType, e.Amount.Amount(), e.Amount.Currency(), e.TransactionType,
		e.AuthorizationID, e.CardID, e.IdempotencyKey, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "ledger_entries_idempotency_key_key" {
				return ErrLedgerEntryExists
			}
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// ExistsByIdempotencyKey reports whether a ledger entry has already been
// recorded for the given idempotency key.
func (s *LedgerStore) ExistsByIdempotencyKey(ctx context.Context, q storage.Querier, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`

	var exists bool
	if err := q.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ledger entry existence: %w", err)
	}
	return exists, nil
}

// GetByIdempotencyKey retrieves a previously recorded ledger entry.
func (s *LedgerStore) GetByIdempotencyKey(ctx context.Context, q storage.Querier, key string) (*LedgerEntry, error) {
	query := `SELECT id, account_ref, entry_type, amount, currency, transaction_type,
		authorization_id, card_id, idempotency_key, created_at
		FROM ledger_entries WHERE idempotency_key = $1`

	var e LedgerEntry
	var amount decimal.Decimal
	var currency money.Currency
	err := q.QueryRow(ctx, query, key).Scan(
		&e.ID, &e.AccountRef, &e.EntryType, &amount, &currency, &e.TransactionType,
		&e.AuthorizationID, &e.CardID, &e.IdempotencyKey, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ledger entry for key %s: %w", key, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get ledger entry by idempotency key: %w", err)
	}

	m, err := money.New(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("decode ledger entry amount: %w", err)
	}
	e.Amount = m

	return &e, nil
}
