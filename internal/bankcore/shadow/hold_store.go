package shadow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/money"
	"cardcore/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// HoldStatus is the lifecycle state of a locally tracked shadow hold.
type HoldStatus string

const (
	HoldActive    HoldStatus = "ACTIVE"
	HoldCommitted HoldStatus = "COMMITTED"
	HoldReleased  HoldStatus = "RELEASED"
)

// Hold is the local record of a shadow-journal hold, keyed by the
// authorization ID that requested it.
type Hold struct {
	AuthorizationID string
	AccountRef      string
	JournalEntryID  string
	Amount          money.Money
	Status          HoldStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrHoldNotFound is returned when no hold exists for a given
// authorization ID.
var ErrHoldNotFound = errors.New("shadow: hold not found")

// HoldStore persists Hold records.
type HoldStore struct{}

func NewHoldStore() *HoldStore {
	return &HoldStore{}
}

// Create inserts a new hold record. A hold already exists for an
// authorization ID once PlaceHold has succeeded once for it.
func (s *HoldStore) Create(ctx context.Context, q storage.Querier, h *Hold) error {
	query := `INSERT INTO holds (
		authorization_id, account_ref, journal_entry_id, amount, currency, status, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := q.Exec(ctx, query,
		h.AuthorizationID, h.AccountRef, h.JournalEntryID, h.Amount.Amount(), h.Amount.Currency(),
		h.Status, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create hold for authorization %s: %w", h.AuthorizationID, err)
	}
	return nil
}

// GetByAuthorizationID retrieves the hold for an authorization. Returns
// ErrHoldNotFound if no hold has been placed.
func (s *HoldStore) GetByAuthorizationID(ctx context.Context, q storage.Querier, authorizationID string) (*Hold, error) {
	query := `SELECT authorization_id, account_ref, journal_entry_id, amount, currency, status, created_at, updated_at
		FROM holds WHERE authorization_id = $1`

	var h Hold
	var amount decimal.Decimal
	var currency money.Currency
	err := q.QueryRow(ctx, query, authorizationID).Scan(
		&h.AuthorizationID, &h.AccountRef, &h.JournalEntryID, &amount, &currency, &h.Status, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get hold for authorization %s: %w", authorizationID, err)
	}

	m, err := money.New(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("decode hold amount: %w", err)
	}
	h.Amount = m

	return &h, nil
}

// UpdateStatus transitions a hold to a new status.
func (s *HoldStore) UpdateStatus(ctx context.Context, q storage.Querier, authorizationID string, status HoldStatus) error {
	query := `UPDATE holds SET status = $2, updated_at = $3 WHERE authorization_id = $1`

	commandTag, err := q.Exec(ctx, query, authorizationID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update hold for authorization %s: %w", authorizationID, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrHoldNotFound
	}
	return nil
}

// ListActiveOlderThan returns every still-ACTIVE hold created before the
// given time, used by the reconciliation worker to retry releases that
// were lost after a process crash.
func (s *HoldStore) ListActiveOlderThan(ctx context.Context, q storage.Querier, before time.Time) ([]*Hold, error) {
	query := `SELECT authorization_id, account_ref, journal_entry_id, amount, currency, status, created_at, updated_at
		FROM holds WHERE status = $1 AND created_at < $2`

	rows, err := q.Query(ctx, query, HoldActive, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list active holds: %w", err)
	}
	defer rows.Close()

	var holds []*Hold
	for rows.Next() {
		var h Hold
		var amount decimal.Decimal
		var currency money.Currency
		if err := rows.Scan(&h.AuthorizationID, &h.AccountRef, &h.JournalEntryID, &amount, &currency, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hold row: %w", err)
		}
		m, err := money.New(amount, currency)
		if err != nil {
			return nil, fmt.Errorf("decode hold amount: %w", err)
		}
		h.Amount = m
		holds = append(holds, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during hold row iteration: %w", err)
	}
	return holds, nil
}
