package ledger

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

var (
	// ErrAuthorizationNotFound is returned when no authorization matches
	// the requested ID or idempotency key.
	ErrAuthorizationNotFound = errors.New("authorization not found")
	// ErrIdempotencyKeyExists is returned by Create when another
	// authorization already used this idempotency key. Racing callers
	// should re-fetch via GetByIdempotencyKey and return that decision.
	ErrIdempotencyKeyExists = errors.New("authorization idempotency key already used")
)

// AuthorizationStore persists Authorization records.
type AuthorizationStore struct{}

func NewAuthorizationStore() *AuthorizationStore {
	return &AuthorizationStore{}
}

// Create inserts a new authorization record, approved or declined.
func (s *AuthorizationStore) Create(ctx context.Context, q storage.Querier, a *Authorization) error {
	var clearedAmount *decimal.Decimal
	var clearedCurrency *money.Currency
	if a.ClearedAmount != nil {
		amt := a.ClearedAmount.Amount()
		cur := a.ClearedAmount.Currency()
		clearedAmount = &amt
		clearedCurrency = &cur
	}

	query := `INSERT INTO authorizations (
		id, card_id, account_ref, amount, currency, cleared_amount, cleared_currency,
		status, merchant_name, merchant_mcc, merchant_city, merchant_country,
		decline_reason, idempotency_key, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := q.Exec(ctx, query,
		a.ID, a.CardID, a.AccountRef, a.Amount.Amount(), a.Amount.Currency(),
		clearedAmount, clearedCurrency,
		a.Status, a.Merchant.Name, a.Merchant.MCC, a.Merchant.City, a.Merchant.Country,
		a.DeclineReason, a.IdempotencyKey, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "authorizations_idempotency_key_key" {
				return ErrIdempotencyKeyExists
			}
		}
		return fmt.Errorf("failed to create authorization: %w", err)
	}
	return nil
}

const authorizationColumns = `id, card_id, account_ref, amount, currency, cleared_amount, cleared_currency,
	status, merchant_name, merchant_mcc, merchant_city, merchant_country,
	decline_reason, idempotency_key, created_at, updated_at`

func scanAuthorization(row pgx.Row) (*Authorization, error) {
	var a Authorization
	var amount decimal.Decimal
	var currency money.Currency
	var clearedAmount *decimal.Decimal
	var clearedCurrency *money.Currency

	err := row.Scan(
		&a.ID, &a.CardID, &a.AccountRef, &amount, &currency, &clearedAmount, &clearedCurrency,
		&a.Status, &a.Merchant.Name, &a.Merchant.MCC, &a.Merchant.City, &a.Merchant.Country,
		&a.DeclineReason, &a.IdempotencyKey, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m, err := money.New(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("decode authorization amount: %w", err)
	}
	a.Amount = m

	if clearedAmount != nil && clearedCurrency != nil {
		cm, err := money.New(*clearedAmount, *clearedCurrency)
		if err != nil {
			return nil, fmt.Errorf("decode authorization cleared amount: %w", err)
		}
		a.ClearedAmount = &cm
	}

	return &a, nil
}

// GetByID retrieves an authorization by its ID.
func (s *AuthorizationStore) GetByID(ctx context.Context, q storage.Querier, id string) (*Authorization, error) {
	query := fmt.Sprintf(`SELECT %s FROM authorizations WHERE id = $1`, authorizationColumns)
	a, err := scanAuthorization(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("failed to get authorization %s: %w", id, err)
	}
	return a, nil
}

// GetByIDForUpdate is like GetByID but takes a row lock for callers that
// will transition the authorization's status in the same transaction.
func (s *AuthorizationStore) GetByIDForUpdate(ctx context.Context, q storage.Querier, id string) (*Authorization, error) {
	query := fmt.Sprintf(`SELECT %s FROM authorizations WHERE id = $1 FOR UPDATE`, authorizationColumns)
	a, err := scanAuthorization(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("failed to get authorization %s: %w", id, err)
	}
	return a, nil
}

// GetByIdempotencyKey retrieves the authorization previously created for a
// given idempotency key, if any.
func (s *AuthorizationStore) GetByIdempotencyKey(ctx context.Context, q storage.Querier, key string) (*Authorization, error) {
	query := fmt.Sprintf(`SELECT %s FROM authorizations WHERE idempotency_key = $1`, authorizationColumns)
	a, err := scanAuthorization(q.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuthorizationNotFound
		}
		return nil, fmt.Errorf("failed to get authorization by idempotency key: %w", err)
	}
	return a, nil
}

// UpdateStatus transitions an authorization's status, optionally recording
// the amount actually cleared.
func (s *AuthorizationStore) UpdateStatus(ctx context.Context, q storage.Querier, id string, status AuthorizationStatus, clearedAmount *money.Money) error {
	var amt *decimal.Decimal
	var cur *money.Currency
	if clearedAmount != nil {
		a := clearedAmount.Amount()
		c := clearedAmount.Currency()
		amt = &a
		cur = &c
	}

	query := `UPDATE authorizations SET status = $2, cleared_amount = COALESCE($3, cleared_amount),
		cleared_currency = COALESCE($4, cleared_currency), updated_at = $5 WHERE id = $1`

	commandTag, err := q.Exec(ctx, query, id, status, amt, cur, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update authorization %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrAuthorizationNotFound
	}
	return nil
}

// SumApprovedSince sums the amount of APPROVED authorizations for a card
// in the given currency since the given time, used by the daily spend
// limit rule.
func (s *AuthorizationStore) SumApprovedSince(ctx context.Context, q storage.Querier, cardID string, since time.Time, currency money.Currency) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM authorizations
		WHERE card_id = $1 AND status = $2 AND currency = $3 AND created_at >= $4`

	var total decimal.Decimal
	if err := q.QueryRow(ctx, query, cardID, Approved, currency, since).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum approved authorizations for card %s: %w", cardID, err)
	}
	return total, nil
}

// CountSince counts all authorization decisions for a card since the given
// time, used by the velocity rule.
func (s *AuthorizationStore) CountSince(ctx context.Context, q storage.Querier, cardID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM authorizations WHERE card_id = $1 AND created_at >= $2`

	var count int
	if err := q.QueryRow(ctx, query, cardID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count authorizations for card %s: %w", cardID, err)
	}
	return count, nil
}
