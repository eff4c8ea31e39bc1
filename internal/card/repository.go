package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrCardNotFound is returned when a card is not found in the database.
	ErrCardNotFound = errors.New("card not found")
)

// Repository handles all database operations for cards.
type Repository struct{}

// NewRepository creates a new card repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a new card.
func (r *Repository) Create(ctx context.Context, q storage.Querier, c *Card) error {
	query := `INSERT INTO cards (
		id, cardholder_name, last4, expires_at, state, owner_id, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := q.Exec(ctx, query,
		c.ID, c.CardholderName, c.Last4, c.ExpiresAt, c.State, c.OwnerID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// GetByID retrieves a card by its UUID. Returns ErrCardNotFound if the ID
// does not exist.
func (r *Repository) GetByID(ctx context.Context, q storage.Querier, id string) (*Card, error) {
	query := `SELECT id, cardholder_name, last4, expires_at, state, owner_id, created_at, updated_at
		FROM cards WHERE id = $1`

	var c Card
	err := q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CardholderName, &c.Last4, &c.ExpiresAt, &c.State, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card with id %s: %w", id, err)
	}
	return &c, nil
}

// GetByIDForUpdate is like GetByID but takes a row lock, used by callers
// that will immediately update the card's state in the same transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, q storage.Querier, id string) (*Card, error) {
	query := `SELECT id, cardholder_name, last4, expires_at, state, owner_id, created_at, updated_at
		FROM cards WHERE id = $1 FOR UPDATE`

	var c Card
	err := q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CardholderName, &c.Last4, &c.ExpiresAt, &c.State, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card with id %s: %w", id, err)
	}
	return &c, nil
}

// UpdateState updates a card's lifecycle state. Returns ErrCardNotFound if
// the card ID does not exist.
func (r *Repository) UpdateState(ctx context.Context, q storage.Querier, id string, state State, updatedAt time.Time) error {
	query := `UPDATE cards SET state = $2, updated_at = $3 WHERE id = $1`

	commandTag, err := q.Exec(ctx, query, id, state, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update card with id %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// pgUniqueViolation reports whether err is a pgconn.PgError for the given
// constraint name.
func pgUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}
