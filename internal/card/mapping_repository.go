package card

import (
	"context"
	"errors"
	"fmt"

	"cardcore/internal/storage"

	"github.com/jackc/pgx/v5"
)

// ErrMappingNotFound is returned when a card has no linked bank account.
var ErrMappingNotFound = errors.New("bank account mapping not found")

// MappingRepository handles database operations for BankAccountMapping.
type MappingRepository struct{}

func NewMappingRepository() *MappingRepository {
	return &MappingRepository{}
}

// Create inserts a new bank account mapping for a card. A card may only
// ever have one active mapping; the unique index on card_id enforces that.
func (r *MappingRepository) Create(ctx context.Context, q storage.Querier, m *BankAccountMapping) error {
	query := `INSERT INTO bank_account_mappings (
		id, card_id, bank_client_ref, bank_account_ref, bank_core_type, created_at, created_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := q.Exec(ctx, query,
		m.ID, m.CardID, m.BankClientRef, m.BankAccountRef, m.BankCoreType, m.CreatedAt, m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create bank account mapping: %w", err)
	}
	return nil
}

// GetByCardID returns the bank account mapping for a card. Returns
// ErrMappingNotFound if the card has no linked account.
func (r *MappingRepository) GetByCardID(ctx context.Context, q storage.Querier, cardID string) (*BankAccountMapping, error) {
	query := `SELECT id, card_id, bank_client_ref, bank_account_ref, bank_core_type, created_at, created_by
		FROM bank_account_mappings WHERE card_id = $1`

	var m BankAccountMapping
	err := q.QueryRow(ctx, query, cardID).Scan(
		&m.ID, &m.CardID, &m.BankClientRef, &m.BankAccountRef, &m.BankCoreType, &m.CreatedAt, &m.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get bank account mapping for card %s: %w", cardID, err)
	}
	return &m, nil
}
