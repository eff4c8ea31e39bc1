// Package processor defines the inbound processor adapter contract: the
// boundary between processor-native webhook events and the internal
// authorization/settlement pipelines. Adapters here never contain policy or
// balance logic -- that lives entirely in internal/rules and
// internal/bankcore.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/money"
	"cardcore/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuthorizeEvent is a processor-native authorization request.
type AuthorizeEvent struct {
	ProcessorTransactionID string
	CardToken              string
	Amount                 money.Money
	MerchantName           string
	MerchantMCC            string
	MerchantCity           string
	MerchantCountry        string
	IdempotencyKey         string
}

// ClearEvent is a processor-native clearing request.
type ClearEvent struct {
	ProcessorTransactionID string
	Amount                 money.Money
	IdempotencyKey         string
}

// ReverseEvent is a processor-native reversal request.
type ReverseEvent struct {
	ProcessorTransactionID string
	Amount                 money.Money
	IdempotencyKey         string
}

// AuthorizeResult is returned to the processor after translating and
// running an AuthorizeEvent.
type AuthorizeResult struct {
	AuthorizationID string
	Approved        bool
	DeclineReason   string
}

// ErrUnknownTransaction is returned by HandleClear/HandleReverse when no
// mapping exists for the processor transaction id; the caller should
// surface a 5xx so the processor retries.
var ErrUnknownTransaction = errors.New("processor: unknown transaction")

// Adapter translates processor-native events into internal pipeline calls.
type Adapter interface {
	HandleAuthorize(ctx context.Context, event AuthorizeEvent) (*AuthorizeResult, error)
	HandleClear(ctx context.Context, event ClearEvent) error
	HandleReverse(ctx context.Context, event ReverseEvent) error
}

// CardTokenResolver maps a processor-supplied card token to an internal
// card id. The generic adapter's default resolver treats the token as the
// internal card id directly; processors that mint their own opaque tokens
// need a resolver backed by a lookup table.
type CardTokenResolver interface {
	ResolveCardID(ctx context.Context, cardToken string) (string, error)
}

// ProcessorTransactionMapping correlates a processor's transaction id with
// the internal authorization it produced.
type ProcessorTransactionMapping struct {
	ID                     string
	ProcessorName          string
	ProcessorTransactionID string
	AuthorizationID        string
	CardToken              string
	CreatedAt              time.Time
}

// ErrMappingNotFound is returned when no mapping exists for a processor
// transaction id.
var ErrMappingNotFound = errors.New("processor transaction mapping not found")

// MappingStore persists ProcessorTransactionMapping records.
type MappingStore struct{}

func NewMappingStore() *MappingStore {
	return &MappingStore{}
}

// Create inserts a mapping. Only called after an APPROVED authorization;
// DECLINED authorizations never create a mapping.
func (s *MappingStore) Create(ctx context.Context, q storage.Querier, m *ProcessorTransactionMapping) error {
	query := `INSERT INTO processor_transaction_mappings (
		id, processor_name, processor_transaction_id, authorization_id, card_token, created_at
	) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := q.Exec(ctx, query, m.ID, m.ProcessorName, m.ProcessorTransactionID, m.AuthorizationID, m.CardToken, m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("mapping for processor transaction %s already exists: %w", m.ProcessorTransactionID, err)
		}
		return fmt.Errorf("failed to create processor transaction mapping: %w", err)
	}
	return nil
}

// GetByProcessorTransactionID looks up the mapping for a processor
// transaction id. Returns ErrMappingNotFound if none exists.
func (s *MappingStore) GetByProcessorTransactionID(ctx context.Context, q storage.Querier, processorName, processorTransactionID string) (*ProcessorTransactionMapping, error) {
	query := `SELECT id, processor_name, processor_transaction_id, authorization_id, card_token, created_at
		FROM processor_transaction_mappings WHERE processor_name = $1 AND processor_transaction_id = $2`

	var m ProcessorTransactionMapping
	err := q.QueryRow(ctx, query, processorName, processorTransactionID).Scan(
		&m.ID, &m.ProcessorName, &m.ProcessorTransactionID, &m.AuthorizationID, &m.CardToken, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get processor transaction mapping: %w", err)
	}
	return &m, nil
}
