// Package generic implements a single reference processor.Adapter,
// selected via the processor.active config option, demonstrating the
// translation contract between a processor's webhook shape and the
// internal authorization/settlement pipelines.
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/authorization"
	"cardcore/internal/ledger"
	"cardcore/internal/processor"
	"cardcore/internal/settlement"
	"cardcore/internal/storage"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// identityResolver treats the processor's card token as the internal card
// id directly.
type identityResolver struct{}

func (identityResolver) ResolveCardID(ctx context.Context, cardToken string) (string, error) {
	return cardToken, nil
}

// Adapter is the generic processor.Adapter implementation.
type Adapter struct {
	name       string
	db         *storage.DB
	authSvc    *authorization.Service
	settleSvc  *settlement.Service
	mappings   *processor.MappingStore
	tokens     processor.CardTokenResolver
}

// NewAdapter builds a generic processor adapter identified by name.
func NewAdapter(name string, db *storage.DB, authSvc *authorization.Service, settleSvc *settlement.Service, mappings *processor.MappingStore, tokens processor.CardTokenResolver) *Adapter {
	if tokens == nil {
		tokens = identityResolver{}
	}
	return &Adapter{name: name, db: db, authSvc: authSvc, settleSvc: settleSvc, mappings: mappings, tokens: tokens}
}

// HandleAuthorize translates a processor authorization event into an
// authorization.Request, runs the pipeline, and persists the processor
// transaction mapping only when the pipeline approves.
func (a *Adapter) HandleAuthorize(ctx context.Context, event processor.AuthorizeEvent) (*processor.AuthorizeResult, error) {
	cardID, err := a.tokens.ResolveCardID(ctx, event.CardToken)
	if err != nil {
		logger.Warn("generic processor: failed to resolve card token; declining",
			zap.String("processor", a.name), zap.Error(err))
		return &processor.AuthorizeResult{Approved: false, DeclineReason: "Card not found"}, nil
	}

	req := authorization.Request{
		AuthorizationID: uuid.New().String(),
		CardID:          cardID,
		Amount:          event.Amount,
		Merchant: ledger.Merchant{
			Name:    event.MerchantName,
			MCC:     event.MerchantMCC,
			City:    event.MerchantCity,
			Country: event.MerchantCountry,
		},
		IdempotencyKey: event.IdempotencyKey,
	}

	resp, err := a.authSvc.Authorize(ctx, req)
	if err != nil {
		logger.Error("generic processor: authorization pipeline error; declining to avoid leaving processor hanging",
			zap.String("processor", a.name), zap.Error(err))
		return &processor.AuthorizeResult{Approved: false, DeclineReason: "Internal error"}, nil
	}

	result := &processor.AuthorizeResult{AuthorizationID: resp.AuthorizationID}
	if resp.Status != ledger.Approved {
		result.DeclineReason = resp.DeclineReason
		return result, nil
	}
	result.Approved = true

	mapping := &processor.ProcessorTransactionMapping{
		ID:                     uuid.New().String(),
		ProcessorName:          a.name,
		ProcessorTransactionID: event.ProcessorTransactionID,
		AuthorizationID:        resp.AuthorizationID,
		CardToken:              event.CardToken,
		CreatedAt:              time.Now().UTC(),
	}
	if err := a.mappings.Create(ctx, a.db.Pool(), mapping); err != nil {
		logger.Error("generic processor: failed to persist transaction mapping after approval",
			zap.String("processor", a.name), zap.String("authorization_id", resp.AuthorizationID), zap.Error(err))
		return nil, fmt.Errorf("failed to persist processor transaction mapping: %w", err)
	}

	return result, nil
}

// HandleClear looks up the mapping for the processor transaction and
// delegates to the settlement pipeline's Clear.
func (a *Adapter) HandleClear(ctx context.Context, event processor.ClearEvent) error {
	mapping, err := a.mappings.GetByProcessorTransactionID(ctx, a.db.Pool(), a.name, event.ProcessorTransactionID)
	if err != nil {
		if errors.Is(err, processor.ErrMappingNotFound) {
			return processor.ErrUnknownTransaction
		}
		return fmt.Errorf("failed to look up processor transaction mapping: %w", err)
	}
	return a.settleSvc.Clear(ctx, mapping.AuthorizationID, event.Amount, event.IdempotencyKey)
}

// HandleReverse looks up the mapping for the processor transaction and
// delegates to the settlement pipeline's Reverse.
func (a *Adapter) HandleReverse(ctx context.Context, event processor.ReverseEvent) error {
	mapping, err := a.mappings.GetByProcessorTransactionID(ctx, a.db.Pool(), a.name, event.ProcessorTransactionID)
	if err != nil {
		if errors.Is(err, processor.ErrMappingNotFound) {
			return processor.ErrUnknownTransaction
		}
		return fmt.Errorf("failed to look up processor transaction mapping: %w", err)
	}
	return a.settleSvc.Reverse(ctx, mapping.AuthorizationID, event.Amount, event.IdempotencyKey)
}

var _ processor.Adapter = (*Adapter)(nil)
