// Package authorization implements the authorization pipeline: validate,
// check the decision cache, resolve the card and its bank mapping, run the
// rules engine, place a hold at the core banking system, and persist the
// decision.
package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/card"
	"cardcore/internal/coreerr"
	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/rules"
	"cardcore/internal/storage"
	"cardcore/pkg/idempotency"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request is the input to Authorize.
type Request struct {
	AuthorizationID string
	CardID          string
	Amount          money.Money
	Merchant        ledger.Merchant
	IdempotencyKey  string
}

// Response reports the authorization decision.
type Response struct {
	AuthorizationID string
	Status          ledger.AuthorizationStatus
	DeclineReason   string
}

// Service orchestrates the authorization pipeline.
type Service struct {
	db          *storage.DB
	cardRepo    *card.Repository
	mappingRepo *card.MappingRepository
	authStore   *ledger.AuthorizationStore
	ledgerStore *ledger.LedgerStore
	engine      *rules.Engine
	adapter     bankcore.BankAccountAdapter
}

// NewService builds an authorization Service.
func NewService(
	db *storage.DB,
	cardRepo *card.Repository,
	mappingRepo *card.MappingRepository,
	authStore *ledger.AuthorizationStore,
	ledgerStore *ledger.LedgerStore,
	engine *rules.Engine,
	adapter bankcore.BankAccountAdapter,
) *Service {
	return &Service{
		db:          db,
		cardRepo:    cardRepo,
		mappingRepo: mappingRepo,
		authStore:   authStore,
		ledgerStore: ledgerStore,
		engine:      engine,
		adapter:     adapter,
	}
}

// Authorize runs the full authorization pipeline for req.
func (s *Service) Authorize(ctx context.Context, req Request) (*Response, error) {
	if err := s.validateIdempotencyKey(req); err != nil {
		return nil, err
	}

	if resp, err := s.lookupCachedDecision(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if resp != nil {
		return resp, nil
	}

	// No per-card lock is held here: the CBS adapter is the source of
	// truth on balance and is assumed thread-safe with its own wire-level
	// idempotency, so concurrent authorizations on the same card race at
	// PlaceHold rather than being serialized locally. The idempotency key
	// above is what makes a *replayed* request safe; distinct concurrent
	// requests are expected to compete for funds at the adapter.
	pool := s.db.Pool()

	c, err := s.resolveCard(ctx, pool, req.CardID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return s.persistDeclined(ctx, req, "", "Card not found")
	}

	if reason := s.validateCardState(c); reason != "" {
		return s.persistDeclined(ctx, req, "", reason)
	}

	mapping, err := s.resolveMapping(ctx, pool, req.CardID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return s.persistDeclined(ctx, req, "", "no bank account linked")
	}

	result, err := s.runRules(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Approved {
		return s.persistDeclined(ctx, req, mapping.BankAccountRef, result.Reason)
	}

	if err := s.adapter.PlaceHold(ctx, mapping.BankAccountRef, req.Amount, req.AuthorizationID); err != nil {
		var insufficient *bankcore.InsufficientFunds
		if errors.As(err, &insufficient) {
			return s.persistDeclined(ctx, req, mapping.BankAccountRef, "Insufficient funds")
		}
		var bankErr *bankcore.BankCoreError
		if errors.As(err, &bankErr) {
			return s.persistDeclined(ctx, req, mapping.BankAccountRef, fmt.Sprintf("Bank declined: %v", bankErr.Cause))
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "place hold failed", err)
	}

	resp, err := s.persistApproved(ctx, req, mapping.BankAccountRef)
	if err != nil {
		if releaseErr := s.adapter.ReleaseHold(ctx, mapping.BankAccountRef, req.Amount, req.AuthorizationID); releaseErr != nil {
			logger.Error("failed to release hold after approved-authorization persistence failure; requires reconciliation",
				zap.String("authorization_id", req.AuthorizationID),
				zap.String("account_ref", mapping.BankAccountRef),
				zap.Error(releaseErr),
			)
		}
		return nil, err
	}

	return resp, nil
}

func (s *Service) validateIdempotencyKey(req Request) error {
	if err := idempotency.Validate(req.IdempotencyKey); err != nil {
		return coreerr.Wrap(coreerr.InvalidArgument, "invalid idempotency key", err)
	}
	return nil
}

// lookupCachedDecision returns the response reconstructed from a prior
// authorization with the same idempotency key, if one exists.
func (s *Service) lookupCachedDecision(ctx context.Context, key string) (*Response, error) {
	existing, err := s.authStore.GetByIdempotencyKey(ctx, s.db.Pool(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrAuthorizationNotFound) {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "decision cache lookup failed", err)
	}
	return &Response{
		AuthorizationID: existing.ID,
		Status:          existing.Status,
		DeclineReason:   existing.DeclineReason,
	}, nil
}

func (s *Service) resolveCard(ctx context.Context, q storage.Querier, cardID string) (*card.Card, error) {
	c, err := s.cardRepo.GetByID(ctx, q, cardID)
	if err != nil {
		if errors.Is(err, card.ErrCardNotFound) {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "card lookup failed", err)
	}
	return c, nil
}

func (s *Service) validateCardState(c *card.Card) string {
	if c.State != card.Active {
		return fmt.Sprintf("Card is %s", c.State)
	}
	if c.IsExpired(time.Now().UTC()) {
		return "Card is expired"
	}
	return ""
}

func (s *Service) resolveMapping(ctx context.Context, q storage.Querier, cardID string) (*card.BankAccountMapping, error) {
	mapping, err := s.mappingRepo.GetByCardID(ctx, q, cardID)
	if err != nil {
		if errors.Is(err, card.ErrMappingNotFound) {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "bank account mapping lookup failed", err)
	}
	return mapping, nil
}

func (s *Service) runRules(ctx context.Context, req Request) (rules.Result, error) {
	result, err := s.engine.Evaluate(ctx, rules.Request{
		CardID:   req.CardID,
		Amount:   req.Amount,
		MCC:      req.Merchant.MCC,
		Merchant: req.Merchant.Name,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		return rules.Result{}, coreerr.Wrap(coreerr.BankCore, "rules evaluation failed", err)
	}
	return result, nil
}

// persistDeclined records a DECLINED authorization and returns its response.
// A race against another writer using the same idempotency key is resolved
// by re-fetching and returning the decision that actually won.
func (s *Service) persistDeclined(ctx context.Context, req Request, accountRef, reason string) (*Response, error) {
	now := time.Now().UTC()
	a := &ledger.Authorization{
		ID:             req.AuthorizationID,
		CardID:         req.CardID,
		AccountRef:     accountRef,
		Amount:         req.Amount,
		Status:         ledger.Declined,
		Merchant:       req.Merchant,
		DeclineReason:  reason,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithTx(ctx, func(ctx context.Context, q storage.Querier) error {
		return s.authStore.Create(ctx, q, a)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrIdempotencyKeyExists) {
			return s.lookupCachedDecision(ctx, req.IdempotencyKey)
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "failed to persist declined authorization", err)
	}

	return &Response{AuthorizationID: a.ID, Status: a.Status, DeclineReason: a.DeclineReason}, nil
}

// persistApproved records an APPROVED authorization and its AUTH_HOLD ledger
// entry inside one transaction.
func (s *Service) persistApproved(ctx context.Context, req Request, accountRef string) (*Response, error) {
	now := time.Now().UTC()
	a := &ledger.Authorization{
		ID:             req.AuthorizationID,
		CardID:         req.CardID,
		AccountRef:     accountRef,
		Amount:         req.Amount,
		Status:         ledger.Approved,
		Merchant:       req.Merchant,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if err := s.authStore.Create(ctx, q, a); err != nil {
			return err
		}
		entry := &ledger.LedgerEntry{
			ID:              uuid.New().String(),
			AccountRef:      accountRef,
			EntryType:       ledger.Debit,
			Amount:          req.Amount,
			TransactionType: ledger.AuthHold,
			AuthorizationID: &a.ID,
			CardID:          &a.CardID,
			IdempotencyKey:  req.IdempotencyKey,
			CreatedAt:       now,
		}
		return s.ledgerStore.Append(ctx, q, entry)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrIdempotencyKeyExists) || errors.Is(err, ledger.ErrLedgerEntryExists) {
			resp, lookupErr := s.lookupCachedDecision(ctx, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return resp, nil
		}
		return nil, coreerr.Wrap(coreerr.BankCore, "failed to persist approved authorization", err)
	}

	return &Response{AuthorizationID: a.ID, Status: a.Status}, nil
}
