// Package settlement implements the Clear, Release, and Reverse operations
// against a previously approved authorization.
package settlement

import (
	"context"
	"errors"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/coreerr"
	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/storage"
	"cardcore/pkg/idempotency"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileNotifier lets the reconciliation worker pick up a failed
// release promptly instead of waiting for its poll loop. Optional: a
// Service with no notifier set relies entirely on the poll loop.
type ReconcileNotifier interface {
	Publish(ctx context.Context, stream string, data []byte) (string, error)
}

const reconcileNowStream = "reconcile-now"

// Service orchestrates the settlement pipeline.
type Service struct {
	db          *storage.DB
	authStore   *ledger.AuthorizationStore
	ledgerStore *ledger.LedgerStore
	adapter     bankcore.BankAccountAdapter
	notifier    ReconcileNotifier
}

// NewService builds a settlement Service.
func NewService(db *storage.DB, authStore *ledger.AuthorizationStore, ledgerStore *ledger.LedgerStore, adapter bankcore.BankAccountAdapter) *Service {
	return &Service{db: db, authStore: authStore, ledgerStore: ledgerStore, adapter: adapter}
}

// SetReconcileNotifier wires a ReconcileNotifier the Service publishes to
// after a Release whose CBS call failed.
func (s *Service) SetReconcileNotifier(n ReconcileNotifier) {
	s.notifier = n
}

func (s *Service) alreadyApplied(ctx context.Context, idempotencyKey string) (bool, error) {
	exists, err := s.ledgerStore.ExistsByIdempotencyKey(ctx, s.db.Pool(), idempotencyKey)
	if err != nil {
		return false, coreerr.Wrap(coreerr.BankCore, "decision cache lookup failed", err)
	}
	return exists, nil
}

// Clear converts all or part of a previously placed hold into an actual
// debit.
func (s *Service) Clear(ctx context.Context, authorizationID string, clearingAmount money.Money, idempotencyKey string) error {
	if err := idempotency.Validate(idempotencyKey); err != nil {
		return coreerr.Wrap(coreerr.InvalidArgument, "invalid idempotency key", err)
	}
	if applied, err := s.alreadyApplied(ctx, idempotencyKey); err != nil {
		return err
	} else if applied {
		return nil
	}

	return s.db.WithTx(ctx, func(ctx context.Context, q storage.Querier) error {
		a, err := s.authStore.GetByIDForUpdate(ctx, q, authorizationID)
		if err != nil {
			if errors.Is(err, ledger.ErrAuthorizationNotFound) {
				return coreerr.New(coreerr.NotFound, "authorization not found")
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to load authorization", err)
		}
		if a.Status != ledger.Approved {
			return coreerr.New(coreerr.InvalidState, "authorization is not APPROVED")
		}

		exceeds, err := clearingAmount.GreaterThan(a.Amount)
		if err != nil {
			return coreerr.Wrap(coreerr.InvalidArgument, "clearing amount currency mismatch", err)
		}
		if exceeds {
			return coreerr.New(coreerr.InvalidArgument, "clearing amount exceeds authorization amount")
		}

		if err := s.adapter.CommitDebit(ctx, a.AccountRef, clearingAmount, authorizationID); err != nil {
			return coreerr.Wrap(coreerr.BankCore, "settlement failed", err)
		}

		now := time.Now().UTC()
		entry := &ledger.LedgerEntry{
			ID:              uuid.New().String(),
			AccountRef:      a.AccountRef,
			EntryType:       ledger.Debit,
			Amount:          clearingAmount,
			TransactionType: ledger.ClearingCommit,
			AuthorizationID: &a.ID,
			CardID:          &a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		if err := s.ledgerStore.Append(ctx, q, entry); err != nil {
			if errors.Is(err, ledger.ErrLedgerEntryExists) {
				return nil
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to append clearing ledger entry", err)
		}

		clearedAmount := clearingAmount
		if err := s.authStore.UpdateStatus(ctx, q, a.ID, ledger.Cleared, &clearedAmount); err != nil {
			return coreerr.Wrap(coreerr.BankCore, "failed to update authorization status", err)
		}
		return nil
	})
}

// Release releases a previously placed hold without debiting the account.
// Adapter failures are logged but do not block local state advancement:
// the authorization is marked RELEASED regardless, and reconciliation picks
// up any hold the adapter failed to release.
func (s *Service) Release(ctx context.Context, authorizationID string, idempotencyKey string) error {
	if err := idempotency.Validate(idempotencyKey); err != nil {
		return coreerr.Wrap(coreerr.InvalidArgument, "invalid idempotency key", err)
	}
	if applied, err := s.alreadyApplied(ctx, idempotencyKey); err != nil {
		return err
	} else if applied {
		return nil
	}

	return s.db.WithTx(ctx, func(ctx context.Context, q storage.Querier) error {
		a, err := s.authStore.GetByIDForUpdate(ctx, q, authorizationID)
		if err != nil {
			if errors.Is(err, ledger.ErrAuthorizationNotFound) {
				return coreerr.New(coreerr.NotFound, "authorization not found")
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to load authorization", err)
		}
		if a.Status != ledger.Approved {
			return nil
		}

		if err := s.adapter.ReleaseHold(ctx, a.AccountRef, a.Amount, authorizationID); err != nil {
			logger.Error("release hold failed at bank core; local state advances, awaiting reconciliation",
				zap.String("authorization_id", authorizationID), zap.Error(err))
			if s.notifier != nil {
				if _, pubErr := s.notifier.Publish(ctx, reconcileNowStream, []byte(authorizationID)); pubErr != nil {
					logger.Error("failed to publish reconcile-now trigger",
						zap.String("authorization_id", authorizationID), zap.Error(pubErr))
				}
			}
		}

		now := time.Now().UTC()
		entry := &ledger.LedgerEntry{
			ID:              uuid.New().String(),
			AccountRef:      a.AccountRef,
			EntryType:       ledger.Credit,
			Amount:          a.Amount,
			TransactionType: ledger.AuthRelease,
			AuthorizationID: &a.ID,
			CardID:          &a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		if err := s.ledgerStore.Append(ctx, q, entry); err != nil {
			if errors.Is(err, ledger.ErrLedgerEntryExists) {
				return nil
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to append release ledger entry", err)
		}

		if err := s.authStore.UpdateStatus(ctx, q, a.ID, ledger.Released, nil); err != nil {
			return coreerr.Wrap(coreerr.BankCore, "failed to update authorization status", err)
		}
		return nil
	})
}

// Reverse records a reversal against a previously cleared authorization.
// Actual refund mechanics are delegated to the CBS out of band; this
// records the local ledger trail and transitions the authorization to its
// terminal REVERSED state regardless of whether the reversal was partial.
func (s *Service) Reverse(ctx context.Context, authorizationID string, reversalAmount money.Money, idempotencyKey string) error {
	if err := idempotency.Validate(idempotencyKey); err != nil {
		return coreerr.Wrap(coreerr.InvalidArgument, "invalid idempotency key", err)
	}
	if applied, err := s.alreadyApplied(ctx, idempotencyKey); err != nil {
		return err
	} else if applied {
		return nil
	}

	return s.db.WithTx(ctx, func(ctx context.Context, q storage.Querier) error {
		a, err := s.authStore.GetByIDForUpdate(ctx, q, authorizationID)
		if err != nil {
			if errors.Is(err, ledger.ErrAuthorizationNotFound) {
				return coreerr.New(coreerr.NotFound, "authorization not found")
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to load authorization", err)
		}
		if a.Status != ledger.Cleared {
			return coreerr.New(coreerr.InvalidState, "authorization is not CLEARED")
		}
		if a.ClearedAmount == nil {
			return coreerr.New(coreerr.InvalidState, "cleared authorization has no cleared amount recorded")
		}

		exceeds, err := reversalAmount.GreaterThan(*a.ClearedAmount)
		if err != nil {
			return coreerr.Wrap(coreerr.InvalidArgument, "reversal amount currency mismatch", err)
		}
		if exceeds {
			return coreerr.New(coreerr.InvalidArgument, "reversal amount exceeds cleared amount")
		}

		now := time.Now().UTC()
		entry := &ledger.LedgerEntry{
			ID:              uuid.New().String(),
			AccountRef:      a.AccountRef,
			EntryType:       ledger.Credit,
			Amount:          reversalAmount,
			TransactionType: ledger.Reversal,
			AuthorizationID: &a.ID,
			CardID:          &a.CardID,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now,
		}
		if err := s.ledgerStore.Append(ctx, q, entry); err != nil {
			if errors.Is(err, ledger.ErrLedgerEntryExists) {
				return nil
			}
			return coreerr.Wrap(coreerr.BankCore, "failed to append reversal ledger entry", err)
		}

		if err := s.authStore.UpdateStatus(ctx, q, a.ID, ledger.Reversed, nil); err != nil {
			return coreerr.Wrap(coreerr.BankCore, "failed to update authorization status", err)
		}
		return nil
	})
}
