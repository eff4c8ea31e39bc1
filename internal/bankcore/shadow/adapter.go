package shadow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/money"
	"cardcore/pkg/logger"

	"go.uber.org/zap"
)

// Config configures the shadow-journal adapter.
type Config struct {
	HoldsGLAccount string
}

// Adapter implements bankcore.BankAccountAdapter by emulating a hold
// primitive on top of a core banking system that only understands
// immediate double-entry journal postings: placing a hold debits the
// customer's account and credits a dedicated holds GL account, and
// releasing or committing the hold reverses or finalizes that posting.
type Adapter struct {
	cfg    Config
	poster LedgerPoster
	holds  HoldRepository
}

// NewAdapter builds a shadow-journal adapter.
func NewAdapter(cfg Config, poster LedgerPoster, holds HoldRepository) *Adapter {
	return &Adapter{cfg: cfg, poster: poster, holds: holds}
}

func (a *Adapter) GetAdapterName() string {
	return "shadow-journal"
}

func (a *Adapter) IsHealthy(ctx context.Context) bool {
	_, err := a.poster.GetBalance(ctx, a.cfg.HoldsGLAccount)
	return err == nil
}

func (a *Adapter) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	bal, err := a.poster.GetBalance(ctx, accountRef)
	if err != nil {
		return money.Money{}, &bankcore.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: err}
	}
	return bal, nil
}

// PlaceHold is idempotent on referenceID: if a hold already exists for it,
// the call returns nil without touching the core banking system again.
func (a *Adapter) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	existing, err := a.holds.GetByAuthorizationID(ctx, referenceID)
	if err == nil {
		_ = existing
		return nil
	}
	if !errors.Is(err, ErrHoldNotFound) {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}

	available, err := a.GetAvailableBalance(ctx, accountRef)
	if err != nil {
		return err
	}
	exceeds, err := amount.GreaterThan(available)
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}
	if exceeds {
		return &bankcore.InsufficientFunds{AccountRef: accountRef, Required: amount, Available: available}
	}

	journalID, err := a.poster.PostJournal(ctx, accountRef, a.cfg.HoldsGLAccount, amount, referenceID)
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}

	now := time.Now().UTC()
	hold := &Hold{
		AuthorizationID: referenceID,
		AccountRef:      accountRef,
		JournalEntryID:  journalID,
		Amount:          amount,
		Status:          HoldActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.holds.Create(ctx, hold); err != nil {
		logger.Error("shadow adapter: failed to persist hold after journal posted",
			zap.String("reference_id", referenceID), zap.Error(err))
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "placeHold", Cause: err}
	}
	return nil
}

// CommitDebit is idempotent on referenceID: calling it again after a
// successful commit is a no-op.
func (a *Adapter) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	hold, err := a.holds.GetByAuthorizationID(ctx, referenceID)
	if errors.Is(err, ErrHoldNotFound) {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: fmt.Errorf("no hold found for reference %s", referenceID)}
	}
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	if hold.Status == HoldCommitted {
		return nil
	}
	if hold.Status == HoldReleased {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: errors.New("hold already released")}
	}

	exceeds, err := amount.GreaterThan(hold.Amount)
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	if exceeds {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: errors.New("commit amount exceeds held amount")}
	}

	if _, err := a.poster.PostJournal(ctx, a.cfg.HoldsGLAccount, accountRef, hold.Amount, referenceID+":unwind-hold"); err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	if err := a.poster.PostWithdrawal(ctx, accountRef, amount, referenceID); err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	if err := a.holds.UpdateStatus(ctx, referenceID, HoldCommitted); err != nil {
		logger.Error("shadow adapter: failed to mark hold committed after debit posted",
			zap.String("reference_id", referenceID), zap.Error(err))
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	return nil
}

// ReleaseHold is idempotent: releasing a hold that is already released, or
// that never existed, is a no-op rather than an error, since the
// authorization pipeline calls it as a compensating action after failures
// whose root cause may already have removed the hold.
func (a *Adapter) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	hold, err := a.holds.GetByAuthorizationID(ctx, referenceID)
	if errors.Is(err, ErrHoldNotFound) {
		return nil
	}
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	if hold.Status != HoldActive {
		return nil
	}

	if _, err := a.poster.PostJournal(ctx, a.cfg.HoldsGLAccount, accountRef, hold.Amount, referenceID+":release"); err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	if err := a.holds.UpdateStatus(ctx, referenceID, HoldReleased); err != nil {
		logger.Error("shadow adapter: failed to mark hold released after journal posted",
			zap.String("reference_id", referenceID), zap.Error(err))
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	return nil
}

var _ bankcore.BankAccountAdapter = (*Adapter)(nil)
