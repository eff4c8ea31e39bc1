// Package bankcore defines the contract the authorization and settlement
// pipelines use to talk to whatever external core banking system actually
// holds customer funds. Concrete adapters live in subpackages: shadow
// implements the reference shadow-journal adapter, grpccore implements a
// native-hold adapter against a gRPC-speaking core.
package bankcore

import (
	"context"
	"fmt"

	"cardcore/internal/money"
)

// InsufficientFunds is returned by PlaceHold when the account does not
// have enough available balance to cover the requested amount.
type InsufficientFunds struct {
	AccountRef string
	Required   money.Money
	Available  money.Money
}

func (e *InsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: required %s, available %s", e.AccountRef, e.Required, e.Available)
}

// BankCoreError wraps any failure returned by the adapter's transport to
// the external system -- a timeout, a 5xx, a connection refusal.
type BankCoreError struct {
	AccountRef string
	Op         string
	Cause      error
}

func (e *BankCoreError) Error() string {
	return fmt.Sprintf("bank core error during %s on account %s: %v", e.Op, e.AccountRef, e.Cause)
}

func (e *BankCoreError) Unwrap() error {
	return e.Cause
}

// BankAccountAdapter is the single interface the authorization and
// settlement pipelines use to move money. Every method must be safe to
// retry with the same referenceID: a caller that times out waiting for a
// response and retries must not cause it to be applied twice.
type BankAccountAdapter interface {
	// GetAvailableBalance returns the funds currently available to spend
	// on the account, net of any other holds the core already knows about.
	GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error)

	// PlaceHold reserves amount against the account under referenceID.
	// Calling PlaceHold again with the same referenceID after success is a
	// no-op. Returns *InsufficientFunds if the account cannot cover amount.
	PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// CommitDebit converts a previously placed hold into an actual debit,
	// for up to the held amount. Calling it again with the same
	// referenceID after success is a no-op.
	CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// ReleaseHold releases a previously placed hold without debiting the
	// account. Calling it again, or calling it when no hold exists, is a
	// no-op.
	ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error

	// GetAdapterName identifies the adapter implementation for logging.
	GetAdapterName() string

	// IsHealthy reports whether the adapter can currently reach the core
	// banking system.
	IsHealthy(ctx context.Context) bool
}
