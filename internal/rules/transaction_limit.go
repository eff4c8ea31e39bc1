package rules

import (
	"context"
	"errors"

	"cardcore/internal/money"
)

// TransactionLimit declines any single authorization request above a fixed
// cap.
type TransactionLimit struct {
	Cap money.Money
}

// NewTransactionLimit builds a TransactionLimit rule with the given cap.
func NewTransactionLimit(cap money.Money) *TransactionLimit {
	return &TransactionLimit{Cap: cap}
}

func (r *TransactionLimit) Name() string {
	return "transaction_limit"
}

func (r *TransactionLimit) Evaluate(ctx context.Context, req Request) (Result, error) {
	gt, err := req.Amount.GreaterThan(r.Cap)
	if err != nil {
		if errors.Is(err, money.ErrCurrencyMismatch) {
			return Decline("currency not supported by transaction limit policy"), nil
		}
		return Result{}, err
	}
	if gt {
		return Decline("transaction exceeds per-transaction limit"), nil
	}
	return Approve(), nil
}
