package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardcore/internal/money"

	"github.com/shopspring/decimal"
)

// AuthorizationHistory is the slice of the authorization store a rule
// needs to evaluate spend or velocity against past decisions.
type AuthorizationHistory interface {
	SumApprovedSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (decimal.Decimal, error)
	CountSince(ctx context.Context, cardID string, since time.Time) (int, error)
}

// DailySpendLimit declines a request that would push the card's total
// approved spend for the current UTC calendar day over a fixed cap.
type DailySpendLimit struct {
	History AuthorizationHistory
	Cap     money.Money
}

func NewDailySpendLimit(history AuthorizationHistory, cap money.Money) *DailySpendLimit {
	return &DailySpendLimit{History: history, Cap: cap}
}

func (r *DailySpendLimit) Name() string {
	return "daily_spend_limit"
}

func startOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *DailySpendLimit) Evaluate(ctx context.Context, req Request) (Result, error) {
	if req.Amount.Currency() != r.Cap.Currency() {
		return Decline("currency not supported by daily spend limit policy"), nil
	}

	since := startOfUTCDay(req.Now)
	sum, err := r.History.SumApprovedSince(ctx, req.CardID, since, req.Amount.Currency())
	if err != nil {
		return Result{}, fmt.Errorf("daily spend limit: %w", err)
	}

	projected, err := money.New(sum.Add(req.Amount.Amount()), req.Amount.Currency())
	if err != nil {
		return Result{}, fmt.Errorf("daily spend limit: %w", err)
	}

	gt, err := projected.GreaterThan(r.Cap)
	if err != nil {
		if errors.Is(err, money.ErrCurrencyMismatch) {
			return Decline("currency not supported by daily spend limit policy"), nil
		}
		return Result{}, err
	}
	if gt {
		return Decline("transaction exceeds daily spend limit"), nil
	}
	return Approve(), nil
}
