package rules

import (
	"context"
	"testing"
	"time"

	"cardcore/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.NewFromString(amount, money.USD)
	require.NoError(t, err)
	return m
}

func TestTransactionLimitApprovesUnderCap(t *testing.T) {
	r := NewTransactionLimit(usd(t, "500.00"))
	result, err := r.Evaluate(context.Background(), Request{Amount: usd(t, "100.00")})
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

func TestTransactionLimitDeclinesOverCap(t *testing.T) {
	r := NewTransactionLimit(usd(t, "500.00"))
	result, err := r.Evaluate(context.Background(), Request{Amount: usd(t, "500.01")})
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestMCCBlocking(t *testing.T) {
	r := NewMCCBlocking([]string{"7995"})
	result, err := r.Evaluate(context.Background(), Request{MCC: "7995"})
	require.NoError(t, err)
	assert.False(t, result.Approved)

	result, err = r.Evaluate(context.Background(), Request{MCC: "5411"})
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

type fakeHistory struct {
	sum   decimal.Decimal
	count int
	err   error
}

func (f *fakeHistory) SumApprovedSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (decimal.Decimal, error) {
	return f.sum, f.err
}

func (f *fakeHistory) CountSince(ctx context.Context, cardID string, since time.Time) (int, error) {
	return f.count, f.err
}

func TestDailySpendLimitDeclinesWhenProjectedTotalExceedsCap(t *testing.T) {
	history := &fakeHistory{sum: decimal.RequireFromString("450.00")}
	r := NewDailySpendLimit(history, usd(t, "500.00"))

	result, err := r.Evaluate(context.Background(), Request{Amount: usd(t, "100.00"), Now: time.Now()})
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestDailySpendLimitApprovesWhenWithinCap(t *testing.T) {
	history := &fakeHistory{sum: decimal.RequireFromString("100.00")}
	r := NewDailySpendLimit(history, usd(t, "500.00"))

	result, err := r.Evaluate(context.Background(), Request{Amount: usd(t, "100.00"), Now: time.Now()})
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

func TestVelocityDeclinesAtThreshold(t *testing.T) {
	history := &fakeHistory{count: 5}
	r := NewVelocity(history, time.Minute, 5)

	result, err := r.Evaluate(context.Background(), Request{Now: time.Now()})
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestVelocityApprovesBelowThreshold(t *testing.T) {
	history := &fakeHistory{count: 4}
	r := NewVelocity(history, time.Minute, 5)

	result, err := r.Evaluate(context.Background(), Request{Now: time.Now()})
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

func TestEngineShortCircuitsOnFirstDecline(t *testing.T) {
	engine := NewEngine(
		NewMCCBlocking([]string{"7995"}),
		NewTransactionLimit(usd(t, "10.00")),
	)

	result, err := engine.Evaluate(context.Background(), Request{MCC: "7995", Amount: usd(t, "1.00")})
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, "merchant category code is blocked", result.Reason)
}

func TestEngineApprovesWhenAllRulesPass(t *testing.T) {
	engine := NewEngine(
		NewMCCBlocking([]string{"7995"}),
		NewTransactionLimit(usd(t, "10.00")),
	)

	result, err := engine.Evaluate(context.Background(), Request{MCC: "5411", Amount: usd(t, "5.00")})
	require.NoError(t, err)
	assert.True(t, result.Approved)
}
