package shadow

import (
	"context"
	"sync"
	"testing"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	mu        sync.Mutex
	balances  map[string]money.Money
	journalID int
}

func newFakePoster(balances map[string]money.Money) *fakePoster {
	return &fakePoster{balances: balances}
}

func (p *fakePoster) PostJournal(ctx context.Context, debitAccount, creditAccount string, amount money.Money, reference string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	debit, err := p.balances[debitAccount].Sub(amount)
	if err != nil {
		return "", err
	}
	credit, err := p.balances[creditAccount].Add(amount)
	if err != nil {
		return "", err
	}
	p.balances[debitAccount] = debit
	p.balances[creditAccount] = credit

	p.journalID++
	return reference, nil
}

func (p *fakePoster) PostWithdrawal(ctx context.Context, accountRef string, amount money.Money, reference string) error {
	return nil
}

func (p *fakePoster) GetBalance(ctx context.Context, accountRef string) (money.Money, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[accountRef], nil
}

type fakeHoldStore struct {
	mu    sync.Mutex
	holds map[string]*Hold
}

func newFakeHoldStore() *fakeHoldStore {
	return &fakeHoldStore{holds: make(map[string]*Hold)}
}

func (s *fakeHoldStore) GetByAuthorizationID(ctx context.Context, authorizationID string) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[authorizationID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *fakeHoldStore) Create(ctx context.Context, h *Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.holds[h.AuthorizationID] = &cp
	return nil
}

func (s *fakeHoldStore) UpdateStatus(ctx context.Context, authorizationID string, status HoldStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[authorizationID]
	if !ok {
		return ErrHoldNotFound
	}
	h.Status = status
	h.UpdatedAt = time.Now().UTC()
	return nil
}

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.NewFromString(amount, money.USD)
	require.NoError(t, err)
	return m
}

func newTestAdapter(t *testing.T, startingBalance string) (*Adapter, *fakePoster, *fakeHoldStore) {
	t.Helper()
	poster := newFakePoster(map[string]money.Money{
		"acct-1":    usd(t, startingBalance),
		"auth-holds": money.Zero(money.USD),
	})
	holds := newFakeHoldStore()
	return NewAdapter(Config{HoldsGLAccount: "auth-holds"}, poster, holds), poster, holds
}

func TestPlaceHoldMovesFundsToHoldsAccount(t *testing.T) {
	adapter, poster, holds := newTestAdapter(t, "100.00")

	err := adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1")
	require.NoError(t, err)

	bal, err := poster.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "60.00", bal.Amount().StringFixed(2))

	held, err := holds.GetByAuthorizationID(context.Background(), "auth-1")
	require.NoError(t, err)
	assert.Equal(t, HoldActive, held.Status)
}

func TestPlaceHoldIsIdempotent(t *testing.T) {
	adapter, poster, _ := newTestAdapter(t, "100.00")

	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	bal, err := poster.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "60.00", bal.Amount().StringFixed(2), "a repeated PlaceHold must not move funds twice")
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, "10.00")

	err := adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1")
	var insufficient *bankcore.InsufficientFunds
	require.ErrorAs(t, err, &insufficient)
}

func TestCommitDebitFinalizesHold(t *testing.T) {
	adapter, poster, holds := newTestAdapter(t, "100.00")
	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	require.NoError(t, adapter.CommitDebit(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	held, err := holds.GetByAuthorizationID(context.Background(), "auth-1")
	require.NoError(t, err)
	assert.Equal(t, HoldCommitted, held.Status)

	holdsBal, err := poster.GetBalance(context.Background(), "auth-holds")
	require.NoError(t, err)
	assert.True(t, holdsBal.IsZero(), "committed hold amount should have been unwound out of the holds account")
}

func TestCommitDebitIsIdempotent(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, "100.00")
	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
	require.NoError(t, adapter.CommitDebit(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
	require.NoError(t, adapter.CommitDebit(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
}

func TestReleaseHoldRestoresFunds(t *testing.T) {
	adapter, poster, holds := newTestAdapter(t, "100.00")
	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	require.NoError(t, adapter.ReleaseHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	bal, err := poster.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Amount().StringFixed(2))

	held, err := holds.GetByAuthorizationID(context.Background(), "auth-1")
	require.NoError(t, err)
	assert.Equal(t, HoldReleased, held.Status)
}

func TestReleaseHoldWithNoHoldIsNoop(t *testing.T) {
	adapter, _, _ := newTestAdapter(t, "100.00")
	err := adapter.ReleaseHold(context.Background(), "acct-1", usd(t, "40.00"), "never-placed")
	assert.NoError(t, err)
}

func TestReleaseHoldIsIdempotent(t *testing.T) {
	adapter, poster, _ := newTestAdapter(t, "100.00")
	require.NoError(t, adapter.PlaceHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
	require.NoError(t, adapter.ReleaseHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))
	require.NoError(t, adapter.ReleaseHold(context.Background(), "acct-1", usd(t, "40.00"), "auth-1"))

	bal, err := poster.GetBalance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Amount().StringFixed(2), "a repeated ReleaseHold must not restore funds twice")
}
