//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"cardcore/internal/bankcore/shadow"
	"cardcore/internal/card"
	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/storage"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

type fakeLedgerPoster struct {
	balances map[string]money.Money
}

func (p *fakeLedgerPoster) PostJournal(ctx context.Context, debitAccount, creditAccount string, amount money.Money, reference string) (string, error) {
	return uuid.New().String(), nil
}

func (p *fakeLedgerPoster) PostWithdrawal(ctx context.Context, accountRef string, amount money.Money, reference string) error {
	return nil
}

func (p *fakeLedgerPoster) GetBalance(ctx context.Context, accountRef string) (money.Money, error) {
	return p.balances[accountRef], nil
}

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.NewFromString(amount, money.USD)
	require.NoError(t, err)
	return m
}

func setupReconciler(t *testing.T) (*reconciler, *storage.DB) {
	t.Helper()

	db := storage.SetupTestDB(t)
	holdStore := shadow.NewHoldStore()
	authStore := ledger.NewAuthorizationStore()
	poster := &fakeLedgerPoster{balances: map[string]money.Money{"acct-1": usd(t, "1000.00")}}
	adapter := shadow.NewAdapter(shadow.Config{HoldsGLAccount: "gl-holds"}, poster, shadow.BindHoldStore(holdStore, db.Pool()))

	r := &reconciler{db: db, holdStore: holdStore, authStore: authStore, adapter: adapter}
	return r, db
}

func createReleasedAuthorizationWithActiveHold(t *testing.T, db *storage.DB, authStore *ledger.AuthorizationStore, holdStore *shadow.HoldStore, createdAt time.Time) string {
	t.Helper()

	cardRepo := card.NewRepository()
	now := time.Now().UTC()
	c := &card.Card{
		ID:             uuid.New().String(),
		CardholderName: "Jane Doe",
		Last4:          "4242",
		ExpiresAt:      now.AddDate(2, 0, 0),
		State:          card.Active,
		OwnerID:        "owner-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, cardRepo.Create(context.Background(), db.Pool(), c))

	authorizationID := uuid.New().String()
	a := &ledger.Authorization{
		ID:             authorizationID,
		CardID:         c.ID,
		AccountRef:     "acct-1",
		Amount:         usd(t, "25.00"),
		Status:         ledger.Released,
		Merchant:       ledger.Merchant{Name: "Coffee Shop", MCC: "5814"},
		IdempotencyKey: uuid.New().String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, authStore.Create(context.Background(), db.Pool(), a))

	hold := &shadow.Hold{
		AuthorizationID: authorizationID,
		AccountRef:      "acct-1",
		JournalEntryID:  uuid.New().String(),
		Amount:          usd(t, "25.00"),
		Status:          shadow.HoldActive,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, holdStore.Create(context.Background(), db.Pool(), hold))

	return authorizationID
}

func TestReconcileOneRetriesReleaseForReleasedAuthorizationWithActiveHold(t *testing.T) {
	r, db := setupReconciler(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	authorizationID := createReleasedAuthorizationWithActiveHold(t, db, r.authStore, r.holdStore, time.Now().UTC().Add(-5*time.Minute))

	require.NoError(t, r.reconcileOne(context.Background(), authorizationID))

	hold, err := r.holdStore.GetByAuthorizationID(context.Background(), db.Pool(), authorizationID)
	require.NoError(t, err)
	require.Equal(t, shadow.HoldReleased, hold.Status)
}

func TestReconcileOneLeavesApprovedAuthorizationAlone(t *testing.T) {
	r, db := setupReconciler(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	cardRepo := card.NewRepository()
	now := time.Now().UTC()
	c := &card.Card{
		ID:             uuid.New().String(),
		CardholderName: "Jane Doe",
		Last4:          "4242",
		ExpiresAt:      now.AddDate(2, 0, 0),
		State:          card.Active,
		OwnerID:        "owner-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, cardRepo.Create(context.Background(), db.Pool(), c))

	authorizationID := uuid.New().String()
	a := &ledger.Authorization{
		ID:             authorizationID,
		CardID:         c.ID,
		AccountRef:     "acct-1",
		Amount:         usd(t, "25.00"),
		Status:         ledger.Approved,
		Merchant:       ledger.Merchant{Name: "Coffee Shop", MCC: "5814"},
		IdempotencyKey: uuid.New().String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, r.authStore.Create(context.Background(), db.Pool(), a))

	hold := &shadow.Hold{
		AuthorizationID: authorizationID,
		AccountRef:      "acct-1",
		JournalEntryID:  uuid.New().String(),
		Amount:          usd(t, "25.00"),
		Status:          shadow.HoldActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, r.holdStore.Create(context.Background(), db.Pool(), hold))

	require.NoError(t, r.reconcileOne(context.Background(), authorizationID))

	got, err := r.holdStore.GetByAuthorizationID(context.Background(), db.Pool(), authorizationID)
	require.NoError(t, err)
	require.Equal(t, shadow.HoldActive, got.Status)
}

func TestReconcilePollFindsStaleActiveHolds(t *testing.T) {
	r, db := setupReconciler(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	authorizationID := createReleasedAuthorizationWithActiveHold(t, db, r.authStore, r.holdStore, time.Now().UTC().Add(-holdStaleAfter-time.Minute))

	require.NoError(t, r.reconcilePoll(context.Background()))

	hold, err := r.holdStore.GetByAuthorizationID(context.Background(), db.Pool(), authorizationID)
	require.NoError(t, err)
	require.Equal(t, shadow.HoldReleased, hold.Status)
}

func TestReconcilePollIgnoresFreshActiveHolds(t *testing.T) {
	r, db := setupReconciler(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	authorizationID := createReleasedAuthorizationWithActiveHold(t, db, r.authStore, r.holdStore, time.Now().UTC())

	require.NoError(t, r.reconcilePoll(context.Background()))

	hold, err := r.holdStore.GetByAuthorizationID(context.Background(), db.Pool(), authorizationID)
	require.NoError(t, err)
	require.Equal(t, shadow.HoldActive, hold.Status)
}
