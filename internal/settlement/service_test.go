//go:build integration

package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/card"
	"cardcore/internal/coreerr"
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

type fakeAdapter struct {
	mu       sync.Mutex
	debited  map[string]money.Money
	released map[string]bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{debited: make(map[string]money.Money), released: make(map[string]bool)}
}

func (a *fakeAdapter) GetAdapterName() string            { return "fake" }
func (a *fakeAdapter) IsHealthy(ctx context.Context) bool { return true }
func (a *fakeAdapter) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	return money.Zero(money.USD), nil
}

func (a *fakeAdapter) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	return nil
}

func (a *fakeAdapter) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debited[referenceID] = amount
	return nil
}

func (a *fakeAdapter) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released[referenceID] = true
	return nil
}

var _ bankcore.BankAccountAdapter = (*fakeAdapter)(nil)

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.NewFromString(amount, money.USD)
	require.NoError(t, err)
	return m
}

func setupTestService(t *testing.T) (*Service, *storage.DB, *fakeAdapter, *ledger.AuthorizationStore) {
	t.Helper()

	db := storage.SetupTestDB(t)
	authStore := ledger.NewAuthorizationStore()
	ledgerStore := ledger.NewLedgerStore()
	adapter := newFakeAdapter()

	svc := NewService(db, authStore, ledgerStore, adapter)
	return svc, db, adapter, authStore
}

func createApprovedAuthorization(t *testing.T, db *storage.DB, authStore *ledger.AuthorizationStore, amount money.Money) *ledger.Authorization {
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

	a := &ledger.Authorization{
		ID:             uuid.New().String(),
		CardID:         c.ID,
		AccountRef:     "acct-1",
		Amount:         amount,
		Status:         ledger.Approved,
		Merchant:       ledger.Merchant{Name: "Coffee Shop", MCC: "5814"},
		IdempotencyKey: uuid.New().String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, authStore.Create(context.Background(), db.Pool(), a))
	return a
}

func TestClearFullAmount(t *testing.T) {
	svc, db, adapter, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	err := svc.Clear(context.Background(), a.ID, usd(t, "100.00"), "clear-key-1")
	require.NoError(t, err)

	updated, err := authStore.GetByID(context.Background(), db.Pool(), a.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.Cleared, updated.Status)
	require.NotNil(t, updated.ClearedAmount)
	require.Equal(t, "100.00", updated.ClearedAmount.Amount().StringFixed(2))
	require.Equal(t, "100.00", adapter.debited[a.ID].Amount().StringFixed(2))
}

func TestClearIsIdempotent(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	require.NoError(t, svc.Clear(context.Background(), a.ID, usd(t, "100.00"), "clear-key-1"))
	require.NoError(t, svc.Clear(context.Background(), a.ID, usd(t, "100.00"), "clear-key-1"))
}

func TestClearRejectsAmountAboveAuthorized(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	err := svc.Clear(context.Background(), a.ID, usd(t, "150.00"), "clear-key-2")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.InvalidArgument))
}

func TestReleaseRestoresNoDebit(t *testing.T) {
	svc, db, adapter, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	err := svc.Release(context.Background(), a.ID, "release-key-1")
	require.NoError(t, err)

	updated, err := authStore.GetByID(context.Background(), db.Pool(), a.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.Released, updated.Status)
	require.True(t, adapter.released[a.ID])
	require.Empty(t, adapter.debited[a.ID])
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	require.NoError(t, svc.Release(context.Background(), a.ID, "release-key-1"))
	require.NoError(t, svc.Release(context.Background(), a.ID, "release-key-1"))
}

func TestReverseRequiresClearedState(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))

	err := svc.Reverse(context.Background(), a.ID, usd(t, "50.00"), "reverse-key-1")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.InvalidState))
}

func TestReversePartialAfterClear(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))
	require.NoError(t, svc.Clear(context.Background(), a.ID, usd(t, "75.00"), "clear-key-1"))

	err := svc.Reverse(context.Background(), a.ID, usd(t, "25.00"), "reverse-key-1")
	require.NoError(t, err)

	updated, err := authStore.GetByID(context.Background(), db.Pool(), a.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.Reversed, updated.Status)
}

func TestReverseRejectsAmountAboveCleared(t *testing.T) {
	svc, db, _, authStore := setupTestService(t)
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	a := createApprovedAuthorization(t, db, authStore, usd(t, "100.00"))
	require.NoError(t, svc.Clear(context.Background(), a.ID, usd(t, "75.00"), "clear-key-1"))

	err := svc.Reverse(context.Background(), a.ID, usd(t, "80.00"), "reverse-key-1")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.InvalidArgument))
}
