//go:build integration

package generic

import (
	"context"
	"sync"
	"testing"
	"time"

	"cardcore/internal/authorization"
	"cardcore/internal/bankcore"
	"cardcore/internal/card"
	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/processor"
	"cardcore/internal/rules"
	"cardcore/internal/settlement"
	"cardcore/internal/storage"
	"cardcore/pkg/cache"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

type fakeAdapter struct {
	mu       sync.Mutex
	balances map[string]money.Money
	holds    map[string]money.Money
}

func newFakeAdapter(balances map[string]money.Money) *fakeAdapter {
	return &fakeAdapter{balances: balances, holds: make(map[string]money.Money)}
}

func (a *fakeAdapter) GetAdapterName() string            { return "fake" }
func (a *fakeAdapter) IsHealthy(ctx context.Context) bool { return true }

func (a *fakeAdapter) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[accountRef], nil
}

func (a *fakeAdapter) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.holds[referenceID]; ok {
		return nil
	}
	exceeds, err := amount.GreaterThan(a.balances[accountRef])
	if err != nil {
		return err
	}
	if exceeds {
		return &bankcore.InsufficientFunds{AccountRef: accountRef, Required: amount, Available: a.balances[accountRef]}
	}
	remaining, err := a.balances[accountRef].Sub(amount)
	if err != nil {
		return err
	}
	a.balances[accountRef] = remaining
	a.holds[referenceID] = amount
	return nil
}

func (a *fakeAdapter) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.holds, referenceID)
	return nil
}

func (a *fakeAdapter) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	held, ok := a.holds[referenceID]
	if !ok {
		return nil
	}
	restored, err := a.balances[accountRef].Add(held)
	if err != nil {
		return err
	}
	a.balances[accountRef] = restored
	delete(a.holds, referenceID)
	return nil
}

var _ bankcore.BankAccountAdapter = (*fakeAdapter)(nil)

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.NewFromString(amount, money.USD)
	require.NoError(t, err)
	return m
}

func setupTestAdapter(t *testing.T, balance string) (*Adapter, *storage.DB, *card.Card) {
	t.Helper()

	db := storage.SetupTestDB(t)

	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	cache.Client = redisClient

	cardRepo := card.NewRepository()
	mappingRepo := card.NewMappingRepository()
	authStore := ledger.NewAuthorizationStore()
	ledgerStore := ledger.NewLedgerStore()
	bankAdapter := newFakeAdapter(map[string]money.Money{"acct-1": usd(t, balance)})
	engine := rules.NewEngine(&rules.TransactionLimit{Cap: usd(t, "1000.00")})

	authSvc := authorization.NewService(db, cardRepo, mappingRepo, authStore, ledgerStore, engine, bankAdapter)
	settleSvc := settlement.NewService(db, authStore, ledgerStore, bankAdapter)
	mappings := processor.NewMappingStore()

	adapter := NewAdapter("test-processor", db, authSvc, settleSvc, mappings, nil)

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

	mapping := &card.BankAccountMapping{
		ID:             uuid.New().String(),
		CardID:         c.ID,
		BankClientRef:  "client-1",
		BankAccountRef: "acct-1",
		BankCoreType:   "fake",
		CreatedAt:      now,
		CreatedBy:      "test",
	}
	require.NoError(t, mappingRepo.Create(context.Background(), db.Pool(), mapping))

	return adapter, db, c
}

func TestHandleAuthorizeApprovedCreatesMapping(t *testing.T) {
	adapter, db, c := setupTestAdapter(t, "1000.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	result, err := adapter.HandleAuthorize(context.Background(), processor.AuthorizeEvent{
		ProcessorTransactionID: "ptx-1",
		CardToken:              c.ID,
		Amount:                 usd(t, "50.00"),
		MerchantName:           "Coffee Shop",
		MerchantMCC:            "5814",
		IdempotencyKey:         "idem-1",
	})
	require.NoError(t, err)
	require.True(t, result.Approved)
	require.NotEmpty(t, result.AuthorizationID)

	mapping, err := adapter.mappings.GetByProcessorTransactionID(context.Background(), db.Pool(), "test-processor", "ptx-1")
	require.NoError(t, err)
	require.Equal(t, result.AuthorizationID, mapping.AuthorizationID)
}

func TestHandleAuthorizeDeclinedCreatesNoMapping(t *testing.T) {
	adapter, db, c := setupTestAdapter(t, "10.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	result, err := adapter.HandleAuthorize(context.Background(), processor.AuthorizeEvent{
		ProcessorTransactionID: "ptx-2",
		CardToken:              c.ID,
		Amount:                 usd(t, "50.00"),
		MerchantName:           "Electronics Store",
		MerchantMCC:            "5732",
		IdempotencyKey:         "idem-2",
	})
	require.NoError(t, err)
	require.False(t, result.Approved)
	require.NotEmpty(t, result.DeclineReason)

	_, err = adapter.mappings.GetByProcessorTransactionID(context.Background(), db.Pool(), "test-processor", "ptx-2")
	require.ErrorIs(t, err, processor.ErrMappingNotFound)
}

func TestHandleAuthorizeUnknownCardTokenDeclines(t *testing.T) {
	adapter, db, _ := setupTestAdapter(t, "1000.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	result, err := adapter.HandleAuthorize(context.Background(), processor.AuthorizeEvent{
		ProcessorTransactionID: "ptx-3",
		CardToken:              uuid.New().String(),
		Amount:                 usd(t, "50.00"),
		MerchantName:           "Coffee Shop",
		MerchantMCC:            "5814",
		IdempotencyKey:         "idem-3",
	})
	require.NoError(t, err)
	require.False(t, result.Approved)
}

func TestHandleClearUnknownTransactionReturnsErrUnknownTransaction(t *testing.T) {
	adapter, db, _ := setupTestAdapter(t, "1000.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	err := adapter.HandleClear(context.Background(), processor.ClearEvent{
		ProcessorTransactionID: "ptx-does-not-exist",
		Amount:                 usd(t, "10.00"),
		IdempotencyKey:         "idem-clear-1",
	})
	require.ErrorIs(t, err, processor.ErrUnknownTransaction)
}

func TestHandleClearAndReverseRoundTrip(t *testing.T) {
	adapter, db, c := setupTestAdapter(t, "1000.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	authResult, err := adapter.HandleAuthorize(context.Background(), processor.AuthorizeEvent{
		ProcessorTransactionID: "ptx-4",
		CardToken:              c.ID,
		Amount:                 usd(t, "75.00"),
		MerchantName:           "Coffee Shop",
		MerchantMCC:            "5814",
		IdempotencyKey:         "idem-4",
	})
	require.NoError(t, err)
	require.True(t, authResult.Approved)

	require.NoError(t, adapter.HandleClear(context.Background(), processor.ClearEvent{
		ProcessorTransactionID: "ptx-4",
		Amount:                 usd(t, "75.00"),
		IdempotencyKey:         "idem-clear-4",
	}))

	require.NoError(t, adapter.HandleReverse(context.Background(), processor.ReverseEvent{
		ProcessorTransactionID: "ptx-4",
		Amount:                 usd(t, "25.00"),
		IdempotencyKey:         "idem-reverse-4",
	}))
}

func TestHandleReverseUnknownTransactionReturnsErrUnknownTransaction(t *testing.T) {
	adapter, db, _ := setupTestAdapter(t, "1000.00")
	defer db.Close()
	defer storage.CleanupTestDB(t, db)

	err := adapter.HandleReverse(context.Background(), processor.ReverseEvent{
		ProcessorTransactionID: "ptx-does-not-exist",
		Amount:                 usd(t, "10.00"),
		IdempotencyKey:         "idem-reverse-unknown",
	})
	require.ErrorIs(t, err, processor.ErrUnknownTransaction)
}
