package shadow

import (
	"context"

	"cardcore/internal/storage"
)

// HoldRepository is the persistence boundary the Adapter uses for its own
// hold bookkeeping, independent of whatever transaction the caller is
// running: the adapter tracks the core banking system's state, not ours.
// poolHoldStore is the production implementation backed by Postgres; tests
// substitute an in-memory fake.
type HoldRepository interface {
	GetByAuthorizationID(ctx context.Context, authorizationID string) (*Hold, error)
	Create(ctx context.Context, h *Hold) error
	UpdateStatus(ctx context.Context, authorizationID string, status HoldStatus) error
}

// poolHoldStore binds a HoldStore to a fixed pool so it can be used as a
// HoldRepository outside of any particular caller transaction.
type poolHoldStore struct {
	store *HoldStore
	q     storage.Querier
}

// BindHoldStore adapts a HoldStore bound to a database pool into a
// HoldRepository for use by the Adapter.
func BindHoldStore(store *HoldStore, q storage.Querier) HoldRepository {
	return &poolHoldStore{store: store, q: q}
}

func (p *poolHoldStore) GetByAuthorizationID(ctx context.Context, authorizationID string) (*Hold, error) {
	return p.store.GetByAuthorizationID(ctx, p.q, authorizationID)
}

func (p *poolHoldStore) Create(ctx context.Context, h *Hold) error {
	return p.store.Create(ctx, p.q, h)
}

func (p *poolHoldStore) UpdateStatus(ctx context.Context, authorizationID string, status HoldStatus) error {
	return p.store.UpdateStatus(ctx, p.q, authorizationID, status)
}
