package main

import (
	"context"
	"fmt"
	"time"

	"cardcore/internal/ledger"
	"cardcore/internal/money"
	"cardcore/internal/storage"
	"cardcore/pkg/cache"

	"github.com/shopspring/decimal"
)

// poolAuthorizationHistory binds ledger.AuthorizationStore to a fixed pool
// so it can satisfy rules.AuthorizationHistory outside of any particular
// pipeline transaction.
type poolAuthorizationHistory struct {
	store *ledger.AuthorizationStore
	db    *storage.DB
}

func (h *poolAuthorizationHistory) SumApprovedSince(ctx context.Context, cardID string, since time.Time, currency money.Currency) (decimal.Decimal, error) {
	return h.store.SumApprovedSince(ctx, h.db.Pool(), cardID, since, currency)
}

func (h *poolAuthorizationHistory) CountSince(ctx context.Context, cardID string, since time.Time) (int, error) {
	return h.store.CountSince(ctx, h.db.Pool(), cardID, since)
}

// redisVelocityCounter backs rules.Velocity with a fixed-window counter in
// Redis instead of a COUNT(*) query per authorization. Every card/window
// pair gets its own key, incremented on each presentation and expired once
// the window has passed, so a card that goes quiet stops costing anything.
// CountSince returns the count of earlier presentations in the window, not
// counting the one being evaluated.
type redisVelocityCounter struct {
	window time.Duration
}

func (c *redisVelocityCounter) CountSince(ctx context.Context, cardID string, since time.Time) (int, error) {
	bucket := since.Add(c.window).Truncate(c.window)
	key := fmt.Sprintf("velocity:%s:%d", cardID, bucket.Unix())

	count, err := cache.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("velocity counter incr for card %s: %w", cardID, err)
	}
	if count == 1 {
		if err := cache.Expire(ctx, key, c.window); err != nil {
			return 0, fmt.Errorf("velocity counter expire for card %s: %w", cardID, err)
		}
	}
	return int(count) - 1, nil
}
