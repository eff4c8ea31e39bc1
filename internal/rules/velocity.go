package rules

import (
	"context"
	"fmt"
	"time"
)

// VelocityCounter is the slice of authorization history the velocity rule
// needs. It is satisfied by AuthorizationHistory, but a narrower
// implementation (a fixed-window counter, for instance) can back it
// without having to answer SumApprovedSince too.
type VelocityCounter interface {
	CountSince(ctx context.Context, cardID string, since time.Time) (int, error)
}

// Velocity declines a request once a card has been presented too many
// times within a rolling window, regardless of amount.
type Velocity struct {
	History      VelocityCounter
	Window       time.Duration
	MaxPerWindow int
}

func NewVelocity(history VelocityCounter, window time.Duration, maxPerWindow int) *Velocity {
	return &Velocity{History: history, Window: window, MaxPerWindow: maxPerWindow}
}

func (r *Velocity) Name() string {
	return "velocity"
}

func (r *Velocity) Evaluate(ctx context.Context, req Request) (Result, error) {
	since := req.Now.Add(-r.Window)
	count, err := r.History.CountSince(ctx, req.CardID, since)
	if err != nil {
		return Result{}, fmt.Errorf("velocity: %w", err)
	}
	if count >= r.MaxPerWindow {
		return Decline("velocity limit exceeded"), nil
	}
	return Approve(), nil
}
