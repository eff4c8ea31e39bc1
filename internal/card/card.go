// Package card holds the Card and BankAccountMapping entities and their
// Postgres-backed repositories.
package card

import (
	"errors"
	"time"
)

// State is the lifecycle state of a Card.
type State string

const (
	Active State = "ACTIVE"
	Frozen State = "FROZEN"
	Closed State = "CLOSED"
)

var (
	ErrInvalidTransition = errors.New("card: invalid state transition")
)

// Card is a payment card issued against a linked bank account.
type Card struct {
	ID             string
	CardholderName string
	Last4          string
	ExpiresAt      time.Time
	State          State
	OwnerID        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the card's expiration date has passed as of now.
func (c *Card) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Freeze transitions an ACTIVE card to FROZEN. A card that is already
// CLOSED cannot be frozen.
func (c *Card) Freeze() error {
	if c.State == Closed {
		return ErrInvalidTransition
	}
	c.State = Frozen
	return nil
}

// Activate transitions a FROZEN card back to ACTIVE.
func (c *Card) Activate() error {
	if c.State != Frozen {
		return ErrInvalidTransition
	}
	c.State = Active
	return nil
}

// Close transitions a card to the terminal CLOSED state from any
// non-terminal state.
func (c *Card) Close() error {
	if c.State == Closed {
		return ErrInvalidTransition
	}
	c.State = Closed
	return nil
}

// BankAccountMapping links a card to the account it draws against in the
// core banking system.
type BankAccountMapping struct {
	ID             string
	CardID         string
	BankClientRef  string
	BankAccountRef string
	BankCoreType   string
	CreatedAt      time.Time
	CreatedBy      string
}
