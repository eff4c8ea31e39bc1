// Package ledger holds the durable Authorization record and the
// append-only LedgerEntry audit trail, plus their Postgres-backed stores.
package ledger

import (
	"time"

	"cardcore/internal/money"
)

// AuthorizationStatus is the lifecycle state of a durable Authorization
// record.
type AuthorizationStatus string

const (
	Approved AuthorizationStatus = "APPROVED"
	Declined AuthorizationStatus = "DECLINED"
	Cleared  AuthorizationStatus = "CLEARED"
	Released AuthorizationStatus = "RELEASED"
	Reversed AuthorizationStatus = "REVERSED"
)

// Merchant describes the counterparty on an authorization request.
type Merchant struct {
	Name    string
	MCC     string
	City    string
	Country string
}

// Authorization is the durable record produced by the authorization
// pipeline for every request it processes, approved or declined.
type Authorization struct {
	ID             string
	CardID         string
	AccountRef     string
	Amount         money.Money
	ClearedAmount  *money.Money
	Status         AuthorizationStatus
	Merchant       Merchant
	DeclineReason  string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryType is the debit/credit side of a LedgerEntry.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// TransactionType classifies what a LedgerEntry records.
type TransactionType string

const (
	AuthHold       TransactionType = "AUTH_HOLD"
	AuthRelease    TransactionType = "AUTH_RELEASE"
	ClearingCommit TransactionType = "CLEARING_COMMIT"
	Reversal       TransactionType = "REVERSAL"
)

// LedgerEntry is one append-only audit record of money moving (or being
// released) against an account.
type LedgerEntry struct {
	ID              string
	AccountRef      string
	EntryType       EntryType
	Amount          money.Money
	TransactionType TransactionType
	AuthorizationID *string
	CardID          *string
	IdempotencyKey  string
	CreatedAt       time.Time
}
