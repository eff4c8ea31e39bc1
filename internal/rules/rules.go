// Package rules implements the policy rules engine evaluated as step 6 of
// the authorization pipeline, before a hold is ever placed against the
// core banking system.
package rules

import (
	"context"
	"time"

	"cardcore/internal/money"
)

// Request is the input a Rule evaluates.
type Request struct {
	CardID   string
	Amount   money.Money
	MCC      string
	Merchant string
	Now      time.Time
}

// Result is a rule's decision. A Rule never returns an error for an
// ordinary decline -- errors are reserved for infrastructure failures
// (a database call the rule depends on failing).
type Result struct {
	Approved bool
	Reason   string
}

// Approve returns an approving Result.
func Approve() Result {
	return Result{Approved: true}
}

// Decline returns a declining Result with the given reason.
func Decline(reason string) Result {
	return Result{Approved: false, Reason: reason}
}

// Rule evaluates one policy check against an authorization request.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Engine runs an ordered list of rules and short-circuits on the first
// decline.
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine that evaluates rules in the given order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Evaluate runs every rule in order, returning the first decline or an
// overall approval if every rule passes.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Result, error) {
	for _, rule := range e.rules {
		result, err := rule.Evaluate(ctx, req)
		if err != nil {
			return Result{}, err
		}
		if !result.Approved {
			return result, nil
		}
	}
	return Approve(), nil
}
