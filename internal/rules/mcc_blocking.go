package rules

import "context"

// MCCBlocking declines any request whose merchant category code is on a
// fixed blocklist.
type MCCBlocking struct {
	blocked map[string]struct{}
}

// NewMCCBlocking builds an MCCBlocking rule from a list of blocked MCCs.
func NewMCCBlocking(mccs []string) *MCCBlocking {
	blocked := make(map[string]struct{}, len(mccs))
	for _, mcc := range mccs {
		blocked[mcc] = struct{}{}
	}
	return &MCCBlocking{blocked: blocked}
}

func (r *MCCBlocking) Name() string {
	return "mcc_blocking"
}

func (r *MCCBlocking) Evaluate(ctx context.Context, req Request) (Result, error) {
	if _, ok := r.blocked[req.MCC]; ok {
		return Decline("merchant category code is blocked"), nil
	}
	return Approve(), nil
}
