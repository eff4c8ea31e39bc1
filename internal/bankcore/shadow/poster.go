// Package shadow implements the reference BankAccountAdapter for core
// banking systems that have no native hold primitive: a hold is emulated
// by posting a double-entry journal that moves the reserved amount into a
// dedicated holds GL account, and tracking the hold's lifecycle locally.
package shadow

import (
	"bytes"
	"cardcore/internal/money"
	"cardcore/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LedgerPoster is the minimal transport contract the shadow adapter needs
// from the core banking system: posting a journal entry, posting a
// withdrawal, and reading a balance.
type LedgerPoster interface {
	PostJournal(ctx context.Context, debitAccount, creditAccount string, amount money.Money, reference string) (journalID string, err error)
	PostWithdrawal(ctx context.Context, accountRef string, amount money.Money, reference string) error
	GetBalance(ctx context.Context, accountRef string) (money.Money, error)
}

// HTTPLedgerPosterConfig configures httpLedgerPoster.
type HTTPLedgerPosterConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpLedgerPoster struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPLedgerPoster builds a LedgerPoster that speaks to the core
// banking system's REST ledger API.
func NewHTTPLedgerPoster(cfg HTTPLedgerPosterConfig) LedgerPoster {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &httpLedgerPoster{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

type journalRequest struct {
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

type journalResponse struct {
	JournalID string `json:"journal_id"`
}

type withdrawalRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type balanceResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (p *httpLedgerPoster) postJSON(ctx context.Context, path string, body any, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.Error("shadow ledger poster request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Error("shadow ledger poster got error response", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("post %s: status %d", path, resp.StatusCode)
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

func (p *httpLedgerPoster) PostJournal(ctx context.Context, debitAccount, creditAccount string, amount money.Money, reference string) (string, error) {
	var resp journalResponse
	err := p.postJSON(ctx, "/journals", journalRequest{
		DebitAccount:  debitAccount,
		CreditAccount: creditAccount,
		Amount:        amount.Amount().String(),
		Currency:      string(amount.Currency()),
		Reference:     reference,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.JournalID, nil
}

func (p *httpLedgerPoster) PostWithdrawal(ctx context.Context, accountRef string, amount money.Money, reference string) error {
	return p.postJSON(ctx, fmt.Sprintf("/accounts/%s/withdrawals", accountRef), withdrawalRequest{
		Amount:    amount.Amount().String(),
		Currency:  string(amount.Currency()),
		Reference: reference,
	}, nil)
}

func (p *httpLedgerPoster) GetBalance(ctx context.Context, accountRef string) (money.Money, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+fmt.Sprintf("/accounts/%s/balance", accountRef), nil)
	if err != nil {
		return money.Money{}, fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return money.Money{}, fmt.Errorf("get balance for %s: %w", accountRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return money.Money{}, fmt.Errorf("get balance for %s: status %d", accountRef, resp.StatusCode)
	}

	var br balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return money.Money{}, fmt.Errorf("decode balance response: %w", err)
	}

	return money.NewFromString(br.Amount, money.Currency(br.Currency))
}
