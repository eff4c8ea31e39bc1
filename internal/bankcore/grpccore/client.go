// Package grpccore implements a BankAccountAdapter for core banking systems
// that expose a native gRPC hold API, reached over TLS with an API-key
// credential attached to every call as gRPC metadata.
package grpccore

import (
	"context"
	"fmt"
	"time"

	"cardcore/internal/bankcore"
	"cardcore/internal/money"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/types/known/structpb"
)

// Config configures the gRPC core banking adapter.
type Config struct {
	Host            string // "localhost" or "core-banking.internal"
	Port            string // "9443"
	TLSCertPath     string // path to the core's PEM-encoded server cert
	APIKey          string // attached as an "authorization" metadata key on every call
	RequestTimeout  time.Duration
	AdapterName     string // identifies the connected core in logs/metrics, e.g. "acme-core"
}

// apiKeyCredential implements grpc.PerRPCCredentials, attaching the API key
// as metadata on every RPC the way the core's auth layer expects.
type apiKeyCredential struct {
	apiKey string
}

func (c apiKeyCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.apiKey}, nil
}

func (c apiKeyCredential) RequireTransportSecurity() bool {
	return true
}

// Client is a gRPC-backed BankAccountAdapter. Request and response payloads
// are generic structpb.Struct envelopes rather than service-specific
// generated stubs, since the exact proto contract is defined by whichever
// core banking system is deployed.
type Client struct {
	conn    *grpc.ClientConn
	cfg     Config
	timeout time.Duration
}

// NewClient dials the core banking gRPC endpoint and validates the
// connection with a health-check RPC before returning.
func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	url := cfg.Host + ":" + cfg.Port
	conn, err := grpc.NewClient(url,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(apiKeyCredential{apiKey: cfg.APIKey}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	client := &Client{conn: conn, cfg: cfg, timeout: timeout}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := client.invoke(ctx, "/corebank.v1.AccountService/HealthCheck", map[string]any{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to core banking gRPC service (is it running?): %w", err)
	}

	return client, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	reqStruct, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, reqStruct, resp); err != nil {
		return nil, fmt.Errorf("invoke %s: %w", method, err)
	}
	return resp, nil
}

func (c *Client) GetAdapterName() string {
	if c.cfg.AdapterName != "" {
		return c.cfg.AdapterName
	}
	return "grpc-core"
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.invoke(ctx, "/corebank.v1.AccountService/HealthCheck", map[string]any{})
	return err == nil
}

func (c *Client) GetAvailableBalance(ctx context.Context, accountRef string) (money.Money, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.invoke(ctx, "/corebank.v1.AccountService/GetAvailableBalance", map[string]any{
		"account_ref": accountRef,
	})
	if err != nil {
		return money.Money{}, &bankcore.BankCoreError{AccountRef: accountRef, Op: "getAvailableBalance", Cause: err}
	}
	return moneyFromStruct(accountRef, "getAvailableBalance", resp)
}

// PlaceHold asks the core to place a native hold. Every failure, including
// the core refusing the hold for lack of funds, is returned as
// *bankcore.BankCoreError; this adapter does not return
// *bankcore.InsufficientFunds.
func (c *Client) PlaceHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.invoke(ctx, "/corebank.v1.AccountService/PlaceHold", map[string]any{
		"account_ref":  accountRef,
		"amount":       amount.Amount().String(),
		"currency":     string(amount.Currency()),
		"reference_id": referenceID,
	})
	if err != nil {
		return classifyError(accountRef, "placeHold", amount, err)
	}
	return nil
}

func (c *Client) CommitDebit(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.invoke(ctx, "/corebank.v1.AccountService/CommitDebit", map[string]any{
		"account_ref":  accountRef,
		"amount":       amount.Amount().String(),
		"currency":     string(amount.Currency()),
		"reference_id": referenceID,
	})
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "commitDebit", Cause: err}
	}
	return nil
}

func (c *Client) ReleaseHold(ctx context.Context, accountRef string, amount money.Money, referenceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.invoke(ctx, "/corebank.v1.AccountService/ReleaseHold", map[string]any{
		"account_ref":  accountRef,
		"amount":       amount.Amount().String(),
		"currency":     string(amount.Currency()),
		"reference_id": referenceID,
	})
	if err != nil {
		return &bankcore.BankCoreError{AccountRef: accountRef, Op: "releaseHold", Cause: err}
	}
	return nil
}

func moneyFromStruct(accountRef, op string, resp *structpb.Struct) (money.Money, error) {
	fields := resp.GetFields()
	amountField, ok := fields["amount"]
	if !ok {
		return money.Money{}, &bankcore.BankCoreError{AccountRef: accountRef, Op: op, Cause: fmt.Errorf("response missing amount field")}
	}
	currencyField, ok := fields["currency"]
	if !ok {
		return money.Money{}, &bankcore.BankCoreError{AccountRef: accountRef, Op: op, Cause: fmt.Errorf("response missing currency field")}
	}

	m, err := money.NewFromString(amountField.GetStringValue(), money.Currency(currencyField.GetStringValue()))
	if err != nil {
		return money.Money{}, &bankcore.BankCoreError{AccountRef: accountRef, Op: op, Cause: err}
	}
	return m, nil
}

func classifyError(accountRef, op string, amount money.Money, err error) error {
	return &bankcore.BankCoreError{AccountRef: accountRef, Op: op, Cause: err}
}

var _ bankcore.BankAccountAdapter = (*Client)(nil)
