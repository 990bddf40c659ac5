package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"southbag/internal/game"
	"southbag/internal/ledger"

	"github.com/shopspring/decimal"
)

// APIError is a non-2xx reply from the Southbag API.
type APIError struct {
	Status    int
	Message   string
	Rejection *game.Error
}

func (e *APIError) Error() string {
	if e.Rejection != nil {
		return fmt.Sprintf("api status %d: %v", e.Status, e.Rejection)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Retryable reports whether err means the request may not have reached
// the bank, so replaying it later is safe with the same idempotency key.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AccountPath builds the API path of an owner's account resource.
func AccountPath(owner string, rest ...string) string {
	p := "/v1/accounts/" + url.PathEscape(owner)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) Open(ctx context.Context, owner, name, idem string) (ledger.Account, error) {
	var out ledger.Account
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/accounts", map[string]any{
		"owner_id": owner,
		"name":     name,
	}, &out, idem)
	return out, err
}

func (c *Client) Account(ctx context.Context, owner string) (ledger.Account, error) {
	var out ledger.Account
	err := c.jsonRequest(ctx, http.MethodGet, AccountPath(owner), nil, &out, "")
	return out, err
}

func (c *Client) Freeze(ctx context.Context, owner, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, AccountPath(owner, "freeze"), nil, nil, idem)
}

func (c *Client) SetStatus(ctx context.Context, owner string, status ledger.AccountStatus, idem string) error {
	return c.jsonRequest(ctx, http.MethodPut, AccountPath(owner, "status"), map[string]any{
		"status": status,
	}, nil, idem)
}

func (c *Client) History(ctx context.Context, owner string, limit int) ([]ledger.Transaction, error) {
	var out struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	path := AccountPath(owner, "history")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out.Transactions, err
}

func (c *Client) ClearHistory(ctx context.Context, owner, idem string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	err := c.jsonRequest(ctx, http.MethodDelete, AccountPath(owner, "history"), nil, &out, idem)
	return out.Deleted, err
}

func (c *Client) Prices(ctx context.Context) ([]game.CoinQuote, error) {
	var out struct {
		Coins []game.CoinQuote `json:"coins"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/crypto/prices", nil, &out, "")
	return out.Coins, err
}

func (c *Client) LoanStatus(ctx context.Context, owner string) (game.LoanView, error) {
	var out game.LoanView
	err := c.jsonRequest(ctx, http.MethodGet, AccountPath(owner, "loan"), nil, &out, "")
	return out, err
}

func (c *Client) TakeLoan(ctx context.Context, owner string, amount decimal.Decimal, idem string) (game.LoanResult, error) {
	var out game.LoanResult
	err := c.jsonRequest(ctx, http.MethodPost, AccountPath(owner, "loan"), map[string]any{
		"amount": amount.String(),
	}, &out, idem)
	return out, err
}

func (c *Client) RepayLoan(ctx context.Context, owner, idem string) (game.LoanResult, error) {
	var out game.LoanResult
	err := c.jsonRequest(ctx, http.MethodPost, AccountPath(owner, "loan", "repay"), nil, &out, idem)
	return out, err
}

func (c *Client) SweepFees(ctx context.Context, idle time.Duration, limit int, idem string) (game.SweepResult, error) {
	var out game.SweepResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/fees/sweep", map[string]any{
		"idle":  idle.String(),
		"limit": limit,
	}, &out, idem)
	return out, err
}

// Do sends a raw request; the sync command replays queued writes with it.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, in, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
	var payload struct {
		Error     string      `json:"error"`
		Rejection *game.Error `json:"rejection"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
		}
		apiErr.Rejection = payload.Rejection
	}
	return apiErr
}
