// Package chain talks to the external payment-reference recorder that tracks
// on-chain settlement of invoices.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Event is a settlement observed by the recorder.
type Event struct {
	RequestID string          `json:"requestId"`
	TxHash    string          `json:"txHash"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    time.Time       `json:"paidAt"`
}

// Client calls the recorder HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client. A nil httpClient uses a 15s timeout client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: httpClient}
}

type createRequestBody struct {
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Payer         string          `json:"payer"`
	Payee         string          `json:"payee"`
}

type createRequestResponse struct {
	RequestID string `json:"requestId"`
}

// CreateRequest registers inv for its outstanding amount and returns the
// recorder's request id.
func (c *Client) CreateRequest(ctx context.Context, inv invoices.Invoice, payerWallet, payeeWallet string) (string, error) {
	body := createRequestBody{
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.AmountDue,
		Currency:      inv.Currency,
		Payer:         payerWallet,
		Payee:         payeeWallet,
	}
	var out createRequestResponse
	if err := c.do(ctx, http.MethodPost, "/requests", body, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("chain: empty request id: %w", shared.ErrExternalService)
	}
	return out.RequestID, nil
}

type eventsResponse struct {
	Events     []Event `json:"events"`
	NextCursor string  `json:"nextCursor"`
}

// ListEvents returns settlements after cursor and the cursor to resume from.
func (c *Client) ListEvents(ctx context.Context, cursor string) ([]Event, string, error) {
	path := "/events"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var out eventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, "", err
	}
	next := out.NextCursor
	if next == "" {
		next = cursor
	}
	return out.Events, next, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("chain: recorder url not configured: %w", shared.ErrExternalService)
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: %s %s: %v: %w", method, path, err, shared.ErrExternalService)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chain: %s %s: status %d: %s: %w", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)), shared.ErrExternalService)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain: decode response: %v: %w", err, shared.ErrExternalService)
	}
	return nil
}
