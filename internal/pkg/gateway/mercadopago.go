package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.mercadopago.com"

// Client talks to the MercadoPago REST API. Only the two calls the ledger
// needs are implemented: creating a checkout preference and fetching a
// payment by id.
type Client struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

// Metadata is echoed back verbatim by the gateway on notification and is the
// only channel carrying purchase details from checkout to reconciliation.
// The gateway normalizes metadata keys to snake_case, hence the explicit
// json tags.
type Metadata struct {
	Username string `json:"username" validate:"required"`
	Days     int    `json:"days" validate:"min=1"`
	Months   int    `json:"month" validate:"min=1"`
	Vip      int    `json:"vip" validate:"min=1"`
	RandomID string `json:"random_id" validate:"required"`
	Svname   string `json:"svname" validate:"required"`
	Svnum    int    `json:"svnum" validate:"min=0"`
}

// PreferenceItem is the single line item of a checkout preference.
type PreferenceItem struct {
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// PreferenceRequest is the outbound create-preference call.
type PreferenceRequest struct {
	NotificationURL string           `json:"notification_url"`
	Items           []PreferenceItem `json:"items"`
	Metadata        Metadata         `json:"metadata"`
}

// Payment is the subset of a fetched gateway payment the ledger consumes.
type Payment struct {
	ID           int64    `json:"id"`
	Status       string   `json:"status"`
	StatusDetail string   `json:"status_detail"`
	Metadata     Metadata `json:"metadata"`
	Payer        struct {
		Email string `json:"email"`
	} `json:"payer"`
	TransactionDetails struct {
		TotalPaidAmount   float64 `json:"total_paid_amount"`
		NetReceivedAmount float64 `json:"net_received_amount"`
	} `json:"transaction_details"`
}

// Approved reports whether the payment settled. Anything else is a no-op for
// the ledger, not an error.
func (p *Payment) Approved() bool {
	return p.Status == "approved" && p.StatusDetail == "accredited"
}

// NewClientFromEnv builds a client from MP_SECRET_ACCESS_TOKEN and an
// optional MP_API_BASE_URL override.
func NewClientFromEnv() *Client {
	return &Client{
		AccessToken: strings.TrimSpace(env.GetEnv("MP_SECRET_ACCESS_TOKEN", "")),
		APIBaseURL:  strings.TrimRight(env.GetEnv("MP_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreatePreference creates a checkout preference and returns its id.
func (c *Client) CreatePreference(ctx context.Context, pref PreferenceRequest) (string, error) {
	if c.AccessToken == "" {
		return "", errors.New("MP_SECRET_ACCESS_TOKEN is not configured")
	}

	payload, err := json.Marshal(pref)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create preference failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("create preference returned no id")
	}
	return out.ID, nil
}

// GetPayment fetches a payment by id. A timed-out or failed fetch is an
// error; callers treat it as "payment not found".
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if c.AccessToken == "" {
		return nil, errors.New("MP_SECRET_ACCESS_TOKEN is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("payment id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v1/payments/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch payment %s failed: status=%d body=%s", id, resp.StatusCode, string(body))
	}

	var out Payment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
