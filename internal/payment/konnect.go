package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/tourbooking/config"
)

// InitRequest is the body of a Konnect init-payment call.
type InitRequest struct {
	ReceiverWalletID       string   `json:"receiverWalletId"`
	Token                  string   `json:"token"`
	Amount                 int64    `json:"amount"`
	Type                   string   `json:"type"`
	Description            string   `json:"description"`
	AcceptedPaymentMethods []string `json:"acceptedPaymentMethods"`
	Lifespan               int      `json:"lifespan"`
	CheckoutForm           bool     `json:"checkoutForm"`
	AddPaymentFeesToAmount bool     `json:"addPaymentFeesToAmount"`
	FirstName              string   `json:"firstName"`
	LastName               string   `json:"lastName"`
	PhoneNumber            string   `json:"phoneNumber"`
	Email                  string   `json:"email"`
	OrderID                string   `json:"orderId"`
	Webhook                string   `json:"webhook"`
	Theme                  string   `json:"theme"`
}

type InitResponse struct {
	PayURL     string `json:"payUrl"`
	PaymentRef string `json:"paymentRef"`
}

// Gateway payment statuses as reported by GET /payments/{ref}.
const (
	GatewayStatusCompleted = "completed"
	GatewayStatusPending   = "pending"
	GatewayStatusFailed    = "failed"
	GatewayStatusCancelled = "cancelled"
)

type PaymentDetails struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	OrderID string `json:"orderId"`
}

type detailsEnvelope struct {
	Payment PaymentDetails `json:"payment"`
}

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("konnect responded %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Konnect v2 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

func (c *Client) InitPayment(ctx context.Context, req InitRequest) (*InitResponse, error) {
	var out InitResponse
	if err := c.do(ctx, http.MethodPost, "/payments/init-payment", req, &out); err != nil {
		return nil, err
	}
	if out.PayURL == "" {
		return nil, fmt.Errorf("konnect response for order %s has no payUrl", req.OrderID)
	}
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentRef string) (*PaymentDetails, error) {
	var out detailsEnvelope
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentRef, nil, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
