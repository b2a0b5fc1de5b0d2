package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// 決済ゲートウェイ（ホスト型チェックアウト）のクライアント
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type CheckoutRequest struct {
	Amount          decimal.Decimal
	Currency        string
	SuccessURL      string
	FailureURL      string
	WebhookEndpoint string
	Locale          string
	// order_id はここに入れる。webhookで注文を探す唯一の手がかり
	Metadata map[string]string
}

type CheckoutSession struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
}

// ゲートウェイが2xx以外を返した
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.StatusCode)
}

type checkoutPayload struct {
	Amount          json.Number       `json:"amount"`
	Currency        string            `json:"currency"`
	SuccessURL      string            `json:"success_url"`
	FailureURL      string            `json:"failure_url,omitempty"`
	WebhookEndpoint string            `json:"webhook_endpoint,omitempty"`
	Locale          string            `json:"locale,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (c *Client) CreateCheckout(ctx context.Context, in CheckoutRequest) (CheckoutSession, error) {
	body, err := json.Marshal(checkoutPayload{
		Amount:          json.Number(in.Amount.Round(2).String()),
		Currency:        in.Currency,
		SuccessURL:      in.SuccessURL,
		FailureURL:      in.FailureURL,
		WebhookEndpoint: in.WebhookEndpoint,
		Locale:          in.Locale,
		Metadata:        in.Metadata,
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return CheckoutSession{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CheckoutSession{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return CheckoutSession{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var s CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if s.CheckoutURL == "" {
		return CheckoutSession{}, fmt.Errorf("gateway response has no checkout_url")
	}
	return s, nil
}
