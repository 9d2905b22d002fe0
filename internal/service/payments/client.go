package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

// Config configures the payment provider client.
type Config struct {
	BaseURL     string
	APIKey      string
	RedirectURL string // where the provider sends the customer after checkout
}

// Client talks to the external payment provider over its REST API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With("component", "payments"),
	}
}

// Checkout is a provider-side payment created for an order.
type Checkout struct {
	Reference   string // provider reference, stored on the order
	CheckoutURL string // where to send the customer
}

type createRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
	Method      string `json:"method"`
	RedirectURL string `json:"redirect_url"`
}

type paymentResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout registers a payment for the order and returns where the
// customer should be redirected.
func (c *Client) CreateCheckout(ctx context.Context, o *domain.Order) (*Checkout, error) {
	const op = "service.payments.CreateCheckout"

	body, err := json.Marshal(createRequest{
		AmountCents: o.AmountCents,
		Currency:    "EUR",
		Description: fmt.Sprintf("Order %s (%d tickets)", o.PublicReference, o.TicketCount()),
		Reference:   o.PublicReference,
		Method:      string(o.PaymentMethod),
		RedirectURL: c.cfg.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var resp paymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.ID == "" || resp.CheckoutURL == "" {
		return nil, fmt.Errorf("%s: %w: missing id or checkout url", op, ErrPaymentsInvalid)
	}

	c.logger.Info("checkout created", "order", o.PublicReference, "provider_ref", resp.ID)

	return &Checkout{Reference: resp.ID, CheckoutURL: resp.CheckoutURL}, nil
}

// PollStatus fetches the provider-side payment and maps its status onto
// an order status.
func (c *Client) PollStatus(ctx context.Context, providerRef string) (domain.OrderStatus, error) {
	const op = "service.payments.PollStatus"

	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+providerRef, nil, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	status, err := mapStatus(resp.Status)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return status, nil
}

func mapStatus(provider string) (domain.OrderStatus, error) {
	switch provider {
	case "open", "pending":
		return domain.OrderStatusPending, nil
	case "paid":
		return domain.OrderStatusPaid, nil
	case "canceled", "cancelled":
		return domain.OrderStatusCancelled, nil
	case "expired":
		return domain.OrderStatusExpired, nil
	case "failed":
		return domain.OrderStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrPaymentsInvalid, provider)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentsConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: provider responded %d", ErrPaymentsConnection, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: provider responded %d: %s", ErrPaymentsInvalid, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentsInvalid, err)
	}

	return nil
}
