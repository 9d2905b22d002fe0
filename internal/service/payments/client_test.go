package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		RedirectURL: "https://shop.example/return",
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testOrder() *domain.Order {
	o := domain.NewOrder("webshop")
	o.AddProduct(domain.Product{ID: 1, Key: "p1", Title: "Entry", CostCents: 1250}, 2)
	o.PaymentMethod = domain.PaymentMethodIdeal
	return o
}

func TestCreateCheckout(t *testing.T) {
	var gotAuth string
	var gotReq createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(paymentResponse{
			ID:          "pay_123",
			Status:      "open",
			CheckoutURL: "https://pay.example/pay_123",
		})
	}))
	defer srv.Close()

	o := testOrder()
	checkout, err := newTestClient(srv.URL).CreateCheckout(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, "pay_123", checkout.Reference)
	assert.Equal(t, "https://pay.example/pay_123", checkout.CheckoutURL)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, int64(2500), gotReq.AmountCents)
	assert.Equal(t, o.PublicReference, gotReq.Reference)
	assert.Equal(t, "ideal", gotReq.Method)
	assert.Equal(t, "https://shop.example/return", gotReq.RedirectURL)
}

func TestCreateCheckoutMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paymentResponse{Status: "open"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateCheckout(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrPaymentsInvalid)
}

func TestCreateCheckoutServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateCheckout(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrPaymentsConnection)
}

func TestCreateCheckoutUnreachable(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").CreateCheckout(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrPaymentsConnection)
}

func TestPollStatusMapping(t *testing.T) {
	cases := []struct {
		provider string
		want     domain.OrderStatus
	}{
		{"open", domain.OrderStatusPending},
		{"pending", domain.OrderStatusPending},
		{"paid", domain.OrderStatusPaid},
		{"canceled", domain.OrderStatusCancelled},
		{"cancelled", domain.OrderStatusCancelled},
		{"expired", domain.OrderStatusExpired},
		{"failed", domain.OrderStatusRejected},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/payments/pay_123", r.URL.Path)
			json.NewEncoder(w).Encode(paymentResponse{ID: "pay_123", Status: tc.provider})
		}))

		got, err := newTestClient(srv.URL).PollStatus(context.Background(), "pay_123")
		srv.Close()

		require.NoError(t, err, "status %q", tc.provider)
		assert.Equal(t, tc.want, got, "status %q", tc.provider)
	}
}

func TestPollStatusUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paymentResponse{ID: "pay_123", Status: "weird"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PollStatus(context.Background(), "pay_123")
	assert.ErrorIs(t, err, ErrPaymentsInvalid)
}

func TestClientErrorIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PollStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentsInvalid)
}
