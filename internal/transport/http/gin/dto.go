package httpgin

import (
	"time"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

type OrderLineInput struct {
	ProductKey string `json:"product_key" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	Lines     []OrderLineInput `json:"lines" binding:"required,min=1,dive"`
	CreatedBy string           `json:"created_by"`
}

type AssignOrderRequest struct {
	Sub   string `json:"sub" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type CheckoutRequest struct {
	Method string `json:"method" binding:"required,oneof=cash card ideal other"`
}

type CheckoutResponse struct {
	Order       OrderResponse `json:"order"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

type PaymentWebhookRequest struct {
	Reference string `json:"reference" binding:"required"`
}

type TransferTicketRequest struct {
	FromSub string `json:"from_sub" binding:"required"`
	ToSub   string `json:"to_sub" binding:"required"`
	ToName  string `json:"to_name" binding:"required"`
	ToEmail string `json:"to_email" binding:"required,email"`
}

type ScanTicketRequest struct {
	ProductKey string `json:"product_key" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

type CreateEventRequest struct {
	Title       string                `json:"title" binding:"required"`
	Description string                `json:"description"`
	Location    string                `json:"location"`
	OrganizedBy string                `json:"organized_by"`
	StartsAt    string                `json:"starts_at" binding:"required"`
	EndsAt      string                `json:"ends_at" binding:"required"`
	Products    []CreateProductInput  `json:"products" binding:"dive"`
}

type CreateProductInput struct {
	Title              string `json:"title" binding:"required"`
	Description        string `json:"description"`
	CostCents          int64  `json:"cost_cents" binding:"gte=0"`
	MaxSold            *int64 `json:"max_sold"`
	MaxSoldPerCustomer *int64 `json:"max_sold_per_customer"`
}

type CreateWebhookRequest struct {
	PayloadURL string   `json:"payload_url" binding:"required,url"`
	Secret     string   `json:"secret" binding:"required"`
	Triggers   []string `json:"triggers" binding:"required,min=1"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderLineResponse struct {
	ProductKey string `json:"product_key"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Amount     int64  `json:"amount"`
}

type OrderResponse struct {
	Reference     string              `json:"reference"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	AmountCents   int64               `json:"amount_cents"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	OwnerKey      string              `json:"owner_key,omitempty"`
	Lines         []OrderLineResponse `json:"lines"`
}

type TicketResponse struct {
	Key        string `json:"key"`
	ProductKey string `json:"product_key,omitempty"`
	UniqueCode string `json:"unique_code"`
	Status     string `json:"status"`
	Valid      bool   `json:"valid"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		Reference:     o.PublicReference,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		AmountCents:   o.AmountCents,
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
	}
	if o.Owner != nil {
		resp.OwnerKey = o.Owner.Key
	}
	for _, line := range o.Products {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ProductKey: line.ProductKey,
			Title:      line.Title,
			PriceCents: line.PriceCents,
			Amount:     line.Amount,
		})
	}
	return resp
}

func toTicketResponses(ts []*domain.Ticket, productKeys map[int64]string) []TicketResponse {
	out := make([]TicketResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, TicketResponse{
			Key:        t.Key,
			ProductKey: productKeys[t.ProductID],
			UniqueCode: t.UniqueCode,
			Status:     string(t.Status),
			Valid:      t.Valid,
		})
	}
	return out
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
