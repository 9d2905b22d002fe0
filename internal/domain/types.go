package domain

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID          int64
	Key         string
	Title       string
	Description string
	Location    string
	OrganizedBy string
	Starts      time.Time
	Ends        time.Time
	Products    []Product
}

type Product struct {
	ID                 int64
	EventID            int64
	Key                string
	Title              string
	Description        string
	CostCents          int64
	MaxSold            *int64
	MaxSoldPerCustomer *int64
	Sold               int64
	Reserved           int64
}

// Available reports how many units can still be reserved. A nil MaxSold
// means the product is uncapped and nil is returned.
func (p Product) Available() *int64 {
	if p.MaxSold == nil {
		return nil
	}

	left := *p.MaxSold - p.Sold - p.Reserved
	if left < 0 {
		left = 0
	}

	return &left
}

type Customer struct {
	ID        int64
	Key       string
	Name      string
	Email     string
	Sub       string // external auth subject
	RFIDToken string
}

type Order struct {
	ID                uuid.UUID
	PublicReference   string
	OwnerID           *int64
	Owner             *Customer
	AmountCents       int64
	CreatedBy         string
	CreatedAt         time.Time
	PaidAt            *time.Time
	Status            OrderStatus
	PaymentMethod     PaymentMethod
	TicketCreated     bool
	ProviderReference string
	Version           int64
	Products          []OrderProduct
}

// NewOrder returns an order in the initial anonymous state with a fresh
// public reference.
func NewOrder(createdBy string) *Order {
	return &Order{
		ID:              uuid.New(),
		PublicReference: uuid.New().String(),
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
		Status:          OrderStatusAnonymous,
	}
}

// AddProduct appends a line item with a price snapshot and keeps the order
// amount in sync.
func (o *Order) AddProduct(p Product, amount int64) {
	o.Products = append(o.Products, OrderProduct{
		ProductID:  p.ID,
		ProductKey: p.Key,
		Title:      p.Title,
		PriceCents: p.CostCents,
		Amount:     amount,
	})
	o.UpdateAmount()
}

// UpdateAmount recomputes the order amount from the line-item snapshots.
func (o *Order) UpdateAmount() {
	var total int64
	for _, op := range o.Products {
		total += op.PriceCents * op.Amount
	}
	o.AmountCents = total
}

// TicketCount is the number of tickets a fully paid order yields.
func (o *Order) TicketCount() int64 {
	var n int64
	for _, op := range o.Products {
		n += op.Amount
	}
	return n
}

type OrderProduct struct {
	ID         int64
	OrderID    uuid.UUID
	ProductID  int64
	ProductKey string
	Title      string
	PriceCents int64 // snapshot, never updated after creation
	Amount     int64
}

type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusScanned TicketStatus = "scanned"
)

type Ticket struct {
	ID         int64
	Key        string
	OrderID    uuid.UUID
	OwnerID    int64
	ProductID  int64
	UniqueCode string // unique per product, not globally
	Status     TicketStatus
	Valid      bool
	CreatedAt  time.Time
}

type WebhookTrigger string

const (
	TriggerEventCreateUpdate   WebhookTrigger = "event.create_update"
	TriggerEventDelete         WebhookTrigger = "event.delete"
	TriggerProductCreateUpdate WebhookTrigger = "product.create_update"
	TriggerProductDelete       WebhookTrigger = "product.delete"
)

type Webhook struct {
	ID         int64
	PayloadURL string
	Secret     string
	Active     bool
	Triggers   []WebhookTrigger
}

// SubscribedTo reports whether the webhook listens for the given trigger.
func (w Webhook) SubscribedTo(trigger WebhookTrigger) bool {
	for _, t := range w.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

type WebhookTaskStatus string

const (
	WebhookTaskPending WebhookTaskStatus = "pending"
	WebhookTaskSuccess WebhookTaskStatus = "success"
	WebhookTaskError   WebhookTaskStatus = "error"
)

type WebhookTask struct {
	ID        int64
	Trigger   WebhookTrigger
	WebhookID int64
	Payload   []byte // serialized JSON
	CreatedAt time.Time
	Status    WebhookTaskStatus
	Error     string
}
