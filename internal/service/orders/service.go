package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
	"github.com/nightjarlabs/boxoffice/internal/service/payments"
)

// defaultUpdateAttempts bounds the optimistic-lock retry loop per status
// change.
const defaultUpdateAttempts = 3

type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByReference(ctx context.Context, reference string) (*domain.Order, error)
	GetByProviderReference(ctx context.Context, reference string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error)
	ListByStatusCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProductStore interface {
	GetProductByKey(ctx context.Context, key string) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	Reserve(ctx context.Context, productID, amount int64) error
	ReleaseReservation(ctx context.Context, productID, amount int64) error
	CommitSale(ctx context.Context, productID, amount int64) error
	RevertSale(ctx context.Context, productID, amount int64) error
}

type TicketIssuer interface {
	CreateByOrder(ctx context.Context, o *domain.Order) ([]*domain.Ticket, error)
	DeleteByOrder(ctx context.Context, o *domain.Order) error
	CountByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error)
}

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o *domain.Order, tickets []*domain.Ticket) error
	SendOrderReservation(ctx context.Context, o *domain.Order) error
	SendOrderPaymentError(ctx context.Context, o *domain.Order) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, trigger domain.WebhookTrigger, object any) error
}

// ChangeNotifier announces order transitions to other processes.
type ChangeNotifier interface {
	PublishOrderChanged(ctx context.Context, reference string) error
}

type PaymentProvider interface {
	CreateCheckout(ctx context.Context, o *domain.Order) (*payments.Checkout, error)
	PollStatus(ctx context.Context, providerRef string) (domain.OrderStatus, error)
}

// Line is one requested position of a new order.
type Line struct {
	ProductKey string
	Amount     int64
}

// Service is the order engine. Every status change goes through
// UpdateStatus, which owns stock accounting, ticket issuance and the
// side effects attached to a transition.
type Service struct {
	store    OrderStore
	products ProductStore
	tickets  TicketIssuer
	mailer   Mailer
	webhooks Dispatcher
	provider PaymentProvider
	notifier ChangeNotifier // optional
	logger   *slog.Logger

	updateAttempts int
}

func New(
	store OrderStore,
	products ProductStore,
	tickets TicketIssuer,
	mailer Mailer,
	webhooks Dispatcher,
	provider PaymentProvider,
	notifier ChangeNotifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:          store,
		products:       products,
		tickets:        tickets,
		mailer:         mailer,
		webhooks:       webhooks,
		provider:       provider,
		notifier:       notifier,
		logger:         logger.With("component", "orders"),
		updateAttempts: defaultUpdateAttempts,
	}
}

// Create builds an anonymous order from the requested lines, snapshotting
// the current product prices. No stock is touched yet.
func (s *Service) Create(ctx context.Context, lines []Line, createdBy string) (*domain.Order, error) {
	const op = "service.orders.Create"

	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrOrderEmpty)
	}

	o := domain.NewOrder(createdBy)
	for _, line := range lines {
		if line.Amount <= 0 {
			return nil, fmt.Errorf("%s: %w: amount must be positive", op, ErrOrderInvalid)
		}
		p, err := s.products.GetProductByKey(ctx, line.ProductKey)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s: %q: %w", op, line.ProductKey, ErrProductNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		o.AddProduct(*p, line.Amount)
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("order created",
		"order", o.PublicReference, "lines", len(o.Products), "amount_cents", o.AmountCents)

	return o, nil
}

// Assign attaches a customer to an anonymous order. The per-customer
// product caps are enforced here, before any payment path opens up.
func (s *Service) Assign(ctx context.Context, reference string, customer *domain.Customer) (*domain.Order, error) {
	const op = "service.orders.Assign"

	o, err := s.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !o.Status.CanTransitionTo(domain.OrderStatusAssigned) {
		return nil, fmt.Errorf("%s: %w", op,
			&InvalidTransitionError{From: o.Status, To: domain.OrderStatusAssigned})
	}

	if err := s.checkCustomerLimits(ctx, o, customer.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	o.OwnerID = &customer.ID
	o.Owner = customer
	o.Status = domain.OrderStatusAssigned

	if err := s.store.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}

// Checkout starts payment for an assigned order. Cash settles the order
// immediately. Online methods reserve stock, register a provider
// checkout and hand back the URL to redirect the customer to. When the
// provider call fails the order is cancelled again so the stock frees
// up.
func (s *Service) Checkout(ctx context.Context, reference string, method domain.PaymentMethod) (*domain.Order, string, error) {
	const op = "service.orders.Checkout"

	o, err := s.GetByReference(ctx, reference)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if o.OwnerID == nil {
		return nil, "", fmt.Errorf("%s: %w", op, ErrCustomerRequired)
	}

	if err := s.checkCustomerLimits(ctx, o, *o.OwnerID); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	o.PaymentMethod = method

	if method == domain.PaymentMethodCash {
		if err := s.UpdateStatus(ctx, o, method.PaidStatus()); err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		return o, "", nil
	}

	// Online payment: hold the stock first, then involve the provider.
	if err := s.UpdateStatus(ctx, o, domain.OrderStatusPending); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	checkout, err := s.provider.CreateCheckout(ctx, o)
	if err != nil {
		if merr := s.mailer.SendOrderPaymentError(ctx, o); merr != nil {
			s.logger.Warn("payment error mail failed", "order", o.PublicReference, "error", merr)
		}
		if cerr := s.UpdateStatus(ctx, o, domain.OrderStatusCancelled); cerr != nil {
			s.logger.Error("cancel after checkout failure failed",
				"order", o.PublicReference, "error", cerr)
		}
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	o.ProviderReference = checkout.Reference
	if err := s.store.Update(ctx, o); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return o, checkout.CheckoutURL, nil
}

// PlaceReservation moves an assigned order into the reservation state,
// holding stock until the customer pays or the reservation expires.
func (s *Service) PlaceReservation(ctx context.Context, reference string) (*domain.Order, error) {
	const op = "service.orders.PlaceReservation"

	o, err := s.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if o.OwnerID == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrCustomerRequired)
	}

	if err := s.checkCustomerLimits(ctx, o, *o.OwnerID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.UpdateStatus(ctx, o, domain.OrderStatusReservation); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}

// Cancel moves the order to cancelled, releasing stock or reverting a
// sale depending on where it was.
func (s *Service) Cancel(ctx context.Context, reference string) (*domain.Order, error) {
	const op = "service.orders.Cancel"

	o, err := s.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.UpdateStatus(ctx, o, domain.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}

// GetByReference loads an order by its public reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	o, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// UpdateStatus transitions the order to next, running the side effects
// the transition implies. It re-reads the order and retries on
// concurrent modification; stock taken for a failed attempt is handed
// back before retrying.
//
// On success the order argument reflects the stored state.
func (s *Service) UpdateStatus(ctx context.Context, order *domain.Order, next domain.OrderStatus) error {
	const op = "service.orders.UpdateStatus"

	if order.Status == next {
		return nil
	}

	for attempt := 0; attempt < s.updateAttempts; attempt++ {
		cur, err := s.store.GetByReference(ctx, order.PublicReference)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		// Carry over fields the caller set but has not persisted yet.
		cur.PaymentMethod = order.PaymentMethod
		if cur.Owner == nil {
			cur.Owner = order.Owner
		}

		if cur.Status == next {
			*order = *cur
			return nil
		}
		if !cur.Status.CanTransitionTo(next) {
			return fmt.Errorf("%s: %w", op, &InvalidTransitionError{From: cur.Status, To: next})
		}

		prev := cur.Status
		enteringPaid := next.IsPaid() && !prev.IsPaid()
		leavingPaid := prev.IsPaid() && !next.IsPaid()
		needsStock := (next.HoldsStock() || next.IsPaid()) && !prev.HoldsStock() && !prev.IsPaid()
		releasing := prev.HoldsStock() && !next.HoldsStock() && !next.IsPaid()

		if needsStock {
			if err := s.reserveAll(ctx, cur); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		cur.Status = next
		if enteringPaid {
			now := time.Now()
			cur.PaidAt = &now
		}

		if err := s.store.Update(ctx, cur); err != nil {
			if needsStock {
				s.releaseAll(ctx, cur)
			}
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug("order update conflict, retrying",
					"order", cur.PublicReference, "attempt", attempt+1)
				continue
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		switch {
		case enteringPaid:
			s.commitAll(ctx, cur)
			if err := s.issueTickets(ctx, cur); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		case leavingPaid:
			s.revertAll(ctx, cur)
			s.removeTickets(ctx, cur)
		case releasing:
			s.releaseAll(ctx, cur)
		}

		if next == domain.OrderStatusReservation {
			if err := s.mailer.SendOrderReservation(ctx, cur); err != nil {
				s.logger.Warn("reservation mail failed", "order", cur.PublicReference, "error", err)
			}
		}

		// Stock-visible transitions notify webhook subscribers about the
		// affected products.
		if next.IsPaid() || next.IsTerminal() {
			s.notifyProductsChanged(ctx, cur)
		}

		if s.notifier != nil {
			_ = s.notifier.PublishOrderChanged(ctx, cur.PublicReference)
		}

		s.logger.Info("order transitioned",
			"order", cur.PublicReference, "from", prev, "to", next)

		*order = *cur
		return nil
	}

	return fmt.Errorf("%s: %w", op, ErrOrderConflict)
}

// HandlePaymentUpdate polls the provider for the payment the reference
// points at and applies the resulting transition, if any.
func (s *Service) HandlePaymentUpdate(ctx context.Context, providerRef string) (*domain.Order, error) {
	const op = "service.orders.HandlePaymentUpdate"

	o, err := s.store.GetByProviderReference(ctx, providerRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status, err := s.provider.PollStatus(ctx, providerRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if status == domain.OrderStatusPaid {
		// Land in the paid variant matching how the customer paid.
		status = o.PaymentMethod.PaidStatus()
	}
	if status == o.Status || status == domain.OrderStatusPending {
		return o, nil
	}

	if err := s.UpdateStatus(ctx, o, status); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return o, nil
}

// ExpireOverdueReservations transitions reservations older than maxAge to
// expired, releasing their stock. It keeps going past individual
// failures and reports how many orders it expired.
func (s *Service) ExpireOverdueReservations(ctx context.Context, maxAge time.Duration) (int, error) {
	const op = "service.orders.ExpireOverdueReservations"

	cutoff := time.Now().Add(-maxAge)
	overdue, err := s.store.ListByStatusCreatedBefore(ctx, cutoff, domain.OrderStatusReservation)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	expired := 0
	for _, o := range overdue {
		if err := s.UpdateStatus(ctx, o, domain.OrderStatusExpired); err != nil {
			s.logger.Error("expire reservation failed", "order", o.PublicReference, "error", err)
			continue
		}
		expired++
	}

	return expired, nil
}

// CleanupAbandoned deletes orders that never reached a paid or held
// state, plus cancelled ones, regardless of age. Paid and expired orders
// are kept for the books. A pending order still holds a stock
// reservation, so its counters are handed back once the row is gone.
func (s *Service) CleanupAbandoned(ctx context.Context) (int, error) {
	const op = "service.orders.CleanupAbandoned"

	stale, err := s.store.ListByStatus(ctx,
		domain.OrderStatusAnonymous,
		domain.OrderStatusAssigned,
		domain.OrderStatusCancelled,
		domain.OrderStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	deleted := 0
	for _, o := range stale {
		if err := s.store.Delete(ctx, o.ID); err != nil {
			s.logger.Error("cleanup delete failed", "order", o.PublicReference, "error", err)
			continue
		}
		if o.Status.HoldsStock() {
			s.releaseAll(ctx, o)
		}
		deleted++
	}

	return deleted, nil
}

// PollPendingPayments asks the provider about every pending order that
// has a checkout registered and applies the answers.
func (s *Service) PollPendingPayments(ctx context.Context) (int, error) {
	const op = "service.orders.PollPendingPayments"

	pending, err := s.store.ListByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	updated := 0
	for _, o := range pending {
		if o.ProviderReference == "" {
			continue
		}
		if _, err := s.HandlePaymentUpdate(ctx, o.ProviderReference); err != nil {
			s.logger.Warn("payment poll failed", "order", o.PublicReference, "error", err)
			continue
		}
		updated++
	}

	return updated, nil
}

// checkCustomerLimits rejects the order when any line would push the
// customer over a product's per-customer cap, counting tickets they
// already hold.
func (s *Service) checkCustomerLimits(ctx context.Context, o *domain.Order, customerID int64) error {
	for _, line := range o.Products {
		p, err := s.products.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if p.MaxSoldPerCustomer == nil {
			continue
		}
		owned, err := s.tickets.CountByProductAndOwner(ctx, p.ID, customerID)
		if err != nil {
			return err
		}
		if owned+line.Amount > *p.MaxSoldPerCustomer {
			left := *p.MaxSoldPerCustomer - owned
			if left < 0 {
				left = 0
			}
			return &ExceedsCustomerLimitError{ProductTitle: p.Title, Left: left}
		}
	}
	return nil
}

// reserveAll takes stock for every line atomically per product. On a
// failure the lines already taken are handed back.
func (s *Service) reserveAll(ctx context.Context, o *domain.Order) error {
	for i, line := range o.Products {
		if err := s.products.Reserve(ctx, line.ProductID, line.Amount); err != nil {
			for _, held := range o.Products[:i] {
				if rerr := s.products.ReleaseReservation(ctx, held.ProductID, held.Amount); rerr != nil {
					s.logger.Error("release after failed reserve failed",
						"product", held.ProductID, "error", rerr)
				}
			}
			if errors.Is(err, repository.ErrSoldOut) {
				return fmt.Errorf("%w: %s", ErrProductSoldOut, line.Title)
			}
			return err
		}
	}
	return nil
}

func (s *Service) releaseAll(ctx context.Context, o *domain.Order) {
	for _, line := range o.Products {
		if err := s.products.ReleaseReservation(ctx, line.ProductID, line.Amount); err != nil {
			s.logger.Error("release reservation failed", "product", line.ProductID, "error", err)
		}
	}
}

func (s *Service) commitAll(ctx context.Context, o *domain.Order) {
	for _, line := range o.Products {
		if err := s.products.CommitSale(ctx, line.ProductID, line.Amount); err != nil {
			s.logger.Error("commit sale failed", "product", line.ProductID, "error", err)
		}
	}
}

func (s *Service) revertAll(ctx context.Context, o *domain.Order) {
	for _, line := range o.Products {
		if err := s.products.RevertSale(ctx, line.ProductID, line.Amount); err != nil {
			s.logger.Error("revert sale failed", "product", line.ProductID, "error", err)
		}
	}
}

// issueTickets creates the order's tickets and only then flips the
// issued flag, so a crash in between leaves a retryable order instead of
// phantom tickets.
func (s *Service) issueTickets(ctx context.Context, o *domain.Order) error {
	tickets, err := s.tickets.CreateByOrder(ctx, o)
	if err != nil {
		return err
	}
	if o.TicketCreated {
		return nil
	}

	o.TicketCreated = true
	if err := s.store.Update(ctx, o); err != nil {
		return err
	}

	if err := s.mailer.SendOrderConfirmation(ctx, o, tickets); err != nil {
		s.logger.Warn("confirmation mail failed", "order", o.PublicReference, "error", err)
	}

	return nil
}

func (s *Service) removeTickets(ctx context.Context, o *domain.Order) {
	if !o.TicketCreated {
		return
	}
	if err := s.tickets.DeleteByOrder(ctx, o); err != nil {
		s.logger.Error("ticket removal failed", "order", o.PublicReference, "error", err)
		return
	}
	o.TicketCreated = false
	if err := s.store.Update(ctx, o); err != nil {
		s.logger.Error("clear ticket flag failed", "order", o.PublicReference, "error", err)
	}
}

func (s *Service) notifyProductsChanged(ctx context.Context, o *domain.Order) {
	for _, line := range o.Products {
		p, err := s.products.GetProductByID(ctx, line.ProductID)
		if err != nil {
			s.logger.Warn("product lookup for webhook failed", "product", line.ProductID, "error", err)
			continue
		}
		if err := s.webhooks.Dispatch(ctx, domain.TriggerProductCreateUpdate, *p); err != nil {
			s.logger.Warn("webhook dispatch failed", "product", p.Key, "error", err)
		}
	}
}
