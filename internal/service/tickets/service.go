package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

// codeSpace is the number of distinct six-digit codes per product.
const codeSpace = 1_000_000

// maxDrawAttempts bounds the collision redraw loop for a single code.
const maxDrawAttempts = 100

type Store interface {
	ExistsByProductAndCode(ctx context.Context, productID int64, code string) (bool, error)
	CountByProduct(ctx context.Context, productID int64) (int64, error)
	CountByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error)
	InsertBatch(ctx context.Context, tickets []*domain.Ticket) error
	DeleteByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error)
	GetByKey(ctx context.Context, key string) (*domain.Ticket, error)
	GetByProductAndCode(ctx context.Context, productID int64, code string) (*domain.Ticket, error)
	ListByOrder(ctx context.Context, orderID string) ([]*domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus) error
	UpdateOwnerAndCode(ctx context.Context, ticketID, ownerID int64, code string) error
}

// Catalog resolves the product and event a ticket belongs to, for the
// transfer guards.
type Catalog interface {
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	GetEventByProduct(ctx context.Context, productID int64) (*domain.Event, error)
}

// Service issues and scans tickets. Codes are six-digit strings unique
// within a product.
type Service struct {
	store   Store
	catalog Catalog
	logger  *slog.Logger
}

func New(store Store, catalog Catalog, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  logger.With("component", "tickets"),
	}
}

// CreateByOrder issues one ticket per unit of every order line. It is a
// no-op when the order already has its tickets, so a caller may retry a
// failed paid transition without double-issuing. Nothing is persisted
// unless every ticket received a code.
func (s *Service) CreateByOrder(ctx context.Context, o *domain.Order) ([]*domain.Ticket, error) {
	const op = "service.tickets.CreateByOrder"

	if o.TicketCreated {
		return nil, nil
	}
	if o.OwnerID == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrOwnerRequired)
	}

	// Codes drawn for this batch, before they hit the store.
	drawn := make(map[int64]map[string]struct{})

	var issued []*domain.Ticket
	for _, line := range o.Products {
		for i := int64(0); i < line.Amount; i++ {
			code, err := s.drawCode(ctx, line.ProductID, drawn)
			if err != nil {
				return nil, fmt.Errorf("%s: product %d: %w", op, line.ProductID, err)
			}
			issued = append(issued, &domain.Ticket{
				Key:        uuid.New().String(),
				OrderID:    o.ID,
				OwnerID:    *o.OwnerID,
				ProductID:  line.ProductID,
				UniqueCode: code,
				Status:     domain.TicketStatusOpen,
				Valid:      true,
				CreatedAt:  time.Now(),
			})
		}
	}

	if err := s.store.InsertBatch(ctx, issued); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("tickets issued", "order", o.PublicReference, "count", len(issued))

	return issued, nil
}

// drawCode picks a random free six-digit code for the product. It fails
// with ErrCodesExhausted when the code space is full or the redraw
// budget runs out.
func (s *Service) drawCode(
	ctx context.Context,
	productID int64,
	drawn map[int64]map[string]struct{},
) (string, error) {
	taken := drawn[productID]
	if taken == nil {
		taken = make(map[string]struct{})
		drawn[productID] = taken
	}

	count, err := s.store.CountByProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	if count+int64(len(taken)) >= codeSpace {
		return "", ErrCodesExhausted
	}

	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		code := fmt.Sprintf("%06d", rand.Intn(codeSpace))
		if _, dup := taken[code]; dup {
			continue
		}
		exists, err := s.store.ExistsByProductAndCode(ctx, productID, code)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		taken[code] = struct{}{}
		return code, nil
	}

	return "", ErrCodesExhausted
}

// DeleteByOrder removes the tickets matching the order's (product, owner)
// pairs. Note this keys on owner rather than order: when the same
// customer holds tickets for the same product from another order, those
// are removed too.
func (s *Service) DeleteByOrder(ctx context.Context, o *domain.Order) error {
	const op = "service.tickets.DeleteByOrder"

	if o.OwnerID == nil {
		return fmt.Errorf("%s: %w", op, ErrOwnerRequired)
	}

	for _, line := range o.Products {
		n, err := s.store.DeleteByProductAndOwner(ctx, line.ProductID, *o.OwnerID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Info("tickets removed",
			"order", o.PublicReference, "product", line.ProductID, "count", n)
	}

	return nil
}

// Scan marks the ticket with the given code as scanned. Scanning is
// one-way: a second scan of the same ticket fails.
func (s *Service) Scan(ctx context.Context, productID int64, code string) (*domain.Ticket, error) {
	const op = "service.tickets.Scan"

	t, err := s.store.GetByProductAndCode(ctx, productID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrTicketInvalid)
	}
	if t.Status == domain.TicketStatusScanned {
		return t, fmt.Errorf("%s: %w", op, ErrTicketAlreadyScanned)
	}

	if err := s.store.UpdateStatus(ctx, t.ID, domain.TicketStatusScanned); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.Status = domain.TicketStatusScanned

	return t, nil
}

// Transfer hands the ticket over to another customer and draws a fresh
// code, invalidating the old one. Only the current owner can give a
// ticket away, and only while it is open, valid, and its event has not
// ended yet.
func (s *Service) Transfer(ctx context.Context, key string, from, to *domain.Customer) (*domain.Ticket, error) {
	const op = "service.tickets.Transfer"

	t, err := s.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if t.Status != domain.TicketStatusOpen {
		return nil, fmt.Errorf("%s: already scanned: %w", op, ErrTicketNotTransferable)
	}
	if !t.Valid {
		return nil, fmt.Errorf("%s: not valid: %w", op, ErrTicketNotTransferable)
	}
	if t.OwnerID != from.ID {
		return nil, fmt.Errorf("%s: not the owner: %w", op, ErrTicketNotTransferable)
	}
	if from.ID == to.ID {
		return nil, fmt.Errorf("%s: same customer: %w", op, ErrTicketNotTransferable)
	}

	event, err := s.catalog.GetEventByProduct(ctx, t.ProductID)
	switch {
	case err == nil:
		if time.Now().After(event.Ends) {
			return nil, fmt.Errorf("%s: event has ended: %w", op, ErrTicketNotTransferable)
		}
	case errors.Is(err, repository.ErrNotFound):
		// Product without an event, nothing to check.
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.catalog.GetProductByID(ctx, t.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.MaxSoldPerCustomer != nil {
		held, err := s.store.CountByProductAndOwner(ctx, t.ProductID, to.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if held+1 > *p.MaxSoldPerCustomer {
			return nil, fmt.Errorf("%s: recipient at the customer limit: %w", op, ErrTicketNotTransferable)
		}
	}

	code, err := s.drawCode(ctx, t.ProductID, make(map[int64]map[string]struct{}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpdateOwnerAndCode(ctx, t.ID, to.ID, code); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.OwnerID = to.ID
	t.UniqueCode = code

	s.logger.Info("ticket transferred", "ticket", t.Key, "from", from.Key, "to", to.Key)

	return t, nil
}

// ListByOrder returns the tickets belonging to the order.
func (s *Service) ListByOrder(ctx context.Context, o *domain.Order) ([]*domain.Ticket, error) {
	const op = "service.tickets.ListByOrder"

	ts, err := s.store.ListByOrder(ctx, o.ID.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ts, nil
}

// CountByProductAndOwner reports how many tickets the owner already
// holds for the product.
func (s *Service) CountByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error) {
	return s.store.CountByProductAndOwner(ctx, productID, ownerID)
}
