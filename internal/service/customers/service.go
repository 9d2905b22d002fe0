package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

var ErrCustomerNotFound = errors.New("customer not found")

type Store interface {
	Create(ctx context.Context, c *domain.Customer) error
	GetByKey(ctx context.Context, key string) (*domain.Customer, error)
	GetBySub(ctx context.Context, sub string) (*domain.Customer, error)
	GetByRFIDToken(ctx context.Context, token string) (*domain.Customer, error)
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
}

// Service is the customer registry. Customers arrive through an external
// identity provider and are created on first sight.
type Service struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "customers"),
	}
}

// GetOrCreateBySub resolves the customer for an external auth subject,
// registering them on first contact.
func (s *Service) GetOrCreateBySub(ctx context.Context, sub, name, email string) (*domain.Customer, error) {
	const op = "service.customers.GetOrCreateBySub"

	c, err := s.store.GetBySub(ctx, sub)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c = &domain.Customer{
		Key:   uuid.New().String(),
		Name:  name,
		Email: email,
		Sub:   sub,
	}
	if err := s.store.Create(ctx, c); err != nil {
		// Lost a race against a parallel first contact.
		if errors.Is(err, repository.ErrConflict) {
			return s.store.GetBySub(ctx, sub)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("customer registered", "customer", c.Key)

	return c, nil
}

// GetByKey loads a customer by their public key.
func (s *Service) GetByKey(ctx context.Context, key string) (*domain.Customer, error) {
	c, err := s.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetBySub loads an already registered customer by auth subject.
func (s *Service) GetBySub(ctx context.Context, sub string) (*domain.Customer, error) {
	c, err := s.store.GetBySub(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetByRFID resolves a customer from a scanned RFID token, used at
// points of sale.
func (s *Service) GetByRFID(ctx context.Context, token string) (*domain.Customer, error) {
	c, err := s.store.GetByRFIDToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}
