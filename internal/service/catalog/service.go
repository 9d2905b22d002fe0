package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
	postgresrepo "github.com/nightjarlabs/boxoffice/internal/repository/postgres"
	redisrepo "github.com/nightjarlabs/boxoffice/internal/repository/redis"
	"github.com/nightjarlabs/boxoffice/internal/uow"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrProductNotFound = errors.New("product not found")
)

const (
	eventCacheTTL        = 5 * time.Minute
	availabilityCacheTTL = 15 * time.Second
)

type Dispatcher interface {
	Dispatch(ctx context.Context, trigger domain.WebhookTrigger, object any) error
}

// Service manages the event and product catalog. Mutations run in a
// transaction; cache invalidation, pub/sub fanout and webhook dispatch
// happen after commit.
type Service struct {
	store    *postgresrepo.Store
	uow      *uow.UoW
	cache    *redisrepo.Cache
	pubsub   *redisrepo.ChangesPubSub
	webhooks Dispatcher
	logger   *slog.Logger
}

func New(
	store *postgresrepo.Store,
	u *uow.UoW,
	cache *redisrepo.Cache,
	pubsub *redisrepo.ChangesPubSub,
	webhooks Dispatcher,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		uow:      u,
		cache:    cache,
		pubsub:   pubsub,
		webhooks: webhooks,
		logger:   logger.With("component", "catalog"),
	}
}

// CreateEvent stores a new event together with its products.
func (s *Service) CreateEvent(ctx context.Context, e *domain.Event) error {
	const op = "service.catalog.CreateEvent"

	if e.Key == "" {
		e.Key = uuid.New().String()
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		repo := s.store.Catalog().With(tx)
		if err := repo.CreateEvent(ctx, e); err != nil {
			return err
		}
		for i := range e.Products {
			p := &e.Products[i]
			if p.Key == "" {
				p.Key = uuid.New().String()
			}
			p.EventID = e.ID
			if err := repo.CreateProduct(ctx, p); err != nil {
				return err
			}
		}

		after(func(ctx context.Context) { s.eventChanged(ctx, *e) })
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event created", "event", e.Key, "products", len(e.Products))

	return nil
}

// UpdateEvent updates the event's own fields. Products are managed
// through AddProduct and DeleteProduct.
func (s *Service) UpdateEvent(ctx context.Context, e *domain.Event) error {
	const op = "service.catalog.UpdateEvent"

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).UpdateEvent(ctx, e); err != nil {
			return err
		}
		after(func(ctx context.Context) { s.eventChanged(ctx, *e) })
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteEvent removes the event and its products.
func (s *Service) DeleteEvent(ctx context.Context, key string) error {
	const op = "service.catalog.DeleteEvent"

	e, err := s.GetEvent(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).DeleteEvent(ctx, key); err != nil {
			return err
		}
		after(func(ctx context.Context) {
			if err := s.cache.InvalidateEvent(ctx, key); err != nil {
				s.logger.Warn("cache invalidation failed", "event", key, "error", err)
			}
			if err := s.pubsub.PublishEventChanged(ctx, key); err != nil {
				s.logger.Warn("pubsub publish failed", "event", key, "error", err)
			}
			if err := s.webhooks.Dispatch(ctx, domain.TriggerEventDelete, *e); err != nil {
				s.logger.Warn("webhook dispatch failed", "event", key, "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("event deleted", "event", key)

	return nil
}

// GetEvent loads an event with its products, read through the cache.
func (s *Service) GetEvent(ctx context.Context, key string) (*domain.Event, error) {
	const op = "service.catalog.GetEvent"

	e, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventSummary(key), eventCacheTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.store.Catalog().GetEventByKey(ctx, key)
			if err != nil {
				return domain.Event{}, err
			}
			return *e, nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &e, nil
}

// AddProduct attaches a new product to an existing event.
func (s *Service) AddProduct(ctx context.Context, eventKey string, p *domain.Product) error {
	const op = "service.catalog.AddProduct"

	e, err := s.store.Catalog().GetEventByKey(ctx, eventKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.Key == "" {
		p.Key = uuid.New().String()
	}
	p.EventID = e.ID

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).CreateProduct(ctx, p); err != nil {
			return err
		}
		after(func(ctx context.Context) {
			s.productChanged(ctx, eventKey, *p, domain.TriggerProductCreateUpdate)
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteProduct removes a product from the catalog.
func (s *Service) DeleteProduct(ctx context.Context, key string) error {
	const op = "service.catalog.DeleteProduct"

	p, err := s.store.Catalog().GetProductByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrProductNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	e, err := s.store.Catalog().GetEventByProduct(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if err := s.store.Catalog().With(tx).DeleteProduct(ctx, key); err != nil {
			return err
		}
		after(func(ctx context.Context) {
			s.productChanged(ctx, e.Key, *p, domain.TriggerProductDelete)
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetProduct loads a product by its public key.
func (s *Service) GetProduct(ctx context.Context, key string) (*domain.Product, error) {
	p, err := s.store.Catalog().GetProductByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

// Availability is the public view of a product's stock.
type Availability struct {
	Sold      int64  `json:"sold"`
	Reserved  int64  `json:"reserved"`
	Available *int64 `json:"available,omitempty"` // nil means uncapped
}

// GetAvailability reports the product's stock counters through a
// short-lived cache, since sale pages poll this.
func (s *Service) GetAvailability(ctx context.Context, productKey string) (Availability, error) {
	const op = "service.catalog.GetAvailability"

	a, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyProductAvailability(productKey), availabilityCacheTTL,
		func(ctx context.Context) (Availability, error) {
			p, err := s.store.Catalog().GetProductByKey(ctx, productKey)
			if err != nil {
				return Availability{}, err
			}
			return Availability{
				Sold:      p.Sold,
				Reserved:  p.Reserved,
				Available: p.Available(),
			}, nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Availability{}, fmt.Errorf("%s: %w", op, ErrProductNotFound)
		}
		return Availability{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (s *Service) eventChanged(ctx context.Context, e domain.Event) {
	if err := s.cache.InvalidateEvent(ctx, e.Key); err != nil {
		s.logger.Warn("cache invalidation failed", "event", e.Key, "error", err)
	}
	if err := s.pubsub.PublishEventChanged(ctx, e.Key); err != nil {
		s.logger.Warn("pubsub publish failed", "event", e.Key, "error", err)
	}
	if err := s.webhooks.Dispatch(ctx, domain.TriggerEventCreateUpdate, e); err != nil {
		s.logger.Warn("webhook dispatch failed", "event", e.Key, "error", err)
	}
}

func (s *Service) productChanged(ctx context.Context, eventKey string, p domain.Product, trigger domain.WebhookTrigger) {
	if err := s.cache.InvalidateProduct(ctx, p.Key); err != nil {
		s.logger.Warn("cache invalidation failed", "product", p.Key, "error", err)
	}
	if err := s.cache.InvalidateEvent(ctx, eventKey); err != nil {
		s.logger.Warn("cache invalidation failed", "event", eventKey, "error", err)
	}
	if err := s.pubsub.PublishProductChanged(ctx, p.Key); err != nil {
		s.logger.Warn("pubsub publish failed", "product", p.Key, "error", err)
	}
	if err := s.webhooks.Dispatch(ctx, trigger, p); err != nil {
		s.logger.Warn("webhook dispatch failed", "product", p.Key, "error", err)
	}
}
