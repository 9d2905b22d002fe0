package service

import (
	"log/slog"

	postgresrepo "github.com/nightjarlabs/boxoffice/internal/repository/postgres"
	redisrepo "github.com/nightjarlabs/boxoffice/internal/repository/redis"
	"github.com/nightjarlabs/boxoffice/internal/service/catalog"
	"github.com/nightjarlabs/boxoffice/internal/service/customers"
	"github.com/nightjarlabs/boxoffice/internal/service/notification"
	"github.com/nightjarlabs/boxoffice/internal/service/orders"
	"github.com/nightjarlabs/boxoffice/internal/service/payments"
	"github.com/nightjarlabs/boxoffice/internal/service/tickets"
	"github.com/nightjarlabs/boxoffice/internal/service/webhook"
	"github.com/nightjarlabs/boxoffice/internal/uow"
)

type Services struct {
	Catalog   *catalog.Service
	Customers *customers.Service
	Orders    *orders.Service
	Tickets   *tickets.Service
	Webhooks  *webhook.Publisher
	Deliverer *webhook.Deliverer
	Payments  *payments.Client
}

type Config struct {
	Payments payments.Config
	SMTP     notification.Config
}

func NewServices(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.ChangesPubSub,
	cfg Config,
	logger *slog.Logger,
) *Services {
	u := uow.NewUoW(store)

	publisher := webhook.NewPublisher(store.Webhooks(), logger)
	deliverer := webhook.NewDeliverer(store.Webhooks(), nil, logger)
	mailer := notification.NewMailer(cfg.SMTP, logger)
	provider := payments.NewClient(cfg.Payments, nil, logger)
	ticketSvc := tickets.New(store.Tickets(), store.Catalog(), logger)

	return &Services{
		Catalog:   catalog.New(store, u, cache, pubsub, publisher, logger),
		Customers: customers.New(store.Customers(), logger),
		Orders: orders.New(
			store.Orders(),
			store.Catalog(),
			ticketSvc,
			mailer,
			publisher,
			provider,
			pubsub,
			logger,
		),
		Tickets:   ticketSvc,
		Webhooks:  publisher,
		Deliverer: deliverer,
		Payments:  provider,
	}
}
