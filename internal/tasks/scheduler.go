package tasks

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orders is the slice of the order engine the scheduler drives.
type Orders interface {
	ExpireOverdueReservations(ctx context.Context, maxAge time.Duration) (int, error)
	CleanupAbandoned(ctx context.Context) (int, error)
	PollPendingPayments(ctx context.Context) (int, error)
}

// WebhookDeliverer drains pending webhook tasks.
type WebhookDeliverer interface {
	DeliverPending(ctx context.Context) (int, error)
}

type Config struct {
	CancelInterval    time.Duration
	CleanupInterval   time.Duration
	PaymentInterval   time.Duration
	WebhookInterval   time.Duration
	ReservationMaxAge time.Duration
}

// Scheduler runs the background sweeps: reservation expiry, abandoned
// order cleanup, payment polling and webhook delivery.
type Scheduler struct {
	orders    Orders
	deliverer WebhookDeliverer
	cfg       Config
	logger    *slog.Logger
}

func NewScheduler(orders Orders, deliverer WebhookDeliverer, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orders:    orders,
		deliverer: deliverer,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
	}
}

// Run starts all sweep loops and blocks until the context is cancelled.
// A failing sweep is logged and retried on the next tick rather than
// taking the process down.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop(ctx, "expire-reservations", s.cfg.CancelInterval, func(ctx context.Context) (int, error) {
			return s.orders.ExpireOverdueReservations(ctx, s.cfg.ReservationMaxAge)
		})
	})
	g.Go(func() error {
		return s.loop(ctx, "cleanup-orders", s.cfg.CleanupInterval, s.orders.CleanupAbandoned)
	})
	g.Go(func() error {
		return s.loop(ctx, "poll-payments", s.cfg.PaymentInterval, s.orders.PollPendingPayments)
	})
	g.Go(func() error {
		return s.loop(ctx, "deliver-webhooks", s.cfg.WebhookInterval, s.deliverer.DeliverPending)
	})

	return g.Wait()
}

func (s *Scheduler) loop(
	ctx context.Context,
	name string,
	interval time.Duration,
	sweep func(ctx context.Context) (int, error),
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "sweep", name, "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("sweep done", "sweep", name, "handled", n)
			}
		}
	}
}
