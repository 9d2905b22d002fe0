package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nightjarlabs/boxoffice/internal/config"
	"github.com/nightjarlabs/boxoffice/internal/postgres"
	"github.com/nightjarlabs/boxoffice/internal/redis"
	postgresrepo "github.com/nightjarlabs/boxoffice/internal/repository/postgres"
	redisrepo "github.com/nightjarlabs/boxoffice/internal/repository/redis"
	"github.com/nightjarlabs/boxoffice/internal/service"
	"github.com/nightjarlabs/boxoffice/internal/service/notification"
	"github.com/nightjarlabs/boxoffice/internal/service/payments"
	"github.com/nightjarlabs/boxoffice/internal/tasks"
	httpgin "github.com/nightjarlabs/boxoffice/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *tasks.Scheduler
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: cfg.Postgres.DSN()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redis.New(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisrepo.NewChangesPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl", 30, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Services
	services := service.NewServices(store, cache, pubsub, service.Config{
		Payments: payments.Config{
			BaseURL:     cfg.Payments.BaseURL,
			APIKey:      cfg.Payments.APIKey,
			RedirectURL: cfg.Payments.RedirectURL,
		},
		SMTP: notification.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		},
	}, logger)

	// Background sweeps
	scheduler := tasks.NewScheduler(services.Orders, services.Deliverer, tasks.Config{
		CancelInterval:    cfg.Scheduler.CancelInterval,
		CleanupInterval:   cfg.Scheduler.CleanupInterval,
		PaymentInterval:   cfg.Scheduler.PaymentInterval,
		WebhookInterval:   cfg.Scheduler.WebhookInterval,
		ReservationMaxAge: cfg.Scheduler.ReservationMaxAge,
	}, logger)

	// Gin router
	router := httpgin.NewRouter(services, idempotencyStore, limiter, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		scheduler: scheduler,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Start background sweeps
	g.Go(func() error {
		if err := a.scheduler.Run(gCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
