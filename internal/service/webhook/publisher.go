package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

type Store interface {
	Create(ctx context.Context, w *domain.Webhook) error
	ListActiveByTrigger(ctx context.Context, trigger domain.WebhookTrigger) ([]*domain.Webhook, error)
	CreateTask(ctx context.Context, t *domain.WebhookTask) error
	ListTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error)
}

// Publisher fans a domain change out to every active subscribed webhook
// as a pending delivery task. Delivery itself happens asynchronously.
type Publisher struct {
	store     Store
	factories map[domain.WebhookTrigger]PayloadFactory
	logger    *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:     store,
		factories: newFactoryRegistry(),
		logger:    logger.With("component", "webhook"),
	}
}

// Register stores a new webhook subscription after checking every
// requested trigger is one this system can serve.
func (p *Publisher) Register(ctx context.Context, w *domain.Webhook) error {
	const op = "service.webhook.Register"

	for _, t := range w.Triggers {
		if _, ok := p.factories[t]; !ok {
			return fmt.Errorf("%s: %w: %s", op, ErrFactoryNotFound, t)
		}
	}

	if err := p.store.Create(ctx, w); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.logger.Info("webhook registered", "webhook_id", w.ID, "url", w.PayloadURL)

	return nil
}

// RecentTasks lists the latest delivery tasks, newest first.
func (p *Publisher) RecentTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error) {
	const op = "service.webhook.RecentTasks"

	tasks, err := p.store.ListTasks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tasks, nil
}

// GenerateRequest serializes the object for the trigger, with the trigger
// name injected so a receiver can tell deliveries apart.
func (p *Publisher) GenerateRequest(trigger domain.WebhookTrigger, object any) ([]byte, error) {
	factory, ok := p.factories[trigger]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, trigger)
	}

	payload, err := factory.Payload(object)
	if err != nil {
		return nil, err
	}
	payload["trigger"] = string(trigger)

	return json.Marshal(payload)
}

// Dispatch records one pending task per active webhook subscribed to the
// trigger. A trigger nobody listens to is a successful no-op.
func (p *Publisher) Dispatch(ctx context.Context, trigger domain.WebhookTrigger, object any) error {
	const op = "service.webhook.Dispatch"

	payload, err := p.GenerateRequest(trigger, object)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hooks, err := p.store.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, h := range hooks {
		task := &domain.WebhookTask{
			Trigger:   trigger,
			WebhookID: h.ID,
			Payload:   payload,
			CreatedAt: time.Now(),
			Status:    domain.WebhookTaskPending,
		}
		if err := p.store.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		p.logger.Debug("webhook task queued", "trigger", trigger, "webhook_id", h.ID)
	}

	return nil
}
