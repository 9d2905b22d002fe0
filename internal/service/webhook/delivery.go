package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body, keyed
	// with the webhook secret.
	SignatureHeader = "X-Webhook-Signature"

	deliveryBatchSize = 50
)

type DeliveryStore interface {
	ListPendingTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error)
	GetByID(ctx context.Context, id int64) (*domain.Webhook, error)
	MarkTask(ctx context.Context, taskID int64, status domain.WebhookTaskStatus, detail string) error
}

// Deliverer posts pending webhook tasks to their payload URLs. Delivery
// is best effort: a failed task is marked error and not retried.
type Deliverer struct {
	store  DeliveryStore
	client *http.Client
	logger *slog.Logger
}

func NewDeliverer(store DeliveryStore, client *http.Client, logger *slog.Logger) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Deliverer{
		store:  store,
		client: client,
		logger: logger.With("component", "webhook-delivery"),
	}
}

// DeliverPending drains one batch of pending tasks and reports how many
// were attempted.
func (d *Deliverer) DeliverPending(ctx context.Context) (int, error) {
	const op = "service.webhook.DeliverPending"

	tasks, err := d.store.ListPendingTasks(ctx, deliveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, task := range tasks {
		if err := d.deliver(ctx, task); err != nil {
			d.logger.Warn("webhook delivery failed",
				"task_id", task.ID, "trigger", task.Trigger, "error", err)
			d.mark(ctx, task.ID, domain.WebhookTaskError, err.Error())
			continue
		}
		d.mark(ctx, task.ID, domain.WebhookTaskSuccess, "")
	}

	return len(tasks), nil
}

func (d *Deliverer) deliver(ctx context.Context, task *domain.WebhookTask) error {
	hook, err := d.store.GetByID(ctx, task.WebhookID)
	if err != nil {
		return fmt.Errorf("load webhook %d: %w", task.WebhookID, err)
	}
	if !hook.Active {
		return errors.New("webhook deactivated")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.PayloadURL, bytes.NewReader(task.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(hook.Secret, task.Payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver responded %d", resp.StatusCode)
	}

	return nil
}

// mark transitions the task forward. A conflict means another worker got
// there first, which is fine.
func (d *Deliverer) mark(ctx context.Context, taskID int64, status domain.WebhookTaskStatus, detail string) {
	err := d.store.MarkTask(ctx, taskID, status, detail)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		d.logger.Error("mark webhook task failed", "task_id", taskID, "error", err)
	}
}

// Sign computes the hex HMAC-SHA256 of body keyed with secret, in the
// form receivers verify: "sha256=<hex>".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
