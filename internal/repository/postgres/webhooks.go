package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

type WebhookRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *WebhookRepo) With(db DB) *WebhookRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *WebhookRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *WebhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	const op = "postgresrepo.WebhookRepo.Create"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO webhooks (payload_url, secret, active, triggers)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		w.PayloadURL, w.Secret, w.Active, triggerStrings(w.Triggers),
	).Scan(&w.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *WebhookRepo) GetByID(ctx context.Context, id int64) (*domain.Webhook, error) {
	const op = "postgresrepo.WebhookRepo.GetByID"

	var w domain.Webhook
	var triggers []string
	err := r.handle().QueryRow(ctx,
		`SELECT id, payload_url, secret, active, triggers FROM webhooks WHERE id = $1`, id,
	).Scan(&w.ID, &w.PayloadURL, &w.Secret, &w.Active, &triggers)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	w.Triggers = parseTriggers(triggers)

	return &w, nil
}

// ListActiveByTrigger returns every active webhook subscribed to the trigger.
func (r *WebhookRepo) ListActiveByTrigger(ctx context.Context, trigger domain.WebhookTrigger) ([]*domain.Webhook, error) {
	const op = "postgresrepo.WebhookRepo.ListActiveByTrigger"

	rows, err := r.handle().Query(ctx,
		`SELECT id, payload_url, secret, active, triggers
		 FROM webhooks
		 WHERE active AND $1 = ANY(triggers)`,
		string(trigger),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var hooks []*domain.Webhook
	for rows.Next() {
		var w domain.Webhook
		var triggers []string
		if err := rows.Scan(&w.ID, &w.PayloadURL, &w.Secret, &w.Active, &triggers); err != nil {
			return nil, wrapDBErr(op, err)
		}
		w.Triggers = parseTriggers(triggers)
		hooks = append(hooks, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return hooks, nil
}

func (r *WebhookRepo) CreateTask(ctx context.Context, t *domain.WebhookTask) error {
	const op = "postgresrepo.WebhookRepo.CreateTask"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO webhook_tasks (trigger, webhook_id, payload, created_at, status, error)
		 VALUES ($1, $2, $3, $4, $5, '')
		 RETURNING id`,
		t.Trigger, t.WebhookID, t.Payload, t.CreatedAt, t.Status,
	).Scan(&t.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *WebhookRepo) ListPendingTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error) {
	const op = "postgresrepo.WebhookRepo.ListPendingTasks"

	rows, err := r.handle().Query(ctx,
		`SELECT id, trigger, webhook_id, payload, created_at, status, error
		 FROM webhook_tasks
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		domain.WebhookTaskPending, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var tasks []*domain.WebhookTask
	for rows.Next() {
		var t domain.WebhookTask
		if err := rows.Scan(&t.ID, &t.Trigger, &t.WebhookID, &t.Payload, &t.CreatedAt, &t.Status, &t.Error); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tasks, nil
}

func (r *WebhookRepo) ListTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error) {
	const op = "postgresrepo.WebhookRepo.ListTasks"

	rows, err := r.handle().Query(ctx,
		`SELECT id, trigger, webhook_id, payload, created_at, status, error
		 FROM webhook_tasks
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var tasks []*domain.WebhookTask
	for rows.Next() {
		var t domain.WebhookTask
		if err := rows.Scan(&t.ID, &t.Trigger, &t.WebhookID, &t.Payload, &t.CreatedAt, &t.Status, &t.Error); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tasks, nil
}

// MarkTask moves a task out of pending. Status only moves forward: a task
// already marked success or error is left untouched.
func (r *WebhookRepo) MarkTask(ctx context.Context, taskID int64, status domain.WebhookTaskStatus, detail string) error {
	const op = "postgresrepo.WebhookRepo.MarkTask"

	tag, err := r.handle().Exec(ctx,
		`UPDATE webhook_tasks
		 SET status = $2, error = $3
		 WHERE id = $1 AND status = $4`,
		taskID, status, detail, domain.WebhookTaskPending,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	return nil
}

func triggerStrings(triggers []domain.WebhookTrigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = string(t)
	}
	return out
}

func parseTriggers(raw []string) []domain.WebhookTrigger {
	out := make([]domain.WebhookTrigger, len(raw))
	for i, s := range raw {
		out[i] = domain.WebhookTrigger(s)
	}
	return out
}
