package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

type mockWebhookStore struct {
	webhooks []*domain.Webhook
	tasks    []*domain.WebhookTask
}

func (m *mockWebhookStore) Create(ctx context.Context, w *domain.Webhook) error {
	w.ID = int64(len(m.webhooks) + 1)
	m.webhooks = append(m.webhooks, w)
	return nil
}

func (m *mockWebhookStore) ListActiveByTrigger(ctx context.Context, trigger domain.WebhookTrigger) ([]*domain.Webhook, error) {
	var out []*domain.Webhook
	for _, w := range m.webhooks {
		if w.Active && w.SubscribedTo(trigger) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockWebhookStore) CreateTask(ctx context.Context, t *domain.WebhookTask) error {
	t.ID = int64(len(m.tasks) + 1)
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *mockWebhookStore) ListTasks(ctx context.Context, limit int) ([]*domain.WebhookTask, error) {
	if limit > len(m.tasks) {
		limit = len(m.tasks)
	}
	return m.tasks[len(m.tasks)-limit:], nil
}

func newTestPublisher(store Store) *Publisher {
	return NewPublisher(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testEvent() domain.Event {
	return domain.Event{
		Key:      "ev-key",
		Title:    "Open Mic Night",
		Location: "Main Hall",
		Starts:   time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC),
		Ends:     time.Date(2026, 10, 1, 23, 0, 0, 0, time.UTC),
	}
}

func TestGenerateRequestInjectsTrigger(t *testing.T) {
	p := newTestPublisher(&mockWebhookStore{})

	b, err := p.GenerateRequest(domain.TriggerEventCreateUpdate, testEvent())
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(b, &payload))
	assert.Equal(t, string(domain.TriggerEventCreateUpdate), payload["trigger"])
	assert.Equal(t, "ev-key", payload["key"])
	assert.Equal(t, "Open Mic Night", payload["title"])
}

func TestGenerateRequestUnknownTrigger(t *testing.T) {
	p := newTestPublisher(&mockWebhookStore{})

	_, err := p.GenerateRequest(domain.WebhookTrigger("order.create"), testEvent())
	assert.ErrorIs(t, err, ErrFactoryNotFound)
}

func TestGenerateRequestObjectMismatch(t *testing.T) {
	p := newTestPublisher(&mockWebhookStore{})

	_, err := p.GenerateRequest(domain.TriggerProductCreateUpdate, testEvent())
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	_, err = p.GenerateRequest(domain.TriggerEventDelete, domain.Product{Key: "p"})
	assert.ErrorIs(t, err, ErrPayloadMismatch)
}

func TestProductPayloadIncludesAvailability(t *testing.T) {
	p := newTestPublisher(&mockWebhookStore{})
	maxSold := int64(100)

	b, err := p.GenerateRequest(domain.TriggerProductCreateUpdate, domain.Product{
		Key: "p-key", Title: "Entry", MaxSold: &maxSold, Sold: 40, Reserved: 10,
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(b, &payload))
	assert.Equal(t, float64(50), payload["available"])
	assert.Equal(t, float64(40), payload["sold"])
}

func TestDispatchFansOutToSubscribers(t *testing.T) {
	store := &mockWebhookStore{
		webhooks: []*domain.Webhook{
			{ID: 1, Active: true, Triggers: []domain.WebhookTrigger{domain.TriggerEventCreateUpdate}},
			{ID: 2, Active: true, Triggers: []domain.WebhookTrigger{domain.TriggerEventCreateUpdate, domain.TriggerEventDelete}},
			{ID: 3, Active: false, Triggers: []domain.WebhookTrigger{domain.TriggerEventCreateUpdate}},
			{ID: 4, Active: true, Triggers: []domain.WebhookTrigger{domain.TriggerProductDelete}},
		},
	}
	p := newTestPublisher(store)

	require.NoError(t, p.Dispatch(context.Background(), domain.TriggerEventCreateUpdate, testEvent()))

	// only the two active subscribed webhooks got a task
	require.Len(t, store.tasks, 2)
	for _, task := range store.tasks {
		assert.Equal(t, domain.WebhookTaskPending, task.Status)
		assert.Equal(t, domain.TriggerEventCreateUpdate, task.Trigger)
	}
	assert.Equal(t, int64(1), store.tasks[0].WebhookID)
	assert.Equal(t, int64(2), store.tasks[1].WebhookID)
}

func TestDispatchNoSubscribersIsNoop(t *testing.T) {
	store := &mockWebhookStore{}
	p := newTestPublisher(store)

	require.NoError(t, p.Dispatch(context.Background(), domain.TriggerEventDelete, testEvent()))
	assert.Empty(t, store.tasks)
}

func TestRegisterRejectsUnknownTrigger(t *testing.T) {
	store := &mockWebhookStore{}
	p := newTestPublisher(store)

	err := p.Register(context.Background(), &domain.Webhook{
		PayloadURL: "https://example.org/hook",
		Triggers:   []domain.WebhookTrigger{"order.create"},
	})
	assert.ErrorIs(t, err, ErrFactoryNotFound)
	assert.Empty(t, store.webhooks)
}
