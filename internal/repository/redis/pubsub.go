package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangesPubSub announces catalog and order changes to interested
// subscribers (cache invalidators, live dashboards).
type ChangesPubSub struct {
	rdb *redis.Client
}

func NewChangesPubSub(rdb *redis.Client) *ChangesPubSub {
	return &ChangesPubSub{rdb: rdb}
}

type changedMsg struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	TsUnix int64  `json:"ts_unix"`
}

func (p *ChangesPubSub) PublishProductChanged(ctx context.Context, productKey string) error {
	return p.publish(ctx, ChannelCatalogChanged(), changedMsg{
		Type:   "product_changed",
		Key:    productKey,
		TsUnix: time.Now().Unix(),
	})
}

func (p *ChangesPubSub) PublishEventChanged(ctx context.Context, eventKey string) error {
	return p.publish(ctx, ChannelCatalogChanged(), changedMsg{
		Type:   "event_changed",
		Key:    eventKey,
		TsUnix: time.Now().Unix(),
	})
}

func (p *ChangesPubSub) PublishOrderChanged(ctx context.Context, reference string) error {
	return p.publish(ctx, ChannelOrdersChanged(), changedMsg{
		Type:   "order_changed",
		Key:    reference,
		TsUnix: time.Now().Unix(),
	})
}

func (p *ChangesPubSub) publish(ctx context.Context, channel string, msg changedMsg) error {
	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, channel, b).Err()
}

func (p *ChangesPubSub) SubscribeCatalog(ctx context.Context, handler func(ctx context.Context, key string)) error {
	sub := p.rdb.Subscribe(ctx, ChannelCatalogChanged())
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg changedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil && msg.Key != "" {
				handler(ctx, msg.Key)
			}
		}
	}
}
