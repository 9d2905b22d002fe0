package webhook

import (
	"fmt"
	"time"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

// PayloadFactory builds the outbound payload for one trigger. Factories
// reject objects of the wrong type instead of guessing.
type PayloadFactory interface {
	Payload(object any) (map[string]any, error)
}

// newFactoryRegistry maps every trigger to its factory. The map is built
// once and never mutated afterwards.
func newFactoryRegistry() map[domain.WebhookTrigger]PayloadFactory {
	return map[domain.WebhookTrigger]PayloadFactory{
		domain.TriggerEventCreateUpdate:   eventFactory{},
		domain.TriggerEventDelete:         eventDeleteFactory{},
		domain.TriggerProductCreateUpdate: productFactory{},
		domain.TriggerProductDelete:       productDeleteFactory{},
	}
}

type eventFactory struct{}

func (eventFactory) Payload(object any) (map[string]any, error) {
	e, ok := object.(domain.Event)
	if !ok {
		return nil, fmt.Errorf("%w: want domain.Event, got %T", ErrPayloadMismatch, object)
	}

	products := make([]map[string]any, 0, len(e.Products))
	for _, p := range e.Products {
		products = append(products, productPayload(p))
	}

	return map[string]any{
		"key":          e.Key,
		"title":        e.Title,
		"description":  e.Description,
		"location":     e.Location,
		"organized_by": e.OrganizedBy,
		"starts":       e.Starts.Format(time.RFC3339),
		"ends":         e.Ends.Format(time.RFC3339),
		"products":     products,
	}, nil
}

type eventDeleteFactory struct{}

func (eventDeleteFactory) Payload(object any) (map[string]any, error) {
	e, ok := object.(domain.Event)
	if !ok {
		return nil, fmt.Errorf("%w: want domain.Event, got %T", ErrPayloadMismatch, object)
	}

	return map[string]any{"key": e.Key}, nil
}

type productFactory struct{}

func (productFactory) Payload(object any) (map[string]any, error) {
	p, ok := object.(domain.Product)
	if !ok {
		return nil, fmt.Errorf("%w: want domain.Product, got %T", ErrPayloadMismatch, object)
	}

	return productPayload(p), nil
}

type productDeleteFactory struct{}

func (productDeleteFactory) Payload(object any) (map[string]any, error) {
	p, ok := object.(domain.Product)
	if !ok {
		return nil, fmt.Errorf("%w: want domain.Product, got %T", ErrPayloadMismatch, object)
	}

	return map[string]any{"key": p.Key}, nil
}

func productPayload(p domain.Product) map[string]any {
	payload := map[string]any{
		"key":         p.Key,
		"title":       p.Title,
		"description": p.Description,
		"cost_cents":  p.CostCents,
		"sold":        p.Sold,
		"reserved":    p.Reserved,
	}
	if left := p.Available(); left != nil {
		payload["available"] = *left
	}
	return payload
}
