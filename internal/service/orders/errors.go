package orders

import (
	"errors"
	"fmt"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderEmpty       = errors.New("order has no products")
	ErrOrderInvalid     = errors.New("order validation failed")
	ErrOrderConflict    = errors.New("order was modified concurrently, giving up")
	ErrProductNotFound  = errors.New("product not found")
	ErrProductSoldOut   = errors.New("product sold out")
	ErrCustomerRequired = errors.New("order has no customer assigned")
)

// InvalidTransitionError reports a status change the state machine does
// not allow.
type InvalidTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

// ExceedsCustomerLimitError reports an order that would push a customer
// over a product's per-customer cap.
type ExceedsCustomerLimitError struct {
	ProductTitle string
	Left         int64
}

func (e *ExceedsCustomerLimitError) Error() string {
	return fmt.Sprintf("customer limit exceeded for %s, %d left for this customer", e.ProductTitle, e.Left)
}
