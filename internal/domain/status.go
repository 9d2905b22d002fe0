package domain

type OrderStatus string

const (
	OrderStatusAnonymous   OrderStatus = "anonymous"   // just created, no customer yet
	OrderStatusAssigned    OrderStatus = "assigned"    // customer attached
	OrderStatusPending     OrderStatus = "pending"     // sent to the payment provider
	OrderStatusReservation OrderStatus = "reservation" // reserved, awaiting payment window
	OrderStatusPaid        OrderStatus = "paid"
	OrderStatusPaidCash    OrderStatus = "paid_cash"
	OrderStatusPaidCard    OrderStatus = "paid_card"
	OrderStatusExpired     OrderStatus = "expired"   // reservation or payment window ran out
	OrderStatusCancelled   OrderStatus = "cancelled" // cancelled by customer or staff
	OrderStatusRejected    OrderStatus = "rejected"  // declined by the payment provider
)

// IsPaid reports whether the status is one of the paid variants.
func (s OrderStatus) IsPaid() bool {
	switch s {
	case OrderStatusPaid, OrderStatusPaidCash, OrderStatusPaidCard:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusExpired, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// HoldsStock reports whether an order in this status holds a stock
// reservation on its products.
func (s OrderStatus) HoldsStock() bool {
	return s == OrderStatusPending || s == OrderStatusReservation
}

// transitions is the full validity table of the order state machine,
// keyed by (from, to).
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusAnonymous: {
		OrderStatusAssigned,
		OrderStatusCancelled,
	},
	OrderStatusAssigned: {
		OrderStatusPending,
		OrderStatusReservation,
		OrderStatusPaid,
		OrderStatusPaidCash,
		OrderStatusPaidCard,
		OrderStatusCancelled,
		OrderStatusRejected,
	},
	OrderStatusPending: {
		OrderStatusPaid,
		OrderStatusPaidCash,
		OrderStatusPaidCard,
		OrderStatusCancelled,
		OrderStatusExpired,
		OrderStatusRejected,
	},
	OrderStatusReservation: {
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusPaidCash,
		OrderStatusPaidCard,
		OrderStatusCancelled,
		OrderStatusExpired,
		OrderStatusRejected,
	},
	OrderStatusPaid: {
		OrderStatusCancelled,
		OrderStatusRejected,
	},
	OrderStatusPaidCash: {
		OrderStatusCancelled,
		OrderStatusRejected,
	},
	OrderStatusPaidCard: {
		OrderStatusCancelled,
		OrderStatusRejected,
	},
	// terminal states have no outgoing transitions
	OrderStatusExpired:   {},
	OrderStatusCancelled: {},
	OrderStatusRejected:  {},
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Self-transitions are not part of the table; callers treat them as
// no-ops.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodIdeal PaymentMethod = "ideal"
	PaymentMethodOther PaymentMethod = "other"
)

// PaidStatus maps a payment method to the paid variant an order lands in.
func (m PaymentMethod) PaidStatus() OrderStatus {
	switch m {
	case PaymentMethodCash:
		return OrderStatusPaidCash
	case PaymentMethodCard:
		return OrderStatusPaidCard
	default:
		return OrderStatusPaid
	}
}
