package domain

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusAnonymous, OrderStatusAssigned, true},
		{OrderStatusAnonymous, OrderStatusCancelled, true},
		{OrderStatusAnonymous, OrderStatusPaid, false},
		{OrderStatusAnonymous, OrderStatusPending, false},
		{OrderStatusAssigned, OrderStatusPending, true},
		{OrderStatusAssigned, OrderStatusReservation, true},
		{OrderStatusAssigned, OrderStatusPaidCash, true},
		{OrderStatusAssigned, OrderStatusExpired, false},
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusExpired, true},
		{OrderStatusPending, OrderStatusReservation, false},
		{OrderStatusReservation, OrderStatusPending, true},
		{OrderStatusReservation, OrderStatusPaidCard, true},
		{OrderStatusReservation, OrderStatusExpired, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusPaidCash, OrderStatusRejected, true},
		{OrderStatusExpired, OrderStatusAssigned, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusRejected, OrderStatusPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []OrderStatus{
		OrderStatusAnonymous, OrderStatusAssigned, OrderStatusPending,
		OrderStatusReservation, OrderStatusPaid, OrderStatusPaidCash,
		OrderStatusPaidCard, OrderStatusExpired, OrderStatusCancelled,
		OrderStatusRejected,
	}

	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal status %s allows transition to %s", from, to)
			}
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	if !OrderStatusPaidCash.IsPaid() || !OrderStatusPaidCard.IsPaid() || !OrderStatusPaid.IsPaid() {
		t.Error("paid variants must report IsPaid")
	}
	if OrderStatusPending.IsPaid() {
		t.Error("pending must not report IsPaid")
	}
	if !OrderStatusPending.HoldsStock() || !OrderStatusReservation.HoldsStock() {
		t.Error("pending and reservation must hold stock")
	}
	if OrderStatusPaid.HoldsStock() || OrderStatusAssigned.HoldsStock() {
		t.Error("paid and assigned must not hold stock")
	}
}

func TestPaymentMethodPaidStatus(t *testing.T) {
	cases := []struct {
		method PaymentMethod
		want   OrderStatus
	}{
		{PaymentMethodCash, OrderStatusPaidCash},
		{PaymentMethodCard, OrderStatusPaidCard},
		{PaymentMethodIdeal, OrderStatusPaid},
		{PaymentMethodOther, OrderStatusPaid},
	}
	for _, tc := range cases {
		if got := tc.method.PaidStatus(); got != tc.want {
			t.Errorf("PaidStatus(%s) = %s, want %s", tc.method, got, tc.want)
		}
	}
}

func TestOrderAmountAndTicketCount(t *testing.T) {
	o := NewOrder("test")
	o.AddProduct(Product{ID: 1, Key: "p1", Title: "A", CostCents: 1500}, 2)
	o.AddProduct(Product{ID: 2, Key: "p2", Title: "B", CostCents: 500}, 3)

	if o.AmountCents != 2*1500+3*500 {
		t.Errorf("AmountCents = %d, want %d", o.AmountCents, 2*1500+3*500)
	}
	if o.TicketCount() != 5 {
		t.Errorf("TicketCount = %d, want 5", o.TicketCount())
	}
	if o.Status != OrderStatusAnonymous {
		t.Errorf("new order status = %s, want %s", o.Status, OrderStatusAnonymous)
	}
	if o.PublicReference == "" {
		t.Error("new order must have a public reference")
	}
}

func TestProductAvailable(t *testing.T) {
	if got := (Product{}).Available(); got != nil {
		t.Errorf("uncapped product Available = %v, want nil", *got)
	}

	maxSold := int64(10)
	p := Product{MaxSold: &maxSold, Sold: 4, Reserved: 3}
	if got := p.Available(); got == nil || *got != 3 {
		t.Errorf("Available = %v, want 3", got)
	}

	p = Product{MaxSold: &maxSold, Sold: 8, Reserved: 5}
	if got := p.Available(); got == nil || *got != 0 {
		t.Errorf("oversubscribed Available = %v, want 0", got)
	}
}
