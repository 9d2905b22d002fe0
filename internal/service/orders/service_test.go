package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
	"github.com/nightjarlabs/boxoffice/internal/service/payments"
)

// --- Mocks ---

type memOrderStore struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order // by public reference
	failUpdates int                      // inject this many version conflicts
	updateCalls int
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Products = append([]domain.OrderProduct(nil), o.Products...)
	return &cp
}

func (m *memOrderStore) Create(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Version = 1
	m.orders[o.PublicReference] = cloneOrder(o)
	return nil
}

func (m *memOrderStore) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrderStore) GetByProviderReference(ctx context.Context, ref string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProviderReference == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memOrderStore) Update(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	stored, ok := m.orders[o.PublicReference]
	if !ok {
		return repository.ErrNotFound
	}
	if m.failUpdates > 0 {
		m.failUpdates--
		return repository.ErrVersionConflict
	}
	if stored.Version != o.Version {
		return repository.ErrVersionConflict
	}
	o.Version++
	m.orders[o.PublicReference] = cloneOrder(o)
	return nil
}

func (m *memOrderStore) ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	return m.list(time.Time{}, statuses...)
}

func (m *memOrderStore) ListByStatusCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	return m.list(cutoff, statuses...)
}

func (m *memOrderStore) list(cutoff time.Time, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		for _, s := range statuses {
			if o.Status == s && (cutoff.IsZero() || o.CreatedAt.Before(cutoff)) {
				out = append(out, cloneOrder(o))
				break
			}
		}
	}
	return out, nil
}

func (m *memOrderStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref, o := range m.orders {
		if o.ID == id {
			delete(m.orders, ref)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memProductStore struct {
	mu    sync.Mutex
	byID  map[int64]*domain.Product
	byKey map[string]*domain.Product
}

func newMemProductStore(products ...*domain.Product) *memProductStore {
	m := &memProductStore{
		byID:  make(map[int64]*domain.Product),
		byKey: make(map[string]*domain.Product),
	}
	for _, p := range products {
		m.byID[p.ID] = p
		m.byKey[p.Key] = p
	}
	return m
}

func (m *memProductStore) GetProductByKey(ctx context.Context, key string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProductStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProductStore) Reserve(ctx context.Context, id, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	if p.MaxSold != nil && p.Sold+p.Reserved+amount > *p.MaxSold {
		return repository.ErrSoldOut
	}
	p.Reserved += amount
	return nil
}

func (m *memProductStore) ReleaseReservation(ctx context.Context, id, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Reserved -= amount
	if p.Reserved < 0 {
		p.Reserved = 0
	}
	return nil
}

func (m *memProductStore) CommitSale(ctx context.Context, id, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Sold += amount
	p.Reserved -= amount
	if p.Reserved < 0 {
		p.Reserved = 0
	}
	return nil
}

func (m *memProductStore) RevertSale(ctx context.Context, id, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Sold -= amount
	if p.Sold < 0 {
		p.Sold = 0
	}
	return nil
}

type mockIssuer struct {
	mu          sync.Mutex
	createCalls int
	deleteCalls int
	owned       map[[2]int64]int64 // (product, owner) -> tickets held
	createErr   error
}

func newMockIssuer() *mockIssuer {
	return &mockIssuer{owned: make(map[[2]int64]int64)}
}

func (m *mockIssuer) CreateByOrder(ctx context.Context, o *domain.Order) ([]*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if o.TicketCreated {
		return nil, nil
	}
	m.createCalls++
	var out []*domain.Ticket
	for _, line := range o.Products {
		m.owned[[2]int64{line.ProductID, *o.OwnerID}] += line.Amount
		for i := int64(0); i < line.Amount; i++ {
			out = append(out, &domain.Ticket{ProductID: line.ProductID, OwnerID: *o.OwnerID})
		}
	}
	return out, nil
}

func (m *mockIssuer) DeleteByOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	for _, line := range o.Products {
		delete(m.owned, [2]int64{line.ProductID, *o.OwnerID})
	}
	return nil
}

func (m *mockIssuer) CountByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned[[2]int64{productID, ownerID}], nil
}

type mockMailer struct {
	mu            sync.Mutex
	confirmations int
	reservations  int
	paymentErrors int
}

func (m *mockMailer) SendOrderConfirmation(ctx context.Context, o *domain.Order, ts []*domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations++
	return nil
}

func (m *mockMailer) SendOrderReservation(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations++
	return nil
}

func (m *mockMailer) SendOrderPaymentError(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentErrors++
	return nil
}

type mockDispatcher struct {
	mu       sync.Mutex
	triggers []domain.WebhookTrigger
}

func (m *mockDispatcher) Dispatch(ctx context.Context, trigger domain.WebhookTrigger, object any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	return nil
}

type mockProvider struct {
	checkout  *payments.Checkout
	createErr error
	statuses  map[string]domain.OrderStatus
	pollErr   error
}

func (m *mockProvider) CreateCheckout(ctx context.Context, o *domain.Order) (*payments.Checkout, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.checkout != nil {
		return m.checkout, nil
	}
	return &payments.Checkout{Reference: "prov-" + o.PublicReference, CheckoutURL: "https://pay.example/x"}, nil
}

func (m *mockProvider) PollStatus(ctx context.Context, ref string) (domain.OrderStatus, error) {
	if m.pollErr != nil {
		return "", m.pollErr
	}
	s, ok := m.statuses[ref]
	if !ok {
		return domain.OrderStatusPending, nil
	}
	return s, nil
}

type fixture struct {
	svc      *Service
	store    *memOrderStore
	products *memProductStore
	issuer   *mockIssuer
	mailer   *mockMailer
	webhooks *mockDispatcher
	provider *mockProvider
}

func newFixture(products ...*domain.Product) *fixture {
	f := &fixture{
		store:    newMemOrderStore(),
		products: newMemProductStore(products...),
		issuer:   newMockIssuer(),
		mailer:   &mockMailer{},
		webhooks: &mockDispatcher{},
		provider: &mockProvider{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = New(f.store, f.products, f.issuer, f.mailer, f.webhooks, f.provider, nil, logger)
	return f
}

func capped(max int64) *int64 { return &max }

func testProduct(id int64, key string, maxSold *int64) *domain.Product {
	return &domain.Product{ID: id, Key: key, Title: "Ticket " + key, CostCents: 1000, MaxSold: maxSold}
}

func testCustomer() *domain.Customer {
	return &domain.Customer{ID: 7, Key: "cust-key", Name: "Sam", Email: "sam@example.org", Sub: "sub-7"}
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	f := newFixture(testProduct(1, "p1", nil))

	o, err := f.svc.Create(context.Background(), []Line{{ProductKey: "p1", Amount: 2}}, "webshop")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusAnonymous, o.Status)
	assert.Equal(t, int64(2000), o.AmountCents)
	require.Len(t, o.Products, 1)
	assert.Equal(t, int64(1000), o.Products[0].PriceCents)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), []Line{{ProductKey: "missing", Amount: 1}}, "webshop")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateOrderRejectsEmptyAndNonPositive(t *testing.T) {
	f := newFixture(testProduct(1, "p1", nil))

	_, err := f.svc.Create(context.Background(), nil, "webshop")
	assert.ErrorIs(t, err, ErrOrderEmpty)

	_, err = f.svc.Create(context.Background(), []Line{{ProductKey: "p1", Amount: 0}}, "webshop")
	assert.ErrorIs(t, err, ErrOrderInvalid)
}

func TestCheckoutCashFullFlow(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 3}}, "pos")
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	o, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCash)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPaidCash, o.Status)
	assert.True(t, o.TicketCreated)
	require.NotNil(t, o.PaidAt)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(3), p.Sold)
	assert.Equal(t, int64(0), p.Reserved)

	assert.Equal(t, 1, f.issuer.createCalls)
	assert.Equal(t, 1, f.mailer.confirmations)
	assert.Contains(t, f.webhooks.triggers, domain.TriggerProductCreateUpdate)
}

func TestCheckoutSoldOut(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(2)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 3}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	_, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCash)
	assert.ErrorIs(t, err, ErrProductSoldOut)

	// nothing was taken and the order did not move
	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Sold)
	assert.Equal(t, int64(0), p.Reserved)

	stored, _ := f.svc.GetByReference(ctx, o.PublicReference)
	assert.Equal(t, domain.OrderStatusAssigned, stored.Status)
}

func TestReserveRollbackOnPartialSoldOut(t *testing.T) {
	f := newFixture(testProduct(1, "p1", nil), testProduct(2, "p2", capped(1)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{
		{ProductKey: "p1", Amount: 2},
		{ProductKey: "p2", Amount: 2},
	}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	_, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCard)
	assert.ErrorIs(t, err, ErrProductSoldOut)

	// the first line's reservation was handed back
	p1, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p1.Reserved)
}

func TestInvalidTransition(t *testing.T) {
	f := newFixture(testProduct(1, "p1", nil))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)

	err = f.svc.UpdateStatus(ctx, o, domain.OrderStatusPaid)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.OrderStatusAnonymous, invalid.From)
	assert.Equal(t, domain.OrderStatusPaid, invalid.To)
}

func TestCancelPaidOrderRestoresEverything(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 2}}, "pos")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)
	o, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCash)
	require.NoError(t, err)

	o, err = f.svc.Cancel(ctx, o.PublicReference)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, o.Status)
	assert.False(t, o.TicketCreated)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Sold)
	assert.Equal(t, int64(0), p.Reserved)
	assert.Equal(t, 1, f.issuer.deleteCalls)
}

func TestUpdateStatusRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	f.store.failUpdates = 1

	o, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCash)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaidCash, o.Status)

	// the retry must not double-count stock or tickets
	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(1), p.Sold)
	assert.Equal(t, int64(0), p.Reserved)
	assert.Equal(t, 1, f.issuer.createCalls)
}

func TestUpdateStatusGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	f.store.failUpdates = 100

	err = f.svc.UpdateStatus(ctx, o, domain.OrderStatusPending)
	assert.ErrorIs(t, err, ErrOrderConflict)

	// every failed attempt handed its reservation back
	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Reserved)
}

func TestAssignEnforcesCustomerLimit(t *testing.T) {
	p := testProduct(1, "p1", nil)
	p.MaxSoldPerCustomer = capped(2)
	f := newFixture(p)
	ctx := context.Background()

	customer := testCustomer()
	f.issuer.owned[[2]int64{1, customer.ID}] = 2

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, o.PublicReference, customer)
	var limit *ExceedsCustomerLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, int64(0), limit.Left)
}

func TestCheckoutOnlineStoresProviderReference(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	o, url, err := f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodIdeal)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, "https://pay.example/x", url)
	assert.NotEmpty(t, o.ProviderReference)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(1), p.Reserved)
}

func TestCheckoutOnlineProviderFailureCancels(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	f.provider.createErr = errors.New("provider down")
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	_, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCard)
	require.Error(t, err)

	stored, _ := f.svc.GetByReference(ctx, o.PublicReference)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 1, f.mailer.paymentErrors)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Reserved)
}

func TestPlaceReservationSendsMail(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 2}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)

	o, err = f.svc.PlaceReservation(ctx, o.PublicReference)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusReservation, o.Status)
	assert.Equal(t, 1, f.mailer.reservations)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(2), p.Reserved)
}

func TestExpireOverdueReservations(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, stale.PublicReference, testCustomer())
	require.NoError(t, err)
	_, err = f.svc.PlaceReservation(ctx, stale.PublicReference)
	require.NoError(t, err)

	fresh, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, fresh.PublicReference, testCustomer())
	require.NoError(t, err)
	_, err = f.svc.PlaceReservation(ctx, fresh.PublicReference)
	require.NoError(t, err)

	// age the first reservation past the cutoff
	f.store.mu.Lock()
	f.store.orders[stale.PublicReference].CreatedAt = time.Now().Add(-4 * 24 * time.Hour)
	f.store.mu.Unlock()

	n, err := f.svc.ExpireOverdueReservations(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.GetByReference(ctx, stale.PublicReference)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)

	got, _ = f.svc.GetByReference(ctx, fresh.PublicReference)
	assert.Equal(t, domain.OrderStatusReservation, got.Status)

	// only the expired reservation's stock came back
	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(1), p.Reserved)
}

func TestCleanupAbandoned(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	abandoned, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)

	paid, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "pos")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, paid.PublicReference, testCustomer())
	require.NoError(t, err)
	_, _, err = f.svc.Checkout(ctx, paid.PublicReference, domain.PaymentMethodCash)
	require.NoError(t, err)

	n, err := f.svc.CleanupAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.GetByReference(ctx, abandoned.PublicReference)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := f.svc.GetByReference(ctx, paid.PublicReference)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaidCash, got.Status)
}

func TestCleanupAbandonedReleasesPendingStock(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 3}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)
	require.NoError(t, f.svc.UpdateStatus(ctx, o, domain.OrderStatusPending))

	p, _ := f.products.GetProductByID(ctx, 1)
	require.Equal(t, int64(3), p.Reserved)

	n, err := f.svc.CleanupAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.GetByReference(ctx, o.PublicReference)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// the deleted pending order must not keep inflating reserved
	p, _ = f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Reserved)
	assert.Equal(t, int64(0), p.Sold)
}

func TestPollPendingPayments(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)
	o, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodIdeal)
	require.NoError(t, err)

	f.provider.statuses = map[string]domain.OrderStatus{
		o.ProviderReference: domain.OrderStatusPaid,
	}

	n, err := f.svc.PollPendingPayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.GetByReference(ctx, o.PublicReference)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
	assert.True(t, got.TicketCreated)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(1), p.Sold)
	assert.Equal(t, int64(0), p.Reserved)
}

func TestPollPendingPaymentExpiredReleasesStock(t *testing.T) {
	f := newFixture(testProduct(1, "p1", capped(10)))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 2}}, "webshop")
	require.NoError(t, err)
	_, err = f.svc.Assign(ctx, o.PublicReference, testCustomer())
	require.NoError(t, err)
	o, _, err = f.svc.Checkout(ctx, o.PublicReference, domain.PaymentMethodCard)
	require.NoError(t, err)

	f.provider.statuses = map[string]domain.OrderStatus{
		o.ProviderReference: domain.OrderStatusExpired,
	}

	_, err = f.svc.PollPendingPayments(ctx)
	require.NoError(t, err)

	got, _ := f.svc.GetByReference(ctx, o.PublicReference)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)

	p, _ := f.products.GetProductByID(ctx, 1)
	assert.Equal(t, int64(0), p.Reserved)
	assert.Equal(t, int64(0), p.Sold)
}

func TestUpdateStatusSelfTransitionIsNoop(t *testing.T) {
	f := newFixture(testProduct(1, "p1", nil))
	ctx := context.Background()

	o, err := f.svc.Create(ctx, []Line{{ProductKey: "p1", Amount: 1}}, "webshop")
	require.NoError(t, err)

	before := f.store.updateCalls
	require.NoError(t, f.svc.UpdateStatus(ctx, o, domain.OrderStatusAnonymous))
	assert.Equal(t, before, f.store.updateCalls)
}
