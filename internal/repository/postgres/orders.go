package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const orderColumns = `id, public_reference, owner_id, amount_cents, created_by, created_at,
	paid_at, status, payment_method, ticket_created, provider_reference, version`

// Create inserts the order together with its line items.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	const op = "postgresrepo.OrderRepo.Create"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)`,
		o.ID, o.PublicReference, o.OwnerID, o.AmountCents, o.CreatedBy, o.CreatedAt,
		o.PaidAt, o.Status, o.PaymentMethod, o.TicketCreated, o.ProviderReference,
	); err != nil {
		return wrapDBErr(op, err)
	}
	o.Version = 1

	batch := &pgx.Batch{}
	for i := range o.Products {
		line := &o.Products[i]
		line.OrderID = o.ID
		batch.Queue(
			`INSERT INTO order_products (order_id, product_id, product_key, title, price_cents, amount)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			line.OrderID, line.ProductID, line.ProductKey, line.Title, line.PriceCents, line.Amount,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *OrderRepo) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.GetByReference"

	return r.get(ctx, op, `WHERE public_reference = $1`, reference)
}

func (r *OrderRepo) GetByProviderReference(ctx context.Context, reference string) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.GetByProviderReference"

	return r.get(ctx, op, `WHERE provider_reference = $1`, reference)
}

func (r *OrderRepo) get(ctx context.Context, op, where string, arg any) (*domain.Order, error) {
	db := r.handle()

	var o domain.Order
	err := db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg).Scan(
		&o.ID, &o.PublicReference, &o.OwnerID, &o.AmountCents, &o.CreatedBy, &o.CreatedAt,
		&o.PaidAt, &o.Status, &o.PaymentMethod, &o.TicketCreated, &o.ProviderReference, &o.Version,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if err := r.loadLines(ctx, db, &o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if o.OwnerID != nil {
		var c domain.Customer
		err := db.QueryRow(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE id = $1`, *o.OwnerID,
		).Scan(&c.ID, &c.Key, &c.Name, &c.Email, &c.Sub, &c.RFIDToken)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		o.Owner = &c
	}

	return &o, nil
}

func (r *OrderRepo) loadLines(ctx context.Context, db DB, o *domain.Order) error {
	rows, err := db.Query(ctx,
		`SELECT id, order_id, product_id, product_key, title, price_cents, amount
		 FROM order_products WHERE order_id = $1 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return translateDBErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderProduct
		if err := rows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.ProductKey,
			&line.Title, &line.PriceCents, &line.Amount,
		); err != nil {
			return translateDBErr(err)
		}
		o.Products = append(o.Products, line)
	}

	return rows.Err()
}

// Update persists the mutable order fields behind an optimistic version
// check. A stale version yields repository.ErrVersionConflict, which
// serializes concurrent transitions on the same order.
func (r *OrderRepo) Update(ctx context.Context, o *domain.Order) error {
	const op = "postgresrepo.OrderRepo.Update"

	tag, err := r.handle().Exec(ctx,
		`UPDATE orders
		 SET owner_id = $2, amount_cents = $3, paid_at = $4, status = $5,
		     payment_method = $6, ticket_created = $7, provider_reference = $8,
		     version = version + 1
		 WHERE id = $1 AND version = $9`,
		o.ID, o.OwnerID, o.AmountCents, o.PaidAt, o.Status,
		o.PaymentMethod, o.TicketCreated, o.ProviderReference, o.Version,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrVersionConflict)
	}

	o.Version++

	return nil
}

// ListByStatus returns orders whose status is in the given set, the filter
// pushed into the query rather than applied in memory.
func (r *OrderRepo) ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.ListByStatus"

	return r.list(ctx, op,
		`SELECT `+orderColumns+` FROM orders WHERE status = ANY($1) ORDER BY created_at`,
		statusStrings(statuses))
}

// ListByStatusCreatedBefore returns orders in the given status set created
// before the cutoff. Used by the reservation cancellation sweep.
func (r *OrderRepo) ListByStatusCreatedBefore(
	ctx context.Context,
	cutoff time.Time,
	statuses ...domain.OrderStatus,
) ([]*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.ListByStatusCreatedBefore"

	return r.list(ctx, op,
		`SELECT `+orderColumns+` FROM orders WHERE status = ANY($1) AND created_at < $2 ORDER BY created_at`,
		statusStrings(statuses), cutoff)
}

func (r *OrderRepo) list(ctx context.Context, op, sql string, args ...any) ([]*domain.Order, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.PublicReference, &o.OwnerID, &o.AmountCents, &o.CreatedBy, &o.CreatedAt,
			&o.PaidAt, &o.Status, &o.PaymentMethod, &o.TicketCreated, &o.ProviderReference, &o.Version,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	for _, o := range orders {
		if err := r.loadLines(ctx, db, o); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return orders, nil
}

// Delete removes the order and its line items. Only the cleanup sweep calls
// this, for orders that never reached a paid state.
func (r *OrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.OrderRepo.Delete"

	db := r.handle()

	if _, err := db.Exec(ctx, `DELETE FROM order_products WHERE order_id = $1`, id); err != nil {
		return wrapDBErr(op, err)
	}

	tag, err := db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
