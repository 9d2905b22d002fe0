package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) CreateEvent(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.CatalogRepo.CreateEvent"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO events (key, title, description, location, organized_by, starts, ends)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		e.Key, e.Title, e.Description, e.Location, e.OrganizedBy, e.Starts, e.Ends,
	).Scan(&e.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CatalogRepo) UpdateEvent(ctx context.Context, e *domain.Event) error {
	const op = "postgresrepo.CatalogRepo.UpdateEvent"

	tag, err := r.handle().Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, location = $4, organized_by = $5, starts = $6, ends = $7
		 WHERE key = $1`,
		e.Key, e.Title, e.Description, e.Location, e.OrganizedBy, e.Starts, e.Ends,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) DeleteEvent(ctx context.Context, key string) error {
	const op = "postgresrepo.CatalogRepo.DeleteEvent"

	tag, err := r.handle().Exec(ctx, `DELETE FROM events WHERE key = $1`, key)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) GetEventByKey(ctx context.Context, key string) (*domain.Event, error) {
	const op = "postgresrepo.CatalogRepo.GetEventByKey"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, key, title, description, location, organized_by, starts, ends
		 FROM events WHERE key = $1`,
		key,
	).Scan(&e.ID, &e.Key, &e.Title, &e.Description, &e.Location, &e.OrganizedBy, &e.Starts, &e.Ends)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT id, event_id, key, title, description, cost_cents, max_sold, max_sold_per_customer, sold, reserved
		 FROM products WHERE event_id = $1 ORDER BY id`,
		e.ID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.EventID, &p.Key, &p.Title, &p.Description,
			&p.CostCents, &p.MaxSold, &p.MaxSoldPerCustomer, &p.Sold, &p.Reserved,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		e.Products = append(e.Products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *CatalogRepo) GetEventByProduct(ctx context.Context, productID int64) (*domain.Event, error) {
	const op = "postgresrepo.CatalogRepo.GetEventByProduct"

	var key string
	err := r.handle().QueryRow(ctx,
		`SELECT e.key FROM events e JOIN products p ON p.event_id = e.id WHERE p.id = $1`,
		productID,
	).Scan(&key)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return r.GetEventByKey(ctx, key)
}

func (r *CatalogRepo) CreateProduct(ctx context.Context, p *domain.Product) error {
	const op = "postgresrepo.CatalogRepo.CreateProduct"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO products (event_id, key, title, description, cost_cents, max_sold, max_sold_per_customer)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		p.EventID, p.Key, p.Title, p.Description, p.CostCents, p.MaxSold, p.MaxSoldPerCustomer,
	).Scan(&p.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CatalogRepo) DeleteProduct(ctx context.Context, key string) error {
	const op = "postgresrepo.CatalogRepo.DeleteProduct"

	tag, err := r.handle().Exec(ctx, `DELETE FROM products WHERE key = $1`, key)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepo) GetProductByKey(ctx context.Context, key string) (*domain.Product, error) {
	const op = "postgresrepo.CatalogRepo.GetProductByKey"

	var p domain.Product
	err := r.handle().QueryRow(ctx,
		`SELECT id, event_id, key, title, description, cost_cents, max_sold, max_sold_per_customer, sold, reserved
		 FROM products WHERE key = $1`,
		key,
	).Scan(
		&p.ID, &p.EventID, &p.Key, &p.Title, &p.Description,
		&p.CostCents, &p.MaxSold, &p.MaxSoldPerCustomer, &p.Sold, &p.Reserved,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

func (r *CatalogRepo) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	const op = "postgresrepo.CatalogRepo.GetProductByID"

	var p domain.Product
	err := r.handle().QueryRow(ctx,
		`SELECT id, event_id, key, title, description, cost_cents, max_sold, max_sold_per_customer, sold, reserved
		 FROM products WHERE id = $1`,
		id,
	).Scan(
		&p.ID, &p.EventID, &p.Key, &p.Title, &p.Description,
		&p.CostCents, &p.MaxSold, &p.MaxSoldPerCustomer, &p.Sold, &p.Reserved,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &p, nil
}

// Reserve atomically checks the cap and takes a reservation on the product
// row. The check and the increment are a single guarded statement, so two
// concurrent reservations can never both take the last unit.
func (r *CatalogRepo) Reserve(ctx context.Context, productID, amount int64) error {
	const op = "postgresrepo.CatalogRepo.Reserve"

	tag, err := r.handle().Exec(ctx,
		`UPDATE products
		 SET reserved = reserved + $2
		 WHERE id = $1
		   AND (max_sold IS NULL OR sold + reserved + $2 <= max_sold)`,
		productID, amount,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrSoldOut)
	}

	return nil
}

// ReleaseReservation gives a previously taken reservation back.
func (r *CatalogRepo) ReleaseReservation(ctx context.Context, productID, amount int64) error {
	const op = "postgresrepo.CatalogRepo.ReleaseReservation"

	_, err := r.handle().Exec(ctx,
		`UPDATE products
		 SET reserved = GREATEST(reserved - $2, 0)
		 WHERE id = $1`,
		productID, amount,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// CommitSale converts a held reservation into a sale.
func (r *CatalogRepo) CommitSale(ctx context.Context, productID, amount int64) error {
	const op = "postgresrepo.CatalogRepo.CommitSale"

	_, err := r.handle().Exec(ctx,
		`UPDATE products
		 SET sold = sold + $2, reserved = GREATEST(reserved - $2, 0)
		 WHERE id = $1`,
		productID, amount,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// RevertSale undoes a committed sale when an order leaves a paid state.
func (r *CatalogRepo) RevertSale(ctx context.Context, productID, amount int64) error {
	const op = "postgresrepo.CatalogRepo.RevertSale"

	_, err := r.handle().Exec(ctx,
		`UPDATE products
		 SET sold = GREATEST(sold - $2, 0)
		 WHERE id = $1`,
		productID, amount,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
