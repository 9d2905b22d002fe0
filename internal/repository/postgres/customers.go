package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nightjarlabs/boxoffice/internal/domain"
)

type CustomerRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CustomerRepo) With(db DB) *CustomerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CustomerRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const customerColumns = `id, key, name, email, sub, rfid_token`

func (r *CustomerRepo) Create(ctx context.Context, c *domain.Customer) error {
	const op = "postgresrepo.CustomerRepo.Create"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO customers (key, name, email, sub, rfid_token)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.Key, c.Name, c.Email, c.Sub, c.RFIDToken,
	).Scan(&c.ID)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CustomerRepo) GetByKey(ctx context.Context, key string) (*domain.Customer, error) {
	const op = "postgresrepo.CustomerRepo.GetByKey"

	return r.get(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE key = $1`, key)
}

func (r *CustomerRepo) GetBySub(ctx context.Context, sub string) (*domain.Customer, error) {
	const op = "postgresrepo.CustomerRepo.GetBySub"

	return r.get(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE sub = $1`, sub)
}

func (r *CustomerRepo) GetByRFIDToken(ctx context.Context, token string) (*domain.Customer, error) {
	const op = "postgresrepo.CustomerRepo.GetByRFIDToken"

	return r.get(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE rfid_token = $1`, token)
}

func (r *CustomerRepo) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	const op = "postgresrepo.CustomerRepo.GetByID"

	return r.get(ctx, op, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

func (r *CustomerRepo) get(ctx context.Context, op, sql string, arg any) (*domain.Customer, error) {
	var c domain.Customer
	err := r.handle().QueryRow(ctx, sql, arg).
		Scan(&c.ID, &c.Key, &c.Name, &c.Email, &c.Sub, &c.RFIDToken)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}
