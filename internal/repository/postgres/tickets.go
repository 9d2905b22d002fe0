package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nightjarlabs/boxoffice/internal/domain"
	"github.com/nightjarlabs/boxoffice/internal/repository"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const ticketColumns = `id, key, order_id, owner_id, product_id, unique_code, status, valid, created_at`

func (r *TicketRepo) ExistsByProductAndCode(ctx context.Context, productID int64, code string) (bool, error) {
	const op = "postgresrepo.TicketRepo.ExistsByProductAndCode"

	var exists bool
	err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE product_id = $1 AND unique_code = $2)`,
		productID, code,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

func (r *TicketRepo) CountByProduct(ctx context.Context, productID int64) (int64, error) {
	const op = "postgresrepo.TicketRepo.CountByProduct"

	var n int64
	err := r.handle().QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE product_id = $1`, productID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *TicketRepo) CountByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error) {
	const op = "postgresrepo.TicketRepo.CountByProductAndOwner"

	var n int64
	err := r.handle().QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE product_id = $1 AND owner_id = $2`,
		productID, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *TicketRepo) InsertBatch(ctx context.Context, tickets []*domain.Ticket) error {
	const op = "postgresrepo.TicketRepo.InsertBatch"

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets (key, order_id, owner_id, product_id, unique_code, status, valid, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.Key, t.OrderID, t.OwnerID, t.ProductID, t.UniqueCode, t.Status, t.Valid, t.CreatedAt,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// DeleteByProductAndOwner removes every ticket matching the (product, owner)
// pair, regardless of the order it came from.
func (r *TicketRepo) DeleteByProductAndOwner(ctx context.Context, productID, ownerID int64) (int64, error) {
	const op = "postgresrepo.TicketRepo.DeleteByProductAndOwner"

	tag, err := r.handle().Exec(ctx,
		`DELETE FROM tickets WHERE product_id = $1 AND owner_id = $2`,
		productID, ownerID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *TicketRepo) GetByKey(ctx context.Context, key string) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.GetByKey"

	var t domain.Ticket
	err := r.handle().QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE key = $1`, key,
	).Scan(&t.ID, &t.Key, &t.OrderID, &t.OwnerID, &t.ProductID, &t.UniqueCode, &t.Status, &t.Valid, &t.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &t, nil
}

func (r *TicketRepo) GetByProductAndCode(ctx context.Context, productID int64, code string) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.GetByProductAndCode"

	var t domain.Ticket
	err := r.handle().QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE product_id = $1 AND unique_code = $2`,
		productID, code,
	).Scan(&t.ID, &t.Key, &t.OrderID, &t.OwnerID, &t.ProductID, &t.UniqueCode, &t.Status, &t.Valid, &t.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &t, nil
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID string) ([]*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.ListByOrder"

	rows, err := r.handle().Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE order_id = $1 ORDER BY id`, orderID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(
			&t.ID, &t.Key, &t.OrderID, &t.OwnerID, &t.ProductID,
			&t.UniqueCode, &t.Status, &t.Valid, &t.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		tickets = append(tickets, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return tickets, nil
}

func (r *TicketRepo) UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus) error {
	const op = "postgresrepo.TicketRepo.UpdateStatus"

	_, err := r.handle().Exec(ctx,
		`UPDATE tickets SET status = $2 WHERE id = $1`, ticketID, status,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *TicketRepo) UpdateOwnerAndCode(ctx context.Context, ticketID, ownerID int64, code string) error {
	const op = "postgresrepo.TicketRepo.UpdateOwnerAndCode"

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets SET owner_id = $2, unique_code = $3 WHERE id = $1`,
		ticketID, ownerID, code,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}
