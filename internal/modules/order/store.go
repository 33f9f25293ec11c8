// README: Order and payment store backed by PostgreSQL; conditional writes carry the version check.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) CreateOrder(ctx context.Context, o *Order) error {
	pickup, err := json.Marshal(o.Pickup)
	if err != nil {
		return err
	}
	dropoff, err := json.Marshal(o.Dropoff)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, requester_id, driver_id, status, version,
			pickup, dropoff, distance_km, fare,
			created_at, completed_at, cancelled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID),
		string(o.RequesterID),
		idPtr(o.DriverID),
		string(o.Status),
		o.Version,
		pickup, dropoff,
		o.DistanceKm, o.Fare,
		o.CreatedAt, o.CompletedAt, o.CancelledAt,
	)
	return err
}

const orderColumns = `id, requester_id, driver_id, status, version,
	pickup, dropoff, distance_km, fare,
	created_at, completed_at, cancelled_at`

func (s *PgStore) GetOrder(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return o, err
}

func (s *PgStore) ListOrders(ctx context.Context, f Filter) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	var where []string
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.DriverID != nil {
		args = append(args, string(*f.DriverID))
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    driver_id = CASE WHEN $2 THEN NULL ELSE COALESCE($3, driver_id) END,
		    cancelled_at = COALESCE($4, cancelled_at)
		WHERE id = $5 AND status = $6 AND version = $7`,
		string(u.To),
		u.ClearDriver,
		idPtr(u.DriverID),
		u.CancelledAt,
		string(u.OrderID),
		string(u.From),
		u.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) CompleteOrder(ctx context.Context, u CompleteUpdate) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    distance_km = $2,
		    fare = $3
		WHERE id = $4 AND status = $5 AND version = $6`,
		string(StatusAwaitingPayment),
		u.DistanceKm,
		u.Fare,
		string(u.OrderID),
		string(u.From),
		u.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		WHERE payments.status <> 'SUCCESS'`,
		string(u.PaymentID),
		string(u.OrderID),
		u.Fare,
		string(PaymentPending),
		u.Now,
	)
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func (s *PgStore) MarkPaid(ctx context.Context, u PaidUpdate) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    completed_at = $2
		WHERE id = $3 AND status = $4 AND version = $5`,
		string(StatusCompleted),
		u.Now,
		string(u.OrderID),
		string(u.From),
		u.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = $1, method = $2, reference = $3, updated_at = $4
		WHERE order_id = $5 AND status <> 'SUCCESS'`,
		string(PaymentSuccess),
		u.Method,
		u.Reference,
		u.Now,
		string(u.OrderID),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		// No open payment to settle; leave the order untouched.
		return false, nil
	}

	return true, tx.Commit(ctx)
}

func (s *PgStore) GetPayment(ctx context.Context, orderID types.ID) (*Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, amount, status, method, reference, created_at, updated_at
		FROM payments
		WHERE order_id = $1`, string(orderID),
	)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment for order %s", ErrNotFound, orderID)
	}
	return p, err
}

func (s *PgStore) ListPayments(ctx context.Context) ([]*Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, amount, status, method, reference, created_at, updated_at
		FROM payments
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var pickup, dropoff []byte
	err := row.Scan(
		&o.ID, &o.RequesterID, &o.DriverID, &o.Status, &o.Version,
		&pickup, &dropoff, &o.DistanceKm, &o.Fare,
		&o.CreatedAt, &o.CompletedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pickup, &o.Pickup); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dropoff, &o.Dropoff); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Method, &p.Reference,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
