package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/order"

	"github.com/shopspring/decimal"
)

// OrderStore implements order.Store on the orders table.
type OrderStore struct {
	db *sql.DB
}

var _ order.Store = (*OrderStore)(nil)

const orderColumns = "id, customer_id, sku, quantity, amount, status, created_at, updated_at"

func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.CustomerID, o.SKU, o.Quantity, o.Amount.String(), string(o.Status),
		o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return order.ErrAlreadyExists
		}
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.list(ctx, "customer_id = ?", customerID)
}

func (s *OrderStore) ListByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	return s.list(ctx, "status = ?", string(status))
}

// Transition is a compare-and-set on status.
func (s *OrderStore) Transition(ctx context.Context, id string, from, to order.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC().UnixNano(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *OrderStore) list(ctx context.Context, where string, arg any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE "+where+" ORDER BY created_at, id", arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*order.Order, error) {
	var (
		o                order.Order
		amount, status   string
		created, updated int64
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.SKU, &o.Quantity, &amount, &status, &created, &updated); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("order %s amount %q: %w", o.ID, amount, err)
	}
	o.Amount = d
	o.Status = order.Status(status)
	o.CreatedAt = time.Unix(0, created).UTC()
	o.UpdatedAt = time.Unix(0, updated).UTC()
	return &o, nil
}
