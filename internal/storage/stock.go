package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fulfillment/internal/stock"
)

// StockLedger implements stock.Ledger on the stock_items table.
type StockLedger struct {
	db *sql.DB
}

var _ stock.Ledger = (*StockLedger)(nil)

// Reserve decrements in a single conditional UPDATE, so the check and the
// decrement cannot be separated by a concurrent writer.
func (l *StockLedger) Reserve(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return stock.ErrInvalidQuantity
	}
	res, err := l.db.ExecContext(ctx,
		"UPDATE stock_items SET quantity = quantity - ? WHERE sku = ? AND quantity >= ?", qty, sku, qty)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", sku, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve %s: %w", sku, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := l.Get(ctx, sku); err != nil {
		return err
	}
	return stock.ErrInsufficientStock
}

func (l *StockLedger) Release(ctx context.Context, sku string, qty int) error {
	if qty <= 0 {
		return stock.ErrInvalidQuantity
	}
	res, err := l.db.ExecContext(ctx, "UPDATE stock_items SET quantity = quantity + ? WHERE sku = ?", qty, sku)
	if err != nil {
		return fmt.Errorf("release %s: %w", sku, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return stock.ErrSKUNotFound
	}
	return err
}

func (l *StockLedger) Get(ctx context.Context, sku string) (stock.Item, error) {
	var it stock.Item
	err := l.db.QueryRowContext(ctx, "SELECT sku, name, quantity FROM stock_items WHERE sku = ?", sku).
		Scan(&it.SKU, &it.Name, &it.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Item{}, stock.ErrSKUNotFound
	}
	if err != nil {
		return stock.Item{}, fmt.Errorf("get %s: %w", sku, err)
	}
	return it, nil
}

func (l *StockLedger) Put(ctx context.Context, item stock.Item) error {
	if item.Quantity < 0 {
		return stock.ErrInvalidQuantity
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stock_items (sku, name, quantity) VALUES (?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET name = excluded.name, quantity = excluded.quantity`,
		item.SKU, item.Name, item.Quantity)
	if err != nil {
		return fmt.Errorf("put %s: %w", item.SKU, err)
	}
	return nil
}

func (l *StockLedger) List(ctx context.Context) ([]stock.Item, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT sku, name, quantity FROM stock_items ORDER BY sku")
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var items []stock.Item
	for rows.Next() {
		var it stock.Item
		if err := rows.Scan(&it.SKU, &it.Name, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
