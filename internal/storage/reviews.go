package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fulfillment/internal/inventory"
)

// ReviewStore implements inventory.ReviewStore on the reviews table.
type ReviewStore struct {
	db *sql.DB
}

var _ inventory.ReviewStore = (*ReviewStore)(nil)

func (s *ReviewStore) AddReview(ctx context.Context, r inventory.Review) (inventory.Review, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reviews (sku, customer, rating, comment, created_at) VALUES (?, ?, ?, ?, ?)",
		r.SKU, r.Customer, r.Rating, r.Comment, r.CreatedAt.UnixNano())
	if err != nil {
		return inventory.Review{}, fmt.Errorf("insert review for %s: %w", r.SKU, err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return inventory.Review{}, fmt.Errorf("insert review for %s: %w", r.SKU, err)
	}
	return r, nil
}

func (s *ReviewStore) ListReviews(ctx context.Context, sku string) ([]inventory.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sku, customer, rating, comment, created_at FROM reviews WHERE sku = ? ORDER BY id", sku)
	if err != nil {
		return nil, fmt.Errorf("list reviews for %s: %w", sku, err)
	}
	defer rows.Close()

	var reviews []inventory.Review
	for rows.Next() {
		var (
			r       inventory.Review
			created int64
		)
		if err := rows.Scan(&r.ID, &r.SKU, &r.Customer, &r.Rating, &r.Comment, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
