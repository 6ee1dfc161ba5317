// Package storage persists stock, orders, wallets and payment records in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DB is an open SQLite database with the fulfillment schema applied. Each
// domain store is a thin view over it.
type DB struct {
	db *sql.DB
}

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps a :memory: database alive for the pool's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Open opens (creating if needed) the database at dbPath and applies migrations.
func Open(ctx context.Context, dbPath string) (*DB, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Stock() *StockLedger { return &StockLedger{db: d.db} }

func (d *DB) Orders() *OrderStore { return &OrderStore{db: d.db} }

func (d *DB) Wallets() *WalletStore { return &WalletStore{db: d.db} }

func (d *DB) PaymentRecords() *RecordStore { return &RecordStore{db: d.db} }

func (d *DB) Reviews() *ReviewStore { return &ReviewStore{db: d.db} }

// withTx runs fn in a transaction and commits if fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
