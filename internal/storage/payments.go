package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment/internal/payment"

	"github.com/shopspring/decimal"
)

// WalletStore implements payment.WalletStore on the wallets table. Balances
// are stored as decimal strings; Debit and Credit read and write inside one
// transaction.
type WalletStore struct {
	db *sql.DB
}

var _ payment.WalletStore = (*WalletStore)(nil)

func (s *WalletStore) CreateWallet(ctx context.Context, username string, initial decimal.Decimal) (payment.Wallet, error) {
	_, err := s.db.ExecContext(ctx, "INSERT INTO wallets (username, balance) VALUES (?, ?)", username, initial.String())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return payment.Wallet{}, payment.ErrWalletExists
		}
		return payment.Wallet{}, fmt.Errorf("insert wallet %s: %w", username, err)
	}
	return payment.Wallet{Username: username, Balance: initial}, nil
}

func (s *WalletStore) GetWallet(ctx context.Context, username string) (payment.Wallet, error) {
	balance, err := readBalance(ctx, s.db, username)
	if err != nil {
		return payment.Wallet{}, err
	}
	return payment.Wallet{Username: username, Balance: balance}, nil
}

func (s *WalletStore) Credit(ctx context.Context, username string, amount decimal.Decimal) (payment.Wallet, error) {
	if !amount.IsPositive() {
		return payment.Wallet{}, payment.ErrInvalidAmount
	}
	var w payment.Wallet
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		balance, err := readBalance(ctx, tx, username)
		if errors.Is(err, payment.ErrWalletNotFound) {
			balance = decimal.Zero
		} else if err != nil {
			return err
		}
		balance = balance.Add(amount)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (username, balance) VALUES (?, ?)
			ON CONFLICT(username) DO UPDATE SET balance = excluded.balance`,
			username, balance.String()); err != nil {
			return fmt.Errorf("credit wallet %s: %w", username, err)
		}
		w = payment.Wallet{Username: username, Balance: balance}
		return nil
	})
	return w, err
}

func (s *WalletStore) Debit(ctx context.Context, username string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return payment.ErrInvalidAmount
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		balance, err := readBalance(ctx, tx, username)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return payment.ErrInsufficientFunds
		}
		_, err = tx.ExecContext(ctx, "UPDATE wallets SET balance = ? WHERE username = ?", balance.Sub(amount).String(), username)
		if err != nil {
			return fmt.Errorf("debit wallet %s: %w", username, err)
		}
		return nil
	})
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q rowQuerier, username string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT balance FROM wallets WHERE username = ?", username).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, payment.ErrWalletNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read wallet %s: %w", username, err)
	}
	return decimal.NewFromString(raw)
}

// RecordStore implements payment.RecordStore on the payment_records table.
type RecordStore struct {
	db *sql.DB
}

var _ payment.RecordStore = (*RecordStore)(nil)

func (s *RecordStore) Append(ctx context.Context, r payment.Record) error {
	success := 0
	if r.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO payment_records (id, type, account_id, amount, success, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Type, r.AccountID, r.Amount.String(), success, r.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert payment record %s: %w", r.ID, err)
	}
	return nil
}

func (s *RecordStore) List(ctx context.Context) ([]payment.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, account_id, amount, success, timestamp FROM payment_records ORDER BY timestamp DESC, seq DESC")
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	defer rows.Close()

	var out []payment.Record
	for rows.Next() {
		var (
			r       payment.Record
			amount  string
			success int
			ts      int64
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.AccountID, &amount, &success, &ts); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment record %s amount %q: %w", r.ID, amount, err)
		}
		r.Success = success == 1
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
