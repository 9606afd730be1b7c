// Package db implements the storage agent on PostgreSQL. It owns account
// balances and committed nonces and holds the immutable transaction records;
// the admission pipeline only touches it through the ledger.Store interface.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgercore/ledgerd/service/ledger"
	"github.com/ledgercore/ledgerd/service/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Store provides database operations for the node. It implements
// ledger.Store.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// metrics may be nil, in which case query instrumentation is skipped.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Migrate applies the schema. Statements are idempotent; running against an
// already-migrated database is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) observe(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, time.Since(start).Seconds(), err)
	}
}

// GetAccount retrieves an account by address. Returns
// ledger.ErrNotFound for an address the agent has never seen.
func (s *Store) GetAccount(ctx context.Context, address string) (*ledger.Account, error) {
	start := time.Now()
	var (
		acct    ledger.Account
		balance int64
		nonce   int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT address, balance, nonce FROM accounts WHERE address = $1`,
		address,
	).Scan(&acct.Address, &balance, &nonce)
	s.observe("get_account", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", address, ledger.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	acct.Balance = uint64(balance)
	acct.Nonce = uint64(nonce)
	return &acct, nil
}

// ApplyTransaction persists a finalized record and advances the sender's
// committed nonce in a single database transaction. The insert is keyed on
// the record id, so re-applying an already-persisted record is a no-op and
// the account effects are not repeated.
func (s *Store) ApplyTransaction(ctx context.Context, rec *ledger.TransactionRecord) error {
	start := time.Now()
	err := s.applyTransaction(ctx, rec)
	s.observe("apply_transaction", start, err)
	return err
}

func (s *Store) applyTransaction(ctx context.Context, rec *ledger.TransactionRecord) error {
	validators, err := json.Marshal(rec.Validators)
	if err != nil {
		return fmt.Errorf("failed to encode validators for %s: %w", rec.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, request_timestamp, sender_address, sender_public_key,
			receiver_address, token_name, token_symbol, token_decimals,
			amount, signature, validators, nonce, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.Timestamp,
		rec.SenderAddress,
		rec.SenderPublicKey,
		rec.ReceiverAddress,
		rec.Token.Name,
		rec.Token.Symbol,
		int32(rec.Token.Decimals),
		int64(rec.Amount),
		rec.Signature,
		validators,
		int64(rec.Nonce),
		rec.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already persisted; the account effects went in with the original
		// insert.
		return tx.Commit(ctx)
	}

	// Debit the sender and advance its committed nonce. The sender row may
	// not exist yet for the very first transaction from an address.
	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (address, balance, nonce)
		VALUES ($1, 0, $2)
		ON CONFLICT (address) DO UPDATE SET
			balance    = GREATEST(accounts.balance - $3, 0),
			nonce      = $2,
			updated_at = now()`,
		rec.SenderAddress, int64(rec.Nonce), int64(rec.Amount),
	)
	if err != nil {
		return fmt.Errorf("failed to update sender account %s: %w", rec.SenderAddress, err)
	}

	// Credit the receiver.
	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (address, balance)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			balance    = accounts.balance + $2,
			updated_at = now()`,
		rec.ReceiverAddress, int64(rec.Amount),
	)
	if err != nil {
		return fmt.Errorf("failed to update receiver account %s: %w", rec.ReceiverAddress, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", rec.ID, err)
	}
	return nil
}

// GetTransaction retrieves a committed record by id. Returns
// ledger.ErrNotFound if no record with that id has been persisted.
func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.TransactionRecord, error) {
	start := time.Now()
	rec, err := s.scanTransaction(s.pool.QueryRow(ctx,
		`SELECT id, request_timestamp, sender_address, sender_public_key,
		        receiver_address, token_name, token_symbol, token_decimals,
		        amount, signature, validators, nonce, finalized_at
		 FROM transactions WHERE id = $1`,
		id,
	))
	s.observe("get_transaction", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return rec, nil
}

// TransactionExists reports whether a record with the given id has been
// persisted.
func (s *Store) TransactionExists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id,
	).Scan(&exists)
	s.observe("transaction_exists", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", id, err)
	}
	return exists, nil
}

// ListTransactionsByAccountParams contains pagination parameters for
// ListTransactionsByAccount.
type ListTransactionsByAccountParams struct {
	Address string
	Limit   int32
	Offset  int32
}

// ListTransactionsByAccount retrieves committed records where the address is
// the sender or the receiver, newest first.
func (s *Store) ListTransactionsByAccount(ctx context.Context, params ListTransactionsByAccountParams) ([]*ledger.TransactionRecord, error) {
	start := time.Now()
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_timestamp, sender_address, sender_public_key,
		        receiver_address, token_name, token_symbol, token_decimals,
		        amount, signature, validators, nonce, finalized_at
		 FROM transactions
		 WHERE sender_address = $1 OR receiver_address = $1
		 ORDER BY finalized_at DESC
		 LIMIT $2 OFFSET $3`,
		params.Address, limit, params.Offset,
	)
	if err != nil {
		s.observe("list_transactions_by_account", start, err)
		return nil, fmt.Errorf("failed to list transactions for %s: %w", params.Address, err)
	}
	defer rows.Close()

	var out []*ledger.TransactionRecord
	for rows.Next() {
		rec, err := s.scanTransaction(rows)
		if err != nil {
			s.observe("list_transactions_by_account", start, err)
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		out = append(out, rec)
	}
	err = rows.Err()
	s.observe("list_transactions_by_account", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}
	return out, nil
}

// CountTransactionsByAccount returns the number of committed records where
// the address is the sender or the receiver.
func (s *Store) CountTransactionsByAccount(ctx context.Context, address string) (int64, error) {
	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE sender_address = $1 OR receiver_address = $1`,
		address,
	).Scan(&count)
	s.observe("count_transactions_by_account", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for %s: %w", address, err)
	}
	return count, nil
}

// scanTransaction maps a transactions row onto the domain record.
func (s *Store) scanTransaction(row pgx.Row) (*ledger.TransactionRecord, error) {
	var (
		rec        ledger.TransactionRecord
		decimals   int32
		amount     int64
		nonce      int64
		validators []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.SenderAddress,
		&rec.SenderPublicKey,
		&rec.ReceiverAddress,
		&rec.Token.Name,
		&rec.Token.Symbol,
		&decimals,
		&amount,
		&rec.Signature,
		&validators,
		&nonce,
		&rec.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Token.Decimals = uint32(decimals)
	rec.Amount = uint64(amount)
	rec.Nonce = uint64(nonce)
	if err := json.Unmarshal(validators, &rec.Validators); err != nil {
		return nil, fmt.Errorf("failed to decode validators for %s: %w", rec.ID, err)
	}
	rec.FinalizedAt = rec.FinalizedAt.UTC()
	return &rec, nil
}
