package ledger

import "context"

// Store is the storage agent consumed by the pipeline. The agent owns
// account balances and committed nonces; this core only consults and updates
// it through this interface. Implementations must make ApplyTransaction
// idempotent by record id and must apply the record insert and the account
// nonce advance atomically.
type Store interface {
	// GetAccount returns the agent's view of an account, or ErrNotFound for
	// an address it has never seen.
	GetAccount(ctx context.Context, address string) (*Account, error)

	// ApplyTransaction persists a finalized record and advances the
	// sender's committed nonce in one atomic step. Re-applying a record
	// that is already persisted is a no-op.
	ApplyTransaction(ctx context.Context, rec *TransactionRecord) error

	// GetTransaction returns a committed record by id, or ErrNotFound.
	GetTransaction(ctx context.Context, id string) (*TransactionRecord, error)

	// TransactionExists reports whether a record with the given id has been
	// persisted. The commit retry path uses it to tolerate partial
	// completion.
	TransactionExists(ctx context.Context, id string) (bool, error)
}

// Publisher receives committed records for fan-out to downstream consumers.
// Publishing is best effort; failures never roll back a commit.
type Publisher interface {
	PublishCommit(ctx context.Context, rec *TransactionRecord) error
}

// NopPublisher discards commit events. Used when no message bus is
// configured.
type NopPublisher struct{}

func (NopPublisher) PublishCommit(context.Context, *TransactionRecord) error { return nil }
