package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NonceSequencer enforces strict per-account nonce ordering: a request is
// admitted only with nonce == lastCommitted+1, and at most one reservation
// per account is outstanding at a time. Different accounts never contend on
// a shared lock.
type NonceSequencer struct {
	store Store

	mu       sync.Mutex
	accounts map[string]*accountNonce
}

// accountNonce is the per-account serialization point. Its mutex is held for
// the duration of reserve/release/commit so concurrent calls for the same
// sender are mutually exclusive.
type accountNonce struct {
	mu            sync.Mutex
	seeded        bool
	lastCommitted uint64
	reserved      bool
	reservedNonce uint64
}

// NewNonceSequencer builds a sequencer that seeds unseen accounts from the
// storage agent on first touch.
func NewNonceSequencer(store Store) *NonceSequencer {
	return &NonceSequencer{
		store:    store,
		accounts: make(map[string]*accountNonce),
	}
}

// entry returns the per-account state, creating it on first use.
func (s *NonceSequencer) entry(address string) *accountNonce {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[address]
	if !ok {
		a = &accountNonce{}
		s.accounts[address] = a
	}
	return a
}

// seedLocked loads lastCommitted from the storage agent. Accounts the agent
// has never seen start at 0. Caller holds a.mu.
func (s *NonceSequencer) seedLocked(ctx context.Context, address string, a *accountNonce) error {
	if a.seeded {
		return nil
	}
	acct, err := s.store.GetAccount(ctx, address)
	switch {
	case errors.Is(err, ErrNotFound):
		a.lastCommitted = 0
	case err != nil:
		return fmt.Errorf("%w: seeding nonce for %s: %v", ErrStorage, address, err)
	default:
		a.lastCommitted = acct.Nonce
	}
	a.seeded = true
	return nil
}

// Reserve atomically marks nonce as reserved-but-not-committed. It fails
// with ErrNonceTooLow when the nonce is at or below lastCommitted (or when a
// reservation for that value is already outstanding), and ErrNonceGap when
// the nonce skips ahead.
func (s *NonceSequencer) Reserve(ctx context.Context, address string, nonce uint64) error {
	a := s.entry(address)
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := s.seedLocked(ctx, address, a); err != nil {
		return err
	}

	next := a.lastCommitted + 1
	switch {
	case nonce < next:
		return fmt.Errorf("%w: nonce %d, account %s has committed through %d",
			ErrNonceTooLow, nonce, address, a.lastCommitted)
	case nonce > next:
		return fmt.Errorf("%w: nonce %d, account %s expects %d",
			ErrNonceGap, nonce, address, next)
	case a.reserved:
		// The only acceptable nonce is already being consumed by a pending
		// transaction; from this caller's point of view it is spent.
		return fmt.Errorf("%w: nonce %d for account %s is reserved by a pending transaction",
			ErrNonceTooLow, nonce, address)
	}

	a.reserved = true
	a.reservedNonce = nonce
	return nil
}

// Release returns an outstanding reservation without advancing
// lastCommitted. Used when the pending transaction is cancelled or expires.
func (s *NonceSequencer) Release(address string) {
	a := s.entry(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved = false
	a.reservedNonce = 0
}

// Commit converts the outstanding reservation into a permanent advance of
// lastCommitted. Calling Commit without a reservation is a programming
// error.
func (s *NonceSequencer) Commit(address string) uint64 {
	a := s.entry(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.reserved {
		panic(fmt.Sprintf("ledger: nonce commit without reservation for account %s", address))
	}
	a.lastCommitted = a.reservedNonce
	a.reserved = false
	a.reservedNonce = 0
	return a.lastCommitted
}

// LastCommitted reports the sequencer's view of an account, seeding it from
// the storage agent if needed.
func (s *NonceSequencer) LastCommitted(ctx context.Context, address string) (uint64, error) {
	a := s.entry(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := s.seedLocked(ctx, address, a); err != nil {
		return 0, err
	}
	return a.lastCommitted, nil
}
