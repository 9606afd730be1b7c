package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// QuorumTracker records validator endorsements per pending transaction and
// decides when a strict majority of the configured validator set has been
// reached. The validator set is closed: identities outside it are rejected,
// never silently ignored.
type QuorumTracker struct {
	validators map[string]struct{}
	timeout    time.Duration
	logger     *slog.Logger

	// onExpire runs for every transaction the sweep (or an overflow
	// eviction) retires; the service wires it to nonce release and metrics.
	onExpire func(*PendingTransaction)
}

// NewQuorumTracker builds a tracker over a closed validator identity set
// with the given expiry window.
func NewQuorumTracker(validators []string, timeout time.Duration, logger *slog.Logger) *QuorumTracker {
	set := make(map[string]struct{}, len(validators))
	for _, v := range validators {
		set[v] = struct{}{}
	}
	return &QuorumTracker{
		validators: set,
		timeout:    timeout,
		logger:     logger,
		onExpire:   func(*PendingTransaction) {},
	}
}

// SetExpireHook installs the callback invoked after a transaction expires.
func (t *QuorumTracker) SetExpireHook(fn func(*PendingTransaction)) {
	if fn != nil {
		t.onExpire = fn
	}
}

// Quorum returns the strict-majority threshold for the configured set size,
// evaluated at call time rather than cached per transaction.
func (t *QuorumTracker) Quorum() int {
	return len(t.validators)/2 + 1
}

// ValidatorCount returns the configured set size.
func (t *QuorumTracker) ValidatorCount() int {
	return len(t.validators)
}

// KnownValidator reports whether identity belongs to the configured set.
func (t *QuorumTracker) KnownValidator(identity string) bool {
	_, ok := t.validators[identity]
	return ok
}

// RecordVote registers an endorsement and returns the transaction's
// resulting status. Recording a validator that already voted is an
// idempotent no-op. The vote insert, the threshold check, and the
// Admitted -> QuorumReached transition happen under the entry's lock as one
// indivisible step, so two concurrent votes can never both observe "below
// quorum" and double-trigger the commit path.
func (t *QuorumTracker) RecordVote(p *PendingTransaction, identity string) (Status, error) {
	if !t.KnownValidator(identity) {
		return "", fmt.Errorf("%w: %q", ErrUnknownValidator, identity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.status {
	case StatusAdmitted:
		// fall through to record the vote
	case StatusQuorumReached:
		// Quorum already reached (possibly stuck behind a storage failure);
		// the vote is idempotent and the caller may retry the commit.
		p.votes[identity] = struct{}{}
		return p.status, nil
	default:
		return p.status, fmt.Errorf("%w: transaction %s is %s", ErrNotFound, p.ID, p.status)
	}

	p.votes[identity] = struct{}{}
	if len(p.votes) >= t.Quorum() {
		p.status = StatusQuorumReached
		t.logger.Debug("quorum reached",
			"txn_id", p.ID,
			"votes", len(p.votes),
			"quorum", t.Quorum(),
		)
	}
	return p.status, nil
}

// Expire transitions an admitted transaction to Expired, removes it from the
// pool, and runs the expire hook. Transactions that already reached quorum
// are left alone.
func (t *QuorumTracker) Expire(pool *Mempool, p *PendingTransaction) bool {
	p.mu.Lock()
	if p.status != StatusAdmitted {
		p.mu.Unlock()
		return false
	}
	p.status = StatusExpired
	p.mu.Unlock()

	pool.Remove(p.ID)
	t.onExpire(p)
	t.logger.Info("transaction expired before quorum",
		"txn_id", p.ID,
		"sender", p.Request.SenderAddress,
		"votes", p.VoteCount(),
		"quorum", t.Quorum(),
	)
	return true
}

// RunSweeper periodically expires transactions that have not reached quorum
// within the timeout window. It runs on its own goroutine's ticker,
// independent of request handling, and returns when ctx is cancelled.
func (t *QuorumTracker) RunSweeper(ctx context.Context, pool *Mempool) {
	interval := t.timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("quorum sweeper started", "timeout", t.timeout, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("quorum sweeper stopped")
			return
		case <-ticker.C:
			t.sweep(pool)
		}
	}
}

func (t *QuorumTracker) sweep(pool *Mempool) {
	cutoff := time.Now().UTC().Add(-t.timeout)
	var expired int
	pool.Range(func(p *PendingTransaction) bool {
		if p.AdmittedAt.Before(cutoff) && t.Expire(pool, p) {
			expired++
		}
		return true
	})
	if expired > 0 {
		t.logger.Debug("sweep completed", "expired", expired, "remaining", pool.Len())
	}
}
