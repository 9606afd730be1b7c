package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CommitWriter finalizes quorum-reached transactions: it assigns the
// finalized timestamp, computes the deterministic record id, persists the
// record through the storage agent, advances the sender's committed nonce,
// and clears the pool entry.
type CommitWriter struct {
	store     Store
	sequencer *NonceSequencer
	pool      *Mempool
	publisher Publisher
	retries   int
	backoff   time.Duration
	logger    *slog.Logger
}

// NewCommitWriter wires the writer to its collaborators. retries bounds the
// persistence attempts before ErrStorage is surfaced.
func NewCommitWriter(store Store, sequencer *NonceSequencer, pool *Mempool, publisher Publisher, retries int, logger *slog.Logger) *CommitWriter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &CommitWriter{
		store:     store,
		sequencer: sequencer,
		pool:      pool,
		publisher: publisher,
		retries:   retries,
		backoff:   100 * time.Millisecond,
		logger:    logger,
	}
}

// Commit finalizes p. It must only be invoked for a transaction in the
// QuorumReached state; invoking it for a transaction that never reached
// quorum is a programming error. A transaction already committed returns its
// existing record, which makes vote-driven retries after a storage failure
// safe.
//
// The entry lock is held for the whole operation so the four effects
// (persist, nonce advance, pool removal, record visibility) appear atomic to
// every observer that goes through the pipeline.
func (w *CommitWriter) Commit(ctx context.Context, p *PendingTransaction) (*TransactionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.status {
	case StatusCommitted:
		return p.record, nil
	case StatusQuorumReached:
		// proceed
	default:
		panic(fmt.Sprintf("ledger: commit writer invoked for transaction %s in state %s", p.ID, p.status))
	}

	// Finalized content is fixed on the first attempt; retries must reuse
	// the same id or an earlier partially-completed attempt would leave a
	// duplicate record behind.
	if p.record == nil {
		req := p.Request
		rec := &TransactionRecord{
			Timestamp:       req.Timestamp,
			SenderAddress:   req.SenderAddress,
			SenderPublicKey: req.SenderPublicKey,
			ReceiverAddress: req.ReceiverAddress,
			Token:           req.Token,
			Amount:          req.Amount,
			Signature:       req.Signature,
			Validators:      voteMapLocked(p),
			Nonce:           p.ReservedNonce,
			FinalizedAt:     time.Now().UTC(),
		}
		rec.ID = ComputeRecordID(rec)
		p.record = rec
	}

	if err := w.persist(ctx, p.record); err != nil {
		// Leave the transaction in QuorumReached so a later vote can retry
		// the commit without re-running quorum.
		w.logger.Error("commit persistence failed, retries exhausted",
			"txn_id", p.ID,
			"record_id", p.record.ID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: persisting record %s: %v", ErrStorage, p.record.ID, err)
	}

	w.sequencer.Commit(p.Request.SenderAddress)
	p.status = StatusCommitted
	w.pool.Remove(p.ID)

	if err := w.publisher.PublishCommit(ctx, p.record); err != nil {
		// Fan-out is best effort; consumers reconcile from storage.
		w.logger.Error("failed to publish commit event",
			"record_id", p.record.ID,
			"error", err,
		)
	}

	w.logger.Info("transaction committed",
		"txn_id", p.ID,
		"record_id", p.record.ID,
		"sender", p.record.SenderAddress,
		"nonce", p.record.Nonce,
		"amount", p.record.Amount,
	)
	return p.record, nil
}

// persist writes the record with a bounded retry loop. A record that is
// already present (from an earlier partially-completed attempt) counts as
// success.
func (w *CommitWriter) persist(ctx context.Context, rec *TransactionRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff * time.Duration(attempt)):
			}
			exists, err := w.store.TransactionExists(ctx, rec.ID)
			if err == nil && exists {
				return nil
			}
		}
		if lastErr = w.store.ApplyTransaction(ctx, rec); lastErr == nil {
			return nil
		}
		w.logger.Warn("apply transaction failed",
			"record_id", rec.ID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return lastErr
}

// voteMapLocked renders the vote set in the wire's validator->bool shape.
// Caller holds p.mu.
func voteMapLocked(p *PendingTransaction) map[string]bool {
	out := make(map[string]bool, len(p.votes))
	for v := range p.votes {
		out[v] = true
	}
	return out
}
