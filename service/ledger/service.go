package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgercore/ledgerd/service/metrics"
)

// Options carries the deployment configuration for the pipeline. Quorum
// threshold and expiry timeout are deliberately explicit parameters rather
// than hardcoded policy.
type Options struct {
	// Validators is the closed set of identities allowed to endorse
	// transactions.
	Validators []string

	// QuorumTimeout is how long an admitted transaction may wait for
	// endorsements before the sweep expires it.
	QuorumTimeout time.Duration

	// MempoolCapacity bounds the pending pool.
	MempoolCapacity int

	// CommitRetries bounds persistence attempts before ErrStorage is
	// surfaced to the caller.
	CommitRetries int
}

// Service is the write path of the node: it accepts signed transaction
// requests, runs them through validation, nonce reservation, and pool
// admission, tracks validator endorsements, and commits on quorum.
type Service struct {
	store     Store
	sequencer *NonceSequencer
	pool      *Mempool
	tracker   *QuorumTracker
	writer    *CommitWriter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService wires the pipeline stages together. publisher may be nil when
// no commit fan-out is configured; m may be nil to disable metrics.
func NewService(opts Options, store Store, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	sequencer := NewNonceSequencer(store)
	pool := NewMempool(opts.MempoolCapacity)
	tracker := NewQuorumTracker(opts.Validators, opts.QuorumTimeout, logger)
	writer := NewCommitWriter(store, sequencer, pool, publisher, opts.CommitRetries, logger)

	s := &Service{
		store:     store,
		sequencer: sequencer,
		pool:      pool,
		tracker:   tracker,
		writer:    writer,
		metrics:   m,
		logger:    logger,
	}
	tracker.SetExpireHook(func(p *PendingTransaction) {
		sequencer.Release(p.Request.SenderAddress)
		if m != nil {
			m.RecordExpired(p.Request.SenderAddress)
			m.SetMempoolSize(pool.Len())
		}
	})
	return s
}

// Start launches the background expiry sweep. It returns immediately; the
// sweep stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.tracker.RunSweeper(ctx, s.pool)
}

// CreateTransaction runs the full admission pipeline for a request. When
// the request's endorsement hints already satisfy quorum the transaction is
// committed synchronously and the record is returned; otherwise the pending
// transaction is returned and the caller collects votes via SubmitVote.
func (s *Service) CreateTransaction(ctx context.Context, req *TransactionRequest) (*TransactionRecord, *PendingTransaction, error) {
	if err := ValidateRequest(req); err != nil {
		s.reject("validation", err)
		return nil, nil, err
	}

	// Endorsement hints must name configured validators; an open dynamic
	// map would silently drop typos.
	for identity := range req.Validators {
		if !s.tracker.KnownValidator(identity) {
			err := fmt.Errorf("%w: endorsement hint %q", ErrUnknownValidator, identity)
			s.reject("unknown_validator", err)
			return nil, nil, err
		}
	}

	if err := s.sequencer.Reserve(ctx, req.SenderAddress, req.Nonce); err != nil {
		s.reject("nonce", err)
		return nil, nil, err
	}

	p := newPendingTransaction(requestDigest(req), *req, s.pool.NextSeq())
	err := s.pool.Add(p)
	if errors.Is(err, ErrMempoolFull) {
		// Make room by expiring the oldest admitted entry, provided it is
		// strictly older than the incoming one. Expire re-checks the status
		// under the entry lock, so a transaction that reaches quorum between
		// selection and expiry survives and the admission fails instead.
		if victim := s.pool.OldestAdmitted(p.seq); victim != nil && s.tracker.Expire(s.pool, victim) {
			err = s.pool.Add(p)
		}
	}
	if err != nil {
		s.sequencer.Release(req.SenderAddress)
		s.reject("mempool", err)
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAdmission(req.SenderAddress)
		s.metrics.SetMempoolSize(s.pool.Len())
	}
	s.logger.Info("transaction admitted",
		"txn_id", p.ID,
		"sender", req.SenderAddress,
		"nonce", req.Nonce,
		"hints", len(req.Validators),
	)

	// Hints marked true count as votes at admission time.
	for identity, endorsed := range req.Validators {
		if !endorsed {
			continue
		}
		if _, err := s.tracker.RecordVote(p, identity); err != nil {
			return nil, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordVote(identity)
		}
	}

	if p.Status() == StatusQuorumReached {
		rec, err := s.commit(ctx, p)
		if err != nil {
			return nil, p, err
		}
		return rec, nil, nil
	}
	return nil, p, nil
}

// SubmitVote records a validator endorsement on a pending transaction and,
// when the vote crosses the quorum threshold, finalizes the commit. The
// returned record is non-nil only once the transaction is committed.
func (s *Service) SubmitVote(ctx context.Context, txnID, identity string) (Status, *TransactionRecord, error) {
	p := s.pool.Get(txnID)
	if p == nil {
		return "", nil, fmt.Errorf("%w: no pending transaction %s", ErrNotFound, txnID)
	}

	status, err := s.tracker.RecordVote(p, identity)
	if err != nil {
		return status, nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordVote(identity)
	}

	if status == StatusQuorumReached {
		rec, err := s.commit(ctx, p)
		if err != nil {
			return StatusQuorumReached, nil, err
		}
		return StatusCommitted, rec, nil
	}
	return status, nil, nil
}

// commit drives the writer and records metrics around it.
func (s *Service) commit(ctx context.Context, p *PendingTransaction) (*TransactionRecord, error) {
	start := time.Now()
	rec, err := s.writer.Commit(ctx, p)
	if s.metrics != nil {
		s.metrics.RecordCommit(err == nil, time.Since(start).Seconds())
		s.metrics.SetMempoolSize(s.pool.Len())
	}
	return rec, err
}

// GetTransaction returns a committed record by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (*TransactionRecord, error) {
	return s.store.GetTransaction(ctx, id)
}

// GetAccount returns the storage agent's view of an account.
func (s *Service) GetAccount(ctx context.Context, address string) (*Account, error) {
	return s.store.GetAccount(ctx, address)
}

// CancelTransaction withdraws a pending transaction. Cancellation is only
// honored while the transaction is Admitted; once quorum is reached it is
// effectively committing and the cancel fails.
func (s *Service) CancelTransaction(txnID string) error {
	p := s.pool.Get(txnID)
	if p == nil {
		return fmt.Errorf("%w: no pending transaction %s", ErrNotFound, txnID)
	}

	p.mu.Lock()
	if p.status != StatusAdmitted {
		status := p.status
		p.mu.Unlock()
		return fmt.Errorf("%w: transaction %s is %s", ErrNotCancellable, txnID, status)
	}
	p.status = StatusCancelled
	p.mu.Unlock()

	s.pool.Remove(txnID)
	s.sequencer.Release(p.Request.SenderAddress)
	if s.metrics != nil {
		s.metrics.SetMempoolSize(s.pool.Len())
	}
	s.logger.Info("transaction cancelled", "txn_id", txnID, "sender", p.Request.SenderAddress)
	return nil
}

// PendingStatus returns a snapshot of a pending transaction still in the
// pool, if any.
func (s *Service) PendingStatus(txnID string) (PendingSummary, bool) {
	p := s.pool.Get(txnID)
	if p == nil {
		return PendingSummary{}, false
	}
	return p.Summary(), true
}

// PendingTransactions returns read-only snapshots of the pool for node
// statistics.
func (s *Service) PendingTransactions() []PendingSummary {
	out := make([]PendingSummary, 0, s.pool.Len())
	s.pool.Range(func(p *PendingTransaction) bool {
		out = append(out, p.Summary())
		return true
	})
	return out
}

// MempoolStats reports pool occupancy and quorum configuration.
type MempoolStats struct {
	Size       int `json:"size"`
	Capacity   int `json:"capacity"`
	Validators int `json:"validators"`
	Quorum     int `json:"quorum"`
}

// Stats returns the current pool statistics.
func (s *Service) Stats() MempoolStats {
	return MempoolStats{
		Size:       s.pool.Len(),
		Capacity:   s.pool.Capacity(),
		Validators: s.tracker.ValidatorCount(),
		Quorum:     s.tracker.Quorum(),
	}
}

func (s *Service) reject(stage string, err error) {
	if s.metrics != nil {
		s.metrics.RecordRejection(stage)
	}
	if !errors.Is(err, ErrNonceTooLow) && !errors.Is(err, ErrNonceGap) {
		s.logger.Debug("transaction rejected", "stage", stage, "error", err)
	}
}
