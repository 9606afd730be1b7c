package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitFixture wires a writer around a quorum-reached pending transaction.
type commitFixture struct {
	store     *memStore
	sequencer *NonceSequencer
	pool      *Mempool
	publisher *capturePublisher
	writer    *CommitWriter
	pending   *PendingTransaction
}

func newCommitFixture(t *testing.T, retries int) *commitFixture {
	t.Helper()

	store := newMemStore()
	sequencer := NewNonceSequencer(store)
	pool := NewMempool(10)
	publisher := &capturePublisher{}
	tracker := NewQuorumTracker([]string{"v1"}, time.Minute, discardLogger())

	writer := NewCommitWriter(store, sequencer, pool, publisher, retries, discardLogger())
	writer.backoff = time.Millisecond

	require.NoError(t, sequencer.Reserve(context.Background(), "sender-acct", 1))
	p := newPendingTransaction("txn-1", TransactionRequest{
		Timestamp:       1700000000,
		SenderAddress:   "sender-acct",
		SenderPublicKey: "sender-pub",
		ReceiverAddress: "receiver-acct",
		Token:           Token{Name: "LedgerCoin", Symbol: "LDGR", Decimals: 9},
		Amount:          500,
		Signature:       "sig",
		Nonce:           1,
	}, pool.NextSeq())
	require.NoError(t, pool.Add(p))

	status, err := tracker.RecordVote(p, "v1")
	require.NoError(t, err)
	require.Equal(t, StatusQuorumReached, status)

	return &commitFixture{
		store:     store,
		sequencer: sequencer,
		pool:      pool,
		publisher: publisher,
		writer:    writer,
		pending:   p,
	}
}

func TestCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("applies all four effects", func(t *testing.T) {
		f := newCommitFixture(t, 1)

		rec, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		require.NotNil(t, rec)

		// Record persisted under its deterministic id.
		assert.Equal(t, ComputeRecordID(rec), rec.ID)
		stored, err := f.store.GetTransaction(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Nonce, stored.Nonce)
		assert.Equal(t, map[string]bool{"v1": true}, stored.Validators)

		// Nonce advanced.
		last, err := f.sequencer.LastCommitted(ctx, "sender-acct")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), last)

		// Pool entry cleared, status settled.
		assert.Nil(t, f.pool.Get("txn-1"))
		assert.Equal(t, StatusCommitted, f.pending.Status())

		// Fan-out happened.
		assert.Equal(t, 1, f.publisher.count())
	})

	t.Run("recommitting returns the existing record", func(t *testing.T) {
		f := newCommitFixture(t, 1)

		first, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		calls := f.store.applyCalls

		second, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, calls, f.store.applyCalls, "no further persistence attempts")
	})

	t.Run("retries transient storage failures", func(t *testing.T) {
		f := newCommitFixture(t, 3)
		f.store.failNextApplies(1)

		rec, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		assert.Equal(t, 2, f.store.applyCalls)

		stored, err := f.store.GetTransaction(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, stored.ID)
	})

	t.Run("keeps quorum after exhausting retries", func(t *testing.T) {
		f := newCommitFixture(t, 1)
		f.store.failNextApplies(10)

		_, err := f.writer.Commit(ctx, f.pending)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStorage))
		assert.Equal(t, StatusQuorumReached, f.pending.Status())
		assert.NotNil(t, f.pool.Get("txn-1"), "entry stays pooled for a retry")

		// The nonce reservation is still outstanding, not committed.
		last, lerr := f.sequencer.LastCommitted(ctx, "sender-acct")
		require.NoError(t, lerr)
		assert.Equal(t, uint64(0), last)

		// A later attempt reuses the frozen record content and succeeds.
		frozenID := f.pending.record.ID
		f.store.failNextApplies(0)
		rec, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		assert.Equal(t, frozenID, rec.ID)
		assert.Equal(t, StatusCommitted, f.pending.Status())
	})

	t.Run("publish failure does not fail the commit", func(t *testing.T) {
		f := newCommitFixture(t, 1)
		f.publisher.err = errors.New("bus down")

		rec, err := f.writer.Commit(ctx, f.pending)
		require.NoError(t, err)
		assert.Equal(t, StatusCommitted, f.pending.Status())
		_, err = f.store.GetTransaction(ctx, rec.ID)
		assert.NoError(t, err)
	})

	t.Run("panics below quorum", func(t *testing.T) {
		f := newCommitFixture(t, 1)
		p := newPendingTransaction("txn-2", TransactionRequest{SenderAddress: "other"}, f.pool.NextSeq())

		assert.Panics(t, func() { f.writer.Commit(ctx, p) })
	})
}
