package ledger

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trackerWith(n int) (*QuorumTracker, []string) {
	validators := make([]string, n)
	for i := range validators {
		validators[i] = string(rune('a' + i))
	}
	return NewQuorumTracker(validators, time.Minute, discardLogger()), validators
}

func TestQuorumThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 7: 4}
	for size, want := range cases {
		tracker, _ := trackerWith(size)
		assert.Equal(t, want, tracker.Quorum(), "set size %d", size)
	}
}

func TestRecordVote(t *testing.T) {
	t.Run("rejects unknown validators", func(t *testing.T) {
		tracker, _ := trackerWith(3)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)

		_, err := tracker.RecordVote(p, "intruder")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownValidator))
		assert.Equal(t, 0, p.VoteCount())
	})

	t.Run("transitions to quorum reached at the threshold", func(t *testing.T) {
		tracker, validators := trackerWith(3)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)

		status, err := tracker.RecordVote(p, validators[0])
		require.NoError(t, err)
		assert.Equal(t, StatusAdmitted, status)

		status, err = tracker.RecordVote(p, validators[1])
		require.NoError(t, err)
		assert.Equal(t, StatusQuorumReached, status)
	})

	t.Run("duplicate votes are idempotent", func(t *testing.T) {
		tracker, validators := trackerWith(3)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)

		for i := 0; i < 5; i++ {
			status, err := tracker.RecordVote(p, validators[0])
			require.NoError(t, err)
			assert.Equal(t, StatusAdmitted, status)
		}
		assert.Equal(t, 1, p.VoteCount())
	})

	t.Run("votes after quorum keep reporting quorum reached", func(t *testing.T) {
		tracker, validators := trackerWith(3)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)

		tracker.RecordVote(p, validators[0])
		tracker.RecordVote(p, validators[1])

		status, err := tracker.RecordVote(p, validators[2])
		require.NoError(t, err)
		assert.Equal(t, StatusQuorumReached, status)
		assert.Equal(t, 3, p.VoteCount())
	})

	t.Run("voting on an expired transaction fails", func(t *testing.T) {
		tracker, validators := trackerWith(3)
		pool := NewMempool(10)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)
		require.NoError(t, pool.Add(p))
		require.True(t, tracker.Expire(pool, p))

		_, err := tracker.RecordVote(p, validators[0])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestExpire(t *testing.T) {
	t.Run("retires an admitted transaction and runs the hook", func(t *testing.T) {
		tracker, _ := trackerWith(3)
		var hooked []string
		tracker.SetExpireHook(func(p *PendingTransaction) { hooked = append(hooked, p.ID) })

		pool := NewMempool(10)
		p := newPendingTransaction("txn-1", TransactionRequest{SenderAddress: "acct"}, 1)
		require.NoError(t, pool.Add(p))

		assert.True(t, tracker.Expire(pool, p))
		assert.Equal(t, StatusExpired, p.Status())
		assert.Nil(t, pool.Get("txn-1"))
		assert.Equal(t, []string{"txn-1"}, hooked)
	})

	t.Run("leaves quorum-reached transactions alone", func(t *testing.T) {
		tracker, validators := trackerWith(1)
		pool := NewMempool(10)
		p := newPendingTransaction("txn-1", TransactionRequest{}, 1)
		require.NoError(t, pool.Add(p))
		tracker.RecordVote(p, validators[0])

		assert.False(t, tracker.Expire(pool, p))
		assert.Equal(t, StatusQuorumReached, p.Status())
		assert.NotNil(t, pool.Get("txn-1"))
	})
}

func TestSweep(t *testing.T) {
	tracker, _ := trackerWith(3)
	pool := NewMempool(10)

	stale := newPendingTransaction("txn-stale", TransactionRequest{}, pool.NextSeq())
	stale.AdmittedAt = time.Now().UTC().Add(-2 * time.Minute)
	fresh := newPendingTransaction("txn-fresh", TransactionRequest{}, pool.NextSeq())

	require.NoError(t, pool.Add(stale))
	require.NoError(t, pool.Add(fresh))

	tracker.sweep(pool)

	assert.Equal(t, StatusExpired, stale.Status())
	assert.Nil(t, pool.Get("txn-stale"))
	assert.Equal(t, StatusAdmitted, fresh.Status())
	assert.NotNil(t, pool.Get("txn-fresh"))
}
