package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonceSequencerReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh account expects nonce 1", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		assert.NoError(t, seq.Reserve(ctx, "acct", 1))
	})

	t.Run("seeds last committed from the storage agent", func(t *testing.T) {
		store := newMemStore()
		store.setAccount("acct", 0, 41)
		seq := NewNonceSequencer(store)

		err := seq.Reserve(ctx, "acct", 41)
		assert.True(t, errors.Is(err, ErrNonceTooLow))

		assert.NoError(t, seq.Reserve(ctx, "acct", 42))
	})

	t.Run("rejects gapped nonces", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		err := seq.Reserve(ctx, "acct", 3)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonceGap))
	})

	t.Run("rejects a nonce already reserved", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		require.NoError(t, seq.Reserve(ctx, "acct", 1))

		err := seq.Reserve(ctx, "acct", 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonceTooLow))
	})

	t.Run("accounts do not interfere", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		require.NoError(t, seq.Reserve(ctx, "a", 1))
		assert.NoError(t, seq.Reserve(ctx, "b", 1))
	})
}

func TestNonceSequencerReleaseAndCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("release frees the reservation without advancing", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		require.NoError(t, seq.Reserve(ctx, "acct", 1))
		seq.Release("acct")

		// The same nonce is admissible again.
		assert.NoError(t, seq.Reserve(ctx, "acct", 1))

		last, err := seq.LastCommitted(ctx, "acct")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), last)
	})

	t.Run("commit advances last committed", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		require.NoError(t, seq.Reserve(ctx, "acct", 1))
		assert.Equal(t, uint64(1), seq.Commit("acct"))

		// Strictly the next value from here on.
		err := seq.Reserve(ctx, "acct", 1)
		assert.True(t, errors.Is(err, ErrNonceTooLow))
		err = seq.Reserve(ctx, "acct", 3)
		assert.True(t, errors.Is(err, ErrNonceGap))
		assert.NoError(t, seq.Reserve(ctx, "acct", 2))
	})

	t.Run("commit without reservation panics", func(t *testing.T) {
		seq := NewNonceSequencer(newMemStore())
		assert.Panics(t, func() { seq.Commit("acct") })
	})
}

func TestNonceSequencerConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	seq := NewNonceSequencer(newMemStore())

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- seq.Reserve(ctx, "acct", 1)
		}()
	}
	wg.Wait()
	close(results)

	var wins, tooLow int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNonceTooLow):
			tooLow++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one reservation may win")
	assert.Equal(t, goroutines-1, tooLow)
}
