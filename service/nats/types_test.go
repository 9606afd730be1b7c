package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgerd/service/ledger"
)

func testRecord() *ledger.TransactionRecord {
	return &ledger.TransactionRecord{
		ID:              "rec-1",
		SenderAddress:   "sender-acct",
		ReceiverAddress: "receiver-acct",
		Token:           ledger.Token{Name: "LedgerCoin", Symbol: "LDGR", Decimals: 9},
		Amount:          500,
		Nonce:           7,
		Validators:      map[string]bool{"v1": true, "v2": true},
		FinalizedAt:     time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromRecord(t *testing.T) {
	rec := testRecord()
	event := FromRecord(rec)

	assert.Equal(t, "rec-1", event.TransactionID)
	assert.Equal(t, "sender-acct", event.SenderAddress)
	assert.Equal(t, "receiver-acct", event.ReceiverAddress)
	assert.Equal(t, "LedgerCoin", event.TokenName)
	assert.Equal(t, "LDGR", event.TokenSymbol)
	assert.Equal(t, uint64(500), event.Amount)
	assert.Equal(t, uint64(7), event.Nonce)
	assert.Equal(t, rec.Validators, event.Validators)
	assert.Equal(t, rec.FinalizedAt, event.FinalizedAt)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("records published events", func(t *testing.T) {
		mock := NewMockPublisher()

		require.NoError(t, mock.PublishCommit(ctx, testRecord()))
		other := testRecord()
		other.ID = "rec-2"
		other.SenderAddress = "other-acct"
		require.NoError(t, mock.PublishCommit(ctx, other))

		assert.Equal(t, 2, mock.GetPublishedEventCount())
		forSender := mock.GetPublishedEventsForSender("other-acct")
		require.Len(t, forSender, 1)
		assert.Equal(t, "rec-2", forSender[0].TransactionID)
	})

	t.Run("configured error suppresses recording", func(t *testing.T) {
		mock := NewMockPublisher()
		mock.SetPublishError(errors.New("bus down"))

		err := mock.PublishCommit(ctx, testRecord())
		require.Error(t, err)
		assert.Equal(t, 0, mock.GetPublishedEventCount())
	})
}
