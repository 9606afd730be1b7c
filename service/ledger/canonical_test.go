package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRequest() *TransactionRequest {
	return &TransactionRequest{
		Timestamp:       1700000000,
		SenderAddress:   "sender-addr",
		SenderPublicKey: "sender-pub",
		ReceiverAddress: "receiver-addr",
		Token:           Token{Name: "LedgerCoin", Symbol: "LDGR", Decimals: 9},
		Amount:          1000,
		Signature:       "sig",
		Nonce:           7,
	}
}

func TestSigningPayload(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := SigningPayload(baseRequest())
		b := SigningPayload(baseRequest())
		assert.Equal(t, a, b)
	})

	t.Run("changes with every covered field", func(t *testing.T) {
		base := SigningPayload(baseRequest())

		mutations := map[string]func(*TransactionRequest){
			"sender":   func(r *TransactionRequest) { r.SenderAddress = "other" },
			"receiver": func(r *TransactionRequest) { r.ReceiverAddress = "other" },
			"name":     func(r *TransactionRequest) { r.Token.Name = "Other" },
			"symbol":   func(r *TransactionRequest) { r.Token.Symbol = "OTH" },
			"decimals": func(r *TransactionRequest) { r.Token.Decimals = 6 },
			"amount":   func(r *TransactionRequest) { r.Amount = 1001 },
			"nonce":    func(r *TransactionRequest) { r.Nonce = 8 },
		}
		for name, mutate := range mutations {
			req := baseRequest()
			mutate(req)
			assert.NotEqual(t, base, SigningPayload(req), "mutation %q must change the payload", name)
		}
	})

	t.Run("excludes timestamp and signature", func(t *testing.T) {
		base := SigningPayload(baseRequest())

		req := baseRequest()
		req.Timestamp = 99
		req.Signature = "other-sig"
		assert.Equal(t, base, SigningPayload(req))
	})

	t.Run("length prefixing keeps adjacent strings apart", func(t *testing.T) {
		a := baseRequest()
		a.SenderAddress = "ab"
		a.ReceiverAddress = "c"
		b := baseRequest()
		b.SenderAddress = "a"
		b.ReceiverAddress = "bc"
		assert.NotEqual(t, SigningPayload(a), SigningPayload(b))
	})
}

func TestRequestDigest(t *testing.T) {
	a := requestDigest(baseRequest())
	b := requestDigest(baseRequest())
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // sha256 hex

	req := baseRequest()
	req.Signature = "other"
	assert.NotEqual(t, a, requestDigest(req))
}

func TestComputeRecordID(t *testing.T) {
	finalized := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := &TransactionRecord{
		Timestamp:       1700000000,
		SenderAddress:   "sender-addr",
		SenderPublicKey: "sender-pub",
		ReceiverAddress: "receiver-addr",
		Token:           Token{Name: "LedgerCoin", Symbol: "LDGR", Decimals: 9},
		Amount:          1000,
		Signature:       "sig",
		Nonce:           7,
		FinalizedAt:     finalized,
	}

	id := ComputeRecordID(rec)
	require.Len(t, id, 64)

	t.Run("recomputing from identical fields is stable", func(t *testing.T) {
		cp := *rec
		assert.Equal(t, id, ComputeRecordID(&cp))
	})

	t.Run("the ID field itself does not participate", func(t *testing.T) {
		cp := *rec
		cp.ID = "already-assigned"
		assert.Equal(t, id, ComputeRecordID(&cp))
	})

	t.Run("finalized time participates", func(t *testing.T) {
		cp := *rec
		cp.FinalizedAt = finalized.Add(time.Nanosecond)
		assert.NotEqual(t, id, ComputeRecordID(&cp))
	})
}

func TestTransactionRecordJSONRoundTrip(t *testing.T) {
	rec := &TransactionRecord{
		ID:              "rec-1",
		Timestamp:       1700000000,
		SenderAddress:   "sender-addr",
		SenderPublicKey: "sender-pub",
		ReceiverAddress: "receiver-addr",
		Token:           Token{Name: "LedgerCoin", Symbol: "LDGR", Decimals: 9},
		Amount:          1000,
		Signature:       "sig",
		Validators:      map[string]bool{"v1": true, "v2": true},
		Nonce:           7,
		FinalizedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	rec.ID = ComputeRecordID(rec)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded TransactionRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *rec, decoded)

	// The decoded record reproduces the same deterministic id.
	assert.Equal(t, rec.ID, ComputeRecordID(&decoded))
}
