package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgerd/service/ledger"
)

func TestSignRequest(t *testing.T) {
	priv, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)

	req := &ledger.TransactionRequest{
		SenderAddress:   priv.PublicKey().String(),
		ReceiverAddress: priv.PublicKey().String(),
		Token:           ledger.Token{Name: "TestCoin", Symbol: "TST", Decimals: 9},
		Amount:          100,
		Nonce:           1,
	}
	require.NoError(t, SignRequest(req, priv))

	assert.Equal(t, priv.PublicKey().String(), req.SenderPublicKey)
	assert.NotEmpty(t, req.Signature)
	assert.NoError(t, ledger.ValidateRequest(req))
}

func TestCreateTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "node-a", r.Header.Get(identityHeader))
		assert.Equal(t, "secret", r.Header.Get(secretHeader))

		var req ledger.TransactionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(TransactionResult{
			Status: ledger.StatusAdmitted,
			Pending: &ledger.PendingSummary{
				ID:            "abc123",
				SenderAddress: req.SenderAddress,
				Nonce:         req.Nonce,
				Status:        ledger.StatusAdmitted,
				AdmittedAt:    time.Now().UTC(),
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "node-a", "secret", nil, nil)
	result, err := c.CreateTransaction(context.Background(), &ledger.TransactionRequest{
		SenderAddress: "sender",
		Nonce:         1,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusAdmitted, result.Status)
	require.NotNil(t, result.Pending)
	assert.Equal(t, "abc123", result.Pending.ID)
}

func TestSubmitVote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions/abc123/votes", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "validator-1", body["validator"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TransactionResult{
			Status:      ledger.StatusCommitted,
			Transaction: &ledger.TransactionRecord{ID: "rec456"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "node-a", "secret", nil, nil)
	result, err := c.SubmitVote(context.Background(), "abc123", "validator-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, result.Status)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, "rec456", result.Transaction.ID)
}

func TestCancelTransaction(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "DELETE", r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "node-a", "secret", nil, nil)
		assert.NoError(t, c.CancelTransaction(context.Background(), "abc123"))
	})

	t.Run("conflict surfaces the server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "transaction is no longer cancellable"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "node-a", "secret", nil, nil)
		err := c.CancelTransaction(context.Background(), "abc123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no longer cancellable")
	})
}

func TestGetAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/addr1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ledger.Account{Address: "addr1", Balance: 500, Nonce: 7})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "node-a", "secret", nil, nil)
	account, err := c.GetAccount(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), account.Balance)
	assert.Equal(t, uint64(7), account.Nonce)
}

func TestGetMempool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mempool", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(MempoolSnapshot{
			Stats: ledger.MempoolStats{Size: 2, Capacity: 100, Validators: 3, Quorum: 2},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "node-a", "secret", nil, nil)
	snapshot, err := c.GetMempool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Stats.Size)
	assert.Equal(t, 2, snapshot.Stats.Quorum)
}
