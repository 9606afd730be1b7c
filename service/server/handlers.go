package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ledgercore/ledgerd/service/auth"
	"github.com/ledgercore/ledgerd/service/db"
	"github.com/ledgercore/ledgerd/service/ledger"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a transaction request
	defaultPageLimit   = 50
	maxPageLimit       = 500
)

// transactionResponse is the envelope for pipeline results. Transaction is
// set only once the transaction is committed; Pending is set while it waits
// for endorsements.
type transactionResponse struct {
	Status      ledger.Status             `json:"status"`
	Transaction *ledger.TransactionRecord `json:"transaction,omitempty"`
	Pending     *ledger.PendingSummary    `json:"pending,omitempty"`
}

// handleCreateTransaction returns a handler that runs the admission
// pipeline.
// POST /api/v1/transactions
func handleCreateTransaction(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req ledger.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("invalid request body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		rec, pending, err := svc.CreateTransaction(r.Context(), &req)
		if err != nil {
			writeLedgerError(w, logger, err)
			return
		}

		if rec != nil {
			// Endorsement hints already satisfied quorum; committed inline.
			writeJSON(w, transactionResponse{Status: ledger.StatusCommitted, Transaction: rec}, http.StatusCreated)
			return
		}

		summary := pending.Summary()
		writeJSON(w, transactionResponse{Status: summary.Status, Pending: &summary}, http.StatusAccepted)
	})
}

// handleGetTransaction returns a handler that resolves a transaction id.
// Committed record ids resolve against the storage agent; ids still in the
// pool resolve to a pending snapshot. Expired and unknown ids are 404.
// GET /api/v1/transactions/{id}
func handleGetTransaction(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		rec, err := svc.GetTransaction(r.Context(), id)
		if err == nil {
			writeJSON(w, transactionResponse{Status: ledger.StatusCommitted, Transaction: rec}, http.StatusOK)
			return
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			writeLedgerError(w, logger, err)
			return
		}

		if summary, ok := svc.PendingStatus(id); ok {
			writeJSON(w, transactionResponse{Status: summary.Status, Pending: &summary}, http.StatusOK)
			return
		}

		writeError(w, "transaction not found", http.StatusNotFound)
	})
}

// voteRequest is the SubmitVote body. Validator may be omitted, in which
// case the authenticated caller identity votes.
type voteRequest struct {
	Validator string `json:"validator"`
}

// handleSubmitVote returns a handler that records a validator endorsement.
// POST /api/v1/transactions/{id}/votes
func handleSubmitVote(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		// A body-less POST votes as the authenticated caller.
		var req voteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Debug("invalid vote body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		identity := req.Validator
		if identity == "" {
			identity = r.Header.Get(auth.IdentityHeader)
		}

		status, rec, err := svc.SubmitVote(r.Context(), id, identity)
		if err != nil {
			writeLedgerError(w, logger, err)
			return
		}

		resp := transactionResponse{Status: status, Transaction: rec}
		if rec == nil {
			if summary, ok := svc.PendingStatus(id); ok {
				resp.Pending = &summary
			}
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleCancelTransaction returns a handler that withdraws a pending
// transaction. Only admitted transactions can be cancelled.
// DELETE /api/v1/transactions/{id}
func handleCancelTransaction(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := svc.CancelTransaction(id); err != nil {
			writeLedgerError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetMempool returns a handler that reports pool occupancy and
// snapshots of the pending transactions.
// GET /api/v1/mempool
func handleGetMempool(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"stats":   svc.Stats(),
			"pending": svc.PendingTransactions(),
		}, http.StatusOK)
	})
}

// handleGetAccount returns a handler that reads an account through the
// storage agent.
// GET /api/v1/accounts/{address}
func handleGetAccount(svc *ledger.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		account, err := svc.GetAccount(r.Context(), address)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				writeError(w, "account not found", http.StatusNotFound)
				return
			}
			writeLedgerError(w, logger, err)
			return
		}
		writeJSON(w, account, http.StatusOK)
	})
}

// handleListAccountTransactions returns a handler that pages through an
// account's committed history.
// GET /api/v1/accounts/{address}/transactions?limit={n}&offset={n}
func handleListAccountTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		limit := parseQueryInt(r, "limit", defaultPageLimit)
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		offset := parseQueryInt(r, "offset", 0)

		recs, err := store.ListTransactionsByAccount(r.Context(), db.ListTransactionsByAccountParams{
			Address: address,
			Limit:   int32(limit),
			Offset:  int32(offset),
		})
		if err != nil {
			logger.Error("failed to list account transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		total, err := store.CountTransactionsByAccount(r.Context(), address)
		if err != nil {
			logger.Error("failed to count account transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if recs == nil {
			recs = []*ledger.TransactionRecord{}
		}
		writeJSON(w, map[string]interface{}{
			"address":      address,
			"transactions": recs,
			"total":        total,
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// writeLedgerError maps pipeline sentinel errors to transport status codes.
func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ledger.ErrMalformedRequest),
		errors.Is(err, ledger.ErrInvalidSignature):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNonceTooLow),
		errors.Is(err, ledger.ErrNonceGap),
		errors.Is(err, ledger.ErrUnknownValidator),
		errors.Is(err, ledger.ErrNotCancellable),
		errors.Is(err, ledger.ErrDuplicateTransaction):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrMempoolFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrStorage):
		logger.Error("storage failure", "error", err)
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// parseQueryInt reads a non-negative integer query parameter with a default.
func parseQueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
