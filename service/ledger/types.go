package ledger

import (
	"sync"
	"time"
)

// Token describes the asset a transaction moves. Tokens are registered once
// and referenced by value; Decimals rides the wire as a uint32 but must fit
// in a single byte.
type Token struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint32 `json:"decimals"`
}

// TransactionRequest is the ephemeral input to the admission pipeline. It is
// consumed on admission; the client-supplied Timestamp is advisory only and
// never used for ordering or finality.
type TransactionRequest struct {
	Timestamp       int64           `json:"timestamp"`
	SenderAddress   string          `json:"sender_address"`
	SenderPublicKey string          `json:"sender_public_key"`
	ReceiverAddress string          `json:"receiver_address"`
	Token           Token           `json:"token"`
	Amount          uint64          `json:"amount"`
	Signature       string          `json:"signature"`
	Validators      map[string]bool `json:"validators"`
	Nonce           uint64          `json:"nonce"`
}

// Status is the lifecycle state of a transaction in the pipeline.
type Status string

const (
	StatusAdmitted      Status = "admitted"
	StatusQuorumReached Status = "quorum_reached"
	StatusCommitted     Status = "committed"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
)

// PendingTransaction is a transaction that passed admission and is waiting
// for validator endorsements. Vote recording and state transitions are
// serialized by the entry's own mutex so that two concurrent votes can never
// both observe "below quorum".
type PendingTransaction struct {
	ID            string
	Request       TransactionRequest
	AdmittedAt    time.Time
	ReservedNonce uint64

	// seq orders entries by admission for oldest-first eviction.
	seq uint64

	mu     sync.Mutex
	votes  map[string]struct{}
	status Status
	record *TransactionRecord // set once the commit writer finalizes
}

// newPendingTransaction builds the pool entry for an admitted request.
func newPendingTransaction(id string, req TransactionRequest, seq uint64) *PendingTransaction {
	return &PendingTransaction{
		ID:            id,
		Request:       req,
		AdmittedAt:    time.Now().UTC(),
		ReservedNonce: req.Nonce,
		seq:           seq,
		votes:         make(map[string]struct{}),
		status:        StatusAdmitted,
	}
}

// Status returns the current lifecycle state.
func (p *PendingTransaction) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// VoteCount returns the number of distinct validators that endorsed the
// transaction so far.
func (p *PendingTransaction) VoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.votes)
}

// Votes returns the identities of the validators that endorsed the
// transaction, in no particular order.
func (p *PendingTransaction) Votes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.votes))
	for v := range p.votes {
		out = append(out, v)
	}
	return out
}

// TransactionRecord is the immutable committed form of a transaction. ID is
// a deterministic hash of the canonical finalized content and FinalizedAt is
// assigned by the commit writer from its own clock, never from the caller.
type TransactionRecord struct {
	ID              string          `json:"id"`
	Timestamp       int64           `json:"timestamp"`
	SenderAddress   string          `json:"sender_address"`
	SenderPublicKey string          `json:"sender_public_key"`
	ReceiverAddress string          `json:"receiver_address"`
	Token           Token           `json:"token"`
	Amount          uint64          `json:"amount"`
	Signature       string          `json:"signature"`
	Validators      map[string]bool `json:"validators"`
	Nonce           uint64          `json:"nonce"`
	FinalizedAt     time.Time       `json:"finalized_at"`
}

// Account is the storage agent's view of a ledger account.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// PendingSummary is a read-only snapshot of a pool entry, exposed for node
// statistics so callers never touch live pool state.
type PendingSummary struct {
	ID              string    `json:"id"`
	SenderAddress   string    `json:"sender_address"`
	ReceiverAddress string    `json:"receiver_address"`
	Amount          uint64    `json:"amount"`
	Nonce           uint64    `json:"nonce"`
	AdmittedAt      time.Time `json:"admitted_at"`
	Votes           int       `json:"votes"`
	Status          Status    `json:"status"`
}

// Summary snapshots the entry under its lock.
func (p *PendingTransaction) Summary() PendingSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PendingSummary{
		ID:              p.ID,
		SenderAddress:   p.Request.SenderAddress,
		ReceiverAddress: p.Request.ReceiverAddress,
		Amount:          p.Request.Amount,
		Nonce:           p.ReservedNonce,
		AdmittedAt:      p.AdmittedAt,
		Votes:           len(p.votes),
		Status:          p.status,
	}
}
