package nats

import (
	"time"

	"github.com/ledgercore/ledgerd/service/ledger"
)

// CommitEvent is the commit notification published to NATS. It is published
// to the subject "commits.{sender_address}" in JetStream once a record has
// been durably applied by the storage agent.
type CommitEvent struct {
	// Record identity
	TransactionID string `json:"transaction_id"`

	// Parties
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`

	// Transfer details
	TokenName    string `json:"token_name"`
	TokenSymbol  string `json:"token_symbol"`
	Amount       uint64 `json:"amount"`
	Nonce        uint64 `json:"nonce"`

	// Endorsements at finalization time
	Validators map[string]bool `json:"validators"`

	// Timing information
	FinalizedAt time.Time `json:"finalized_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a committed record to a CommitEvent for publishing.
func FromRecord(rec *ledger.TransactionRecord) *CommitEvent {
	return &CommitEvent{
		TransactionID:   rec.ID,
		SenderAddress:   rec.SenderAddress,
		ReceiverAddress: rec.ReceiverAddress,
		TokenName:       rec.Token.Name,
		TokenSymbol:     rec.Token.Symbol,
		Amount:          rec.Amount,
		Nonce:           rec.Nonce,
		Validators:      rec.Validators,
		FinalizedAt:     rec.FinalizedAt,
		PublishedAt:     time.Now().UTC(),
	}
}
