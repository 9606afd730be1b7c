package ledger

import "errors"

// Sentinel errors for the admission-and-quorum pipeline. Handlers map these
// to transport status codes with errors.Is; callers must treat anything not
// in this list as an internal error.
var (
	// ErrUnauthorized means the caller's service identity or pre-shared
	// secret did not match the configured registry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedRequest covers structural violations: empty addresses,
	// invalid token fields, zero amounts, unparseable keys.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrInvalidSignature means the signature did not verify against the
	// sender's public key over the canonical payload.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNonceTooLow means the request nonce is at or below the sender's
	// last committed nonce (or collides with an outstanding reservation).
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrNonceGap means the request nonce skips ahead of the next expected
	// value. Gapped nonces are rejected, never queued.
	ErrNonceGap = errors.New("nonce gap")

	// ErrMempoolFull means admission failed because the pool is at capacity
	// and nothing strictly older could be evicted. Callers should back off
	// and retry.
	ErrMempoolFull = errors.New("mempool full")

	// ErrUnknownValidator means a vote or endorsement hint named an
	// identity outside the configured validator set.
	ErrUnknownValidator = errors.New("unknown validator")

	// ErrNotFound means no committed record or pending transaction exists
	// for the requested id.
	ErrNotFound = errors.New("not found")

	// ErrNotCancellable means cancellation was requested after the
	// transaction left the admitted state.
	ErrNotCancellable = errors.New("transaction is no longer cancellable")

	// ErrDuplicateTransaction means a pending transaction with the same
	// digest is already in the pool.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrStorage means persistence failed after the configured retries.
	// The pending transaction keeps its quorum so a later vote can retry
	// the commit.
	ErrStorage = errors.New("storage failure")
)
