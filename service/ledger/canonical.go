package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Canonical encoding for the fields that feed signature verification and id
// derivation. This is deliberately hand-written: strings are uint32
// length-prefixed, integers are fixed-width big-endian, field order is
// frozen. A reflection-based serializer must never produce these bytes.

func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], v)
	buf.Write(n[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], v)
	buf.Write(n[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
}

// SigningPayload returns the canonical byte encoding of
// (senderAddress, receiverAddress, token, amount, nonce). The sender signs
// exactly these bytes; the request validator verifies against them.
func SigningPayload(req *TransactionRequest) []byte {
	var buf bytes.Buffer
	writeString(&buf, req.SenderAddress)
	writeString(&buf, req.ReceiverAddress)
	writeString(&buf, req.Token.Name)
	writeString(&buf, req.Token.Symbol)
	writeUint32(&buf, req.Token.Decimals)
	writeUint64(&buf, req.Amount)
	writeUint64(&buf, req.Nonce)
	return buf.Bytes()
}

// requestDigest derives the pending-transaction id from the full request
// content. Two byte-identical requests digest to the same id, which is what
// keeps pool admission idempotent per signed payload.
func requestDigest(req *TransactionRequest) string {
	var buf bytes.Buffer
	buf.Write(SigningPayload(req))
	writeString(&buf, req.SenderPublicKey)
	writeString(&buf, req.Signature)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// ComputeRecordID derives the committed record id from the canonical
// finalized content. It is a pure function: recomputing it from identical
// fields always yields the same id. The record's own ID field does not
// participate.
func ComputeRecordID(rec *TransactionRecord) string {
	var buf bytes.Buffer
	writeString(&buf, rec.SenderAddress)
	writeString(&buf, rec.ReceiverAddress)
	writeString(&buf, rec.Token.Name)
	writeString(&buf, rec.Token.Symbol)
	writeUint32(&buf, rec.Token.Decimals)
	writeUint64(&buf, rec.Amount)
	writeUint64(&buf, rec.Nonce)
	writeString(&buf, rec.SenderPublicKey)
	writeString(&buf, rec.Signature)
	writeInt64(&buf, rec.FinalizedAt.UnixNano())
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
