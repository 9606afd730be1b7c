package ledger

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"unicode"

	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxAddressLength     = 100
	maxTokenNameLength   = 64
	maxTokenSymbolLength = 16
	maxTokenDecimals     = 255
)

// ValidateRequest performs the pure admission checks, structural first and
// cryptographic last. It has no side effects and touches no shared state.
func ValidateRequest(req *TransactionRequest) error {
	if err := validateAddress("sender_address", req.SenderAddress); err != nil {
		return err
	}
	if err := validateAddress("receiver_address", req.ReceiverAddress); err != nil {
		return err
	}
	if err := validateToken(&req.Token); err != nil {
		return err
	}
	if req.Amount == 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrMalformedRequest)
	}
	if req.Nonce == 0 {
		return fmt.Errorf("%w: nonce must be greater than zero", ErrMalformedRequest)
	}
	if req.SenderPublicKey == "" {
		return fmt.Errorf("%w: sender_public_key is required", ErrMalformedRequest)
	}
	if req.Signature == "" {
		return fmt.Errorf("%w: signature is required", ErrMalformedRequest)
	}
	return verifySignature(req)
}

// verifySignature checks the ed25519 signature over the canonical payload.
func verifySignature(req *TransactionRequest) error {
	pub, err := solanago.PublicKeyFromBase58(req.SenderPublicKey)
	if err != nil {
		return fmt.Errorf("%w: sender_public_key is not a valid base58 key: %v", ErrMalformedRequest, err)
	}
	sig, err := solanago.SignatureFromBase58(req.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid base58: %v", ErrMalformedRequest, err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub.Bytes()), SigningPayload(req), sig[:]) {
		return fmt.Errorf("%w: signature does not verify against sender_public_key", ErrInvalidSignature)
	}
	return nil
}

// validateAddress rejects empty, oversized, or non-base58 addresses before
// they reach any lock or storage lookup.
func validateAddress(field, address string) error {
	if address == "" {
		return fmt.Errorf("%w: %s is required", ErrMalformedRequest, field)
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrMalformedRequest, field, maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains control characters", ErrMalformedRequest, field)
		}
	}
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %s is not a valid base58 address: %v", ErrMalformedRequest, field, err)
	}
	return nil
}

func validateToken(t *Token) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: token name is required", ErrMalformedRequest)
	}
	if len(t.Name) > maxTokenNameLength {
		return fmt.Errorf("%w: token name exceeds %d characters", ErrMalformedRequest, maxTokenNameLength)
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("%w: token symbol is required", ErrMalformedRequest)
	}
	if len(t.Symbol) > maxTokenSymbolLength {
		return fmt.Errorf("%w: token symbol exceeds %d characters", ErrMalformedRequest, maxTokenSymbolLength)
	}
	if t.Decimals > maxTokenDecimals {
		return fmt.Errorf("%w: token decimals %d exceeds %d", ErrMalformedRequest, t.Decimals, maxTokenDecimals)
	}
	return nil
}
