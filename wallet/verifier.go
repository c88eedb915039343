// Package wallet verifies signatures made by ed25519 wallets whose address is
// the base58 encoding of the public key.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned when an address is not a base58 ed25519 public key
var ErrInvalidAddress = errors.New("invalid wallet address")

// SignatureVerifier checks that signature over message was made by the
// wallet at address.
type SignatureVerifier interface {
	Verify(address string, message, signature []byte) bool
}

// Ed25519Verifier implements SignatureVerifier for base58 ed25519 wallets.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates a new verifier
func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

// Verify reports whether signature is a valid signature of message by address.
func (v *Ed25519Verifier) Verify(address string, message, signature []byte) bool {
	pub, err := ParseAddress(address)
	if err != nil {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, signature)
}

// ParseAddress decodes a base58 wallet address into an ed25519 public key.
func ParseAddress(address string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidAddress, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// FormatAddress encodes an ed25519 public key as a wallet address.
func FormatAddress(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DecodeSignature decodes a base58 encoded signature.
func DecodeSignature(encoded string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return raw, nil
}
