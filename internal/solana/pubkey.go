// Package solana implements offline-capable durable-nonce transaction
// creation, signing, and submission. No Solana SDK appears anywhere in
// the example pack this module was built from, so the wire types here
// are a minimal hand-rolled encoding of the pieces the durable-nonce flow
// actually needs, built on the same base58 encoding and Ed25519 signing
// primitives the rest of the codebase already uses.
package solana

import (
	"crypto/ed25519"
	"errors"

	"github.com/mr-tron/base58"
)

// PubKeySize is the byte length of a Solana public key / account address.
const PubKeySize = ed25519.PublicKeySize

// PubKey is a Solana account address.
type PubKey [PubKeySize]byte

var ErrInvalidPubKey = errors.New("solana: invalid public key encoding")

// String returns the base58 encoding of the key.
func (k PubKey) String() string {
	return base58.Encode(k[:])
}

// ParsePubKey decodes a base58-encoded Solana address.
func ParsePubKey(s string) (PubKey, error) {
	b, err := base58.Decode(s)
	if err != nil || len(b) != PubKeySize {
		return PubKey{}, ErrInvalidPubKey
	}
	var k PubKey
	copy(k[:], b)
	return k, nil
}

// PubKeyFromEd25519 derives a PubKey from an Ed25519 public key, the way
// a Solana keypair's address is simply its verifying key.
func PubKeyFromEd25519(pub ed25519.PublicKey) PubKey {
	var k PubKey
	copy(k[:], pub)
	return k
}
