// Package identity derives the mesh's notion of "who a peer is": an
// Ed25519 signing keypair, the X25519 keypair Noise sessions are built
// from, and the 8-byte PeerId carried on the wire.
package identity

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"

	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

var ErrInvalidSeedLength = errors.New("identity: seed must be ed25519.SeedSize bytes")

// Credential is a device's long-lived identity. The Ed25519 keypair signs
// packets and chat messages; the X25519 keypair (deterministically
// derived from the same seed, per RFC 7748 conversion) is the Noise
// static key.
type Credential struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	peerID     wire.PeerID
}

// NewCredential generates a fresh random identity.
func NewCredential() (*Credential, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newFromPrivateKey(priv), nil
}

// NewCredentialFromSeed rebuilds a Credential from a persisted 32-byte
// Ed25519 seed (the form the secure store holds under
// noise_static_keypair).
func NewCredentialFromSeed(seed []byte) (*Credential, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidSeedLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newFromPrivateKey(priv), nil
}

func newFromPrivateKey(priv ed25519.PrivateKey) *Credential {
	pub := priv.Public().(ed25519.PublicKey)
	return &Credential{
		privateKey: priv,
		publicKey:  pub,
		peerID:     DerivePeerID(pub),
	}
}

// DerivePeerID truncates SHA-256(pubkey) to its first 8 bytes.
func DerivePeerID(pub ed25519.PublicKey) wire.PeerID {
	sum := sha256.Sum256(pub)
	var id wire.PeerID
	copy(id[:], sum[:wire.PeerIDSize])
	return id
}

// Seed returns the 32-byte Ed25519 seed to persist under
// noise_static_keypair. Deleting this key rotates the identity.
func (c *Credential) Seed() []byte {
	return append([]byte(nil), c.privateKey.Seed()...)
}

// PeerID returns this credential's 8-byte identifier.
func (c *Credential) PeerID() wire.PeerID {
	return c.peerID
}

// PublicKey returns the Ed25519 public key.
func (c *Credential) PublicKey() ed25519.PublicKey {
	return c.publicKey
}

// Sign produces an Ed25519 signature over data.
func (c *Credential) Sign(data []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(c.privateKey, data))
	return sig
}

// Verify checks an Ed25519 signature against a peer's public key.
func Verify(pub ed25519.PublicKey, data []byte, sig [64]byte) bool {
	return ed25519.Verify(pub, data, sig[:])
}

// X25519PrivateKey derives an X25519 private key from the Ed25519 seed via
// SHA-512(seed)[:32] with RFC 7748 clamping. This is the static key the
// Noise_XX handshake authenticates.
func (c *Credential) X25519PrivateKey() []byte {
	h := sha512.Sum512(c.privateKey.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	key := make([]byte, 32)
	copy(key, h[:32])
	return key
}

// X25519PublicKey returns the public key matching X25519PrivateKey.
func (c *Credential) X25519PublicKey() []byte {
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(c.X25519PrivateKey())
	if err != nil {
		panic("identity: x25519 private key: " + err.Error())
	}
	return priv.PublicKey().Bytes()
}
