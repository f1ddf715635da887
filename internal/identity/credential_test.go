package identity

import (
	"bytes"
	"testing"
)

func TestNewCredentialRoundTripsThroughSeed(t *testing.T) {
	cred, err := NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}

	restored, err := NewCredentialFromSeed(cred.Seed())
	if err != nil {
		t.Fatalf("NewCredentialFromSeed: %v", err)
	}

	if restored.PeerID() != cred.PeerID() {
		t.Fatal("restored credential has a different PeerID")
	}
	if !bytes.Equal(restored.PublicKey(), cred.PublicKey()) {
		t.Fatal("restored credential has a different public key")
	}
}

func TestSignVerify(t *testing.T) {
	cred, err := NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}

	msg := []byte("hello mesh")
	sig := cred.Sign(msg)

	if !Verify(cred.PublicKey(), msg, sig) {
		t.Fatal("valid signature failed to verify")
	}
	if Verify(cred.PublicKey(), []byte("tampered"), sig) {
		t.Fatal("signature verified against the wrong message")
	}
}

func TestTwoCredentialsHaveDistinctPeerIDs(t *testing.T) {
	a, _ := NewCredential()
	b, _ := NewCredential()
	if a.PeerID() == b.PeerID() {
		t.Fatal("two independently generated credentials collided")
	}
}

func TestX25519KeyDerivationIsStable(t *testing.T) {
	cred, err := NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	priv1 := cred.X25519PrivateKey()
	priv2 := cred.X25519PrivateKey()
	if !bytes.Equal(priv1, priv2) {
		t.Fatal("X25519PrivateKey is not deterministic")
	}
	if len(cred.X25519PublicKey()) != 32 {
		t.Fatalf("expected 32-byte X25519 public key, got %d", len(cred.X25519PublicKey()))
	}
}
