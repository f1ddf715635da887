package noise

import (
	"bytes"
	"testing"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
)

func newTestManager(t *testing.T) (*Manager, *identity.Credential) {
	t.Helper()
	cred, err := identity.NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	return NewManager(cred, clock.New()), cred
}

func TestHandshakeEstablishesBidirectionalSession(t *testing.T) {
	alice, aliceCred := newTestManager(t)
	bob, bobCred := newTestManager(t)

	initPkt, err := alice.InitiateHandshake(bobCred.PeerID(), 1)
	if err != nil {
		t.Fatalf("InitiateHandshake: %v", err)
	}

	respPkt, err := bob.ProcessHandshake(aliceCred.PeerID(), initPkt, 2)
	if err != nil {
		t.Fatalf("bob.ProcessHandshake(init): %v", err)
	}
	if respPkt == nil {
		t.Fatal("expected a handshake response packet")
	}

	finalPkt, err := alice.ProcessHandshake(bobCred.PeerID(), respPkt, 3)
	if err != nil {
		t.Fatalf("alice.ProcessHandshake(response): %v", err)
	}
	if finalPkt == nil {
		t.Fatal("expected a handshake final packet")
	}

	if done, err := bob.ProcessHandshake(aliceCred.PeerID(), finalPkt, 4); err != nil || done != nil {
		t.Fatalf("bob.ProcessHandshake(final) = (%v, %v), want (nil, nil)", done, err)
	}

	if !alice.HasSession(bobCred.PeerID()) {
		t.Fatal("alice should have an established session with bob")
	}
	if !bob.HasSession(aliceCred.PeerID()) {
		t.Fatal("bob should have an established session with alice")
	}

	plaintext := []byte("hello bob")
	ct, err := alice.Encrypt(bobCred.PeerID(), plaintext)
	if err != nil {
		t.Fatalf("alice.Encrypt: %v", err)
	}
	pt, err := bob.Decrypt(aliceCred.PeerID(), ct)
	if err != nil {
		t.Fatalf("bob.Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("decrypted %q, want %q", pt, plaintext)
	}

	reply := []byte("hi alice")
	ct2, err := bob.Encrypt(aliceCred.PeerID(), reply)
	if err != nil {
		t.Fatalf("bob.Encrypt: %v", err)
	}
	pt2, err := alice.Decrypt(bobCred.PeerID(), ct2)
	if err != nil {
		t.Fatalf("alice.Decrypt: %v", err)
	}
	if !bytes.Equal(pt2, reply) {
		t.Fatalf("decrypted %q, want %q", pt2, reply)
	}
}

func TestEncryptWithoutSessionFailsWithNoSession(t *testing.T) {
	m, _ := newTestManager(t)
	var stranger [8]byte
	copy(stranger[:], []byte("stranger"))
	if _, err := m.Encrypt(stranger, []byte("x")); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestDecryptWithWrongCounterFailsAuth(t *testing.T) {
	alice, aliceCred := newTestManager(t)
	bob, bobCred := newTestManager(t)

	initPkt, _ := alice.InitiateHandshake(bobCred.PeerID(), 1)
	respPkt, _ := bob.ProcessHandshake(aliceCred.PeerID(), initPkt, 2)
	finalPkt, _ := alice.ProcessHandshake(bobCred.PeerID(), respPkt, 3)
	bob.ProcessHandshake(aliceCred.PeerID(), finalPkt, 4)

	ct1, _ := alice.Encrypt(bobCred.PeerID(), []byte("first"))
	alice.Encrypt(bobCred.PeerID(), []byte("second")) // advance alice's send counter past bob's recv counter

	if _, err := bob.Decrypt(aliceCred.PeerID(), ct1); err != nil {
		t.Fatalf("first message should decrypt fine in order: %v", err)
	}
	// Now bob's recv counter has advanced; replaying ct1 must fail auth and
	// fail the session.
	if _, err := bob.Decrypt(aliceCred.PeerID(), ct1); err == nil {
		t.Fatal("expected replayed ciphertext to fail authentication")
	}
	if bob.HasSession(aliceCred.PeerID()) {
		t.Fatal("session should be failed after an auth failure")
	}
}
