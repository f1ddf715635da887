package hybridsend

import (
	"testing"
	"time"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
	"github.com/Magicred-1/anon0mesh-sub003/internal/meshpeer"
	"github.com/Magicred-1/anon0mesh-sub003/internal/noise"
	"github.com/Magicred-1/anon0mesh-sub003/internal/transport"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

type fakeSender struct {
	bleWrites      int
	bleShouldFail  bool
	nostrNoteCalls int
	nostrDMCalls   int
	relayCount     int
}

func (f *fakeSender) WriteBLE(transport.PeerHandle, []byte) error {
	if f.bleShouldFail {
		return errFakeWrite
	}
	f.bleWrites++
	return nil
}

func (f *fakeSender) PublishNostrNote([]byte) int {
	f.nostrNoteCalls++
	return f.relayCount
}

func (f *fakeSender) PublishNostrDM(wire.PeerID, []byte) int {
	f.nostrDMCalls++
	return f.relayCount
}

var errFakeWrite = &fakeError{"write failed"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func peerID(b byte) wire.PeerID {
	var id wire.PeerID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestExecuteUsesBLEWhenPeersPresent(t *testing.T) {
	c := clock.NewMock()
	peers := meshpeer.NewTable(c)
	peers.Upsert(peerID(2), "handle-2", -40)

	cred, _ := identity.NewCredential()
	sessions := noise.NewManager(cred, c)
	sender := &fakeSender{relayCount: 1}

	coord := NewCoordinator(peers, sessions, sender, c)
	recipient := peerID(2)
	receipt := coord.Execute(Request{Content: []byte("hi"), Sender: peerID(1), Recipient: &recipient, HasInternet: true})

	if !receipt.SentViaBLE {
		t.Fatal("expected BLE send when a live peer is present")
	}
	if receipt.Method != DeliveryBLE {
		t.Fatalf("expected DeliveryBLE, got %v", receipt.Method)
	}
	if sender.nostrDMCalls != 0 {
		t.Fatal("should not have fallen back to Nostr when BLE peer was reachable")
	}
}

func TestExecuteFallsBackToNostrWithNoBLEPeers(t *testing.T) {
	c := clock.NewMock()
	peers := meshpeer.NewTable(c)
	cred, _ := identity.NewCredential()
	sessions := noise.NewManager(cred, c)
	sender := &fakeSender{relayCount: 2}

	coord := NewCoordinator(peers, sessions, sender, c)
	recipient := peerID(2)
	receipt := coord.Execute(Request{Content: []byte("hi"), Sender: peerID(1), Recipient: &recipient, HasInternet: true})

	if receipt.SentViaBLE {
		t.Fatal("should not report BLE send with no live peers")
	}
	if !receipt.SentViaNostr || receipt.NostrRelayCount != 2 {
		t.Fatalf("expected Nostr fallback with relay count 2, got %+v", receipt)
	}
	if receipt.Method != DeliveryNostr {
		t.Fatalf("expected DeliveryNostr, got %v", receipt.Method)
	}
}

func TestConfirmationIsIdempotentPerPeer(t *testing.T) {
	c := clock.NewMock()
	peers := meshpeer.NewTable(c)
	cred, _ := identity.NewCredential()
	sessions := noise.NewManager(cred, c)
	sender := &fakeSender{}

	coord := NewCoordinator(peers, sessions, sender, c)
	recipient := peerID(2)
	receipt := coord.Execute(Request{Content: []byte("hi"), Sender: peerID(1), Recipient: &recipient, HasInternet: false})

	coord.OnConfirmation(receipt.TxID, "peerA")
	coord.OnConfirmation(receipt.TxID, "peerA")
	coord.OnConfirmation(receipt.TxID, "peerB")

	confs := receipt.Confirmations()
	if len(confs) != 2 {
		t.Fatalf("expected 2 distinct confirmations, got %v", confs)
	}
}

func TestWaitForConfirmationTimesOutWithoutConfirmation(t *testing.T) {
	c := clock.NewMock()
	peers := meshpeer.NewTable(c)
	cred, _ := identity.NewCredential()
	sessions := noise.NewManager(cred, c)
	sender := &fakeSender{}

	coord := NewCoordinator(peers, sessions, sender, c)
	receipt := coord.Execute(Request{Content: []byte("hi"), Sender: peerID(1), HasInternet: false})

	done := make(chan *Receipt, 1)
	go func() {
		done <- coord.WaitForConfirmation(receipt.TxID, 10*time.Millisecond)
	}()

	c.WaitForAllTimers()
	c.Add(20 * time.Millisecond)

	got := <-done
	if len(got.Confirmations()) != 0 {
		t.Fatal("expected no confirmations on timeout")
	}
}

func TestWaitForConfirmationClampsExcessiveTimeout(t *testing.T) {
	c := clock.NewMock()
	peers := meshpeer.NewTable(c)
	cred, _ := identity.NewCredential()
	sessions := noise.NewManager(cred, c)
	sender := &fakeSender{}

	coord := NewCoordinator(peers, sessions, sender, c)
	receipt := coord.Execute(Request{Content: []byte("hi"), Sender: peerID(1), HasInternet: false})

	done := make(chan *Receipt, 1)
	go func() {
		done <- coord.WaitForConfirmation(receipt.TxID, time.Hour)
	}()

	c.WaitForAllTimers()
	c.Add(MaxConfirmationTimeout + time.Second)

	got := <-done
	if got == nil {
		t.Fatal("expected receipt to be returned after clamped timeout")
	}
}
