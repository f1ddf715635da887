// Package hybridsend implements the send coordinator that picks between
// BLE delivery and Nostr fallback, and tracks delivery receipts.
package hybridsend

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/meshpeer"
	"github.com/Magicred-1/anon0mesh-sub003/internal/noise"
	"github.com/Magicred-1/anon0mesh-sub003/internal/transport"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// DeliveryMethod summarizes which channel(s) a send actually used.
type DeliveryMethod int

const (
	DeliveryNone DeliveryMethod = iota
	DeliveryBLE
	DeliveryNostr
	DeliveryBoth
)

const (
	// DefaultConfirmationTimeout is used when the caller asks
	// wait_for_confirmation to wait with no explicit timeout.
	DefaultConfirmationTimeout = 30 * time.Second
	// MaxConfirmationTimeout clamps any caller-provided timeout.
	MaxConfirmationTimeout = 5 * time.Minute
	// ReceiptRetentionWindow is how long a timed-out send keeps its
	// background subscription alive so late confirmations still update
	// persisted state.
	ReceiptRetentionWindow = 5 * time.Minute
)

// Request is one outbound send.
type Request struct {
	Content      []byte
	Sender       wire.PeerID
	Recipient    *wire.PeerID // nil means broadcast
	HasInternet  bool
}

// Receipt tracks the delivery and confirmation state of one send.
type Receipt struct {
	TxID          string
	SentViaBLE    bool
	BLEPeerCount  int
	SentViaNostr  bool
	NostrRelayCount int
	Method        DeliveryMethod

	mu            sync.Mutex
	confirmations []string // confirming peer/pubkey identifiers, arrival order
	seen          map[string]bool
	createdAt     time.Time
}

func newReceipt(txID string, clk clock.Clock) *Receipt {
	return &Receipt{
		TxID:      txID,
		seen:      make(map[string]bool),
		createdAt: clk.Now(),
	}
}

// addConfirmation appends a confirming identifier, deduplicating by
// identifier so repeat confirmations from the same peer are idempotent.
func (r *Receipt) addConfirmation(who string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[who] {
		return
	}
	r.seen[who] = true
	r.confirmations = append(r.confirmations, who)
}

// Confirmations returns a copy of the confirming identifiers in arrival
// order.
func (r *Receipt) Confirmations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.confirmations))
	copy(out, r.confirmations)
	return out
}

// Sender is the narrow set of dependencies Coordinator needs from the
// transport layer to actually move bytes; kept as an interface so tests
// can fake it without standing up real BLE/Nostr stacks.
type Sender interface {
	WriteBLE(peer transport.PeerHandle, data []byte) error
	PublishNostrNote(content []byte) (relayCount int)
	PublishNostrDM(recipient wire.PeerID, content []byte) (relayCount int)
}

// Coordinator executes the BLE-first, Nostr-fallback policy and owns the
// pending Receipts keyed by tx_id.
type Coordinator struct {
	peers   *meshpeer.Table
	sessions *noise.Manager
	sender  Sender
	clk     clock.Clock

	mu       sync.Mutex
	receipts map[string]*Receipt
	confirm  map[string]chan struct{} // tx_id -> signaled on each new confirmation
}

// NewCoordinator constructs a send coordinator.
func NewCoordinator(peers *meshpeer.Table, sessions *noise.Manager, sender Sender, clk clock.Clock) *Coordinator {
	return &Coordinator{
		peers:    peers,
		sessions: sessions,
		sender:   sender,
		clk:      clk,
		receipts: make(map[string]*Receipt),
		confirm:  make(map[string]chan struct{}),
	}
}

// Execute runs the hybrid send policy for req and returns its Receipt.
func (c *Coordinator) Execute(req Request) *Receipt {
	txID := uuid.NewString()
	receipt := newReceipt(txID, c.clk)

	c.mu.Lock()
	c.receipts[txID] = receipt
	c.confirm[txID] = make(chan struct{}, 1)
	c.mu.Unlock()

	live := c.peers.Live()
	if len(live) > 0 {
		payload := req.Content
		if req.Recipient != nil && c.sessions.HasSession(*req.Recipient) {
			if ct, err := c.sessions.Encrypt(*req.Recipient, req.Content); err == nil {
				payload = ct
			} else {
				log.Debug().Err(err).Msg("[hybridsend] session encrypt failed, sending plaintext")
			}
		}
		accepted := 0
		for _, p := range live {
			if err := c.sender.WriteBLE(p.Handle, payload); err == nil {
				accepted++
			}
		}
		if accepted > 0 {
			receipt.SentViaBLE = true
			receipt.BLEPeerCount = accepted
		}
	}

	recipientReachableLocally := req.Recipient != nil
	if recipientReachableLocally {
		_, recipientReachableLocally = c.peers.Lookup(*req.Recipient)
	}

	needsNostr := req.Recipient != nil && (len(live) == 0 || !recipientReachableLocally) && req.HasInternet
	if needsNostr {
		var relayCount int
		if req.Recipient != nil {
			relayCount = c.sender.PublishNostrDM(*req.Recipient, req.Content)
		} else {
			relayCount = c.sender.PublishNostrNote(req.Content)
		}
		if relayCount > 0 {
			receipt.SentViaNostr = true
			receipt.NostrRelayCount = relayCount
		}
	}

	switch {
	case receipt.SentViaBLE && receipt.SentViaNostr:
		receipt.Method = DeliveryBoth
	case receipt.SentViaBLE:
		receipt.Method = DeliveryBLE
	case receipt.SentViaNostr:
		receipt.Method = DeliveryNostr
	default:
		receipt.Method = DeliveryNone
	}

	return receipt
}

// OnConfirmation is called when an inbound DELIVERY_ACK packet or Nostr
// receipt event confirms txID from who (a peer id hex string or Nostr
// pubkey).
func (c *Coordinator) OnConfirmation(txID string, who string) {
	c.mu.Lock()
	receipt, ok := c.receipts[txID]
	ch := c.confirm[txID]
	c.mu.Unlock()
	if !ok {
		return
	}
	receipt.addConfirmation(who)
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WaitForConfirmation resolves on the first confirmation or on timeout,
// clamped to [0, MaxConfirmationTimeout]. A zero timeout uses
// DefaultConfirmationTimeout.
func (c *Coordinator) WaitForConfirmation(txID string, timeout time.Duration) *Receipt {
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	if timeout > MaxConfirmationTimeout {
		timeout = MaxConfirmationTimeout
	}

	c.mu.Lock()
	receipt := c.receipts[txID]
	ch := c.confirm[txID]
	c.mu.Unlock()
	if receipt == nil {
		return nil
	}

	if len(receipt.Confirmations()) > 0 {
		return receipt
	}

	select {
	case <-ch:
	case <-c.clk.After(timeout):
	}

	go c.expireAfterRetention(txID)
	return receipt
}

// expireAfterRetention drops the receipt's bookkeeping after
// ReceiptRetentionWindow, so late confirmations past that point are
// silently ignored. The subscription channel is intentionally kept alive
// until then so OnConfirmation calls arriving during the window still
// update receipt.confirmations.
func (c *Coordinator) expireAfterRetention(txID string) {
	<-c.clk.After(ReceiptRetentionWindow)
	c.mu.Lock()
	delete(c.receipts, txID)
	delete(c.confirm, txID)
	c.mu.Unlock()
}
