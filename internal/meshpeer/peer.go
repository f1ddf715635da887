// Package meshpeer tracks locally-known BLE peers: who announced
// themselves, when they were last seen, and the store-and-forward cache
// of packets held for peers that aren't reachable yet. Grounded on the
// peer table and message-cache split used by reference BLE mesh
// implementations in this domain.
package meshpeer

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/transport"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// InactivityTimeout is how long since LastSeen before a peer is evicted
// from the table.
const InactivityTimeout = 10 * time.Minute

// Peer is one entry in the local peer table.
type Peer struct {
	ID       wire.PeerID
	Handle   transport.PeerHandle
	LastSeen time.Time
	RSSI     int
}

// Table is the local, RAM-only view of currently reachable BLE peers.
// It is NOT a replacement for NoiseSession state; the SessionManager
// remains the sole owner of cryptographic session state.
type Table struct {
	mu    sync.RWMutex
	peers map[wire.PeerID]*Peer
	clk   clock.Clock
}

// NewTable constructs an empty peer table.
func NewTable(clk clock.Clock) *Table {
	return &Table{
		peers: make(map[wire.PeerID]*Peer),
		clk:   clk,
	}
}

// Upsert records a sighting of peer (via scan discovery or an accepted
// PEER_ANNOUNCEMENT packet), refreshing LastSeen.
func (t *Table) Upsert(id wire.PeerID, handle transport.PeerHandle, rssi int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	if p, ok := t.peers[id]; ok {
		p.LastSeen = now
		p.RSSI = rssi
		if handle != "" {
			p.Handle = handle
		}
		return
	}
	t.peers[id] = &Peer{ID: id, Handle: handle, LastSeen: now, RSSI: rssi}
}

// HandleAnnouncement decodes a PEER_ANNOUNCEMENT payload ([8B peer id
// already carried as the packet sender; remaining payload currently
// unused beyond presence) and upserts the announcing peer.
func (t *Table) HandleAnnouncement(pkt *wire.Packet) {
	t.Upsert(pkt.Sender, "", 0)
}

// Live returns the peers currently considered reachable (seen within
// InactivityTimeout), for the hybrid-send "any BLE peers present" check.
func (t *Table) Live() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Peer, 0, len(t.peers))
	cutoff := t.clk.Now().Add(-InactivityTimeout)
	for _, p := range t.peers {
		if p.LastSeen.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the peer table entry for id, if present and live.
func (t *Table) Lookup(id wire.PeerID) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok || p.LastSeen.Before(t.clk.Now().Add(-InactivityTimeout)) {
		return nil, false
	}
	return p, true
}

// EvictInactive removes peers not seen within InactivityTimeout. Call
// this periodically from the same maintenance tick that drives the
// router and fragmenter.
func (t *Table) EvictInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clk.Now().Add(-InactivityTimeout)
	for id, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, id)
			log.Debug().Str("peer", hexPeerID(id)).Msg("[meshpeer] evicted inactive peer")
		}
	}
}

// Count returns the number of peers currently in the table, live or not.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

func hexPeerID(id wire.PeerID) string {
	var buf [wire.PeerIDSize * 2]byte
	const hexDigits = "0123456789abcdef"
	for i, b := range id {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf[:])
}

// AnnouncementPayload encodes the minimal self-announcement payload: a
// monotonic nonce, useful for future extension without breaking the
// wire shape today (currently unread by HandleAnnouncement, which relies
// on the packet's Sender field).
func AnnouncementPayload(nonce uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)
	return buf
}
