package meshpeer

import (
	"math/rand"

	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// CoverTraffic periodically emits indistinguishable-looking announcement
// packets to frustrate traffic analysis. Off by default: a spec-silent
// feature supplemented from the reference mesh implementations, which
// gate it behind an explicit flag and a low per-tick probability.
type CoverTraffic struct {
	enabled  bool
	sendProb float64 // probability per Tick call that a packet is emitted
	self     wire.PeerID
	nonce    uint64
}

// NewCoverTraffic constructs a disabled-by-default cover traffic
// generator for self.
func NewCoverTraffic(self wire.PeerID) *CoverTraffic {
	return &CoverTraffic{sendProb: 0.10, self: self}
}

// SetEnabled toggles cover traffic generation.
func (c *CoverTraffic) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// Enabled reports whether cover traffic generation is active.
func (c *CoverTraffic) Enabled() bool {
	return c.enabled
}

// Tick probabilistically produces a low-TTL announcement packet
// indistinguishable from a real one, or nil if this tick produces
// nothing.
func (c *CoverTraffic) Tick(timestampMs uint64) *wire.Packet {
	if !c.enabled {
		return nil
	}
	if rand.Float64() >= c.sendProb {
		return nil
	}
	c.nonce++
	payload := AnnouncementPayload(c.nonce)
	return wire.NewPacket(wire.KindPeerAnnouncement, 1, timestampMs, c.self, payload)
}
