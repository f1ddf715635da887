package meshpeer

import (
	"strconv"
	"sync"
	"time"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// CacheRetention is how long a store-and-forward entry is held before
// being dropped as stale, distinct from the bloom filter's dedup
// retention window.
const CacheRetention = 12 * time.Hour

// cachedEntry is one held packet awaiting a reachable recipient.
type cachedEntry struct {
	packet     *wire.Packet
	receivedAt time.Time
	delivered  map[wire.PeerID]bool
}

// Cache holds packets addressed to peers that weren't reachable at
// receipt time, so a later encounter can still forward them. It is
// distinct from the Router's BloomSet, which only dedups, never retains
// payloads.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cachedEntry // keyed by hex(sender)+":"+timestamp
	clk     clock.Clock
}

// NewCache constructs an empty store-and-forward cache.
func NewCache(clk clock.Clock) *Cache {
	return &Cache{
		entries: make(map[string]*cachedEntry),
		clk:     clk,
	}
}

func cacheKey(p *wire.Packet) string {
	return hexPeerID(p.Sender) + ":" + strconv.FormatUint(p.Timestamp, 10)
}

// Hold stores p for later forwarding to its (currently unreachable)
// recipient.
func (c *Cache) Hold(p *wire.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(p)] = &cachedEntry{
		packet:     p,
		receivedAt: c.clk.Now(),
		delivered:  make(map[wire.PeerID]bool),
	}
}

// PendingFor returns held packets addressed to recipient that have not
// already been marked delivered to it.
func (c *Cache) PendingFor(recipient wire.PeerID) []*wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*wire.Packet
	for _, e := range c.entries {
		if e.packet.Recipient != recipient {
			continue
		}
		if e.delivered[recipient] {
			continue
		}
		out = append(out, e.packet)
	}
	return out
}

// MarkDelivered records that recipient has now been handed p, so future
// PendingFor calls don't resend it.
func (c *Cache) MarkDelivered(p *wire.Packet, recipient wire.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cacheKey(p)]; ok {
		e.delivered[recipient] = true
	}
}

// Purge evicts entries older than CacheRetention.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clk.Now().Add(-CacheRetention)
	for k, e := range c.entries {
		if e.receivedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of held entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
