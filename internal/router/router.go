// Package router implements the mesh's flood-routing decision: given a
// decoded packet, decide whether to drop it, deliver it locally, forward
// it, or both. Duplicate suppression uses a rolling bloom filter; traffic
// shedding uses a trailing-window message counter in the style of the
// portal relay's rate limiter, adapted from byte-rate to message-rate.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/bloom"
	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// DropReason explains why a packet was dropped.
type DropReason string

const (
	ReasonRateLimited DropReason = "rate_limited"
	ReasonTTLExpired  DropReason = "ttl_expired"
	ReasonDuplicate   DropReason = "duplicate"
)

// DecisionKind enumerates the shapes a RoutingDecision can take.
type DecisionKind int

const (
	DecisionDrop DecisionKind = iota
	DecisionDeliverLocal
	DecisionForward
	DecisionDeliverAndForward
)

// Decision is the outcome of routing a single inbound packet.
type Decision struct {
	Kind      DecisionKind
	Reason    DropReason // valid iff Kind == DecisionDrop
	Forwarded *wire.Packet
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionDrop:
		return fmt.Sprintf("drop(%s)", d.Reason)
	case DecisionDeliverLocal:
		return "deliver_local"
	case DecisionForward:
		return "forward"
	case DecisionDeliverAndForward:
		return "deliver_and_forward"
	default:
		return "unknown"
	}
}

const (
	// RateLimitWindow is the trailing window over which inbound messages
	// are counted.
	RateLimitWindow = time.Second
	// RateLimitMax is the maximum number of messages accepted per
	// RateLimitWindow before the router starts dropping.
	RateLimitMax = 50

	// MaintenanceInterval is how often Maintenance should be called to
	// prune the rate-limit window and periodically reset the bloom filter.
	MaintenanceInterval = 5 * time.Second

	// BloomResetInterval is how long a BloomSet is kept before being
	// rotated out for a fresh one.
	BloomResetInterval = time.Hour

	// bloomEstimatedPeers sizes the bloom filter's expected element count;
	// chosen generously for a mesh of a few hundred active peers sending
	// at the rate limit ceiling over a reset interval.
	bloomEstimatedPeers  = 20000
	bloomFalsePositiveP  = 0.01
	payloadPrefixLen     = 16
)

// Router owns the BloomSet and the rate-limit window; see ownership notes
// in the package-level dedup/throughput policy.
type Router struct {
	self wire.PeerID

	mu          sync.Mutex
	bloom       *bloom.Set
	bloomSince  time.Time
	recentSends []time.Time

	clk clock.Clock
}

// New constructs a Router for the given local identity.
func New(self wire.PeerID, clk clock.Clock) *Router {
	return &Router{
		self:       self,
		bloom:      bloom.New(bloomEstimatedPeers, bloomFalsePositiveP),
		bloomSince: clk.Now(),
		clk:        clk,
	}
}

// fingerprint computes sender ":" timestamp ":" payload_prefix, the cheap
// dedup key that survives re-padding because padding is deterministic
// from payload length.
func fingerprint(p *wire.Packet) []byte {
	prefixLen := len(p.Payload)
	if prefixLen > payloadPrefixLen {
		prefixLen = payloadPrefixLen
	}
	return []byte(fmt.Sprintf("%x:%d:%x", p.Sender, p.Timestamp, p.Payload[:prefixLen]))
}

// Route applies the ordered routing algorithm to an inbound packet.
func (r *Router) Route(p *wire.Packet) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()

	if r.rateLimited(now) {
		return Decision{Kind: DecisionDrop, Reason: ReasonRateLimited}
	}
	r.recentSends = append(r.recentSends, now)

	if p.TTL == 0 {
		return Decision{Kind: DecisionDrop, Reason: ReasonTTLExpired}
	}

	fp := fingerprint(p)
	if r.bloom.Contains(fp) {
		return Decision{Kind: DecisionDrop, Reason: ReasonDuplicate}
	}
	r.bloom.Add(fp)

	forwarded := forwardedCopy(p)

	if p.HasRecipient && p.Recipient == r.self {
		return Decision{Kind: DecisionDeliverLocal}
	}
	if p.HasRecipient && !p.Recipient.IsBroadcast() {
		return Decision{Kind: DecisionForward, Forwarded: forwarded}
	}
	return Decision{Kind: DecisionDeliverAndForward, Forwarded: forwarded}
}

// forwardedCopy returns a shallow copy of p with TTL decremented by one,
// ready to hand to the transport.
func forwardedCopy(p *wire.Packet) *wire.Packet {
	cp := *p
	cp.TTL--
	return &cp
}

// rateLimited reports (without mutating recentSends) whether the trailing
// window already holds RateLimitMax entries.
func (r *Router) rateLimited(now time.Time) bool {
	cutoff := now.Add(-RateLimitWindow)
	count := 0
	for _, t := range r.recentSends {
		if t.After(cutoff) {
			count++
		}
	}
	return count >= RateLimitMax
}

// Maintenance prunes the rate-limit window and rotates the bloom filter
// once BloomResetInterval has elapsed since the last reset. Call roughly
// every MaintenanceInterval.
func (r *Router) Maintenance() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	cutoff := now.Add(-RateLimitWindow)
	pruned := r.recentSends[:0]
	for _, t := range r.recentSends {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	r.recentSends = pruned

	if now.Sub(r.bloomSince) > BloomResetInterval {
		log.Debug().Float64("fill_rate", r.bloom.FillRate()).Msg("[router] rotating bloom filter")
		r.bloom = bloom.New(bloomEstimatedPeers, bloomFalsePositiveP)
		r.bloomSince = now
	}
}

// BloomFillRate reports the current dedup filter's fill rate, for
// diagnostics.
func (r *Router) BloomFillRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bloom.FillRate()
}

// OptimalTTL returns the recommended TTL for a mesh of estimated size n,
// capped at wire.MaxTTL.
func OptimalTTL(n int) byte {
	if n < 2 {
		n = 2
	}
	bits := 0
	for v := n - 1; v > 0; v >>= 1 {
		bits++
	}
	ttl := bits + 2
	if ttl > wire.MaxTTL {
		return wire.MaxTTL
	}
	if ttl < 1 {
		return 1
	}
	return byte(ttl)
}
