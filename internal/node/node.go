// Package node composes the mesh's building blocks — the router,
// Noise session manager, peer table, fragment reassembler, and
// hybrid-send coordinator — into the actual inbound/outbound dispatch
// loop a running device drives. Everything it calls is otherwise
// independently testable; this package is where those pieces meet.
package node

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/diagnostics"
	"github.com/Magicred-1/anon0mesh-sub003/internal/fragment"
	"github.com/Magicred-1/anon0mesh-sub003/internal/hybridsend"
	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
	"github.com/Magicred-1/anon0mesh-sub003/internal/meshpeer"
	"github.com/Magicred-1/anon0mesh-sub003/internal/noise"
	"github.com/Magicred-1/anon0mesh-sub003/internal/router"
	"github.com/Magicred-1/anon0mesh-sub003/internal/transport"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// Node is a single mesh participant: the local identity plus every
// piece of per-process state a running device needs.
type Node struct {
	cred      *identity.Credential
	clk       clock.Clock
	transport transport.Transport

	router      *router.Router
	sessions    *noise.Manager
	peers       *meshpeer.Table
	cache       *meshpeer.Cache
	reassembler *fragment.Reassembler
	hybrid      *hybridsend.Coordinator

	onMessage func(from wire.PeerID, content string)
}

// New wires a Node around cred's identity. xprt may be nil for tests
// that only exercise HandleInbound/SendChat directly; sender is the
// hybrid-send BLE/Nostr write path.
func New(cred *identity.Credential, clk clock.Clock, xprt transport.Transport, sender hybridsend.Sender) *Node {
	peers := meshpeer.NewTable(clk)
	sessions := noise.NewManager(cred, clk)

	return &Node{
		cred:        cred,
		clk:         clk,
		transport:   xprt,
		router:      router.New(cred.PeerID(), clk),
		sessions:    sessions,
		peers:       peers,
		cache:       meshpeer.NewCache(clk),
		reassembler: fragment.NewReassembler(clk, 0),
		hybrid:      hybridsend.NewCoordinator(peers, sessions, sender, clk),
	}
}

// OnMessage registers the callback invoked for each fully reassembled
// and decrypted chat message delivered to this node.
func (n *Node) OnMessage(fn func(from wire.PeerID, content string)) {
	n.onMessage = fn
}

// Run drains the transport's event stream and drives periodic
// maintenance until ctx is cancelled. It returns immediately if no
// transport was supplied.
func (n *Node) Run(ctx context.Context) {
	if n.transport == nil {
		return
	}

	ticker := n.clk.Ticker(router.MaintenanceInterval)
	defer ticker.Stop()

	events := n.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != transport.EventNotify {
				continue
			}
			if err := n.HandleInbound(ev.Notification, ev.Peer); err != nil {
				log.Debug().Err(err).Msg("[node] dropping malformed inbound frame")
			}
		case <-ticker.C:
			n.Maintenance()
		}
	}
}

// Maintenance runs the periodic upkeep every stateful component needs:
// rate-limit window pruning, bloom rotation, reassembly timeouts,
// inactive-peer eviction, failed-session eviction, and store-and-forward
// cache purging.
func (n *Node) Maintenance() {
	n.router.Maintenance()
	n.reassembler.Maintenance()
	n.peers.EvictInactive()
	n.sessions.EvictFailed()
	n.cache.Purge()
}

// HandleInbound decodes one raw transport frame and runs it through the
// router's drop/deliver/forward decision, dispatching to the Noise
// session manager, fragment reassembler, and hybrid-send coordinator as
// the packet kind requires.
func (n *Node) HandleInbound(raw []byte, from transport.PeerHandle) error {
	pkt, err := wire.Decode(raw)
	if err != nil {
		return err
	}

	decision := n.router.Route(pkt)
	if decision.Kind == router.DecisionDrop {
		log.Debug().Str("reason", string(decision.Reason)).Msg("[node] dropped inbound packet")
		return nil
	}

	n.peers.Upsert(pkt.Sender, from, 0)

	if decision.Kind == router.DecisionForward || decision.Kind == router.DecisionDeliverAndForward {
		n.forward(decision.Forwarded, from)
	}
	if decision.Kind == router.DecisionDeliverLocal || decision.Kind == router.DecisionDeliverAndForward {
		n.deliverLocal(pkt)
	}
	return nil
}

// forward relays pkt to every live peer other than the one it arrived
// from. If none are currently reachable, it is held in the
// store-and-forward cache for a later encounter.
func (n *Node) forward(pkt *wire.Packet, excluding transport.PeerHandle) {
	encoded, err := wire.Encode(pkt)
	if err != nil {
		log.Debug().Err(err).Msg("[node] failed to encode forwarded packet")
		return
	}

	sentAny := false
	if n.transport != nil {
		for _, p := range n.peers.Live() {
			if p.Handle == excluding || p.Handle == "" {
				continue
			}
			if err := n.transport.Write(context.Background(), p.Handle, encoded); err == nil {
				sentAny = true
			}
		}
	}
	if !sentAny && pkt.HasRecipient {
		n.cache.Hold(pkt)
	}
}

// sendDirect writes pkt to peer if it's currently reachable, otherwise
// parks it in the store-and-forward cache.
func (n *Node) sendDirect(peer wire.PeerID, pkt *wire.Packet) {
	encoded, err := wire.Encode(pkt)
	if err != nil {
		log.Debug().Err(err).Msg("[node] failed to encode outbound packet")
		return
	}
	if p, ok := n.peers.Lookup(peer); ok && n.transport != nil {
		if err := n.transport.Write(context.Background(), p.Handle, encoded); err == nil {
			return
		}
	}
	n.cache.Hold(pkt)
}

// deliverLocal handles a packet the router determined is addressed to
// this node (or broadcast), by kind.
func (n *Node) deliverLocal(pkt *wire.Packet) {
	switch pkt.Type {
	case wire.KindNoiseHandshakeInit, wire.KindNoiseHandshakeResponse, wire.KindNoiseHandshakeFinal:
		resp, err := n.sessions.ProcessHandshake(pkt.Sender, pkt, uint64(n.clk.Now().UnixMilli()))
		if err != nil {
			log.Debug().Err(err).Msg("[node] handshake step failed")
			return
		}
		if resp != nil {
			n.sendDirect(pkt.Sender, resp)
		}

	case wire.KindPeerAnnouncement:
		n.peers.HandleAnnouncement(pkt)

	case wire.KindDeliveryAck:
		if msgID, ok := meshpeer.ParseDeliveryAck(pkt.Payload); ok {
			n.hybrid.OnConfirmation(msgID, hexPeerID(pkt.Sender))
		}

	case wire.KindPing:
		pong := wire.NewPacket(wire.KindPong, 1, uint64(n.clk.Now().UnixMilli()), n.cred.PeerID(), nil).WithRecipient(pkt.Sender)
		n.sendDirect(pkt.Sender, pong)

	case wire.KindChatMessage, wire.KindFragmentStart, wire.KindFragmentContinue, wire.KindFragmentEnd:
		n.deliverChat(pkt)

	default:
		// Solana relay kinds and anything else ride the router's
		// forward decision without further local handling here.
	}
}

// deliverChat decrypts (if needed), reassembles (if fragmented), and
// delivers one chat message, acknowledging it back to the originator.
func (n *Node) deliverChat(pkt *wire.Packet) {
	payload := pkt.Payload
	if pkt.IsEncrypted() {
		pt, err := n.sessions.Decrypt(pkt.Sender, payload)
		if err != nil {
			log.Debug().Err(err).Msg("[node] chat payload decrypt failed")
			return
		}
		payload = pt
	}

	assembled := payload
	if pkt.Type != wire.KindChatMessage {
		done, complete, err := n.reassembler.Absorb(payload)
		if err != nil {
			log.Debug().Err(err).Msg("[node] reassembly failed")
			return
		}
		if !complete {
			return
		}
		assembled = done
	}

	msg, err := wire.DecodeChatMessage(assembled)
	if err != nil {
		log.Debug().Err(err).Msg("[node] malformed chat message")
		return
	}

	if n.onMessage != nil {
		n.onMessage(pkt.Sender, msg.Content)
	}

	ack := meshpeer.BuildDeliveryAck(n.cred.PeerID(), pkt.Sender, msg.ID, uint64(n.clk.Now().UnixMilli()))
	n.sendDirect(pkt.Sender, ack)
}

// SendChat originates a chat message: encodes it, fragments it for the
// BLE MTU if needed, and hands each resulting packet to the hybrid-send
// coordinator. It returns the Receipt of the last fragment sent (the
// only one, in the common unfragmented case).
func (n *Node) SendChat(content string, recipient *wire.PeerID, hasInternet bool) (*hybridsend.Receipt, error) {
	msg := &wire.ChatMessage{
		Timestamp: uint64(n.clk.Now().UnixMilli()),
		ID:        uuid.NewString(),
		Sender:    hexPeerID(n.cred.PeerID()),
		Content:   content,
	}
	body, err := wire.EncodeChatMessage(msg)
	if err != nil {
		return nil, err
	}

	ttl := router.OptimalTTL(n.peers.Count() + 1)
	packets, err := fragment.Fragment(fragment.Request{
		Payload:   body,
		Sender:    n.cred.PeerID(),
		Recipient: recipient,
		TTL:       ttl,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
	}, fragment.DefaultConfig())
	if err != nil {
		return nil, err
	}

	var receipt *hybridsend.Receipt
	for _, pkt := range packets {
		encoded, err := wire.Encode(pkt)
		if err != nil {
			return nil, err
		}
		receipt = n.hybrid.Execute(hybridsend.Request{
			Content:     encoded,
			Sender:      n.cred.PeerID(),
			Recipient:   recipient,
			HasInternet: hasInternet,
		})
	}
	return receipt, nil
}

// Snapshot assembles a diagnostics snapshot from live component state.
func (n *Node) Snapshot() diagnostics.Snapshot {
	return diagnostics.Snapshot{
		PeerCount:       n.peers.Count(),
		LivePeerCount:   len(n.peers.Live()),
		SessionCount:    n.sessions.SessionCount(),
		BloomFillRate:   n.router.BloomFillRate(),
		StoreForwardLen: n.cache.Len(),
	}
}

func hexPeerID(id wire.PeerID) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(id)*2)
	for i, b := range id {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
