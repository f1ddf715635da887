package nostr

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

// relayConn is one open connection to a relay, grounded on the portal's
// own websocket.Conn usage for its chat hub.
type relayConn struct {
	url  string
	conn *websocket.Conn
}

// Pool publishes events to, and subscribes to events from, a set of
// Nostr relay URLs. It tolerates individual relay failures: a publish
// succeeds if at least one relay accepts the event.
type Pool struct {
	mu     sync.RWMutex
	relays map[string]*relayConn

	incoming chan Event
}

// NewPool constructs an empty relay pool.
func NewPool() *Pool {
	return &Pool{
		relays:   make(map[string]*relayConn),
		incoming: make(chan Event, 64),
	}
}

// Connect dials url and adds it to the pool.
func (p *Pool) Connect(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.relays[url] = &relayConn{url: url, conn: conn}
	p.mu.Unlock()

	go p.readLoop(url, conn)
	return nil
}

// Disconnect closes and removes a relay.
func (p *Pool) Disconnect(url string) {
	p.mu.Lock()
	rc, ok := p.relays[url]
	delete(p.relays, url)
	p.mu.Unlock()
	if ok {
		_ = rc.conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

// Publish sends ["EVENT", event] to every connected relay and returns the
// number of relays that accepted the write (accepted-relay count, used by
// HybridSend's nostr_relay_count metric).
func (p *Pool) Publish(ctx context.Context, event *Event) int {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	accepted := 0
	msg := []any{"EVENT", event}
	for _, rc := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := wsjson.Write(writeCtx, rc.conn, msg)
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("relay", rc.url).Msg("[nostr] publish failed")
			continue
		}
		accepted++
	}
	return accepted
}

// Subscribe sends a REQ frame for the given filter to every relay.
// Inbound events surface on Events().
func (p *Pool) Subscribe(ctx context.Context, subID string, filter map[string]any) {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.relays))
	for _, rc := range p.relays {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	msg := []any{"REQ", subID, filter}
	for _, rc := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := wsjson.Write(writeCtx, rc.conn, msg); err != nil {
			log.Debug().Err(err).Str("relay", rc.url).Msg("[nostr] subscribe failed")
		}
		cancel()
	}
}

// Events returns the channel of events received from any relay.
func (p *Pool) Events() <-chan Event {
	return p.incoming
}

func (p *Pool) readLoop(url string, conn *websocket.Conn) {
	ctx := context.Background()
	for {
		var frame []any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			log.Debug().Err(err).Str("relay", url).Msg("[nostr] relay connection closed")
			return
		}
		if len(frame) < 2 {
			continue
		}
		label, _ := frame[0].(string)
		if label != "EVENT" {
			continue
		}
		raw, ok := frame[len(frame)-1].(map[string]any)
		if !ok {
			continue
		}
		evt, err := decodeEvent(raw)
		if err != nil {
			continue
		}
		select {
		case p.incoming <- evt:
		default:
			log.Debug().Str("relay", url).Msg("[nostr] dropping event, incoming buffer full")
		}
	}
}

func decodeEvent(raw map[string]any) (Event, error) {
	var evt Event
	if v, ok := raw["id"].(string); ok {
		evt.ID = v
	}
	if v, ok := raw["pubkey"].(string); ok {
		evt.PubKey = v
	}
	if v, ok := raw["created_at"].(float64); ok {
		evt.CreatedAt = int64(v)
	}
	if v, ok := raw["kind"].(float64); ok {
		evt.Kind = Kind(int(v))
	}
	if v, ok := raw["content"].(string); ok {
		evt.Content = v
	}
	if v, ok := raw["sig"].(string); ok {
		evt.Sig = v
	}
	return evt, nil
}

// Close tears down every relay connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, rc := range p.relays {
		_ = rc.conn.Close(websocket.StatusNormalClosure, "shutdown")
		delete(p.relays, url)
	}
}
