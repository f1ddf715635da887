package noise

import (
	"sync"

	flynnnoise "github.com/flynn/noise"
	"github.com/rs/zerolog/log"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// handshakeTTL is fixed at 1: handshake packets are never relayed.
const handshakeTTL byte = 1

// Manager exclusively owns the per-peer Session table, keyed by PeerId.
// The Router holds only a read capability (HasSession) rather than a
// back-pointer into the table.
type Manager struct {
	cred *identity.Credential
	clk  clock.Clock

	mu       sync.RWMutex
	sessions map[wire.PeerID]*Session
}

// NewManager constructs a SessionManager bound to the local identity's
// X25519 static key.
func NewManager(cred *identity.Credential, clk clock.Clock) *Manager {
	return &Manager{
		cred:     cred,
		clk:      clk,
		sessions: make(map[wire.PeerID]*Session),
	}
}

func (m *Manager) localStatic() flynnnoise.DHKey {
	return flynnnoise.DHKey{
		Private: m.cred.X25519PrivateKey(),
		Public:  m.cred.X25519PublicKey(),
	}
}

// HasSession reports whether peer has an Established session, without
// exposing the session itself. This is the read-only capability the
// Router is given.
func (m *Manager) HasSession(peer wire.PeerID) bool {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return s.State() == StateEstablished
}

// Fingerprint returns the remote static key fingerprint for peer, or the
// zero value if no session exists.
func (m *Manager) Fingerprint(peer wire.PeerID) [8]byte {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok {
		return [8]byte{}
	}
	return s.Fingerprint()
}

// InitiateHandshake starts an XX handshake with peer as initiator,
// producing the NOISE_HANDSHAKE_INIT packet (message 1: → e).
func (m *Manager) InitiateHandshake(peer wire.PeerID, timestampMs uint64) (*wire.Packet, error) {
	s, err := newSession(RoleInitiator, m.clk, m.localStatic())
	if err != nil {
		return nil, err
	}

	msg, _, _, err := s.hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[peer] = s
	m.mu.Unlock()

	pkt := wire.NewPacket(wire.KindNoiseHandshakeInit, handshakeTTL, timestampMs, m.cred.PeerID(), msg).WithRecipient(peer)
	return pkt, nil
}

// ProcessHandshake advances the session for sender by one handshake
// message. A non-nil response packet must be sent back; a nil response
// with a nil error means the handshake completed on this step.
func (m *Manager) ProcessHandshake(sender wire.PeerID, pkt *wire.Packet, timestampMs uint64) (*wire.Packet, error) {
	m.mu.Lock()
	s, ok := m.sessions[sender]
	m.mu.Unlock()

	switch pkt.Type {
	case wire.KindNoiseHandshakeInit:
		if ok {
			log.Debug().Str("peer", peerHex(sender)).Msg("[noise] re-handshake, discarding stale session")
		}
		var err error
		s, err = newSession(RoleResponder, m.clk, m.localStatic())
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[sender] = s
		m.mu.Unlock()

		if _, _, _, err := s.hs.ReadMessage(nil, pkt.Payload); err != nil {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return nil, ErrHandshakeFailed
		}
		resp, _, _, err := s.hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, err
		}
		return wire.NewPacket(wire.KindNoiseHandshakeResponse, handshakeTTL, timestampMs, m.cred.PeerID(), resp).WithRecipient(sender), nil

	case wire.KindNoiseHandshakeResponse:
		if !ok {
			return nil, ErrNotInProgress
		}
		if _, _, _, err := s.hs.ReadMessage(nil, pkt.Payload); err != nil {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return nil, ErrHandshakeFailed
		}
		final, cs1, cs2, err := s.hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, err
		}
		m.complete(s, cs1, cs2)
		return wire.NewPacket(wire.KindNoiseHandshakeFinal, handshakeTTL, timestampMs, m.cred.PeerID(), final).WithRecipient(sender), nil

	case wire.KindNoiseHandshakeFinal:
		if !ok {
			return nil, ErrNotInProgress
		}
		_, cs1, cs2, err := s.hs.ReadMessage(nil, pkt.Payload)
		if err != nil {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return nil, ErrHandshakeFailed
		}
		m.complete(s, cs1, cs2)
		return nil, nil

	default:
		return nil, ErrNotInProgress
	}
}

// complete derives send/recv CipherStates from the handshake's completed
// CipherState pair, orienting them by role, and marks the session
// Established.
func (m *Manager) complete(s *Session, cs1, cs2 *flynnnoise.CipherState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == RoleInitiator {
		s.send, s.recv = cs1, cs2
	} else {
		s.send, s.recv = cs2, cs1
	}
	s.remoteStatic = s.hs.PeerStatic()
	s.state = StateEstablished
}

// Encrypt encrypts bytes for peer; fails with ErrNoSession if peer does
// not have an Established session.
func (m *Manager) Encrypt(peer wire.PeerID, plaintext []byte) ([]byte, error) {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	return s.Encrypt(plaintext)
}

// Decrypt decrypts bytes from peer.
func (m *Manager) Decrypt(peer wire.PeerID, ciphertext []byte) ([]byte, error) {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	return s.Decrypt(ciphertext)
}

// EvictFailed discards any session that has failed (AEAD error, protocol
// error, or handshake timeout) so the peer may renegotiate from scratch.
func (m *Manager) EvictFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for peer, s := range m.sessions {
		if s.State() == StateFailed {
			delete(m.sessions, peer)
		}
	}
}

// SessionCount returns the number of sessions currently tracked,
// established or not, for diagnostics.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictPeer forcibly discards peer's session, e.g. on disconnect.
func (m *Manager) EvictPeer(peer wire.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, peer)
}

func peerHex(p wire.PeerID) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(p)*2)
	for i, b := range p {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
