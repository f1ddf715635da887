// Package noise adapts the Noise_XX_25519_ChaChaPoly_BLAKE2s handshake to
// the mesh's packet-dispatch model. Where the portal's own handshaker
// drives the pattern over a raw io.ReadWriteCloser, here each handshake
// message is instead carried as the payload of a single mesh Packet with
// ttl=1, and the resulting CipherStates are exposed as per-peer encrypt
// and decrypt operations rather than a stream.
package noise

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	flynnnoise "github.com/flynn/noise"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
)

// State is a NoiseSession's position in its handshake/transport lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateHandshakeInProgress
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshakeInProgress:
		return "handshake_in_progress"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role identifies which side of the XX pattern this session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

var (
	ErrHandshakeFailed  = errors.New("noise: handshake failed")
	ErrHandshakeTimeout = errors.New("noise: handshake timed out")
	ErrAuthFailed       = errors.New("noise: authentication failed")
	ErrNoSession        = errors.New("noise: no established session")
	ErrCounterExhausted = errors.New("noise: send counter exhausted")
	ErrNotInProgress    = errors.New("noise: session is not mid-handshake")
)

// handshakeTimeout bounds how long a session may sit in
// StateHandshakeInProgress before it is discarded.
const handshakeTimeout = 30 * time.Second

// cipherSuite pins Noise_XX_25519_ChaChaPoly_BLAKE2s, matching the
// portal's own handshaker.
var cipherSuite = flynnnoise.NewCipherSuite(flynnnoise.DH25519, flynnnoise.CipherChaChaPoly, flynnnoise.HashBLAKE2s)

// Session is one peer's Noise_XX handshake and transport state. Counters
// are monotonic and must never wrap; CounterExhausted is returned well
// before a uint64 could overflow in practice, but the check exists so a
// renegotiation happens instead of silent nonce reuse.
type Session struct {
	mu sync.Mutex

	role  Role
	state State

	hs *flynnnoise.HandshakeState

	send *flynnnoise.CipherState
	recv *flynnnoise.CipherState

	remoteStatic []byte

	createdAt time.Time
	clk       clock.Clock
}

func newSession(role Role, clk clock.Clock, localStatic flynnnoise.DHKey) (*Session, error) {
	hs, err := flynnnoise.NewHandshakeState(flynnnoise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       flynnnoise.HandshakeXX,
		Initiator:     role == RoleInitiator,
		StaticKeypair: localStatic,
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		role:      role,
		state:     StateHandshakeInProgress,
		hs:        hs,
		createdAt: clk.Now(),
		clk:       clk,
	}, nil
}

// State returns the session's current lifecycle state, transitioning to
// Failed as a side effect if the 30s handshake timeout has elapsed.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return s.state
}

func (s *Session) expireLocked() {
	if s.state == StateHandshakeInProgress && s.clk.Now().Sub(s.createdAt) > handshakeTimeout {
		s.state = StateFailed
	}
}

// Fingerprint returns the first 8 bytes of the remote static key, or the
// zero value if the handshake has not yet produced one.
func (s *Session) Fingerprint() [8]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fp [8]byte
	copy(fp[:], s.remoteStatic)
	return fp
}

// Encrypt seals plaintext under send_key with nonce = send_counter
// (little-endian u64 padded to 12 bytes per the Noise CipherState
// convention), incrementing the counter only after a successful seal.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	if s.state != StateEstablished {
		return nil, ErrNoSession
	}
	ct, err := s.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		s.state = StateFailed
		if errors.Is(err, flynnnoise.ErrMaxNonce) {
			return nil, ErrCounterExhausted
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return ct, nil
}

// Decrypt opens ciphertext under recv_key and recv_counter. Any auth
// failure permanently fails the session; the caller must renegotiate.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	if s.state != StateEstablished {
		return nil, ErrNoSession
	}
	pt, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return pt, nil
}

// counterLE encodes a Noise counter nonce for documentation/testing
// purposes; flynn/noise manages the actual counters internally.
func counterLE(counter uint64) [12]byte {
	var n [12]byte
	binary.LittleEndian.PutUint64(n[:8], counter)
	return n
}
