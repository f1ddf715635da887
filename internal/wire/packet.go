// Package wire implements the bit-exact packet codec: a fixed-layout
// binary header, length-prefixed identity and payload fields, and
// deterministic padding to one of the standard frame sizes. Padding is
// PKCS#7-style (tail filled with the low byte of the pad length) so that two encodings of
// the same Packet are byte-identical, which is what lets the router
// dedup retransmissions by fingerprint.
package wire

import (
	"encoding/binary"
	"errors"
)

// MessageKind identifies the payload interpretation of a Packet. Forwarders
// must preserve unknown kinds verbatim rather than reject them.
type MessageKind byte

const (
	KindNoiseHandshakeInit     MessageKind = 0x01
	KindNoiseHandshakeResponse MessageKind = 0x02
	KindNoiseHandshakeFinal    MessageKind = 0x03
	KindChatMessage            MessageKind = 0x10
	KindDeliveryAck            MessageKind = 0x11
	KindReadReceipt            MessageKind = 0x12
	KindFragmentStart          MessageKind = 0x20
	KindFragmentContinue       MessageKind = 0x21
	KindFragmentEnd            MessageKind = 0x22
	KindPeerAnnouncement       MessageKind = 0x30
	KindPing                   MessageKind = 0x31
	KindPong                   MessageKind = 0x32
	KindSolanaTxRelay          MessageKind = 0x41
	KindSolanaTxAck            MessageKind = 0x42
	KindSolanaTxResult         MessageKind = 0x43
)

// Flags are the bits of Packet.Flags.
const (
	FlagHasRecipient byte = 1 << 0
	FlagHasSignature byte = 1 << 1
	FlagIsCompressed byte = 1 << 2 // reserved, never set by this implementation
	FlagIsEncrypted  byte = 1 << 3
)

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion byte = 1

// PeerIDSize is the length in bytes of a PeerId.
const PeerIDSize = 8

// PeerID is the 8-byte truncated identifier derived from a peer's static
// public identity (see internal/identity). Equality is byte equality.
type PeerID [PeerIDSize]byte

// Broadcast is the reserved all-ones PeerId meaning "every peer".
var Broadcast = PeerID{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBroadcast reports whether id is the broadcast address.
func (id PeerID) IsBroadcast() bool {
	return id == Broadcast
}

const (
	standardSize256  = 256
	standardSize512  = 512
	standardSize1024 = 1024
	standardSize2048 = 2048

	signatureSize = 64

	// fixed header fields: ver, type, ttl, timestamp(u64), flags, payload_len(u16)
	fixedHeaderSize = 1 + 1 + 1 + 8 + 1 + 2
)

// FixedHeaderSize is the length in bytes of the fixed packet header fields
// (version, type, ttl, timestamp, flags, payload length), not counting
// sender/recipient/payload/signature. Exported so the fragmenter can size
// chunks against the real per-packet overhead.
const FixedHeaderSize = fixedHeaderSize

var standardSizes = [...]int{standardSize256, standardSize512, standardSize1024, standardSize2048}

var (
	ErrPayloadTooLarge     = errors.New("wire: payload exceeds 65535 bytes")
	ErrTruncated           = errors.New("wire: packet truncated")
	ErrVersionUnsupported  = errors.New("wire: unsupported protocol version")
	ErrFlagsInconsistent   = errors.New("wire: flags inconsistent with packet contents")
	ErrNoStandardSize      = errors.New("wire: encoded packet exceeds the largest standard frame size")
	ErrInvalidPadding      = errors.New("wire: invalid padding")
	ErrTTLOutOfRange       = errors.New("wire: ttl out of range 0-10")
)

// MaxTTL is the highest hop count a Packet may carry.
const MaxTTL = 10

// Packet is the on-wire message envelope shared by every MessageKind.
type Packet struct {
	Version   byte
	Type      MessageKind
	TTL       byte
	Timestamp uint64 // milliseconds since epoch
	Flags     byte
	Sender    PeerID
	Recipient PeerID // only meaningful if HasRecipient
	Payload   []byte
	Signature [signatureSize]byte // only meaningful if HasSignature

	HasRecipient bool
	HasSignature bool
}

// NewPacket builds a Packet at ProtocolVersion with no recipient,
// signature or flags; WithRecipient and WithSignature add those and set
// their flag bits.
func NewPacket(kind MessageKind, ttl byte, timestampMs uint64, sender PeerID, payload []byte) *Packet {
	return &Packet{
		Version:   ProtocolVersion,
		Type:      kind,
		TTL:       ttl,
		Timestamp: timestampMs,
		Sender:    sender,
		Payload:   payload,
	}
}

// WithRecipient sets the recipient and HAS_RECIPIENT flag.
func (p *Packet) WithRecipient(recipient PeerID) *Packet {
	p.Recipient = recipient
	p.HasRecipient = true
	p.Flags |= FlagHasRecipient
	return p
}

// WithSignature sets the signature and HAS_SIGNATURE flag.
func (p *Packet) WithSignature(sig [signatureSize]byte) *Packet {
	p.Signature = sig
	p.HasSignature = true
	p.Flags |= FlagHasSignature
	return p
}

// WithEncrypted sets the IS_ENCRYPTED flag, indicating Payload is a Noise
// transport frame rather than plaintext.
func (p *Packet) WithEncrypted() *Packet {
	p.Flags |= FlagIsEncrypted
	return p
}

// IsEncrypted reports whether the IS_ENCRYPTED flag is set.
func (p *Packet) IsEncrypted() bool {
	return p.Flags&FlagIsEncrypted != 0
}

func standardSizeFor(n int) (int, error) {
	for _, s := range standardSizes {
		if n <= s {
			return s, nil
		}
	}
	return 0, ErrNoStandardSize
}

// Encode serializes p to its padded wire form. Encoding is pure: the same
// Packet always yields the same bytes.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Payload) > 0xFFFF {
		return nil, ErrPayloadTooLarge
	}
	if p.TTL > MaxTTL {
		return nil, ErrTTLOutOfRange
	}

	unpaddedSize := fixedHeaderSize + PeerIDSize
	if p.HasRecipient {
		unpaddedSize += PeerIDSize
	}
	unpaddedSize += len(p.Payload)
	if p.HasSignature {
		unpaddedSize += signatureSize
	}

	padTo, err := standardSizeFor(unpaddedSize)
	if err != nil {
		return nil, err
	}

	flags := p.Flags
	if p.HasRecipient {
		flags |= FlagHasRecipient
	} else {
		flags &^= FlagHasRecipient
	}
	if p.HasSignature {
		flags |= FlagHasSignature
	} else {
		flags &^= FlagHasSignature
	}

	buf := make([]byte, padTo)
	pos := 0
	buf[pos] = p.Version
	pos++
	buf[pos] = byte(p.Type)
	pos++
	buf[pos] = p.TTL
	pos++
	binary.BigEndian.PutUint64(buf[pos:pos+8], p.Timestamp)
	pos += 8
	buf[pos] = flags
	pos++
	binary.BigEndian.PutUint16(buf[pos:pos+2], uint16(len(p.Payload)))
	pos += 2

	copy(buf[pos:pos+PeerIDSize], p.Sender[:])
	pos += PeerIDSize

	if p.HasRecipient {
		copy(buf[pos:pos+PeerIDSize], p.Recipient[:])
		pos += PeerIDSize
	}

	copy(buf[pos:pos+len(p.Payload)], p.Payload)
	pos += len(p.Payload)

	if p.HasSignature {
		copy(buf[pos:pos+signatureSize], p.Signature[:])
		pos += signatureSize
	}

	padLen := padTo - pos
	padByte := byte(padLen)
	for i := pos; i < padTo; i++ {
		buf[i] = padByte
	}

	return buf, nil
}

// Decode parses a padded wire frame back into a Packet, ignoring the
// trailing padding.
func Decode(data []byte) (*Packet, error) {
	if len(data) < fixedHeaderSize+PeerIDSize {
		return nil, ErrTruncated
	}

	pos := 0
	version := data[pos]
	pos++
	if version != ProtocolVersion {
		return nil, ErrVersionUnsupported
	}

	kind := MessageKind(data[pos])
	pos++
	ttl := data[pos]
	pos++
	if ttl > MaxTTL {
		return nil, ErrTTLOutOfRange
	}
	timestamp := binary.BigEndian.Uint64(data[pos : pos+8])
	pos += 8
	flags := data[pos]
	pos++
	payloadLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2

	if flags&FlagIsCompressed != 0 {
		return nil, ErrFlagsInconsistent
	}

	hasRecipient := flags&FlagHasRecipient != 0
	hasSignature := flags&FlagHasSignature != 0

	needed := pos + PeerIDSize
	if hasRecipient {
		needed += PeerIDSize
	}
	needed += payloadLen
	if hasSignature {
		needed += signatureSize
	}
	if len(data) < needed {
		return nil, ErrTruncated
	}

	p := &Packet{
		Version:      version,
		Type:         kind,
		TTL:          ttl,
		Timestamp:    timestamp,
		Flags:        flags,
		HasRecipient: hasRecipient,
		HasSignature: hasSignature,
	}

	copy(p.Sender[:], data[pos:pos+PeerIDSize])
	pos += PeerIDSize

	if hasRecipient {
		copy(p.Recipient[:], data[pos:pos+PeerIDSize])
		pos += PeerIDSize
	}

	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		copy(p.Payload, data[pos:pos+payloadLen])
	} else {
		p.Payload = []byte{}
	}
	pos += payloadLen

	if hasSignature {
		copy(p.Signature[:], data[pos:pos+signatureSize])
		pos += signatureSize
	}

	return p, nil
}
