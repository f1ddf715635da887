// Package fragment splits oversize payloads into START/CONTINUE/END
// fragments sized for the BLE MTU, and reassembles them back into the
// original payload on the receiving side.
package fragment

import (
	"errors"

	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

// Config controls fragment sizing: a 512-byte BLE MTU and a 100-byte
// safety margin by default.
type Config struct {
	MTU          int
	SafetyMargin int
}

// DefaultConfig returns the default MTU/safety-margin pair.
func DefaultConfig() Config {
	return Config{MTU: 512, SafetyMargin: 100}
}

var (
	ErrPayloadTooLarge = errors.New("fragment: payload exceeds 65535 bytes")
	ErrMTUTooSmall     = errors.New("fragment: MTU too small to carry a single fragment")
)

// maxChunk returns the largest payload slice that fits in one fragment
// packet, given the fixed per-packet overhead and the message ID length.
func (c Config) maxChunk(messageID string, hasRecipient bool) int {
	overhead := wire.FixedHeaderSize + wire.PeerIDSize
	if hasRecipient {
		overhead += wire.PeerIDSize
	}
	// fragment header: 1-byte length prefix + message ID + total_size(4) + count(2) + index(2)
	overhead += 1 + len(messageID) + 4 + 2 + 2
	overhead += c.SafetyMargin

	return c.MTU - overhead
}

// Request describes a payload to fragment.
type Request struct {
	Payload   []byte
	Sender    wire.PeerID
	Recipient *wire.PeerID
	TTL       byte
	MessageID string
	Timestamp uint64
}

// Fragment splits req.Payload into one or more packets. If the payload
// fits in a single fragment-sized chunk, it is returned as a single
// unfragmented CHAT_MESSAGE packet with no fragment header.
func Fragment(req Request, cfg Config) ([]*wire.Packet, error) {
	if len(req.Payload) > 0xFFFF {
		return nil, ErrPayloadTooLarge
	}

	chunkSize := cfg.maxChunk(req.MessageID, req.Recipient != nil)
	if chunkSize <= 0 {
		return nil, ErrMTUTooSmall
	}

	if len(req.Payload) <= chunkSize {
		pkt := wire.NewPacket(wire.KindChatMessage, req.TTL, req.Timestamp, req.Sender, req.Payload)
		if req.Recipient != nil {
			pkt.WithRecipient(*req.Recipient)
		}
		return []*wire.Packet{pkt}, nil
	}

	count := (len(req.Payload) + chunkSize - 1) / chunkSize
	packets := make([]*wire.Packet, 0, count)

	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(req.Payload))

		header := &wire.FragmentHeader{
			MessageID:     req.MessageID,
			TotalSize:     uint32(len(req.Payload)),
			FragmentCount: uint16(count),
			FragmentIndex: uint16(i),
		}
		headerBytes, err := wire.EncodeFragmentHeader(header)
		if err != nil {
			return nil, err
		}

		payload := append(headerBytes, req.Payload[start:end]...)

		kind := wire.KindFragmentContinue
		switch i {
		case 0:
			kind = wire.KindFragmentStart
		case count - 1:
			kind = wire.KindFragmentEnd
		}

		pkt := wire.NewPacket(kind, req.TTL, req.Timestamp, req.Sender, payload)
		if req.Recipient != nil {
			pkt.WithRecipient(*req.Recipient)
		}
		packets = append(packets, pkt)
	}

	return packets, nil
}
