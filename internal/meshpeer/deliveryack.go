package meshpeer

import "github.com/Magicred-1/anon0mesh-sub003/internal/wire"

// BuildDeliveryAck constructs the DELIVERY_ACK packet a recipient sends
// back to the original sender once a chat message addressed to it has
// been accepted locally. The payload is the acknowledged message's id
// with an 8-bit length prefix, the layout ParseDeliveryAck reads back.
func BuildDeliveryAck(self wire.PeerID, originalSender wire.PeerID, messageID string, timestampMs uint64) *wire.Packet {
	payload := putShortString(messageID)
	return wire.NewPacket(wire.KindDeliveryAck, 3, timestampMs, self, payload).WithRecipient(originalSender)
}

func putShortString(s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}

// ParseDeliveryAck extracts the acknowledged message id from a
// DELIVERY_ACK packet's payload.
func ParseDeliveryAck(payload []byte) (string, bool) {
	if len(payload) < 1 {
		return "", false
	}
	n := int(payload[0])
	if len(payload) < 1+n {
		return "", false
	}
	return string(payload[1 : 1+n]), true
}
