package wire

import (
	"bytes"
	"testing"
)

func peerID(b byte) PeerID {
	var id PeerID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewPacket(KindChatMessage, 3, 1000, peerID(0x01), []byte("hi"))

	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	found := false
	for _, s := range standardSizes {
		if len(encoded) == s {
			found = true
		}
	}
	if !found {
		t.Fatalf("encoded size %d is not a standard size", len(encoded))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Version != p.Version || decoded.Type != p.Type || decoded.TTL != p.TTL ||
		decoded.Timestamp != p.Timestamp || decoded.Sender != p.Sender {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if !bytes.Equal(decoded.Payload, p.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", decoded.Payload, p.Payload)
	}
	if decoded.HasRecipient || decoded.HasSignature {
		t.Fatal("unexpected recipient/signature flags")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	p := NewPacket(KindChatMessage, 3, 1000, peerID(0x02), []byte("deterministic"))
	a, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("two encodings of the same packet differ")
	}
}

func TestEncodeWithRecipientAndSignature(t *testing.T) {
	p := NewPacket(KindChatMessage, 5, 42, peerID(0x03), []byte("x"))
	p.WithRecipient(peerID(0x04))
	var sig [64]byte
	for i := range sig {
		sig[i] = byte(i)
	}
	p.WithSignature(sig)

	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.HasRecipient || decoded.Recipient != p.Recipient {
		t.Fatal("recipient not preserved")
	}
	if !decoded.HasSignature || decoded.Signature != sig {
		t.Fatal("signature not preserved")
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	p := NewPacket(KindChatMessage, 1, 0, peerID(0), make([]byte, 0x10000))
	if _, err := Encode(p); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodeTTLOutOfRange(t *testing.T) {
	p := NewPacket(KindChatMessage, MaxTTL+1, 0, peerID(0), nil)
	if _, err := Encode(p); err != ErrTTLOutOfRange {
		t.Fatalf("expected ErrTTLOutOfRange, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeVersionUnsupported(t *testing.T) {
	p := NewPacket(KindChatMessage, 1, 0, peerID(0), []byte("a"))
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded[0] = 2
	if _, err := Decode(encoded); err != ErrVersionUnsupported {
		t.Fatalf("expected ErrVersionUnsupported, got %v", err)
	}
}

func TestBroadcastEquality(t *testing.T) {
	if !Broadcast.IsBroadcast() {
		t.Fatal("Broadcast should report IsBroadcast")
	}
	if peerID(0x01).IsBroadcast() {
		t.Fatal("non-broadcast id reported as broadcast")
	}
}

func TestPadToSmallestStandardSize(t *testing.T) {
	cases := []struct {
		payloadLen int
		wantSize   int
	}{
		{0, 256},
		{2, 256},
		{300, 512},
		{800, 1024},
		{1800, 2048},
	}
	for _, tc := range cases {
		p := NewPacket(KindChatMessage, 1, 0, peerID(0), make([]byte, tc.payloadLen))
		encoded, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%d): %v", tc.payloadLen, err)
		}
		if len(encoded) != tc.wantSize {
			t.Fatalf("payload %d: got size %d, want %d", tc.payloadLen, len(encoded), tc.wantSize)
		}
	}
}
