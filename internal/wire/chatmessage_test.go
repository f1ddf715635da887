package wire

import "testing"

func TestChatMessageRoundTrip(t *testing.T) {
	m := &ChatMessage{
		Timestamp: 1234,
		ID:        "msg-1",
		Sender:    "alice",
		Content:   "hello mesh",
	}

	encoded, err := EncodeChatMessage(m)
	if err != nil {
		t.Fatalf("EncodeChatMessage: %v", err)
	}

	decoded, err := DecodeChatMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeChatMessage: %v", err)
	}

	if decoded.ID != m.ID || decoded.Sender != m.Sender || decoded.Content != m.Content {
		t.Fatalf("mismatch: got %+v", decoded)
	}
	if decoded.OriginalSender != "" || decoded.RecipientNickname != "" {
		t.Fatalf("unexpected optional fields: %+v", decoded)
	}
}

func TestChatMessageOptionalFields(t *testing.T) {
	m := &ChatMessage{
		Timestamp:         99,
		ID:                "msg-2",
		Sender:             "bob",
		Content:            "private hi",
		OriginalSender:     "relay-peer",
		RecipientNickname:  "alice",
	}

	encoded, err := EncodeChatMessage(m)
	if err != nil {
		t.Fatalf("EncodeChatMessage: %v", err)
	}

	decoded, err := DecodeChatMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeChatMessage: %v", err)
	}

	if decoded.OriginalSender != m.OriginalSender {
		t.Fatalf("original sender mismatch: got %q", decoded.OriginalSender)
	}
	if decoded.RecipientNickname != m.RecipientNickname {
		t.Fatalf("recipient nickname mismatch: got %q", decoded.RecipientNickname)
	}
	if decoded.Flags&ChatFlagHasOriginalSender == 0 || decoded.Flags&ChatFlagIsPrivate == 0 {
		t.Fatal("expected flags set for optional fields")
	}
}

func TestFragmentHeaderRoundTrip(t *testing.T) {
	h := &FragmentHeader{
		MessageID:     "frag-1",
		TotalSize:     3000,
		FragmentCount: 8,
		FragmentIndex: 3,
	}
	chunk := []byte("chunk-data")

	encoded, err := EncodeFragmentHeader(h)
	if err != nil {
		t.Fatalf("EncodeFragmentHeader: %v", err)
	}
	encoded = append(encoded, chunk...)

	decoded, rest, err := DecodeFragmentHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeFragmentHeader: %v", err)
	}
	if *decoded != *h {
		t.Fatalf("header mismatch: got %+v want %+v", decoded, h)
	}
	if string(rest) != string(chunk) {
		t.Fatalf("chunk mismatch: got %q", rest)
	}
}

func TestFragmentHeaderRejectsIndexOutOfRange(t *testing.T) {
	h := &FragmentHeader{MessageID: "x", TotalSize: 1, FragmentCount: 2, FragmentIndex: 2}
	if _, err := EncodeFragmentHeader(h); err != ErrFragmentField {
		t.Fatalf("expected ErrFragmentField, got %v", err)
	}
}
