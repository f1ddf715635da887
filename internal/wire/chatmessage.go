package wire

import (
	"encoding/binary"
	"errors"
)

// ChatMessage flag bits, carried inside the payload's own flags byte
// (distinct from Packet.Flags).
const (
	ChatFlagHasOriginalSender byte = 1 << 0
	ChatFlagIsPrivate         byte = 1 << 1
)

// ChatMessage is the payload layout for KindChatMessage. Id is a UUID-like
// string unique per origin; Content uses a 16-bit length prefix, every
// other string field an 8-bit prefix.
type ChatMessage struct {
	Flags             byte
	Timestamp         uint64
	ID                string
	Sender            string
	Content           string
	OriginalSender    string // present iff ChatFlagHasOriginalSender
	RecipientNickname string // present iff ChatFlagIsPrivate
}

var (
	ErrStringTooLong  = errors.New("wire: string field exceeds its length prefix")
	ErrChatTruncated  = errors.New("wire: chat message payload truncated")
	ErrFragmentField  = errors.New("wire: fragment header field invalid")
)

func putShortString(buf []byte, pos int, s string) (int, error) {
	if len(s) > 0xFF {
		return 0, ErrStringTooLong
	}
	buf[pos] = byte(len(s))
	pos++
	copy(buf[pos:], s)
	return pos + len(s), nil
}

func getShortString(data []byte, pos int) (string, int, error) {
	if pos >= len(data) {
		return "", 0, ErrChatTruncated
	}
	n := int(data[pos])
	pos++
	if pos+n > len(data) {
		return "", 0, ErrChatTruncated
	}
	return string(data[pos : pos+n]), pos + n, nil
}

// EncodeChatMessage serializes m into its wire payload layout.
func EncodeChatMessage(m *ChatMessage) ([]byte, error) {
	if len(m.ID) > 0xFF || len(m.Sender) > 0xFF {
		return nil, ErrStringTooLong
	}
	if len(m.Content) > 0xFFFF {
		return nil, ErrStringTooLong
	}

	flags := m.Flags
	if m.OriginalSender != "" {
		flags |= ChatFlagHasOriginalSender
	} else {
		flags &^= ChatFlagHasOriginalSender
	}
	if m.RecipientNickname != "" {
		flags |= ChatFlagIsPrivate
	} else {
		flags &^= ChatFlagIsPrivate
	}

	size := 1 + 8 + 1 + len(m.ID) + 1 + len(m.Sender) + 2 + len(m.Content)
	if flags&ChatFlagHasOriginalSender != 0 {
		size += 1 + len(m.OriginalSender)
	}
	if flags&ChatFlagIsPrivate != 0 {
		size += 1 + len(m.RecipientNickname)
	}

	buf := make([]byte, size)
	pos := 0
	buf[pos] = flags
	pos++
	binary.BigEndian.PutUint64(buf[pos:pos+8], m.Timestamp)
	pos += 8

	var err error
	pos, err = putShortString(buf, pos, m.ID)
	if err != nil {
		return nil, err
	}
	pos, err = putShortString(buf, pos, m.Sender)
	if err != nil {
		return nil, err
	}

	buf[pos] = byte(len(m.Content) >> 8)
	buf[pos+1] = byte(len(m.Content))
	pos += 2
	copy(buf[pos:], m.Content)
	pos += len(m.Content)

	if flags&ChatFlagHasOriginalSender != 0 {
		pos, err = putShortString(buf, pos, m.OriginalSender)
		if err != nil {
			return nil, err
		}
	}
	if flags&ChatFlagIsPrivate != 0 {
		pos, err = putShortString(buf, pos, m.RecipientNickname)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// DecodeChatMessage parses a ChatMessage payload produced by EncodeChatMessage.
func DecodeChatMessage(data []byte) (*ChatMessage, error) {
	if len(data) < 1+8+1+1+2 {
		return nil, ErrChatTruncated
	}

	pos := 0
	m := &ChatMessage{Flags: data[pos]}
	pos++
	m.Timestamp = binary.BigEndian.Uint64(data[pos : pos+8])
	pos += 8

	var err error
	m.ID, pos, err = getShortString(data, pos)
	if err != nil {
		return nil, err
	}
	m.Sender, pos, err = getShortString(data, pos)
	if err != nil {
		return nil, err
	}

	if pos+2 > len(data) {
		return nil, ErrChatTruncated
	}
	contentLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2
	if pos+contentLen > len(data) {
		return nil, ErrChatTruncated
	}
	m.Content = string(data[pos : pos+contentLen])
	pos += contentLen

	if m.Flags&ChatFlagHasOriginalSender != 0 {
		m.OriginalSender, pos, err = getShortString(data, pos)
		if err != nil {
			return nil, err
		}
	}
	if m.Flags&ChatFlagIsPrivate != 0 {
		m.RecipientNickname, pos, err = getShortString(data, pos)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}
