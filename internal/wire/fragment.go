package wire

import "encoding/binary"

// FragmentHeader prefixes the payload of FRAGMENT_START/_CONTINUE/_END
// packets. FragmentIndex must be less than FragmentCount.
type FragmentHeader struct {
	MessageID      string
	TotalSize      uint32
	FragmentCount  uint16
	FragmentIndex  uint16
}

// EncodeFragmentHeader serializes h as msg_id:{len:u8,bytes},
// total_size:u32 BE, fragment_count:u16 BE, fragment_index:u16 BE.
func EncodeFragmentHeader(h *FragmentHeader) ([]byte, error) {
	if len(h.MessageID) > 0xFF {
		return nil, ErrStringTooLong
	}
	if h.FragmentIndex >= h.FragmentCount {
		return nil, ErrFragmentField
	}

	size := 1 + len(h.MessageID) + 4 + 2 + 2
	buf := make([]byte, size)
	pos := 0
	var err error
	pos, err = putShortString(buf, pos, h.MessageID)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(buf[pos:pos+4], h.TotalSize)
	pos += 4
	binary.BigEndian.PutUint16(buf[pos:pos+2], h.FragmentCount)
	pos += 2
	binary.BigEndian.PutUint16(buf[pos:pos+2], h.FragmentIndex)
	pos += 2

	return buf, nil
}

// DecodeFragmentHeader parses the fixed portion of a fragment payload and
// returns the remaining bytes (the chunk) alongside the header.
func DecodeFragmentHeader(data []byte) (*FragmentHeader, []byte, error) {
	msgID, pos, err := getShortString(data, 0)
	if err != nil {
		return nil, nil, err
	}
	if pos+8 > len(data) {
		return nil, nil, ErrChatTruncated
	}

	h := &FragmentHeader{MessageID: msgID}
	h.TotalSize = binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	h.FragmentCount = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	h.FragmentIndex = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2

	if h.FragmentIndex >= h.FragmentCount {
		return nil, nil, ErrFragmentField
	}

	return h, data[pos:], nil
}
