package cluster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType tags the three bus record kinds (spec §6). Values are
// stable across the wire.
type MessageType byte

const (
	GETLIST  MessageType = 1
	NODELIST MessageType = 2
	HEARTBEAT MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case GETLIST:
		return "GETLIST"
	case NODELIST:
		return "NODELIST"
	case HEARTBEAT:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

// Message is the bus wire record: a type tag plus zero or more member
// strings. GETLIST and HEARTBEAT carry exactly one (the sender
// endpoint); NODELIST carries one or more.
type Message struct {
	Type    MessageType
	Members []string
}

// Encode serializes m as: 1-byte tag, 2-byte big-endian member count,
// then for each member a 2-byte big-endian length followed by its UTF-8
// bytes.
func Encode(m Message) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Type))
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(m.Members)))
	buf.Write(countBuf[:])
	for _, s := range m.Members {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}
	return buf.Bytes()
}

// Decode parses a Message out of r. Malformed input is reported as an
// error and must be dropped by the caller, not treated as fatal.
func Decode(r io.Reader) (Message, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return Message{}, fmt.Errorf("cluster: decode tag: %w", err)
	}
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return Message{}, fmt.Errorf("cluster: decode count: %w", err)
	}
	count := binary.BigEndian.Uint16(countBuf[:])
	members := make([]string, 0, count)
	for i := uint16(0); i < count; i++ {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return Message{}, fmt.Errorf("cluster: decode member %d length: %w", i, err)
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		strBuf := make([]byte, n)
		if _, err := io.ReadFull(r, strBuf); err != nil {
			return Message{}, fmt.Errorf("cluster: decode member %d body: %w", i, err)
		}
		members = append(members, string(strBuf))
	}
	return Message{Type: MessageType(tagBuf[0]), Members: members}, nil
}
