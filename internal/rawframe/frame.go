// Package rawframe defines the on-bus representation produced by the
// Gateway Ingress and consumed by the Event Normalizer, plus its binary
// wire codec.
package rawframe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame is the on-bus representation after ingress filtering (spec.md §3).
type Frame struct {
	IngressTimestamp uint64
	EventType        string
	GuildID          uint64
	Inner            []byte // opaque platform-native JSON payload of `.d`
}

// Validate checks the two invariants the ingress must uphold before
// publishing: guild_id != 0 and event_type non-empty. Inner codec validity
// is checked by Decode, not here.
func (f Frame) Validate() error {
	if f.GuildID == 0 {
		return errors.New("rawframe: guild_id must be non-zero")
	}
	if f.EventType == "" {
		return errors.New("rawframe: event_type must be non-empty")
	}
	return nil
}

// Encode serializes a Frame to the durable-bus envelope: a length-prefixed
// binary encoding of {ingress_timestamp: u64, event_type: string,
// guild_id: u64, inner: bytes} (spec.md §6). Manually framed with
// encoding/binary rather than a general serialization library, since this
// wire format is the spec's own invention and not an existing format a
// library already covers (see DESIGN.md).
func Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	eventTypeBytes := []byte(f.EventType)
	size := 8 + 4 + len(eventTypeBytes) + 8 + 4 + len(f.Inner)
	buf := make([]byte, size)

	off := 0
	binary.BigEndian.PutUint64(buf[off:], f.IngressTimestamp)
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(eventTypeBytes)))
	off += 4
	off += copy(buf[off:], eventTypeBytes)

	binary.BigEndian.PutUint64(buf[off:], f.GuildID)
	off += 8

	binary.BigEndian.PutUint32(buf[off:], uint32(len(f.Inner)))
	off += 4
	copy(buf[off:], f.Inner)

	return buf, nil
}

// ErrTruncated indicates the byte slice ended before a declared length
// field's worth of data was found.
var ErrTruncated = errors.New("rawframe: truncated envelope")

// Decode parses the bus envelope back into a Frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	off := 0

	read := func(n int) ([]byte, error) {
		if off+n > len(data) {
			return nil, ErrTruncated
		}
		chunk := data[off : off+n]
		off += n
		return chunk, nil
	}

	tsBytes, err := read(8)
	if err != nil {
		return f, err
	}
	f.IngressTimestamp = binary.BigEndian.Uint64(tsBytes)

	lenBytes, err := read(4)
	if err != nil {
		return f, err
	}
	eventTypeLen := binary.BigEndian.Uint32(lenBytes)
	eventTypeBytes, err := read(int(eventTypeLen))
	if err != nil {
		return f, err
	}
	f.EventType = string(eventTypeBytes)

	guildBytes, err := read(8)
	if err != nil {
		return f, err
	}
	f.GuildID = binary.BigEndian.Uint64(guildBytes)

	innerLenBytes, err := read(4)
	if err != nil {
		return f, err
	}
	innerLen := binary.BigEndian.Uint32(innerLenBytes)
	innerBytes, err := read(int(innerLen))
	if err != nil {
		return f, err
	}
	f.Inner = append([]byte(nil), innerBytes...)

	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("rawframe: decoded frame failed validation: %w", err)
	}
	return f, nil
}
