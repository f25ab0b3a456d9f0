package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed size of [type][totalLength].
const HeaderSize = 8

// ErrMalformedMessage is returned for truncated, oversized or unknown messages.
var ErrMalformedMessage = errors.New("malformed message")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// Encode serializes m as [type:u32BE][totalLength:u32BE][body].
func Encode(m Message) ([]byte, error) {
	return AppendEncode(nil, m)
}

// AppendEncode appends the encoding of m to dst. On error dst is returned unchanged.
func AppendEncode(dst []byte, m Message) ([]byte, error) {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0, 0, 0, 0, 0)

	switch msg := m.(type) {
	case *CheckIn:
		dst = appendString(dst, msg.MessengerID)
	case *ConnectRequest:
		dst = appendString(dst, msg.StreamID)
		dst = appendString(dst, msg.Host)
		dst = binary.BigEndian.AppendUint32(dst, uint32(msg.Port))
	case *ConnectReply:
		dst = appendString(dst, msg.StreamID)
		dst = appendString(dst, msg.BindAddress)
		dst = binary.BigEndian.AppendUint32(dst, uint32(msg.BindPort))
		dst = binary.BigEndian.AppendUint32(dst, uint32(msg.AddressType))
		dst = binary.BigEndian.AppendUint32(dst, uint32(msg.Reason))
	case *Data:
		dst = appendString(dst, msg.StreamID)
		dst = appendPayload(dst, msg.Payload)
	default:
		return dst[:start], fmt.Errorf("cannot encode message of type %T", m)
	}

	total := len(dst) - start
	if uint64(total) > math.MaxUint32 {
		return dst[:start], fmt.Errorf("%s message too large: %d bytes", m.Type(), total)
	}
	binary.BigEndian.PutUint32(dst[start:], uint32(m.Type()))
	binary.BigEndian.PutUint32(dst[start+4:], uint32(total))
	return dst, nil
}

// EncodeAll concatenates the encodings of msgs with no outer delimiter.
func EncodeAll(msgs []Message) ([]byte, error) {
	var out []byte
	for _, m := range msgs {
		var err error
		out, err = AppendEncode(out, m)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendPayload(dst []byte, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// DecodeOne decodes the message starting at offset and returns it together
// with the number of bytes it occupied.
func DecodeOne(b []byte, offset int) (Message, int, error) {
	if offset < 0 || offset > len(b) {
		return nil, 0, malformed("offset %d outside buffer of %d bytes", offset, len(b))
	}
	rest := b[offset:]
	if len(rest) < HeaderSize {
		return nil, 0, malformed("need %d header bytes, have %d", HeaderSize, len(rest))
	}

	typ := Type(binary.BigEndian.Uint32(rest[0:4]))
	total := uint64(binary.BigEndian.Uint32(rest[4:8]))
	if total < HeaderSize {
		return nil, 0, malformed("declared length %d shorter than header", total)
	}
	if total > uint64(len(rest)) {
		return nil, 0, malformed("declared length %d exceeds %d available bytes", total, len(rest))
	}

	r := reader{buf: rest[HeaderSize:total]}
	var m Message
	switch typ {
	case TypeCheckIn:
		m = &CheckIn{MessengerID: r.string()}
	case TypeConnectRequest:
		m = &ConnectRequest{
			StreamID: r.string(),
			Host:     r.string(),
			Port:     r.uint16(),
		}
	case TypeConnectReply:
		m = &ConnectReply{
			StreamID:    r.string(),
			BindAddress: r.string(),
			BindPort:    r.uint16(),
			AddressType: r.uint8(),
			Reason:      r.uint8(),
		}
	case TypeData:
		m = &Data{
			StreamID: r.string(),
			Payload:  r.bytes(),
		}
	default:
		return nil, 0, malformed("unknown message type 0x%02x", uint32(typ))
	}

	if r.err != nil {
		return nil, 0, fmt.Errorf("%s: %w", typ, r.err)
	}
	if len(r.buf) != 0 {
		return nil, 0, malformed("%s: %d trailing body bytes", typ, len(r.buf))
	}
	return m, int(total), nil
}

// DecodeAll decodes back-to-back messages until b is exhausted. A fault
// anywhere in b fails the whole payload: no messages are returned.
func DecodeAll(b []byte) ([]Message, error) {
	var msgs []Message
	offset := 0
	for offset < len(b) {
		m, n, err := DecodeOne(b, offset)
		if err != nil {
			return nil, fmt.Errorf("message at offset %d: %w", offset, err)
		}
		msgs = append(msgs, m)
		offset += n
	}
	return msgs, nil
}

// reader consumes body fields; the first failure sticks in err.
type reader struct {
	buf []byte
	err error
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 4 {
		r.err = malformed("need 4 bytes for integer, have %d", len(r.buf))
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *reader) uint16() uint16 {
	v := r.uint32()
	if r.err == nil && v > math.MaxUint16 {
		r.err = malformed("value %d overflows uint16", v)
	}
	return uint16(v)
}

func (r *reader) uint8() uint8 {
	v := r.uint32()
	if r.err == nil && v > math.MaxUint8 {
		r.err = malformed("value %d overflows uint8", v)
	}
	return uint8(v)
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.buf)) {
		r.err = malformed("field length %d exceeds %d remaining body bytes", n, len(r.buf))
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out
}

func (r *reader) string() string {
	return string(r.bytes())
}
