package protocol

import "fmt"

// Type is the wire tag carried in every message header.
type Type uint32

const (
	TypeConnectRequest Type = 0x01
	TypeConnectReply   Type = 0x02
	TypeData           Type = 0x03
	TypeCheckIn        Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeConnectRequest:
		return "connect_request"
	case TypeConnectReply:
		return "connect_reply"
	case TypeData:
		return "data"
	case TypeCheckIn:
		return "check_in"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint32(t))
	}
}

// Message is one of *CheckIn, *ConnectRequest, *ConnectReply or *Data.
// The set is closed: only this package can add variants.
type Message interface {
	Type() Type
	message()
}

// CheckIn carries the session identifier assigned by the remote endpoint.
type CheckIn struct {
	MessengerID string
}

// ConnectRequest asks the agent to open an outbound TCP connection.
type ConnectRequest struct {
	StreamID string
	Host     string
	Port     uint16
}

// ConnectReply answers a ConnectRequest. Reason 0 means success.
type ConnectReply struct {
	StreamID    string
	BindAddress string
	BindPort    uint16
	AddressType uint8
	Reason      uint8
}

// Data is a chunk of stream bytes. An empty payload signals EOF for the stream.
type Data struct {
	StreamID string
	Payload  []byte
}

func (*CheckIn) Type() Type        { return TypeCheckIn }
func (*ConnectRequest) Type() Type { return TypeConnectRequest }
func (*ConnectReply) Type() Type   { return TypeConnectReply }
func (*Data) Type() Type           { return TypeData }

func (*CheckIn) message()        {}
func (*ConnectRequest) message() {}
func (*ConnectReply) message()   {}
func (*Data) message()           {}

// IsEOF reports whether d is the teardown signal for its stream.
func (d *Data) IsEOF() bool { return len(d.Payload) == 0 }

// TargetAddr returns host:port suitable for net.Dial.
func (r *ConnectRequest) TargetAddr() string {
	return joinHostPort(r.Host, r.Port)
}

// Succeeded reports whether the reply signals an established stream.
func (r *ConnectReply) Succeeded() bool { return r.Reason == ReplySucceeded }
