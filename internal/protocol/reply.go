package protocol

import (
	"net"
	"strconv"
)

// Reply codes sent in ConnectReply.Reason, modeled on SOCKS5 (RFC 1928).
const (
	ReplySucceeded               uint8 = 0x00
	ReplyGeneralFailure          uint8 = 0x01
	ReplyNotAllowed              uint8 = 0x02
	ReplyNetworkUnreachable      uint8 = 0x03
	ReplyHostUnreachable         uint8 = 0x04
	ReplyConnectionRefused       uint8 = 0x05
	ReplyTTLExpired              uint8 = 0x06 // also used for connect timeouts
	ReplyCommandNotSupported     uint8 = 0x07
	ReplyAddressTypeNotSupported uint8 = 0x08
)

// Address types for ConnectReply.AddressType.
const (
	AddrIPv4 uint8 = 0x01
	AddrIPv6 uint8 = 0x04
)

var replyText = map[uint8]string{
	ReplySucceeded:               "succeeded",
	ReplyGeneralFailure:          "general failure",
	ReplyNotAllowed:              "connection not allowed",
	ReplyNetworkUnreachable:      "network unreachable",
	ReplyHostUnreachable:         "host unreachable",
	ReplyConnectionRefused:       "connection refused",
	ReplyTTLExpired:              "timed out",
	ReplyCommandNotSupported:     "command not supported",
	ReplyAddressTypeNotSupported: "address type not supported",
}

// ReplyText returns a human readable name for a reply code.
func ReplyText(code uint8) string {
	if s, ok := replyText[code]; ok {
		return s
	}
	return "reply " + strconv.Itoa(int(code))
}

// FailureReply builds the reply sent when a stream could not be opened.
// Bind fields are empty and the address type is fixed at IPv4 by convention.
func FailureReply(streamID string, reason uint8) *ConnectReply {
	return &ConnectReply{
		StreamID:    streamID,
		AddressType: AddrIPv4,
		Reason:      reason,
	}
}

// SuccessReply builds the reply for an established stream bound at local.
func SuccessReply(streamID string, local *net.TCPAddr) *ConnectReply {
	rep := &ConnectReply{
		StreamID:    streamID,
		BindAddress: local.IP.String(),
		BindPort:    uint16(local.Port),
		AddressType: AddrIPv4,
		Reason:      ReplySucceeded,
	}
	if local.IP.To4() == nil {
		rep.AddressType = AddrIPv6
	}
	return rep
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
