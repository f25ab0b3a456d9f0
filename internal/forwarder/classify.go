package forwarder

import (
	"errors"
	"net"
	"syscall"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
)

// ErrNoAddress is returned when a host resolves to no usable IPv4/IPv6 address.
var ErrNoAddress = errors.New("no usable address")

// Classify maps a connect failure onto the ConnectReply reason vocabulary.
func Classify(err error) uint8 {
	if err == nil {
		return protocol.ReplySucceeded
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.ReplyTTLExpired
	}
	var dnsErr *net.DNSError
	if errors.Is(err, ErrNoAddress) || errors.As(err, &dnsErr) {
		return protocol.ReplyHostUnreachable
	}

	switch {
	case errors.Is(err, syscall.ENETUNREACH):
		return protocol.ReplyNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return protocol.ReplyHostUnreachable
	case errors.Is(err, syscall.ECONNREFUSED):
		return protocol.ReplyConnectionRefused
	case errors.Is(err, syscall.ETIMEDOUT):
		return protocol.ReplyTTLExpired
	case errors.Is(err, syscall.EAFNOSUPPORT):
		return protocol.ReplyAddressTypeNotSupported
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return protocol.ReplyAddressTypeNotSupported
	}
	return protocol.ReplyGeneralFailure
}
