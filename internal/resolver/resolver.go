// Package resolver turns connect-request host names into addresses.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up the addresses of a host. IP literals resolve to themselves.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

// System resolves through the operating system's resolver.
type System struct {
	Resolver *net.Resolver
}

func (s System) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	return r.LookupIP(ctx, "ip", host)
}

// DNS queries a specific DNS server directly, bypassing the system resolver.
type DNS struct {
	server string
	client *dns.Client
}

// NewDNS creates a resolver for server ("host:port"; port 53 is assumed when missing).
func NewDNS(server string, timeout time.Duration) *DNS {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNS{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (d *DNS) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	var ips []net.IP
	var lastErr error
	notFound := false
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		resp, _, err := d.client.ExchangeContext(ctx, msg, d.server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode == dns.RcodeNameError {
			notFound = true
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("server answered %s", dns.RcodeToString[resp.Rcode])
			continue
		}
		for _, rr := range resp.Answer {
			switch a := rr.(type) {
			case *dns.A:
				ips = append(ips, a.A)
			case *dns.AAAA:
				ips = append(ips, a.AAAA)
			}
		}
	}

	if len(ips) > 0 {
		return ips, nil
	}
	dnsErr := &net.DNSError{Name: host, Server: d.server}
	switch {
	case notFound || lastErr == nil:
		dnsErr.Err = "no such host"
		dnsErr.IsNotFound = true
	default:
		dnsErr.Err = lastErr.Error()
		var netErr net.Error
		dnsErr.IsTimeout = errors.As(lastErr, &netErr) && netErr.Timeout()
	}
	return nil, dnsErr
}

// Pick returns the first IPv4 or IPv6 address, or nil.
func Pick(ips []net.IP) net.IP {
	for _, ip := range ips {
		if ip.To4() != nil || len(ip) == net.IPv6len {
			return ip
		}
	}
	return nil
}
