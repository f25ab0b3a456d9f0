package resolver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket failed: %v", err)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc("example.test.", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		hdr := dns.RR_Header{Name: r.Question[0].Name, Class: dns.ClassINET, Ttl: 60}
		switch r.Question[0].Qtype {
		case dns.TypeA:
			hdr.Rrtype = dns.TypeA
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: net.ParseIP("192.0.2.10").To4()})
		case dns.TypeAAAA:
			hdr.Rrtype = dns.TypeAAAA
			m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: net.ParseIP("2001:db8::10")})
		}
		w.WriteMsg(m)
	})
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go server.ActivateAndServe()
	<-started
	t.Cleanup(func() { server.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSLookup(t *testing.T) {
	r := NewDNS(startDNSServer(t), 2*time.Second)

	ips, err := r.LookupIP(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("LookupIP failed: %v", err)
	}
	if len(ips) != 2 {
		t.Fatalf("got %v, want one A and one AAAA", ips)
	}
	if got := Pick(ips); !got.Equal(net.ParseIP("192.0.2.10")) {
		t.Errorf("Pick() = %v, want the IPv4 answer first", got)
	}
}

func TestDNSLookupNotFound(t *testing.T) {
	r := NewDNS(startDNSServer(t), 2*time.Second)

	_, err := r.LookupIP(context.Background(), "missing.test")
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
		t.Fatalf("err = %v, want not-found DNSError", err)
	}
}

func TestLiteralAddresses(t *testing.T) {
	for _, r := range []Resolver{System{}, NewDNS("127.0.0.1", time.Second)} {
		ips, err := r.LookupIP(context.Background(), "::1")
		if err != nil || len(ips) != 1 || !ips[0].Equal(net.IPv6loopback) {
			t.Errorf("%T.LookupIP(::1) = %v, %v", r, ips, err)
		}
	}
}

func TestNewDNSDefaultPort(t *testing.T) {
	if r := NewDNS("9.9.9.9", time.Second); r.server != "9.9.9.9:53" {
		t.Errorf("server = %q, want 9.9.9.9:53", r.server)
	}
}
