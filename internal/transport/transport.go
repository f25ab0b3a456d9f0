// Package transport carries encoded message batches between the agent and
// the remote endpoint. Adapters encrypt on Send and decrypt on Receive.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ehsanking/elahe-messenger/internal/crypto"
)

// Transport kinds accepted by New.
const (
	KindHTTP      = "http"
	KindWebSocket = "websocket"
)

// ErrTransport matches every *Error via errors.Is.
var ErrTransport = errors.New("transport error")

// Error is a failure of the underlying carrier. It ends the session.
type Error struct {
	Op        string
	Transport string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// Transport is a bidirectional carrier of opaque payloads.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	// Receive blocks for the next payload. io.EOF means the carrier closed
	// cleanly; a wrapped crypto.ErrDecrypt means one payload was unreadable.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
	Name() string
}

// Options configure both adapters.
type Options struct {
	URL                string
	Cipher             crypto.Cipher
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	ProxyURL           string
	InsecureSkipVerify bool
	Headers            map[string]string
	// Masquerade wraps HTTP bodies as search traffic. Ignored by WebSocket.
	Masquerade bool
	// ReadLimit caps one inbound WebSocket message; zero means no limit.
	ReadLimit int64
}

// New builds the adapter for kind.
func New(kind string, opts Options) (Transport, error) {
	if opts.Cipher == nil {
		c, err := crypto.NewCipher(crypto.None, nil)
		if err != nil {
			return nil, err
		}
		opts.Cipher = c
	}
	switch kind {
	case KindHTTP, "":
		return NewHTTP(opts)
	case KindWebSocket, "ws":
		return NewWebSocket(opts)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

func (o Options) proxy() (func(*http.Request) (*url.URL, error), error) {
	if o.ProxyURL == "" {
		return http.ProxyFromEnvironment, nil
	}
	u, err := url.Parse(o.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	return http.ProxyURL(u), nil
}

func (o Options) tlsConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify}
}

func (o Options) header() http.Header {
	h := http.Header{}
	for k, v := range o.Headers {
		h.Set(k, v)
	}
	return h
}

func decrypt(c crypto.Cipher, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return payload, nil
	}
	return c.Decrypt(payload)
}
