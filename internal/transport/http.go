package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ehsanking/elahe-messenger/internal/masquerade"
	"github.com/ehsanking/elahe-messenger/internal/pump"
)

const defaultRequestTimeout = 15 * time.Second

// HTTP polls the remote endpoint: every Send is one POST and the response
// body becomes the next payload returned by Receive.
type HTTP struct {
	opts   Options
	client *http.Client

	responses *pump.Queue[[]byte]
	pending   [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func NewHTTP(opts Options) (*HTTP, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", opts.URL)
	}
	proxy, err := opts.proxy()
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	netDialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 15 * time.Second,
	}
	tr := &http.Transport{
		Proxy:               proxy,
		TLSClientConfig:     opts.tlsConfig(),
		DialContext:         netDialer.DialContext,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTP{
		opts:      opts,
		client:    &http.Client{Transport: newSerialTransport(tr, 1), Timeout: opts.RequestTimeout},
		responses: pump.NewQueue[[]byte](),
		closed:    make(chan struct{}),
	}, nil
}

func (h *HTTP) Name() string { return KindHTTP }

// Connect has nothing to establish; the first poll opens the connection.
func (h *HTTP) Connect(ctx context.Context) error {
	select {
	case <-h.closed:
		return &Error{Op: "connect", Transport: KindHTTP, Err: net.ErrClosed}
	default:
		return nil
	}
}

func (h *HTTP) Send(ctx context.Context, payload []byte) error {
	select {
	case <-h.closed:
		return &Error{Op: "send", Transport: KindHTTP, Err: net.ErrClosed}
	default:
	}

	sealed, err := h.opts.Cipher.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	req, err := h.newRequest(ctx, sealed)
	if err != nil {
		return &Error{Op: "send", Transport: KindHTTP, Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return &Error{Op: "send", Transport: KindHTTP, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &Error{Op: "send", Transport: KindHTTP, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: "receive", Transport: KindHTTP, Err: err}
	}
	if h.opts.Masquerade && len(body) > 0 {
		if body, err = masquerade.UnwrapResponseBody(body); err != nil {
			return &Error{Op: "receive", Transport: KindHTTP, Err: err}
		}
	}
	if len(body) > 0 {
		h.responses.Enqueue(body)
	}
	return nil
}

func (h *HTTP) newRequest(ctx context.Context, sealed []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if h.opts.Masquerade {
		req, err = masquerade.NewRequest(h.opts.URL, sealed)
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, h.opts.URL, bytes.NewReader(sealed))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Receive returns response bodies in the order their requests were sent.
func (h *HTTP) Receive(ctx context.Context) ([]byte, error) {
	for len(h.pending) == 0 {
		h.pending = h.responses.DrainAll()
		if len(h.pending) > 0 {
			break
		}
		select {
		case <-h.responses.Ready():
		case <-h.closed:
			if h.pending = h.responses.DrainAll(); len(h.pending) > 0 {
				break
			}
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	body := h.pending[0]
	h.pending = h.pending[1:]
	return decrypt(h.opts.Cipher, body)
}

func (h *HTTP) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.client.CloseIdleConnections()
	})
	return nil
}
