package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebSocket carries one payload per binary frame over a persistent connection.
type WebSocket struct {
	opts   Options
	dialer websocket.Dialer

	conn    atomic.Pointer[websocket.Conn]
	writeMu sync.Mutex

	closeOnce sync.Once
}

func NewWebSocket(opts Options) (*WebSocket, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid url %q: scheme must be ws or wss", opts.URL)
	}
	proxy, err := opts.proxy()
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	return &WebSocket{
		opts: opts,
		dialer: websocket.Dialer{
			TLSClientConfig:  opts.tlsConfig(),
			Proxy:            proxy,
			HandshakeTimeout: opts.ConnectTimeout,
		},
	}, nil
}

func (w *WebSocket) Name() string { return KindWebSocket }

func (w *WebSocket) Connect(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.opts.URL, w.opts.header())
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return &Error{Op: "connect", Transport: KindWebSocket, Err: err}
	}
	if w.opts.ReadLimit > 0 {
		conn.SetReadLimit(w.opts.ReadLimit)
	}
	w.conn.Store(conn)
	return nil
}

func (w *WebSocket) Send(ctx context.Context, payload []byte) error {
	sealed, err := w.opts.Cipher.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	conn := w.conn.Load()
	if conn == nil {
		return &Error{Op: "send", Transport: KindWebSocket, Err: errors.New("not connected")}
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, sealed); err != nil {
		return &Error{Op: "send", Transport: KindWebSocket, Err: err}
	}
	return nil
}

// Receive must not be called concurrently with itself.
func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	conn := w.conn.Load()
	if conn == nil {
		return nil, &Error{Op: "receive", Transport: KindWebSocket, Err: errors.New("not connected")}
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, &Error{Op: "receive", Transport: KindWebSocket, Err: err}
		}
		if typ != websocket.BinaryMessage && typ != websocket.TextMessage {
			continue
		}
		return decrypt(w.opts.Cipher, msg)
	}
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		conn := w.conn.Load()
		if conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = conn.Close()
	})
	return err
}
