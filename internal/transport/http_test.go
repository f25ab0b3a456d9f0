package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehsanking/elahe-messenger/internal/crypto"
	"github.com/ehsanking/elahe-messenger/internal/masquerade"
)

func testCipher(t *testing.T) crypto.Cipher {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	c, err := crypto.NewCipher(crypto.AESGCM, key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	return c
}

// readMasqueraded decodes a search-form request body.
func readMasqueraded(r *http.Request) ([]byte, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return base64.URLEncoding.DecodeString(r.PostForm.Get(masquerade.FormField))
}

// echoHandler answers every poll with "echo:" + the decrypted request.
func echoHandler(t *testing.T, c crypto.Cipher, masq bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		var err error
		if masq {
			body, err = readMasqueraded(r)
		} else {
			body, err = io.ReadAll(r.Body)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		plain, err := c.Decrypt(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		sealed, _ := c.Encrypt(append([]byte("echo:"), plain...))
		if masq {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, masquerade.WrapResponseBody(sealed))
			return
		}
		w.Write(sealed)
	}
}

func newHTTP(t *testing.T, srvURL string, c crypto.Cipher, masq bool) *HTTP {
	t.Helper()
	h, err := NewHTTP(Options{URL: srvURL, Cipher: c, Masquerade: masq, RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTP failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return h
}

func TestHTTPSendReceive(t *testing.T) {
	for _, masq := range []bool{false, true} {
		name := "plain"
		if masq {
			name = "masquerade"
		}
		t.Run(name, func(t *testing.T) {
			c := testCipher(t)
			srv := httptest.NewServer(echoHandler(t, c, masq))
			defer srv.Close()
			h := newHTTP(t, srv.URL, c, masq)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, msg := range []string{"one", "two"} {
				if err := h.Send(ctx, []byte(msg)); err != nil {
					t.Fatalf("Send failed: %v", err)
				}
			}
			for _, want := range []string{"echo:one", "echo:two"} {
				got, err := h.Receive(ctx)
				if err != nil {
					t.Fatalf("Receive failed: %v", err)
				}
				if string(got) != want {
					t.Errorf("Receive = %q, want %q", got, want)
				}
			}
		})
	}
}

func TestHTTPStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	h := newHTTP(t, srv.URL, testCipher(t), false)

	err := h.Send(context.Background(), []byte("x"))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	var te *Error
	if !errors.As(err, &te) || te.Transport != KindHTTP || te.Op != "send" {
		t.Errorf("err = %#v", err)
	}
}

func TestHTTPEmptyResponseQueuesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	h := newHTTP(t, srv.URL, testCipher(t), false)

	if err := h.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive err = %v, want deadline exceeded", err)
	}
}

func TestHTTPDecryptFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0x42}, 64))
	}))
	defer srv.Close()
	h := newHTTP(t, srv.URL, testCipher(t), false)

	if err := h.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	_, err := h.Receive(context.Background())
	if !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("decrypt failure must not be a transport error")
	}
}

func TestHTTPCloseEndsReceive(t *testing.T) {
	h := newHTTP(t, "http://127.0.0.1:1/", testCipher(t), false)
	h.Close()
	if _, err := h.Receive(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Receive after Close = %v, want io.EOF", err)
	}
	if err := h.Send(context.Background(), []byte("x")); !errors.Is(err, ErrTransport) {
		t.Errorf("Send after Close = %v, want ErrTransport", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		kind string
		url  string
	}{
		{KindHTTP, "ws://example.com"},
		{KindWebSocket, "http://example.com"},
		{"carrier-pigeon", "http://example.com"},
	}
	for _, tt := range tests {
		if _, err := New(tt.kind, Options{URL: tt.url}); err == nil {
			t.Errorf("New(%q, %q) succeeded, want error", tt.kind, tt.url)
		}
	}
	if tr, err := New(KindWebSocket, Options{URL: "wss://example.com/ws"}); err != nil || tr.Name() != KindWebSocket {
		t.Errorf("New(websocket) = %v, %v", tr, err)
	}
}
