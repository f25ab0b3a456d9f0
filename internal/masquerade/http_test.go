package masquerade

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
)

// readForm decodes a masqueraded request body the way the remote endpoint does.
func readForm(body []byte) ([]byte, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	if _, ok := form[FormField]; !ok {
		return nil, ErrNoPayload
	}
	return base64.URLEncoding.DecodeString(form.Get(FormField))
}

func TestRequestRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff, 'h', 'i'}
	req, err := NewRequest("https://example.com/search", payload)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get("Origin"); got != "https://example.com" {
		t.Errorf("Origin = %q", got)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	got, err := readForm(body)
	if err != nil {
		t.Fatalf("decoding form: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %v, want %v", got, payload)
	}
}

func TestEmptyRequestPayload(t *testing.T) {
	got, err := readForm([]byte(WrapRequestBody(nil)))
	if err != nil || len(got) != 0 {
		t.Errorf("empty payload decoded as %v, %v", got, err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("payload"), 100)
	page := WrapResponseBody(payload)
	if !bytes.HasPrefix([]byte(page), []byte("<!DOCTYPE html>")) {
		t.Errorf("page does not look like HTML: %.40q", page)
	}
	got, err := UnwrapResponseBody([]byte(page))
	if err != nil {
		t.Fatalf("UnwrapResponseBody failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
}

func TestUnwrapResponseMissingTags(t *testing.T) {
	for _, body := range []string{"<html></html>", `<div id="web" style="display:none;">abc`} {
		if _, err := UnwrapResponseBody([]byte(body)); !errors.Is(err, ErrNoPayload) {
			t.Errorf("UnwrapResponseBody(%q) err = %v, want ErrNoPayload", body, err)
		}
	}
}
