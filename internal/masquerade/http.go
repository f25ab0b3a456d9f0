// Package masquerade disguises transport payloads as ordinary search traffic:
// requests become form posts and responses become HTML result pages.
package masquerade

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// FormField carries the encoded payload in a masqueraded request body.
const FormField = "q"

// ErrNoPayload is returned when a body does not carry a masqueraded payload.
var ErrNoPayload = errors.New("masquerade: payload not found")

// BrowserHeaders are added to masqueraded requests unless already set.
var BrowserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// WrapRequestBody encodes data as an urlencoded form body.
func WrapRequestBody(data []byte) string {
	form := url.Values{}
	form.Set(FormField, base64.URLEncoding.EncodeToString(data))
	return form.Encode()
}

// NewRequest builds a POST to target that looks like a search form submission.
func NewRequest(target string, data []byte) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(WrapRequestBody(data)))
	if err != nil {
		return nil, err
	}
	for k, v := range BrowserHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if u, err := url.Parse(target); err == nil {
		origin := u.Scheme + "://" + u.Host
		req.Header.Set("Origin", origin)
		req.Header.Set("Referer", origin+"/")
	}
	return req, nil
}

const (
	startTag = `<div id="web" style="display:none;">`
	endTag   = `</div>`
)

// resultsPage is a minimal search results page with the payload hidden in a div.
const resultsPage = `<!DOCTYPE html><html lang="en"><head><title>Search Results</title></head><body>` + startTag + `%s` + endTag + `</body></html>`

// WrapResponseBody embeds data in a search results page.
func WrapResponseBody(data []byte) string {
	return fmt.Sprintf(resultsPage, base64.URLEncoding.EncodeToString(data))
}

// UnwrapResponseBody extracts the payload hidden in a results page.
func UnwrapResponseBody(body []byte) ([]byte, error) {
	page := string(body)
	start := strings.Index(page, startTag)
	if start == -1 {
		return nil, ErrNoPayload
	}
	start += len(startTag)
	end := strings.Index(page[start:], endTag)
	if end == -1 {
		return nil, ErrNoPayload
	}
	return base64.URLEncoding.DecodeString(page[start : start+end])
}
