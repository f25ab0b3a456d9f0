package transport

import (
	"net/http"
)

// serialTransport limits the number of round trips in flight so that polls
// reach the remote endpoint in the order they were sent.
type serialTransport struct {
	Transport http.RoundTripper
	slots     chan struct{}
}

func newSerialTransport(t http.RoundTripper, maxInFlight int) *serialTransport {
	if t == nil {
		t = http.DefaultTransport
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &serialTransport{
		Transport: t,
		slots:     make(chan struct{}, maxInFlight),
	}
}

func (st *serialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case st.slots <- struct{}{}:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	defer func() { <-st.slots }()

	return st.Transport.RoundTrip(req)
}
