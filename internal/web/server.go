// Package web serves the agent's local status endpoints.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/forwarder"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

// Streams is the view of the forwarder registry the server needs.
type Streams interface {
	Snapshot() []forwarder.StreamInfo
	Close(id string) bool
}

type Server struct {
	streams    Streams
	staleAfter time.Duration
	log        zerolog.Logger
	http       *http.Server
}

// NewServer builds a status server on addr. staleAfter is how long without
// a check-in before the session is reported as disconnected.
func NewServer(addr string, streams Streams, staleAfter time.Duration, log zerolog.Logger) *Server {
	s := &Server{
		streams:    streams,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "web").Logger(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	limiter := NewIPRateLimiter(5, 10)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.DashboardHandler)
	mux.HandleFunc("/status", s.StatusHandler)
	mux.HandleFunc("/streams", s.StreamsHandler)
	mux.Handle("/streams/kill", limiter.Limit(http.HandlerFunc(s.KillHandler)))
	mux.Handle("/metrics", promhttp.HandlerFor(stats.Registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on the configured address and blocks until Shutdown.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
