// Package forwarder binds stream identifiers to local TCP connections and
// relays bytes between them and the outbound message queue.
package forwarder

import (
	"context"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
	"github.com/ehsanking/elahe-messenger/internal/pump"
	"github.com/ehsanking/elahe-messenger/internal/resolver"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

const (
	DefaultBufferSize     = 4096
	DefaultConnectTimeout = 10 * time.Second
)

// State of a stream. Closed is terminal.
type State int32

const (
	Unopened State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// Enqueuer accepts outbound messages without blocking.
type Enqueuer interface {
	Enqueue(m protocol.Message)
}

// Options tune connects and relays. Zero values select defaults.
type Options struct {
	ConnectTimeout time.Duration
	BufferSize     int
	Resolver       resolver.Resolver
}

// Registry owns every stream and the goroutines serving them.
type Registry struct {
	out  Enqueuer
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	streams map[string]*stream
	closed  bool

	wg sync.WaitGroup
}

func NewRegistry(out Enqueuer, opts Options, log zerolog.Logger) *Registry {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.System{}
	}
	return &Registry{
		out:     out,
		opts:    opts,
		log:     log.With().Str("component", "forwarder").Logger(),
		streams: make(map[string]*stream),
	}
}

// HandleConnectRequest registers the stream and dials in the background.
// A request for an identifier that is still connecting or open is rejected
// with a general-failure reply; the existing stream is left untouched.
func (r *Registry) HandleConnectRequest(ctx context.Context, req *protocol.ConnectRequest) {
	log := r.log.With().Str("stream_id", req.StreamID).Str("target", req.TargetAddr()).Logger()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Debug().Msg("Rejecting connect request after shutdown")
		r.reject(req.StreamID, protocol.ReplyGeneralFailure)
		return
	}
	if _, exists := r.streams[req.StreamID]; exists {
		r.mu.Unlock()
		log.Warn().Msg("Rejecting connect request for a stream id already in use")
		r.reject(req.StreamID, protocol.ReplyGeneralFailure)
		return
	}
	dialCtx, cancel := context.WithCancel(ctx)
	s := newStream(req, cancel)
	r.streams[req.StreamID] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go r.connect(dialCtx, s, req, log)
}

// HandleData forwards a payload to its stream or, for an empty payload,
// tears the stream down without echoing an EOF back.
func (r *Registry) HandleData(_ context.Context, d *protocol.Data) {
	r.mu.Lock()
	s, ok := r.streams[d.StreamID]
	if ok && d.IsEOF() {
		delete(r.streams, d.StreamID)
	}
	r.mu.Unlock()

	if !ok {
		if d.IsEOF() {
			r.log.Debug().Str("stream_id", d.StreamID).Msg("EOF for a stream that is already closed")
		} else {
			r.log.Warn().Str("stream_id", d.StreamID).Int("bytes", len(d.Payload)).Msg("Dropping data for unknown stream")
		}
		return
	}

	if d.IsEOF() {
		s.remoteClosed.Store(true)
		if s.state.CompareAndSwap(int32(Connecting), int32(Closed)) {
			s.cancelDial()
			return
		}
		s.writes.Enqueue(nil)
		return
	}
	s.writes.Enqueue(d.Payload)
}

// Close tears down one stream, reporting whether it existed. A stream that
// is still connecting is answered with a general-failure reply.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.streams[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if r.shutdown(s) {
		r.log.Info().Str("stream_id", id).Msg("Connect aborted")
		r.reject(id, protocol.ReplyGeneralFailure)
	}
	return true
}

// CloseAll tears down every stream and refuses new ones. It does not wait
// for relays to finish; use Wait for that.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	streams := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	for _, s := range streams {
		r.shutdown(s)
	}
	if len(streams) > 0 {
		r.log.Info().Int("streams", len(streams)).Msg("Closed all streams")
	}
}

// Wait blocks until every goroutine started by the registry has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// StreamInfo describes a registered stream.
type StreamInfo struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	BindAddress string    `json:"bind_address,omitempty"`
	State       string    `json:"state"`
	StartTime   time.Time `json:"start_time"`
	BytesIn     uint64    `json:"bytes_in"`
	BytesOut    uint64    `json:"bytes_out"`
}

// Snapshot lists registered streams, oldest first.
func (r *Registry) Snapshot() []StreamInfo {
	r.mu.Lock()
	infos := make([]StreamInfo, 0, len(r.streams))
	for _, s := range r.streams {
		infos = append(infos, s.info())
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartTime.Equal(infos[j].StartTime) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartTime.Before(infos[j].StartTime)
	})
	return infos
}

func (r *Registry) reject(id string, reason uint8) {
	stats.ConnectFailed(reason)
	r.out.Enqueue(protocol.FailureReply(id, reason))
}

// remove deletes s from the map unless the id was reused by another stream.
func (r *Registry) remove(s *stream) {
	r.mu.Lock()
	if cur, ok := r.streams[s.id]; ok && cur == s {
		delete(r.streams, s.id)
	}
	r.mu.Unlock()
}

// shutdown reports whether it aborted a dial in progress.
func (r *Registry) shutdown(s *stream) bool {
	if s.state.CompareAndSwap(int32(Connecting), int32(Closed)) {
		s.cancelDial()
		r.remove(s)
		return true
	}
	s.closeConn()
	return false
}

type stream struct {
	id      string
	target  string
	started time.Time

	state        atomic.Int32
	remoteClosed atomic.Bool
	cancelDial   context.CancelFunc

	// writes holds payloads for the socket; a nil entry marks remote EOF.
	writes *pump.Queue[[]byte]
	done   chan struct{}
	finish sync.Once

	mu   sync.Mutex
	conn net.Conn
	bind string

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

func newStream(req *protocol.ConnectRequest, cancel context.CancelFunc) *stream {
	s := &stream{
		id:         req.StreamID,
		target:     req.TargetAddr(),
		started:    time.Now(),
		cancelDial: cancel,
		writes:     pump.NewQueue[[]byte](),
		done:       make(chan struct{}),
	}
	s.state.Store(int32(Connecting))
	return s
}

func (s *stream) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *stream) info() StreamInfo {
	s.mu.Lock()
	bind := s.bind
	s.mu.Unlock()
	return StreamInfo{
		ID:          s.id,
		Target:      s.target,
		BindAddress: bind,
		State:       State(s.state.Load()).String(),
		StartTime:   s.started,
		BytesIn:     s.bytesIn.Load(),
		BytesOut:    s.bytesOut.Load(),
	}
}
