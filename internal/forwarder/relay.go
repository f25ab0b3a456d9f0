package forwarder

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
	"github.com/ehsanking/elahe-messenger/internal/resolver"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

// connect dials the target and, once open, serves the stream until it ends.
func (r *Registry) connect(ctx context.Context, s *stream, req *protocol.ConnectRequest, log zerolog.Logger) {
	defer r.wg.Done()

	conn, err := r.dial(ctx, req)
	s.cancelDial()
	if err != nil {
		if !s.state.CompareAndSwap(int32(Connecting), int32(Closed)) {
			return
		}
		r.remove(s)
		reason := Classify(err)
		log.Warn().Err(err).Str("reason", protocol.ReplyText(reason)).Msg("Connect failed")
		r.reject(s.id, reason)
		return
	}

	local, _ := conn.LocalAddr().(*net.TCPAddr)
	if local == nil {
		local = &net.TCPAddr{IP: net.IPv4zero}
	}
	s.mu.Lock()
	s.conn = conn
	s.bind = local.String()
	s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		log.Debug().Msg("Stream closed while connecting")
		conn.Close()
		return
	}

	stats.AddStream()
	log.Info().Str("bind", s.bind).Msg("Stream opened")
	r.out.Enqueue(protocol.SuccessReply(s.id, local))

	r.wg.Add(1)
	go r.writeLoop(s, conn, log)
	r.readLoop(s, conn, log)
}

func (r *Registry) dial(ctx context.Context, req *protocol.ConnectRequest) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	ips, err := r.opts.Resolver.LookupIP(ctx, req.Host)
	if err != nil {
		return nil, err
	}
	ip := resolver.Pick(ips)
	if ip == nil {
		return nil, ErrNoAddress
	}

	var d net.Dialer
	return d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(int(req.Port))))
}

// readLoop turns socket reads into Data messages until the socket ends.
func (r *Registry) readLoop(s *stream, conn net.Conn, log zerolog.Logger) {
	buf := make([]byte, r.opts.BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 && !s.remoteClosed.Load() {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			s.bytesIn.Add(uint64(n))
			stats.AddBytesIn(n)
			r.out.Enqueue(&protocol.Data{StreamID: s.id, Payload: payload})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("Stream read ended")
			}
			break
		}
	}
	r.finish(s, log)
}

// writeLoop writes queued payloads in arrival order. A nil payload means the
// remote end closed the stream; everything queued before it is written first.
func (r *Registry) writeLoop(s *stream, conn net.Conn, log zerolog.Logger) {
	defer r.wg.Done()
	for {
		select {
		case <-s.writes.Ready():
		case <-s.done:
			return
		}
		for _, p := range s.writes.DrainAll() {
			if p == nil {
				conn.Close()
				return
			}
			if _, err := conn.Write(p); err != nil {
				log.Debug().Err(err).Msg("Stream write failed")
				conn.Close()
				return
			}
			s.bytesOut.Add(uint64(len(p)))
			stats.AddBytesOut(len(p))
		}
	}
}

// finish runs once per opened stream. Unless the remote end started the
// teardown, it tells the remote end with an empty Data message.
func (r *Registry) finish(s *stream, log zerolog.Logger) {
	s.finish.Do(func() {
		r.remove(s)
		s.state.Store(int32(Closed))
		if !s.remoteClosed.Load() {
			r.out.Enqueue(&protocol.Data{StreamID: s.id, Payload: []byte{}})
		}
		s.closeConn()
		close(s.done)
		stats.RemoveStream()
		log.Info().
			Uint64("bytes_in", s.bytesIn.Load()).
			Uint64("bytes_out", s.bytesOut.Load()).
			Bool("remote_closed", s.remoteClosed.Load()).
			Msg("Stream closed")
	})
}
