// Package tunnel runs one messenger session: it connects the transport and
// pumps message batches in both directions until the transport fails.
package tunnel

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ehsanking/elahe-messenger/internal/crypto"
	"github.com/ehsanking/elahe-messenger/internal/forwarder"
	"github.com/ehsanking/elahe-messenger/internal/protocol"
	"github.com/ehsanking/elahe-messenger/internal/pump"
	"github.com/ehsanking/elahe-messenger/internal/session"
	"github.com/ehsanking/elahe-messenger/internal/stats"
	"github.com/ehsanking/elahe-messenger/internal/transport"
)

const (
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultSendRate          = 50
	DefaultSendBurst         = 10
)

var errEndOfStream = errors.New("transport closed by remote endpoint")

// Options tune a Client. Zero values select defaults.
type Options struct {
	// Interval is the longest the send pump waits before sending a batch
	// even when the queue is empty.
	Interval  time.Duration
	SendRate  rate.Limit
	SendBurst int
	Forwarder forwarder.Options
}

// IntervalFor returns the default send interval for a transport kind.
func IntervalFor(kind string) time.Duration {
	if kind == transport.KindWebSocket {
		return DefaultHeartbeatInterval
	}
	return DefaultPollInterval
}

type Client struct {
	transport  transport.Transport
	queue      *pump.Queue[protocol.Message]
	session    *session.Session
	registry   *forwarder.Registry
	dispatcher *pump.Dispatcher
	interval   time.Duration
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewClient(tr transport.Transport, opts Options, log zerolog.Logger) *Client {
	if opts.Interval <= 0 {
		opts.Interval = IntervalFor(tr.Name())
	}
	if opts.SendRate <= 0 {
		opts.SendRate = DefaultSendRate
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = DefaultSendBurst
	}

	queue := pump.NewQueue[protocol.Message]()
	sess := session.New(log)
	registry := forwarder.NewRegistry(queue, opts.Forwarder, log)
	return &Client{
		transport:  tr,
		queue:      queue,
		session:    sess,
		registry:   registry,
		dispatcher: pump.NewDispatcher(registry, sess, log),
		interval:   opts.Interval,
		limiter:    rate.NewLimiter(opts.SendRate, opts.SendBurst),
		log:        log.With().Str("component", "tunnel").Str("transport", tr.Name()).Logger(),
	}
}

func (c *Client) Registry() *forwarder.Registry { return c.registry }

func (c *Client) Session() *session.Session { return c.session }

// Run connects the transport and serves the session until the transport
// fails, the remote end closes it, or ctx is cancelled. Every stream is torn
// down before Run returns. The error is nil unless the transport failed.
func (c *Client) Run(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.log.Info().Dur("interval", c.interval).Msg("Transport connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.sendLoop(gctx) })
	g.Go(func() error { return c.receiveLoop(gctx) })
	err := g.Wait()

	c.registry.CloseAll()
	c.transport.Close()

	switch {
	case errors.Is(err, errEndOfStream):
		c.log.Info().Msg("Transport closed by remote endpoint")
		return nil
	case ctx.Err() != nil:
		c.log.Info().Msg("Session cancelled")
		return nil
	case err != nil:
		c.log.Error().Err(err).Msg("Session ended")
		return err
	}
	return nil
}

func (c *Client) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if err := c.flush(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.queue.Ready():
		case <-ticker.C:
		}
	}
}

// flush sends one batch: a check-in followed by everything queued.
func (c *Client) flush(ctx context.Context) error {
	batch := append([]protocol.Message{c.session.CheckIn()}, c.queue.DrainAll()...)

	var buf []byte
	sent := make([]protocol.Type, 0, len(batch))
	for _, m := range batch {
		var err error
		buf, err = protocol.AppendEncode(buf, m)
		if err != nil {
			c.log.Error().Err(err).Str("type", m.Type().String()).Msg("Dropping message that cannot be encoded")
			continue
		}
		sent = append(sent, m.Type())
	}

	if err := c.transport.Send(ctx, buf); err != nil {
		return err
	}
	stats.TransportSend()
	for _, t := range sent {
		stats.MessageSent(t)
	}
	return nil
}

func (c *Client) receiveLoop(ctx context.Context) error {
	for {
		payload, err := c.transport.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, crypto.ErrDecrypt):
				stats.DecryptFailure()
				c.log.Warn().Err(err).Msg("Dropping payload that failed to decrypt")
				continue
			case errors.Is(err, io.EOF):
				return errEndOfStream
			default:
				return err
			}
		}

		msgs, err := protocol.DecodeAll(payload)
		if err != nil {
			stats.MalformedPayload()
			c.log.Warn().Err(err).Int("bytes", len(payload)).Msg("Discarding malformed payload")
			continue
		}
		for _, m := range msgs {
			c.dispatcher.Dispatch(ctx, m)
		}
	}
}
