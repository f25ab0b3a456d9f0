package pump

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

// StreamHandler receives stream traffic. Implementations must not block on
// network I/O inside these calls.
type StreamHandler interface {
	HandleConnectRequest(ctx context.Context, req *protocol.ConnectRequest)
	HandleData(ctx context.Context, d *protocol.Data)
}

// CheckInObserver receives check-ins from the remote endpoint.
type CheckInObserver interface {
	ObserveCheckIn(c *protocol.CheckIn)
}

// Dispatcher routes decoded inbound messages.
type Dispatcher struct {
	streams StreamHandler
	session CheckInObserver
	log     zerolog.Logger
}

func NewDispatcher(streams StreamHandler, session CheckInObserver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		streams: streams,
		session: session,
		log:     log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch hands m to its owner and returns promptly.
func (d *Dispatcher) Dispatch(ctx context.Context, m protocol.Message) {
	stats.MessageReceived(m.Type())

	switch msg := m.(type) {
	case *protocol.ConnectRequest:
		d.streams.HandleConnectRequest(ctx, msg)
	case *protocol.Data:
		d.streams.HandleData(ctx, msg)
	case *protocol.CheckIn:
		d.session.ObserveCheckIn(msg)
	case *protocol.ConnectReply:
		d.log.Warn().Str("stream_id", msg.StreamID).Msg("Ignoring connect reply sent to the agent")
	default:
		d.log.Error().Str("type", m.Type().String()).Msg("No handler for message type")
	}
}
