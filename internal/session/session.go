// Package session tracks the messenger identifier assigned by the remote endpoint.
package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

type Session struct {
	mu  sync.RWMutex
	id  string
	log zerolog.Logger
}

func New(log zerolog.Logger) *Session {
	return &Session{log: log.With().Str("component", "session").Logger()}
}

// ID returns the messenger identifier, or "" before the first check-in.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// ObserveCheckIn records the identifier from the first nonempty check-in.
// The identifier never changes afterwards.
func (s *Session) ObserveCheckIn(c *protocol.CheckIn) {
	stats.SetLastCheckIn()
	if c.MessengerID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.id {
	case "":
		s.id = c.MessengerID
		s.log.Info().Str("messenger_id", s.id).Msg("Session established")
	case c.MessengerID:
	default:
		s.log.Warn().
			Str("messenger_id", s.id).
			Str("received", c.MessengerID).
			Msg("Ignoring check-in with a different messenger id")
	}
}

// CheckIn builds the outbound heartbeat for this session.
func (s *Session) CheckIn() *protocol.CheckIn {
	return &protocol.CheckIn{MessengerID: s.ID()}
}
