package session

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
)

func TestSessionStartsUnknown(t *testing.T) {
	s := New(zerolog.Nop())
	if id := s.ID(); id != "" {
		t.Errorf("ID() = %q before any check-in, want empty", id)
	}
	if c := s.CheckIn(); c.MessengerID != "" {
		t.Errorf("CheckIn() carries %q, want empty", c.MessengerID)
	}
}

func TestSessionFirstCheckInWins(t *testing.T) {
	s := New(zerolog.Nop())
	s.ObserveCheckIn(&protocol.CheckIn{})
	s.ObserveCheckIn(&protocol.CheckIn{MessengerID: "m-1"})
	s.ObserveCheckIn(&protocol.CheckIn{MessengerID: "m-2"})
	s.ObserveCheckIn(&protocol.CheckIn{})

	if id := s.ID(); id != "m-1" {
		t.Errorf("ID() = %q, want m-1", id)
	}
	if c := s.CheckIn(); c.MessengerID != "m-1" {
		t.Errorf("CheckIn() carries %q, want m-1", c.MessengerID)
	}
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := New(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ObserveCheckIn(&protocol.CheckIn{MessengerID: "same"})
		}()
		go func() {
			defer wg.Done()
			_ = s.CheckIn()
		}()
	}
	wg.Wait()
	if s.ID() != "same" {
		t.Errorf("ID() = %q, want same", s.ID())
	}
}
