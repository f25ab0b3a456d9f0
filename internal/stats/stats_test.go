package stats

import (
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
)

// counterValue sums every series of the named metric family whose labels
// include want.
func counterValue(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if !hasLabels(m, want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestStreamCounters(t *testing.T) {
	before := GetStatus(time.Minute)
	AddStream()
	AddStream()
	RemoveStream()
	ConnectFailed(protocol.ReplyConnectionRefused)

	after := GetStatus(time.Minute)
	if after.ActiveStreams-before.ActiveStreams != 1 {
		t.Errorf("active streams delta = %d, want 1", after.ActiveStreams-before.ActiveStreams)
	}
	if after.OpenedStreams-before.OpenedStreams != 2 {
		t.Errorf("opened streams delta = %d, want 2", after.OpenedStreams-before.OpenedStreams)
	}
	if got := counterValue(t, "messenger_streams_connect_failures_total", map[string]string{"reason": "connection refused"}); got < 1 {
		t.Errorf("connect failures by reason = %v, want at least 1", got)
	}
}

func TestMessageCounters(t *testing.T) {
	before := counterValue(t, "messenger_protocol_messages_total", map[string]string{"direction": "sent", "type": "data"})
	MessageSent(protocol.TypeData)
	MessageSent(protocol.TypeData)
	MessageReceived(protocol.TypeCheckIn)
	MalformedPayload()
	DecryptFailure()

	if got := counterValue(t, "messenger_protocol_messages_total", map[string]string{"direction": "sent", "type": "data"}); got-before != 2 {
		t.Errorf("sent data delta = %v, want 2", got-before)
	}
	if got := counterValue(t, "messenger_transport_payload_errors_total", map[string]string{"cause": "decrypt"}); got < 1 {
		t.Errorf("decrypt failures = %v", got)
	}
}

func TestConnectionHealth(t *testing.T) {
	SetLastCheckIn()
	if h := GetStatus(time.Minute).ConnectionHealth; h != "Connected" {
		t.Errorf("health right after check-in = %q, want Connected", h)
	}
	atomic.StoreInt64(&lastCheckIn, time.Now().Add(-time.Hour).Unix())
	if h := GetStatus(time.Minute).ConnectionHealth; h != "Disconnected" {
		t.Errorf("health after an hour of silence = %q, want Disconnected", h)
	}
}
