package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ehsanking/elahe-messenger/internal/protocol"
)

const namespace = "messenger"

// Registry holds every agent metric; the status server exposes it on /metrics.
var Registry = prometheus.NewRegistry()

var (
	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "streams", Name: "active",
		Help: "Streams currently relaying.",
	})
	streamsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "streams", Name: "opened_total",
		Help: "Streams successfully connected.",
	})
	connectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "streams", Name: "connect_failures_total",
		Help: "Failed connect requests by reply code.",
	}, []string{"reason"})
	relayBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "relay", Name: "bytes_total",
		Help: "Bytes relayed; in = read from local sockets, out = written to them.",
	}, []string{"direction"})
	messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "protocol", Name: "messages_total",
		Help: "Protocol messages by direction and type.",
	}, []string{"direction", "type"})
	payloadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "transport", Name: "payload_errors_total",
		Help: "Inbound payloads dropped by cause.",
	}, []string{"cause"})
	transportSends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "transport", Name: "sends_total",
		Help: "Transport send cycles completed.",
	})
	lastCheckInGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "session", Name: "last_check_in_timestamp_seconds",
		Help: "Unix time of the last check-in received from the remote endpoint.",
	})
)

func init() {
	Registry.MustRegister(
		streamsActive, streamsOpened, connectFailures, relayBytes,
		messages, payloadErrors, transportSends, lastCheckInGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Mirrors of the counters above, read by the JSON status endpoint.
var (
	activeStreams    int64
	openedStreams    uint64
	failedConnects   uint64
	bytesIn          uint64
	bytesOut         uint64
	messagesSent     uint64
	messagesReceived uint64
	malformed        uint64
	decryptFailed    uint64
	lastCheckIn      int64 // Unix timestamp
)

// Stream functions
func AddStream() {
	atomic.AddInt64(&activeStreams, 1)
	atomic.AddUint64(&openedStreams, 1)
	streamsActive.Inc()
	streamsOpened.Inc()
}

func RemoveStream() {
	atomic.AddInt64(&activeStreams, -1)
	streamsActive.Dec()
}

func ConnectFailed(reason uint8) {
	atomic.AddUint64(&failedConnects, 1)
	connectFailures.WithLabelValues(protocol.ReplyText(reason)).Inc()
}

func AddBytesIn(n int) {
	atomic.AddUint64(&bytesIn, uint64(n))
	relayBytes.WithLabelValues("in").Add(float64(n))
}

func AddBytesOut(n int) {
	atomic.AddUint64(&bytesOut, uint64(n))
	relayBytes.WithLabelValues("out").Add(float64(n))
}

// Protocol functions
func MessageSent(t protocol.Type) {
	atomic.AddUint64(&messagesSent, 1)
	messages.WithLabelValues("sent", t.String()).Inc()
}

func MessageReceived(t protocol.Type) {
	atomic.AddUint64(&messagesReceived, 1)
	messages.WithLabelValues("received", t.String()).Inc()
}

func MalformedPayload() {
	atomic.AddUint64(&malformed, 1)
	payloadErrors.WithLabelValues("malformed").Inc()
}

func DecryptFailure() {
	atomic.AddUint64(&decryptFailed, 1)
	payloadErrors.WithLabelValues("decrypt").Inc()
}

func TransportSend() { transportSends.Inc() }

// Health functions
func SetLastCheckIn() {
	now := time.Now()
	atomic.StoreInt64(&lastCheckIn, now.Unix())
	lastCheckInGauge.Set(float64(now.Unix()))
}

func GetLastCheckIn() int64 { return atomic.LoadInt64(&lastCheckIn) }

// Status struct for JSON marshalling
type Status struct {
	ActiveStreams     int64  `json:"active_streams"`
	OpenedStreams     uint64 `json:"opened_streams"`
	ConnectFailures   uint64 `json:"connect_failures"`
	BytesIn           uint64 `json:"bytes_in"`
	BytesOut          uint64 `json:"bytes_out"`
	MessagesSent      uint64 `json:"messages_sent"`
	MessagesReceived  uint64 `json:"messages_received"`
	MalformedPayloads uint64 `json:"malformed_payloads"`
	DecryptFailures   uint64 `json:"decrypt_failures"`
	LastCheckIn       int64  `json:"last_check_in"`
	ConnectionHealth  string `json:"connection_health"`
}

// GetStatus snapshots the counters. staleAfter is how long without a check-in
// the session is reported as disconnected.
func GetStatus(staleAfter time.Duration) Status {
	last := GetLastCheckIn()
	health := "Disconnected"
	if last != 0 && time.Since(time.Unix(last, 0)) <= staleAfter {
		health = "Connected"
	}
	return Status{
		ActiveStreams:     atomic.LoadInt64(&activeStreams),
		OpenedStreams:     atomic.LoadUint64(&openedStreams),
		ConnectFailures:   atomic.LoadUint64(&failedConnects),
		BytesIn:           atomic.LoadUint64(&bytesIn),
		BytesOut:          atomic.LoadUint64(&bytesOut),
		MessagesSent:      atomic.LoadUint64(&messagesSent),
		MessagesReceived:  atomic.LoadUint64(&messagesReceived),
		MalformedPayloads: atomic.LoadUint64(&malformed),
		DecryptFailures:   atomic.LoadUint64(&decryptFailed),
		LastCheckIn:       last,
		ConnectionHealth:  health,
	}
}
