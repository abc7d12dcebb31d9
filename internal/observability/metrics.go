package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	PushMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashfeed_push_messages_total", Help: "Decoded push messages by type"},
		[]string{"type"},
	)
	PushMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dashfeed_push_malformed_total", Help: "Push frames dropped as malformed"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashfeed_reconnects_total", Help: "Push connection reconnect outcomes"},
		[]string{"result"},
	)
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dashfeed_connection_state", Help: "Push connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)"},
	)
	APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashfeed_api_calls_total", Help: "Backend API call outcomes"},
		[]string{"op", "result"},
	)
	APILatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dashfeed_api_latency_seconds", Help: "Backend API call latency"},
	)
	Exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashfeed_export_total", Help: "Push-event export results"},
		[]string{"result"},
	)
	LocalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashfeed_local_requests_total", Help: "Local HTTP surface requests"},
		[]string{"endpoint", "status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(PushMessages, PushMalformed, Reconnects, ConnectionState, APICalls, APILatency, Exports, LocalRequests)
}
