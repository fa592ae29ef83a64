package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_http_requests_total", Help: "Inbound HTTP requests"},
		[]string{"endpoint", "status"},
	)
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_events_consumed_total", Help: "Broker deliveries by topic and outcome"},
		[]string{"topic", "result"},
	)
	GatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_telegram_calls_total", Help: "Telegram Bot API call outcomes"},
		[]string{"method", "result"},
	)
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "updatebot_telegram_call_latency_seconds", Help: "Telegram Bot API latency"},
		[]string{"method"},
	)
	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_interactions_total", Help: "User button presses by outcome"},
		[]string{"result"},
	)
	StatusEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_status_events_total", Help: "Update status events by outcome"},
		[]string{"result"},
	)
	Publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "updatebot_publish_total", Help: "update.requested publish results"},
		[]string{"result"},
	)
	LiveContexts = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "updatebot_live_contexts", Help: "Correlation records currently held"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, EventsConsumed, GatewayCalls, GatewayLatency, Interactions, StatusEvents, Publishes, LiveContexts)
}
