package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	messagesSentTotal       *prometheus.CounterVec
	reactionsToggledTotal   *prometheus.CounterVec
	feedEventsPublished     *prometheus.CounterVec
	feedEventsConsumed      *prometheus.CounterVec
	syncReconnectsTotal     prometheus.Counter
	syncSubscriptionsActive prometheus.Gauge
	wsClientsActive         prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestLatency      *prometheus.HistogramVec
	httpRequestErrors       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the messaging core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of messages accepted by the conversation service.",
		}, []string{"kind"})

		reactionsToggledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reactions_toggled_total",
			Help: "Total number of reaction toggles, labelled by resulting state.",
		}, []string{"applied"})

		feedEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_published_total",
			Help: "Change-feed events published after store writes.",
		}, []string{"entity", "operation"})

		feedEventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_consumed_total",
			Help: "Change-feed events consumed by sync subscriptions.",
		}, []string{"entity"})

		syncReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_reconnects_total",
			Help: "Reconnect attempts made by sync subscriptions.",
		})

		syncSubscriptionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_subscriptions_active",
			Help: "Currently running sync subscriptions.",
		})

		wsClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients_active",
			Help: "Currently connected websocket sync clients.",
		})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, labelled by method, route and status.",
		}, []string{"method", "route", "status"})

		httpRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		httpRequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "HTTP requests that finished with a 4xx or 5xx status.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			messagesSentTotal,
			reactionsToggledTotal,
			feedEventsPublished,
			feedEventsConsumed,
			syncReconnectsTotal,
			syncSubscriptionsActive,
			wsClientsActive,
			httpRequestsTotal,
			httpRequestLatency,
			httpRequestErrors,
		)
	})
}

// MessagesSent exposes the counter for accepted messages.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// ReactionsToggled exposes the counter for reaction toggles.
func ReactionsToggled() *prometheus.CounterVec {
	RegisterMetrics()
	return reactionsToggledTotal
}

// FeedEventsPublished exposes the counter for published feed events.
func FeedEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return feedEventsPublished
}

// FeedEventsConsumed exposes the counter for consumed feed events.
func FeedEventsConsumed() *prometheus.CounterVec {
	RegisterMetrics()
	return feedEventsConsumed
}

// SyncReconnects exposes the reconnect attempt counter.
func SyncReconnects() prometheus.Counter {
	RegisterMetrics()
	return syncReconnectsTotal
}

// SyncSubscriptionsActive exposes the active subscription gauge.
func SyncSubscriptionsActive() prometheus.Gauge {
	RegisterMetrics()
	return syncSubscriptionsActive
}

// WSClientsActive exposes the active websocket client gauge.
func WSClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return wsClientsActive
}

// HTTPRequests exposes the served-request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpRequestLatency
}

// HTTPErrors exposes the failed-request counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestErrors
}
