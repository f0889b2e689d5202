// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ourtube"

var (
	// TracksQueued counts accepted enqueue requests.
	TracksQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_queued_total",
		Help:      "Number of tracks appended to personal queues.",
	})

	// TracksEnded counts track ends by reason.
	TracksEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_ended_total",
		Help:      "Number of tracks that stopped playing, by end reason.",
	}, []string{"reason"})

	// RequestsRejected counts enqueue requests rejected by a filter or resolver.
	RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_rejected_total",
		Help:      "Number of rejected enqueue requests, by result code.",
	}, []string{"code"})

	// PipelineExits counts subprocess exits by stage and classification.
	PipelineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "exits_total",
		Help:      "Number of pipeline subprocess exits, by stage and result.",
	}, []string{"stage", "result"})

	// PipelineStalls counts watchdog firings.
	PipelineStalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stalls_total",
		Help:      "Number of pipelines closed by the stall watchdog.",
	})

	// PipelineSessions tracks running fetch/transcode sessions.
	PipelineSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "sessions",
		Help:      "Number of pipeline sessions with live subprocesses.",
	})

	// FramesDelivered counts audio frames written to sinks.
	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_delivered_total",
		Help:      "Number of audio frames handed to the outbound transport.",
	})

	// OpenTenants tracks open tenant sessions.
	OpenTenants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_tenants",
		Help:      "Number of open tenants.",
	})

	// AuditActions counts audited actions by state.
	AuditActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_actions_total",
		Help:      "Number of audited user actions, by state.",
	}, []string{"state"})

	// ResolverLookups counts metadata lookups by resolver and result.
	ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "lookups_total",
		Help:      "Number of track lookups, by resolver and result.",
	}, []string{"resolver", "result"})

	// RemoteSubscribers tracks connected notification streams.
	RemoteSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "remote_subscribers",
		Help:      "Number of connected event stream subscribers.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
