// Package metrics provides Prometheus instrumentation for devtoken.
// Collectors live on a dedicated registry so the CLI can write them to a
// node_exporter textfile and the stub backend can serve them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokensMinted counts successfully signed tokens.
	TokensMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devtoken_tokens_minted_total",
			Help: "Total tokens signed",
		},
	)

	// MintFailures counts signing errors.
	MintFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devtoken_mint_failures_total",
			Help: "Total token signing failures",
		},
	)

	// Verifications counts token verifications by result ("valid", "invalid").
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtoken_verifications_total",
			Help: "Total token verifications",
		},
		[]string{"result"},
	)

	// AuthFailures counts stub backend authentication failures by reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devtoken_auth_failures_total",
			Help: "Total stub backend authentication failures",
		},
		[]string{"reason"},
	)

	// StubPanics counts stub backend handler panics turned into 500s.
	StubPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devtoken_stub_panics_total",
			Help: "Total stub backend handler panics recovered",
		},
	)

	// RequestDuration observes stub backend latency in seconds by path and status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devtoken_stub_request_duration_seconds",
			Help:    "Stub backend request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)
)

// Registry holds every devtoken collector.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		TokensMinted,
		MintFailures,
		Verifications,
		AuthFailures,
		StubPanics,
		RequestDuration,
	)
}

// Handler returns an http.Handler that serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the text exposition format,
// atomically, for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
