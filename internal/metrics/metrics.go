// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SendsTotal counts outbox send attempts by result (sent, failed).
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_sends_total",
			Help: "Outgoing messages handed to the transport, by result",
		},
		[]string{"result"},
	)

	// ReconcileTotal counts lifecycle reconciliations by outcome.
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_reconcile_total",
			Help: "Optimistic message reconciliations, by outcome",
		},
		[]string{"outcome"},
	)

	// FieldsExtracted counts fields filled by the extraction engine.
	FieldsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_fields_extracted_total",
			Help: "Structured fields extracted from chat text, by field and phase",
		},
		[]string{"field", "phase"},
	)

	// TemplateImports counts template import attempts by result (ok, invalid, error).
	TemplateImports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_template_imports_total",
			Help: "Extraction template imports, by result",
		},
		[]string{"result"},
	)

	// SyncPages counts fetched conversation pages by result.
	SyncPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_sync_pages_total",
			Help: "Conversation pages fetched by the sync engine, by result",
		},
		[]string{"result"},
	)

	// RPCDuration observes daemon RPC latency by method and status code.
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmchat_rpc_duration_seconds",
			Help:    "Daemon RPC duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "code"},
	)

	// ActiveStreams is the number of open Watch streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmchat_active_streams",
			Help: "Open server streams on the daemon socket",
		},
	)

	// BusDropped counts events a full subscriber missed, by subscribed namespace.
	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmchat_bus_dropped_total",
			Help: "Bus events dropped because the subscriber buffer was full",
		},
		[]string{"namespace"},
	)
)

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
