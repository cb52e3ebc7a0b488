// Package metrics exposes Prometheus counters for catalog loads, conversations,
// submissions and outbound sends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	catalogLoads   *prometheus.CounterVec
	catalogForms   prometheus.Gauge
	catalogSkipped prometheus.Gauge
	catalogEmpty   prometheus.Counter

	conversationsStarted *prometheus.CounterVec
	answersRecorded      *prometheus.CounterVec
	submissions          *prometheus.CounterVec

	inbound *prometheus.CounterVec
	sends   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		catalogLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_catalog_loads_total",
			Help: "Form catalog load attempts by outcome",
		}, []string{"outcome"}), // outcome=success|failure
		catalogForms: f.NewGauge(prometheus.GaugeOpts{
			Name: "formrelay_catalog_forms",
			Help: "Usable forms after the last successful load",
		}),
		catalogSkipped: f.NewGauge(prometheus.GaugeOpts{
			Name: "formrelay_catalog_skipped_forms",
			Help: "Records dropped by the last successful load",
		}),
		catalogEmpty: f.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_catalog_empty_total",
			Help: "Conversation starts refused because no form was available",
		}),

		conversationsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_conversations_started_total",
			Help: "Conversations started per form",
		}, []string{"form"}),
		answersRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_answers_recorded_total",
			Help: "Answers recorded per form",
		}, []string{"form"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_submissions_total",
			Help: "Completed answer sets posted per form by outcome",
		}, []string{"form", "outcome"}),

		inbound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_inbound_events_total",
			Help: "Inbound user events by transport and kind",
		}, []string{"transport", "kind"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_outbound_sends_total",
			Help: "Outbound platform calls by action and result",
		}, []string{"action", "result"}), // result=ok|timeout|dial|dns|tls|http_4xx|http_5xx|unknown
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CatalogLoaded records a successful catalog load.
func (m *Metrics) CatalogLoaded(forms, skipped int) {
	m.catalogLoads.WithLabelValues("success").Inc()
	m.catalogForms.Set(float64(forms))
	m.catalogSkipped.Set(float64(skipped))
}

// CatalogLoadFailed records a failed catalog load.
func (m *Metrics) CatalogLoadFailed(error) {
	m.catalogLoads.WithLabelValues("failure").Inc()
}

func (m *Metrics) ConversationStarted(formID string) {
	m.conversationsStarted.WithLabelValues(formID).Inc()
}

func (m *Metrics) AnswerRecorded(formID string) {
	m.answersRecorded.WithLabelValues(formID).Inc()
}

func (m *Metrics) SubmissionSucceeded(formID string) {
	m.submissions.WithLabelValues(formID, "success").Inc()
}

func (m *Metrics) SubmissionFailed(formID string, _ error) {
	m.submissions.WithLabelValues(formID, "failure").Inc()
}

func (m *Metrics) CatalogEmpty() {
	m.catalogEmpty.Inc()
}

// InboundEvent counts one user event accepted by a transport.
func (m *Metrics) InboundEvent(transport, kind string) {
	m.inbound.WithLabelValues(transport, kind).Inc()
}

// SendFinished counts one finished outbound job.
func (m *Metrics) SendFinished(action, result string) {
	m.sends.WithLabelValues(action, result).Inc()
}
