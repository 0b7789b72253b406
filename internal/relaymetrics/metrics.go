// Package relaymetrics exposes pipeline counters through Prometheus.
package relaymetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quailyquaily/kbrelay/internal/relay"
	"github.com/quailyquaily/kbrelay/kb"
)

const namespace = "kbrelay"

// Metrics implements relay.Observer. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	messages    *prometheus.CounterVec
	answers     *prometheus.CounterVec
	feedback    *prometheus.CounterVec
	apiLatency  prometheus.Histogram
	ledgerSize  prometheus.Gauge
	queuedTasks prometheus.Gauge
}

var _ relay.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages handled, by outcome.",
		}, []string{"outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_results_total",
			Help:      "Knowledge base calls, by result kind.",
		}, []string{"kind"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_actions_total",
			Help:      "Feedback control activations, by action.",
		}, []string{"action"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Knowledge base call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180, 300},
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feedback_ledger_entries",
			Help:      "Replies currently held in the feedback ledger.",
		}),
		queuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_tasks",
			Help:      "Messages waiting for a worker.",
		}),
	}
	m.registry.MustRegister(
		m.messages,
		m.answers,
		m.feedback,
		m.apiLatency,
		m.ledgerSize,
		m.queuedTasks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) MessageHandled(outcome relay.Outcome) {
	m.messages.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) AnswerReceived(res kb.Result, elapsed time.Duration) {
	m.answers.WithLabelValues(ResultKind(res)).Inc()
	m.apiLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) FeedbackAction(action string) {
	m.feedback.WithLabelValues(action).Inc()
}

func (m *Metrics) LedgerSize(n int) {
	m.ledgerSize.Set(float64(n))
}

func (m *Metrics) TaskQueued() {
	m.queuedTasks.Inc()
}

func (m *Metrics) TaskDequeued() {
	m.queuedTasks.Dec()
}

// ResultKind labels a result: "ok", "empty" or the failure kind.
func ResultKind(res kb.Result) string {
	switch {
	case !res.OK():
		return string(res.Failure.Kind)
	case res.Empty:
		return "empty"
	default:
		return "ok"
	}
}
