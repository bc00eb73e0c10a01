// Package metrics exposes Prometheus counters for moderation actions, audit
// deliveries and purged messages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/small-frappuccino/modcore/pkg/audit"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/transcript"
)

// Metrics holds the bot's counters.
type Metrics struct {
	Actions       *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	PurgeMessages *prometheus.CounterVec
}

var (
	_ moderation.Observer = (*Metrics)(nil)
	_ audit.Observer      = (*Metrics)(nil)
	_ transcript.Observer = (*Metrics)(nil)
)

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_actions_total",
			Help: "Moderation actions by kind and outcome (committed, rejected, failed)",
		}, []string{"kind", "outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_audit_deliveries_total",
			Help: "Audit channel publish attempts by outcome",
		}, []string{"outcome"}),
		PurgeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_purge_messages_total",
			Help: "Messages handled by bulk delete, by result",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (m *Metrics) ObserveAction(kind moderation.Kind, outcome string) {
	m.Actions.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) ObserveDelivery(outcome audit.Outcome) {
	m.Deliveries.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) ObservePurge(result string, n int) {
	if n < 0 {
		return
	}
	m.PurgeMessages.WithLabelValues(result).Add(float64(n))
}
