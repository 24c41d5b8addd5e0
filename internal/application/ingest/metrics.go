package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
)

// Item outcome label values.
const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
	outcomeDropped   = "dropped"
)

// Metrics holds ingest counters. A nil *Metrics records nothing.
type Metrics struct {
	envelopes     *prometheus.CounterVec
	items         *prometheus.CounterVec
	groupsCreated prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errorhub",
			Subsystem: "ingest",
			Name:      "envelopes_total",
			Help:      "Decoded envelopes by whether at least one item was processed.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errorhub",
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Envelope items by type and outcome.",
		}, []string{"type", "outcome"}),
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "errorhub",
			Subsystem: "ingest",
			Name:      "groups_created_total",
			Help:      "Error groups created by a first occurrence.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.envelopes, m.items, m.groupsCreated} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// typeLabel keeps label cardinality bounded for arbitrary unknown types.
func typeLabel(t envelope.ItemType) string {
	if t.Kind == envelope.KindUnknown {
		return "unknown"
	}
	return t.Name
}

func (m *Metrics) recordItem(t envelope.ItemType, outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(typeLabel(t), outcome).Inc()
}

func (m *Metrics) recordEnvelope(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "empty"
	}
	m.envelopes.WithLabelValues(result).Inc()
}

func (m *Metrics) recordGroupCreated() {
	if m == nil {
		return
	}
	m.groupsCreated.Inc()
}
