package metrics

import (
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SettlementMetrics exports settlement progress to Prometheus.
type SettlementMetrics struct {
	ledgersClosed       *prometheus.CounterVec
	ledgersSettled      *prometheus.CounterVec
	randomnessRequested prometheus.Counter
	randomnessRetried   prometheus.Counter
	stalledLedgers      prometheus.Gauge
}

// NewSettlementMetrics registers the collectors with registry. A nil
// registry falls back to the default registerer.
func NewSettlementMetrics(registry prometheus.Registerer) *SettlementMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &SettlementMetrics{
		ledgersClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_ledgers_closed_total",
			Help: "Total number of ledgers closed after their deadline",
		}, []string{"mode"}),
		ledgersSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_ledgers_settled_total",
			Help: "Total number of ledger settlements by outcome",
		}, []string{"settlement"}),
		randomnessRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_randomness_requests_total",
			Help: "Total number of randomness requests issued",
		}),
		randomnessRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_randomness_retries_total",
			Help: "Total number of randomness requests reissued after a timeout or by an operator",
		}),
		stalledLedgers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ballotbox_randomness_stalled_ledgers",
			Help: "Number of weighted ledgers waiting for an operator after randomness attempts ran out",
		}),
	}
}

func (m *SettlementMetrics) LedgerClosed(mode entities.SelectionMode) {
	m.ledgersClosed.WithLabelValues(string(mode)).Inc()
}

func (m *SettlementMetrics) LedgerSettled(status entities.SettlementStatus) {
	m.ledgersSettled.WithLabelValues(string(status)).Inc()
}

func (m *SettlementMetrics) RandomnessRequested() {
	m.randomnessRequested.Inc()
}

func (m *SettlementMetrics) RandomnessRetried() {
	m.randomnessRetried.Inc()
}

func (m *SettlementMetrics) SetStalled(count int) {
	m.stalledLedgers.Set(float64(count))
}

var _ ports.SettlementMetrics = (*SettlementMetrics)(nil)
