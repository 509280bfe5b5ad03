package metrics

import (
	"testing"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSettlementMetricsRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSettlementMetrics(registry)

	m.LedgerClosed(entities.SelectionModeWeightedLottery)
	m.LedgerClosed(entities.SelectionModeWeightedLottery)
	m.LedgerClosed(entities.SelectionModeDeterministic)
	m.LedgerSettled(entities.SettlementStatusResolved)
	m.RandomnessRequested()
	m.RandomnessRetried()
	m.SetStalled(3)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ledgersClosed.WithLabelValues("weighted_lottery")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ledgersClosed.WithLabelValues("deterministic")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ledgersSettled.WithLabelValues("resolved")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.randomnessRequested))
	require.Equal(t, 1.0, testutil.ToFloat64(m.randomnessRetried))
	require.Equal(t, 3.0, testutil.ToFloat64(m.stalledLedgers))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}

func TestSettlementMetricsRejectDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewSettlementMetrics(registry)
	require.Panics(t, func() { NewSettlementMetrics(registry) })
}
