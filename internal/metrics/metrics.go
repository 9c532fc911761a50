// Package metrics collects Prometheus metrics for the settlement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// Metrics holds the pipeline's Prometheus collectors behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	tradesValidated *prometheus.CounterVec
	tradesFlagged   prometheus.Counter
	tradesUnscored  prometheus.Counter

	obligationsEmitted prometheus.Counter
	pairsCancelled     prometheus.Counter

	settlementStates *prometheus.CounterVec

	grossVolume prometheus.Gauge
	netVolume   prometheus.Gauge
	batchesRun  prometheus.Counter
}

// New creates the metric set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		tradesValidated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "trades_validated_total",
			Help:      "Trades processed by the validator, by result.",
		}, []string{"result"}),
		tradesFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "trades_flagged_total",
			Help:      "Trades flagged as anomalous and excluded from netting.",
		}),
		tradesUnscored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "trades_unscored_total",
			Help:      "Trades flagged fail-safe because the scorer was unavailable.",
		}),
		obligationsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "obligations_emitted_total",
			Help:      "Net obligations produced by the netting engine.",
		}),
		pairsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "pairs_cancelled_total",
			Help:      "Counterparty pairs whose obligations cancelled out entirely.",
		}),
		settlementStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "settlement_outcomes_total",
			Help:      "Final settlement states reached, by state.",
		}, []string{"state"}),
		grossVolume: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "finclear",
			Name:      "batch_gross_volume",
			Help:      "Gross trade volume of the last completed batch.",
		}),
		netVolume: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "finclear",
			Name:      "batch_net_volume",
			Help:      "Net obligation volume of the last completed batch.",
		}),
		batchesRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "finclear",
			Name:      "batches_total",
			Help:      "Pipeline batches completed.",
		}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBatch records the counters for one completed batch report.
func (m *Metrics) ObserveBatch(report *types.BatchReport) {
	m.batchesRun.Inc()
	m.tradesValidated.WithLabelValues("accepted").Add(float64(report.AcceptedCount))
	m.tradesValidated.WithLabelValues("rejected").Add(float64(report.RejectedCount))
	m.tradesFlagged.Add(float64(report.FlaggedCount))
	m.tradesUnscored.Add(float64(len(report.UnscoredTradeIDs)))
	m.obligationsEmitted.Add(float64(len(report.Obligations)))
	m.pairsCancelled.Add(float64(len(report.CancelledPairs)))

	for state, count := range report.StateCounts {
		m.settlementStates.WithLabelValues(string(state)).Add(float64(count))
	}

	gross, _ := report.GrossVolume.Float64()
	net, _ := report.NetVolume.Float64()
	m.grossVolume.Set(gross)
	m.netVolume.Set(net)
}
