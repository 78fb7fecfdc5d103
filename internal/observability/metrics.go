package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger and its workers.
// All consumers treat a nil *Metrics as "metrics disabled", so unit tests
// can pass nil and avoid duplicate registration on the default registry.
type Metrics struct {
	// Ledger
	EventsApplied        *prometheus.CounterVec
	TradesApplied        prometheus.Counter
	DuplicateTrades      prometheus.Counter
	DividendsPaid        prometheus.Counter
	SplitsApplied        prometheus.Counter
	PositionsForceClosed prometheus.Counter
	PositionsPruned      prometheus.Counter
	TotalCash            prometheus.Gauge
	FrozenCash           prometheus.Gauge
	PositionCount        prometheus.Gauge

	// Ingestion
	IngestEvents      *prometheus.CounterVec
	IngestParseErrors prometheus.Counter

	// Recorder
	RecorderRowsWritten prometheus.Counter
	RecorderBatchSize   prometheus.Histogram
	RecorderErrors      prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registry.
// Call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "equity_ledger_events_applied_total",
			Help: "Lifecycle events handled by the account ledger",
		}, []string{"event_kind"}),

		TradesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_trades_applied_total",
			Help: "Trade executions applied to cash and positions",
		}),

		DuplicateTrades: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_duplicate_trades_total",
			Help: "Redelivered trade executions skipped by the dedup set",
		}),

		DividendsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_dividends_paid_total",
			Help: "Pending dividends credited to cash on their payable date",
		}),

		SplitsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_splits_applied_total",
			Help: "Stock splits applied to held positions",
		}),

		PositionsForceClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_positions_force_closed_total",
			Help: "Delisted positions force-closed at settlement",
		}),

		PositionsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ledger_positions_pruned_total",
			Help: "Zero-quantity positions removed at settlement",
		}),

		TotalCash: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "equity_ledger_total_cash",
			Help: "Current unrestricted cash balance",
		}),

		FrozenCash: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "equity_ledger_frozen_cash",
			Help: "Cash reserved against unfilled buy orders",
		}),

		PositionCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "equity_ledger_position_count",
			Help: "Number of held positions",
		}),

		IngestEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "equity_ingest_events_total",
			Help: "Events received from the live feed",
		}, []string{"event_kind"}),

		IngestParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_ingest_parse_errors_total",
			Help: "Live-feed payloads that failed to parse",
		}),

		RecorderRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_recorder_rows_written_total",
			Help: "Rows written to the audit recorder",
		}),

		RecorderBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "equity_recorder_batch_size",
			Help:    "Rows per recorder flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		RecorderErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equity_recorder_errors_total",
			Help: "Failed recorder flushes",
		}),
	}
}
