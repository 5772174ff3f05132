package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tradesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_trades_opened_total",
		Help: "Total positions opened",
	})

	tradesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patterntrader_engine_trades_closed_total",
		Help: "Total positions closed by exit reason",
	}, []string{"reason"})

	openPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patterntrader_engine_open_positions",
		Help: "Currently open positions",
	})

	dailyRealizedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patterntrader_engine_daily_realized_pnl",
		Help: "Realized P&L for the current trading day",
	})

	circuitBreakerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patterntrader_engine_circuit_breaker_open",
		Help: "Circuit breaker state (1=open)",
	})

	orderFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_order_failures_total",
		Help: "Total failed order placements",
	})

	orderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "patterntrader_engine_order_latency_seconds",
		Help:    "Order placement round-trip latency",
		Buckets: prometheus.DefBuckets,
	})

	invalidSetupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_invalid_setups_total",
		Help: "Setups dropped by validation",
	})

	abstainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_direction_abstains_total",
		Help: "Entries abstained on direction disagreement",
	})

	relocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_relocations_total",
		Help: "Positions preempted by stronger setups",
	})

	forcedExitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_forced_exits_total",
		Help: "Positions closed by the end-of-day cutoff",
	})

	trailingMovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_trailing_moves_total",
		Help: "Trailing stop adjustments",
	})

	riskPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_risk_pauses_total",
		Help: "Risk pause notifications (daily loss / drawdown)",
	})

	eventPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_engine_event_panics_total",
		Help: "Panics recovered at the event handler boundary",
	})
)
