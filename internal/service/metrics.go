package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	barsSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_persistence_bars_saved_total",
		Help: "Closed bars persisted to the database",
	})

	barSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_persistence_bar_save_failures_total",
		Help: "Bar persistence failures",
	})

	barsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_persistence_bars_dropped_total",
		Help: "Bars dropped because the save buffer was full",
	})

	tradesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_persistence_trades_saved_total",
		Help: "Closed trades persisted to the database",
	})

	tradeSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_persistence_trade_save_failures_total",
		Help: "Trade persistence failures and buffer drops",
	})
)
