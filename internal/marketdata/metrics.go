package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики хаба рыночных данных.
// Регистрируются на пакетном уровне: хаб может создаваться
// многократно (тесты), метрики регистрируются один раз.
var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patterntrader_marketdata_ticks_total",
		Help: "Processed ticks by symbol",
	}, []string{"symbol"})

	ticksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_marketdata_ticks_dropped_total",
		Help: "Ticks dropped due to invalid price or size",
	})

	barsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patterntrader_marketdata_bars_closed_total",
		Help: "Closed bars by timeframe",
	}, []string{"timeframe"})

	dayRolloversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_marketdata_day_rollovers_total",
		Help: "Per-symbol trading day rollovers",
	})

	historicalBarsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patterntrader_marketdata_historical_bars_loaded_total",
		Help: "Historical bars loaded through the silent path",
	})
)
