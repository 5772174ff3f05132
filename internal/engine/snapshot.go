package engine

import (
	"sort"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// snapshot.go - снимки для наружного слоя (API, UI hub)
//
// Наружу отдаются только копии: позиции, ордера, производительность.
// Внутренние ошибки через снимки не протекают.

// PerformanceSnapshot - сводка торговой производительности
type PerformanceSnapshot struct {
	Equity         float64   `json:"equity"`
	DailyRealized  float64   `json:"daily_realized"`
	TotalRealized  float64   `json:"total_realized"`
	PeakEquity     float64   `json:"peak_equity"`
	TotalReturnPct float64   `json:"total_return_pct"`
	DrawdownPct    float64   `json:"drawdown_pct"`
	OpenPositions  int       `json:"open_positions"`
	ClosedTrades   int       `json:"closed_trades"`
	WinningTrades  int       `json:"winning_trades"`
	RiskPaused     bool      `json:"risk_paused"`
	PauseReason    string    `json:"pause_reason,omitempty"`
	BreakerOpen    bool      `json:"breaker_open"`
	BreakerUntil   time.Time `json:"breaker_until,omitempty"`
	TradingDay     string    `json:"trading_day"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Positions возвращает копии открытых позиций, отсортированные по символу
func (e *Engine) Positions() []models.OpenPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.OpenPosition, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// Position возвращает копию позиции пары, если она открыта
func (e *Engine) Position(strategy, symbol string) (models.OpenPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[posKey(strategy, symbol)]
	if !ok {
		return models.OpenPosition{}, false
	}
	return *pos, true
}

// PendingOrders возвращает копии ожидающих ордеров
func (e *Engine) PendingOrders() []models.OrderStatusInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.OrderStatusInfo, 0, len(e.pendingOrders))
	for _, o := range e.pendingOrders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// OrderHistory возвращает копию истории терминальных ордеров
func (e *Engine) OrderHistory() []models.OrderStatusInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.OrderStatusInfo(nil), e.orderHistory...)
}

// ClosedTrades возвращает копию истории закрытых сделок
func (e *Engine) ClosedTrades() []models.ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ClosedTrade(nil), e.closedTrades...)
}

// Performance строит сводку производительности
func (e *Engine) Performance() PerformanceSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	equity := e.cfg.AccountValue + e.totalRealized
	dd := 0.0
	if e.peakEquity > 0 {
		dd = (e.peakEquity - equity) / e.peakEquity
	}
	wins := 0
	for _, t := range e.closedTrades {
		if t.Pnl > 0 {
			wins++
		}
	}
	reason, paused := e.riskPausedLocked()

	return PerformanceSnapshot{
		Equity:         equity,
		DailyRealized:  e.dailyRealized,
		TotalRealized:  e.totalRealized,
		PeakEquity:     e.peakEquity,
		TotalReturnPct: utils.PercentChange(e.cfg.AccountValue, equity),
		DrawdownPct:    dd,
		OpenPositions:  len(e.positions),
		ClosedTrades:   len(e.closedTrades),
		WinningTrades:  wins,
		RiskPaused:     paused,
		PauseReason:    reason,
		BreakerOpen:    !e.breakerOpenUntil.IsZero() && time.Now().Before(e.breakerOpenUntil),
		BreakerUntil:   e.breakerOpenUntil,
		TradingDay:     e.dailyDay,
		GeneratedAt:    time.Now(),
	}
}
