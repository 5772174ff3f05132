package handlers

import (
	"net/http"
	"strconv"

	"patterntrader/internal/engine"
	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// EngineSnapshots - снимки движка, доступные наружу только для чтения
type EngineSnapshots interface {
	Positions() []models.OpenPosition
	PendingOrders() []models.OrderStatusInfo
	OrderHistory() []models.OrderStatusInfo
	ClosedTrades() []models.ClosedTrade
	Performance() engine.PerformanceSnapshot
}

// TradingHandler обрабатывает HTTP запросы торговых снимков.
//
// Endpoints:
// - GET /api/v1/positions - открытые позиции
// - GET /api/v1/orders - ожидающие ордера
// - GET /api/v1/orders/history?limit=N - история терминальных ордеров
// - GET /api/v1/trades?limit=N - закрытые сделки
// - GET /api/v1/performance - сводка производительности
//
// Вся поверхность read-only: управление торговлей через API не
// предусмотрено, движок управляется событиями рынка.
type TradingHandler struct {
	engine EngineSnapshots
}

// NewTradingHandler создает новый TradingHandler
func NewTradingHandler(eng EngineSnapshots) *TradingHandler {
	return &TradingHandler{engine: eng}
}

// GetPositions возвращает открытые позиции
//
// GET /api/v1/positions
func (h *TradingHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}
	positions := h.engine.Positions()
	if positions == nil {
		positions = []models.OpenPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPendingOrders возвращает ожидающие ордера
//
// GET /api/v1/orders
func (h *TradingHandler) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}
	orders := h.engine.PendingOrders()
	if orders == nil {
		orders = []models.OrderStatusInfo{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHistory возвращает историю терминальных ордеров, новые первыми
//
// GET /api/v1/orders/history?limit=N
func (h *TradingHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	history := h.engine.OrderHistory()
	limit := parseLimit(r, 100)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	// история хранится хронологически, наружу отдаётся новыми вперёд
	out := make([]models.OrderStatusInfo, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTrades возвращает закрытые сделки, новые первыми.
// Параметр period ограничивает выборку текущим отчётным периодом.
//
// GET /api/v1/trades?limit=N&period=day|week|month
func (h *TradingHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}

	trades := h.engine.ClosedTrades()
	if p := r.URL.Query().Get("period"); p != "" {
		period := utils.PeriodType(p)
		filtered := trades[:0:0]
		for _, t := range trades {
			if utils.IsInPeriod(t.ClosedAt, period) {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	limit := parseLimit(r, 100)
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	out := make([]models.ClosedTrade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		out = append(out, trades[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPerformance возвращает сводку производительности
//
// GET /api/v1/performance
func (h *TradingHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Performance())
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
