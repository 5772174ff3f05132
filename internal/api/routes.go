package api

import (
	"net/http"

	"patterntrader/internal/api/handlers"
	"patterntrader/internal/api/middleware"
	"patterntrader/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine     handlers.EngineSnapshots
	Gateway    handlers.GatewayStatus
	Strategies handlers.StrategyDirectory
	States     handlers.StateSource
	Scores     handlers.ScoreDirectory
	Hub        *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET /status - состояние подключения к шлюзу
//	├── GET /positions - открытые позиции
//	├── GET /orders - ожидающие ордера
//	├── GET /orders/history - история ордеров
//	├── GET /trades - закрытые сделки
//	├── GET /performance - сводка производительности
//	├── GET /strategies - зарегистрированные стратегии
//	├── GET /states - состояния стратегий по всем инструментам
//	├── GET /states/{symbol} - состояния по инструменту
//	├── GET /scores - оценки качества по всем инструментам
//	└── GET /scores/{symbol} - оценка по инструменту
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics   - метрики Prometheus
// /health    - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var tradingHandler *handlers.TradingHandler
	if deps != nil && deps.Engine != nil {
		tradingHandler = handlers.NewTradingHandler(deps.Engine)
	}

	var statusHandler *handlers.StatusHandler
	if deps != nil && deps.Gateway != nil {
		statusHandler = handlers.NewStatusHandler(deps.Gateway)
	}

	var strategyHandler *handlers.StrategyHandler
	if deps != nil {
		strategyHandler = handlers.NewStrategyHandler(deps.Strategies, deps.States, deps.Scores)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Gateway status routes
	if statusHandler != nil {
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	}

	// Trading routes
	if tradingHandler != nil {
		api.HandleFunc("/positions", tradingHandler.GetPositions).Methods("GET")
		api.HandleFunc("/orders", tradingHandler.GetPendingOrders).Methods("GET")
		api.HandleFunc("/orders/history", tradingHandler.GetOrderHistory).Methods("GET")
		api.HandleFunc("/trades", tradingHandler.GetTrades).Methods("GET")
		api.HandleFunc("/performance", tradingHandler.GetPerformance).Methods("GET")
	}

	// Strategy routes
	if strategyHandler != nil {
		api.HandleFunc("/strategies", strategyHandler.GetStrategies).Methods("GET")
		api.HandleFunc("/states", strategyHandler.GetStates).Methods("GET")
		api.HandleFunc("/states/{symbol}", strategyHandler.GetStatesForSymbol).Methods("GET")
		api.HandleFunc("/scores", strategyHandler.GetScores).Methods("GET")
		api.HandleFunc("/scores/{symbol}", strategyHandler.GetScoreForSymbol).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
