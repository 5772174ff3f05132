package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patterntrader/internal/api"
	"patterntrader/internal/config"
	"patterntrader/internal/engine"
	"patterntrader/internal/gateway"
	"patterntrader/internal/marketdata"
	"patterntrader/internal/models"
	"patterntrader/internal/repository"
	"patterntrader/internal/scoring"
	"patterntrader/internal/service"
	"patterntrader/internal/state"
	"patterntrader/internal/strategy"
	"patterntrader/internal/websocket"
	"patterntrader/pkg/utils"

	_ "github.com/lib/pq"
)

// breakoutLookback - баров накопления для стратегии пробоя
const breakoutLookback = 20

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.MarketData.Timezone)
	if err != nil {
		logger.Fatal("invalid market timezone", utils.Err(err))
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	// Репозитории и персистентность
	barRepo := repository.NewBarRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	configRepo := repository.NewStrategyConfigRepository(db)

	persistence := service.NewPersistenceService(
		barRepo,
		tradeRepo,
		loc,
		cfg.MarketData.BarRetention,
		cfg.MarketData.SaveBufferSize,
		logger,
	)
	defer persistence.Close()

	// Рыночные данные и скоринг
	mdHub := marketdata.NewHub(loc, persistence, logger)
	scorer := scoring.NewScorer(logger)

	// Стратегии и состояния
	registry := strategy.NewRegistry()
	breakout := strategy.NewBreakout(models.DirectionLong, models.Timeframe1m, breakoutLookback)
	if err := registry.Register(breakout); err != nil {
		logger.Fatal("failed to register strategy", utils.Err(err))
	}
	registry.RegisterStateKind(breakout.Name(), func() models.CustomState {
		return &strategy.BreakoutState{}
	})

	stateStore := state.NewStore(logger)

	// UI hub
	uiHub := websocket.NewHub(logger)
	go uiHub.Run()
	defer uiHub.Stop()

	// Шлюз брокера
	wsClient := gateway.NewWSClient(cfg.Gateway, logger)
	var eng *engine.Engine
	manager := gateway.NewManager(cfg.Gateway, wsClient, gateway.Callbacks{
		OnTick: func(tick models.Tick) {
			mdHub.OnTick(tick)
			if eng != nil {
				eng.UpdatePrice(tick.Symbol, tick.Price, tick.Timestamp)
			}
		},
		OnOrderStatus: func(st models.OrderStatusInfo) {
			if eng != nil {
				eng.OnOrderStatus(st)
			}
		},
		OnError: func(code int, msg string, reqID int64) {
			logger.Warn("gateway error",
				utils.Int("code", code),
				utils.String("message", msg),
				utils.Int64("req_id", reqID))
		},
	}, logger)
	manager.SetOnStateChange(uiHub.BroadcastConnection)

	// Исполнительный движок
	eng, err = engine.NewEngine(cfg.Engine, loc, stateStore, registry, wsClient, scorer, logger)
	if err != nil {
		logger.Fatal("failed to build engine", utils.Err(err))
	}
	eng.SetNotifier(uiHub)
	eng.SetRecorder(tradeFanout{persistence, uiTradeSink{uiHub}})

	// Скоринг на закрытиях минутных баров
	scoreSub := mdHub.SubscribeBars(marketdata.Wildcard, string(models.Timeframe1m), func(bar models.IntradayBar) {
		scorer.ScoreBars(bar.Symbol, mdHub.Bars(bar.Symbol, models.Timeframe1m), bar.EndTs)
	})
	defer scoreSub.Unsubscribe()

	// Мост закрытия баров -> события паттернов
	dispatcher := engine.NewDispatcher(eng, registry, mdHub, logger)
	defer dispatcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Восстановление дневной истории баров до подключения к live-потоку
	if err := persistence.Backfill(mdHub, time.Now()); err != nil {
		logger.Warn("bar backfill failed", utils.Err(err))
	}

	// Активные конфигурации определяют подписки
	configs, err := configRepo.GetActive()
	if err != nil {
		logger.Fatal("failed to load strategy configs", utils.Err(err))
	}
	for _, sc := range configs {
		risk := sc.RiskPerTradePct
		if risk == 0 {
			risk = cfg.Engine.RiskPerTradePct
		}
		if err := utils.ValidateStrategyConfig(utils.StrategyConfigInput{
			Strategy:        sc.Strategy,
			Symbol:          sc.Symbol,
			Direction:       string(sc.Direction),
			RiskPerTradePct: risk,
		}); err != nil {
			logger.Warn("skipping invalid strategy config",
				utils.Strategy(sc.Strategy), utils.Symbol(sc.Symbol), utils.Err(err))
			continue
		}
		if err := manager.Subscribe(sc.Symbol); err != nil {
			logger.Warn("market data subscription failed",
				utils.Symbol(sc.Symbol), utils.Err(err))
		}
		dispatcher.Watch(sc.Symbol)
	}
	logger.Info("strategy configs loaded", utils.Int("active", len(configs)))

	if err := manager.Connect(ctx); err != nil {
		// Manager продолжит переподключаться сам
		logger.Warn("initial gateway connect failed", utils.Err(err))
	}

	go eng.Run(ctx)
	go persistence.Run(ctx)
	go broadcastLoop(ctx, eng, uiHub)

	// HTTP сервер: read-only API, websocket дашборда, метрики
	router := api.SetupRoutes(&api.Dependencies{
		Engine:     eng,
		Gateway:    manager,
		Strategies: registry,
		States:     stateStore,
		Scores:     scorer,
		Hub:        uiHub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		var serveErr error
		if cfg.Server.UseHTTPS {
			serveErr = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(serveErr))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	if err := manager.Close(); err != nil {
		logger.Warn("error closing gateway connection", utils.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	logger.Info("server exited")
}

// broadcastLoop периодически шлёт дашборду позиции и производительность
func broadcastLoop(ctx context.Context, eng *engine.Engine, hub *websocket.Hub) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.BroadcastPositions(eng.Positions())
			hub.BroadcastPerformance(eng.Performance())
		}
	}
}

// tradeFanout раздаёт закрытую сделку нескольким приёмникам
type tradeFanout []engine.TradeRecorder

func (f tradeFanout) RecordTradeAsync(t *models.ClosedTrade) {
	for _, r := range f {
		r.RecordTradeAsync(t)
	}
}

// uiTradeSink адаптирует UI hub под приёмник сделок
type uiTradeSink struct {
	hub *websocket.Hub
}

func (s uiTradeSink) RecordTradeAsync(t *models.ClosedTrade) {
	if t != nil {
		s.hub.BroadcastTrade(*t)
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
