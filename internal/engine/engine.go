package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"patterntrader/internal/config"
	"patterntrader/internal/gateway"
	"patterntrader/internal/models"
	"patterntrader/internal/scoring"
	"patterntrader/internal/state"
	"patterntrader/internal/strategy"
	"patterntrader/pkg/utils"
)

// ============================================
// ИСПОЛНИТЕЛЬНЫЙ ДВИЖОК
// ============================================
//
// Движок ведёт торговый автомат каждой пары (стратегия, символ) через
// фазы search -> entry1 -> entry2 -> active -> exit -> search, размещает
// ордера через шлюз и ведёт учёт открытых и закрытых позиций.
//
// Все мутации списка позиций, карт ордеров и дневных риск-счётчиков
// сериализуются одним мьютексом: событие паттерна и обновление цены
// никогда не видят частично изменённую позицию.
//
// Ошибки обработки событий не покидают движок: обработчики закрыты
// recover-границей, сбои ордеров считаются в circuit breaker.

// ErrEngineConfig - невалидные параметры движка (единственный класс
// ошибок, падающий синхронно, при конструировании)
var ErrEngineConfig = errors.New("invalid engine configuration")

// OrderPlacer - операции шлюза, нужные движку
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// ScoreSource - внешний источник оценок символов
type ScoreSource interface {
	Latest(symbol string) (scoring.Score, bool)
}

// TradeRecorder - асинхронная запись закрытых сделок.
// Сбой записи не влияет на торговлю.
type TradeRecorder interface {
	RecordTradeAsync(trade *models.ClosedTrade)
}

// Notifier - доставка торговых уведомлений наружу (UI hub).
// Реализация обязана не блокировать.
type Notifier interface {
	Notify(n models.Notification)
}

// PatternEvent - единственный внешний тип события, двигающий автомат:
// результат детекции паттерна с подсказкой направления и оценкой
type PatternEvent struct {
	Strategy  string
	Symbol    string
	Detected  bool
	Direction models.Direction
	Pattern   models.CustomState // геометрия паттерна от детектора
	Candles   []models.IntradayBar
	Score     *scoring.Score // оценка на момент события, nil = взять свежую
	Timestamp time.Time
}

// Engine - исполнительный движок
type Engine struct {
	cfg      config.EngineConfig
	loc      *time.Location
	store    *state.Store
	registry *strategy.Registry
	gw       OrderPlacer
	scores   ScoreSource
	recorder TradeRecorder
	notifier Notifier
	logger   *utils.Logger

	mu            sync.Mutex
	positions     map[string]*models.OpenPosition
	pendingOrders map[int64]*models.OrderStatusInfo
	orderHistory  []models.OrderStatusInfo
	closedTrades  []models.ClosedTrade
	lastPrices    map[string]float64

	dailyDay      string
	dailyRealized float64
	totalRealized float64
	peakEquity    float64
	pauseNotified bool

	consecutiveFailures int
	breakerOpenUntil    time.Time

	forcedDay string // торговый день, в котором уже выполнен forced exit
}

// NewEngine создаёт движок. Невалидная конфигурация - немедленная ошибка.
func NewEngine(
	cfg config.EngineConfig,
	loc *time.Location,
	store *state.Store,
	registry *strategy.Registry,
	gw OrderPlacer,
	scores ScoreSource,
	logger *utils.Logger,
) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}
	if store == nil || registry == nil || gw == nil {
		return nil, fmt.Errorf("%w: store, registry and gateway are required", ErrEngineConfig)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	return &Engine{
		cfg:           cfg,
		loc:           loc,
		store:         store,
		registry:      registry,
		gw:            gw,
		scores:        scores,
		logger:        logger.WithComponent("engine"),
		positions:     make(map[string]*models.OpenPosition),
		pendingOrders: make(map[int64]*models.OrderStatusInfo),
		lastPrices:    make(map[string]float64),
		peakEquity:    cfg.AccountValue,
	}, nil
}

func validateEngineConfig(cfg config.EngineConfig) error {
	switch {
	case cfg.AccountValue <= 0:
		return fmt.Errorf("%w: account value must be positive", ErrEngineConfig)
	case cfg.RiskPerTradePct <= 0 || cfg.RiskPerTradePct > 1:
		return fmt.Errorf("%w: risk per trade must be in (0, 1]", ErrEngineConfig)
	case cfg.MaxExposurePct <= 0 || cfg.MaxExposurePct > 1:
		return fmt.Errorf("%w: max exposure must be in (0, 1]", ErrEngineConfig)
	case cfg.MaxConcurrentTrades < 1:
		return fmt.Errorf("%w: max concurrent trades must be at least 1", ErrEngineConfig)
	case cfg.CircuitBreakerThreshold < 1:
		return fmt.Errorf("%w: circuit breaker threshold must be at least 1", ErrEngineConfig)
	case cfg.TrailingActivationR <= 0 || cfg.TrailingDistanceR <= 0:
		return fmt.Errorf("%w: trailing parameters must be positive", ErrEngineConfig)
	}
	return nil
}

// SetRecorder устанавливает приёмник закрытых сделок
func (e *Engine) SetRecorder(r TradeRecorder) { e.recorder = r }

// SetNotifier устанавливает приёмник уведомлений
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

func posKey(strategy, symbol string) string {
	return strategy + ":" + symbol
}

// OnPatternEvent обрабатывает событие паттерна/свечи.
// Неожиданная паника ловится и логируется: движок не останавливается.
func (e *Engine) OnPatternEvent(ev PatternEvent) {
	defer func() {
		if r := recover(); r != nil {
			eventPanicsTotal.Inc()
			e.logger.Error("panic in pattern event handler",
				utils.Strategy(ev.Strategy),
				utils.Symbol(ev.Symbol),
				utils.Any("panic", r))
		}
	}()

	if ev.Strategy == "" || ev.Symbol == "" {
		e.logger.Warn("pattern event without strategy or symbol dropped")
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.Lock()
	e.resetDailyLocked(ev.Timestamp)
	if reason, paused := e.riskPausedLocked(); paused {
		e.notifyRiskPauseLocked(reason, ev)
		e.mu.Unlock()
		e.logger.Debug("risk pause active, event ignored",
			utils.Strategy(ev.Strategy),
			utils.Symbol(ev.Symbol),
			utils.String("reason", reason))
		return
	}
	e.mu.Unlock()

	strat, err := e.registry.Get(ev.Strategy)
	if err != nil {
		e.logger.Warn("event for unknown strategy dropped",
			utils.Strategy(ev.Strategy), utils.Err(err))
		return
	}

	st := e.store.GetOrCreate(ev.Strategy, ev.Symbol)

	if st.Invalidated {
		e.handleInvalidated(ev, st)
		return
	}

	switch st.Phase {
	case models.PhaseSearch:
		e.handleSearch(ev, st)
	case models.PhaseEntry1:
		e.handleEntry1(ev, strat, st)
	case models.PhaseEntry2:
		e.handleEntry2(ev, strat, st)
	case models.PhaseActive:
		e.handleActive(ev, strat, st)
	case models.PhaseExit:
		e.handleExit(ev, st)
	}
}

// handleSearch: обнаруженный паттерн переводит автомат в entry1,
// геометрия паттерна сохраняется в custom-состоянии
func (e *Engine) handleSearch(ev PatternEvent, st models.StrategyState) {
	if !ev.Detected {
		return
	}

	upd := models.StateUpdate{Phase: models.PhasePtr(models.PhaseEntry1)}
	if ev.Pattern != nil {
		upd.Custom = ev.Pattern
	}
	if _, err := e.store.Update(ev.Strategy, ev.Symbol, upd); err != nil {
		e.logger.Warn("phase advance rejected",
			utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol), utils.Err(err))
		return
	}

	e.logger.Info("pattern detected",
		utils.Strategy(ev.Strategy),
		utils.Symbol(ev.Symbol),
		utils.String("direction", string(ev.Direction)))
}

// handleEntry1: без позиции - проверка сигнала первого входа;
// с позицией - выход по первому сигналу либо добор по второму
func (e *Engine) handleEntry1(ev PatternEvent, strat strategy.Strategy, st models.StrategyState) {
	e.mu.Lock()
	pos := e.positions[posKey(ev.Strategy, ev.Symbol)]
	e.mu.Unlock()

	if pos == nil {
		if st.Entry1Price != nil {
			// Позиция была, но её закрыл стоп: автомат сбрасывается
			e.forceReset(ev, "position expected but absent")
			return
		}
		dec := strat.EntryFirst(ev.Candles, st)
		if !dec.Enter {
			return
		}
		if dec.Meta != nil {
			st.Custom = dec.Meta
		}
		stops := strat.StopsForEntry1(ev.Candles, st)
		e.tryOpen(ev, st, dec, stops.Initial)
		return
	}

	if exit := strat.ExitFirst(ev.Candles, st); exit.Exit {
		e.closeAndExit(ev, st, exit.Price, models.ExitReasonSignal)
		return
	}

	if dec2 := strat.EntrySecond(ev.Candles, st); dec2.Enter {
		stops2 := strat.StopsForEntry2(ev.Candles, st)
		if validPrice(stops2.Initial) {
			e.addSecondEntry(ev, st, dec2, stops2.Initial)
		} else if dec2.Meta != nil {
			// Сигнал без стопа фазу не двигает, но накопленное
			// состояние стратегии сохраняем
			e.store.Update(ev.Strategy, ev.Symbol, models.StateUpdate{Custom: dec2.Meta})
		}
	}
}

// handleEntry2: сопровождение позиции; оба входа записаны - фаза active
func (e *Engine) handleEntry2(ev PatternEvent, strat strategy.Strategy, st models.StrategyState) {
	e.mu.Lock()
	pos := e.positions[posKey(ev.Strategy, ev.Symbol)]
	e.mu.Unlock()

	if pos == nil {
		e.forceReset(ev, "position expected but absent")
		return
	}

	if exit := strat.ExitSecond(ev.Candles, st); exit.Exit {
		e.closeAndExit(ev, st, exit.Price, models.ExitReasonSignal)
		return
	}

	if st.Entry1Price != nil && st.Entry2Price != nil {
		if _, err := e.store.Update(ev.Strategy, ev.Symbol, models.StateUpdate{
			Phase: models.PhasePtr(models.PhaseActive),
		}); err != nil {
			e.logger.Warn("phase advance rejected",
				utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol), utils.Err(err))
		}
	}
}

// handleActive: проверяются оба сигнала выхода
func (e *Engine) handleActive(ev PatternEvent, strat strategy.Strategy, st models.StrategyState) {
	e.mu.Lock()
	pos := e.positions[posKey(ev.Strategy, ev.Symbol)]
	e.mu.Unlock()

	if pos == nil {
		e.forceReset(ev, "position expected but absent")
		return
	}

	if exit := strat.ExitFirst(ev.Candles, st); exit.Exit {
		e.closeAndExit(ev, st, exit.Price, models.ExitReasonSignal)
		return
	}
	if exit := strat.ExitSecond(ev.Candles, st); exit.Exit {
		e.closeAndExit(ev, st, exit.Price, models.ExitReasonSignal)
	}
}

// handleExit: закрытие остатка позиции по последней известной цене
// и возврат автомата в фазу поиска
func (e *Engine) handleExit(ev PatternEvent, st models.StrategyState) {
	key := posKey(ev.Strategy, ev.Symbol)

	e.mu.Lock()
	if pos := e.positions[key]; pos != nil {
		price := e.exitPriceLocked(pos)
		e.closePositionLocked(key, price, models.ExitReasonResidual, ev.Timestamp)
	}
	e.mu.Unlock()

	e.store.Reset(ev.Strategy, ev.Symbol)
}

// handleInvalidated: инвалидированный паттерн закрывает позицию
// (если была) и сбрасывает автомат
func (e *Engine) handleInvalidated(ev PatternEvent, st models.StrategyState) {
	key := posKey(ev.Strategy, ev.Symbol)

	e.mu.Lock()
	if pos := e.positions[key]; pos != nil {
		price := e.exitPriceLocked(pos)
		e.closePositionLocked(key, price, models.ExitReasonInvalidated, ev.Timestamp)
	}
	e.mu.Unlock()

	e.store.Reset(ev.Strategy, ev.Symbol)
	e.logger.Info("invalidated state reset",
		utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol))
}

// closeAndExit закрывает позицию по сигналу выхода и двигает автомат
// в фазу exit. Из entry1/entry2 прямого ребра в exit нет - паттерн
// помечается инвалидированным, сброс произойдёт на следующем событии.
func (e *Engine) closeAndExit(ev PatternEvent, st models.StrategyState, price float64, reason string) {
	key := posKey(ev.Strategy, ev.Symbol)

	e.mu.Lock()
	if pos := e.positions[key]; pos != nil {
		if !validPrice(price) {
			price = e.exitPriceLocked(pos)
		}
		e.closePositionLocked(key, price, reason, ev.Timestamp)
	}
	e.mu.Unlock()

	if st.Phase == models.PhaseActive {
		if _, err := e.store.Update(ev.Strategy, ev.Symbol, models.StateUpdate{
			Phase: models.PhasePtr(models.PhaseExit),
		}); err != nil {
			e.logger.Warn("phase advance rejected",
				utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol), utils.Err(err))
		}
		return
	}
	e.store.Invalidate(ev.Strategy, ev.Symbol)
}

// forceReset сбрасывает автомат, обнаруживший рассинхронизацию
// с реальной позицией (например, её закрыл стоп)
func (e *Engine) forceReset(ev PatternEvent, why string) {
	e.logger.Warn("state force reset",
		utils.Strategy(ev.Strategy),
		utils.Symbol(ev.Symbol),
		utils.String("reason", why))
	e.store.Reset(ev.Strategy, ev.Symbol)
}

// resolveScore возвращает оценку символа: из события либо свежую из источника
func (e *Engine) resolveScore(ev PatternEvent) *scoring.Score {
	if ev.Score != nil {
		return ev.Score
	}
	if e.scores == nil {
		return nil
	}
	if sc, ok := e.scores.Latest(ev.Symbol); ok {
		return &sc
	}
	return nil
}

// directionsAgree сверяет направление стратегии с внешним уклоном.
// Нейтральный или отсутствующий уклон согласием не считается препятствием.
func directionsAgree(dir models.Direction, score *scoring.Score) bool {
	if score == nil || score.Bias == scoring.BiasNeutral {
		return true
	}
	if dir == models.DirectionLong {
		return score.Bias == scoring.BiasLong
	}
	return score.Bias == scoring.BiasShort
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && utils.ValidatePrice(p) == nil
}
