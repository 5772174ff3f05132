package engine

import (
	"sync"

	"patterntrader/internal/marketdata"
	"patterntrader/internal/models"
	"patterntrader/internal/strategy"
	"patterntrader/pkg/utils"
)

// dispatcher.go - мост между закрытиями баров и событиями движка
//
// Для каждой пары (стратегия, символ) диспетчер подписывается на
// закрытия баров рабочего таймфрейма стратегии и превращает каждое
// закрытие в PatternEvent: окно свечей, результат детектора и
// декларированное направление. Доставка синхронная, в горутине
// хаба рыночных данных.

// BarStream - источник закрытий баров и окон свечей
type BarStream interface {
	SubscribeBars(symbol, timeframe string, handler marketdata.BarHandler) *marketdata.Subscription
	Bars(symbol string, tf models.Timeframe) []models.IntradayBar
}

// Dispatcher превращает закрытия баров в события паттернов
type Dispatcher struct {
	engine   *Engine
	registry *strategy.Registry
	stream   BarStream
	logger   *utils.Logger

	mu   sync.Mutex
	subs map[string][]*marketdata.Subscription // symbol -> подписки
}

// NewDispatcher создаёт диспетчер поверх движка и источника баров
func NewDispatcher(eng *Engine, registry *strategy.Registry, stream BarStream, logger *utils.Logger) *Dispatcher {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Dispatcher{
		engine:   eng,
		registry: registry,
		stream:   stream,
		logger:   logger.WithComponent("dispatcher"),
		subs:     make(map[string][]*marketdata.Subscription),
	}
}

// Watch подписывает все зарегистрированные стратегии на символ.
// Повторный вызов для того же символа - no-op.
func (d *Dispatcher) Watch(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[symbol]; ok {
		return
	}

	var subs []*marketdata.Subscription
	for _, name := range d.registry.Names() {
		strat, err := d.registry.Get(name)
		if err != nil {
			continue
		}
		sub := d.stream.SubscribeBars(symbol, string(strat.Timeframe()), func(bar models.IntradayBar) {
			d.dispatch(strat, bar)
		})
		subs = append(subs, sub)
	}
	d.subs[symbol] = subs

	d.logger.Info("symbol watched",
		utils.Symbol(symbol),
		utils.Int("strategies", len(subs)))
}

// Unwatch снимает подписки символа
func (d *Dispatcher) Unwatch(symbol string) {
	d.mu.Lock()
	subs := d.subs[symbol]
	delete(d.subs, symbol)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Close снимает все подписки
func (d *Dispatcher) Close() {
	d.mu.Lock()
	all := d.subs
	d.subs = make(map[string][]*marketdata.Subscription)
	d.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

func (d *Dispatcher) dispatch(strat strategy.Strategy, bar models.IntradayBar) {
	candles := d.stream.Bars(bar.Symbol, bar.Timeframe)
	if len(candles) == 0 {
		return
	}

	ev := PatternEvent{
		Strategy:  strat.Name(),
		Symbol:    bar.Symbol,
		Candles:   candles,
		Timestamp: bar.EndTs,
	}
	if det, ok := strat.(strategy.Detector); ok {
		res := det.Detect(candles)
		ev.Detected = res.Detected
		ev.Direction = res.Direction
		ev.Pattern = res.Pattern
	}

	d.engine.OnPatternEvent(ev)
}
