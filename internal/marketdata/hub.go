package marketdata

import (
	"math"
	"sort"
	"sync"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// Hub - хаб рыночных данных.
//
// Принимает поток тиков (от шлюза или replay-источника), агрегирует
// их в три параллельные серии OHLCV баров (1s/5s/1m) на символ и
// рассылает подписчикам сырые тики и события закрытия баров.
//
// Доставка синхронная, внутрипроцессная: тики одного символа
// доставляются в порядке прихода, межсимвольный порядок не гарантируется.

// TickHandler - подписчик тиков
type TickHandler func(models.Tick)

// BarHandler - подписчик закрытий баров
type BarHandler func(models.IntradayBar)

// BarSaver - коллаборатор персистентности закрытых баров.
// Вызов fire-and-forget: ошибка сохранения не влияет на live-обработку.
type BarSaver interface {
	SaveBarAsync(bar models.IntradayBar, tradingDay string)
}

// Subscription - handle подписки для отписки
type Subscription struct {
	id   int
	hub  *Hub
	kind subKind
}

type subKind int

const (
	subTick subKind = iota
	subBar
)

// Wildcard в адресации подписок на бары: любой символ / любой таймфрейм
const Wildcard = "*"

// tickSub - подписка на тики (symbol = Wildcard для всех)
type tickSub struct {
	id      int
	symbol  string
	handler TickHandler
}

// barSub - подписка на закрытия баров
type barSub struct {
	id        int
	symbol    string // Wildcard = любой символ
	timeframe string // Wildcard = любой таймфрейм
	handler   BarHandler
}

// symbolState - агрегационное состояние одного символа
type symbolState struct {
	day        string                                     // текущий торговый день (YYYY-MM-DD)
	series     map[models.Timeframe][]models.IntradayBar  // закрытые бары дня
	inProgress map[models.Timeframe]*models.IntradayBar   // открытые бары
}

func newSymbolState(day string) *symbolState {
	return &symbolState{
		day:        day,
		series:     make(map[models.Timeframe][]models.IntradayBar),
		inProgress: make(map[models.Timeframe]*models.IntradayBar),
	}
}

// Hub - см. комментарий пакета
type Hub struct {
	mu      sync.Mutex
	symbols map[string]*symbolState

	tickSubs []tickSub
	barSubs  []barSub
	nextSub  int

	loc    *time.Location // таймзона торгового дня
	saver  BarSaver       // nil = без персистентности
	logger *utils.Logger
}

// NewHub создаёт хаб. loc - таймзона биржи для определения торгового
// дня (nil = UTC), saver - опциональный коллаборатор сохранения баров.
func NewHub(loc *time.Location, saver BarSaver, logger *utils.Logger) *Hub {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Hub{
		symbols: make(map[string]*symbolState),
		loc:     loc,
		saver:   saver,
		logger:  logger.WithComponent("marketdata"),
	}
}

// ============================================================
// Подписки
// ============================================================

// SubscribeAllTicks подписывает обработчик на тики всех символов
func (h *Hub) SubscribeAllTicks(handler TickHandler) *Subscription {
	return h.subscribeTicks(Wildcard, handler)
}

// SubscribeTicks подписывает обработчик на тики одного символа
func (h *Hub) SubscribeTicks(symbol string, handler TickHandler) *Subscription {
	return h.subscribeTicks(symbol, handler)
}

func (h *Hub) subscribeTicks(symbol string, handler TickHandler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	h.tickSubs = append(h.tickSubs, tickSub{id: h.nextSub, symbol: symbol, handler: handler})
	return &Subscription{id: h.nextSub, hub: h, kind: subTick}
}

// SubscribeBars подписывает обработчик на закрытия баров.
// Адресация: (symbol, timeframe), каждая часть может быть Wildcard:
// (*, *) - все закрытия; (AAPL, *) - все таймфреймы символа;
// (*, 1m) - таймфрейм по всем символам; (AAPL, 1m) - точный адрес.
func (h *Hub) SubscribeBars(symbol, timeframe string, handler BarHandler) *Subscription {
	if timeframe != Wildcard && !utils.IsValidTimeframe(timeframe) {
		// Подписка регистрируется, но никогда не сработает
		h.logger.Warn("bar subscription for unsupported timeframe",
			utils.Symbol(symbol), utils.String("timeframe", timeframe))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	h.barSubs = append(h.barSubs, barSub{
		id:        h.nextSub,
		symbol:    symbol,
		timeframe: timeframe,
		handler:   handler,
	})
	return &Subscription{id: h.nextSub, hub: h, kind: subBar}
}

// Unsubscribe удаляет подписку. Повторный вызов безопасен.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s.kind {
	case subTick:
		for i, sub := range h.tickSubs {
			if sub.id == s.id {
				h.tickSubs = append(h.tickSubs[:i], h.tickSubs[i+1:]...)
				break
			}
		}
	case subBar:
		for i, sub := range h.barSubs {
			if sub.id == s.id {
				h.barSubs = append(h.barSubs[:i], h.barSubs[i+1:]...)
				break
			}
		}
	}
	s.hub = nil
}

// ============================================================
// Live-путь: тики
// ============================================================

// OnTick обрабатывает одно ценовое обновление.
//
// Невалидные тики (неположительная или нечисловая цена, отрицательный
// размер) отбрасываются с варнингом и не доходят ни до агрегации,
// ни до подписчиков.
func (h *Hub) OnTick(tick models.Tick) {
	if !validTick(tick) {
		ticksDropped.Inc()
		h.logger.Warn("dropping invalid tick",
			utils.Symbol(tick.Symbol),
			utils.Price(tick.Price),
			utils.Float64("size", tick.Size),
		)
		return
	}

	var closed []models.IntradayBar

	h.mu.Lock()
	st := h.ensureSymbolLocked(tick.Symbol, tick.Timestamp)

	for _, tf := range models.AllTimeframes {
		if bar := h.applyTickLocked(st, tf, tick); bar != nil {
			closed = append(closed, *bar)
		}
	}

	tickHandlers := h.tickHandlersLocked(tick.Symbol)
	h.mu.Unlock()

	ticksTotal.WithLabelValues(tick.Symbol).Inc()

	// Доставка вне lock: обработчики могут обращаться к хабу
	for _, handler := range tickHandlers {
		h.deliverTick(handler, tick)
	}
	for _, bar := range closed {
		h.emitBarClose(bar)
	}
}

// ensureSymbolLocked возвращает состояние символа, выполняя
// rollover торгового дня при необходимости.
func (h *Hub) ensureSymbolLocked(symbol string, ts time.Time) *symbolState {
	day := models.TradingDay(ts, h.loc)

	st, ok := h.symbols[symbol]
	if !ok {
		st = newSymbolState(day)
		h.symbols[symbol] = st
		return st
	}

	if st.day != day {
		// Смена торгового дня: сброс только этого символа
		h.logger.Info("trading day rollover",
			utils.Symbol(symbol),
			utils.String("from", st.day),
			utils.String("to", day),
		)
		dayRolloversTotal.Inc()
		fresh := newSymbolState(day)
		h.symbols[symbol] = fresh
		return fresh
	}
	return st
}

// applyTickLocked применяет тик к одному таймфрейму.
// Возвращает закрытый бар, если тик открыл новый бакет.
func (h *Hub) applyTickLocked(st *symbolState, tf models.Timeframe, tick models.Tick) *models.IntradayBar {
	bucketStart := tf.BucketStart(tick.Timestamp)

	current := st.inProgress[tf]
	if current != nil && current.StartTs.Equal(bucketStart) {
		// Тик внутри текущего бакета
		if tick.Price > current.High {
			current.High = tick.Price
		}
		if tick.Price < current.Low {
			current.Low = tick.Price
		}
		current.Close = tick.Price
		current.Volume += tick.Size
		return nil
	}

	var closed *models.IntradayBar
	if current != nil {
		// Бакет сменился (вперёд или назад) - бар закрывается
		st.series[tf] = append(st.series[tf], *current)
		closed = current
		barsClosedTotal.WithLabelValues(string(tf)).Inc()
	}

	st.inProgress[tf] = &models.IntradayBar{
		Symbol:    tick.Symbol,
		Timeframe: tf,
		StartTs:   bucketStart,
		EndTs:     bucketStart.Add(tf.Duration()),
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Size,
	}

	return closed
}

// emitBarClose рассылает закрытый бар подписчикам и сохраняет его
func (h *Hub) emitBarClose(bar models.IntradayBar) {
	if h.saver != nil {
		h.saver.SaveBarAsync(bar, models.TradingDay(bar.StartTs, h.loc))
	}

	h.mu.Lock()
	handlers := h.barHandlersLocked(bar.Symbol, string(bar.Timeframe))
	h.mu.Unlock()

	for _, handler := range handlers {
		h.deliverBar(handler, bar)
	}
}

func (h *Hub) tickHandlersLocked(symbol string) []TickHandler {
	var handlers []TickHandler
	for _, sub := range h.tickSubs {
		if sub.symbol == Wildcard || sub.symbol == symbol {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

func (h *Hub) barHandlersLocked(symbol, timeframe string) []BarHandler {
	var handlers []BarHandler
	for _, sub := range h.barSubs {
		if (sub.symbol == Wildcard || sub.symbol == symbol) &&
			(sub.timeframe == Wildcard || sub.timeframe == timeframe) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

// deliverTick вызывает обработчик, изолируя его панику
func (h *Hub) deliverTick(handler TickHandler, tick models.Tick) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("tick subscriber panicked",
				utils.Symbol(tick.Symbol), utils.Any("panic", r))
		}
	}()
	handler(tick)
}

// deliverBar вызывает обработчик, изолируя его панику
func (h *Hub) deliverBar(handler BarHandler, bar models.IntradayBar) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("bar subscriber panicked",
				utils.Symbol(bar.Symbol), utils.Any("panic", r))
		}
	}()
	handler(bar)
}

// ============================================================
// Silent-путь: исторические бары
// ============================================================

// LoadHistoricalBar вставляет уже закрытый бар (backfill) в серию дня.
//
// Операция тихая и идемпотентная: дедупликация по (StartTs, EndTs),
// пересортировка по началу бара, событие закрытия НЕ эмитится,
// in-progress бары не трогаются.
func (h *Hub) LoadHistoricalBar(bar models.IntradayBar) {
	if !bar.Timeframe.Valid() {
		h.logger.Warn("historical bar with unsupported timeframe",
			utils.Symbol(bar.Symbol), utils.TimeframeField(string(bar.Timeframe)))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	day := models.TradingDay(bar.StartTs, h.loc)
	st, ok := h.symbols[bar.Symbol]
	if !ok {
		st = newSymbolState(day)
		h.symbols[bar.Symbol] = st
	} else if st.day != day {
		// Тихий путь не выполняет rollover: бар чужого дня игнорируется
		h.logger.Debug("historical bar outside tracked day",
			utils.Symbol(bar.Symbol),
			utils.String("bar_day", day),
			utils.String("tracked_day", st.day),
		)
		return
	}

	series := st.series[bar.Timeframe]
	for _, existing := range series {
		if existing.StartTs.Equal(bar.StartTs) && existing.EndTs.Equal(bar.EndTs) {
			return // дубликат
		}
	}

	series = append(series, bar)
	sort.Slice(series, func(i, j int) bool {
		return series[i].StartTs.Before(series[j].StartTs)
	})
	st.series[bar.Timeframe] = series

	historicalBarsLoaded.Inc()
}

// ============================================================
// Доступ к сериям
// ============================================================

// Bars возвращает копию серии закрытых баров символа за текущий день
func (h *Hub) Bars(symbol string, tf models.Timeframe) []models.IntradayBar {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.symbols[symbol]
	if !ok {
		return nil
	}
	series := st.series[tf]
	result := make([]models.IntradayBar, len(series))
	copy(result, series)
	return result
}

// CurrentBar возвращает копию in-progress бара символа (false если нет)
func (h *Hub) CurrentBar(symbol string, tf models.Timeframe) (models.IntradayBar, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.symbols[symbol]
	if !ok {
		return models.IntradayBar{}, false
	}
	bar := st.inProgress[tf]
	if bar == nil {
		return models.IntradayBar{}, false
	}
	return *bar, true
}

// TrackedDay возвращает текущий торговый день символа ("" если не отслеживается)
func (h *Hub) TrackedDay(symbol string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.symbols[symbol]
	if !ok {
		return ""
	}
	return st.day
}

// Symbols возвращает список отслеживаемых символов
func (h *Hub) Symbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]string, 0, len(h.symbols))
	for symbol := range h.symbols {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}

// validTick отбрасывает нечисловые и неположительные цены
// и отрицательные размеры
func validTick(t models.Tick) bool {
	if t.Symbol == "" {
		return false
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return false
	}
	if math.IsNaN(t.Size) || math.IsInf(t.Size, 0) || t.Size < 0 {
		return false
	}
	return true
}
