package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"patterntrader/internal/models"
)

// Контракт плагина паттерн-стратегии.
//
// Стратегия - чистая функция над барами и собственным состоянием:
// она не размещает ордера, не трогает Store и не знает о шлюзе.
// Execution Engine вызывает её методы на закрытии бара рабочего
// таймфрейма и действует по возвращённым решениям.

// Ошибки реестра стратегий
var (
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrDuplicateStrategy  = errors.New("strategy already registered")
	ErrUnknownStateKind   = errors.New("unknown custom state kind")
)

// EntryDecision - решение о входе
type EntryDecision struct {
	Enter bool
	Price float64            // желаемая цена входа (0 = по рынку)
	Meta  models.CustomState // новое приватное состояние стратегии
}

// StopDecision - расчёт исходного стопа для входа
type StopDecision struct {
	Initial float64
}

// ExitDecision - решение о выходе
type ExitDecision struct {
	Exit  bool
	Price float64 // желаемая цена выхода (0 = по рынку)
}

// Detection - результат поиска паттерна на закрытии бара.
// Direction заполняется всегда: это декларация стороны стратегии,
// используемая и вне фазы поиска.
type Detection struct {
	Detected  bool
	Direction models.Direction
	Pattern   models.CustomState // геометрия паттерна для сохранения в Store
}

// Detector - способность стратегии обнаруживать свой паттерн.
// Реализуется стратегией опционально: без него автомат пары
// никогда не покидает фазу поиска.
type Detector interface {
	Detect(candles []models.IntradayBar) Detection
}

// Strategy - интерфейс паттерн-стратегии с двумя входами.
//
// Методы First относятся к первому (разведочному) входу,
// Second - ко второму (добирающему). Стратегия работающая одним
// входом возвращает EntrySecond{Enter:false} всегда.
type Strategy interface {
	// Name - уникальное имя стратегии (ключ реестра и Store)
	Name() string

	// Timeframe - рабочий таймфрейм закрытий баров
	Timeframe() models.Timeframe

	EntryFirst(candles []models.IntradayBar, st models.StrategyState) EntryDecision
	StopsForEntry1(candles []models.IntradayBar, st models.StrategyState) StopDecision
	ExitFirst(candles []models.IntradayBar, st models.StrategyState) ExitDecision

	EntrySecond(candles []models.IntradayBar, st models.StrategyState) EntryDecision
	StopsForEntry2(candles []models.IntradayBar, st models.StrategyState) StopDecision
	ExitSecond(candles []models.IntradayBar, st models.StrategyState) ExitDecision
}

// ============================================================
// Реестр
// ============================================================

// Registry - реестр стратегий и типов их приватного состояния.
//
// Стратегии регистрируются на старте процесса; типы custom-состояния
// регистрируются под именем стратегии (типизированная замена
// нетипизированного словаря).
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	stateKinds map[string]func() models.CustomState
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		stateKinds: make(map[string]func() models.CustomState),
	}
}

// Register добавляет стратегию в реестр
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return nil
}

// RegisterStateKind регистрирует конструктор custom-состояния стратегии
func (r *Registry) RegisterStateKind(kind string, factory func() models.CustomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateKinds[kind] = factory
}

// Get возвращает стратегию по имени
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// NewState создаёт пустое custom-состояние зарегистрированного типа
func (r *Registry) NewState(kind string) (models.CustomState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.stateKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStateKind, kind)
	}
	return factory(), nil
}

// Names возвращает отсортированный список зарегистрированных стратегий
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len возвращает количество зарегистрированных стратегий
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}
