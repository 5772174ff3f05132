package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// ErrStateNotFound - обновление несуществующего состояния
var ErrStateNotFound = errors.New("strategy state not found")

// ErrStateInvalidated - попытка сдвинуть фазу инвалидированного
// состояния: сначала Reset
var ErrStateInvalidated = errors.New("strategy state invalidated, reset required")

// Store - потокобезопасное хранилище состояний торговых автоматов.
//
// Состояния сгруппированы в корзины по стратегии: strategy -> symbol ->
// состояние. Один и тот же символ независимо ведётся несколькими
// стратегиями; состояние пары (стратегия A, символ X) никогда не видно
// стратегии B и не мутируется ею.
//
// Store отдаёт копии состояний: мутация возвращённого значения
// не влияет на хранилище, изменения вносятся только через Update.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*models.StrategyState

	logger *utils.Logger
}

// NewStore создаёт пустое хранилище
func NewStore(logger *utils.Logger) *Store {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Store{
		buckets: make(map[string]map[string]*models.StrategyState),
		logger:  logger.WithComponent("state_store"),
	}
}

// Get возвращает копию состояния или false если записи нет
func (s *Store) Get(strategy, symbol string) (models.StrategyState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.lookupLocked(strategy, symbol)
	if st == nil {
		return models.StrategyState{}, false
	}
	return *st, true
}

// GetOrCreate возвращает копию состояния, создавая новую запись
// в фазе поиска если её ещё нет.
func (s *Store) GetOrCreate(strategy, symbol string) models.StrategyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(strategy, symbol)
}

func (s *Store) lookupLocked(strategy, symbol string) *models.StrategyState {
	bucket, ok := s.buckets[strategy]
	if !ok {
		return nil
	}
	return bucket[symbol]
}

// getOrCreateLocked - вызывается под write-lock
func (s *Store) getOrCreateLocked(strategy, symbol string) *models.StrategyState {
	bucket, ok := s.buckets[strategy]
	if !ok {
		bucket = make(map[string]*models.StrategyState)
		s.buckets[strategy] = bucket
	}
	if st, ok := bucket[symbol]; ok {
		return st
	}

	st := &models.StrategyState{
		Strategy:    strategy,
		Symbol:      symbol,
		Phase:       models.PhaseSearch,
		LastUpdated: time.Now(),
	}
	bucket[symbol] = st
	return st
}

// Update применяет частичное обновление к состоянию (strategy, symbol).
//
// Заполненные поля StateUpdate замещают соответствующие поля состояния,
// nil-поля не трогаются. Обновление несуществующей записи - ошибка,
// запись создаётся только через GetOrCreate. Переход фазы валидируется:
// недопустимый переход отклоняется с ошибкой, состояние не меняется.
func (s *Store) Update(strategy, symbol string, upd models.StateUpdate) (models.StrategyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.lookupLocked(strategy, symbol)
	if st == nil {
		return models.StrategyState{}, fmt.Errorf("%w: %s %s", ErrStateNotFound, strategy, symbol)
	}

	if upd.Phase != nil && st.Invalidated {
		// Инвалидация снимается только через Reset
		return *st, fmt.Errorf("%w: %s %s", ErrStateInvalidated, strategy, symbol)
	}
	if upd.Phase != nil && !models.ValidTransition(st.Phase, *upd.Phase) {
		return *st, fmt.Errorf("%w: %s -> %s (%s %s)",
			models.ErrInvalidTransition, st.Phase, *upd.Phase, strategy, symbol)
	}

	if upd.Phase != nil {
		s.logger.Debug("phase transition",
			utils.Strategy(strategy),
			utils.Symbol(symbol),
			utils.String("from", string(st.Phase)),
			utils.Phase(string(*upd.Phase)),
		)
		st.Phase = *upd.Phase
	}
	if upd.Entry1Price != nil {
		st.Entry1Price = upd.Entry1Price
	}
	if upd.Entry2Price != nil {
		st.Entry2Price = upd.Entry2Price
	}
	if upd.StopLoss != nil {
		st.StopLoss = upd.StopLoss
	}
	if upd.Invalidated != nil {
		st.Invalidated = *upd.Invalidated
	}
	if upd.Custom != nil {
		st.Custom = upd.Custom
	}
	st.LastUpdated = time.Now()

	return *st, nil
}

// Reset возвращает состояние в фазу поиска: сбрасывается инвалидация
// и все накопленные данные паттерна (цены входов, стоп, custom).
func (s *Store) Reset(strategy, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[strategy]
	if !ok {
		return
	}
	if _, ok := bucket[symbol]; !ok {
		return
	}

	bucket[symbol] = &models.StrategyState{
		Strategy:    strategy,
		Symbol:      symbol,
		Phase:       models.PhaseSearch,
		LastUpdated: time.Now(),
	}

	s.logger.Debug("state reset", utils.Strategy(strategy), utils.Symbol(symbol))
}

// Invalidate переводит состояние в фазу выхода с пометкой о невалидном
// паттерне. Инвалидация разрешена из любой фазы.
func (s *Store) Invalidate(strategy, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreateLocked(strategy, symbol)
	st.Phase = models.PhaseExit
	st.Invalidated = true
	st.LastUpdated = time.Now()
}

// Delete удаляет запись состояния и опустевшую корзину стратегии
func (s *Store) Delete(strategy, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[strategy]
	if !ok {
		return
	}
	delete(bucket, symbol)
	if len(bucket) == 0 {
		delete(s.buckets, strategy)
	}
}

// All возвращает копии всех состояний
func (s *Store) All() []models.StrategyState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.StrategyState
	for _, bucket := range s.buckets {
		for _, st := range bucket {
			result = append(result, *st)
		}
	}
	return result
}

// ForSymbol возвращает копии состояний всех стратегий по символу
func (s *Store) ForSymbol(symbol string) []models.StrategyState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.StrategyState
	for _, bucket := range s.buckets {
		if st, ok := bucket[symbol]; ok {
			result = append(result, *st)
		}
	}
	return result
}

// ForStrategy возвращает копии состояний всех символов стратегии
func (s *Store) ForStrategy(strategy string) []models.StrategyState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.StrategyState
	for _, st := range s.buckets[strategy] {
		result = append(result, *st)
	}
	return result
}

// Len возвращает количество записей
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}

// Cleanup удаляет инвалидированные записи и записи в фазе выхода,
// не обновлявшиеся дольше maxAge; опустевшие корзины стратегий
// удаляются. Возвращает количество удалённых записей.
func (s *Store) Cleanup(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for strategy, bucket := range s.buckets {
		for symbol, st := range bucket {
			if (st.Invalidated || st.Phase == models.PhaseExit) && st.LastUpdated.Before(cutoff) {
				delete(bucket, symbol)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(s.buckets, strategy)
		}
	}

	if removed > 0 {
		s.logger.Debug("stale states removed", utils.Int("count", removed))
	}
	return removed
}
