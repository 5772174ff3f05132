package models

import (
	"errors"
	"time"
)

// Phase - фаза state machine стратегии для пары (стратегия, символ)
//
// Жизненный цикл:
//
//	search → entry1 → entry2 → active → exit → search
//
// Переходы управляются исключительно Execution Engine.
// Допустимые переходы описаны в ValidTransitions.
type Phase string

// Фазы торговой state machine
const (
	PhaseSearch Phase = "search" // поиск паттерна, позиции нет
	PhaseEntry1 Phase = "entry1" // паттерн найден, ожидание/открытие первого входа
	PhaseEntry2 Phase = "entry2" // первый вход открыт, ожидание второго входа
	PhaseActive Phase = "active" // оба входа зафиксированы, сопровождение позиции
	PhaseExit   Phase = "exit"   // закрытие остатков и сброс состояния
)

// CustomState - типизированное приватное состояние стратегии
//
// Заменяет нетипизированный map[string]any из исходной системы:
// каждая стратегия объявляет собственный тип (геометрия паттерна,
// индексы пиков и т.п.) и регистрирует его под своим именем.
// Engine и Store работают только через этот интерфейс и не знают
// о внутренностях конкретных стратегий.
type CustomState interface {
	// Kind возвращает имя стратегии-владельца состояния
	Kind() string
}

// StrategyState - состояние state machine для пары (стратегия, символ)
//
// Инвариант: состояние с Invalidated=true не может быть продвинуто
// по фазам — только сброшено через Reset.
// Создаётся при первом обнаружении паттерна, мутируется только
// Execution Engine через Orchestrator, удаляется явным Reset
// или сборщиком мусора по TTL.
type StrategyState struct {
	Strategy    string      `json:"strategy"`
	Symbol      string      `json:"symbol"`
	Phase       Phase       `json:"phase"`
	Entry1Price *float64    `json:"entry1_price,omitempty"`
	Entry2Price *float64    `json:"entry2_price,omitempty"`
	StopLoss    *float64    `json:"stop_loss,omitempty"`
	Invalidated bool        `json:"invalidated"`
	Custom      CustomState `json:"-"` // приватные данные стратегии
	LastUpdated time.Time   `json:"last_updated"`
}

// StateUpdate - частичное обновление StrategyState (shallow merge)
//
// nil-поля не трогают существующие значения.
type StateUpdate struct {
	Phase       *Phase
	Entry1Price *float64
	Entry2Price *float64
	StopLoss    *float64
	Invalidated *bool
	Custom      CustomState
}

// ErrInvalidTransition - недопустимый переход между фазами
var ErrInvalidTransition = errors.New("invalid phase transition")

// ValidTransitions - таблица допустимых переходов state machine.
//
// Самопереходы разрешены (обновление данных фазы без смены фазы),
// entry1 может перейти сразу в active если стратегия открывает
// полный размер одним входом. Возврат в search из любой фазы идёт
// не через таблицу, а через инвалидацию и Reset.
var ValidTransitions = map[Phase][]Phase{
	PhaseSearch: {PhaseSearch, PhaseEntry1},
	PhaseEntry1: {PhaseEntry1, PhaseEntry2, PhaseActive},
	PhaseEntry2: {PhaseEntry2, PhaseActive},
	PhaseActive: {PhaseActive, PhaseExit},
	PhaseExit:   {PhaseExit, PhaseSearch},
}

// ValidTransition проверяет допустимость перехода from -> to
func ValidTransition(from, to Phase) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Float64Ptr возвращает указатель на значение (для StateUpdate)
func Float64Ptr(v float64) *float64 { return &v }

// PhasePtr возвращает указатель на фазу (для StateUpdate)
func PhasePtr(p Phase) *Phase { return &p }

// BoolPtr возвращает указатель на bool (для StateUpdate)
func BoolPtr(b bool) *bool { return &b }
