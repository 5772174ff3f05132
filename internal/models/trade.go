package models

import (
	"time"

	"patterntrader/pkg/utils"
)

// Direction - направление сделки
type Direction string

// Направления позиции
const (
	DirectionLong  Direction = "long"  // ставка на рост
	DirectionShort Direction = "short" // ставка на падение
)

// Sign возвращает +1 для long и -1 для short
//
// Используется в расчётах PNL и трейлинг-стопа чтобы не
// дублировать ветвление по направлению.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// TradeSetup - рассчитанный вход в сделку (эфемерный)
//
// Строится непосредственно перед отправкой ордера и нигде
// не сохраняется после вызова размещения: это чистый расчёт
// размера позиции под риск-лимиты.
type TradeSetup struct {
	Symbol       string    `json:"symbol"`
	Strategy     string    `json:"strategy"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	RiskPerShare float64   `json:"risk_per_share"` // |entry - stop|
	RiskDollars  float64   `json:"risk_dollars"`   // riskPerShare * quantity
	Quantity     int64     `json:"quantity"`
	Reason       string    `json:"reason,omitempty"` // provenance: какой сигнал породил вход
}

// OpenPosition - открытая позиция по паре (стратегия, символ)
//
// Одна запись на пару одновременно. Создаётся по подтверждённому
// исполнению, мутируется на каждом обновлении цены (стоп трейлится,
// BestPrice обновляется), удаляется при закрытии.
type OpenPosition struct {
	Symbol          string    `json:"symbol"`
	Strategy        string    `json:"strategy"`
	Direction       Direction `json:"direction"`
	EntryPrice      float64   `json:"entry_price"`       // фактическая цена исполнения
	StopLoss        float64   `json:"stop_loss"`         // текущий (трейлится)
	InitialStopLoss float64   `json:"initial_stop_loss"` // неизменяемый исходный стоп
	Quantity        int64     `json:"quantity"`
	OpenedAt        time.Time `json:"opened_at"`
	RiskPerShare    float64   `json:"risk_per_share"`
	RiskDollars     float64   `json:"risk_dollars"`
	LastPrice       float64   `json:"last_price"`
	BestPrice       float64   `json:"best_price"` // экстремум в сторону прибыли
}

// UnrealizedPnl возвращает нереализованный PNL по указанной цене
func (p *OpenPosition) UnrealizedPnl(price float64) float64 {
	return (price - p.EntryPrice) * p.Direction.Sign() * float64(p.Quantity)
}

// CurrentR возвращает текущий результат позиции в R-multiple
//
// R = riskDollars; 2R означает прибыль вдвое больше принятого риска.
func (p *OpenPosition) CurrentR(price float64) float64 {
	if p.RiskDollars <= 0 {
		return 0
	}
	return p.UnrealizedPnl(price) / p.RiskDollars
}

// Причины закрытия позиции
const (
	ExitReasonSignal      = "exit_signal"     // сигнал выхода стратегии
	ExitReasonStopLoss    = "stop_loss"       // сработал стоп
	ExitReasonForced      = "forced_eod"      // принудительное закрытие в конце дня
	ExitReasonRelocation  = "relocation"      // позиция вытеснена более сильным сетапом
	ExitReasonResidual    = "residual_close"  // остаток закрыт в фазе exit
	ExitReasonInvalidated = "invalidated"     // состояние стратегии инвалидировано
)

// ClosedTrade - неизменяемый снимок завершённой сделки
//
// Append-only история: запись создаётся один раз при закрытии
// и больше не мутируется.
type ClosedTrade struct {
	ID         int       `json:"id" db:"id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Strategy   string    `json:"strategy" db:"strategy"`
	Direction  Direction `json:"direction" db:"direction"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	Quantity   int64     `json:"quantity" db:"quantity"`
	Pnl        float64   `json:"pnl" db:"pnl"`
	RMultiple  float64   `json:"r_multiple" db:"r_multiple"` // pnl / (riskPerShare * quantity)
	ExitReason string    `json:"exit_reason" db:"exit_reason"`
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time `json:"closed_at" db:"closed_at"`
}

// NewClosedTrade строит снимок закрытой позиции
func NewClosedTrade(p *OpenPosition, exitPrice float64, reason string, closedAt time.Time) *ClosedTrade {
	pnl := p.UnrealizedPnl(exitPrice)
	rMultiple := utils.RMultipleFrom(p.EntryPrice, exitPrice, p.RiskPerShare, int(p.Direction.Sign()))
	return &ClosedTrade{
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   p.Quantity,
		Pnl:        pnl,
		RMultiple:  rMultiple,
		ExitReason: reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   closedAt,
	}
}
