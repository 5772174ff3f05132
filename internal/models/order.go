package models

import "time"

// OrderStatusInfo - состояние ордера в шлюзе
//
// Ожидающие ордера живут в keyed map Execution Engine;
// терминальные переносятся в append-only историю.
type OrderStatusInfo struct {
	OrderID      int64      `json:"order_id"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"` // buy, sell
	Quantity     int64      `json:"quantity"`
	FilledQty    int64      `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty"`
}

// Статусы ордера
const (
	OrderStatusPending         = "PENDING"
	OrderStatusFilled          = "FILLED"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusCancelled       = "CANCELLED"
)

// IsTerminal возвращает true для финальных статусов
//
// Терминальный ордер удаляется из pending map и попадает в историю.
func (o *OrderStatusInfo) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Side constants для ордеров
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)
