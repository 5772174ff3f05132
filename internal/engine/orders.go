package engine

import (
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// orders.go - учёт ордеров
//
// Ожидающие ордера живут в карте по orderId; терминальные переносятся
// в append-only историю ограниченной длины.

// maxOrderHistory ограничивает длину истории ордеров в памяти
const maxOrderHistory = 1000

// recordOrderLocked регистрирует ордер: нетерминальный попадает
// в карту ожидающих, терминальный сразу в историю
func (e *Engine) recordOrderLocked(info models.OrderStatusInfo) {
	if info.IsTerminal() {
		e.appendHistoryLocked(info)
		return
	}
	e.pendingOrders[info.OrderID] = &info
}

// OnOrderStatus обрабатывает событие статуса ордера от шлюза
func (e *Engine) OnOrderStatus(info models.OrderStatusInfo) {
	defer func() {
		if r := recover(); r != nil {
			eventPanicsTotal.Inc()
			e.logger.Error("panic in order status handler", utils.Any("panic", r))
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.pendingOrders[info.OrderID]
	if ok {
		existing.Status = info.Status
		existing.FilledQty = info.FilledQty
		if info.AvgFillPrice > 0 {
			existing.AvgFillPrice = info.AvgFillPrice
		}
		if info.Error != "" {
			existing.Error = info.Error
		}
		existing.UpdatedAt = time.Now()
		if existing.Status == models.OrderStatusFilled && existing.FilledAt == nil {
			now := time.Now()
			existing.FilledAt = &now
		}
		info = *existing
	}

	e.logger.Debug("order status",
		utils.OrderID(info.OrderID),
		utils.Symbol(info.Symbol),
		utils.String("status", info.Status))

	if info.IsTerminal() {
		delete(e.pendingOrders, info.OrderID)
		e.appendHistoryLocked(info)
	} else if !ok {
		e.pendingOrders[info.OrderID] = &info
	}
}

func (e *Engine) appendHistoryLocked(info models.OrderStatusInfo) {
	e.orderHistory = append(e.orderHistory, info)
	if len(e.orderHistory) > maxOrderHistory {
		e.orderHistory = e.orderHistory[len(e.orderHistory)-maxOrderHistory:]
	}
}
