package engine

import (
	"context"
	"time"

	"patterntrader/internal/gateway"
	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// position.go - сопровождение открытых позиций
//
// Трейлинг-стоп: с момента достижения прибыли TrailingActivationR
// стоп держится на расстоянии TrailingDistanceR*riskPerShare от
// лучшей цены. Стоп двигается только в сторону снижения риска
// (вверх для long, вниз для short) и никогда за цену входа.

// UpdatePrice обрабатывает обновление цены символа: трейлинг-стопы,
// срабатывание стопов, последняя известная цена для fallback-цепочки
func (e *Engine) UpdatePrice(symbol string, price float64, ts time.Time) {
	defer func() {
		if r := recover(); r != nil {
			eventPanicsTotal.Inc()
			e.logger.Error("panic in price update handler",
				utils.Symbol(symbol), utils.Any("panic", r))
		}
	}()

	if !validPrice(price) {
		e.logger.Warn("invalid price update dropped",
			utils.Symbol(symbol), utils.Price(price))
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	type stopped struct {
		strategy string
		symbol   string
	}
	var triggered []stopped

	e.mu.Lock()
	e.lastPrices[symbol] = price

	for key, pos := range e.positions {
		if pos.Symbol != symbol {
			continue
		}
		pos.LastPrice = price

		if pos.Direction == models.DirectionLong && price > pos.BestPrice {
			pos.BestPrice = price
		}
		if pos.Direction == models.DirectionShort && price < pos.BestPrice {
			pos.BestPrice = price
		}

		e.trailStopLocked(pos)

		if stopHit(pos, price) {
			e.closePositionLocked(key, price, models.ExitReasonStopLoss, ts)
			triggered = append(triggered, stopped{pos.Strategy, pos.Symbol})
			e.notify(models.Notification{
				Type:      models.NotificationTypeSL,
				Severity:  models.SeverityWarn,
				Strategy:  pos.Strategy,
				Symbol:    pos.Symbol,
				Timestamp: ts,
				Message:   "stop loss triggered",
				Meta:      map[string]interface{}{"price": price},
			})
		}
	}
	e.mu.Unlock()

	// Автомат узнает об исчезнувшей позиции на следующем событии
	// паттерна и принудительно сбросится; здесь только лог.
	for _, tr := range triggered {
		e.logger.Info("position closed by stop",
			utils.Strategy(tr.strategy), utils.Symbol(tr.symbol), utils.Price(price))
	}
}

// trailStopLocked подтягивает стоп за лучшей ценой
func (e *Engine) trailStopLocked(pos *models.OpenPosition) {
	if pos.RiskDollars <= 0 {
		return
	}
	if pos.CurrentR(pos.BestPrice) < e.cfg.TrailingActivationR {
		return
	}

	dist := e.cfg.TrailingDistanceR * pos.RiskPerShare
	if pos.Direction == models.DirectionLong {
		candidate := pos.BestPrice - dist
		if candidate < pos.EntryPrice {
			candidate = pos.EntryPrice
		}
		if candidate > pos.StopLoss {
			pos.StopLoss = candidate
			trailingMovesTotal.Inc()
		}
		return
	}

	candidate := pos.BestPrice + dist
	if candidate > pos.EntryPrice {
		candidate = pos.EntryPrice
	}
	if candidate < pos.StopLoss {
		pos.StopLoss = candidate
		trailingMovesTotal.Inc()
	}
}

func stopHit(pos *models.OpenPosition, price float64) bool {
	if pos.Direction == models.DirectionLong {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

// exitPriceLocked выбирает цену закрытия: последняя рыночная цена
// символа, иначе последняя отслеженная цена позиции, иначе цена входа
func (e *Engine) exitPriceLocked(pos *models.OpenPosition) float64 {
	if latest, ok := e.lastPrices[pos.Symbol]; ok && validPrice(latest) {
		return latest
	}
	if validPrice(pos.LastPrice) {
		return pos.LastPrice
	}
	return pos.EntryPrice
}

// closePositionLocked закрывает позицию: закрывающий ордер, снимок
// сделки, дневной P&L, пик капитала. Сбой закрывающего ордера
// логируется и считается в circuit breaker, но учёт не откладывает.
func (e *Engine) closePositionLocked(key string, price float64, reason string, now time.Time) *models.ClosedTrade {
	pos := e.positions[key]
	if pos == nil {
		return nil
	}

	timeout := e.cfg.OrderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	res, err := e.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     exitSide(pos.Direction),
		Quantity: pos.Quantity,
	})
	cancel()

	if err != nil {
		orderFailuresTotal.Inc()
		e.consecutiveFailures++
		e.logger.Error("closing order failed, position closed at tracked price",
			utils.Strategy(pos.Strategy),
			utils.Symbol(pos.Symbol),
			utils.Err(err))
	} else {
		if res.AvgFillPrice > 0 {
			price = res.AvgFillPrice
		}
		e.recordOrderLocked(models.OrderStatusInfo{
			OrderID:      res.OrderID,
			Symbol:       pos.Symbol,
			Side:         exitSide(pos.Direction),
			Quantity:     pos.Quantity,
			FilledQty:    res.FilledQty,
			AvgFillPrice: res.AvgFillPrice,
			Status:       orderStatusOrDefault(res.Status),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	trade := models.NewClosedTrade(pos, price, reason, now)
	delete(e.positions, key)
	e.closedTrades = append(e.closedTrades, *trade)

	e.dailyRealized += trade.Pnl
	e.totalRealized += trade.Pnl
	if equity := e.cfg.AccountValue + e.totalRealized; equity > e.peakEquity {
		e.peakEquity = equity
	}

	openPositionsGauge.Set(float64(len(e.positions)))
	tradesClosedTotal.WithLabelValues(reason).Inc()
	dailyRealizedGauge.Set(e.dailyRealized)

	e.logger.Info("position closed",
		utils.Strategy(pos.Strategy),
		utils.Symbol(pos.Symbol),
		utils.Price(price),
		utils.PNL(trade.Pnl),
		utils.RMultiple(trade.RMultiple),
		utils.String("reason", reason))

	if e.recorder != nil {
		e.recorder.RecordTradeAsync(trade)
	}
	e.notify(models.Notification{
		Type:      models.NotificationTypeClose,
		Severity:  models.SeverityInfo,
		Strategy:  pos.Strategy,
		Symbol:    pos.Symbol,
		Timestamp: now,
		Message:   "position closed",
		Meta: map[string]interface{}{
			"price":  price,
			"pnl":    trade.Pnl,
			"reason": reason,
		},
	})
	return trade
}

// ForceExitAll закрывает все открытые позиции независимо от фазы.
// Цена: последняя рыночная, затем отслеженная, затем цена входа.
func (e *Engine) ForceExitAll(now time.Time) int {
	e.mu.Lock()
	keys := make([]string, 0, len(e.positions))
	for key := range e.positions {
		keys = append(keys, key)
	}

	closed := 0
	for _, key := range keys {
		pos := e.positions[key]
		if pos == nil {
			continue
		}
		price := e.exitPriceLocked(pos)
		if e.closePositionLocked(key, price, models.ExitReasonForced, now) != nil {
			closed++
			forcedExitsTotal.Inc()
			e.notify(models.Notification{
				Type:      models.NotificationTypeForcedExit,
				Severity:  models.SeverityWarn,
				Strategy:  pos.Strategy,
				Symbol:    pos.Symbol,
				Timestamp: now,
				Message:   "forced end-of-day exit",
			})
		}
	}
	e.mu.Unlock()

	if closed > 0 {
		e.logger.Info("forced exit completed", utils.Int("closed", closed))
	}
	return closed
}

// maybeForceExit выполняет принудительное закрытие один раз в торговый
// день после настроенного времени отсечки
func (e *Engine) maybeForceExit(now time.Time) {
	if e.cfg.ForceExitTime == "" {
		return
	}
	cutoff, err := time.ParseInLocation("15:04", e.cfg.ForceExitTime, e.loc)
	if err != nil {
		return
	}

	local := now.In(e.loc)
	day := models.TradingDay(now, e.loc)
	cutoffToday := time.Date(local.Year(), local.Month(), local.Day(),
		cutoff.Hour(), cutoff.Minute(), 0, 0, e.loc)

	if local.Before(cutoffToday) {
		return
	}

	e.mu.Lock()
	if e.forcedDay == day || len(e.positions) == 0 {
		e.mu.Unlock()
		return
	}
	e.forcedDay = day
	e.mu.Unlock()

	e.ForceExitAll(now)
}

// Run крутит служебные таймеры движка: принудительное закрытие
// в конце дня и сборку устаревших состояний. Блокируется до отмены
// контекста.
func (e *Engine) Run(ctx context.Context) {
	forceTicker := time.NewTicker(15 * time.Second)
	cleanupTicker := time.NewTicker(time.Hour)
	defer forceTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-forceTicker.C:
			e.maybeForceExit(now)
		case <-cleanupTicker.C:
			e.store.Cleanup(time.Hour)
		}
	}
}
