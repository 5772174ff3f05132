package engine

import (
	"context"
	"time"

	"patterntrader/internal/gateway"
	"patterntrader/internal/models"
	"patterntrader/internal/strategy"
	"patterntrader/pkg/utils"
)

// setup.go - построение, валидация и исполнение торгового сетапа
//
// Размер позиции: quantity = floor((accountValue*riskPct)/riskPerShare),
// затем срез по экспозиции: quantity*entry <= (accountValue*maxExposurePct)
// / maxConcurrentTrades. Сетап отбрасывается без ордера, если цена, стоп
// или количество невалидны, либо стоп стоит не с той стороны входа.

// tryOpen строит сетап первого входа и размещает ордер
func (e *Engine) tryOpen(ev PatternEvent, st models.StrategyState, dec strategy.EntryDecision, stop float64) {
	setup, ok := e.buildSetup(ev, dec.Price, stop)
	if !ok {
		return
	}

	score := e.resolveScore(ev)
	if !directionsAgree(setup.Direction, score) {
		abstainsTotal.Inc()
		e.logger.Info("direction disagreement, abstaining",
			utils.Strategy(ev.Strategy),
			utils.Symbol(ev.Symbol),
			utils.String("declared", string(setup.Direction)),
			utils.String("bias", string(score.Bias)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breakerOpenLocked(ev.Timestamp) {
		e.logger.Debug("circuit breaker open, entry suppressed",
			utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol))
		return
	}

	if len(e.positions) >= e.cfg.MaxConcurrentTrades {
		victim, ok := e.relocationVictimLocked()
		if !ok {
			e.logger.Info("concurrency cap reached, setup dropped",
				utils.Strategy(ev.Strategy),
				utils.Symbol(ev.Symbol),
				utils.Int("open_positions", len(e.positions)))
			return
		}
		vp := e.positions[victim]
		price := e.exitPriceLocked(vp)
		e.closePositionLocked(victim, price, models.ExitReasonRelocation, ev.Timestamp)
		relocationsTotal.Inc()
		e.notify(models.Notification{
			Type:      models.NotificationTypeRelocation,
			Severity:  models.SeverityInfo,
			Strategy:  vp.Strategy,
			Symbol:    vp.Symbol,
			Timestamp: ev.Timestamp,
			Message:   "position preempted by a stronger setup",
		})
	}

	res, placed := e.placeOrderLocked(ev, setup.Direction, entrySide(setup.Direction), setup.Quantity)
	if !placed {
		return
	}

	entry := setup.EntryPrice
	if res.AvgFillPrice > 0 {
		entry = res.AvgFillPrice
	}
	rps := utils.RiskPerShare(entry, setup.StopLoss)

	pos := &models.OpenPosition{
		Symbol:          ev.Symbol,
		Strategy:        ev.Strategy,
		Direction:       setup.Direction,
		EntryPrice:      entry,
		StopLoss:        setup.StopLoss,
		InitialStopLoss: setup.StopLoss,
		Quantity:        setup.Quantity,
		OpenedAt:        ev.Timestamp,
		RiskPerShare:    rps,
		RiskDollars:     rps * float64(setup.Quantity),
		LastPrice:       entry,
		BestPrice:       entry,
	}
	e.positions[posKey(ev.Strategy, ev.Symbol)] = pos
	openPositionsGauge.Set(float64(len(e.positions)))
	tradesOpenedTotal.Inc()

	e.logger.Info("position opened",
		utils.Strategy(ev.Strategy),
		utils.Symbol(ev.Symbol),
		utils.Side(string(setup.Direction)),
		utils.Price(entry),
		utils.Quantity(setup.Quantity),
		utils.Float64("stop", setup.StopLoss),
		utils.OrderID(res.OrderID))

	e.notify(models.Notification{
		Type:      models.NotificationTypeOpen,
		Severity:  models.SeverityInfo,
		Strategy:  ev.Strategy,
		Symbol:    ev.Symbol,
		Timestamp: ev.Timestamp,
		Message:   "position opened",
		Meta: map[string]interface{}{
			"price":    entry,
			"quantity": setup.Quantity,
			"stop":     setup.StopLoss,
		},
	})

	upd := models.StateUpdate{
		Entry1Price: models.Float64Ptr(entry),
		StopLoss:    models.Float64Ptr(setup.StopLoss),
	}
	if st.Custom != nil {
		upd.Custom = st.Custom
	}
	if _, err := e.store.Update(ev.Strategy, ev.Symbol, upd); err != nil {
		e.logger.Warn("state update after open failed", utils.Err(err))
	}
}

// addSecondEntry добирает позицию по сигналу второго входа:
// средняя цена и риск позиции пересчитываются, стоп переставляется,
// автомат двигается в entry2
func (e *Engine) addSecondEntry(ev PatternEvent, st models.StrategyState, dec strategy.EntryDecision, stop float64) {
	setup, ok := e.buildSetup(ev, dec.Price, stop)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breakerOpenLocked(ev.Timestamp) {
		e.logger.Debug("circuit breaker open, second entry suppressed",
			utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol))
		return
	}

	key := posKey(ev.Strategy, ev.Symbol)
	pos := e.positions[key]
	if pos == nil {
		return
	}

	res, placed := e.placeOrderLocked(ev, setup.Direction, entrySide(setup.Direction), setup.Quantity)
	if !placed {
		return
	}

	fill := setup.EntryPrice
	if res.AvgFillPrice > 0 {
		fill = res.AvgFillPrice
	}

	total := pos.Quantity + setup.Quantity
	pos.EntryPrice = (pos.EntryPrice*float64(pos.Quantity) + fill*float64(setup.Quantity)) / float64(total)
	pos.Quantity = total
	pos.StopLoss = stop
	pos.RiskPerShare = utils.RiskPerShare(pos.EntryPrice, stop)
	pos.RiskDollars = pos.RiskPerShare * float64(total)

	e.logger.Info("second entry added",
		utils.Strategy(ev.Strategy),
		utils.Symbol(ev.Symbol),
		utils.Price(fill),
		utils.Quantity(setup.Quantity),
		utils.Float64("avg_entry", pos.EntryPrice),
		utils.OrderID(res.OrderID))

	if _, err := e.store.Update(ev.Strategy, ev.Symbol, models.StateUpdate{
		Phase:       models.PhasePtr(models.PhaseEntry2),
		Entry2Price: models.Float64Ptr(fill),
		StopLoss:    models.Float64Ptr(stop),
	}); err != nil {
		e.logger.Warn("state update after second entry failed", utils.Err(err))
	}
}

// buildSetup валидирует вход и считает размер позиции под риск-лимиты.
// Невалидный вход отбрасывается с предупреждением, ордер не размещается.
func (e *Engine) buildSetup(ev PatternEvent, price, stop float64) (models.TradeSetup, bool) {
	dir := ev.Direction
	if dir != models.DirectionLong && dir != models.DirectionShort {
		e.logger.Warn("setup without direction dropped",
			utils.Strategy(ev.Strategy), utils.Symbol(ev.Symbol))
		return models.TradeSetup{}, false
	}

	if !validPrice(price) || !validPrice(stop) {
		invalidSetupsTotal.Inc()
		e.logger.Warn("setup with invalid price or stop dropped",
			utils.Strategy(ev.Strategy),
			utils.Symbol(ev.Symbol),
			utils.Price(price),
			utils.Float64("stop", stop))
		return models.TradeSetup{}, false
	}

	// Стоп обязан стоять с защищающей стороны входа
	if (dir == models.DirectionLong && stop >= price) ||
		(dir == models.DirectionShort && stop <= price) {
		invalidSetupsTotal.Inc()
		e.logger.Warn("stop on wrong side of entry, setup dropped",
			utils.Strategy(ev.Strategy),
			utils.Symbol(ev.Symbol),
			utils.Side(string(dir)),
			utils.Price(price),
			utils.Float64("stop", stop))
		return models.TradeSetup{}, false
	}

	rps := utils.RiskPerShare(price, stop)
	qty := utils.MinQuantity(
		utils.RiskQuantity(e.cfg.AccountValue, e.cfg.RiskPerTradePct, rps),
		utils.ExposureCapQuantity(e.cfg.AccountValue, e.cfg.MaxExposurePct, e.cfg.MaxConcurrentTrades, price),
	)
	if err := utils.ValidateQuantity(qty); err != nil {
		invalidSetupsTotal.Inc()
		e.logger.Warn("setup quantity rejected, dropped",
			utils.Strategy(ev.Strategy),
			utils.Symbol(ev.Symbol),
			utils.Price(price),
			utils.Float64("risk_per_share", rps),
			utils.Err(err))
		return models.TradeSetup{}, false
	}

	return models.TradeSetup{
		Symbol:       ev.Symbol,
		Strategy:     ev.Strategy,
		Direction:    dir,
		EntryPrice:   price,
		StopLoss:     stop,
		RiskPerShare: rps,
		RiskDollars:  rps * float64(qty),
		Quantity:     qty,
	}, true
}

// relocationVictimLocked выбирает позицию для вытеснения: прибыльную,
// достигшую порогового R, с минимальной внешней оценкой. Позиция ниже
// порога не вытесняется даже при отсутствии других кандидатов.
func (e *Engine) relocationVictimLocked() (string, bool) {
	bestKey := ""
	bestScore := 0.0
	found := false

	for key, pos := range e.positions {
		if pos.UnrealizedPnl(pos.LastPrice) <= 0 {
			continue
		}
		if pos.CurrentR(pos.LastPrice) < e.cfg.RelocationThresholdR {
			continue
		}

		sc := 0.0
		if e.scores != nil {
			if latest, ok := e.scores.Latest(pos.Symbol); ok {
				sc = latest.Value
			}
		}
		if !found || sc < bestScore {
			bestKey = key
			bestScore = sc
			found = true
		}
	}
	return bestKey, found
}

// placeOrderLocked размещает ордер через шлюз. Ошибка размещения
// считается в circuit breaker и наружу не распространяется.
func (e *Engine) placeOrderLocked(ev PatternEvent, dir models.Direction, side string, qty int64) (gateway.OrderResult, bool) {
	timeout := e.cfg.OrderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	res, err := e.gw.PlaceOrder(ctx, gateway.OrderRequest{
		Symbol:   ev.Symbol,
		Side:     side,
		Quantity: qty,
	})
	orderLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		e.orderFailureLocked(ev, err)
		return gateway.OrderResult{}, false
	}

	e.consecutiveFailures = 0
	e.recordOrderLocked(models.OrderStatusInfo{
		OrderID:      res.OrderID,
		Symbol:       ev.Symbol,
		Side:         side,
		Quantity:     qty,
		FilledQty:    res.FilledQty,
		AvgFillPrice: res.AvgFillPrice,
		Status:       orderStatusOrDefault(res.Status),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	return res, true
}

func orderStatusOrDefault(status string) string {
	if status == "" {
		return models.OrderStatusPending
	}
	return status
}

func entrySide(dir models.Direction) string {
	if dir == models.DirectionShort {
		return models.SideSell
	}
	return models.SideBuy
}

func exitSide(dir models.Direction) string {
	if dir == models.DirectionShort {
		return models.SideBuy
	}
	return models.SideSell
}

func (e *Engine) notify(n models.Notification) {
	if e.notifier == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	e.notifier.Notify(n)
}
