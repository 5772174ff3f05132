package engine

import (
	"fmt"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// risk.go - риск-управление движка
//
// Перед обработкой каждого события: сброс дневного P&L на смене
// календарного дня; пауза торговли при пробое дневного лимита убытка
// или просадки от пика капитала. Circuit breaker открывается после
// серии подряд неудачных ордеров и блокирует только новые входы.

// resetDailyLocked сбрасывает дневные счётчики на смене торгового дня
func (e *Engine) resetDailyLocked(ts time.Time) {
	day := models.TradingDay(ts, e.loc)
	if day == e.dailyDay {
		return
	}
	if e.dailyDay != "" {
		e.logger.Info("daily counters reset",
			utils.String("previous_day", e.dailyDay),
			utils.Float64("realized", e.dailyRealized))
	}
	e.dailyDay = day
	e.dailyRealized = 0
	e.pauseNotified = false
	dailyRealizedGauge.Set(0)
}

// riskPausedLocked проверяет дневной лимит убытка и просадку от пика
func (e *Engine) riskPausedLocked() (string, bool) {
	if e.cfg.DailyLossLimit > 0 && e.dailyRealized <= -e.cfg.DailyLossLimit {
		return "daily loss limit", true
	}
	if e.cfg.MaxDrawdownPct > 0 && e.peakEquity > 0 {
		equity := e.cfg.AccountValue + e.totalRealized
		if dd := (e.peakEquity - equity) / e.peakEquity; dd >= e.cfg.MaxDrawdownPct {
			return "max drawdown", true
		}
	}
	return "", false
}

// notifyRiskPauseLocked шлёт уведомление о паузе один раз в день
func (e *Engine) notifyRiskPauseLocked(reason string, ev PatternEvent) {
	if e.pauseNotified {
		return
	}
	e.pauseNotified = true
	riskPausesTotal.Inc()
	e.notify(models.Notification{
		Type:      models.NotificationTypeRiskPause,
		Severity:  models.SeverityError,
		Timestamp: ev.Timestamp,
		Message:   fmt.Sprintf("trading paused: %s", reason),
		Meta: map[string]interface{}{
			"daily_realized": e.dailyRealized,
			"equity":         e.cfg.AccountValue + e.totalRealized,
			"peak":           e.peakEquity,
		},
	})
}

// orderFailureLocked учитывает сбой ордера и открывает breaker
// при достижении порога подряд идущих неудач
func (e *Engine) orderFailureLocked(ev PatternEvent, err error) {
	orderFailuresTotal.Inc()
	e.consecutiveFailures++

	e.logger.Error("order placement failed",
		utils.Strategy(ev.Strategy),
		utils.Symbol(ev.Symbol),
		utils.Int("consecutive_failures", e.consecutiveFailures),
		utils.Err(err))

	if e.consecutiveFailures >= e.cfg.CircuitBreakerThreshold && e.breakerOpenUntil.IsZero() {
		e.breakerOpenUntil = ev.Timestamp.Add(e.cfg.CircuitBreakerCooldown)
		circuitBreakerGauge.Set(1)
		e.logger.Error("circuit breaker opened",
			utils.Int("failures", e.consecutiveFailures),
			utils.Duration("cooldown", e.cfg.CircuitBreakerCooldown))
		e.notify(models.Notification{
			Type:      models.NotificationTypeCircuitBreaker,
			Severity:  models.SeverityError,
			Timestamp: ev.Timestamp,
			Message: fmt.Sprintf("circuit breaker opened after consecutive order failures, cooldown %s",
				utils.FormatDuration(e.cfg.CircuitBreakerCooldown)),
			Meta: map[string]interface{}{
				"failures": e.consecutiveFailures,
				"until":    e.breakerOpenUntil,
			},
		})
	}
}

// breakerOpenLocked проверяет breaker и автоматически сбрасывает его
// по истечении cooldown
func (e *Engine) breakerOpenLocked(now time.Time) bool {
	if e.breakerOpenUntil.IsZero() {
		return false
	}
	if now.Before(e.breakerOpenUntil) {
		return true
	}

	// Cooldown истёк - автоматический сброс
	e.breakerOpenUntil = time.Time{}
	e.consecutiveFailures = 0
	circuitBreakerGauge.Set(0)
	e.logger.Info("circuit breaker reset")
	e.notify(models.Notification{
		Type:      models.NotificationTypeCircuitBreaker,
		Severity:  models.SeverityInfo,
		Timestamp: now,
		Message:   "circuit breaker reset, entries resumed",
	})
	return false
}
