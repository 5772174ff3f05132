package strategy

import (
	"patterntrader/internal/models"
)

// breakout.go - эталонная стратегия пробоя диапазона с добором на откате
//
// Первый вход: закрытие бара выше максимума накопленного диапазона
// (для short - ниже минимума). Второй вход: после отката, удержавшего
// уровень пробоя, закрытие за экстремумом бара первого входа.
// Выход: закрытие обратно внутри диапазона.

// BreakoutName - имя стратегии в реестре
const BreakoutName = "breakout_pullback"

// BreakoutState - приватное состояние стратегии пробоя
type BreakoutState struct {
	RangeHigh  float64 // верхняя граница накопленного диапазона
	RangeLow   float64 // нижняя граница
	EntryBarHi float64 // экстремумы бара первого входа
	EntryBarLo float64
	PulledBack bool // наблюдался ли откат после первого входа
}

// Kind возвращает имя стратегии-владельца
func (s *BreakoutState) Kind() string { return BreakoutName }

// Breakout - стратегия пробоя диапазона
type Breakout struct {
	direction models.Direction
	timeframe models.Timeframe
	lookback  int // баров в накопленном диапазоне
}

// NewBreakout создаёт стратегию пробоя.
// lookback < 3 поднимается до 3: диапазон из меньшего числа баров вырожден.
func NewBreakout(direction models.Direction, tf models.Timeframe, lookback int) *Breakout {
	if lookback < 3 {
		lookback = 3
	}
	return &Breakout{direction: direction, timeframe: tf, lookback: lookback}
}

// Name - имя стратегии
func (b *Breakout) Name() string { return BreakoutName }

// Detect находит сформированный диапазон накопления: последнее
// закрытие остаётся внутри экстремумов lookback предыдущих баров.
// Пробой самого диапазона отрабатывает уже EntryFirst.
func (b *Breakout) Detect(candles []models.IntradayBar) Detection {
	det := Detection{Direction: b.direction}
	if b.direction != models.DirectionShort {
		det.Direction = models.DirectionLong
	}

	if len(candles) < b.lookback+1 {
		return det
	}

	last := candles[len(candles)-1]
	hi, lo := rangeExtrema(candles[len(candles)-1-b.lookback : len(candles)-1])
	if hi <= lo {
		return det
	}
	if last.Close >= lo && last.Close <= hi {
		det.Detected = true
		det.Pattern = &BreakoutState{RangeHigh: hi, RangeLow: lo}
	}
	return det
}

// Timeframe - рабочий таймфрейм
func (b *Breakout) Timeframe() models.Timeframe { return b.timeframe }

// EntryFirst проверяет пробой накопленного диапазона закрытием
func (b *Breakout) EntryFirst(candles []models.IntradayBar, _ models.StrategyState) EntryDecision {
	if len(candles) < b.lookback+1 {
		return EntryDecision{}
	}

	last := candles[len(candles)-1]
	rangeBars := candles[len(candles)-1-b.lookback : len(candles)-1]

	hi, lo := rangeExtrema(rangeBars)

	switch b.direction {
	case models.DirectionShort:
		if last.Close < lo {
			return EntryDecision{
				Enter: true,
				Price: last.Close,
				Meta: &BreakoutState{
					RangeHigh:  hi,
					RangeLow:   lo,
					EntryBarHi: last.High,
					EntryBarLo: last.Low,
				},
			}
		}
	default:
		if last.Close > hi {
			return EntryDecision{
				Enter: true,
				Price: last.Close,
				Meta: &BreakoutState{
					RangeHigh:  hi,
					RangeLow:   lo,
					EntryBarHi: last.High,
					EntryBarLo: last.Low,
				},
			}
		}
	}
	return EntryDecision{}
}

// StopsForEntry1 ставит стоп за противоположную границу бара входа
func (b *Breakout) StopsForEntry1(candles []models.IntradayBar, st models.StrategyState) StopDecision {
	bs, ok := st.Custom.(*BreakoutState)
	if !ok || len(candles) == 0 {
		return StopDecision{}
	}
	if b.direction == models.DirectionShort {
		return StopDecision{Initial: bs.EntryBarHi}
	}
	return StopDecision{Initial: bs.EntryBarLo}
}

// ExitFirst закрывает разведочный вход при возврате внутрь диапазона
func (b *Breakout) ExitFirst(candles []models.IntradayBar, st models.StrategyState) ExitDecision {
	return b.exitInsideRange(candles, st)
}

// EntrySecond добирает после отката, удержавшего уровень пробоя
func (b *Breakout) EntrySecond(candles []models.IntradayBar, st models.StrategyState) EntryDecision {
	bs, ok := st.Custom.(*BreakoutState)
	if !ok || len(candles) == 0 {
		return EntryDecision{}
	}

	last := candles[len(candles)-1]

	if b.direction == models.DirectionShort {
		// Откат: бар с максимумом выше минимума бара входа, но закрытие ниже границы
		if !bs.PulledBack {
			if last.High > bs.EntryBarLo && last.Close < bs.RangeLow {
				bs.PulledBack = true
				return EntryDecision{Meta: bs}
			}
			return EntryDecision{}
		}
		if last.Close < bs.EntryBarLo {
			return EntryDecision{Enter: true, Price: last.Close, Meta: bs}
		}
		return EntryDecision{}
	}

	if !bs.PulledBack {
		if last.Low < bs.EntryBarHi && last.Close > bs.RangeHigh {
			bs.PulledBack = true
			return EntryDecision{Meta: bs}
		}
		return EntryDecision{}
	}
	if last.Close > bs.EntryBarHi {
		return EntryDecision{Enter: true, Price: last.Close, Meta: bs}
	}
	return EntryDecision{}
}

// StopsForEntry2 ставит стоп за экстремум отката (уровень пробоя)
func (b *Breakout) StopsForEntry2(_ []models.IntradayBar, st models.StrategyState) StopDecision {
	bs, ok := st.Custom.(*BreakoutState)
	if !ok {
		return StopDecision{}
	}
	if b.direction == models.DirectionShort {
		return StopDecision{Initial: bs.RangeLow}
	}
	return StopDecision{Initial: bs.RangeHigh}
}

// ExitSecond закрывает полную позицию при возврате внутрь диапазона
func (b *Breakout) ExitSecond(candles []models.IntradayBar, st models.StrategyState) ExitDecision {
	return b.exitInsideRange(candles, st)
}

func (b *Breakout) exitInsideRange(candles []models.IntradayBar, st models.StrategyState) ExitDecision {
	bs, ok := st.Custom.(*BreakoutState)
	if !ok || len(candles) == 0 {
		return ExitDecision{}
	}

	last := candles[len(candles)-1]
	if b.direction == models.DirectionShort {
		if last.Close > bs.RangeLow {
			return ExitDecision{Exit: true, Price: last.Close}
		}
		return ExitDecision{}
	}
	if last.Close < bs.RangeHigh {
		return ExitDecision{Exit: true, Price: last.Close}
	}
	return ExitDecision{}
}

// rangeExtrema возвращает максимум максимумов и минимум минимумов
func rangeExtrema(bars []models.IntradayBar) (hi, lo float64) {
	hi = bars[0].High
	lo = bars[0].Low
	for _, bar := range bars[1:] {
		if bar.High > hi {
			hi = bar.High
		}
		if bar.Low < lo {
			lo = bar.Low
		}
	}
	return hi, lo
}
