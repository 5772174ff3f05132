package utils

import "math"

// math.go - расчётные функции риск-менеджмента и позиционирования
//
// Все функции чистые: без состояния, без логирования.
// Денежные величины - float64, количества акций - int64.

const float64Epsilon = 1e-9

// RiskQuantity рассчитывает размер позиции по фиксированному риску на сделку.
//
// quantity = floor((accountValue * riskPct) / riskPerShare)
//
// riskPct - доля капитала (0.01 = 1%). Возвращает 0 если риск на акцию
// неположителен или результат меньше одной акции.
func RiskQuantity(accountValue, riskPct, riskPerShare float64) int64 {
	if accountValue <= 0 || riskPct <= 0 || riskPerShare <= float64Epsilon {
		return 0
	}
	qty := math.Floor((accountValue * riskPct) / riskPerShare)
	if qty < 1 {
		return 0
	}
	return int64(qty)
}

// ExposureCapQuantity рассчитывает максимальный размер позиции по лимиту
// экспозиции на один слот.
//
// capDollars = (accountValue * maxExposurePct) / maxConcurrent
// maxQty     = floor(capDollars / entryPrice)
func ExposureCapQuantity(accountValue, maxExposurePct float64, maxConcurrent int, entryPrice float64) int64 {
	if accountValue <= 0 || maxExposurePct <= 0 || maxConcurrent <= 0 || entryPrice <= float64Epsilon {
		return 0
	}
	capDollars := (accountValue * maxExposurePct) / float64(maxConcurrent)
	qty := math.Floor(capDollars / entryPrice)
	if qty < 1 {
		return 0
	}
	return int64(qty)
}

// MinQuantity возвращает меньшее из двух количеств
func MinQuantity(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// RiskPerShare - расстояние от входа до стопа в долларах на акцию
func RiskPerShare(entryPrice, stopLoss float64) float64 {
	return math.Abs(entryPrice - stopLoss)
}

// RMultipleFrom рассчитывает результат сделки в единицах изначального риска.
//
// directionSign: +1 для long, -1 для short. Возвращает 0 при нулевом риске.
func RMultipleFrom(entryPrice, price, riskPerShare float64, directionSign int) float64 {
	if riskPerShare <= float64Epsilon {
		return 0
	}
	return (price - entryPrice) * float64(directionSign) / riskPerShare
}

// RoundToTick округляет цену вниз к ближайшему шагу цены.
// Деление цены на шаг даёт значения чуть ниже целого
// (100.1/0.05 = 2001.999...), поэтому перед floor добавляется эпсилон:
// выровненная цена не должна проваливаться на тик вниз.
func RoundToTick(price, tick float64) float64 {
	if tick <= float64Epsilon {
		return price
	}
	return math.Floor(price/tick+float64Epsilon) * tick
}

// RoundToTickNearest округляет цену к ближайшему шагу цены
func RoundToTickNearest(price, tick float64) float64 {
	if tick <= float64Epsilon {
		return price
	}
	return math.Round(price/tick) * tick
}

// ClampFloat ограничивает значение интервалом [min, max]
func ClampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// PercentChange - изменение в процентах от base к current
func PercentChange(base, current float64) float64 {
	if math.Abs(base) <= float64Epsilon {
		return 0
	}
	return (current - base) / base * 100
}

// FloatEquals сравнивает float64 с допуском
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < float64Epsilon
}
