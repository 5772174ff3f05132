package scoring

import (
	"math"

	"patterntrader/internal/models"
)

// features.go - извлечение признаков ценового действия из баров
//
// Правила скоринга не анализируют бары напрямую: сначала окно баров
// сворачивается в набор признаков, затем правила сопоставляются с ними.

// candlePattern - распознанная свечная формация последнего бара
type candlePattern string

const (
	candleNone         candlePattern = ""
	candleBullEngulf   candlePattern = "BULL_ENGULF"
	candleBearEngulf   candlePattern = "BEAR_ENGULF"
	candleHammer       candlePattern = "HAMMER"
	candleShootingStar candlePattern = "SHOOTING_STAR"
)

// structureKind - структура рынка в окне
type structureKind string

const (
	structureUptrend   structureKind = "UPTREND"
	structureDowntrend structureKind = "DOWNTREND"
	structureSideways  structureKind = "SIDEWAYS"
)

// features - свёртка окна баров для сопоставления с правилами
type features struct {
	structure       structureKind
	netChangePct    float64 // изменение закрытия за окно, %
	rangePct        float64 // размах окна относительно средней цены, %
	breakoutUp      bool    // закрытие выше максимума предыдущей части окна
	breakoutDown    bool
	volumeConfirm   bool // объём последнего бара выше среднего по окну
	failedBreakout  bool // предыдущий бар пробил вверх, последний вернулся внутрь
	failedBreakdown bool
	gapUp           bool // разрыв открытия последнего бара вверх
	gapDown         bool
	gapFollow       bool // разрыв с продолжением (закрытие в сторону разрыва)
	gapFilled       bool // разрыв закрыт внутри того же бара
	candle          candlePattern
}

// минимальная доля разрыва от цены, чтобы считать его значимым
const gapThresholdPct = 0.1

// extractFeatures сворачивает окно баров в признаки.
// Окно короче трёх баров вырождено, ok=false.
func extractFeatures(bars []models.IntradayBar) (features, bool) {
	if len(bars) < 3 {
		return features{}, false
	}

	var f features
	first := bars[0]
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]

	avgPrice := (first.Close + last.Close) / 2
	if avgPrice <= 0 {
		return features{}, false
	}

	f.netChangePct = (last.Close - first.Close) / first.Close * 100

	hi, lo := first.High, first.Low
	var volSum float64
	for _, b := range bars {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
		volSum += b.Volume
	}
	f.rangePct = (hi - lo) / avgPrice * 100

	f.structure = detectStructure(bars)

	// Пробой: закрытие последнего бара за экстремумами окна без него
	priorHi, priorLo := windowExtrema(bars[:len(bars)-1])
	f.breakoutUp = last.Close > priorHi
	f.breakoutDown = last.Close < priorLo

	avgVol := volSum / float64(len(bars))
	f.volumeConfirm = last.Volume > avgVol

	// Ложный пробой: предпоследний бар закрылся за границей,
	// последний вернулся внутрь
	if len(bars) >= 4 {
		baseHi, baseLo := windowExtrema(bars[:len(bars)-2])
		if prev.Close > baseHi && last.Close < baseHi {
			f.failedBreakout = true
		}
		if prev.Close < baseLo && last.Close > baseLo {
			f.failedBreakdown = true
		}
	}

	gapPct := (last.Open - prev.Close) / prev.Close * 100
	if gapPct > gapThresholdPct {
		f.gapUp = true
		f.gapFollow = last.Close > last.Open
		f.gapFilled = last.Low <= prev.Close
	} else if gapPct < -gapThresholdPct {
		f.gapDown = true
		f.gapFollow = last.Close < last.Open
		f.gapFilled = last.High >= prev.Close
	}

	f.candle = detectCandle(prev, last)
	return f, true
}

// detectStructure классифицирует окно по положению закрытия в размахе
// и знаку чистого изменения
func detectStructure(bars []models.IntradayBar) structureKind {
	first := bars[0]
	last := bars[len(bars)-1]
	hi, lo := windowExtrema(bars)
	if hi <= lo {
		return structureSideways
	}

	pos := (last.Close - lo) / (hi - lo)
	change := last.Close - first.Close

	switch {
	case change > 0 && pos >= 0.7:
		return structureUptrend
	case change < 0 && pos <= 0.3:
		return structureDowntrend
	default:
		return structureSideways
	}
}

// detectCandle распознаёт свечную формацию по двум последним барам
func detectCandle(prev, last models.IntradayBar) candlePattern {
	body := last.Close - last.Open
	prevBody := prev.Close - prev.Open
	fullRange := last.High - last.Low
	if fullRange <= 0 {
		return candleNone
	}

	// Поглощение: тело последнего бара накрывает тело предыдущего
	if body > 0 && prevBody < 0 && last.Close >= prev.Open && last.Open <= prev.Close {
		return candleBullEngulf
	}
	if body < 0 && prevBody > 0 && last.Close <= prev.Open && last.Open >= prev.Close {
		return candleBearEngulf
	}

	absBody := math.Abs(body)
	upperWick := last.High - math.Max(last.Open, last.Close)
	lowerWick := math.Min(last.Open, last.Close) - last.Low

	// Молот: длинная нижняя тень, маленькое тело у вершины
	if absBody > 0 && lowerWick >= 2*absBody && upperWick <= absBody {
		return candleHammer
	}
	// Падающая звезда: зеркально
	if absBody > 0 && upperWick >= 2*absBody && lowerWick <= absBody {
		return candleShootingStar
	}
	return candleNone
}

func windowExtrema(bars []models.IntradayBar) (hi, lo float64) {
	hi = bars[0].High
	lo = bars[0].Low
	for _, b := range bars[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	return hi, lo
}
