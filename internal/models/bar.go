package models

import (
	"time"

	"patterntrader/pkg/utils"
)

// Timeframe - таймфрейм агрегации баров
type Timeframe string

// Поддерживаемые таймфреймы
const (
	Timeframe1s Timeframe = "1s"
	Timeframe5s Timeframe = "5s"
	Timeframe1m Timeframe = "1m"
)

// AllTimeframes - все таймфреймы, агрегируемые хабом (в порядке возрастания)
var AllTimeframes = []Timeframe{Timeframe1s, Timeframe5s, Timeframe1m}

// Duration возвращает длительность таймфрейма
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1s:
		return time.Second
	case Timeframe5s:
		return 5 * time.Second
	case Timeframe1m:
		return time.Minute
	default:
		return 0
	}
}

// Valid проверяет что таймфрейм поддерживается
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// BucketStart возвращает начало бакета для тика по времени ts:
// [floor(ts/t)*t, floor(ts/t)*t + t)
func (tf Timeframe) BucketStart(ts time.Time) time.Time {
	return ts.Truncate(tf.Duration())
}

// IntradayBar - OHLCV бар внутри торгового дня
//
// Бары хранятся как хронологически упорядоченная последовательность
// на символ, в пределах текущего торгового дня.
type IntradayBar struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Timeframe Timeframe `json:"timeframe" db:"timeframe"`
	StartTs   time.Time `json:"start_ts" db:"start_ts"` // включительно
	EndTs     time.Time `json:"end_ts" db:"end_ts"`     // исключительно
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Tick - одно ценовое обновление по символу
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// TradingDay возвращает календарный торговый день для момента времени
// в локальном календаре биржи (формат YYYY-MM-DD)
func TradingDay(ts time.Time, loc *time.Location) string {
	return utils.TradingDayKey(ts, loc)
}
