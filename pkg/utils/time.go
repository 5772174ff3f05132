package utils

import "time"

// time.go - работа с торговыми днями и отчётными периодами
//
// Торговый день определяется календарной датой в таймзоне биржи:
// смена дня обнаруживается сравнением ключей TradingDayKey.
// Отчётные периоды (day/week/month) используются в выборках статистики.

// PeriodType - тип отчётного периода
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodAll   PeriodType = "all"
)

// TimeRange - полуоткрытый по смыслу интервал [Start, End]
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет вхождение момента в интервал (границы включительно)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration - длительность интервала
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// ============================================================
// Торговый день
// ============================================================

// TradingDayKey возвращает ключ торгового дня для момента времени
// в заданной таймзоне (формат YYYY-MM-DD).
func TradingDayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// SameTradingDay проверяет что оба момента принадлежат одному торговому дню
func SameTradingDay(a, b time.Time, loc *time.Location) bool {
	return TradingDayKey(a, loc) == TradingDayKey(b, loc)
}

// GetDayStartFrom - начало календарного дня для момента времени
func GetDayStartFrom(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// GetDayEndFrom - конец календарного дня (23:59:59.999999999)
func GetDayEndFrom(t time.Time) time.Time {
	return GetDayStartFrom(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// NextDayStart - начало следующего календарного дня в таймзоне loc.
// Используется планировщиком сброса дневных лимитов риска.
func NextDayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// GetWeekStartFrom - понедельник 00:00 недели момента времени
func GetWeekStartFrom(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 { // воскресенье
		weekday = 7
	}
	return GetDayStartFrom(t).AddDate(0, 0, -(weekday - 1))
}

// GetMonthStartFrom - первое число месяца 00:00
func GetMonthStartFrom(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ============================================================
// Отчётные периоды
// ============================================================

// GetPeriodStart возвращает начало текущего периода (UTC).
// Для PeriodAll возвращается нулевое время.
func GetPeriodStart(period PeriodType) time.Time {
	now := time.Now().UTC()
	switch period {
	case PeriodDay:
		return GetDayStartFrom(now)
	case PeriodWeek:
		return GetWeekStartFrom(now)
	case PeriodMonth:
		return GetMonthStartFrom(now)
	default:
		return time.Time{}
	}
}

// IsInPeriod проверяет принадлежность момента текущему периоду
func IsInPeriod(t time.Time, period PeriodType) bool {
	if period == PeriodAll {
		return true
	}
	return !t.Before(GetPeriodStart(period))
}

// GetLastNDays - интервал последних n календарных дней включая сегодня
func GetLastNDays(n int) TimeRange {
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now).AddDate(0, 0, -(n - 1)),
		End:   now,
	}
}

// ============================================================
// Вспомогательные
// ============================================================

// UnixMillis - текущее время в миллисекундах unix
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis преобразует миллисекунды unix в time.Time (UTC)
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToUTC переводит время в UTC
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// FormatDuration форматирует длительность для логов и уведомлений.
// Отрицательные длительности форматируются по модулю.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Round(time.Second).String()
}
