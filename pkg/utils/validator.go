package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных
//
// Используется на границах системы: HTTP API, загрузка конфигурации
// стратегий из БД, параметры подписок. Внутри ядра повторная валидация
// не выполняется.

// Сентинельные ошибки валидации
var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidStrategy  = errors.New("invalid strategy name")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPct       = errors.New("invalid percentage")
)

// Тикеры акций: буквы, цифры, точка и дефис (BRK.B, BF-B), 1-12 символов
var symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// Имена стратегий: snake_case идентификаторы
var strategyRe = regexp.MustCompile(`^[a-z][a-z0-9_]{1,47}$`)

// SupportedTimeframes - допустимые таймфреймы баров
var SupportedTimeframes = []string{"1s", "5s", "1m"}

// ============================================================
// Символы
// ============================================================

// NormalizeSymbol приводит тикер к каноническому виду
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol проверяет корректность тикера
func ValidateSymbol(symbol string) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if !symbolRe.MatchString(normalized) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// IsValidSymbol - bool-вариант ValidateSymbol
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// ============================================================
// Таймфреймы
// ============================================================

// ValidateTimeframe проверяет что таймфрейм поддерживается агрегатором
func ValidateTimeframe(tf string) error {
	for _, supported := range SupportedTimeframes {
		if tf == supported {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (supported: %s)", ErrInvalidTimeframe, tf, strings.Join(SupportedTimeframes, ", "))
}

// IsValidTimeframe - bool-вариант ValidateTimeframe
func IsValidTimeframe(tf string) bool {
	return ValidateTimeframe(tf) == nil
}

// ============================================================
// Стратегии и направления
// ============================================================

// ValidateStrategyName проверяет имя стратегии
func ValidateStrategyName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidStrategy)
	}
	if !strategyRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
	return nil
}

// ValidateDirection проверяет направление сделки
func ValidateDirection(direction string) error {
	switch strings.ToLower(direction) {
	case "long", "short":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
}

// ============================================================
// Числовые параметры
// ============================================================

// ValidatePrice проверяет цену (строго положительная, разумный потолок)
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: %v (must be positive)", ErrInvalidPrice, price)
	}
	if price > 1e7 {
		return fmt.Errorf("%w: %v (too large)", ErrInvalidPrice, price)
	}
	return nil
}

// ValidateQuantity проверяет количество акций
func ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidQuantity, qty)
	}
	if qty > 10_000_000 {
		return fmt.Errorf("%w: %d (too large)", ErrInvalidQuantity, qty)
	}
	return nil
}

// ValidateFraction проверяет долю в интервале (0, 1]
// (риск на сделку, максимальная экспозиция).
func ValidateFraction(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%w: %v (must be in (0, 1])", ErrInvalidPct, v)
	}
	return nil
}

// ============================================================
// Составная валидация
// ============================================================

// ValidationError - ошибка валидации одного поля
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors - накопитель ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку поля если err != nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		v.Add(field, err.Error())
	}
}

// HasErrors сообщает есть ли накопленные ошибки
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// StrategyConfigInput - параметры конфигурации стратегии для валидации
type StrategyConfigInput struct {
	Strategy        string
	Symbol          string
	Direction       string
	RiskPerTradePct float64
}

// ValidateStrategyConfig проверяет конфигурацию стратегии целиком
// и возвращает все найденные ошибки разом.
func ValidateStrategyConfig(input StrategyConfigInput) error {
	var errs ValidationErrors
	errs.AddError("strategy", ValidateStrategyName(input.Strategy))
	errs.AddError("symbol", ValidateSymbol(input.Symbol))
	errs.AddError("direction", ValidateDirection(input.Direction))
	errs.AddError("risk_per_trade_pct", ValidateFraction(input.RiskPerTradePct))
	if errs.HasErrors() {
		return errs
	}
	return nil
}
