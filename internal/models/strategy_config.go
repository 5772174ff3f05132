package models

import "time"

// StrategyConfig представляет сохранённую конфигурацию стратегии для символа
//
// Конфигурации durably хранятся persistence-сервисом и загружаются
// при старте для восстановления подписок и активных стратегий.
type StrategyConfig struct {
	ID              int       `json:"id" db:"id"`
	Strategy        string    `json:"strategy" db:"strategy"`                   // имя зарегистрированной стратегии
	Symbol          string    `json:"symbol" db:"symbol"`                       // AAPL, TSLA ...
	Direction       Direction `json:"direction" db:"direction"`                 // объявленное направление паттерна
	RiskPerTradePct float64   `json:"risk_per_trade_pct" db:"risk_per_trade_pct"` // 0 = использовать глобальный
	Status          string    `json:"status" db:"status"`                       // paused, active
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы стратегии
const (
	StrategyStatusPaused = "paused"
	StrategyStatusActive = "active"
)
