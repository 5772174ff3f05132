package models

import "time"

// Notification представляет уведомление о торговом событии
type Notification struct {
	ID        int                    `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // info, warn, error
	Strategy  string                 `json:"strategy,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeOpen           = "OPEN"            // открытие позиции
	NotificationTypeClose          = "CLOSE"           // закрытие позиции
	NotificationTypeSL             = "SL"              // срабатывание trailing/stop loss
	NotificationTypeForcedExit     = "FORCED_EXIT"     // принудительное закрытие в конце дня
	NotificationTypeRelocation     = "RELOCATION"      // вытеснение позиции новым сетапом
	NotificationTypeCircuitBreaker = "CIRCUIT_BREAKER" // открытие/сброс circuit breaker
	NotificationTypeRiskPause      = "RISK_PAUSE"      // дневной лимит убытка / просадка
	NotificationTypeReconnect      = "RECONNECT"       // переподключение к шлюзу
	NotificationTypeError          = "ERROR"           // ошибка ордера/шлюза
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
