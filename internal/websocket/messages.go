package websocket

import (
	"time"

	"patterntrader/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePositions - снимок открытых позиций
	// Отправляется периодически, пока есть открытые позиции
	MessageTypePositions MessageType = "positions"

	// MessageTypeTrade - закрытая сделка
	// Отправляется при каждом закрытии позиции
	MessageTypeTrade MessageType = "trade"

	// MessageTypeNotification - торговое уведомление
	// OPEN, CLOSE, SL, FORCED_EXIT, RELOCATION, CIRCUIT_BREAKER, RISK_PAUSE
	MessageTypeNotification MessageType = "notification"

	// MessageTypeConnection - смена состояния соединения со шлюзом
	MessageTypeConnection MessageType = "connection"

	// MessageTypePerformance - сводка торговой производительности
	MessageTypePerformance MessageType = "performance"
)

// PositionsMessage - снимок открытых позиций
type PositionsMessage struct {
	Type      MessageType           `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Positions []models.OpenPosition `json:"positions"`
}

// TradeMessage - закрытая сделка
type TradeMessage struct {
	Type  MessageType        `json:"type"`
	Trade models.ClosedTrade `json:"trade"`
}

// NotificationMessage - торговое уведомление
type NotificationMessage struct {
	Type         MessageType         `json:"type"`
	Notification models.Notification `json:"notification"`
}

// ConnectionMessage - состояние соединения со шлюзом
type ConnectionMessage struct {
	Type   MessageType             `json:"type"`
	Status models.ConnectionStatus `json:"status"`
}

// PerformanceMessage - сводка производительности
type PerformanceMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}
