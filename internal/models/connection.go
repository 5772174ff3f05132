package models

import "time"

// ConnectionState - состояние соединения со шлюзом брокера
type ConnectionState string

// Состояния соединения (state machine Connection Manager)
const (
	ConnStateDisconnected ConnectionState = "DISCONNECTED"
	ConnStateConnecting   ConnectionState = "CONNECTING"
	ConnStateConnected    ConnectionState = "CONNECTED"
	ConnStateError        ConnectionState = "ERROR"
)

// AccountType - тип торгового счёта
type AccountType string

// Типы счёта, выведенные из идентификатора аккаунта
const (
	AccountPaper   AccountType = "PAPER"
	AccountLive    AccountType = "LIVE"
	AccountUnknown AccountType = "UNKNOWN"
)

// GatewayIdentity - идентичность подключения к шлюзу
//
// ClientID ротируется автоматически при конфликте идентичности
// (шлюз не допускает два подключения с одним clientId).
type GatewayIdentity struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"client_id"`
}

// ConnectionStatus - снимок состояния соединения со шлюзом
//
// Один на процесс; мутируется только Connection Manager.
type ConnectionStatus struct {
	State            ConnectionState `json:"state"`
	Identity         GatewayIdentity `json:"identity"`
	AccountType      AccountType     `json:"account_type"`
	ConnectedAt      *time.Time      `json:"connected_at,omitempty"`
	DisconnectedAt   *time.Time      `json:"disconnected_at,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
	ReconnectAttempt int             `json:"reconnect_attempt"`
}
