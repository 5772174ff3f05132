package gateway

import (
	"context"
	"errors"
	"fmt"

	"patterntrader/internal/models"
)

// client.go - интерфейс возможностей брокерского шлюза
//
// Ядро не знает конкретного протокола шлюза: оно объявляет ровно те
// операции и события, которые ему нужны. Конкретный транспорт
// (WebSocket-адаптер, симулятор в тестах) реализует этот интерфейс.

// Client определяет операции брокерского шлюза, требуемые ядром
type Client interface {
	// Connect открывает соединение с заданной идентичностью и ждёт
	// подтверждения. Возвращает список идентификаторов счетов.
	Connect(ctx context.Context, identity models.GatewayIdentity) (ConnectResult, error)

	// Disconnect закрывает соединение
	Disconnect() error

	// ResolveContract разрешает тикер в контракт шлюза
	ResolveContract(ctx context.Context, symbol string) (Contract, error)

	// SubscribeMarketData подписывается на поток тиков по символу
	SubscribeMarketData(symbol string) error

	// UnsubscribeMarketData отменяет подписку
	UnsubscribeMarketData(symbol string) error

	// PlaceOrder размещает рыночный ордер
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// CancelOrder отменяет ордер по идентификатору
	CancelOrder(ctx context.Context, orderID int64) error

	// Ping отправляет лёгкий keep-alive запрос
	Ping(ctx context.Context) error

	// SetCallbacks устанавливает обработчики событий шлюза.
	// Вызывается один раз до Connect.
	SetCallbacks(cb Callbacks)
}

// ConnectResult - результат успешного рукопожатия
type ConnectResult struct {
	Accounts []string // идентификаторы счетов, видимые сессии
}

// Contract - разрешённый контракт шлюза
type Contract struct {
	Symbol   string
	ConID    int64
	Exchange string
	Currency string
}

// OrderRequest - запрос на размещение рыночного ордера
type OrderRequest struct {
	Symbol   string
	Side     string // models.SideBuy / models.SideSell
	Quantity int64
}

// OrderResult - результат размещения
type OrderResult struct {
	OrderID      int64
	AvgFillPrice float64
	FilledQty    int64
	Status       string // models.OrderStatus* константы
}

// Callbacks - события шлюза, доставляемые ядру
type Callbacks struct {
	OnTick        func(tick models.Tick)
	OnOrderStatus func(status models.OrderStatusInfo)
	OnError       func(code int, msg string, reqID int64)
	OnPong        func()          // входящий ответ на keep-alive
	OnDisconnect  func(err error) // разрыв со стороны шлюза
}

// ============================================
// ОШИБКИ ШЛЮЗА
// ============================================

var (
	// ErrNotConnected - операция требует установленного соединения
	ErrNotConnected = errors.New("gateway not connected")

	// ErrIdentityConflict - clientId уже занят другой сессией
	ErrIdentityConflict = errors.New("client id already in use")

	// ErrConnectionRefused - шлюз отверг соединение
	ErrConnectionRefused = errors.New("connection refused")

	// ErrConnectTimeout - рукопожатие не завершилось за отведённое время
	ErrConnectTimeout = errors.New("connect handshake timed out")

	// ErrSubscribeFailed - подписка на данные отклонена
	ErrSubscribeFailed = errors.New("market data subscription failed")

	// ErrOrderRejected - ордер отклонён шлюзом
	ErrOrderRejected = errors.New("order rejected")
)

// GatewayError - ошибка шлюза с кодом и контекстом
type GatewayError struct {
	Op       string // операция (connect, subscribe, place_order)
	Code     int    // код ошибки шлюза, 0 если неизвестен
	Message  string
	Original error
}

func (e *GatewayError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway %s: [%d] %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}

// Unwrap возвращает исходную ошибку для errors.Is/As
func (e *GatewayError) Unwrap() error {
	return e.Original
}

// IsIdentityConflict сообщает, вызвана ли ошибка конфликтом clientId
func IsIdentityConflict(err error) bool {
	return errors.Is(err, ErrIdentityConflict)
}

// IsRecoverable сообщает, лечится ли ошибка переподключением
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrConnectionRefused) ||
		errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrNotConnected)
}
