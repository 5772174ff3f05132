package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"patterntrader/internal/config"
	"patterntrader/internal/models"
	"patterntrader/pkg/ratelimit"
	"patterntrader/pkg/utils"
)

// ws_client.go - WebSocket-адаптер интерфейса Client
//
// Обменивается со шлюзом JSON-кадрами. Запросы с ответом (рукопожатие,
// разрешение контракта, размещение ордера) коррелируются по req_id,
// поток тиков и статусов доставляется через колбэки. Отправка кадров
// проходит через токен-бакет, чтобы не превышать лимит шлюза на
// сообщения в секунду.

var wsjson = jsoniter.ConfigCompatibleWithStandardLibrary

// коды ошибок шлюза
const (
	codeIdentityConflict = 326 // clientId уже используется
	codeOrderRejected    = 201
)

// frame - кадр протокола шлюза
type frame struct {
	Type     string  `json:"type"`
	ReqID    int64   `json:"req_id,omitempty"`
	ClientID int     `json:"client_id,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
	Side     string  `json:"side,omitempty"`
	Quantity int64   `json:"quantity,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Size     float64 `json:"size,omitempty"`
	Ts       int64   `json:"ts,omitempty"`

	// рукопожатие
	Accounts []string `json:"accounts,omitempty"`

	// контракт
	ConID    int64  `json:"con_id,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`

	// ордер
	OrderID      int64   `json:"order_id,omitempty"`
	Status       string  `json:"status,omitempty"`
	FilledQty    int64   `json:"filled_qty,omitempty"`
	AvgFillPrice float64 `json:"avg_fill_price,omitempty"`

	// ошибка
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// типы кадров
const (
	frameConnect     = "connect"
	frameConnected   = "connected"
	framePing        = "ping"
	framePong        = "pong"
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameContract    = "resolve_contract"
	framePlaceOrder  = "place_order"
	frameCancelOrder = "cancel_order"
	frameTick        = "tick"
	frameOrderStatus = "order_status"
	frameError       = "error"
)

// WSClient - клиент шлюза поверх gorilla/websocket
type WSClient struct {
	limiter *ratelimit.RateLimiter
	logger  *utils.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   map[int64]chan frame
	callbacks Callbacks
	closed    bool

	nextReq int64 // atomic
}

// NewWSClient создаёт клиент с лимитом отправки из конфигурации
func NewWSClient(cfg config.GatewayConfig, logger *utils.Logger) *WSClient {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &WSClient{
		limiter: ratelimit.NewRateLimiter(float64(cfg.MessageRate), cfg.MessageBurst),
		logger:  logger.WithComponent("gateway_ws"),
		pending: make(map[int64]chan frame),
	}
}

// SetCallbacks устанавливает обработчики событий
func (c *WSClient) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.callbacks = cb
	c.mu.Unlock()
}

// Connect открывает сокет и выполняет рукопожатие connect/connected
func (c *WSClient) Connect(ctx context.Context, identity models.GatewayIdentity) (ConnectResult, error) {
	url := fmt.Sprintf("ws://%s:%d/ws", identity.Host, identity.Port)

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	reqID := atomic.AddInt64(&c.nextReq, 1)
	reply := c.register(reqID)
	defer c.unregister(reqID)

	go c.readPump(conn)

	if err := c.send(ctx, frame{Type: frameConnect, ReqID: reqID, ClientID: identity.ClientID}); err != nil {
		conn.Close()
		return ConnectResult{}, err
	}

	select {
	case <-ctx.Done():
		conn.Close()
		return ConnectResult{}, fmt.Errorf("%w: %v", ErrConnectTimeout, ctx.Err())
	case f := <-reply:
		if f.Type == frameError {
			conn.Close()
			if f.Code == codeIdentityConflict {
				return ConnectResult{}, fmt.Errorf("%w: client id %d", ErrIdentityConflict, identity.ClientID)
			}
			return ConnectResult{}, &GatewayError{Op: "connect", Code: f.Code, Message: f.Message, Original: ErrConnectionRefused}
		}
		return ConnectResult{Accounts: f.Accounts}, nil
	}
}

// Disconnect закрывает сокет
func (c *WSClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ResolveContract разрешает тикер в контракт
func (c *WSClient) ResolveContract(ctx context.Context, symbol string) (Contract, error) {
	f, err := c.request(ctx, frame{Type: frameContract, Symbol: symbol})
	if err != nil {
		return Contract{}, err
	}
	return Contract{
		Symbol:   symbol,
		ConID:    f.ConID,
		Exchange: f.Exchange,
		Currency: f.Currency,
	}, nil
}

// SubscribeMarketData подписывается на тики символа
func (c *WSClient) SubscribeMarketData(symbol string) error {
	return c.send(context.Background(), frame{Type: frameSubscribe, Symbol: symbol})
}

// UnsubscribeMarketData отменяет подписку
func (c *WSClient) UnsubscribeMarketData(symbol string) error {
	return c.send(context.Background(), frame{Type: frameUnsubscribe, Symbol: symbol})
}

// PlaceOrder размещает рыночный ордер и ждёт подтверждения
func (c *WSClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	f, err := c.request(ctx, frame{
		Type:     framePlaceOrder,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
	})
	if err != nil {
		return OrderResult{}, err
	}
	if f.Code == codeOrderRejected || f.Status == models.OrderStatusRejected {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrOrderRejected, f.Message)
	}
	return OrderResult{
		OrderID:      f.OrderID,
		AvgFillPrice: f.AvgFillPrice,
		FilledQty:    f.FilledQty,
		Status:       f.Status,
	}, nil
}

// CancelOrder отменяет ордер
func (c *WSClient) CancelOrder(ctx context.Context, orderID int64) error {
	return c.send(ctx, frame{Type: frameCancelOrder, OrderID: orderID})
}

// Ping шлёт keep-alive кадр
func (c *WSClient) Ping(ctx context.Context) error {
	return c.send(ctx, frame{Type: framePing, Ts: utils.UnixMillis()})
}

// request отправляет кадр с req_id и ждёт ответный кадр
func (c *WSClient) request(ctx context.Context, f frame) (frame, error) {
	reqID := atomic.AddInt64(&c.nextReq, 1)
	f.ReqID = reqID
	reply := c.register(reqID)
	defer c.unregister(reqID)

	if err := c.send(ctx, f); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case resp := <-reply:
		if resp.Type == frameError && resp.Code != codeOrderRejected {
			return frame{}, &GatewayError{Op: f.Type, Code: resp.Code, Message: resp.Message}
		}
		return resp, nil
	}
}

// send сериализует и отправляет кадр, выдерживая лимит сообщений
func (c *WSClient) send(ctx context.Context, f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := wsjson.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump читает кадры и раздаёт их: ответы по req_id, события в колбэки
func (c *WSClient) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			cb := c.callbacks
			c.mu.Unlock()
			if !closed && cb.OnDisconnect != nil {
				cb.OnDisconnect(err)
			}
			return
		}

		var f frame
		if err := wsjson.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed gateway frame", utils.Err(err))
			continue
		}
		c.dispatch(f)
	}
}

func (c *WSClient) dispatch(f frame) {
	// Ответ на ожидающий запрос
	if f.ReqID != 0 {
		c.mu.Lock()
		ch, ok := c.pending[f.ReqID]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- f:
			default:
			}
			return
		}
	}

	c.mu.Lock()
	cb := c.callbacks
	c.mu.Unlock()

	switch f.Type {
	case frameTick:
		if cb.OnTick != nil {
			cb.OnTick(models.Tick{
				Symbol:    f.Symbol,
				Price:     f.Price,
				Size:      f.Size,
				Timestamp: utils.FromUnixMillis(f.Ts),
			})
		}
	case frameOrderStatus:
		if cb.OnOrderStatus != nil {
			cb.OnOrderStatus(models.OrderStatusInfo{
				OrderID:      f.OrderID,
				Symbol:       f.Symbol,
				Side:         f.Side,
				Status:       f.Status,
				FilledQty:    f.FilledQty,
				AvgFillPrice: f.AvgFillPrice,
				UpdatedAt:    utils.FromUnixMillis(f.Ts),
			})
		}
	case frameError:
		if cb.OnError != nil {
			cb.OnError(f.Code, f.Message, f.ReqID)
		}
	case framePong:
		if cb.OnPong != nil {
			cb.OnPong()
		}
	default:
		c.logger.Debug("unknown gateway frame", utils.String("type", f.Type))
	}
}

func (c *WSClient) register(reqID int64) chan frame {
	ch := make(chan frame, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()
	return ch
}

func (c *WSClient) unregister(reqID int64) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}
