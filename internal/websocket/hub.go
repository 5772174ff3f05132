package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// ============================================
// UI HUB
// ============================================
//
// Хаб рассылает снимки позиций, сделки и уведомления всем
// подключенным UI-клиентам. Медленный клиент не тормозит рассылку:
// переполнение его буфера отключает клиента, сообщение роняется.

var wsjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON-буферов убирает аллокации на каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями UI
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	dropped atomic.Int64
	logger  *utils.Logger

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger.WithComponent("ui_hub"),
	}
}

// Run запускает главный цикл рассылки.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ui client connected", utils.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ui client disconnected", utils.Int("total", total))

		case message := <-h.broadcast:
			// Список клиентов копируется под коротким RLock, отправка
			// идёт без блокировки, отстающие удаляются под Write Lock
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.dropped.Add(int64(len(toRemove)))
				h.logger.Warn("slow ui clients removed",
					utils.Int("removed", len(toRemove)), utils.Int("total", total))
			}
		}
	}
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := wsjson.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("broadcast message marshal failed", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastPositions отправляет снимок открытых позиций
func (h *Hub) BroadcastPositions(positions []models.OpenPosition) {
	h.Broadcast(&PositionsMessage{
		Type:      MessageTypePositions,
		Timestamp: time.Now(),
		Positions: positions,
	})
}

// BroadcastTrade отправляет закрытую сделку
func (h *Hub) BroadcastTrade(trade models.ClosedTrade) {
	h.Broadcast(&TradeMessage{
		Type:  MessageTypeTrade,
		Trade: trade,
	})
}

// Notify отправляет торговое уведомление.
// Сигнатура совместима с приёмником уведомлений движка.
func (h *Hub) Notify(n models.Notification) {
	h.Broadcast(&NotificationMessage{
		Type:         MessageTypeNotification,
		Notification: n,
	})
}

// BroadcastConnection отправляет снимок состояния соединения со шлюзом
func (h *Hub) BroadcastConnection(status models.ConnectionStatus) {
	h.Broadcast(&ConnectionMessage{
		Type:   MessageTypeConnection,
		Status: status,
	})
}

// BroadcastPerformance отправляет сводку производительности
func (h *Hub) BroadcastPerformance(data interface{}) {
	h.Broadcast(&PerformanceMessage{
		Type: MessageTypePerformance,
		Data: data,
	})
}

// Stop останавливает цикл рассылки и отключает всех клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает счётчик сообщений, потерянных из-за
// отстающих клиентов или переполненной очереди рассылки
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
