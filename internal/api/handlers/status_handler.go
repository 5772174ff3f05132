package handlers

import (
	"net/http"
	"time"

	"patterntrader/internal/models"
)

// GatewayStatus - снимок состояния Connection Manager
type GatewayStatus interface {
	Status() models.ConnectionStatus
	AccountType() models.AccountType
	Subscribed() []string
}

// StatusHandler обрабатывает HTTP запросы состояния шлюза.
//
// Endpoints:
// - GET /api/v1/status - соединение, тип счёта, активные подписки
type StatusHandler struct {
	gateway GatewayStatus
}

// NewStatusHandler создает новый StatusHandler
func NewStatusHandler(gw GatewayStatus) *StatusHandler {
	return &StatusHandler{gateway: gw}
}

// statusResponse - ответ GET /status
type statusResponse struct {
	Connection  models.ConnectionStatus `json:"connection"`
	AccountType models.AccountType      `json:"account_type"`
	Subscribed  []string                `json:"subscribed"`
	ServerTime  time.Time               `json:"server_time"`
}

// GetStatus возвращает состояние соединения со шлюзом
//
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeError(w, http.StatusInternalServerError, "gateway not initialized")
		return
	}

	subscribed := h.gateway.Subscribed()
	if subscribed == nil {
		subscribed = []string{}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Connection:  h.gateway.Status(),
		AccountType: h.gateway.AccountType(),
		Subscribed:  subscribed,
		ServerTime:  time.Now(),
	})
}
