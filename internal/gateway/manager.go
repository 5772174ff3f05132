package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"patterntrader/internal/config"
	"patterntrader/internal/models"
	"patterntrader/pkg/retry"
	"patterntrader/pkg/utils"
)

// ============================================
// МЕНЕДЖЕР СОЕДИНЕНИЯ СО ШЛЮЗОМ
// ============================================
//
// Менеджер владеет единственным постоянным соединением с брокерским
// шлюзом: машина состояний DISCONNECTED -> CONNECTING -> CONNECTED / ERROR,
// переподключение с экспоненциальной задержкой, ротация clientId при
// конфликте идентичности, heartbeat с окном живости и автоматическое
// восстановление подписок.
//
// Переподключение никогда не планируется в состояниях CONNECTING и
// CONNECTED. Конфликт clientId лечится немедленным повтором с новым
// идентификатором, без задержки.

// ErrLivenessExpired - в окне живости не было активности шлюза
var ErrLivenessExpired = errors.New("gateway liveness window expired")

// ErrManagerClosed - менеджер остановлен и не принимает операций
var ErrManagerClosed = errors.New("gateway manager closed")

// порты шлюза по умолчанию для бумажного и реального счёта
const (
	defaultPaperPort = 7497
	defaultLivePort  = 7496
)

// Manager - машина состояний соединения со шлюзом
type Manager struct {
	cfg    config.GatewayConfig
	client Client
	logger *utils.Logger

	mu             sync.Mutex
	status         models.ConnectionStatus
	clientID       int
	shifts         int // сделанных ротаций clientId в текущей серии
	port           int // порт следующей попытки (корректируется инференсом счёта)
	subscribed     map[string]bool
	backoff        *retry.BackoffSchedule
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	lastActivity   time.Time
	closed         bool

	callbacks     Callbacks
	onStateChange func(models.ConnectionStatus)
}

// NewManager создаёт менеджер поверх клиента шлюза.
// Колбэки клиента перехватываются: любое событие шлюза
// обновляет окно живости перед доставкой наружу.
func NewManager(cfg config.GatewayConfig, client Client, cb Callbacks, logger *utils.Logger) *Manager {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	m := &Manager{
		cfg:        cfg,
		client:     client,
		logger:     logger.WithComponent("gateway"),
		clientID:   cfg.ClientID,
		port:       cfg.Port,
		subscribed: make(map[string]bool),
		backoff:    retry.NewBackoffSchedule(cfg.ReconnectInitial, cfg.ReconnectMax),
		callbacks:  cb,
		status: models.ConnectionStatus{
			State:       models.ConnStateDisconnected,
			AccountType: models.AccountUnknown,
		},
	}

	client.SetCallbacks(Callbacks{
		OnTick: func(tick models.Tick) {
			m.markActivity()
			if cb.OnTick != nil {
				cb.OnTick(tick)
			}
		},
		OnOrderStatus: func(st models.OrderStatusInfo) {
			m.markActivity()
			if cb.OnOrderStatus != nil {
				cb.OnOrderStatus(st)
			}
		},
		OnError: func(code int, msg string, reqID int64) {
			m.markActivity()
			if cb.OnError != nil {
				cb.OnError(code, msg, reqID)
			}
		},
		OnPong:       m.markActivity,
		OnDisconnect: m.handleDisconnect,
	})
	return m
}

// SetOnStateChange устанавливает наблюдателя переходов состояния.
// Вызывается в отдельной горутине.
func (m *Manager) SetOnStateChange(fn func(models.ConnectionStatus)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

// Connect запускает установку соединения.
// Возврат ошибки не финален: переподключение уже запланировано.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.status.State == models.ConnStateConnecting || m.status.State == models.ConnStateConnected {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(models.ConnStateConnecting)
	m.mu.Unlock()

	return m.connectAttempt(ctx)
}

// connectAttempt выполняет одну серию попыток рукопожатия.
// Конфликт идентичности повторяется немедленно с новым clientId,
// прочие ошибки планируют переподключение по расписанию.
func (m *Manager) connectAttempt(ctx context.Context) error {
	for {
		m.mu.Lock()
		identity := models.GatewayIdentity{
			Host:     m.cfg.Host,
			Port:     m.port,
			ClientID: m.clientID,
		}
		m.status.Identity = identity
		m.mu.Unlock()

		m.logger.Info("connecting to gateway",
			utils.String("host", identity.Host),
			utils.Int("port", identity.Port),
			utils.Int("client_id", identity.ClientID))

		cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		res, err := m.client.Connect(cctx, identity)
		cancel()

		if err == nil {
			m.onConnected(res)
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}

		if IsIdentityConflict(err) {
			m.mu.Lock()
			if !m.closed && m.shifts < m.cfg.MaxClientIDShifts {
				m.shifts++
				m.clientID++
				next := m.clientID
				m.mu.Unlock()
				identityRotationsTotal.Inc()
				m.logger.Warn("client id conflict, rotating identity",
					utils.Int("next_client_id", next))
				continue
			}
			m.mu.Unlock()
		}

		m.logger.Error("gateway connect failed", utils.Err(err))

		m.mu.Lock()
		m.status.LastError = err.Error()
		m.setStateLocked(models.ConnStateError)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return err
	}
}

// onConnected фиксирует успешное рукопожатие: сброс backoff и
// счётчика ротаций, инференс типа счёта, heartbeat, восстановление подписок
func (m *Manager) onConnected(res ConnectResult) {
	now := time.Now()

	m.mu.Lock()
	m.status.ConnectedAt = &now
	m.status.LastError = ""
	m.status.ReconnectAttempt = 0
	m.lastActivity = now
	m.backoff.Reset()
	m.shifts = 0

	acct := inferAccountType(res.Accounts)
	if acct != models.AccountUnknown {
		m.status.AccountType = acct
		m.adjustEndpointLocked(acct)
	}

	m.setStateLocked(models.ConnStateConnected)

	stop := make(chan struct{})
	m.heartbeatStop = stop

	resub := make([]string, 0, len(m.subscribed))
	for sym := range m.subscribed {
		resub = append(resub, sym)
	}
	sort.Strings(resub)
	m.mu.Unlock()

	m.logger.Info("gateway connected",
		utils.String("account_type", string(acct)),
		utils.Int("subscriptions", len(resub)))

	go m.heartbeatLoop(stop)
	m.resubscribe(resub)
}

// resubscribe восстанавливает подписки после переподключения.
// Сбой одного символа не блокирует остальные.
func (m *Manager) resubscribe(symbols []string) {
	for _, sym := range symbols {
		if err := m.client.SubscribeMarketData(sym); err != nil {
			resubscribeFailuresTotal.WithLabelValues(sym).Inc()
			m.logger.Warn("resubscribe failed", utils.Symbol(sym), utils.Err(err))
			continue
		}
		m.logger.Debug("resubscribed", utils.Symbol(sym))
	}
}

// handleDisconnect обрабатывает разрыв со стороны шлюза
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	if m.closed || m.status.State == models.ConnStateDisconnected {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	now := time.Now()
	m.status.DisconnectedAt = &now
	if err != nil {
		m.status.LastError = err.Error()
	}
	m.setStateLocked(models.ConnStateDisconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Warn("gateway disconnected", utils.Err(err))
}

// scheduleReconnectLocked планирует попытку переподключения.
// Ничего не делает в состояниях CONNECTING/CONNECTED, после Close
// и при уже запланированном таймере.
func (m *Manager) scheduleReconnectLocked() {
	if m.closed {
		return
	}
	if m.status.State == models.ConnStateConnecting || m.status.State == models.ConnStateConnected {
		return
	}
	if m.reconnectTimer != nil {
		return
	}

	delay := m.backoff.Next()
	m.status.ReconnectAttempt++
	reconnectsTotal.Inc()
	m.logger.Info("reconnect scheduled", utils.Duration("delay", delay))

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		if m.closed || m.status.State == models.ConnStateConnecting || m.status.State == models.ConnStateConnected {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(models.ConnStateConnecting)
		m.mu.Unlock()

		m.connectAttempt(context.Background())
	})
}

// heartbeatLoop шлёт keep-alive и следит за окном живости.
// Отсутствие любой активности шлюза дольше LivenessTimeout
// трактуется как мёртвое соединение.
func (m *Manager) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			idle := time.Since(m.lastActivity)
			m.mu.Unlock()

			if idle > m.cfg.LivenessTimeout {
				m.logger.Error("liveness window expired, forcing disconnect",
					utils.Duration("idle", idle))
				m.client.Disconnect()
				m.handleDisconnect(ErrLivenessExpired)
				return
			}

			// Окно живости сдвигает только входящий трафик (тики,
			// статусы, pong): успешная отправка ping полуоткрытое
			// соединение не выдаёт
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HeartbeatInterval)
			err := m.client.Ping(ctx)
			cancel()
			if err != nil {
				heartbeatFailuresTotal.Inc()
				m.logger.Warn("heartbeat failed", utils.Err(err))
			}
		}
	}
}

// markActivity сдвигает окно живости
func (m *Manager) markActivity() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// Subscribe помечает символ подписанным и, если соединение установлено,
// подписывается немедленно. Пометка переживает переподключения.
func (m *Manager) Subscribe(symbol string) error {
	sym := utils.NormalizeSymbol(symbol)
	if err := utils.ValidateSymbol(sym); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.subscribed[sym] = true
	connected := m.status.State == models.ConnStateConnected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	if err := m.client.SubscribeMarketData(sym); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscribeFailed, sym, err)
	}
	return nil
}

// Unsubscribe снимает пометку и отменяет подписку на шлюзе
func (m *Manager) Unsubscribe(symbol string) error {
	sym := utils.NormalizeSymbol(symbol)
	if err := utils.ValidateSymbol(sym); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.subscribed, sym)
	connected := m.status.State == models.ConnStateConnected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.client.UnsubscribeMarketData(sym)
}

// Subscribed возвращает отсортированный список подписанных символов
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribed))
	for sym := range m.subscribed {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Status возвращает копию текущего статуса соединения
func (m *Manager) Status() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected сообщает, установлено ли соединение
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.State == models.ConnStateConnected
}

// AccountType возвращает выведенный тип счёта
func (m *Manager) AccountType() models.AccountType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.AccountType
}

// Close останавливает менеджер: таймеры, heartbeat, соединение.
// Вызывается при завершении процесса.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
	now := time.Now()
	m.status.DisconnectedAt = &now
	m.setStateLocked(models.ConnStateDisconnected)
	m.mu.Unlock()

	err := m.client.Disconnect()
	m.logger.Info("gateway manager closed")
	return err
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// setStateLocked переводит машину состояний и уведомляет наблюдателя
func (m *Manager) setStateLocked(state models.ConnectionState) {
	if m.status.State == state {
		return
	}
	m.status.State = state
	connectionStateGauge.Set(stateGaugeValue(state))

	if m.onStateChange != nil {
		snapshot := m.status
		fn := m.onStateChange
		go fn(snapshot)
	}
}

// adjustEndpointLocked корректирует порт СЛЕДУЮЩЕЙ попытки по типу
// счёта. Трогает только стандартные порты: явно настроенный
// нестандартный порт не переопределяется.
func (m *Manager) adjustEndpointLocked(acct models.AccountType) {
	switch {
	case acct == models.AccountPaper && m.port == defaultLivePort:
		m.port = defaultPaperPort
	case acct == models.AccountLive && m.port == defaultPaperPort:
		m.port = defaultLivePort
	}
}

// inferAccountType выводит тип счёта из идентификаторов.
// Бумажные счета имеют префикс D (DU/DF).
func inferAccountType(accounts []string) models.AccountType {
	if len(accounts) == 0 {
		return models.AccountUnknown
	}
	for _, acct := range accounts {
		if len(acct) > 0 && acct[0] == 'D' {
			return models.AccountPaper
		}
	}
	return models.AccountLive
}

func stateGaugeValue(state models.ConnectionState) float64 {
	switch state {
	case models.ConnStateConnecting:
		return 1
	case models.ConnStateConnected:
		return 2
	case models.ConnStateError:
		return 3
	default:
		return 0
	}
}
