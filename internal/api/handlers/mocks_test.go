package handlers

import (
	"time"

	"patterntrader/internal/engine"
	"patterntrader/internal/models"
	"patterntrader/internal/scoring"
)

// ============ Mock Engine ============

// MockEngine мок для EngineSnapshots
type MockEngine struct {
	positions   []models.OpenPosition
	pending     []models.OrderStatusInfo
	history     []models.OrderStatusInfo
	trades      []models.ClosedTrade
	performance engine.PerformanceSnapshot
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Positions() []models.OpenPosition         { return m.positions }
func (m *MockEngine) PendingOrders() []models.OrderStatusInfo  { return m.pending }
func (m *MockEngine) OrderHistory() []models.OrderStatusInfo   { return m.history }
func (m *MockEngine) ClosedTrades() []models.ClosedTrade       { return m.trades }
func (m *MockEngine) Performance() engine.PerformanceSnapshot  { return m.performance }

// ============ Mock Gateway ============

// MockGateway мок для GatewayStatus
type MockGateway struct {
	status      models.ConnectionStatus
	accountType models.AccountType
	subscribed  []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{accountType: models.AccountPaper}
}

func (m *MockGateway) Status() models.ConnectionStatus { return m.status }
func (m *MockGateway) AccountType() models.AccountType { return m.accountType }
func (m *MockGateway) Subscribed() []string            { return m.subscribed }

// ============ Mock Strategy Sources ============

// MockRegistry мок для StrategyDirectory
type MockRegistry struct {
	names []string
}

func (m *MockRegistry) Names() []string { return m.names }

// MockStateSource мок для StateSource
type MockStateSource struct {
	states map[string][]models.StrategyState
}

func NewMockStateSource() *MockStateSource {
	return &MockStateSource{states: make(map[string][]models.StrategyState)}
}

func (m *MockStateSource) All() []models.StrategyState {
	var out []models.StrategyState
	for _, states := range m.states {
		out = append(out, states...)
	}
	return out
}

func (m *MockStateSource) ForSymbol(symbol string) []models.StrategyState {
	return m.states[symbol]
}

// MockScoreSource мок для ScoreDirectory
type MockScoreSource struct {
	scores map[string]scoring.Score
}

func NewMockScoreSource() *MockScoreSource {
	return &MockScoreSource{scores: make(map[string]scoring.Score)}
}

func (m *MockScoreSource) All() []scoring.Score {
	var out []scoring.Score
	for _, s := range m.scores {
		out = append(out, s)
	}
	return out
}

func (m *MockScoreSource) Latest(symbol string) (scoring.Score, bool) {
	s, ok := m.scores[symbol]
	return s, ok
}

// testFillTime - фиксированное время исполнения для детерминизма тестов
var testFillTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
