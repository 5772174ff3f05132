// Package integration contains integration tests for the trading runtime.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repository round-trips
//
// Tests skip themselves when the test database is unreachable.
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"patterntrader/internal/api"
	"patterntrader/internal/config"
	"patterntrader/internal/engine"
	"patterntrader/internal/gateway"
	"patterntrader/internal/marketdata"
	"patterntrader/internal/models"
	"patterntrader/internal/repository"
	"patterntrader/internal/scoring"
	"patterntrader/internal/service"
	"patterntrader/internal/state"
	"patterntrader/internal/strategy"
	"patterntrader/internal/websocket"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB      *sql.DB
	Router  *mux.Router
	Server  *httptest.Server
	Hub     *websocket.Hub
	Repos   *TestRepositories
	Engine  *engine.Engine
	Store   *state.Store
	Scorer  *scoring.Scorer
	MDHub   *marketdata.Hub
	Placer  *stubPlacer
	Cleanup func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Bars    *repository.BarRepository
	Trades  *repository.TradeRepository
	Configs *repository.StrategyConfigRepository
}

// stubPlacer fills every order immediately at the requested quantity
type stubPlacer struct {
	mu     sync.Mutex
	nextID int64
	orders []gateway.OrderRequest
}

func (p *stubPlacer) PlaceOrder(_ context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.orders = append(p.orders, req)
	return gateway.OrderResult{
		OrderID:   p.nextID,
		FilledQty: req.Quantity,
		Status:    models.OrderStatusFilled,
	}, nil
}

func (p *stubPlacer) CancelOrder(_ context.Context, _ int64) error { return nil }

// stubGateway reports a fixed connection snapshot for the status endpoint
type stubGateway struct{}

func (stubGateway) Status() models.ConnectionStatus {
	return models.ConnectionStatus{State: models.ConnStateConnected, AccountType: models.AccountPaper}
}
func (stubGateway) AccountType() models.AccountType { return models.AccountPaper }
func (stubGateway) Subscribed() []string            { return []string{"AAPL"} }

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "patterntrader_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	repos := &TestRepositories{
		Bars:    repository.NewBarRepository(db),
		Trades:  repository.NewTradeRepository(db),
		Configs: repository.NewStrategyConfigRepository(db),
	}

	persistence := service.NewPersistenceService(repos.Bars, repos.Trades, time.UTC, 0, 64, nil)

	mdHub := marketdata.NewHub(time.UTC, persistence, nil)
	scorer := scoring.NewScorer(nil)

	registry := strategy.NewRegistry()
	breakout := strategy.NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	if err := registry.Register(breakout); err != nil {
		t.Fatalf("register strategy: %v", err)
	}
	registry.RegisterStateKind(breakout.Name(), func() models.CustomState {
		return &strategy.BreakoutState{}
	})

	stateStore := state.NewStore(nil)
	placer := &stubPlacer{}

	eng, err := engine.NewEngine(testEngineConfig(), time.UTC, stateStore, registry, placer, scorer, nil)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	eng.SetRecorder(persistence)

	hub := websocket.NewHub(nil)
	go hub.Run()
	eng.SetNotifier(hub)

	router := api.SetupRoutes(&api.Dependencies{
		Engine:     eng,
		Gateway:    stubGateway{},
		Strategies: registry,
		States:     stateStore,
		Scores:     scorer,
		Hub:        hub,
	})

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		persistence.Close()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:      db,
		Router:  router,
		Server:  server,
		Hub:     hub,
		Repos:   repos,
		Engine:  eng,
		Store:   stateStore,
		Scorer:  scorer,
		MDHub:   mdHub,
		Placer:  placer,
		Cleanup: cleanup,
	}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		AccountValue:            100000,
		RiskPerTradePct:         0.01,
		MaxExposurePct:          0.5,
		MaxConcurrentTrades:     5,
		DailyLossLimit:          3000,
		MaxDrawdownPct:          0.05,
		CircuitBreakerThreshold: 3,
		CircuitBreakerCooldown:  5 * time.Minute,
		RelocationThresholdR:    1.0,
		TrailingActivationR:     2.0,
		TrailingDistanceR:       1.5,
		OrderTimeout:            time.Second,
	}
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS intraday_bars (
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			start_ts TIMESTAMPTZ NOT NULL,
			end_ts TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timeframe, start_ts)
		)`,
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			strategy VARCHAR(50) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			quantity BIGINT NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			r_multiple DOUBLE PRECISION NOT NULL DEFAULT 0,
			exit_reason VARCHAR(30) NOT NULL DEFAULT '',
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_configs (
			id SERIAL PRIMARY KEY,
			strategy VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			risk_per_trade_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'paused',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (strategy, symbol)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"closed_trades",
		"strategy_configs",
		"intraday_bars",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
