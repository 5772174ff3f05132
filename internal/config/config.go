package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"patterntrader/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	Gateway    GatewayConfig
	MarketData MarketDataConfig
	Engine     EngineConfig
	Logging    LoggingConfig
}

// ServerConfig - настройки HTTP сервера (read-only API и UI websocket)
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // 32 байта, AES-256 для учётных данных шлюза
}

// GatewayConfig - настройки подключения к торговому шлюзу
type GatewayConfig struct {
	Host     string
	Port     int
	ClientID int

	// Учётные данные сессии (опциональны, зависят от шлюза).
	// Пароль хранится в окружении зашифрованным и расшифровывается
	// при загрузке конфигурации.
	Username string
	Password string

	ConnectTimeout    time.Duration // ожидание подтверждения подключения
	HeartbeatInterval time.Duration // период запроса серверного времени
	LivenessTimeout   time.Duration // тишина после которой сессия считается мёртвой
	ReconnectInitial  time.Duration // начальная задержка переподключения
	ReconnectMax      time.Duration // потолок задержки переподключения
	MaxClientIDShifts int           // попыток ротации clientId при конфликте

	// Pacing-лимиты сообщений к шлюзу
	MessageRate    float64
	MessageBurst   float64
	HistoricalRate float64
}

// MarketDataConfig - настройки хаба рыночных данных
type MarketDataConfig struct {
	Timezone       string        // таймзона торгового дня (биржи)
	BarRetention   time.Duration // хранение внутридневных баров в БД
	SaveBufferSize int           // буфер асинхронного сохранения баров
}

// EngineConfig - параметры торгового ядра и риск-менеджмента
type EngineConfig struct {
	AccountValue       float64 // базовый размер счёта для расчёта риска
	RiskPerTradePct    float64 // доля капитала под риском на сделку
	MaxExposurePct     float64 // доля капитала под суммарной экспозицией
	MaxConcurrentTrades int    // максимум одновременных позиций

	DailyLossLimit float64 // дневной лимит убытка (доллары, > 0)
	MaxDrawdownPct float64 // просадка от пика дня, доля

	CircuitBreakerThreshold int           // подряд неудачных ордеров до паузы
	CircuitBreakerCooldown  time.Duration // длительность паузы

	RelocationThresholdR float64 // минимальный R для вытеснения позиции
	TrailingActivationR  float64 // R с которого включается трейлинг
	TrailingDistanceR    float64 // отступ трейлинг-стопа в R

	ForceExitTime string        // время принудительного закрытия HH:MM (пусто = выкл)
	OrderTimeout  time.Duration // ожидание исполнения ордера
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "patterntrader"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Gateway: GatewayConfig{
			Host:     getEnv("GATEWAY_HOST", "127.0.0.1"),
			Port:     getEnvAsInt("GATEWAY_PORT", 7497),
			ClientID: getEnvAsInt("GATEWAY_CLIENT_ID", 1),
			Username: getEnv("GATEWAY_USERNAME", ""),

			ConnectTimeout:    getEnvAsDuration("GATEWAY_CONNECT_TIMEOUT", 25*time.Second),
			HeartbeatInterval: getEnvAsDuration("GATEWAY_HEARTBEAT_INTERVAL", 30*time.Second),
			LivenessTimeout:   getEnvAsDuration("GATEWAY_LIVENESS_TIMEOUT", 2*time.Minute),
			ReconnectInitial:  getEnvAsDuration("GATEWAY_RECONNECT_INITIAL", 1*time.Second),
			ReconnectMax:      getEnvAsDuration("GATEWAY_RECONNECT_MAX", 30*time.Second),
			MaxClientIDShifts: getEnvAsInt("GATEWAY_MAX_CLIENT_ID_SHIFTS", 10),

			MessageRate:    getEnvAsFloat("GATEWAY_MESSAGE_RATE", 40),
			MessageBurst:   getEnvAsFloat("GATEWAY_MESSAGE_BURST", 60),
			HistoricalRate: getEnvAsFloat("GATEWAY_HISTORICAL_RATE", 5),
		},
		MarketData: MarketDataConfig{
			Timezone:       getEnv("MARKET_TIMEZONE", "America/New_York"),
			BarRetention:   getEnvAsDuration("BAR_RETENTION", 7*24*time.Hour),
			SaveBufferSize: getEnvAsInt("BAR_SAVE_BUFFER", 4096),
		},
		Engine: EngineConfig{
			AccountValue:        getEnvAsFloat("ACCOUNT_VALUE", 100000),
			RiskPerTradePct:     getEnvAsFloat("RISK_PER_TRADE_PCT", 0.01),
			MaxExposurePct:      getEnvAsFloat("MAX_EXPOSURE_PCT", 0.5),
			MaxConcurrentTrades: getEnvAsInt("MAX_CONCURRENT_TRADES", 5),

			DailyLossLimit: getEnvAsFloat("DAILY_LOSS_LIMIT", 3000),
			MaxDrawdownPct: getEnvAsFloat("MAX_DRAWDOWN_PCT", 0.05),

			CircuitBreakerThreshold: getEnvAsInt("CIRCUIT_BREAKER_THRESHOLD", 3),
			CircuitBreakerCooldown:  getEnvAsDuration("CIRCUIT_BREAKER_COOLDOWN", 5*time.Minute),

			RelocationThresholdR: getEnvAsFloat("RELOCATION_THRESHOLD_R", 1.0),
			TrailingActivationR:  getEnvAsFloat("TRAILING_ACTIVATION_R", 2.0),
			TrailingDistanceR:    getEnvAsFloat("TRAILING_DISTANCE_R", 1.5),

			ForceExitTime: getEnv("FORCE_EXIT_TIME", "15:55"),
			OrderTimeout:  getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.decryptGatewayPassword(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Ключ обязателен только когда задан зашифрованный пароль шлюза
	encrypted := os.Getenv("GATEWAY_PASSWORD_ENCRYPTED")
	if encrypted == "" {
		return nil
	}

	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required when GATEWAY_PASSWORD_ENCRYPTED is set")
	}
	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	return nil
}

// decryptGatewayPassword расшифровывает пароль сессии шлюза если он задан
func (c *Config) decryptGatewayPassword() error {
	encrypted := os.Getenv("GATEWAY_PASSWORD_ENCRYPTED")
	if encrypted == "" {
		return nil
	}

	password, err := crypto.Decrypt(encrypted, []byte(c.Security.EncryptionKey))
	if err != nil {
		return fmt.Errorf("decrypting GATEWAY_PASSWORD_ENCRYPTED: %w", err)
	}
	c.Gateway.Password = password
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("GATEWAY_PORT must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.ClientID < 0 {
		return fmt.Errorf("GATEWAY_CLIENT_ID cannot be negative, got %d", c.Gateway.ClientID)
	}

	if c.Gateway.ConnectTimeout <= 0 {
		return fmt.Errorf("GATEWAY_CONNECT_TIMEOUT must be positive, got %v", c.Gateway.ConnectTimeout)
	}
	if c.Gateway.HeartbeatInterval < 20*time.Second || c.Gateway.HeartbeatInterval > 60*time.Second {
		return fmt.Errorf("GATEWAY_HEARTBEAT_INTERVAL must be between 20s and 60s, got %v", c.Gateway.HeartbeatInterval)
	}
	if c.Gateway.LivenessTimeout <= c.Gateway.HeartbeatInterval {
		return fmt.Errorf("GATEWAY_LIVENESS_TIMEOUT must exceed the heartbeat interval, got %v", c.Gateway.LivenessTimeout)
	}
	if c.Gateway.ReconnectInitial <= 0 || c.Gateway.ReconnectMax < c.Gateway.ReconnectInitial {
		return fmt.Errorf("invalid reconnect delays: initial=%v max=%v", c.Gateway.ReconnectInitial, c.Gateway.ReconnectMax)
	}

	if c.Engine.AccountValue <= 0 {
		return fmt.Errorf("ACCOUNT_VALUE must be positive, got %v", c.Engine.AccountValue)
	}
	if c.Engine.RiskPerTradePct <= 0 || c.Engine.RiskPerTradePct > 1 {
		return fmt.Errorf("RISK_PER_TRADE_PCT must be in (0, 1], got %v", c.Engine.RiskPerTradePct)
	}
	if c.Engine.MaxExposurePct <= 0 || c.Engine.MaxExposurePct > 1 {
		return fmt.Errorf("MAX_EXPOSURE_PCT must be in (0, 1], got %v", c.Engine.MaxExposurePct)
	}
	if c.Engine.MaxConcurrentTrades < 1 {
		return fmt.Errorf("MAX_CONCURRENT_TRADES must be at least 1, got %d", c.Engine.MaxConcurrentTrades)
	}
	if c.Engine.DailyLossLimit <= 0 {
		return fmt.Errorf("DAILY_LOSS_LIMIT must be positive, got %v", c.Engine.DailyLossLimit)
	}
	if c.Engine.MaxDrawdownPct <= 0 || c.Engine.MaxDrawdownPct > 1 {
		return fmt.Errorf("MAX_DRAWDOWN_PCT must be in (0, 1], got %v", c.Engine.MaxDrawdownPct)
	}
	if c.Engine.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be at least 1, got %d", c.Engine.CircuitBreakerThreshold)
	}
	if c.Engine.CircuitBreakerCooldown <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_COOLDOWN must be positive, got %v", c.Engine.CircuitBreakerCooldown)
	}
	if c.Engine.TrailingDistanceR <= 0 || c.Engine.TrailingActivationR <= 0 {
		return fmt.Errorf("trailing parameters must be positive, got activation=%v distance=%v",
			c.Engine.TrailingActivationR, c.Engine.TrailingDistanceR)
	}
	if c.Engine.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Engine.OrderTimeout)
	}

	if c.Engine.ForceExitTime != "" {
		if _, err := time.Parse("15:04", c.Engine.ForceExitTime); err != nil {
			return fmt.Errorf("FORCE_EXIT_TIME must be HH:MM, got %q", c.Engine.ForceExitTime)
		}
	}

	if _, err := time.LoadLocation(c.MarketData.Timezone); err != nil {
		return fmt.Errorf("MARKET_TIMEZONE %q: %w", c.MarketData.Timezone, err)
	}

	return nil
}

// Location возвращает таймзону торгового дня
func (m MarketDataConfig) Location() *time.Location {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
