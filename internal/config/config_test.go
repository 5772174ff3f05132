package config

import (
	"strings"
	"testing"
	"time"

	"patterntrader/pkg/crypto"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("Gateway.Host = %q, want 127.0.0.1", cfg.Gateway.Host)
	}
	if cfg.Gateway.ReconnectInitial != time.Second {
		t.Errorf("Gateway.ReconnectInitial = %v, want 1s", cfg.Gateway.ReconnectInitial)
	}
	if cfg.Gateway.ReconnectMax != 30*time.Second {
		t.Errorf("Gateway.ReconnectMax = %v, want 30s", cfg.Gateway.ReconnectMax)
	}
	if cfg.Gateway.LivenessTimeout != 2*time.Minute {
		t.Errorf("Gateway.LivenessTimeout = %v, want 2m", cfg.Gateway.LivenessTimeout)
	}
	if cfg.Engine.RiskPerTradePct != 0.01 {
		t.Errorf("Engine.RiskPerTradePct = %v, want 0.01", cfg.Engine.RiskPerTradePct)
	}
	if cfg.Engine.MaxConcurrentTrades != 5 {
		t.Errorf("Engine.MaxConcurrentTrades = %d, want 5", cfg.Engine.MaxConcurrentTrades)
	}
	if cfg.Engine.TrailingActivationR != 2.0 || cfg.Engine.TrailingDistanceR != 1.5 {
		t.Errorf("trailing defaults = (%v, %v), want (2.0, 1.5)",
			cfg.Engine.TrailingActivationR, cfg.Engine.TrailingDistanceR)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "4002")
	t.Setenv("GATEWAY_CLIENT_ID", "7")
	t.Setenv("RISK_PER_TRADE_PCT", "0.02")
	t.Setenv("MAX_CONCURRENT_TRADES", "3")
	t.Setenv("FORCE_EXIT_TIME", "15:45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.Port != 4002 {
		t.Errorf("Gateway.Port = %d, want 4002", cfg.Gateway.Port)
	}
	if cfg.Gateway.ClientID != 7 {
		t.Errorf("Gateway.ClientID = %d, want 7", cfg.Gateway.ClientID)
	}
	if cfg.Engine.RiskPerTradePct != 0.02 {
		t.Errorf("Engine.RiskPerTradePct = %v, want 0.02", cfg.Engine.RiskPerTradePct)
	}
	if cfg.Engine.MaxConcurrentTrades != 3 {
		t.Errorf("Engine.MaxConcurrentTrades = %d, want 3", cfg.Engine.MaxConcurrentTrades)
	}
	if cfg.Engine.ForceExitTime != "15:45" {
		t.Errorf("Engine.ForceExitTime = %q, want 15:45", cfg.Engine.ForceExitTime)
	}
}

func TestLoadRejectsInvalidRanges(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"server port too large", "SERVER_PORT", "70000"},
		{"gateway port zero", "GATEWAY_PORT", "0"},
		{"risk pct above one", "RISK_PER_TRADE_PCT", "1.5"},
		{"exposure pct zero", "MAX_EXPOSURE_PCT", "0"},
		{"concurrent trades zero", "MAX_CONCURRENT_TRADES", "0"},
		{"daily loss limit zero", "DAILY_LOSS_LIMIT", "0"},
		{"drawdown above one", "MAX_DRAWDOWN_PCT", "2"},
		{"breaker threshold zero", "CIRCUIT_BREAKER_THRESHOLD", "0"},
		{"heartbeat too fast", "GATEWAY_HEARTBEAT_INTERVAL", "5s"},
		{"heartbeat too slow", "GATEWAY_HEARTBEAT_INTERVAL", "2m"},
		{"liveness below heartbeat", "GATEWAY_LIVENESS_TIMEOUT", "10s"},
		{"bad force exit time", "FORCE_EXIT_TIME", "25:99"},
		{"bad timezone", "MARKET_TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDecryptsGatewayPassword(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	encrypted, err := crypto.Encrypt("session-pass", []byte(key))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	t.Setenv("ENCRYPTION_KEY", key)
	t.Setenv("GATEWAY_PASSWORD_ENCRYPTED", encrypted)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Password != "session-pass" {
		t.Errorf("Gateway.Password = %q, want decrypted value", cfg.Gateway.Password)
	}
}

func TestLoadRequiresKeyForEncryptedPassword(t *testing.T) {
	t.Setenv("GATEWAY_PASSWORD_ENCRYPTED", "anything")
	t.Setenv("ENCRYPTION_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load() without ENCRYPTION_KEY should fail when encrypted password is set")
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	t.Setenv("GATEWAY_PASSWORD_ENCRYPTED", "anything")
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() with short key should fail")
	}
	if !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("error = %v, want key length message", err)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "app", Password: "pw", Name: "trader", SSLMode: "disable",
	}

	dsn := d.DSN()
	if !strings.Contains(dsn, "password=pw") {
		t.Errorf("DSN() = %q, want password included", dsn)
	}

	safe := d.DSNWithoutPassword()
	if strings.Contains(safe, "pw") {
		t.Errorf("DSNWithoutPassword() = %q, must not contain the password", safe)
	}
}

func TestMarketDataLocation(t *testing.T) {
	m := MarketDataConfig{Timezone: "America/New_York"}
	if m.Location() == time.UTC {
		t.Error("Location() for New York should not be UTC")
	}

	bad := MarketDataConfig{Timezone: "Nowhere/Invalid"}
	if bad.Location() != time.UTC {
		t.Error("Location() for invalid timezone should fall back to UTC")
	}
}
