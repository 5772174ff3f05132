package utils

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected zapcore.Level
	}{
		{"debug", "debug", zapcore.DebugLevel},
		{"info", "info", zapcore.InfoLevel},
		{"warn", "warn", zapcore.WarnLevel},
		{"warning alias", "warning", zapcore.WarnLevel},
		{"error", "error", zapcore.ErrorLevel},
		{"fatal", "fatal", zapcore.FatalLevel},
		{"uppercase", "DEBUG", zapcore.DebugLevel},
		{"unknown defaults to info", "verbose", zapcore.InfoLevel},
		{"empty defaults to info", "", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestInitLoggerNeverNil(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
	}{
		{"empty config", LogConfig{}},
		{"json format", LogConfig{Level: "debug", Format: "json"}},
		{"text format", LogConfig{Level: "warn", Format: "text"}},
		{"development", LogConfig{Level: "debug", Format: "text", Development: true}},
		{"unknown level and format", LogConfig{Level: "nope", Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := InitLogger(tt.cfg)
			if logger == nil {
				t.Fatal("InitLogger returned nil")
			}
			if logger.Logger == nil {
				t.Error("embedded zap.Logger is nil")
			}
			if logger.Sugar() == nil {
				t.Error("Sugar() returned nil")
			}
		})
	}
}

func TestInitLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	logger := InitLogger(LogConfig{Level: "info", Format: "json", Output: path})
	logger.Info("file sink check", Symbol("AAPL"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty, expected a json record")
	}
}

func TestInitLoggerInvalidOutputFallsBack(t *testing.T) {
	// Несуществующий каталог: логгер обязан откатиться на stderr без паники
	logger := InitLogger(LogConfig{Output: "/nonexistent/dir/app.log"})
	if logger == nil {
		t.Fatal("InitLogger returned nil for invalid output path")
	}
	logger.Info("still alive")
}

func TestGlobalLogger(t *testing.T) {
	original := globalLogger
	defer SetGlobalLogger(original)

	SetGlobalLogger(nil)
	logger := GetGlobalLogger()
	if logger == nil {
		t.Fatal("GetGlobalLogger returned nil after reset")
	}

	custom := InitLogger(LogConfig{Level: "error"})
	SetGlobalLogger(custom)
	if GetGlobalLogger() != custom {
		t.Error("GetGlobalLogger did not return the logger set via SetGlobalLogger")
	}
	if L() != custom {
		t.Error("L() did not return the global logger")
	}

	initialized := InitGlobalLogger(LogConfig{Level: "debug"})
	if GetGlobalLogger() != initialized {
		t.Error("InitGlobalLogger did not install the new logger globally")
	}
}

func TestWithHelpers(t *testing.T) {
	logger := InitLogger(LogConfig{Level: "debug"})

	tests := []struct {
		name  string
		child *Logger
	}{
		{"WithComponent", logger.WithComponent("engine")},
		{"WithSymbol", logger.WithSymbol("TSLA")},
		{"WithStrategy", logger.WithStrategy("breakout")},
		{"WithOrderID", logger.WithOrderID(42)},
		{"With fields", logger.With(Price(101.5), Quantity(50))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.child == nil {
				t.Fatal("helper returned nil logger")
			}
			if tt.child == logger {
				t.Error("helper should return a child logger, not the same instance")
			}
			if tt.child.Sugar() == nil {
				t.Error("child logger has nil sugar")
			}
		})
	}
}

func TestDomainFields(t *testing.T) {
	tests := []struct {
		name     string
		field    zap.Field
		wantKey  string
		wantType zapcore.FieldType
	}{
		{"symbol", Symbol("NVDA"), "symbol", zapcore.StringType},
		{"strategy", Strategy("pullback"), "strategy", zapcore.StringType},
		{"order id", OrderID(42), "order_id", zapcore.Int64Type},
		{"price", Price(99.9), "price", zapcore.Float64Type},
		{"quantity", Quantity(100), "quantity", zapcore.Int64Type},
		{"pnl", PNL(-12.5), "pnl", zapcore.Float64Type},
		{"r multiple", RMultiple(2.0), "r_multiple", zapcore.Float64Type},
		{"side", Side("long"), "side", zapcore.StringType},
		{"state", State("CONNECTED"), "state", zapcore.StringType},
		{"phase", Phase("active"), "phase", zapcore.StringType},
		{"timeframe", TimeframeField("5s"), "timeframe", zapcore.StringType},
		{"latency", Latency(3.2), "latency_ms", zapcore.Float64Type},
		{"request id", RequestID("req-7"), "request_id", zapcore.StringType},
		{"component", Component("gateway"), "component", zapcore.StringType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Key != tt.wantKey {
				t.Errorf("field key = %q, want %q", tt.field.Key, tt.wantKey)
			}
			if tt.field.Type != tt.wantType {
				t.Errorf("field type = %v, want %v", tt.field.Type, tt.wantType)
			}
		})
	}
}

func TestFieldsToInterface(t *testing.T) {
	fields := []zap.Field{
		Symbol("AAPL"),
		Quantity(50),
		Price(187.25),
		Bool("paper", true),
	}

	flat := fieldsToInterface(fields)

	if len(flat) != len(fields)*2 {
		t.Fatalf("fieldsToInterface length = %d, want %d", len(flat), len(fields)*2)
	}
	if flat[0] != "symbol" || flat[1] != "AAPL" {
		t.Errorf("symbol pair = (%v, %v), want (symbol, AAPL)", flat[0], flat[1])
	}
	if flat[2] != "quantity" || flat[3] != int64(50) {
		t.Errorf("quantity pair = (%v, %v), want (quantity, 50)", flat[2], flat[3])
	}
	if flat[4] != "price" || flat[5] != 187.25 {
		t.Errorf("price pair = (%v, %v), want (price, 187.25)", flat[4], flat[5])
	}
	if flat[6] != "paper" || flat[7] != true {
		t.Errorf("bool pair = (%v, %v), want (paper, true)", flat[6], flat[7])
	}
}

func TestGlobalLogFunctionsDoNotPanic(t *testing.T) {
	original := globalLogger
	defer SetGlobalLogger(original)
	SetGlobalLogger(InitLogger(LogConfig{Level: "debug"}))

	Debug("debug msg", Component("test"))
	Info("info msg", Symbol("SPY"))
	Warn("warn msg", State("ERROR"))
	Error("error msg", Err(os.ErrClosed))
	Debugf("formatted %s %d", "debug", 1)
	Infof("formatted %s %d", "info", 2)
	Warnf("formatted %s %d", "warn", 3)
	Errorf("formatted %s %d", "error", 4)
}
