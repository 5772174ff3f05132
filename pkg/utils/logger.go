package utils

import (
	"math"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Единая точка инициализации логгера для всего процесса.
// Все компоненты ядра (engine, gateway, marketdata) логируют
// с контекстными полями (symbol, strategy, component); ошибки
// обработчиков событий никогда не роняют процесс, только пишутся в лог.
//
// Форматы:
// - json: production (парсится коллекторами)
// - text: локальная разработка (console encoder)

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // development-режим zap
}

// Logger - обёртка над zap.Logger с доменными хелперами
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// ============================================================
// Инициализация
// ============================================================

// InitLogger создаёт и настраивает логгер.
//
// Никогда не возвращает nil: при некорректной конфигурации
// используется fallback на stderr с уровнем info.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		if file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			sink = zapcore.AddSync(file)
		}
		// При ошибке открытия файла остаёмся на stderr: логгер обязан работать
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel преобразует строку в уровень zap (по умолчанию info)
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует глобальный логгер процесса
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер.
//
// Если логгер ещё не инициализирован, создаётся дефолтный (info, json),
// чтобы логирование работало даже до загрузки конфигурации.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// Sugar возвращает sugared-вариант логгера
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithSymbol возвращает логгер с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithStrategy возвращает логгер с полем strategy
func (l *Logger) WithStrategy(strategy string) *Logger {
	return l.With(Strategy(strategy))
}

// WithOrderID возвращает логгер с полем order_id
func (l *Logger) WithOrderID(orderID int64) *Logger {
	return l.With(OrderID(orderID))
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

// Fatal логирует и завершает процесс
func Fatal(msg string, fields ...zap.Field) { GetGlobalLogger().Fatal(msg, fields...) }

// Debugf - форматированный debug
func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }

// Infof - форматированный info
func Infof(template string, args ...interface{}) { GetGlobalLogger().sugar.Infof(template, args...) }

// Warnf - форматированный warn
func Warnf(template string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(template, args...) }

// Errorf - форматированный error
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей торгового домена
// ============================================================

// Symbol - поле symbol
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }

// Strategy - поле strategy
func Strategy(strategy string) zap.Field { return zap.String("strategy", strategy) }

// OrderID - поле order_id
func OrderID(id int64) zap.Field { return zap.Int64("order_id", id) }

// Price - поле price
func Price(price float64) zap.Field { return zap.Float64("price", price) }

// Quantity - поле quantity
func Quantity(qty int64) zap.Field { return zap.Int64("quantity", qty) }

// PNL - поле pnl
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }

// RMultiple - поле r_multiple
func RMultiple(r float64) zap.Field { return zap.Float64("r_multiple", r) }

// Side - поле side (buy/sell, long/short)
func Side(side string) zap.Field { return zap.String("side", side) }

// State - поле state (соединение, state machine)
func State(state string) zap.Field { return zap.String("state", state) }

// Phase - поле phase торговой state machine
func Phase(phase string) zap.Field { return zap.String("phase", phase) }

// TimeframeField - поле timeframe
func TimeframeField(tf string) zap.Field { return zap.String("timeframe", tf) }

// Latency - поле latency_ms
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// RequestID - поле request_id (HTTP middleware)
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле component
func Component(component string) zap.Field { return zap.String("component", component) }

// Переэкспорт стандартных конструкторов zap, чтобы вызывающие
// пакеты не импортировали zap напрямую ради одного поля.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Err      = zap.Error
	Any      = zap.Any
	TimeAt   = zap.Time
	Duration = zap.Duration
)

// fieldsToInterface конвертирует zap-поля в плоский список key/value
// для передачи в sugar-логгер.
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		var value interface{}
		switch f.Type {
		case zapcore.StringType:
			value = f.String
		case zapcore.Int64Type, zapcore.Int32Type:
			value = f.Integer
		case zapcore.Float64Type:
			value = math.Float64frombits(uint64(f.Integer))
		case zapcore.BoolType:
			value = f.Integer == 1
		default:
			value = f.Interface
		}
		result = append(result, f.Key, value)
	}
	return result
}
