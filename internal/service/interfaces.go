package service

import (
	"time"

	"patterntrader/internal/models"
)

// BarRepositoryInterface определяет интерфейс репозитория баров
type BarRepositoryInterface interface {
	SaveBar(bar *models.IntradayBar) error
	LoadBarsForDay(symbol string, tf models.Timeframe, dayStart, dayEnd time.Time) ([]*models.IntradayBar, error)
	ListActiveSymbols(since time.Time) ([]string, error)
	CleanupOldBars(before time.Time) (int64, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Create(trade *models.ClosedTrade) error
}

// StrategyConfigRepositoryInterface определяет интерфейс репозитория
// конфигураций стратегий
type StrategyConfigRepositoryInterface interface {
	GetActive() ([]*models.StrategyConfig, error)
}

// HistoricalSink - приёмник баров при стартовом backfill (хаб)
type HistoricalSink interface {
	LoadHistoricalBar(bar models.IntradayBar)
}
