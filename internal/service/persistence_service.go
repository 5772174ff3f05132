package service

import (
	"context"
	"sync"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// ============================================
// СЕРВИС ПЕРСИСТЕНТНОСТИ
// ============================================
//
// Закрытые бары и сделки пишутся в БД асинхронно, fire-and-forget:
// сбой записи логируется и считается в метриках, но никогда не
// задерживает горячий путь тиков и ордеров. Переполненный буфер
// роняет запись, не отправителя.

// defaultSaveBuffer - размер буфера при нулевой конфигурации
const defaultSaveBuffer = 4096

// PersistenceService - асинхронная запись баров и сделок плюс
// стартовый backfill хаба из БД
type PersistenceService struct {
	bars      BarRepositoryInterface
	trades    TradeRepositoryInterface
	loc       *time.Location
	retention time.Duration
	logger    *utils.Logger

	barCh   chan models.IntradayBar
	tradeCh chan *models.ClosedTrade

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPersistenceService создает сервис и запускает воркеры записи
func NewPersistenceService(
	bars BarRepositoryInterface,
	trades TradeRepositoryInterface,
	loc *time.Location,
	retention time.Duration,
	bufferSize int,
	logger *utils.Logger,
) *PersistenceService {
	if loc == nil {
		loc = time.UTC
	}
	if bufferSize <= 0 {
		bufferSize = defaultSaveBuffer
	}
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	s := &PersistenceService{
		bars:      bars,
		trades:    trades,
		loc:       loc,
		retention: retention,
		logger:    logger.WithComponent("persistence"),
		barCh:     make(chan models.IntradayBar, bufferSize),
		tradeCh:   make(chan *models.ClosedTrade, bufferSize),
		stop:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.barWorker()
	go s.tradeWorker()

	return s
}

// SaveBarAsync ставит закрытый бар в очередь записи.
// Персистентность только для минутных баров: секундные таймфреймы
// живут в памяти хаба. Полный буфер роняет бар, не отправителя.
func (s *PersistenceService) SaveBarAsync(bar models.IntradayBar, tradingDay string) {
	if bar.Timeframe != models.Timeframe1m {
		return
	}

	select {
	case s.barCh <- bar:
	default:
		barsDroppedTotal.Inc()
		s.logger.Warn("bar save buffer full, bar dropped",
			utils.Symbol(bar.Symbol),
			utils.String("trading_day", tradingDay))
	}
}

// RecordTradeAsync ставит закрытую сделку в очередь записи
func (s *PersistenceService) RecordTradeAsync(trade *models.ClosedTrade) {
	if trade == nil {
		return
	}

	select {
	case s.tradeCh <- trade:
	default:
		tradeSaveFailuresTotal.Inc()
		s.logger.Warn("trade save buffer full, trade dropped",
			utils.Symbol(trade.Symbol))
	}
}

func (s *PersistenceService) barWorker() {
	defer s.wg.Done()

	for {
		select {
		case bar := <-s.barCh:
			if err := s.bars.SaveBar(&bar); err != nil {
				barSaveFailuresTotal.Inc()
				s.logger.Error("bar save failed",
					utils.Symbol(bar.Symbol), utils.Err(err))
				continue
			}
			barsSavedTotal.Inc()
		case <-s.stop:
			// добиваем накопленное перед выходом
			for {
				select {
				case bar := <-s.barCh:
					if err := s.bars.SaveBar(&bar); err != nil {
						barSaveFailuresTotal.Inc()
						s.logger.Error("bar save failed on drain",
							utils.Symbol(bar.Symbol), utils.Err(err))
					}
				default:
					return
				}
			}
		}
	}
}

func (s *PersistenceService) tradeWorker() {
	defer s.wg.Done()

	for {
		select {
		case trade := <-s.tradeCh:
			if err := s.trades.Create(trade); err != nil {
				tradeSaveFailuresTotal.Inc()
				s.logger.Error("trade save failed",
					utils.Symbol(trade.Symbol), utils.Err(err))
				continue
			}
			tradesSavedTotal.Inc()
		case <-s.stop:
			for {
				select {
				case trade := <-s.tradeCh:
					if err := s.trades.Create(trade); err != nil {
						tradeSaveFailuresTotal.Inc()
						s.logger.Error("trade save failed on drain",
							utils.Symbol(trade.Symbol), utils.Err(err))
					}
				default:
					return
				}
			}
		}
	}
}

// Backfill загружает минутные бары текущего торгового дня в хаб.
// Бары идут в хронологическом порядке; сбой одного символа не
// прерывает загрузку остальных.
func (s *PersistenceService) Backfill(sink HistoricalSink, now time.Time) error {
	dayStart := utils.GetDayStartFrom(now.In(s.loc))
	dayEnd := utils.NextDayStart(now, s.loc)

	symbols, err := s.bars.ListActiveSymbols(dayStart)
	if err != nil {
		return err
	}

	loaded := 0
	for _, symbol := range symbols {
		bars, err := s.bars.LoadBarsForDay(symbol, models.Timeframe1m, dayStart, dayEnd)
		if err != nil {
			s.logger.Error("backfill failed for symbol",
				utils.Symbol(symbol), utils.Err(err))
			continue
		}
		for _, bar := range bars {
			sink.LoadHistoricalBar(*bar)
			loaded++
		}
	}

	s.logger.Info("backfill complete",
		utils.Int("symbols", len(symbols)),
		utils.Int("bars", loaded))
	return nil
}

// Run периодически чистит бары старше срока хранения.
// Блокируется до отмены контекста.
func (s *PersistenceService) Run(ctx context.Context) {
	if s.retention <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.bars.CleanupOldBars(time.Now().Add(-s.retention))
			if err != nil {
				s.logger.Error("bar cleanup failed", utils.Err(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("old bars cleaned up", utils.Int64("deleted", deleted))
			}
		}
	}
}

// Close останавливает воркеры, дописав буферизованные записи
func (s *PersistenceService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
