package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"patterntrader/internal/models"
)

// ============================================================
// PersistenceService Tests
// ============================================================

type fakeBarRepo struct {
	mu      sync.Mutex
	saved   []models.IntradayBar
	saveErr error
	day     map[string][]*models.IntradayBar
	symbols []string
	listErr error
	cleaned []time.Time
}

func (f *fakeBarRepo) SaveBar(bar *models.IntradayBar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, *bar)
	return nil
}

func (f *fakeBarRepo) LoadBarsForDay(symbol string, _ models.Timeframe, _, _ time.Time) ([]*models.IntradayBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.day[symbol], nil
}

func (f *fakeBarRepo) ListActiveSymbols(_ time.Time) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.symbols, nil
}

func (f *fakeBarRepo) CleanupOldBars(before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, before)
	return 3, nil
}

func (f *fakeBarRepo) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeTradeRepo struct {
	mu     sync.Mutex
	trades []models.ClosedTrade
}

func (f *fakeTradeRepo) Create(trade *models.ClosedTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, *trade)
	return nil
}

type fakeSink struct {
	mu   sync.Mutex
	bars []models.IntradayBar
}

func (f *fakeSink) LoadHistoricalBar(bar models.IntradayBar) {
	f.mu.Lock()
	f.bars = append(f.bars, bar)
	f.mu.Unlock()
}

func minuteBar(symbol string, start time.Time) models.IntradayBar {
	return models.IntradayBar{
		Symbol:    symbol,
		Timeframe: models.Timeframe1m,
		StartTs:   start,
		EndTs:     start.Add(time.Minute),
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 1000,
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSaveBarAsyncPersistsMinuteBars(t *testing.T) {
	bars := &fakeBarRepo{}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 8, nil)
	defer svc.Close()

	start := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	svc.SaveBarAsync(minuteBar("AAPL", start), "2024-03-15")

	waitUntil(t, func() bool { return bars.savedCount() == 1 })
}

func TestSaveBarAsyncIgnoresSecondBars(t *testing.T) {
	bars := &fakeBarRepo{}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 8, nil)
	defer svc.Close()

	bar := minuteBar("AAPL", time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC))
	bar.Timeframe = models.Timeframe5s
	svc.SaveBarAsync(bar, "2024-03-15")

	svc.Close()
	if bars.savedCount() != 0 {
		t.Fatalf("sub-minute bars must not be persisted, saved %d", bars.savedCount())
	}
}

func TestSaveBarFailureDoesNotBlock(t *testing.T) {
	bars := &fakeBarRepo{saveErr: errors.New("db down")}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 8, nil)
	defer svc.Close()

	start := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		svc.SaveBarAsync(minuteBar("AAPL", start.Add(time.Duration(i)*time.Minute)), "2024-03-15")
	}
	// отправитель не заблокировался - этого достаточно
}

func TestRecordTradeAsyncPersists(t *testing.T) {
	trades := &fakeTradeRepo{}
	svc := NewPersistenceService(&fakeBarRepo{}, trades, time.UTC, 0, 8, nil)
	defer svc.Close()

	svc.RecordTradeAsync(&models.ClosedTrade{Symbol: "AAPL", Pnl: 42})
	svc.RecordTradeAsync(nil) // nil игнорируется

	waitUntil(t, func() bool {
		trades.mu.Lock()
		defer trades.mu.Unlock()
		return len(trades.trades) == 1
	})
}

func TestCloseDrainsBufferedBars(t *testing.T) {
	bars := &fakeBarRepo{}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 64, nil)

	start := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		svc.SaveBarAsync(minuteBar("AAPL", start.Add(time.Duration(i)*time.Minute)), "2024-03-15")
	}
	svc.Close()

	if got := bars.savedCount(); got != 10 {
		t.Fatalf("expected all 10 buffered bars persisted on close, got %d", got)
	}
}

func TestBackfillLoadsDayIntoSink(t *testing.T) {
	dayStart := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	open := dayStart.Add(9*time.Hour + 30*time.Minute)

	aapl1 := minuteBar("AAPL", open)
	aapl2 := minuteBar("AAPL", open.Add(time.Minute))
	tsla := minuteBar("TSLA", open)

	bars := &fakeBarRepo{
		symbols: []string{"AAPL", "TSLA"},
		day: map[string][]*models.IntradayBar{
			"AAPL": {&aapl1, &aapl2},
			"TSLA": {&tsla},
		},
	}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 8, nil)
	defer svc.Close()

	sink := &fakeSink{}
	if err := svc.Backfill(sink, open.Add(2*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.bars) != 3 {
		t.Fatalf("expected 3 backfilled bars, got %d", len(sink.bars))
	}
	if sink.bars[0].Symbol != "AAPL" || sink.bars[2].Symbol != "TSLA" {
		t.Errorf("unexpected backfill order: %+v", sink.bars)
	}
}

func TestBackfillPropagatesListError(t *testing.T) {
	bars := &fakeBarRepo{listErr: errors.New("db down")}
	svc := NewPersistenceService(bars, &fakeTradeRepo{}, time.UTC, 0, 8, nil)
	defer svc.Close()

	if err := svc.Backfill(&fakeSink{}, time.Now()); err == nil {
		t.Fatal("expected error when symbol listing fails")
	}
}
