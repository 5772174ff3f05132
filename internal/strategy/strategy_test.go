package strategy

import (
	"errors"
	"testing"
	"time"

	"patterntrader/internal/models"
)

// ============================================
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ============================================

type stubStrategy struct {
	name string
	tf   models.Timeframe
}

func (s *stubStrategy) Name() string                { return s.name }
func (s *stubStrategy) Timeframe() models.Timeframe { return s.tf }
func (s *stubStrategy) EntryFirst([]models.IntradayBar, models.StrategyState) EntryDecision {
	return EntryDecision{}
}
func (s *stubStrategy) StopsForEntry1([]models.IntradayBar, models.StrategyState) StopDecision {
	return StopDecision{}
}
func (s *stubStrategy) ExitFirst([]models.IntradayBar, models.StrategyState) ExitDecision {
	return ExitDecision{}
}
func (s *stubStrategy) EntrySecond([]models.IntradayBar, models.StrategyState) EntryDecision {
	return EntryDecision{}
}
func (s *stubStrategy) StopsForEntry2([]models.IntradayBar, models.StrategyState) StopDecision {
	return StopDecision{}
}
func (s *stubStrategy) ExitSecond([]models.IntradayBar, models.StrategyState) ExitDecision {
	return ExitDecision{}
}

func minuteBars(ohlc ...[4]float64) []models.IntradayBar {
	base := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	bars := make([]models.IntradayBar, 0, len(ohlc))
	for i, c := range ohlc {
		start := base.Add(time.Duration(i) * time.Minute)
		bars = append(bars, models.IntradayBar{
			Symbol:    "AAPL",
			Timeframe: models.Timeframe1m,
			StartTs:   start,
			EndTs:     start.Add(time.Minute),
			Open:      c[0],
			High:      c[1],
			Low:       c[2],
			Close:     c[3],
			Volume:    100,
		})
	}
	return bars
}

// ============================================
// ТЕСТЫ РЕЕСТРА
// ============================================

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&stubStrategy{name: "alpha", tf: models.Timeframe1m}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name() != "alpha" {
		t.Errorf("Get() name = %q, want alpha", got.Name())
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&stubStrategy{name: "alpha"}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := r.Register(&stubStrategy{name: "alpha"})
	if !errors.Is(err, ErrDuplicateStrategy) {
		t.Errorf("second Register() error = %v, want ErrDuplicateStrategy", err)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("ghost")
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Get() error = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryStateKinds(t *testing.T) {
	r := NewRegistry()
	r.RegisterStateKind(BreakoutName, func() models.CustomState { return &BreakoutState{} })

	st, err := r.NewState(BreakoutName)
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	if _, ok := st.(*BreakoutState); !ok {
		t.Errorf("NewState() type = %T, want *BreakoutState", st)
	}

	_, err = r.NewState("ghost")
	if !errors.Is(err, ErrUnknownStateKind) {
		t.Errorf("NewState(ghost) error = %v, want ErrUnknownStateKind", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(&stubStrategy{name: name}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("Names() len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

// ============================================
// ТЕСТЫ СТРАТЕГИИ ПРОБОЯ
// ============================================

func TestBreakoutDetectRangeFormed(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)

	// Диапазон 100-102, последний бар закрывается внутри
	bars := minuteBars(
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 102, 100.5, 101.5},
		[4]float64{101, 101.8, 100.2, 101},
		[4]float64{101, 102.5, 101, 101.5},
	)

	det := b.Detect(bars)
	if !det.Detected {
		t.Fatal("Detect() Detected = false, want true")
	}
	if det.Direction != models.DirectionLong {
		t.Errorf("Detect() direction = %v, want long", det.Direction)
	}
	bs, ok := det.Pattern.(*BreakoutState)
	if !ok {
		t.Fatalf("Detect() pattern type = %T, want *BreakoutState", det.Pattern)
	}
	if bs.RangeHigh != 102 || bs.RangeLow != 100 {
		t.Errorf("range = [%v, %v], want [100, 102]", bs.RangeLow, bs.RangeHigh)
	}
}

func TestBreakoutDetectCloseOutsideRange(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)

	// Последнее закрытие уже за диапазоном - паттерн не фиксируется
	bars := minuteBars(
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 102, 100.5, 101.5},
		[4]float64{101, 101.8, 100.2, 101},
		[4]float64{101, 103, 101, 102.8},
	)

	det := b.Detect(bars)
	if det.Detected {
		t.Error("Detect() Detected = true with close outside range")
	}
	if det.Direction != models.DirectionLong {
		t.Errorf("Detect() direction = %v, want long even without detection", det.Direction)
	}
}

func TestBreakoutDetectInsufficientBars(t *testing.T) {
	b := NewBreakout(models.DirectionShort, models.Timeframe1m, 3)
	bars := minuteBars([4]float64{100, 102, 100, 101})

	det := b.Detect(bars)
	if det.Detected {
		t.Error("Detect() Detected = true with insufficient history")
	}
	if det.Direction != models.DirectionShort {
		t.Errorf("Detect() direction = %v, want short", det.Direction)
	}
}

func TestBreakoutEntryFirstLong(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)

	// Диапазон 100-102, последний бар закрывается выше
	bars := minuteBars(
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 102, 100.5, 101.5},
		[4]float64{101, 101.8, 100.2, 101},
		[4]float64{101, 103, 101, 102.8},
	)
	st := models.StrategyState{Phase: models.PhaseSearch}

	dec := b.EntryFirst(bars, st)
	if !dec.Enter {
		t.Fatal("EntryFirst() Enter = false, want true")
	}
	if dec.Price != 102.8 {
		t.Errorf("EntryFirst() price = %v, want 102.8", dec.Price)
	}
	bs, ok := dec.Meta.(*BreakoutState)
	if !ok {
		t.Fatalf("EntryFirst() meta type = %T, want *BreakoutState", dec.Meta)
	}
	if bs.RangeHigh != 102 || bs.RangeLow != 100 {
		t.Errorf("range = [%v, %v], want [100, 102]", bs.RangeLow, bs.RangeHigh)
	}
}

func TestBreakoutEntryFirstNoSignal(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)

	// Закрытие внутри диапазона
	bars := minuteBars(
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 102, 100.5, 101.5},
		[4]float64{101, 101.8, 100.2, 101},
		[4]float64{101, 102.5, 101, 101.9},
	)
	st := models.StrategyState{Phase: models.PhaseSearch}

	if dec := b.EntryFirst(bars, st); dec.Enter {
		t.Error("EntryFirst() Enter = true without breakout close")
	}
}

func TestBreakoutEntryFirstInsufficientBars(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	bars := minuteBars([4]float64{100, 102, 100, 103})
	st := models.StrategyState{Phase: models.PhaseSearch}

	if dec := b.EntryFirst(bars, st); dec.Enter {
		t.Error("EntryFirst() Enter = true with insufficient history")
	}
}

func TestBreakoutEntryFirstShort(t *testing.T) {
	b := NewBreakout(models.DirectionShort, models.Timeframe1m, 3)

	bars := minuteBars(
		[4]float64{100, 102, 100, 101},
		[4]float64{101, 102, 100.5, 101.5},
		[4]float64{101, 101.8, 100, 101},
		[4]float64{100.5, 100.8, 99, 99.2},
	)
	st := models.StrategyState{Phase: models.PhaseSearch}

	dec := b.EntryFirst(bars, st)
	if !dec.Enter {
		t.Fatal("EntryFirst() short Enter = false, want true")
	}
	if dec.Price != 99.2 {
		t.Errorf("EntryFirst() short price = %v, want 99.2", dec.Price)
	}
}

func TestBreakoutStopsForEntry1(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	bars := minuteBars([4]float64{101, 103, 101, 102.8})
	st := models.StrategyState{
		Phase:  models.PhaseEntry1,
		Custom: &BreakoutState{RangeHigh: 102, RangeLow: 100, EntryBarHi: 103, EntryBarLo: 101},
	}

	if dec := b.StopsForEntry1(bars, st); dec.Initial != 101 {
		t.Errorf("StopsForEntry1() = %v, want 101 (entry bar low)", dec.Initial)
	}
}

func TestBreakoutEntrySecondPullbackThenBreak(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	st := models.StrategyState{
		Phase:  models.PhaseEntry1,
		Custom: &BreakoutState{RangeHigh: 102, RangeLow: 100, EntryBarHi: 103, EntryBarLo: 101},
	}

	// Откат: минимум ниже максимума бара входа, закрытие держится над границей
	pullback := minuteBars([4]float64{102.8, 102.9, 102.2, 102.5})
	dec := b.EntrySecond(pullback, st)
	if dec.Enter {
		t.Fatal("EntrySecond() entered on pullback bar")
	}

	bs := st.Custom.(*BreakoutState)
	if !bs.PulledBack {
		t.Fatal("pullback not marked in state")
	}

	// Новый максимум после отката - добор
	cont := minuteBars([4]float64{102.5, 103.5, 102.4, 103.2})
	dec = b.EntrySecond(cont, st)
	if !dec.Enter {
		t.Fatal("EntrySecond() Enter = false after pullback and new high")
	}
	if dec.Price != 103.2 {
		t.Errorf("EntrySecond() price = %v, want 103.2", dec.Price)
	}
}

func TestBreakoutEntrySecondNoPullback(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	st := models.StrategyState{
		Phase:  models.PhaseEntry1,
		Custom: &BreakoutState{RangeHigh: 102, RangeLow: 100, EntryBarHi: 103, EntryBarLo: 101},
	}

	// Новый максимум без отката - добора нет
	bars := minuteBars([4]float64{103, 104, 103.1, 103.8})
	if dec := b.EntrySecond(bars, st); dec.Enter {
		t.Error("EntrySecond() entered without prior pullback")
	}
}

func TestBreakoutExitInsideRange(t *testing.T) {
	b := NewBreakout(models.DirectionLong, models.Timeframe1m, 3)
	st := models.StrategyState{
		Phase:  models.PhaseActive,
		Custom: &BreakoutState{RangeHigh: 102, RangeLow: 100},
	}

	hold := minuteBars([4]float64{103, 103.5, 102.5, 103.1})
	if dec := b.ExitSecond(hold, st); dec.Exit {
		t.Error("ExitSecond() Exit = true while above range")
	}

	back := minuteBars([4]float64{102.5, 102.6, 101.5, 101.8})
	dec := b.ExitSecond(back, st)
	if !dec.Exit {
		t.Fatal("ExitSecond() Exit = false on close back inside range")
	}
	if dec.Price != 101.8 {
		t.Errorf("ExitSecond() price = %v, want 101.8", dec.Price)
	}
}

func TestBreakoutStopsForEntry2(t *testing.T) {
	b := NewBreakout(models.DirectionShort, models.Timeframe1m, 3)
	st := models.StrategyState{
		Phase:  models.PhaseEntry2,
		Custom: &BreakoutState{RangeHigh: 102, RangeLow: 100},
	}

	if dec := b.StopsForEntry2(nil, st); dec.Initial != 100 {
		t.Errorf("StopsForEntry2() short = %v, want 100 (range low)", dec.Initial)
	}
}
