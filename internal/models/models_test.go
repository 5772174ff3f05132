package models

import (
	"math"
	"testing"
	"time"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Phase
		to      Phase
		allowed bool
	}{
		{"search to entry1", PhaseSearch, PhaseEntry1, true},
		{"entry1 to entry2", PhaseEntry1, PhaseEntry2, true},
		{"entry1 straight to active", PhaseEntry1, PhaseActive, true},
		{"entry2 to active", PhaseEntry2, PhaseActive, true},
		{"active to exit", PhaseActive, PhaseExit, true},
		{"exit to search", PhaseExit, PhaseSearch, true},

		{"search self", PhaseSearch, PhaseSearch, true},
		{"entry1 self", PhaseEntry1, PhaseEntry1, true},
		{"entry2 self", PhaseEntry2, PhaseEntry2, true},
		{"active self", PhaseActive, PhaseActive, true},
		{"exit self", PhaseExit, PhaseExit, true},

		{"search skips to active", PhaseSearch, PhaseActive, false},
		{"search skips to exit", PhaseSearch, PhaseExit, false},
		{"entry1 back to search", PhaseEntry1, PhaseSearch, false},
		{"entry2 back to search", PhaseEntry2, PhaseSearch, false},
		{"active back to search", PhaseActive, PhaseSearch, false},
		{"active back to entry2", PhaseActive, PhaseEntry2, false},
		{"exit to active", PhaseExit, PhaseActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestDirectionSign(t *testing.T) {
	if DirectionLong.Sign() != 1 {
		t.Error("long sign should be +1")
	}
	if DirectionShort.Sign() != -1 {
		t.Error("short sign should be -1")
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirectionLong.Opposite() != DirectionShort {
		t.Error("opposite of long should be short")
	}
	if DirectionShort.Opposite() != DirectionLong {
		t.Error("opposite of short should be long")
	}
}

func TestTimeframeDuration(t *testing.T) {
	tests := []struct {
		tf       Timeframe
		expected time.Duration
	}{
		{Timeframe1s, time.Second},
		{Timeframe5s, 5 * time.Second},
		{Timeframe1m, time.Minute},
		{Timeframe("1h"), 0},
	}

	for _, tt := range tests {
		if got := tt.tf.Duration(); got != tt.expected {
			t.Errorf("Duration(%s) = %v, want %v", tt.tf, got, tt.expected)
		}
	}
}

func TestTimeframeValid(t *testing.T) {
	for _, tf := range AllTimeframes {
		if !tf.Valid() {
			t.Errorf("Timeframe %s should be valid", tf)
		}
	}
	if Timeframe("2h").Valid() {
		t.Error("unsupported timeframe should be invalid")
	}
}

func TestBucketStart(t *testing.T) {
	tests := []struct {
		name     string
		tf       Timeframe
		ts       time.Time
		expected time.Time
	}{
		{
			name:     "5s mid bucket",
			tf:       Timeframe5s,
			ts:       time.Date(2024, 3, 15, 9, 30, 13, 250_000_000, time.UTC),
			expected: time.Date(2024, 3, 15, 9, 30, 10, 0, time.UTC),
		},
		{
			name:     "5s exact boundary stays",
			tf:       Timeframe5s,
			ts:       time.Date(2024, 3, 15, 9, 30, 15, 0, time.UTC),
			expected: time.Date(2024, 3, 15, 9, 30, 15, 0, time.UTC),
		},
		{
			name:     "1m truncates seconds",
			tf:       Timeframe1m,
			ts:       time.Date(2024, 3, 15, 9, 30, 59, 999_000_000, time.UTC),
			expected: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		},
		{
			name:     "1s truncates nanos",
			tf:       Timeframe1s,
			ts:       time.Date(2024, 3, 15, 9, 30, 13, 999_999_999, time.UTC),
			expected: time.Date(2024, 3, 15, 9, 30, 13, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tf.BucketStart(tt.ts); !got.Equal(tt.expected) {
				t.Errorf("BucketStart(%v) = %v, want %v", tt.ts, got, tt.expected)
			}
		})
	}
}

func TestTradingDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}

	// 01:00 UTC 16-го = вечер 15-го в Нью-Йорке
	ts := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	if got := TradingDay(ts, ny); got != "2024-03-15" {
		t.Errorf("TradingDay = %q, want 2024-03-15", got)
	}
	if got := TradingDay(ts, nil); got != "2024-03-16" {
		t.Errorf("TradingDay with nil loc = %q, want 2024-03-16 (UTC)", got)
	}
}

func TestUnrealizedPnl(t *testing.T) {
	long := &OpenPosition{
		Direction:  DirectionLong,
		EntryPrice: 100.0,
		Quantity:   50,
	}
	short := &OpenPosition{
		Direction:  DirectionShort,
		EntryPrice: 100.0,
		Quantity:   50,
	}

	tests := []struct {
		name     string
		pos      *OpenPosition
		price    float64
		expected float64
	}{
		{"long gain", long, 102.0, 100.0},
		{"long loss", long, 99.0, -50.0},
		{"short gain", short, 98.0, 100.0},
		{"short loss", short, 101.0, -50.0},
		{"flat", long, 100.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.UnrealizedPnl(tt.price); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("UnrealizedPnl(%v) = %v, want %v", tt.price, got, tt.expected)
			}
		})
	}
}

func TestCurrentR(t *testing.T) {
	pos := &OpenPosition{
		Direction:    DirectionLong,
		EntryPrice:   100.0,
		Quantity:     50,
		RiskPerShare: 2.0,
		RiskDollars:  100.0,
	}

	if got := pos.CurrentR(104.0); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("CurrentR(104) = %v, want 2.0", got)
	}
	if got := pos.CurrentR(99.0); math.Abs(got-(-0.5)) > 1e-9 {
		t.Errorf("CurrentR(99) = %v, want -0.5", got)
	}

	zeroRisk := &OpenPosition{Direction: DirectionLong, EntryPrice: 100.0, Quantity: 50}
	if got := zeroRisk.CurrentR(110.0); got != 0 {
		t.Errorf("CurrentR with zero risk = %v, want 0", got)
	}
}

func TestNewClosedTrade(t *testing.T) {
	opened := time.Date(2024, 3, 15, 9, 45, 0, 0, time.UTC)
	closed := time.Date(2024, 3, 15, 11, 20, 0, 0, time.UTC)

	pos := &OpenPosition{
		Symbol:       "AAPL",
		Strategy:     "breakout",
		Direction:    DirectionLong,
		EntryPrice:   100.0,
		Quantity:     50,
		RiskPerShare: 2.0,
		OpenedAt:     opened,
	}

	trade := NewClosedTrade(pos, 104.0, ExitReasonSignal, closed)

	if trade.Pnl != 200.0 {
		t.Errorf("Pnl = %v, want 200", trade.Pnl)
	}
	if math.Abs(trade.RMultiple-2.0) > 1e-9 {
		t.Errorf("RMultiple = %v, want 2.0", trade.RMultiple)
	}
	if trade.ExitReason != ExitReasonSignal {
		t.Errorf("ExitReason = %q, want %q", trade.ExitReason, ExitReasonSignal)
	}
	if !trade.OpenedAt.Equal(opened) || !trade.ClosedAt.Equal(closed) {
		t.Error("timestamps should be carried over")
	}
}

func TestNewClosedTradeZeroRisk(t *testing.T) {
	pos := &OpenPosition{
		Symbol:     "AAPL",
		Direction:  DirectionLong,
		EntryPrice: 100.0,
		Quantity:   50,
	}
	trade := NewClosedTrade(pos, 105.0, ExitReasonForced, time.Now())
	if trade.RMultiple != 0 {
		t.Errorf("RMultiple with zero risk = %v, want 0", trade.RMultiple)
	}
}
