package scoring

// rules.go - встроенный набор правил ценового действия
//
// Каждое правило переводит признаки окна в сырой балл [-10, +10].
// Веса групп: структура и реакции на уровни весомее разрывов и
// одиночных свечных формаций.

func defaultRules() []rule {
	return []rule{
		{
			name:   "STRUCTURE:UPTREND",
			weight: 1.0,
			eval: func(f features) (bool, float64) {
				return f.structure == structureUptrend, 5
			},
		},
		{
			name:   "STRUCTURE:DOWNTREND",
			weight: 1.0,
			eval: func(f features) (bool, float64) {
				return f.structure == structureDowntrend, -5
			},
		},
		{
			name:   "STRUCTURE:SIDEWAYS",
			weight: 0.5,
			eval: func(f features) (bool, float64) {
				return f.structure == structureSideways, 0
			},
		},
		{
			name:   "BREAKOUT:UP_CONFIRMED",
			weight: 1.1,
			eval: func(f features) (bool, float64) {
				if !f.breakoutUp {
					return false, 0
				}
				if f.volumeConfirm {
					return true, 8
				}
				return true, 4
			},
		},
		{
			name:   "BREAKOUT:DOWN_CONFIRMED",
			weight: 1.1,
			eval: func(f features) (bool, float64) {
				if !f.breakoutDown {
					return false, 0
				}
				if f.volumeConfirm {
					return true, -8
				}
				return true, -4
			},
		},
		{
			name:   "TRAP:FAILED_BREAKOUT",
			weight: 1.1,
			eval: func(f features) (bool, float64) {
				return f.failedBreakout, -6
			},
		},
		{
			name:   "TRAP:FAILED_BREAKDOWN",
			weight: 1.1,
			eval: func(f features) (bool, float64) {
				return f.failedBreakdown, 6
			},
		},
		{
			name:   "GAP:UP_FOLLOW",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.gapUp && f.gapFollow && !f.gapFilled, 4
			},
		},
		{
			name:   "GAP:UP_FILLED",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.gapUp && f.gapFilled, -4
			},
		},
		{
			name:   "GAP:DOWN_FOLLOW",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.gapDown && f.gapFollow && !f.gapFilled, -4
			},
		},
		{
			name:   "GAP:DOWN_RECLAIMED",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.gapDown && f.gapFilled, 4
			},
		},
		{
			name:   "CANDLE:BULL_ENGULF",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.candle == candleBullEngulf, 3
			},
		},
		{
			name:   "CANDLE:BEAR_ENGULF",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.candle == candleBearEngulf, -3
			},
		},
		{
			name:   "CANDLE:HAMMER",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.candle == candleHammer, 2
			},
		},
		{
			name:   "CANDLE:SHOOTING_STAR",
			weight: 0.9,
			eval: func(f features) (bool, float64) {
				return f.candle == candleShootingStar, -2
			},
		},
		{
			name:   "MOMENTUM:STRONG_UP",
			weight: 0.8,
			eval: func(f features) (bool, float64) {
				return f.netChangePct >= 1.0, 4
			},
		},
		{
			name:   "MOMENTUM:STRONG_DOWN",
			weight: 0.8,
			eval: func(f features) (bool, float64) {
				return f.netChangePct <= -1.0, -4
			},
		},
	}
}
