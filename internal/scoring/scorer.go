package scoring

import (
	"sort"
	"sync"
	"time"

	"patterntrader/internal/models"
	"patterntrader/pkg/utils"
)

// ============================================
// ДВИЖОК СКОРИНГА ЦЕНОВОГО ДЕЙСТВИЯ
// ============================================
//
// Движок не ищет сделки - он оценивает, насколько текущее ценовое
// действие символа благоприятно, и в какую сторону. Оценка считается
// на двух окнах: коротком ("minor", интрадей-импульс) и полном
// ("major", контекст), затем усредняется.
//
// Сырой балл каждого правила лежит в [-10, +10], итог нормируется
// в [0, 100] с нейтралью 50. Потребители: релокация капитала
// (вытесняется позиция с минимальным баллом) и сверка направления.

// Bias - направленный уклон оценки
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// порог сырого балла, за которым уклон перестаёт быть нейтральным
const biasThreshold = 1.0

// Score - оценка символа на момент расчёта
type Score struct {
	Symbol     string    `json:"symbol"`
	Value      float64   `json:"value"` // 0..100, 50 = нейтраль
	Bias       Bias      `json:"bias"`
	Matched    []string  `json:"matched"` // сработавшие правила
	ComputedAt time.Time `json:"computed_at"`
}

// rule - правило скоринга: признаки -> сырой балл
type rule struct {
	name   string
	weight float64 // значимость группы правила
	eval   func(f features) (matched bool, raw float64)
}

// Scorer - движок скоринга ценового действия
type Scorer struct {
	mu        sync.RWMutex
	rules     []rule
	minorBars int // размер короткого окна
	latest    map[string]Score
	logger    *utils.Logger
}

// NewScorer создаёт движок со встроенным набором правил
func NewScorer(logger *utils.Logger) *Scorer {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Scorer{
		rules:     defaultRules(),
		minorBars: 20,
		latest:    make(map[string]Score),
		logger:    logger.WithComponent("scoring"),
	}
}

// ScoreBars оценивает символ по окну баров.
// ok=false при недостаточной истории, прежняя оценка не затирается.
func (s *Scorer) ScoreBars(symbol string, bars []models.IntradayBar, now time.Time) (Score, bool) {
	if len(bars) < 3 {
		return Score{}, false
	}

	minorWindow := bars
	if len(bars) > s.minorBars {
		minorWindow = bars[len(bars)-s.minorBars:]
	}

	minorRaw, minorStates := s.scoreWindow(minorWindow)
	majorRaw, majorStates := s.scoreWindow(bars)

	raw := (minorRaw + majorRaw) / 2

	sc := Score{
		Symbol:     symbol,
		Value:      utils.ClampFloat(50+raw*5, 0, 100),
		Bias:       biasFromRaw(raw),
		Matched:    mergeStates(minorStates, majorStates),
		ComputedAt: now,
	}

	s.mu.Lock()
	s.latest[symbol] = sc
	s.mu.Unlock()

	s.logger.Debug("symbol scored",
		utils.Symbol(symbol),
		utils.Float64("score", sc.Value),
		utils.String("bias", string(sc.Bias)))
	return sc, true
}

// Latest возвращает последнюю оценку символа
func (s *Scorer) Latest(symbol string) (Score, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.latest[symbol]
	return sc, ok
}

// All возвращает последние оценки всех символов
func (s *Scorer) All() []Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Score, 0, len(s.latest))
	for _, sc := range s.latest {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Forget удаляет оценку символа (например при отписке)
func (s *Scorer) Forget(symbol string) {
	s.mu.Lock()
	delete(s.latest, symbol)
	s.mu.Unlock()
}

// scoreWindow прогоняет правила по окну: средневзвешенный сырой балл
func (s *Scorer) scoreWindow(bars []models.IntradayBar) (float64, []string) {
	f, ok := extractFeatures(bars)
	if !ok {
		return 0, nil
	}

	var sum, weight float64
	var matched []string
	for _, r := range s.rules {
		hit, raw := r.eval(f)
		if !hit {
			continue
		}
		sum += raw * r.weight
		weight += r.weight
		matched = append(matched, r.name)
	}
	if weight == 0 {
		return 0, nil
	}
	return sum / weight, matched
}

func biasFromRaw(raw float64) Bias {
	switch {
	case raw >= biasThreshold:
		return BiasLong
	case raw <= -biasThreshold:
		return BiasShort
	default:
		return BiasNeutral
	}
}

func mergeStates(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(a, b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
