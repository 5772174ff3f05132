package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"patterntrader/internal/models"
	"patterntrader/internal/scoring"
)

// StrategyDirectory - реестр стратегий
type StrategyDirectory interface {
	Names() []string
}

// StateSource - снимки состояний торговых автоматов
type StateSource interface {
	All() []models.StrategyState
	ForSymbol(symbol string) []models.StrategyState
}

// ScoreDirectory - текущие оценки символов
type ScoreDirectory interface {
	All() []scoring.Score
	Latest(symbol string) (scoring.Score, bool)
}

// StrategyHandler обрабатывает HTTP запросы состояния стратегий.
//
// Endpoints:
// - GET /api/v1/strategies - зарегистрированные стратегии
// - GET /api/v1/states - все торговые автоматы
// - GET /api/v1/states/{symbol} - автоматы символа
// - GET /api/v1/scores - текущие оценки символов
// - GET /api/v1/scores/{symbol} - оценка одного символа
type StrategyHandler struct {
	registry StrategyDirectory
	states   StateSource
	scores   ScoreDirectory
}

// NewStrategyHandler создает новый StrategyHandler
func NewStrategyHandler(registry StrategyDirectory, states StateSource, scores ScoreDirectory) *StrategyHandler {
	return &StrategyHandler{registry: registry, states: states, scores: scores}
}

// GetStrategies возвращает имена зарегистрированных стратегий
//
// GET /api/v1/strategies
func (h *StrategyHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeError(w, http.StatusInternalServerError, "registry not initialized")
		return
	}
	names := h.registry.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// GetStates возвращает все торговые автоматы
//
// GET /api/v1/states
func (h *StrategyHandler) GetStates(w http.ResponseWriter, r *http.Request) {
	if h.states == nil {
		writeError(w, http.StatusInternalServerError, "state store not initialized")
		return
	}
	states := h.states.All()
	if states == nil {
		states = []models.StrategyState{}
	}
	writeJSON(w, http.StatusOK, states)
}

// GetStatesForSymbol возвращает автоматы одного символа
//
// GET /api/v1/states/{symbol}
func (h *StrategyHandler) GetStatesForSymbol(w http.ResponseWriter, r *http.Request) {
	if h.states == nil {
		writeError(w, http.StatusInternalServerError, "state store not initialized")
		return
	}
	symbol := mux.Vars(r)["symbol"]
	states := h.states.ForSymbol(symbol)
	if states == nil {
		states = []models.StrategyState{}
	}
	writeJSON(w, http.StatusOK, states)
}

// GetScores возвращает текущие оценки всех символов
//
// GET /api/v1/scores
func (h *StrategyHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	if h.scores == nil {
		writeError(w, http.StatusInternalServerError, "scorer not initialized")
		return
	}
	scores := h.scores.All()
	if scores == nil {
		scores = []scoring.Score{}
	}
	writeJSON(w, http.StatusOK, scores)
}

// GetScoreForSymbol возвращает оценку одного символа
//
// GET /api/v1/scores/{symbol}
func (h *StrategyHandler) GetScoreForSymbol(w http.ResponseWriter, r *http.Request) {
	if h.scores == nil {
		writeError(w, http.StatusInternalServerError, "scorer not initialized")
		return
	}
	symbol := mux.Vars(r)["symbol"]
	score, ok := h.scores.Latest(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no score for symbol")
		return
	}
	writeJSON(w, http.StatusOK, score)
}
