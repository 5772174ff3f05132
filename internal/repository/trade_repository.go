package repository

import (
	"database/sql"
	"errors"
	"time"

	"patterntrader/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей closed_trades
//
// История закрытых сделок append-only: записи создаются движком
// при закрытии позиции и никогда не изменяются.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create сохраняет закрытую сделку
func (r *TradeRepository) Create(trade *models.ClosedTrade) error {
	query := `
		INSERT INTO closed_trades (symbol, strategy, direction, entry_price, exit_price, quantity, pnl, r_multiple, exit_reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.db.QueryRow(
		query,
		trade.Symbol,
		trade.Strategy,
		string(trade.Direction),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Quantity,
		trade.Pnl,
		trade.RMultiple,
		trade.ExitReason,
		trade.OpenedAt,
		trade.ClosedAt,
	).Scan(&trade.ID)

	return err
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(id int) (*models.ClosedTrade, error) {
	query := `
		SELECT id, symbol, strategy, direction, entry_price, exit_price, quantity, pnl, r_multiple, exit_reason, opened_at, closed_at
		FROM closed_trades
		WHERE id = $1`

	trade := &models.ClosedTrade{}
	var dir string
	err := r.db.QueryRow(query, id).Scan(
		&trade.ID,
		&trade.Symbol,
		&trade.Strategy,
		&dir,
		&trade.EntryPrice,
		&trade.ExitPrice,
		&trade.Quantity,
		&trade.Pnl,
		&trade.RMultiple,
		&trade.ExitReason,
		&trade.OpenedAt,
		&trade.ClosedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	trade.Direction = models.Direction(dir)
	return trade, nil
}

// ListRecent возвращает последние закрытые сделки, новые первыми
func (r *TradeRepository) ListRecent(limit int) ([]*models.ClosedTrade, error) {
	query := `
		SELECT id, symbol, strategy, direction, entry_price, exit_price, quantity, pnl, r_multiple, exit_reason, opened_at, closed_at
		FROM closed_trades
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListForRange возвращает сделки, закрытые в интервале [from, to)
func (r *TradeRepository) ListForRange(from, to time.Time) ([]*models.ClosedTrade, error) {
	query := `
		SELECT id, symbol, strategy, direction, entry_price, exit_price, quantity, pnl, r_multiple, exit_reason, opened_at, closed_at
		FROM closed_trades
		WHERE closed_at >= $1 AND closed_at < $2
		ORDER BY closed_at ASC`

	rows, err := r.db.Query(query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// RealizedPnl возвращает суммарный PNL сделок, закрытых в интервале [from, to)
func (r *TradeRepository) RealizedPnl(from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM closed_trades
		WHERE closed_at >= $1 AND closed_at < $2`

	var pnl float64
	if err := r.db.QueryRow(query, from, to).Scan(&pnl); err != nil {
		return 0, err
	}
	return pnl, nil
}

func scanTrades(rows *sql.Rows) ([]*models.ClosedTrade, error) {
	var trades []*models.ClosedTrade
	for rows.Next() {
		trade := &models.ClosedTrade{}
		var dir string
		err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&trade.Strategy,
			&dir,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Quantity,
			&trade.Pnl,
			&trade.RMultiple,
			&trade.ExitReason,
			&trade.OpenedAt,
			&trade.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		trade.Direction = models.Direction(dir)
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
