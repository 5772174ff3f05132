package repository

import (
	"database/sql"
	"time"

	"patterntrader/internal/models"
)

// BarRepository - работа с таблицей intraday_bars
//
// Хранятся только минутные бары: секундные таймфреймы живут лишь
// в памяти хаба и на диск не попадают.
type BarRepository struct {
	db *sql.DB
}

// NewBarRepository создает новый экземпляр репозитория
func NewBarRepository(db *sql.DB) *BarRepository {
	return &BarRepository{db: db}
}

// SaveBar сохраняет закрытый бар. Повторное сохранение того же бакета
// перезаписывает значения (идемпотентность повторной доставки).
func (r *BarRepository) SaveBar(bar *models.IntradayBar) error {
	query := `
		INSERT INTO intraday_bars (symbol, timeframe, start_ts, end_ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, start_ts)
		DO UPDATE SET end_ts = $4, open = $5, high = $6, low = $7, close = $8, volume = $9`

	_, err := r.db.Exec(
		query,
		bar.Symbol,
		string(bar.Timeframe),
		bar.StartTs,
		bar.EndTs,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
	)
	return err
}

// LoadBarsForDay возвращает бары символа за торговый день
// в хронологическом порядке
func (r *BarRepository) LoadBarsForDay(symbol string, tf models.Timeframe, dayStart, dayEnd time.Time) ([]*models.IntradayBar, error) {
	query := `
		SELECT symbol, timeframe, start_ts, end_ts, open, high, low, close, volume
		FROM intraday_bars
		WHERE symbol = $1 AND timeframe = $2 AND start_ts >= $3 AND start_ts < $4
		ORDER BY start_ts ASC`

	rows, err := r.db.Query(query, symbol, string(tf), dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*models.IntradayBar
	for rows.Next() {
		bar := &models.IntradayBar{}
		var tfRaw string
		err := rows.Scan(
			&bar.Symbol,
			&tfRaw,
			&bar.StartTs,
			&bar.EndTs,
			&bar.Open,
			&bar.High,
			&bar.Low,
			&bar.Close,
			&bar.Volume,
		)
		if err != nil {
			return nil, err
		}
		bar.Timeframe = models.Timeframe(tfRaw)
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bars, nil
}

// ListActiveSymbols возвращает символы, по которым есть бары
// начиная с указанного момента
func (r *BarRepository) ListActiveSymbols(since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT symbol
		FROM intraday_bars
		WHERE start_ts >= $1
		ORDER BY symbol ASC`

	rows, err := r.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return symbols, nil
}

// CleanupOldBars удаляет бары старше указанного момента.
// Возвращает количество удаленных строк.
func (r *BarRepository) CleanupOldBars(before time.Time) (int64, error) {
	query := `DELETE FROM intraday_bars WHERE start_ts < $1`

	result, err := r.db.Exec(query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
