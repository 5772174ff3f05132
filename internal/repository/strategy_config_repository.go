package repository

import (
	"database/sql"
	"errors"
	"time"

	"patterntrader/internal/models"
)

// Ошибки репозитория конфигураций стратегий
var (
	ErrStrategyConfigNotFound = errors.New("strategy config not found")
)

// StrategyConfigRepository - работа с таблицей strategy_configs
//
// Конфигурации определяют, какие пары (стратегия, символ) торгуются:
// они загружаются при старте для восстановления подписок.
type StrategyConfigRepository struct {
	db *sql.DB
}

// NewStrategyConfigRepository создает новый экземпляр репозитория
func NewStrategyConfigRepository(db *sql.DB) *StrategyConfigRepository {
	return &StrategyConfigRepository{db: db}
}

// Create создает конфигурацию стратегии
func (r *StrategyConfigRepository) Create(cfg *models.StrategyConfig) error {
	query := `
		INSERT INTO strategy_configs (strategy, symbol, direction, risk_per_trade_pct, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		cfg.Strategy,
		cfg.Symbol,
		string(cfg.Direction),
		cfg.RiskPerTradePct,
		cfg.Status,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Scan(&cfg.ID)

	return err
}

// GetByID возвращает конфигурацию по ID
func (r *StrategyConfigRepository) GetByID(id int) (*models.StrategyConfig, error) {
	query := `
		SELECT id, strategy, symbol, direction, risk_per_trade_pct, status, created_at, updated_at
		FROM strategy_configs
		WHERE id = $1`

	cfg := &models.StrategyConfig{}
	var dir string
	err := r.db.QueryRow(query, id).Scan(
		&cfg.ID,
		&cfg.Strategy,
		&cfg.Symbol,
		&dir,
		&cfg.RiskPerTradePct,
		&cfg.Status,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyConfigNotFound
		}
		return nil, err
	}

	cfg.Direction = models.Direction(dir)
	return cfg, nil
}

// GetActive возвращает все активные конфигурации
func (r *StrategyConfigRepository) GetActive() ([]*models.StrategyConfig, error) {
	query := `
		SELECT id, strategy, symbol, direction, risk_per_trade_pct, status, created_at, updated_at
		FROM strategy_configs
		WHERE status = $1
		ORDER BY strategy ASC, symbol ASC`

	return r.list(query, models.StrategyStatusActive)
}

// GetAll возвращает все конфигурации
func (r *StrategyConfigRepository) GetAll() ([]*models.StrategyConfig, error) {
	query := `
		SELECT id, strategy, symbol, direction, risk_per_trade_pct, status, created_at, updated_at
		FROM strategy_configs
		ORDER BY strategy ASC, symbol ASC`

	return r.list(query)
}

// UpdateStatus изменяет статус конфигурации (active/paused)
func (r *StrategyConfigRepository) UpdateStatus(id int, status string) error {
	query := `
		UPDATE strategy_configs
		SET status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStrategyConfigNotFound
	}

	return nil
}

// Delete удаляет конфигурацию
func (r *StrategyConfigRepository) Delete(id int) error {
	query := `DELETE FROM strategy_configs WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStrategyConfigNotFound
	}

	return nil
}

func (r *StrategyConfigRepository) list(query string, args ...interface{}) ([]*models.StrategyConfig, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.StrategyConfig
	for rows.Next() {
		cfg := &models.StrategyConfig{}
		var dir string
		err := rows.Scan(
			&cfg.ID,
			&cfg.Strategy,
			&cfg.Symbol,
			&dir,
			&cfg.RiskPerTradePct,
			&cfg.Status,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		cfg.Direction = models.Direction(dir)
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return configs, nil
}
