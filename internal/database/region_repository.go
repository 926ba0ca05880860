package database

import (
	"database/sql"
	"errors"

	"priem-bot/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// RegionRepository представляет репозиторий для работы с регионами
type RegionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRegionRepository создает новый репозиторий регионов
func NewRegionRepository(db *sqlx.DB, logger *zap.Logger) *RegionRepository {
	return &RegionRepository{
		db:     db,
		logger: logger,
	}
}

const regionColumns = `id, name, address, timezone, working_time_from,
       working_time_to, day_limit, period`

func (r *RegionRepository) List() ([]models.Region, error) {
	var regions []models.Region
	query := `SELECT ` + regionColumns + ` FROM regions ORDER BY name`

	err := r.db.Select(&regions, query)
	if err != nil {
		r.logger.Error("Ошибка при получении списка регионов", zap.Error(err))
		return nil, err
	}

	return regions, nil
}

func (r *RegionRepository) GetByID(id int64) (models.Region, error) {
	var region models.Region
	query := `SELECT ` + regionColumns + ` FROM regions WHERE id = $1`

	err := r.db.Get(&region, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Region{}, ErrNotFound
		}
		r.logger.Error("Ошибка при получении региона",
			zap.Error(err),
			zap.Int64("region_id", id),
		)
		return models.Region{}, err
	}

	return region, nil
}

func (r *RegionRepository) UpdateWorkingTime(id int64, from, to string) error {
	query := `UPDATE regions SET working_time_from = $2, working_time_to = $3 WHERE id = $1`

	_, err := r.db.Exec(query, id, from, to)
	if err != nil {
		r.logger.Error("Ошибка при обновлении времени работы региона",
			zap.Error(err),
			zap.Int64("region_id", id),
		)
		return err
	}

	return nil
}

func (r *RegionRepository) UpdateDayLimit(id int64, dayLimit int) error {
	query := `UPDATE regions SET day_limit = $2 WHERE id = $1`

	_, err := r.db.Exec(query, id, dayLimit)
	if err != nil {
		r.logger.Error("Ошибка при обновлении дневного лимита региона",
			zap.Error(err),
			zap.Int64("region_id", id),
		)
		return err
	}

	return nil
}

func (r *RegionRepository) UpdatePeriod(id int64, period int) error {
	query := `UPDATE regions SET period = $2 WHERE id = $1`

	_, err := r.db.Exec(query, id, period)
	if err != nil {
		r.logger.Error("Ошибка при обновлении периода региона",
			zap.Error(err),
			zap.Int64("region_id", id),
		)
		return err
	}

	return nil
}
