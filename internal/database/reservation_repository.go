package database

import (
	"database/sql"
	"errors"
	"time"

	"priem-bot/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrSlotOccupied возвращается, когда слот занят другой заявкой.
// Проверка выполняется внутри транзакции создания, поэтому два
// одновременных коммита на один слот не могут пройти оба.
var ErrSlotOccupied = errors.New("время уже занято другой заявкой")

// ReservationRepository представляет репозиторий для работы с заявками
type ReservationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewReservationRepository создает новый репозиторий заявок
func NewReservationRepository(db *sqlx.DB, logger *zap.Logger) *ReservationRepository {
	return &ReservationRepository{
		db:     db,
		logger: logger,
	}
}

const reservationColumns = `id, region_id, user_id, datetime, status, created, updated`

// Create создает заявку со статусом "Зарезервировано". Строка региона
// блокируется на время транзакции, а занятость слота перепроверяется
// под блокировкой - коммиты на один регион сериализуются.
func (r *ReservationRepository) Create(regionID, userID int64, dt time.Time, period int) (models.Reservation, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		r.logger.Error("Ошибка при начале транзакции", zap.Error(err))
		return models.Reservation{}, err
	}
	defer tx.Rollback() // Откатываем транзакцию в случае ошибки

	var lockedID int64
	err = tx.Get(&lockedID, `SELECT id FROM regions WHERE id = $1 FOR UPDATE`, regionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, ErrNotFound
		}
		r.logger.Error("Ошибка при блокировке региона",
			zap.Error(err),
			zap.Int64("region_id", regionID),
		)
		return models.Reservation{}, err
	}

	// Перепроверяем занятость слота уже под блокировкой
	window := time.Duration(period) * time.Minute
	var count int
	err = tx.Get(&count, `
        SELECT COUNT(*) FROM reservations
        WHERE region_id = $1 AND status <> $2
          AND datetime >= $3 AND datetime < $4
    `, regionID, models.StatusRefused, dt.Add(-window).UTC(), dt.Add(window).UTC())
	if err != nil {
		r.logger.Error("Ошибка при проверке занятости слота",
			zap.Error(err),
			zap.Int64("region_id", regionID),
		)
		return models.Reservation{}, err
	}
	if count > 0 {
		return models.Reservation{}, ErrSlotOccupied
	}

	now := time.Now().UTC()
	var reservation models.Reservation
	err = tx.Get(&reservation, `
        INSERT INTO reservations (region_id, user_id, datetime, status, created, updated)
        VALUES ($1, $2, $3, $4, $5, $5)
        RETURNING `+reservationColumns,
		regionID, userID, dt.UTC(), models.StatusReserved, now)
	if err != nil {
		r.logger.Error("Ошибка при создании заявки",
			zap.Error(err),
			zap.Int64("region_id", regionID),
			zap.Int64("user_id", userID),
		)
		return models.Reservation{}, err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Ошибка при фиксации транзакции", zap.Error(err))
		return models.Reservation{}, err
	}

	r.logger.Info("Создана заявка",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("region_id", regionID),
		zap.Int64("user_id", userID),
		zap.Time("datetime", reservation.Datetime),
	)

	return reservation, nil
}

func (r *ReservationRepository) GetByID(id int64) (models.Reservation, error) {
	var reservation models.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	err := r.db.Get(&reservation, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, ErrNotFound
		}
		r.logger.Error("Ошибка при получении заявки",
			zap.Error(err),
			zap.Int64("reservation_id", id),
		)
		return models.Reservation{}, err
	}

	return reservation, nil
}

// UpdateStatus меняет статус заявки и возвращает обновленную запись
func (r *ReservationRepository) UpdateStatus(id int64, status models.ReservationStatus) (models.Reservation, error) {
	var reservation models.Reservation
	query := `
        UPDATE reservations SET status = $2, updated = $3
        WHERE id = $1
        RETURNING ` + reservationColumns

	err := r.db.Get(&reservation, query, id, status, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, ErrNotFound
		}
		r.logger.Error("Ошибка при обновлении статуса заявки",
			zap.Error(err),
			zap.Int64("reservation_id", id),
			zap.Int("status", int(status)),
		)
		return models.Reservation{}, err
	}

	r.logger.Info("Статус заявки обновлен",
		zap.Int64("reservation_id", id),
		zap.String("status", reservation.Status.Display()),
	)

	return reservation, nil
}

// CountActiveBetween считает неотмененные заявки региона в интервале [from, to)
func (r *ReservationRepository) CountActiveBetween(regionID int64, from, to time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM reservations
        WHERE region_id = $1 AND status <> $2
          AND datetime >= $3 AND datetime < $4
    `

	err := r.db.Get(&count, query, regionID, models.StatusRefused, from.UTC(), to.UTC())
	if err != nil {
		r.logger.Error("Ошибка при подсчете заявок региона",
			zap.Error(err),
			zap.Int64("region_id", regionID),
		)
		return 0, err
	}

	return count, nil
}

// CountCreatedSince считает заявки пользователя, созданные после since.
// Используется ограничителем частоты записи.
func (r *ReservationRepository) CountCreatedSince(userID int64, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND created >= $2`

	err := r.db.Get(&count, query, userID, since.UTC())
	if err != nil {
		r.logger.Error("Ошибка при подсчете заявок пользователя",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		return 0, err
	}

	return count, nil
}

// ListByUser возвращает все заявки пользователя по возрастанию даты приема
func (r *ReservationRepository) ListByUser(userID int64) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `
        SELECT ` + reservationColumns + ` FROM reservations
        WHERE user_id = $1
        ORDER BY datetime
    `

	err := r.db.Select(&reservations, query, userID)
	if err != nil {
		r.logger.Error("Ошибка при получении заявок пользователя",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		return nil, err
	}

	return reservations, nil
}

// ListActiveBetween возвращает неотмененные заявки региона в интервале [from, to)
func (r *ReservationRepository) ListActiveBetween(regionID int64, from, to time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `
        SELECT ` + reservationColumns + ` FROM reservations
        WHERE region_id = $1 AND status <> $2
          AND datetime >= $3 AND datetime < $4
        ORDER BY datetime
    `

	err := r.db.Select(&reservations, query, regionID, models.StatusRefused, from.UTC(), to.UTC())
	if err != nil {
		r.logger.Error("Ошибка при получении заявок региона",
			zap.Error(err),
			zap.Int64("region_id", regionID),
		)
		return nil, err
	}

	return reservations, nil
}
