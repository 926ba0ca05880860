package database

import (
	"time"

	"priem-bot/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// JobRepository хранит одноразовые отложенные задачи планировщика.
// Задачи переживают перезапуск процесса, ключ уникален.
type JobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewJobRepository создает новый репозиторий отложенных задач
func NewJobRepository(db *sqlx.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Enroll ставит задачу в очередь. Повторная постановка с тем же ключом
// заменяет время срабатывания и полезную нагрузку (идемпотентный upsert).
func (r *JobRepository) Enroll(job models.ScheduledJob) error {
	query := `
        INSERT INTO scheduled_jobs (key, kind, reservation_id, message_id, fire_at, attempts, dead)
        VALUES ($1, $2, $3, $4, $5, 0, false)
        ON CONFLICT (key) DO UPDATE SET
            fire_at = EXCLUDED.fire_at,
            message_id = EXCLUDED.message_id,
            attempts = 0,
            dead = false
    `

	_, err := r.db.Exec(query, job.Key, job.Kind, job.ReservationID, job.MessageID, job.FireAt.UTC())
	if err != nil {
		r.logger.Error("Ошибка при постановке задачи",
			zap.Error(err),
			zap.String("key", job.Key),
		)
		return err
	}

	r.logger.Debug("Задача поставлена в очередь",
		zap.String("key", job.Key),
		zap.Time("fire_at", job.FireAt),
	)

	return nil
}

// Cancel удаляет задачу по точному ключу. Отмена несуществующей задачи - не ошибка.
func (r *JobRepository) Cancel(key string) error {
	_, err := r.db.Exec(`DELETE FROM scheduled_jobs WHERE key = $1`, key)
	if err != nil {
		r.logger.Error("Ошибка при отмене задачи",
			zap.Error(err),
			zap.String("key", key),
		)
		return err
	}

	return nil
}

// CancelByPrefix удаляет все задачи, ключ которых начинается с prefix
func (r *JobRepository) CancelByPrefix(prefix string) error {
	_, err := r.db.Exec(`DELETE FROM scheduled_jobs WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		r.logger.Error("Ошибка при отмене задач по префиксу",
			zap.Error(err),
			zap.String("prefix", prefix),
		)
		return err
	}

	return nil
}

// ClaimDue возвращает задачи, время которых наступило. Мертвые задачи
// (исчерпавшие попытки) не выдаются.
func (r *JobRepository) ClaimDue(now time.Time, limit int) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	query := `
        SELECT key, kind, reservation_id, message_id, fire_at, attempts, dead
        FROM scheduled_jobs
        WHERE fire_at <= $1 AND NOT dead
        ORDER BY fire_at
        LIMIT $2
    `

	err := r.db.Select(&jobs, query, now.UTC(), limit)
	if err != nil {
		r.logger.Error("Ошибка при выборке задач", zap.Error(err))
		return nil, err
	}

	return jobs, nil
}

// Complete удаляет успешно выполненную задачу
func (r *JobRepository) Complete(key string) error {
	return r.Cancel(key)
}

// Fail фиксирует неудачную попытку. После maxAttempts попыток задача
// помечается мертвой и больше не выдается.
func (r *JobRepository) Fail(key string, maxAttempts int) error {
	query := `
        UPDATE scheduled_jobs
        SET attempts = attempts + 1,
            dead = attempts + 1 >= $2
        WHERE key = $1
    `

	_, err := r.db.Exec(query, key, maxAttempts)
	if err != nil {
		r.logger.Error("Ошибка при учете неудачной попытки",
			zap.Error(err),
			zap.String("key", key),
		)
		return err
	}

	return nil
}
