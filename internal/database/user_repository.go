package database

import (
	"database/sql"
	"errors"
	"time"

	"priem-bot/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ErrNotFound возвращается, когда запрошенная запись отсутствует в базе
var ErrNotFound = errors.New("запись не найдена")

// UserRepository представляет репозиторий для работы с пользователями
type UserRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewUserRepository создает новый репозиторий пользователей
func NewUserRepository(db *sqlx.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, chat_id, username, first_name, last_name, region_id,
       from_user_id, bot_state, temp_date, created`

// GetOrCreate возвращает пользователя по chat_id, создавая его при первом обращении.
// Второе значение - признак того, что пользователь только что создан.
func (r *UserRepository) GetOrCreate(chatID int64) (models.User, bool, error) {
	user, err := r.GetByChatID(chatID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.User{}, false, err
	}

	query := `
        INSERT INTO users (chat_id, bot_state, created)
        VALUES ($1, $2, $3)
        ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
        RETURNING ` + userColumns

	err = r.db.Get(&user, query, chatID, models.StateNothing, time.Now().UTC())
	if err != nil {
		r.logger.Error("Ошибка при создании пользователя",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return models.User{}, false, err
	}

	return user, true, nil
}

func (r *UserRepository) GetByChatID(chatID int64) (models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE chat_id = $1`

	err := r.db.Get(&user, query, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		r.logger.Error("Ошибка при получении пользователя",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return models.User{}, err
	}

	return user, nil
}

func (r *UserRepository) GetByID(id int64) (models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.Get(&user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		r.logger.Error("Ошибка при получении пользователя по id",
			zap.Error(err),
			zap.Int64("user_id", id),
		)
		return models.User{}, err
	}

	return user, nil
}

// UpdateInfo обновляет имя и username из очередного сообщения пользователя
func (r *UserRepository) UpdateInfo(chatID int64, username, firstName, lastName string) error {
	query := `
        UPDATE users
        SET username = $2, first_name = $3, last_name = $4
        WHERE chat_id = $1
    `

	_, err := r.db.Exec(query, chatID, username, firstName, lastName)
	if err != nil {
		r.logger.Error("Ошибка при обновлении данных пользователя",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return err
	}

	return nil
}

// SetState переводит пользователя в новое состояние диалога.
// tempDate - выбранная дата записи, передается только при входе
// в состояние ввода времени, в остальных случаях nil очищает поле.
func (r *UserRepository) SetState(chatID int64, state models.BotState, tempDate *time.Time) error {
	query := `UPDATE users SET bot_state = $2, temp_date = $3 WHERE chat_id = $1`

	_, err := r.db.Exec(query, chatID, state, tempDate)
	if err != nil {
		r.logger.Error("Ошибка при смене состояния пользователя",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("state", int(state)),
		)
		return err
	}

	return nil
}

func (r *UserRepository) SetRegion(chatID int64, regionID *int64) error {
	query := `UPDATE users SET region_id = $2 WHERE chat_id = $1`

	_, err := r.db.Exec(query, chatID, regionID)
	if err != nil {
		r.logger.Error("Ошибка при смене региона пользователя",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return err
	}

	return nil
}

// SetReferrer запоминает пригласившего пользователя. Ссылка выставляется
// только один раз, при первом контакте.
func (r *UserRepository) SetReferrer(chatID int64, fromUserID int64) error {
	query := `
        UPDATE users SET from_user_id = $2
        WHERE chat_id = $1 AND from_user_id IS NULL AND id <> $2
    `

	_, err := r.db.Exec(query, chatID, fromUserID)
	if err != nil {
		r.logger.Error("Ошибка при сохранении реферальной ссылки",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int64("from_user_id", fromUserID),
		)
		return err
	}

	return nil
}

// IsRegionAdmin проверяет, назначен ли пользователь администратором региона
func (r *UserRepository) IsRegionAdmin(userID, regionID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM region_admins WHERE user_id = $1 AND region_id = $2`

	err := r.db.Get(&count, query, userID, regionID)
	if err != nil {
		r.logger.Error("Ошибка при проверке прав администратора региона",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.Int64("region_id", regionID),
		)
		return false, err
	}

	return count > 0, nil
}
