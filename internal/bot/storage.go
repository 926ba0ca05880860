package bot

import (
	"time"

	"priem-bot/internal/config"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramClient - интерфейс для взаимодействия с Telegram API
type TelegramClient interface {
	SendMessage(chatID int64, text string) error
	SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) error
	SendMessageWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error)
	EditMessageText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string, showAlert bool) error
}

// UserStore - хранилище пользователей
type UserStore interface {
	GetOrCreate(chatID int64) (models.User, bool, error)
	GetByChatID(chatID int64) (models.User, error)
	GetByID(id int64) (models.User, error)
	UpdateInfo(chatID int64, username, firstName, lastName string) error
	SetState(chatID int64, state models.BotState, tempDate *time.Time) error
	SetRegion(chatID int64, regionID *int64) error
	SetReferrer(chatID int64, fromUserID int64) error
	IsRegionAdmin(userID, regionID int64) (bool, error)
}

// RegionStore - хранилище регионов
type RegionStore interface {
	List() ([]models.Region, error)
	GetByID(id int64) (models.Region, error)
	UpdateWorkingTime(id int64, from, to string) error
	UpdateDayLimit(id int64, dayLimit int) error
	UpdatePeriod(id int64, period int) error
}

// ReservationStore - хранилище заявок
type ReservationStore interface {
	Create(regionID, userID int64, dt time.Time, period int) (models.Reservation, error)
	GetByID(id int64) (models.Reservation, error)
	UpdateStatus(id int64, status models.ReservationStatus) (models.Reservation, error)
	CountActiveBetween(regionID int64, from, to time.Time) (int, error)
	CountCreatedSince(userID int64, since time.Time) (int, error)
	ListByUser(userID int64) ([]models.Reservation, error)
	ListActiveBetween(regionID int64, from, to time.Time) ([]models.Reservation, error)
}

// Planner - планировщик отложенных уведомлений. Хук OnStatusChange
// вызывается после каждой зафиксированной смены статуса заявки.
type Planner interface {
	OnStatusChange(reservation models.Reservation) error
	CancelConfirmationTimeout(reservationID int64) error
	ScheduleFollowUp(reservationID int64, fireAt time.Time) error
}

type textHandler struct {
	match   string
	handler func(user models.User, msg models.IncomingMessage) error
}

// Service - основной сервис бота: машина состояний диалога
type Service struct {
	telegram     TelegramClient
	logger       *zap.Logger
	users        UserStore
	regions      RegionStore
	reservations *ReservationService
	planner      Planner
	now          func() time.Time

	// Таблицы диспетчеризации собираются один раз при старте.
	// Порядок объявления важен: побеждает первое совпадение.
	commandHandlers []textHandler
	keyHandlers     []textHandler
	stateHandlers   map[models.BotState]func(user models.User, msg models.IncomingMessage) error
}

// NewService - создает новый экземпляр основного сервиса бота
func NewService(
	telegram TelegramClient,
	logger *zap.Logger,
	users UserStore,
	regions RegionStore,
	reservations *ReservationService,
	planner Planner,
	cfg config.Reservations,
) *Service {
	s := &Service{
		telegram:     telegram,
		logger:       logger,
		users:        users,
		regions:      regions,
		reservations: reservations,
		planner:      planner,
		now:          time.Now,
	}

	s.commandHandlers = []textHandler{
		{match: "/start", handler: s.handleStart},
		{match: "/menu", handler: s.handleMenu},
		{match: "/settings", handler: s.handleSettings},
		{match: "/today", handler: s.handleToday},
	}
	s.keyHandlers = []textHandler{
		{match: templates.KeyMenu, handler: s.handleMenu},
		{match: templates.KeySelectAnotherDate, handler: s.handleSelectAnotherDate},
		{match: templates.KeyCancel, handler: s.handleCancel},
	}
	s.stateHandlers = map[models.BotState]func(models.User, models.IncomingMessage) error{
		models.StateReservationTime:  s.handleReservationTimeInput,
		models.StateInputWorkingTime: s.handleWorkingTimeInput,
		models.StateInputDayLimit:    s.handleDayLimitInput,
		models.StateInputPeriod:      s.handlePeriodInput,
	}

	return s
}
