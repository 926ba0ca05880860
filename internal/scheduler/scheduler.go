// Package scheduler исполняет отложенные одноразовые задачи, привязанные
// к жизненному циклу заявки: запросы подтверждения, автоотказ по таймауту
// и опросы после визита. Задачи хранятся в базе и выбираются циклом опроса,
// поэтому доставка "как минимум один раз" - обработчики идемпотентны
// за счет детерминированных ключей и проверок статуса.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/config"
	"priem-bot/internal/database"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	"github.com/go-co-op/gocron/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// claimBatch - сколько задач берется за один проход цикла опроса
const claimBatch = 50

// JobStore - хранилище отложенных задач
type JobStore interface {
	Enroll(job models.ScheduledJob) error
	Cancel(key string) error
	CancelByPrefix(prefix string) error
	ClaimDue(now time.Time, limit int) ([]models.ScheduledJob, error)
	Complete(key string) error
	Fail(key string, maxAttempts int) error
}

// ReservationStore - доступ к заявкам
type ReservationStore interface {
	GetByID(id int64) (models.Reservation, error)
	UpdateStatus(id int64, status models.ReservationStatus) (models.Reservation, error)
}

// UserStore - доступ к пользователям
type UserStore interface {
	GetByID(id int64) (models.User, error)
}

// RegionStore - доступ к регионам
type RegionStore interface {
	GetByID(id int64) (models.Region, error)
}

// Notifier - отправка уведомлений пользователю
type Notifier interface {
	SendMessage(chatID int64, text string) error
	SendMessageAndGetID(chatID int64, text string) (int, error)
	SendMessageWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error)
	EditMessageText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
}

// Scheduler - планировщик отложенных уведомлений
type Scheduler struct {
	jobs         JobStore
	reservations ReservationStore
	users        UserStore
	regions      RegionStore
	telegram     Notifier
	cfg          config.Reservations
	pollInterval time.Duration
	maxAttempts  int
	logger       *zap.Logger
	now          func() time.Time

	cron gocron.Scheduler
}

// New создает планировщик
func New(
	jobs JobStore,
	reservations ReservationStore,
	users UserStore,
	regions RegionStore,
	telegram Notifier,
	cfg config.Reservations,
	schedulerCfg config.Scheduler,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		jobs:         jobs,
		reservations: reservations,
		users:        users,
		regions:      regions,
		telegram:     telegram,
		cfg:          cfg,
		pollInterval: time.Duration(schedulerCfg.PollIntervalSeconds) * time.Second,
		maxAttempts:  schedulerCfg.MaxAttempts,
		logger:       logger,
		now:          time.Now,
	}
}

// Start запускает цикл опроса задач
func (s *Scheduler) Start() error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = cron.NewJob(
		gocron.DurationJob(s.pollInterval),
		gocron.NewTask(s.tick),
	)
	if err != nil {
		return err
	}

	s.cron = cron
	cron.Start()
	s.logger.Info("Планировщик запущен",
		zap.Duration("poll_interval", s.pollInterval),
	)

	return nil
}

// Stop останавливает цикл опроса
func (s *Scheduler) Stop() {
	if s.cron != nil {
		if err := s.cron.Shutdown(); err != nil {
			s.logger.Error("ошибка при остановке планировщика", zap.Error(err))
		}
	}
}

// tick - один проход цикла: выбрать созревшие задачи и выполнить.
// Ошибка обработчика не валит процесс: попытка учитывается, после
// исчерпания попыток задача помечается мертвой.
func (s *Scheduler) tick() {
	jobs, err := s.jobs.ClaimDue(s.now(), claimBatch)
	if err != nil {
		s.logger.Error("ошибка при выборке задач", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if err := s.execute(job); err != nil {
			s.logger.Error("ошибка при выполнении задачи",
				zap.Error(err),
				zap.String("key", job.Key),
				zap.Int("attempts", job.Attempts),
			)
			if err := s.jobs.Fail(job.Key, s.maxAttempts); err != nil {
				s.logger.Error("ошибка при учете неудачной попытки",
					zap.Error(err),
					zap.String("key", job.Key),
				)
			}
			continue
		}

		if err := s.jobs.Complete(job.Key); err != nil {
			s.logger.Error("ошибка при завершении задачи",
				zap.Error(err),
				zap.String("key", job.Key),
			)
		}
	}
}

func (s *Scheduler) execute(job models.ScheduledJob) error {
	switch job.Kind {
	case models.JobConfirmationRequest:
		return s.fireConfirmationRequest(job)
	case models.JobConfirmationTimeout:
		return s.fireConfirmationTimeout(job)
	case models.JobRequestAfterVisit:
		return s.fireRequestAfterVisit(job)
	}
	return fmt.Errorf("неизвестный тип задачи: %s", job.Kind)
}

// OnStatusChange - хук, вызываемый после каждой зафиксированной смены
// статуса заявки. На "Зарезервировано" ставятся задачи подтверждения
// и опроса, на "Отказано" - снимаются все оставшиеся задачи заявки.
func (s *Scheduler) OnStatusChange(reservation models.Reservation) error {
	switch reservation.Status {
	case models.StatusReserved:
		return s.enrollReservationJobs(reservation)
	case models.StatusRefused:
		return s.cancelReservationJobs(reservation)
	}
	return nil
}

// CancelConfirmationTimeout снимает задачу автоотказа заявки
func (s *Scheduler) CancelConfirmationTimeout(reservationID int64) error {
	return s.jobs.Cancel(models.ConfirmationTimeoutKey(reservationID))
}

// ScheduleFollowUp ставит (или переносит) опрос после визита
func (s *Scheduler) ScheduleFollowUp(reservationID int64, fireAt time.Time) error {
	return s.jobs.Enroll(models.ScheduledJob{
		Key:           models.RequestAfterVisitKey(reservationID),
		Kind:          models.JobRequestAfterVisit,
		ReservationID: reservationID,
		FireAt:        fireAt,
	})
}

// enrollReservationJobs ставит задачи для новой заявки: запрос
// подтверждения на каждое настроенное смещение, еще не оставшееся
// в прошлом, и один опрос после визита
func (s *Scheduler) enrollReservationJobs(reservation models.Reservation) error {
	now := s.now()
	for i, hours := range s.cfg.ConfirmationOffsetsHours {
		fireAt := reservation.Datetime.Add(-time.Duration(hours * float64(time.Hour)))
		if !fireAt.After(now) {
			continue
		}

		job := models.ScheduledJob{
			Key:           models.ConfirmationRequestKey(reservation.ID, i+1),
			Kind:          models.JobConfirmationRequest,
			ReservationID: reservation.ID,
			FireAt:        fireAt,
		}
		if err := s.jobs.Enroll(job); err != nil {
			return err
		}
	}

	return s.ScheduleFollowUp(reservation.ID, reservation.Datetime.Add(s.cfg.AfterVisit()))
}

// cancelReservationJobs снимает все задачи отмененной заявки
// и уведомляет пользователя об отказе
func (s *Scheduler) cancelReservationJobs(reservation models.Reservation) error {
	if err := s.jobs.CancelByPrefix(models.ConfirmationRequestPrefix(reservation.ID)); err != nil {
		return err
	}
	if err := s.jobs.Cancel(models.RequestAfterVisitKey(reservation.ID)); err != nil {
		return err
	}

	user, err := s.users.GetByID(reservation.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("пользователь отмененной заявки не найден",
				zap.Int64("reservation_id", reservation.ID),
			)
			return nil
		}
		return err
	}

	return s.telegram.SendMessage(user.ChatID, templates.MsgReservationRefused)
}

// fireConfirmationRequest отправляет запрос подтверждения и карточку
// заявки, затем ставит задачу автоотказа. Повторная постановка с тем же
// ключом заменяет прежний таймаут - на заявку он всегда один.
func (s *Scheduler) fireConfirmationRequest(job models.ScheduledJob) error {
	reservation, err := s.reservations.GetByID(job.ReservationID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	user, err := s.users.GetByID(reservation.UserID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}
	region, err := s.regions.GetByID(reservation.RegionID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyConfirmAccept,
				calltypes.MustEncode(calltypes.RequestConfirmationAccept{ReservationID: reservation.ID})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyConfirmRefuse,
				calltypes.MustEncode(calltypes.RequestConfirmationRefuse{ReservationID: reservation.ID})),
		),
	)

	text := fmt.Sprintf(templates.MsgRequestConfirmation, s.cfg.CheckTimeMinutes)
	if _, err := s.telegram.SendMessageWithInlineKeyboard(user.ChatID, text, keyboard); err != nil {
		return err
	}

	infoMessageID, err := s.telegram.SendMessageAndGetID(user.ChatID,
		templates.ReservationInfo(reservation, region))
	if err != nil {
		return err
	}

	return s.jobs.Enroll(models.ScheduledJob{
		Key:           models.ConfirmationTimeoutKey(reservation.ID),
		Kind:          models.JobConfirmationTimeout,
		ReservationID: reservation.ID,
		MessageID:     &infoMessageID,
		FireAt:        s.now().Add(s.cfg.CheckTime()),
	})
}

// fireConfirmationTimeout - автоотказ: пользователь не ответил на запрос
// подтверждения. Для уже отмененной заявки срабатывание холостое.
func (s *Scheduler) fireConfirmationTimeout(job models.ScheduledJob) error {
	reservation, err := s.reservations.GetByID(job.ReservationID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	updated, err := s.reservations.UpdateStatus(reservation.ID, models.StatusRefused)
	if err != nil {
		return err
	}
	if err := s.OnStatusChange(updated); err != nil {
		return err
	}

	if job.MessageID == nil {
		return nil
	}

	user, err := s.users.GetByID(updated.UserID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}
	region, err := s.regions.GetByID(updated.RegionID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}

	// Обновляем карточку заявки, отправленную вместе с запросом
	if err := s.telegram.EditMessageText(user.ChatID, *job.MessageID,
		templates.ReservationInfo(updated, region), nil); err != nil {
		s.logger.Warn("не удалось обновить карточку заявки",
			zap.Error(err),
			zap.Int64("reservation_id", updated.ID),
		)
	}

	return nil
}

// fireRequestAfterVisit спрашивает пользователя, как прошел прием.
// Смена статуса и продление цепочки происходят в обработчике ответа.
func (s *Scheduler) fireRequestAfterVisit(job models.ScheduledJob) error {
	reservation, err := s.reservations.GetByID(job.ReservationID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	user, err := s.users.GetByID(reservation.UserID)
	if err != nil {
		return s.dropIfMissing(err, job)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyAfterVisitingOk,
				calltypes.MustEncode(calltypes.RequestAfterVisiting{
					ReservationID: reservation.ID, Status: models.StatusOk})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyAfterVisitingReceiving,
				calltypes.MustEncode(calltypes.RequestAfterVisiting{
					ReservationID: reservation.ID, Status: models.StatusReceiving})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyAfterVisitingInQueue,
				calltypes.MustEncode(calltypes.RequestAfterVisiting{
					ReservationID: reservation.ID, Status: models.StatusInQueue})),
		),
	)

	_, err = s.telegram.SendMessageWithInlineKeyboard(user.ChatID,
		templates.MsgRequestAfterVisiting, keyboard)
	return err
}

// dropIfMissing: пропавшая заявка или пользователь фатальны только
// для этой задачи - она снимается без повторов
func (s *Scheduler) dropIfMissing(err error, job models.ScheduledJob) error {
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Warn("задача отброшена: запись не найдена",
			zap.String("key", job.Key),
			zap.Int64("reservation_id", job.ReservationID),
		)
		return nil
	}
	return err
}
