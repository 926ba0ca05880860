package bot

import (
	"errors"
	"fmt"
	"time"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/database"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// количество дней, предлагаемых при выборе "Другой день"
const reservationDays = 9

// handleReservation - вход в сценарий записи: сегодня/завтра/другой день.
// Лимит заявок проверяется сразу, до показа меню, и повторно перед коммитом.
func (s *Service) handleReservation(user models.User, cb models.CallbackQuery) error {
	region, err := s.userRegion(user)
	if err != nil {
		return err
	}

	within, err := s.reservations.WithinLimit(user.ID, s.now())
	if err != nil {
		return err
	}
	if !within {
		return s.telegram.SendMessage(cb.ChatID, s.limitExceededMessage())
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyForToday,
				calltypes.MustEncode(calltypes.ReservationForDay{Days: 0})),
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyForTomorrow,
				calltypes.MustEncode(calltypes.ReservationForDay{Days: 1})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyForAnotherTime,
				calltypes.MustEncode(calltypes.ReservationForAnother{})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyBack,
				calltypes.MustEncode(calltypes.Menu{})),
		),
	)

	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, reservationText(region), &keyboard)
}

func (s *Service) handleReservationForAnother(user models.User, cb models.CallbackQuery) error {
	region, err := s.userRegion(user)
	if err != nil {
		return err
	}

	keyboard := s.dayListKeyboard()
	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, reservationText(region), &keyboard)
}

// handleReservationForDay проверяет выбранный день и переводит пользователя
// в состояние ввода времени. Выбранная дата хранится в temp_date до тех пор,
// пока время не введено или сценарий не отменен.
func (s *Service) handleReservationForDay(user models.User, cb models.CallbackQuery, days int) error {
	region, err := s.userRegion(user)
	if err != nil {
		return err
	}

	within, err := s.reservations.WithinLimit(user.ID, s.now())
	if err != nil {
		return err
	}
	if !within {
		return s.telegram.SendMessage(cb.ChatID, s.limitExceededMessage())
	}

	if err := s.reservations.ValidateRequest(region, s.now(), days); err != nil {
		switch {
		case errors.Is(err, ErrTooLateToday):
			return s.telegram.AnswerCallback(cb.ID, templates.MsgCantToday, true)
		case errors.Is(err, ErrDayLimitExceeded):
			return s.telegram.AnswerCallback(cb.ID, templates.MsgDayLimitExceeded, true)
		}
		return err
	}

	loc, err := region.Location()
	if err != nil {
		return err
	}
	local := s.now().In(loc).AddDate(0, 0, days)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	if err := s.users.SetState(cb.ChatID, models.StateReservationTime, &date); err != nil {
		return err
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(templates.KeySelectAnotherDate)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(templates.KeyCancel)),
	)
	keyboard.ResizeKeyboard = true
	keyboard.OneTimeKeyboard = true

	return s.telegram.SendMessageWithKeyboard(cb.ChatID, templates.MsgReservationTime, keyboard)
}

// handleReservationTimeInput - ввод времени в состоянии ожидания.
// Ошибки валидации оставляют пользователя в том же состоянии,
// кроме превышения лимита - после него пользователь возвращается в меню.
func (s *Service) handleReservationTimeInput(user models.User, msg models.IncomingMessage) error {
	region, err := s.userRegion(user)
	if err != nil {
		return err
	}

	if user.TempDate == nil {
		s.logger.Warn("состояние ввода времени без выбранной даты",
			zap.Int64("chat_id", msg.ChatID),
		)
		if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
			return err
		}
		return s.handleMenu(user, msg)
	}

	minutes, err := models.ParseDayMinutes(msg.Text)
	if err != nil {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgIncorrectTime)
	}

	loc, err := region.Location()
	if err != nil {
		return err
	}
	date := *user.TempDate
	dt := time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc)

	now := s.now()
	reservation, err := s.reservations.Create(region, user.ID, dt, now)
	if err != nil {
		return s.reportCreateFailure(user, msg, region, dt, err)
	}

	if err := s.planner.OnStatusChange(reservation); err != nil {
		s.logger.Error("ошибка при планировании уведомлений",
			zap.Error(err),
			zap.Int64("reservation_id", reservation.ID),
		)
	}

	if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
		return err
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(templates.KeyMenu)),
	)
	keyboard.ResizeKeyboard = true
	if err := s.telegram.SendMessageWithKeyboard(msg.ChatID, templates.MsgReservationFinish, keyboard); err != nil {
		return err
	}

	user.BotState = models.StateNothing
	return s.handleMenu(user, msg)
}

// reportCreateFailure превращает типизированный отказ коммита
// в сообщение пользователю
func (s *Service) reportCreateFailure(user models.User, msg models.IncomingMessage, region models.Region, dt time.Time, err error) error {
	switch {
	case errors.Is(err, ErrLimitExceeded):
		if sendErr := s.telegram.SendMessage(msg.ChatID, s.limitExceededMessage()); sendErr != nil {
			return sendErr
		}
		if stateErr := s.users.SetState(msg.ChatID, models.StateNothing, nil); stateErr != nil {
			return stateErr
		}
		return s.handleMenu(user, msg)

	case errors.Is(err, ErrDayLimitExceeded):
		// День успели заполнить, пока пользователь вводил время
		if sendErr := s.telegram.SendMessage(msg.ChatID, templates.MsgDayLimitExceeded); sendErr != nil {
			return sendErr
		}
		if stateErr := s.users.SetState(msg.ChatID, models.StateNothing, nil); stateErr != nil {
			return stateErr
		}
		return s.handleMenu(user, msg)

	case errors.Is(err, ErrOutOfWorkingHours):
		text := fmt.Sprintf(templates.MsgWorkingTimeError, region.WorkingTimeFrom, region.WorkingTimeTo)
		return s.telegram.SendMessage(msg.ChatID, text)

	case errors.Is(err, ErrTooSoon):
		return s.telegram.SendMessage(msg.ChatID, fmt.Sprintf(templates.MsgTimePast, s.reservations.cfg.MinTimeMinutes))

	case errors.Is(err, database.ErrSlotOccupied):
		if sendErr := s.telegram.SendMessage(msg.ChatID, templates.MsgTimeOccupied); sendErr != nil {
			return sendErr
		}
		next, found, nextErr := s.reservations.NextUnoccupiedTime(region, dt)
		if nextErr != nil {
			return nextErr
		}
		if !found {
			return s.telegram.SendMessage(msg.ChatID, templates.MsgNoFreeSlots)
		}
		return s.telegram.SendMessage(msg.ChatID,
			fmt.Sprintf(templates.MsgNextUnoccupied, next.Format("02/01 15:04")))
	}

	return err
}

// handleMyReservations листает заявки пользователя, по одной на страницу
func (s *Service) handleMyReservations(user models.User, cb models.CallbackQuery, page int) error {
	reservations, err := s.reservations.store.ListByUser(user.ID)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		return s.telegram.AnswerCallback(cb.ID, templates.MsgMyReservationsEmpty, true)
	}

	if page < 1 {
		page = 1
	}
	if page > len(reservations) {
		page = len(reservations)
	}
	reservation := reservations[page-1]

	region, err := s.regions.GetByID(reservation.RegionID)
	if err != nil {
		return err
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("«",
			calltypes.MustEncode(calltypes.MyReservations{Page: page - 1})))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("%d/%d", page, len(reservations)),
		calltypes.MustEncode(calltypes.MyReservations{Page: page})))
	if page < len(reservations) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("»",
			calltypes.MustEncode(calltypes.MyReservations{Page: page + 1})))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		nav,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyBack,
				calltypes.MustEncode(calltypes.Menu{})),
		),
	)

	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID,
		templates.ReservationInfo(reservation, region), &keyboard)
}

// handleConfirmationAccept - пользователь подтвердил, что придет.
// Для уже отмененной заявки это устаревшее действие и ничего не делает.
func (s *Service) handleConfirmationAccept(user models.User, cb models.CallbackQuery, reservationID int64) error {
	reservation, err := s.reservations.store.GetByID(reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	updated, err := s.reservations.store.UpdateStatus(reservationID, models.StatusConfirmed)
	if err != nil {
		return err
	}
	if err := s.planner.OnStatusChange(updated); err != nil {
		s.logger.Error("ошибка в хуке смены статуса",
			zap.Error(err),
			zap.Int64("reservation_id", reservationID),
		)
	}

	if err := s.planner.CancelConfirmationTimeout(reservationID); err != nil {
		return err
	}

	if err := s.telegram.DeleteMessage(cb.ChatID, cb.MessageID); err != nil {
		s.logger.Warn("не удалось удалить сообщение с подтверждением",
			zap.Error(err),
			zap.Int64("chat_id", cb.ChatID),
		)
	}

	return s.telegram.SendMessage(cb.ChatID, templates.MsgConfirmationAccepted)
}

// handleConfirmationRefuse - пользователь отказался от записи.
// Отмену остальных задач и уведомление делает хук смены статуса.
func (s *Service) handleConfirmationRefuse(user models.User, cb models.CallbackQuery, reservationID int64) error {
	reservation, err := s.reservations.store.GetByID(reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	if err := s.telegram.DeleteMessage(cb.ChatID, cb.MessageID); err != nil {
		s.logger.Warn("не удалось удалить сообщение с подтверждением",
			zap.Error(err),
			zap.Int64("chat_id", cb.ChatID),
		)
	}

	updated, err := s.reservations.store.UpdateStatus(reservationID, models.StatusRefused)
	if err != nil {
		return err
	}
	if err := s.planner.OnStatusChange(updated); err != nil {
		s.logger.Error("ошибка в хуке смены статуса",
			zap.Error(err),
			zap.Int64("reservation_id", reservationID),
		)
	}

	return s.planner.CancelConfirmationTimeout(reservationID)
}

// handleAfterVisiting - ответ на опрос после визита. Подтвержденную заявку
// устаревший опрос не перезаписывает. Пока пользователь не ответил "Все ок",
// опрос повторяется через настроенный интервал.
func (s *Service) handleAfterVisiting(user models.User, cb models.CallbackQuery, reservationID int64, status models.ReservationStatus) error {
	reservation, err := s.reservations.store.GetByID(reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == models.StatusRefused {
		return nil
	}

	if reservation.Status != models.StatusConfirmed {
		updated, err := s.reservations.store.UpdateStatus(reservationID, status)
		if err != nil {
			return err
		}
		if err := s.planner.OnStatusChange(updated); err != nil {
			s.logger.Error("ошибка в хуке смены статуса",
				zap.Error(err),
				zap.Int64("reservation_id", reservationID),
			)
		}
	}

	if status != models.StatusOk {
		fireAt := s.now().Add(s.reservations.cfg.AfterVisit())
		if err := s.planner.ScheduleFollowUp(reservationID, fireAt); err != nil {
			return err
		}
	}

	if err := s.telegram.DeleteMessage(cb.ChatID, cb.MessageID); err != nil {
		s.logger.Warn("не удалось удалить сообщение опроса",
			zap.Error(err),
			zap.Int64("chat_id", cb.ChatID),
		)
	}

	return s.telegram.SendMessage(cb.ChatID, templates.MsgAfterVisitingThanks)
}

// userRegion возвращает регион пользователя. Отсутствие выбранного региона
// обрабатывается как отсутствие записи - событие будет отброшено.
func (s *Service) userRegion(user models.User) (models.Region, error) {
	if user.RegionID == nil {
		return models.Region{}, database.ErrNotFound
	}
	return s.regions.GetByID(*user.RegionID)
}

func (s *Service) dayListKeyboard() tgbotapi.InlineKeyboardMarkup {
	now := s.now()
	var buttons []tgbotapi.InlineKeyboardButton
	for days := 0; days < reservationDays; days++ {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			now.AddDate(0, 0, days).Format("02/01"),
			calltypes.MustEncode(calltypes.ReservationForDay{Days: days}),
		))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		buttons[0:3], buttons[3:6], buttons[6:9],
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyBack,
				calltypes.MustEncode(calltypes.Reservation{})),
		),
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func reservationText(region models.Region) string {
	return fmt.Sprintf(templates.MsgReservation, region.WorkingTimeFrom, region.WorkingTimeTo)
}

func (s *Service) limitExceededMessage() string {
	cfg := s.reservations.cfg
	return fmt.Sprintf(templates.MsgLimitExceeded, cfg.LimitCount, cfg.LimitPeriodSeconds/3600)
}
