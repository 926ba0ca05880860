package bot

import (
	"fmt"
	"strconv"
	"strings"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleSettings - настройки региона, доступны только его администраторам
func (s *Service) handleSettings(user models.User, msg models.IncomingMessage) error {
	region, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgNotAdmin)
	}

	text := fmt.Sprintf(templates.MsgSettings,
		region.Name, region.WorkingTimeFrom, region.WorkingTimeTo,
		region.DayLimit, region.Period)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeySettingsWorkingTime,
				calltypes.MustEncode(calltypes.SettingsWorkingTime{})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeySettingsDayLimit,
				calltypes.MustEncode(calltypes.SettingsDayLimit{})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeySettingsPeriod,
				calltypes.MustEncode(calltypes.SettingsPeriod{})),
		),
	)

	_, err = s.telegram.SendMessageWithInlineKeyboard(msg.ChatID, text, keyboard)
	return err
}

// handleSettingsInput переводит администратора в состояние ввода настройки
func (s *Service) handleSettingsInput(user models.User, cb models.CallbackQuery, state models.BotState, prompt string) error {
	_, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.telegram.AnswerCallback(cb.ID, templates.MsgNotAdmin, true)
	}

	if err := s.users.SetState(cb.ChatID, state, nil); err != nil {
		return err
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(templates.KeyCancel)),
	)
	keyboard.ResizeKeyboard = true
	keyboard.OneTimeKeyboard = true

	return s.telegram.SendMessageWithKeyboard(cb.ChatID, prompt, keyboard)
}

// handleWorkingTimeInput - ввод времени работы региона в формате ЧЧ:ММ-ЧЧ:ММ
func (s *Service) handleWorkingTimeInput(user models.User, msg models.IncomingMessage) error {
	region, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.leaveInputState(user, msg, templates.MsgNotAdmin)
	}

	parts := strings.Split(strings.TrimSpace(msg.Text), "-")
	if len(parts) != 2 {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgIncorrectWorkTime)
	}

	from, errFrom := models.ParseDayMinutes(strings.TrimSpace(parts[0]))
	to, errTo := models.ParseDayMinutes(strings.TrimSpace(parts[1]))
	if errFrom != nil || errTo != nil || from >= to {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgIncorrectWorkTime)
	}

	if err := s.regions.UpdateWorkingTime(region.ID,
		strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])); err != nil {
		return err
	}

	s.logger.Info("обновлено время работы региона",
		zap.Int64("region_id", region.ID),
		zap.String("working_time", msg.Text),
	)

	return s.leaveInputState(user, msg, templates.MsgSettingsSaved)
}

func (s *Service) handleDayLimitInput(user models.User, msg models.IncomingMessage) error {
	return s.handleNumberInput(user, msg, s.regions.UpdateDayLimit)
}

func (s *Service) handlePeriodInput(user models.User, msg models.IncomingMessage) error {
	return s.handleNumberInput(user, msg, s.regions.UpdatePeriod)
}

func (s *Service) handleNumberInput(user models.User, msg models.IncomingMessage, update func(int64, int) error) error {
	region, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.leaveInputState(user, msg, templates.MsgNotAdmin)
	}

	value, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || value <= 0 {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgIncorrectNumber)
	}

	if err := update(region.ID, value); err != nil {
		return err
	}

	return s.leaveInputState(user, msg, templates.MsgSettingsSaved)
}

// leaveInputState сбрасывает состояние ввода и возвращает в меню
func (s *Service) leaveInputState(user models.User, msg models.IncomingMessage, text string) error {
	if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
		return err
	}
	if err := s.telegram.SendMessage(msg.ChatID, text); err != nil {
		return err
	}

	user.BotState = models.StateNothing
	return s.handleMenu(user, msg)
}

// handleToday - список сегодняшних заявок региона для администратора
func (s *Service) handleToday(user models.User, msg models.IncomingMessage) error {
	_, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.telegram.SendMessage(msg.ChatID, templates.MsgNotAdmin)
	}

	text, keyboard, err := s.todayPage(user, 1)
	if err != nil {
		return err
	}
	if keyboard == nil {
		return s.telegram.SendMessage(msg.ChatID, text)
	}

	_, err = s.telegram.SendMessageWithInlineKeyboard(msg.ChatID, text, *keyboard)
	return err
}

func (s *Service) handleTodayReservations(user models.User, cb models.CallbackQuery, page int) error {
	_, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.telegram.AnswerCallback(cb.ID, templates.MsgNotAdmin, true)
	}

	text, keyboard, err := s.todayPage(user, page)
	if err != nil {
		return err
	}
	if keyboard == nil {
		return s.telegram.AnswerCallback(cb.ID, text, true)
	}

	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, text, keyboard)
}

// todayPage строит карточку одной из сегодняшних заявок
// с кнопками смены статуса
func (s *Service) todayPage(user models.User, page int) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	region, err := s.userRegion(user)
	if err != nil {
		return "", nil, err
	}
	loc, err := region.Location()
	if err != nil {
		return "", nil, err
	}

	from, to := dayRange(s.now().In(loc), loc)
	reservations, err := s.reservations.store.ListActiveBetween(region.ID, from, to)
	if err != nil {
		return "", nil, err
	}
	if len(reservations) == 0 {
		return templates.MsgTodayEmpty, nil, nil
	}

	if page < 1 {
		page = 1
	}
	if page > len(reservations) {
		page = len(reservations)
	}
	reservation := reservations[page-1]

	statusRow := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(templates.KeyStatusReceiving,
			calltypes.MustEncode(calltypes.ReservationStatusChange{
				ReservationID: reservation.ID, Status: models.StatusReceiving})),
		tgbotapi.NewInlineKeyboardButtonData(templates.KeyStatusOk,
			calltypes.MustEncode(calltypes.ReservationStatusChange{
				ReservationID: reservation.ID, Status: models.StatusOk})),
	)
	statusRow2 := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(templates.KeyStatusDidNotCome,
			calltypes.MustEncode(calltypes.ReservationStatusChange{
				ReservationID: reservation.ID, Status: models.StatusDidNotCome})),
		tgbotapi.NewInlineKeyboardButtonData(templates.KeyStatusRefused,
			calltypes.MustEncode(calltypes.ReservationStatusChange{
				ReservationID: reservation.ID, Status: models.StatusRefused})),
	)

	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("«",
			calltypes.MustEncode(calltypes.TodayReservations{Page: page - 1})))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("%d/%d", page, len(reservations)),
		calltypes.MustEncode(calltypes.TodayReservations{Page: page})))
	if page < len(reservations) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("»",
			calltypes.MustEncode(calltypes.TodayReservations{Page: page + 1})))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(statusRow, statusRow2, nav)
	return templates.ReservationInfo(reservation, region), &keyboard, nil
}

// handleStatusChange - смена статуса заявки администратором.
// При отказе хук смены статуса отменит задачи и уведомит пользователя.
func (s *Service) handleStatusChange(user models.User, cb models.CallbackQuery, reservationID int64, status models.ReservationStatus) error {
	_, admin, err := s.regionAdmin(user)
	if err != nil {
		return err
	}
	if !admin {
		return s.telegram.AnswerCallback(cb.ID, templates.MsgNotAdmin, true)
	}

	reservation, err := s.reservations.store.GetByID(reservationID)
	if err != nil {
		return err
	}
	if reservation.Status == status {
		return nil
	}

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

	region, err := s.regions.GetByID(updated.RegionID)
	if err != nil {
		return err
	}
	if err := s.telegram.AnswerCallback(cb.ID, templates.MsgStatusChanged, false); err != nil {
		s.logger.Debug("ответ на callback отклонен", zap.Error(err))
	}

	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID,
		templates.ReservationInfo(updated, region), nil)
}

// regionAdmin проверяет, что у пользователя выбран регион
// и он назначен его администратором
func (s *Service) regionAdmin(user models.User) (models.Region, bool, error) {
	if user.RegionID == nil {
		return models.Region{}, false, nil
	}
	region, err := s.regions.GetByID(*user.RegionID)
	if err != nil {
		return models.Region{}, false, err
	}
	admin, err := s.users.IsRegionAdmin(user.ID, region.ID)
	if err != nil {
		return models.Region{}, false, err
	}
	return region, admin, nil
}
