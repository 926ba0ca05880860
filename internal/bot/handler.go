package bot

import (
	"errors"
	"strings"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/database"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	"go.uber.org/zap"
)

// HandleMessage - основной обработчик входящих сообщений.
// Порядок диспетчеризации:
//  1. "Отмена" и "Выбрать другую дату" срабатывают из любого состояния;
//  2. в остальном непустое состояние монополизирует сообщение;
//  3. в покое сообщение сверяется сначала с командами по префиксу,
//     затем с кнопками по точному совпадению.
func (s *Service) HandleMessage(msg models.IncomingMessage) error {
	user, created, err := s.users.GetOrCreate(msg.ChatID)
	if err != nil {
		s.logger.Error("ошибка при получении пользователя",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID),
		)
		return err
	}

	if err := s.users.UpdateInfo(msg.ChatID, msg.Username, msg.FirstName, msg.LastName); err != nil {
		s.logger.Warn("не удалось обновить данные пользователя",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID),
		)
	}

	if created {
		return s.handleStart(user, msg)
	}

	escape := msg.Text == templates.KeyCancel || msg.Text == templates.KeySelectAnotherDate
	if user.BotState != models.StateNothing && !escape {
		if handler, ok := s.stateHandlers[user.BotState]; ok {
			return handler(user, msg)
		}

		// Неизвестное состояние в базе - сбрасываем и показываем меню
		s.logger.Warn("неизвестное состояние пользователя, сбрасываем",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int("state", int(user.BotState)),
		)
		if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
			return err
		}
		return s.handleMenu(user, msg)
	}

	for _, h := range s.commandHandlers {
		if strings.HasPrefix(msg.Text, h.match) {
			return h.handler(user, msg)
		}
	}

	for _, h := range s.keyHandlers {
		if msg.Text == h.match {
			return h.handler(user, msg)
		}
	}

	return s.telegram.SendMessage(msg.ChatID, templates.MsgUnknown)
}

// HandleCallback обрабатывает нажатия инлайн-кнопок. В непустом состоянии
// пропускаются только действия, относящиеся к текущему сценарию, -
// остальные молча отбрасываются, чтобы не ломать машину состояний.
func (s *Service) HandleCallback(cb models.CallbackQuery) error {
	action, err := calltypes.Decode(cb.Data)
	if err != nil {
		s.logger.Warn("не удалось разобрать callback data",
			zap.Error(err),
			zap.String("data", cb.Data),
			zap.Int64("chat_id", cb.ChatID),
		)
		return s.answerEmpty(cb)
	}

	user, err := s.users.GetByChatID(cb.ChatID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("callback от неизвестного пользователя",
				zap.Int64("chat_id", cb.ChatID),
			)
			return s.answerEmpty(cb)
		}
		return err
	}

	if user.BotState != models.StateNothing && !callbackAllowed(user.BotState, action) {
		s.logger.Debug("callback отброшен из-за состояния пользователя",
			zap.Int64("chat_id", cb.ChatID),
			zap.Int("state", int(user.BotState)),
			zap.String("data", cb.Data),
		)
		return s.answerEmpty(cb)
	}

	switch a := action.(type) {
	case calltypes.Menu:
		err = s.handleMenuCallback(user, cb)
	case calltypes.SelectRegion:
		err = s.handleSelectRegion(user, cb, a.RegionID)
	case calltypes.ResetRegion:
		err = s.handleResetRegion(user, cb)
	case calltypes.Reservation:
		err = s.handleReservation(user, cb)
	case calltypes.ReservationForAnother:
		err = s.handleReservationForAnother(user, cb)
	case calltypes.ReservationForDay:
		err = s.handleReservationForDay(user, cb, a.Days)
	case calltypes.MyReservations:
		err = s.handleMyReservations(user, cb, a.Page)
	case calltypes.RequestConfirmationAccept:
		err = s.handleConfirmationAccept(user, cb, a.ReservationID)
	case calltypes.RequestConfirmationRefuse:
		err = s.handleConfirmationRefuse(user, cb, a.ReservationID)
	case calltypes.RequestAfterVisiting:
		err = s.handleAfterVisiting(user, cb, a.ReservationID, a.Status)
	case calltypes.TodayReservations:
		err = s.handleTodayReservations(user, cb, a.Page)
	case calltypes.ReservationStatusChange:
		err = s.handleStatusChange(user, cb, a.ReservationID, a.Status)
	case calltypes.SettingsWorkingTime:
		err = s.handleSettingsInput(user, cb, models.StateInputWorkingTime, templates.MsgInputWorkingTime)
	case calltypes.SettingsDayLimit:
		err = s.handleSettingsInput(user, cb, models.StateInputDayLimit, templates.MsgInputDayLimit)
	case calltypes.SettingsPeriod:
		err = s.handleSettingsInput(user, cb, models.StateInputPeriod, templates.MsgInputPeriod)
	default:
		s.logger.Warn("нет обработчика для действия", zap.String("data", cb.Data))
	}

	if err != nil {
		// Пропажа заявки или региона фатальна только для этого события
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("событие отброшено: запись не найдена",
				zap.String("data", cb.Data),
				zap.Int64("chat_id", cb.ChatID),
			)
			return s.answerEmpty(cb)
		}
		return err
	}

	return s.answerEmpty(cb)
}

// callbackAllowed - белый список действий для непустых состояний.
// Пока пользователь вводит время, разрешен только выбор другого дня.
func callbackAllowed(state models.BotState, action calltypes.Action) bool {
	switch state {
	case models.StateReservationTime:
		_, ok := action.(calltypes.ReservationForDay)
		return ok
	}
	return false
}

// answerEmpty снимает индикатор загрузки с кнопки. Если обработчик уже
// ответил алертом, повторный ответ отклоняется - это не ошибка.
func (s *Service) answerEmpty(cb models.CallbackQuery) error {
	if err := s.telegram.AnswerCallback(cb.ID, "", false); err != nil {
		s.logger.Debug("ответ на callback отклонен", zap.Error(err))
	}
	return nil
}
