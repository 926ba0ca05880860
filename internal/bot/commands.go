package bot

import (
	"strconv"
	"strings"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleStart - обработка /start. Глубокая ссылка /start ref<id> связывает
// нового пользователя с пригласившим.
func (s *Service) handleStart(user models.User, msg models.IncomingMessage) error {
	parts := strings.Split(msg.Text, " ")
	if len(parts) > 1 && strings.HasPrefix(parts[1], "ref") {
		if fromID, err := strconv.ParseInt(strings.TrimPrefix(parts[1], "ref"), 10, 64); err == nil {
			if err := s.users.SetReferrer(msg.ChatID, fromID); err != nil {
				s.logger.Warn("не удалось сохранить реферальную ссылку",
					zap.Error(err),
					zap.Int64("chat_id", msg.ChatID),
				)
			}
		}
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(templates.KeyMenu)),
	)
	keyboard.ResizeKeyboard = true
	if err := s.telegram.SendMessageWithKeyboard(msg.ChatID, templates.MsgStart, keyboard); err != nil {
		s.logger.Error("ошибка при отправке приветствия",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID),
		)
		return err
	}

	return s.handleMenu(user, msg)
}

// handleMenu показывает главное меню: меню региона, если регион выбран,
// иначе список регионов
func (s *Service) handleMenu(user models.User, msg models.IncomingMessage) error {
	if user.RegionID == nil {
		keyboard, err := s.regionListKeyboard()
		if err != nil {
			return err
		}
		_, err = s.telegram.SendMessageWithInlineKeyboard(msg.ChatID, templates.MsgSelectRegion, *keyboard)
		return err
	}

	_, err := s.telegram.SendMessageWithInlineKeyboard(msg.ChatID, "<b>"+templates.KeyMenu+"</b>", regionMenuKeyboard())
	return err
}

// handleMenuCallback - то же меню, но отрисованное поверх старого сообщения
func (s *Service) handleMenuCallback(user models.User, cb models.CallbackQuery) error {
	if user.RegionID == nil {
		keyboard, err := s.regionListKeyboard()
		if err != nil {
			return err
		}
		return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, templates.MsgSelectRegion, keyboard)
	}

	keyboard := regionMenuKeyboard()
	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, "<b>"+templates.KeyMenu+"</b>", &keyboard)
}

func (s *Service) handleSelectRegion(user models.User, cb models.CallbackQuery, regionID int64) error {
	region, err := s.regions.GetByID(regionID)
	if err != nil {
		return err
	}

	if err := s.users.SetRegion(cb.ChatID, &region.ID); err != nil {
		return err
	}

	keyboard := regionMenuKeyboard()
	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, "<b>"+templates.KeyMenu+"</b>", &keyboard)
}

func (s *Service) handleResetRegion(user models.User, cb models.CallbackQuery) error {
	if err := s.users.SetRegion(cb.ChatID, nil); err != nil {
		return err
	}

	keyboard, err := s.regionListKeyboard()
	if err != nil {
		return err
	}
	return s.telegram.EditMessageText(cb.ChatID, cb.MessageID, templates.MsgSelectRegion, keyboard)
}

// handleCancel из любого состояния возвращает в покой и показывает меню
func (s *Service) handleCancel(user models.User, msg models.IncomingMessage) error {
	if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
		return err
	}
	return s.handleMenu(user, msg)
}

// handleSelectAnotherDate сбрасывает ввод времени и заново показывает дни
func (s *Service) handleSelectAnotherDate(user models.User, msg models.IncomingMessage) error {
	if err := s.users.SetState(msg.ChatID, models.StateNothing, nil); err != nil {
		return err
	}

	region, err := s.userRegion(user)
	if err != nil {
		return err
	}

	keyboard := s.dayListKeyboard()
	text := reservationText(region)
	_, err = s.telegram.SendMessageWithInlineKeyboard(msg.ChatID, text, keyboard)
	return err
}

func (s *Service) regionListKeyboard() (*tgbotapi.InlineKeyboardMarkup, error) {
	regions, err := s.regions.List()
	if err != nil {
		return nil, err
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, region := range regions {
		data := calltypes.MustEncode(calltypes.SelectRegion{RegionID: region.ID})
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(region.Name, data),
		))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard, nil
}

func regionMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyReservation,
				calltypes.MustEncode(calltypes.Reservation{})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeyMyReservations,
				calltypes.MustEncode(calltypes.MyReservations{Page: 1})),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(templates.KeySelectRegion,
				calltypes.MustEncode(calltypes.ResetRegion{})),
		),
	)
}
