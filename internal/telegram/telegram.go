package telegram

import (
	"fmt"
	"time"

	"priem-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramClient struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram client: %w", err)
	}

	return &TelegramClient{
		bot: bot,
	}, nil
}

func (t *TelegramClient) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(msg)
	return err
}

// SendMessageAndGetID отправляет сообщение и возвращает его id
func (t *TelegramClient) SendMessageAndGetID(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	sentMsg, err := t.bot.Send(msg)
	if err != nil {
		return 0, err
	}

	return sentMsg.MessageID, nil
}

func (t *TelegramClient) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	_, err := t.bot.Send(msg)
	return err
}

// SendMessageWithInlineKeyboard отправляет сообщение с инлайн-клавиатурой
// и возвращает id сообщения - он нужен для последующего редактирования
func (t *TelegramClient) SendMessageWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	sentMsg, err := t.bot.Send(msg)
	if err != nil {
		return 0, err
	}

	return sentMsg.MessageID, nil
}

func (t *TelegramClient) EditMessageText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	editMsg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	editMsg.ParseMode = tgbotapi.ModeHTML
	editMsg.ReplyMarkup = keyboard
	_, err := t.bot.Send(editMsg)
	return err
}

func (t *TelegramClient) DeleteMessage(chatID int64, messageID int) error {
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// AnswerCallback отвечает на callback-запрос. При showAlert текст
// показывается пользователю всплывающим окном.
func (t *TelegramClient) AnswerCallback(callbackID, text string, showAlert bool) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	callback.ShowAlert = showAlert
	_, err := t.bot.Request(callback)
	return err
}

// StartBot запускает long polling и раскладывает обновления по каналам
func (t *TelegramClient) StartBot() (chan models.IncomingMessage, chan models.CallbackQuery, error) {
	// Удаляем вебхук перед запуском Long Polling
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete webhook: %v", err)
	}

	// Пауза для стабилизации соединения
	time.Sleep(1 * time.Second)

	messages := make(chan models.IncomingMessage)
	callbackQueries := make(chan models.CallbackQuery)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message != nil {
				// Бот работает только в личных чатах
				if !update.Message.Chat.IsPrivate() {
					continue
				}

				messages <- models.IncomingMessage{
					ChatID:    update.Message.Chat.ID,
					Text:      update.Message.Text,
					Username:  update.Message.From.UserName,
					FirstName: update.Message.From.FirstName,
					LastName:  update.Message.From.LastName,
				}
			}

			if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
				// На callback отвечает обработчик: ему может понадобиться
				// показать алерт, а Telegram принимает только один ответ
				callbackQueries <- models.CallbackQuery{
					ID:        update.CallbackQuery.ID,
					ChatID:    update.CallbackQuery.Message.Chat.ID,
					MessageID: update.CallbackQuery.Message.MessageID,
					Data:      update.CallbackQuery.Data,
				}
			}
		}

		close(messages)
		close(callbackQueries)
	}()

	return messages, callbackQueries, nil
}
