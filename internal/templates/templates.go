// Package templates содержит тексты сообщений и подписи кнопок.
// Пакет общий для обработчиков бота и планировщика уведомлений.
package templates

import (
	"fmt"

	"priem-bot/internal/models"
)

// Keys - подписи кнопок
const (
	KeyMenu              = "Меню"
	KeyBack              = "◀️ Назад"
	KeyCancel            = "Отмена"
	KeySelectAnotherDate = "Выбрать другую дату"

	KeyReservation    = "📅 Записаться"
	KeyMyReservations = "🗒 Мои записи"
	KeySelectRegion   = "📍 Выбрать регион"

	KeyForToday       = "Сегодня"
	KeyForTomorrow    = "Завтра"
	KeyForAnotherTime = "Другой день"

	KeyConfirmAccept = "✅ Приду"
	KeyConfirmRefuse = "❌ Не приду"

	KeyAfterVisitingOk        = "Все ок"
	KeyAfterVisitingReceiving = "На приеме"
	KeyAfterVisitingInQueue   = "В очереди"

	KeySettingsWorkingTime = "🕘 Время работы"
	KeySettingsDayLimit    = "👥 Лимит на день"
	KeySettingsPeriod      = "⏱ Период записи"

	KeyStatusReceiving  = "На приеме"
	KeyStatusDidNotCome = "Не пришел"
	KeyStatusOk         = "Все ок"
	KeyStatusRefused    = "Отказать"
)

// Messages - тексты сообщений
const (
	MsgStart        = "Здравствуйте! Этот бот поможет записаться на прием."
	MsgSelectRegion = "Выберите регион:"
	MsgUnknown      = "Не понимаю. Отправьте /menu, чтобы открыть меню."

	MsgReservation = "Запись на прием.\nВремя работы: с %s до %s.\nВыберите день:"

	MsgReservationTime  = "Введите время в формате ЧЧ:ММ, например 14:30."
	MsgIncorrectTime    = "Не удалось разобрать время. Введите время в формате ЧЧ:ММ, например 14:30."
	MsgWorkingTimeError = "Время должно попадать в часы работы: с %s до %s."
	MsgTimePast         = "Это время уже недоступно. Запись возможна не позднее чем за %d минут до приема."
	MsgTimeOccupied     = "Это время уже занято."
	MsgNextUnoccupied   = "Ближайшее свободное время: %s."
	MsgNoFreeSlots      = "Свободного времени не нашлось, попробуйте другой день."

	MsgCantToday         = "Сегодня запись уже закрыта, рабочий день закончился."
	MsgDayLimitExceeded  = "На этот день записи больше нет, выберите другой день."
	MsgLimitExceeded     = "Слишком много заявок: не больше %d за %d часов. Попробуйте позже."
	MsgReservationFinish = "Вы записаны! Накануне приема бот попросит подтвердить запись."

	MsgMyReservationsEmpty = "У вас пока нет записей."

	MsgRequestConfirmation  = "Подтвердите, что придете на прием. На ответ есть %d минут, иначе запись будет отменена."
	MsgConfirmationAccepted = "Спасибо, ждем вас на приеме!"
	MsgReservationRefused   = "Запись отменена."

	MsgRequestAfterVisiting = "Как прошел прием?"
	MsgAfterVisitingThanks  = "Спасибо за ответ!"

	MsgNotAdmin            = "Эта команда доступна только администраторам региона."
	MsgSettings            = "Настройки региона «%s».\nВремя работы: с %s до %s.\nЛимит на день: %d.\nПериод: %d мин."
	MsgInputWorkingTime    = "Введите время работы в формате ЧЧ:ММ-ЧЧ:ММ, например 09:00-17:00."
	MsgIncorrectWorkTime   = "Не удалось разобрать. Нужен формат ЧЧ:ММ-ЧЧ:ММ, и начало должно быть раньше конца."
	MsgInputDayLimit       = "Введите лимит записей на день (целое число)."
	MsgInputPeriod         = "Введите период между записями в минутах (целое число)."
	MsgIncorrectNumber     = "Нужно целое положительное число."
	MsgSettingsSaved       = "Сохранено."
	MsgTodayEmpty          = "На сегодня записей нет."
	MsgStatusChanged       = "Статус обновлен."
)

// ReservationInfo - карточка заявки. Дата показывается в часовом поясе региона.
func ReservationInfo(reservation models.Reservation, region models.Region) string {
	datetime := reservation.Datetime
	if loc, err := region.Location(); err == nil {
		datetime = datetime.In(loc)
	}

	return fmt.Sprintf(
		"Заявка №%d\nДата и время: %s\nРегион: %s\nСтатус: %s",
		reservation.ID,
		datetime.Format("02/01/2006 15:04"),
		region.Name,
		reservation.Status.Display(),
	)
}
