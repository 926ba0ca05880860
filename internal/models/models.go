package models

import (
	"fmt"
	"time"
)

// BotState - состояние диалога пользователя. Ровно одно состояние на пользователя.
type BotState int

const (
	StateNothing          BotState = 0 // обычное меню, никакого ввода не ждем
	StateReservationTime  BotState = 1 // ждем время записи в формате ЧЧ:ММ
	StateInputWorkingTime BotState = 2 // админ вводит время работы ЧЧ:ММ-ЧЧ:ММ
	StateInputDayLimit    BotState = 3 // админ вводит лимит записей на день
	StateInputPeriod      BotState = 4 // админ вводит период между записями
)

// ReservationStatus - статус заявки. Числовые значения хранятся в базе.
type ReservationStatus int

const (
	StatusRefused    ReservationStatus = 0
	StatusReserved   ReservationStatus = 1
	StatusInQueue    ReservationStatus = 2
	StatusReceiving  ReservationStatus = 3
	StatusDidNotCome ReservationStatus = 4
	StatusOk         ReservationStatus = 5
	StatusConfirmed  ReservationStatus = 6
)

// Display возвращает человекочитаемое название статуса для сообщений пользователю
func (s ReservationStatus) Display() string {
	switch s {
	case StatusRefused:
		return "Отказано"
	case StatusReserved:
		return "Зарезервировано"
	case StatusInQueue:
		return "В очереди"
	case StatusReceiving:
		return "На приеме"
	case StatusDidNotCome:
		return "Не пришел"
	case StatusOk:
		return "Все ок"
	case StatusConfirmed:
		return "Подтверждено"
	}
	return fmt.Sprintf("Статус %d", int(s))
}

// Region - регион записи со своим графиком работы и ограничениями
type Region struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	Address         string `db:"address"`
	Timezone        string `db:"timezone"`
	WorkingTimeFrom string `db:"working_time_from"` // формат 15:04
	WorkingTimeTo   string `db:"working_time_to"`   // формат 15:04
	DayLimit        int    `db:"day_limit"`
	Period          int    `db:"period"` // минимальный интервал между записями, в минутах
}

// Location возвращает часовой пояс региона
func (r Region) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// WorkingMinutes возвращает границы рабочего дня в минутах от полуночи.
// Интервал полуоткрытый: [from, to).
func (r Region) WorkingMinutes() (from, to int, err error) {
	if from, err = ParseDayMinutes(r.WorkingTimeFrom); err != nil {
		return 0, 0, err
	}
	if to, err = ParseDayMinutes(r.WorkingTimeTo); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

// ParseDayMinutes разбирает строку вида "09:30" в минуты от полуночи
func ParseDayMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("некорректное время %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// User - пользователь бота
type User struct {
	ID         int64      `db:"id"`
	ChatID     int64      `db:"chat_id"`
	Username   string     `db:"username"`
	FirstName  string     `db:"first_name"`
	LastName   string     `db:"last_name"`
	RegionID   *int64     `db:"region_id"`
	FromUserID *int64     `db:"from_user_id"` // кто пригласил (реферальная ссылка)
	BotState   BotState   `db:"bot_state"`
	TempDate   *time.Time `db:"temp_date"` // выбранная дата, пока пользователь вводит время
	Created    time.Time  `db:"created"`
}

// Reservation - заявка на прием. Datetime хранится в UTC,
// пользователю показывается в часовом поясе региона.
type Reservation struct {
	ID       int64             `db:"id"`
	RegionID int64             `db:"region_id"`
	UserID   int64             `db:"user_id"`
	Datetime time.Time         `db:"datetime"`
	Status   ReservationStatus `db:"status"`
	Created  time.Time         `db:"created"`
	Updated  time.Time         `db:"updated"`
}

// JobKind - тип отложенной задачи планировщика
type JobKind string

const (
	JobConfirmationRequest JobKind = "confirmation-request"
	JobConfirmationTimeout JobKind = "confirmation-request-refuse"
	JobRequestAfterVisit   JobKind = "request-after-visiting"
)

// ScheduledJob - одноразовая отложенная задача. Ключ детерминирован:
// он выводится из типа задачи, id заявки и порядкового номера, поэтому
// отмена по ключу не требует отдельного справочника.
type ScheduledJob struct {
	Key           string    `db:"key"`
	Kind          JobKind   `db:"kind"`
	ReservationID int64     `db:"reservation_id"`
	MessageID     *int      `db:"message_id"` // сообщение со статусом, которое нужно отредактировать
	FireAt        time.Time `db:"fire_at"`
	Attempts      int       `db:"attempts"`
	Dead          bool      `db:"dead"`
}

// ConfirmationRequestKey - ключ задачи запроса подтверждения, index считается с 1
func ConfirmationRequestKey(reservationID int64, index int) string {
	return fmt.Sprintf("%s-%d-%d", JobConfirmationRequest, reservationID, index)
}

// ConfirmationRequestPrefix - префикс для отмены всех запросов подтверждения заявки
func ConfirmationRequestPrefix(reservationID int64) string {
	return fmt.Sprintf("%s-%d-", JobConfirmationRequest, reservationID)
}

// ConfirmationTimeoutKey - ключ задачи автоотказа по таймауту.
// На заявку одновременно существует не больше одной такой задачи.
func ConfirmationTimeoutKey(reservationID int64) string {
	return fmt.Sprintf("%s-%d", JobConfirmationTimeout, reservationID)
}

// RequestAfterVisitKey - ключ задачи опроса после визита
func RequestAfterVisitKey(reservationID int64) string {
	return fmt.Sprintf("%s-%d", JobRequestAfterVisit, reservationID)
}
