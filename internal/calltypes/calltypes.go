// Package calltypes кодирует структурированные действия в callback data
// инлайн-кнопок. Формат компактный и позиционный: тег типа и значения полей
// через двоеточие, например "rfd:3" или "rav:15:5". Telegram ограничивает
// callback data 64 байтами, поэтому размер проверяется при кодировании.
package calltypes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"priem-bot/internal/models"
)

// MaxDataSize - потолок Telegram на callback data в байтах
const MaxDataSize = 64

var (
	ErrUnknownAction = errors.New("неизвестный тип действия")
	ErrBadPayload    = errors.New("некорректные данные действия")
	ErrTooLong       = errors.New("callback data длиннее 64 байт")
)

// Action - структурированное действие пользователя (нажатие инлайн-кнопки)
type Action interface {
	tag() string
	fields() []string
}

type Menu struct{}

type SelectRegion struct {
	RegionID int64
}

// ResetRegion сбрасывает выбранный регион и возвращает к списку регионов
type ResetRegion struct{}

type Reservation struct{}

type ReservationForAnother struct{}

type ReservationForDay struct {
	Days int
}

type MyReservations struct {
	Page int
}

type RequestConfirmationAccept struct {
	ReservationID int64
}

type RequestConfirmationRefuse struct {
	ReservationID int64
}

type RequestAfterVisiting struct {
	ReservationID int64
	Status        models.ReservationStatus
}

// ReservationStatusChange - смена статуса заявки администратором региона
type ReservationStatusChange struct {
	ReservationID int64
	Status        models.ReservationStatus
}

type TodayReservations struct {
	Page int
}

type SettingsWorkingTime struct{}

type SettingsDayLimit struct{}

type SettingsPeriod struct{}

func (Menu) tag() string                      { return "mn" }
func (SelectRegion) tag() string              { return "rg" }
func (ResetRegion) tag() string               { return "rr" }
func (Reservation) tag() string               { return "rs" }
func (ReservationForAnother) tag() string     { return "rfa" }
func (ReservationForDay) tag() string         { return "rfd" }
func (MyReservations) tag() string            { return "mr" }
func (RequestConfirmationAccept) tag() string { return "rca" }
func (RequestConfirmationRefuse) tag() string { return "rcr" }
func (RequestAfterVisiting) tag() string      { return "rav" }
func (ReservationStatusChange) tag() string   { return "rsc" }
func (TodayReservations) tag() string         { return "tr" }
func (SettingsWorkingTime) tag() string       { return "swt" }
func (SettingsDayLimit) tag() string          { return "sdl" }
func (SettingsPeriod) tag() string            { return "sp" }

func (Menu) fields() []string                  { return nil }
func (a SelectRegion) fields() []string        { return []string{formatInt(a.RegionID)} }
func (ResetRegion) fields() []string           { return nil }
func (Reservation) fields() []string           { return nil }
func (ReservationForAnother) fields() []string { return nil }
func (a ReservationForDay) fields() []string   { return []string{strconv.Itoa(a.Days)} }
func (a MyReservations) fields() []string      { return []string{strconv.Itoa(a.Page)} }
func (a RequestConfirmationAccept) fields() []string {
	return []string{formatInt(a.ReservationID)}
}
func (a RequestConfirmationRefuse) fields() []string {
	return []string{formatInt(a.ReservationID)}
}
func (a RequestAfterVisiting) fields() []string {
	return []string{formatInt(a.ReservationID), strconv.Itoa(int(a.Status))}
}
func (a ReservationStatusChange) fields() []string {
	return []string{formatInt(a.ReservationID), strconv.Itoa(int(a.Status))}
}
func (a TodayReservations) fields() []string { return []string{strconv.Itoa(a.Page)} }
func (SettingsWorkingTime) fields() []string { return nil }
func (SettingsDayLimit) fields() []string    { return nil }
func (SettingsPeriod) fields() []string      { return nil }

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Encode сериализует действие в callback data
func Encode(a Action) (string, error) {
	parts := append([]string{a.tag()}, a.fields()...)
	data := strings.Join(parts, ":")
	if len(data) > MaxDataSize {
		return "", fmt.Errorf("%w: %q", ErrTooLong, data)
	}
	return data, nil
}

// MustEncode - Encode для действий с заведомо короткими полями.
// Паникует только на ошибке программиста (новый тип с гигантским полем).
func MustEncode(a Action) string {
	data, err := Encode(a)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode восстанавливает действие из callback data.
// Тег и порядок полей должны совпадать с Encode того же типа.
func Decode(data string) (Action, error) {
	parts := strings.Split(data, ":")
	tag, args := parts[0], parts[1:]

	switch tag {
	case Menu{}.tag():
		return Menu{}, checkArity(args, 0)
	case SelectRegion{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		id, err := parseInt(args[0])
		if err != nil {
			return nil, err
		}
		return SelectRegion{RegionID: id}, nil
	case ResetRegion{}.tag():
		return ResetRegion{}, checkArity(args, 0)
	case Reservation{}.tag():
		return Reservation{}, checkArity(args, 0)
	case ReservationForAnother{}.tag():
		return ReservationForAnother{}, checkArity(args, 0)
	case ReservationForDay{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		days, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return ReservationForDay{Days: days}, nil
	case MyReservations{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return MyReservations{Page: page}, nil
	case RequestConfirmationAccept{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		id, err := parseInt(args[0])
		if err != nil {
			return nil, err
		}
		return RequestConfirmationAccept{ReservationID: id}, nil
	case RequestConfirmationRefuse{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		id, err := parseInt(args[0])
		if err != nil {
			return nil, err
		}
		return RequestConfirmationRefuse{ReservationID: id}, nil
	case RequestAfterVisiting{}.tag():
		id, status, err := parseIDStatus(args)
		if err != nil {
			return nil, err
		}
		return RequestAfterVisiting{ReservationID: id, Status: status}, nil
	case ReservationStatusChange{}.tag():
		id, status, err := parseIDStatus(args)
		if err != nil {
			return nil, err
		}
		return ReservationStatusChange{ReservationID: id, Status: status}, nil
	case TodayReservations{}.tag():
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return TodayReservations{Page: page}, nil
	case SettingsWorkingTime{}.tag():
		return SettingsWorkingTime{}, checkArity(args, 0)
	case SettingsDayLimit{}.tag():
		return SettingsDayLimit{}, checkArity(args, 0)
	case SettingsPeriod{}.tag():
		return SettingsPeriod{}, checkArity(args, 0)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, tag)
}

func checkArity(args []string, want int) error {
	if len(args) != want {
		return fmt.Errorf("%w: ожидалось %d полей, получено %d", ErrBadPayload, want, len(args))
	}
	return nil
}

func parseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}

func parseIDStatus(args []string) (int64, models.ReservationStatus, error) {
	if err := checkArity(args, 2); err != nil {
		return 0, 0, err
	}
	id, err := parseInt(args[0])
	if err != nil {
		return 0, 0, err
	}
	status, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return id, models.ReservationStatus(status), nil
}
