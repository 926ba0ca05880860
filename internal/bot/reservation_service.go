package bot

import (
	"errors"
	"time"

	"priem-bot/internal/config"
	"priem-bot/internal/models"

	"go.uber.org/zap"
)

var (
	ErrTooLateToday      = errors.New("рабочий день уже закончился")
	ErrDayLimitExceeded  = errors.New("лимит записей на день исчерпан")
	ErrOutOfWorkingHours = errors.New("время вне часов работы")
	ErrTooSoon           = errors.New("до приема остается слишком мало времени")
	ErrLimitExceeded     = errors.New("превышен лимит заявок пользователя")
)

// ReservationService - проверка и подбор свободных слотов, лимиты записи
type ReservationService struct {
	store  ReservationStore
	cfg    config.Reservations
	logger *zap.Logger
}

// NewReservationService создает новый сервис заявок
func NewReservationService(store ReservationStore, cfg config.Reservations, logger *zap.Logger) *ReservationService {
	return &ReservationService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// WithinLimit проверяет ограничение частоты: сколько заявок пользователь
// создал за скользящее окно. При достижении лимита - отказ.
func (s *ReservationService) WithinLimit(userID int64, now time.Time) (bool, error) {
	count, err := s.store.CountCreatedSince(userID, now.Add(-s.cfg.LimitPeriod()))
	if err != nil {
		return false, err
	}

	return count < s.cfg.LimitCount, nil
}

// ValidateRequest проверяет, можно ли вообще записываться на выбранный день
func (s *ReservationService) ValidateRequest(region models.Region, now time.Time, days int) error {
	loc, err := region.Location()
	if err != nil {
		return err
	}
	_, workTo, err := region.WorkingMinutes()
	if err != nil {
		return err
	}

	local := now.In(loc)
	if days == 0 {
		minutes := local.Hour()*60 + local.Minute()
		if minutes >= workTo {
			return ErrTooLateToday
		}
	}

	day := local.AddDate(0, 0, days)
	from, to := dayRange(day, loc)
	count, err := s.store.CountActiveBetween(region.ID, from, to)
	if err != nil {
		return err
	}
	// Строгое сравнение повторяет исходное поведение:
	// день закрывается только когда заявок больше лимита
	if count > region.DayLimit {
		return ErrDayLimitExceeded
	}

	return nil
}

// ValidateTime проверяет конкретное время: часы работы региона
// (полуоткрытый интервал) и минимальный запас до приема
func (s *ReservationService) ValidateTime(region models.Region, dt, now time.Time) error {
	workFrom, workTo, err := region.WorkingMinutes()
	if err != nil {
		return err
	}

	minutes := dt.Hour()*60 + dt.Minute()
	if minutes < workFrom || minutes >= workTo {
		return ErrOutOfWorkingHours
	}

	if dt.Sub(now) <= s.cfg.MinTime() {
		return ErrTooSoon
	}

	return nil
}

// SlotFree проверяет занятость слота: слот занят, если в регионе есть
// неотмененная заявка в окне [t-period, t+period)
func (s *ReservationService) SlotFree(region models.Region, dt time.Time) (bool, error) {
	window := time.Duration(region.Period) * time.Minute
	count, err := s.store.CountActiveBetween(region.ID, dt.Add(-window), dt.Add(window))
	if err != nil {
		return false, err
	}

	return count == 0, nil
}

// NextUnoccupiedTime ищет ближайший свободный слот после dt, двигаясь
// с шагом period и оставаясь внутри часов работы. Поиск конечный:
// не дальше двух недель вперед.
func (s *ReservationService) NextUnoccupiedTime(region models.Region, dt time.Time) (time.Time, bool, error) {
	loc, err := region.Location()
	if err != nil {
		return time.Time{}, false, err
	}
	workFrom, workTo, err := region.WorkingMinutes()
	if err != nil {
		return time.Time{}, false, err
	}

	step := time.Duration(region.Period) * time.Minute
	horizon := dt.AddDate(0, 0, 14)

	candidate := dt.In(loc)
	for candidate.Before(horizon) {
		candidate = candidate.Add(step)

		minutes := candidate.Hour()*60 + candidate.Minute()
		if minutes < workFrom {
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				workFrom/60, workFrom%60, 0, 0, loc)
		} else if minutes >= workTo {
			next := candidate.AddDate(0, 0, 1)
			candidate = time.Date(next.Year(), next.Month(), next.Day(),
				workFrom/60, workFrom%60, 0, 0, loc)
		}

		free, err := s.SlotFree(region, candidate)
		if err != nil {
			return time.Time{}, false, err
		}
		if free {
			return candidate, true, nil
		}
	}

	return time.Time{}, false, nil
}

// Create - атомарный коммит заявки: все проверки должны пройти, любая
// неудача возвращает типизированную ошибку и не оставляет следов.
// Лимит дня перепроверяется здесь же: между выбором дня и вводом времени
// день могли успеть заполнить. Занятость слота дополнительно
// перепроверяется хранилищем под блокировкой.
func (s *ReservationService) Create(region models.Region, userID int64, dt, now time.Time) (models.Reservation, error) {
	within, err := s.WithinLimit(userID, now)
	if err != nil {
		return models.Reservation{}, err
	}
	if !within {
		return models.Reservation{}, ErrLimitExceeded
	}

	if err := s.ValidateTime(region, dt, now); err != nil {
		return models.Reservation{}, err
	}

	loc, err := region.Location()
	if err != nil {
		return models.Reservation{}, err
	}
	from, to := dayRange(dt.In(loc), loc)
	count, err := s.store.CountActiveBetween(region.ID, from, to)
	if err != nil {
		return models.Reservation{}, err
	}
	if count > region.DayLimit {
		return models.Reservation{}, ErrDayLimitExceeded
	}

	reservation, err := s.store.Create(region.ID, userID, dt, region.Period)
	if err != nil {
		return models.Reservation{}, err
	}

	s.logger.Info("Заявка создана",
		zap.Int64("reservation_id", reservation.ID),
		zap.Int64("user_id", userID),
		zap.Int64("region_id", region.ID),
	)

	return reservation, nil
}

// dayRange возвращает границы календарного дня [полночь, полночь+24ч) в UTC
func dayRange(day time.Time, loc *time.Location) (time.Time, time.Time) {
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
