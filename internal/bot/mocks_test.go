package bot

import (
	"time"

	"priem-bot/internal/database"
	"priem-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// fakeTelegram записывает исходящие вызовы вместо отправки в Telegram
type fakeTelegram struct {
	sent     []string
	edited   []string
	deleted  []int
	answered []string
	alerts   []string
}

func (f *fakeTelegram) SendMessage(chatID int64, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTelegram) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTelegram) SendMessageWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.sent = append(f.sent, text)
	return len(f.sent), nil
}

func (f *fakeTelegram) EditMessageText(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeTelegram) DeleteMessage(chatID int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTelegram) AnswerCallback(callbackID, text string, showAlert bool) error {
	f.answered = append(f.answered, text)
	if showAlert {
		f.alerts = append(f.alerts, text)
	}
	return nil
}

// fakeUserStore - пользователи в памяти, ключ - chat_id
type fakeUserStore struct {
	users     map[int64]models.User
	adminOf   map[int64]int64 // user_id -> region_id
	setStates []models.BotState
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:   make(map[int64]models.User),
		adminOf: make(map[int64]int64),
	}
}

func (f *fakeUserStore) put(user models.User) {
	f.users[user.ChatID] = user
}

func (f *fakeUserStore) GetOrCreate(chatID int64) (models.User, bool, error) {
	if user, ok := f.users[chatID]; ok {
		return user, false, nil
	}
	user := models.User{ID: chatID, ChatID: chatID}
	f.users[chatID] = user
	return user, true, nil
}

func (f *fakeUserStore) GetByChatID(chatID int64) (models.User, error) {
	user, ok := f.users[chatID]
	if !ok {
		return models.User{}, database.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByID(id int64) (models.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (f *fakeUserStore) UpdateInfo(chatID int64, username, firstName, lastName string) error {
	user := f.users[chatID]
	user.Username = username
	user.FirstName = firstName
	user.LastName = lastName
	f.users[chatID] = user
	return nil
}

func (f *fakeUserStore) SetState(chatID int64, state models.BotState, tempDate *time.Time) error {
	f.setStates = append(f.setStates, state)
	user := f.users[chatID]
	user.BotState = state
	user.TempDate = tempDate
	f.users[chatID] = user
	return nil
}

func (f *fakeUserStore) SetRegion(chatID int64, regionID *int64) error {
	user := f.users[chatID]
	user.RegionID = regionID
	f.users[chatID] = user
	return nil
}

func (f *fakeUserStore) SetReferrer(chatID int64, fromUserID int64) error {
	user := f.users[chatID]
	if user.FromUserID == nil {
		user.FromUserID = &fromUserID
		f.users[chatID] = user
	}
	return nil
}

func (f *fakeUserStore) IsRegionAdmin(userID, regionID int64) (bool, error) {
	return f.adminOf[userID] == regionID, nil
}

// fakeRegionStore - регионы в памяти
type fakeRegionStore struct {
	regions map[int64]models.Region
}

func newFakeRegionStore(regions ...models.Region) *fakeRegionStore {
	f := &fakeRegionStore{regions: make(map[int64]models.Region)}
	for _, region := range regions {
		f.regions[region.ID] = region
	}
	return f
}

func (f *fakeRegionStore) List() ([]models.Region, error) {
	var regions []models.Region
	for _, region := range f.regions {
		regions = append(regions, region)
	}
	return regions, nil
}

func (f *fakeRegionStore) GetByID(id int64) (models.Region, error) {
	region, ok := f.regions[id]
	if !ok {
		return models.Region{}, database.ErrNotFound
	}
	return region, nil
}

func (f *fakeRegionStore) UpdateWorkingTime(id int64, from, to string) error {
	region := f.regions[id]
	region.WorkingTimeFrom = from
	region.WorkingTimeTo = to
	f.regions[id] = region
	return nil
}

func (f *fakeRegionStore) UpdateDayLimit(id int64, dayLimit int) error {
	region := f.regions[id]
	region.DayLimit = dayLimit
	f.regions[id] = region
	return nil
}

func (f *fakeRegionStore) UpdatePeriod(id int64, period int) error {
	region := f.regions[id]
	region.Period = period
	f.regions[id] = region
	return nil
}

// fakeReservationStore повторяет семантику репозитория заявок в памяти,
// включая проверку занятости слота при создании
type fakeReservationStore struct {
	reservations []models.Reservation
	nextID       int64
	now          func() time.Time
}

func newFakeReservationStore(now func() time.Time) *fakeReservationStore {
	return &fakeReservationStore{now: now}
}

func (f *fakeReservationStore) add(reservation models.Reservation) models.Reservation {
	f.nextID++
	reservation.ID = f.nextID
	f.reservations = append(f.reservations, reservation)
	return reservation
}

func (f *fakeReservationStore) Create(regionID, userID int64, dt time.Time, period int) (models.Reservation, error) {
	window := time.Duration(period) * time.Minute
	count, err := f.CountActiveBetween(regionID, dt.Add(-window), dt.Add(window))
	if err != nil {
		return models.Reservation{}, err
	}
	if count > 0 {
		return models.Reservation{}, database.ErrSlotOccupied
	}

	return f.add(models.Reservation{
		RegionID: regionID,
		UserID:   userID,
		Datetime: dt.UTC(),
		Status:   models.StatusReserved,
		Created:  f.now(),
	}), nil
}

func (f *fakeReservationStore) GetByID(id int64) (models.Reservation, error) {
	for _, reservation := range f.reservations {
		if reservation.ID == id {
			return reservation, nil
		}
	}
	return models.Reservation{}, database.ErrNotFound
}

func (f *fakeReservationStore) UpdateStatus(id int64, status models.ReservationStatus) (models.Reservation, error) {
	for i, reservation := range f.reservations {
		if reservation.ID == id {
			f.reservations[i].Status = status
			return f.reservations[i], nil
		}
	}
	return models.Reservation{}, database.ErrNotFound
}

func (f *fakeReservationStore) CountActiveBetween(regionID int64, from, to time.Time) (int, error) {
	count := 0
	for _, reservation := range f.reservations {
		if reservation.RegionID != regionID || reservation.Status == models.StatusRefused {
			continue
		}
		if !reservation.Datetime.Before(from.UTC()) && reservation.Datetime.Before(to.UTC()) {
			count++
		}
	}
	return count, nil
}

func (f *fakeReservationStore) CountCreatedSince(userID int64, since time.Time) (int, error) {
	count := 0
	for _, reservation := range f.reservations {
		if reservation.UserID == userID && !reservation.Created.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeReservationStore) ListByUser(userID int64) ([]models.Reservation, error) {
	var reservations []models.Reservation
	for _, reservation := range f.reservations {
		if reservation.UserID == userID {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

func (f *fakeReservationStore) ListActiveBetween(regionID int64, from, to time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	for _, reservation := range f.reservations {
		if reservation.RegionID != regionID || reservation.Status == models.StatusRefused {
			continue
		}
		if !reservation.Datetime.Before(from.UTC()) && reservation.Datetime.Before(to.UTC()) {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

// fakePlanner записывает обращения к планировщику
type fakePlanner struct {
	statusChanges []models.Reservation
	cancelled     []int64
	followUps     []int64
}

func (f *fakePlanner) OnStatusChange(reservation models.Reservation) error {
	f.statusChanges = append(f.statusChanges, reservation)
	return nil
}

func (f *fakePlanner) CancelConfirmationTimeout(reservationID int64) error {
	f.cancelled = append(f.cancelled, reservationID)
	return nil
}

func (f *fakePlanner) ScheduleFollowUp(reservationID int64, fireAt time.Time) error {
	f.followUps = append(f.followUps, reservationID)
	return nil
}
