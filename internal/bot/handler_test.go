package bot

import (
	"fmt"
	"testing"
	"time"

	"priem-bot/internal/calltypes"
	"priem-bot/internal/models"
	"priem-bot/internal/templates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	service  *Service
	telegram *fakeTelegram
	users    *fakeUserStore
	regions  *fakeRegionStore
	store    *fakeReservationStore
	planner  *fakePlanner
}

func newTestEnv(now time.Time) *testEnv {
	telegram := &fakeTelegram{}
	users := newFakeUserStore()
	regions := newFakeRegionStore(testRegion())
	store := newFakeReservationStore(func() time.Time { return now })
	planner := &fakePlanner{}

	reservations := NewReservationService(store, testReservationsConfig(), zap.NewNop())
	service := NewService(telegram, zap.NewNop(), users, regions, reservations, planner, testReservationsConfig())
	service.now = func() time.Time { return now }

	return &testEnv{
		service:  service,
		telegram: telegram,
		users:    users,
		regions:  regions,
		store:    store,
		planner:  planner,
	}
}

// putUser кладет пользователя с выбранным регионом
func (e *testEnv) putUser(chatID int64, state models.BotState) models.User {
	regionID := testRegion().ID
	user := models.User{
		ID:       chatID,
		ChatID:   chatID,
		RegionID: &regionID,
		BotState: state,
	}
	e.users.put(user)
	return user
}

func TestHandleMessageNewUser(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "/start"})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.sent, templates.MsgStart)
	// Регион еще не выбран - сразу предлагается список регионов
	assert.Contains(t, env.telegram.sent, templates.MsgSelectRegion)
}

func TestHandleMessageUnknownText(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "привет"})
	require.NoError(t, err)

	assert.Equal(t, []string{templates.MsgUnknown}, env.telegram.sent)
}

func TestCancelEscapesAnyState(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateReservationTime)

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: templates.KeyCancel})
	require.NoError(t, err)

	assert.Contains(t, env.users.setStates, models.StateNothing)
	assert.Equal(t, models.StateNothing, env.users.users[10].BotState)
	// После отмены показывается меню региона
	assert.Contains(t, env.telegram.sent, "<b>"+templates.KeyMenu+"</b>")
}

func TestStateMonopolizesInput(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	user := env.putUser(10, models.StateInputDayLimit)
	env.users.adminOf[user.ID] = testRegion().ID

	// Команда в состоянии ввода трактуется как ввод, а не как команда
	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "/menu"})
	require.NoError(t, err)

	assert.Equal(t, []string{templates.MsgIncorrectNumber}, env.telegram.sent)
}

func TestUnknownStateResets(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.BotState(42))

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "привет"})
	require.NoError(t, err)

	assert.Equal(t, models.StateNothing, env.users.users[10].BotState)
	assert.Contains(t, env.telegram.sent, "<b>"+templates.KeyMenu+"</b>")
}

func TestCallbackBadData(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)

	err := env.service.HandleCallback(models.CallbackQuery{ID: "cb1", ChatID: 10, Data: "мусор"})
	require.NoError(t, err)

	assert.Len(t, env.telegram.answered, 1)
	assert.Empty(t, env.telegram.edited)
	assert.Empty(t, env.telegram.sent)
}

func TestCallbackFromUnknownUser(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, Data: calltypes.MustEncode(calltypes.Menu{}),
	})
	require.NoError(t, err)

	assert.Empty(t, env.telegram.edited)
}

func TestCallbackDroppedInInputState(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateReservationTime)

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, Data: calltypes.MustEncode(calltypes.Menu{}),
	})
	require.NoError(t, err)

	assert.Len(t, env.telegram.answered, 1)
	assert.Empty(t, env.telegram.edited)
	assert.Empty(t, env.telegram.sent)
}

func TestCallbackAllowedInInputState(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(now)
	env.putUser(10, models.StateReservationTime)

	// Выбор другого дня разрешен даже во время ввода времени
	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, Data: calltypes.MustEncode(calltypes.ReservationForDay{Days: 1}),
	})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.sent, templates.MsgReservationTime)
	require.NotNil(t, env.users.users[10].TempDate)
	assert.Equal(t, time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), *env.users.users[10].TempDate)
}

func TestReservationForDayTooLate(t *testing.T) {
	now := time.Date(2026, 5, 12, 17, 30, 0, 0, time.UTC)
	env := newTestEnv(now)
	env.putUser(10, models.StateNothing)

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, Data: calltypes.MustEncode(calltypes.ReservationForDay{Days: 0}),
	})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.alerts, templates.MsgCantToday)
	assert.Empty(t, env.users.setStates)
}

func TestReservationTimeInputCreates(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	date := time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)
	user := env.putUser(10, models.StateReservationTime)
	user.TempDate = &date
	env.users.put(user)

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "12:00"})
	require.NoError(t, err)

	require.Len(t, env.store.reservations, 1)
	reservation := env.store.reservations[0]
	assert.Equal(t, time.Date(2026, 5, 13, 12, 0, 0, 0, time.UTC), reservation.Datetime)
	assert.Equal(t, models.StatusReserved, reservation.Status)

	// Планировщик получает новую заявку через хук смены статуса
	require.Len(t, env.planner.statusChanges, 1)
	assert.Equal(t, reservation.ID, env.planner.statusChanges[0].ID)

	assert.Equal(t, models.StateNothing, env.users.users[10].BotState)
	assert.Contains(t, env.telegram.sent, templates.MsgReservationFinish)
}

func TestReservationTimeInputOccupied(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	date := time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)
	user := env.putUser(10, models.StateReservationTime)
	user.TempDate = &date
	env.users.put(user)

	env.store.add(models.Reservation{
		RegionID: testRegion().ID,
		UserID:   200,
		Datetime: time.Date(2026, 5, 13, 12, 0, 0, 0, time.UTC),
		Status:   models.StatusReserved,
	})

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "12:00"})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.sent, templates.MsgTimeOccupied)
	assert.Contains(t, env.telegram.sent,
		fmt.Sprintf(templates.MsgNextUnoccupied, "13/05 13:00"))
	// Пользователь остается в состоянии ввода времени
	assert.Equal(t, models.StateReservationTime, env.users.users[10].BotState)
}

func TestReservationTimeInputDayFull(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	date := time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)
	user := env.putUser(10, models.StateReservationTime)
	user.TempDate = &date
	env.users.put(user)

	// Пока пользователь вводил время, день заполнился до отказа
	for hour := 9; hour < 12; hour++ {
		env.store.add(models.Reservation{
			RegionID: testRegion().ID,
			UserID:   200,
			Datetime: time.Date(2026, 5, 13, hour, 0, 0, 0, time.UTC),
			Status:   models.StatusReserved,
		})
	}

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "14:00"})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.sent, templates.MsgDayLimitExceeded)
	// Сценарий завершен: состояние сброшено, заявка не создана
	assert.Equal(t, models.StateNothing, env.users.users[10].BotState)
	assert.Len(t, env.store.reservations, 3)
}

func TestReservationTimeInputBadFormat(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(now)

	date := time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)
	user := env.putUser(10, models.StateReservationTime)
	user.TempDate = &date
	env.users.put(user)

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "полдень"})
	require.NoError(t, err)

	assert.Equal(t, []string{templates.MsgIncorrectTime}, env.telegram.sent)
	assert.Empty(t, env.store.reservations)
}

func TestConfirmationAccept(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)
	reservation := env.store.add(models.Reservation{
		RegionID: testRegion().ID, UserID: 10, Status: models.StatusReserved,
	})

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, MessageID: 7,
		Data: calltypes.MustEncode(calltypes.RequestConfirmationAccept{ReservationID: reservation.ID}),
	})
	require.NoError(t, err)

	updated, _ := env.store.GetByID(reservation.ID)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	assert.Contains(t, env.planner.cancelled, reservation.ID)
	assert.Contains(t, env.telegram.deleted, 7)
	assert.Contains(t, env.telegram.sent, templates.MsgConfirmationAccepted)
}

func TestConfirmationAcceptStale(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)
	reservation := env.store.add(models.Reservation{
		RegionID: testRegion().ID, UserID: 10, Status: models.StatusRefused,
	})

	// Заявка уже отменена - устаревшая кнопка ничего не делает
	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, MessageID: 7,
		Data: calltypes.MustEncode(calltypes.RequestConfirmationAccept{ReservationID: reservation.ID}),
	})
	require.NoError(t, err)

	updated, _ := env.store.GetByID(reservation.ID)
	assert.Equal(t, models.StatusRefused, updated.Status)
	assert.Empty(t, env.planner.statusChanges)
	assert.Empty(t, env.telegram.sent)
}

func TestConfirmationRefuse(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)
	reservation := env.store.add(models.Reservation{
		RegionID: testRegion().ID, UserID: 10, Status: models.StatusReserved,
	})

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, MessageID: 7,
		Data: calltypes.MustEncode(calltypes.RequestConfirmationRefuse{ReservationID: reservation.ID}),
	})
	require.NoError(t, err)

	updated, _ := env.store.GetByID(reservation.ID)
	assert.Equal(t, models.StatusRefused, updated.Status)
	require.Len(t, env.planner.statusChanges, 1)
	assert.Equal(t, models.StatusRefused, env.planner.statusChanges[0].Status)
	assert.Contains(t, env.planner.cancelled, reservation.ID)
}

func TestAfterVisiting(t *testing.T) {
	tests := []struct {
		name         string
		current      models.ReservationStatus
		answer       models.ReservationStatus
		wantStatus   models.ReservationStatus
		wantFollowUp bool
	}{
		{
			name:         "в очереди - опрос повторится",
			current:      models.StatusReserved,
			answer:       models.StatusInQueue,
			wantStatus:   models.StatusInQueue,
			wantFollowUp: true,
		},
		{
			name:         "все ок - цепочка завершается",
			current:      models.StatusReserved,
			answer:       models.StatusOk,
			wantStatus:   models.StatusOk,
			wantFollowUp: false,
		},
		{
			name:         "подтвержденная заявка не перезаписывается",
			current:      models.StatusConfirmed,
			answer:       models.StatusInQueue,
			wantStatus:   models.StatusConfirmed,
			wantFollowUp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
			env.putUser(10, models.StateNothing)
			reservation := env.store.add(models.Reservation{
				RegionID: testRegion().ID, UserID: 10, Status: tt.current,
			})

			err := env.service.HandleCallback(models.CallbackQuery{
				ID: "cb1", ChatID: 10, MessageID: 7,
				Data: calltypes.MustEncode(calltypes.RequestAfterVisiting{
					ReservationID: reservation.ID, Status: tt.answer,
				}),
			})
			require.NoError(t, err)

			updated, _ := env.store.GetByID(reservation.ID)
			assert.Equal(t, tt.wantStatus, updated.Status)
			if tt.wantFollowUp {
				assert.Contains(t, env.planner.followUps, reservation.ID)
			} else {
				assert.Empty(t, env.planner.followUps)
			}
			assert.Contains(t, env.telegram.sent, templates.MsgAfterVisitingThanks)
		})
	}
}

func TestStatusChangeRequiresAdmin(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)
	reservation := env.store.add(models.Reservation{
		RegionID: testRegion().ID, UserID: 10, Status: models.StatusReserved,
	})

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10,
		Data: calltypes.MustEncode(calltypes.ReservationStatusChange{
			ReservationID: reservation.ID, Status: models.StatusReceiving,
		}),
	})
	require.NoError(t, err)

	assert.Contains(t, env.telegram.alerts, templates.MsgNotAdmin)
	updated, _ := env.store.GetByID(reservation.ID)
	assert.Equal(t, models.StatusReserved, updated.Status)
}

func TestStatusChangeByAdmin(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	user := env.putUser(10, models.StateNothing)
	env.users.adminOf[user.ID] = testRegion().ID
	reservation := env.store.add(models.Reservation{
		RegionID: testRegion().ID, UserID: 10, Status: models.StatusReserved,
	})

	err := env.service.HandleCallback(models.CallbackQuery{
		ID: "cb1", ChatID: 10, MessageID: 7,
		Data: calltypes.MustEncode(calltypes.ReservationStatusChange{
			ReservationID: reservation.ID, Status: models.StatusReceiving,
		}),
	})
	require.NoError(t, err)

	updated, _ := env.store.GetByID(reservation.ID)
	assert.Equal(t, models.StatusReceiving, updated.Status)
	require.Len(t, env.planner.statusChanges, 1)
	assert.Contains(t, env.telegram.answered, templates.MsgStatusChanged)
	require.Len(t, env.telegram.edited, 1)
}

func TestSettingsRequiresAdmin(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	env.putUser(10, models.StateNothing)

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "/settings"})
	require.NoError(t, err)

	assert.Equal(t, []string{templates.MsgNotAdmin}, env.telegram.sent)
}

func TestWorkingTimeInput(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	user := env.putUser(10, models.StateInputWorkingTime)
	env.users.adminOf[user.ID] = testRegion().ID

	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "08:00-16:00"})
	require.NoError(t, err)

	region, _ := env.regions.GetByID(testRegion().ID)
	assert.Equal(t, "08:00", region.WorkingTimeFrom)
	assert.Equal(t, "16:00", region.WorkingTimeTo)
	assert.Contains(t, env.telegram.sent, templates.MsgSettingsSaved)
	assert.Equal(t, models.StateNothing, env.users.users[10].BotState)
}

func TestWorkingTimeInputRejected(t *testing.T) {
	env := newTestEnv(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC))
	user := env.putUser(10, models.StateInputWorkingTime)
	env.users.adminOf[user.ID] = testRegion().ID

	// Начало позже конца
	err := env.service.HandleMessage(models.IncomingMessage{ChatID: 10, Text: "16:00-08:00"})
	require.NoError(t, err)

	assert.Equal(t, []string{templates.MsgIncorrectWorkTime}, env.telegram.sent)
	region, _ := env.regions.GetByID(testRegion().ID)
	assert.Equal(t, "09:00", region.WorkingTimeFrom)
}
