package app

import (
	"os"
	"os/signal"
	"syscall"

	"priem-bot/internal/bot"
	"priem-bot/internal/config"
	"priem-bot/internal/database"
	"priem-bot/internal/logger"
	"priem-bot/internal/scheduler"
	"priem-bot/internal/telegram"
	"priem-bot/internal/workers"

	"go.uber.org/zap"
)

func Run(configPath string) error {
	// Загружаем конфигурацию
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return err
	}

	// Политика записи берется из переменных окружения
	reservationsCfg, err := config.NewReservations()
	if err != nil {
		return err
	}

	// Инициализируем логгер
	logger, err := logger.New(cfg.Logger)
	if err != nil {
		zap.L().Error("не удалось создать логгер", zap.Error(err))
		return err
	}

	// Подключаемся к базе данных
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Error("не удалось подключиться к базе данных", zap.Error(err))
		return err
	}
	defer db.Close()

	// Инициализируем репозитории
	userRepo := database.NewUserRepository(db, logger)
	regionRepo := database.NewRegionRepository(db, logger)
	reservationRepo := database.NewReservationRepository(db, logger)
	jobRepo := database.NewJobRepository(db, logger)

	// Инициализируем Telegram клиент
	tgClient, err := telegram.NewTelegramClient(cfg.Telegram.Token)
	if err != nil {
		logger.Error("ошибка создания Telegram клиента", zap.Error(err))
		return err
	}

	// Инициализируем планировщик отложенных уведомлений
	planner := scheduler.New(
		jobRepo,
		reservationRepo,
		userRepo,
		regionRepo,
		tgClient,
		reservationsCfg,
		cfg.Scheduler,
		logger,
	)
	if err := planner.Start(); err != nil {
		logger.Error("ошибка запуска планировщика", zap.Error(err))
		return err
	}
	defer planner.Stop()

	// Инициализируем сервис заявок и основной сервис бота
	reservationService := bot.NewReservationService(reservationRepo, reservationsCfg, logger)
	botService := bot.NewService(tgClient, logger, userRepo, regionRepo, reservationService, planner, reservationsCfg)

	// Запускаем long polling
	messages, callbacks, err := tgClient.StartBot()
	if err != nil {
		logger.Error("ошибка запуска бота", zap.Error(err))
		return err
	}

	// События раскладываются по воркерам так, чтобы события одного чата
	// обрабатывались строго последовательно
	pool := workers.NewPool(cfg.Workers.Count, logger)
	defer pool.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Бот запущен", zap.Int("workers", cfg.Workers.Count))

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			pool.Submit(msg.ChatID, func() {
				if err := botService.HandleMessage(msg); err != nil {
					logger.Error("ошибка обработки сообщения",
						zap.Error(err),
						zap.Int64("chat_id", msg.ChatID),
					)
				}
			})
		case cb, ok := <-callbacks:
			if !ok {
				return nil
			}
			pool.Submit(cb.ChatID, func() {
				if err := botService.HandleCallback(cb); err != nil {
					logger.Error("ошибка обработки callback",
						zap.Error(err),
						zap.Int64("chat_id", cb.ChatID),
					)
				}
			})
		case <-stop:
			logger.Info("Получен сигнал остановки, завершаем работу")
			return nil
		}
	}
}
