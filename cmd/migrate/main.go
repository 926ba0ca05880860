package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"priem-bot/internal/config"

	_ "github.com/lib/pq"
)

const migrationSchema = `
CREATE TABLE IF NOT EXISTS regions (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    address TEXT NOT NULL DEFAULT '',
    timezone TEXT NOT NULL DEFAULT 'Europe/Moscow',
    working_time_from TEXT NOT NULL DEFAULT '09:00',
    working_time_to TEXT NOT NULL DEFAULT '17:00',
    day_limit INTEGER NOT NULL DEFAULT 40,
    period INTEGER NOT NULL DEFAULT 15
);

CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    chat_id BIGINT NOT NULL UNIQUE,
    username TEXT NOT NULL DEFAULT '',
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    region_id BIGINT REFERENCES regions (id),
    from_user_id BIGINT REFERENCES users (id),
    bot_state INTEGER NOT NULL DEFAULT 0,
    temp_date TIMESTAMPTZ,
    created TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS region_admins (
    user_id BIGINT NOT NULL REFERENCES users (id),
    region_id BIGINT NOT NULL REFERENCES regions (id),
    PRIMARY KEY (user_id, region_id)
);

CREATE TABLE IF NOT EXISTS reservations (
    id BIGSERIAL PRIMARY KEY,
    region_id BIGINT NOT NULL REFERENCES regions (id),
    user_id BIGINT NOT NULL REFERENCES users (id),
    datetime TIMESTAMPTZ NOT NULL,
    status INTEGER NOT NULL DEFAULT 1,
    created TIMESTAMPTZ NOT NULL,
    updated TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reservations_region_datetime
    ON reservations (region_id, datetime);
CREATE INDEX IF NOT EXISTS idx_reservations_user_created
    ON reservations (user_id, created);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
    key TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    reservation_id BIGINT NOT NULL REFERENCES reservations (id),
    message_id INTEGER,
    fire_at TIMESTAMPTZ NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    dead BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_fire_at
    ON scheduled_jobs (fire_at) WHERE NOT dead;
`

const rollbackSchema = `
DROP TABLE IF EXISTS scheduled_jobs;
DROP TABLE IF EXISTS reservations;
DROP TABLE IF EXISTS region_admins;
DROP TABLE IF EXISTS users;
DROP TABLE IF EXISTS regions;
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "Путь к файлу конфигурации")
	rollback := flag.Bool("rollback", false, "Откатить миграции базы данных")
	flag.Parse()

	// Загружаем конфигурацию
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Создаем DSN
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode,
	)

	// Подключаемся к базе данных
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	// Проверяем подключение
	if err := db.Ping(); err != nil {
		log.Fatalf("Ошибка проверки подключения к базе данных: %v", err)
	}

	fmt.Println("Успешное подключение к базе данных")

	schema := migrationSchema
	if *rollback {
		schema = rollbackSchema
	}

	// Выполняем миграцию
	if _, err := db.Exec(schema); err != nil {
		log.Fatalf("Ошибка выполнения миграции: %v", err)
	}

	if *rollback {
		fmt.Println("Откат миграции успешно выполнен")
		return
	}
	fmt.Println("Миграция успешно выполнена")
}
