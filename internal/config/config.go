// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v2"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type Logger struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

type Telegram struct {
	Token string `yaml:"token"`
}

type Scheduler struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
}

type Workers struct {
	Count int `yaml:"count"`
}

type AppConfig struct {
	Logger    Logger    `yaml:"log"`
	Telegram  Telegram  `yaml:"telegram"`
	Database  Database  `yaml:"database"`
	Scheduler Scheduler `yaml:"scheduler"`
	Workers   Workers   `yaml:"workers"`
}

func NewConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var appConfig AppConfig
	if err := yaml.Unmarshal(data, &appConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if appConfig.Scheduler.PollIntervalSeconds <= 0 {
		appConfig.Scheduler.PollIntervalSeconds = 30
	}
	if appConfig.Scheduler.MaxAttempts <= 0 {
		appConfig.Scheduler.MaxAttempts = 5
	}
	if appConfig.Workers.Count <= 0 {
		appConfig.Workers.Count = 3
	}

	return &appConfig, nil
}

// Reservations - политика записи, берется из переменных окружения.
// RESERVATION_LIMIT_PERIOD задается в секундах, остальные интервалы - в минутах.
type Reservations struct {
	LimitPeriodSeconds int `env:"RESERVATION_LIMIT_PERIOD" envDefault:"86400"`
	LimitCount         int `env:"RESERVATION_LIMIT_COUNT" envDefault:"2"`
	MinTimeMinutes     int `env:"RESERVATION_MIN_TIME" envDefault:"30"`
	CheckTimeMinutes   int `env:"CONFIRMATION_REQUEST_CHECK_TIME" envDefault:"30"`
	AfterVisitMinutes  int `env:"REQUEST_AFTER_VISITING_TIME" envDefault:"60"`

	// ConfirmationOffsetsHours - за сколько часов до приема отправлять
	// запросы подтверждения. Заполняется из CONFIRMATION_REQUEST_TIME_1..9.
	ConfirmationOffsetsHours []float64 `env:"-"`
}

func (r Reservations) LimitPeriod() time.Duration {
	return time.Duration(r.LimitPeriodSeconds) * time.Second
}

func (r Reservations) MinTime() time.Duration {
	return time.Duration(r.MinTimeMinutes) * time.Minute
}

func (r Reservations) CheckTime() time.Duration {
	return time.Duration(r.CheckTimeMinutes) * time.Minute
}

func (r Reservations) AfterVisit() time.Duration {
	return time.Duration(r.AfterVisitMinutes) * time.Minute
}

// NewReservations читает политику записи из окружения.
// Список CONFIRMATION_REQUEST_TIME_i обрывается на первом незаданном индексе.
func NewReservations() (Reservations, error) {
	var r Reservations
	if err := env.Parse(&r); err != nil {
		return Reservations{}, fmt.Errorf("failed to parse reservation settings: %w", err)
	}

	for i := 1; i <= 9; i++ {
		value, ok := os.LookupEnv(fmt.Sprintf("CONFIRMATION_REQUEST_TIME_%d", i))
		if !ok {
			break
		}
		hours, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Reservations{}, fmt.Errorf("CONFIRMATION_REQUEST_TIME_%d: %w", i, err)
		}
		r.ConfirmationOffsetsHours = append(r.ConfirmationOffsetsHours, hours)
	}

	return r, nil
}
