package main

import (
	"flag"
	"log"
	"os"

	"priem-bot/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "Путь к файлу конфигурации")
	flag.Parse()

	// .env необязателен: в продакшене переменные задаются окружением
	if err := godotenv.Load(); err != nil {
		log.Printf("Файл .env не найден, используются переменные окружения")
	}

	// Проверка существования файла конфигурации
	_, err := os.Stat(*configPath)
	if os.IsNotExist(err) {
		log.Fatalf("Конфигурационный файл не найден: %s", *configPath)
	}

	if err := app.Run(*configPath); err != nil {
		log.Fatal(err)
	}
}
