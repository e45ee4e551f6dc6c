package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
)

// Адрес бэкенда по умолчанию
const defaultBackendURL = "http://13.235.85.242:8000"

// Config конфигурация приложения, читается из переменных окружения
type Config struct {
	BackendURL     string
	ServerPort     string
	MaxFileSize    int64 // в байтах
	StaticDir      string
	TemplatesDir   string
	SessionDBPath  string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	AuthDelay      time.Duration
	SessionTTL     time.Duration // простой сессии до удаления
	GinMode        string
}

// loadConfig читает .env (если есть) и переменные окружения.
// Неверный формат числа - ошибка, дальше приложение не стартует.
func loadConfig(logger log.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		level.Warn(logger).Log("msg", "Не удалось загрузить переменные окружения из .env файла, используются значения по умолчанию", "err", err)
	}

	env := envReader{logger: logger}

	cfg := Config{
		BackendURL:    env.String("BACKEND_API_BASE_URL", defaultBackendURL),
		ServerPort:    env.String("SERVER_PORT", "8080"),
		StaticDir:     env.String("STATIC_DIR", "static"),
		TemplatesDir:  env.String("TEMPLATES_DIR", "templates"),
		SessionDBPath: env.String("SESSION_DB_PATH", "data/sessions.bolt"),
		GinMode:       os.Getenv("GIN_MODE"),
	}

	maxFileSizeMB := env.Int("MAX_FILE_SIZE_MB", 50)
	cfg.MaxFileSize = int64(maxFileSizeMB) << 20

	cfg.PollInterval = time.Duration(env.Int("STATUS_POLL_INTERVAL_SEC", 3)) * time.Second
	cfg.RequestTimeout = time.Duration(env.Int("REQUEST_TIMEOUT_SEC", 30)) * time.Second
	cfg.AuthDelay = time.Duration(env.Int("AUTH_SIMULATED_DELAY_MS", 1000)) * time.Millisecond
	cfg.SessionTTL = time.Duration(env.Int("SESSION_TTL_MIN", 60)) * time.Minute

	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, nil
}

// envReader запоминает первую ошибку разбора
type envReader struct {
	logger log.Logger
	err    error
}

func (e *envReader) String(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		level.Info(e.logger).Log("msg", "Переменная не установлена, используется дефолт", "key", key, "default", def)
		return def
	}
	return value
}

func (e *envReader) Int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		level.Info(e.logger).Log("msg", "Переменная не установлена, используется дефолт", "key", key, "default", def)
		return def
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		if e.err == nil {
			e.err = fmt.Errorf("неверный формат %s: %q", key, value)
		}
		return def
	}

	level.Info(e.logger).Log("msg", "Переменная установлена", "key", key, "value", n)
	return n
}
