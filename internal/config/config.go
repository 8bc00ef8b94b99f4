// Пакет config — загрузка и валидация конфигурации Expertise Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Expertise Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8080-8089)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Внешние сервисы ---

	// URL файлового сервиса (object storage)
	FileStoreURL string
	// Таймаут запросов к файловому сервису
	FileStoreTimeout time.Duration
	// URL сервиса профилей
	ProfileURL string
	// Таймаут запросов к сервису профилей
	ProfileTimeout time.Duration

	// --- JWT ---

	// URL JWKS endpoint платформы (пустая строка — auth отключён, только для тестов)
	JWTJWKSURL string
	// Ожидаемый issuer JWT (опционально)
	JWTIssuer string

	// --- Чек-листы и генерация ---

	// Имя файла шаблона заключения в bucket templates
	ReportTemplateName string
	// Размер LRU-кэша каталога шаблонов
	TemplateCacheSize int
	// TTL записи кэша каталога шаблонов
	TemplateCacheTTL time.Duration
	// Количество воркеров пула загрузки фотографий
	PhotoWorkers int
	// Глубина очереди пула загрузки фотографий
	PhotoQueueSize int

	// --- Мониторинг зависимостей ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("EM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("EM_PORT: %w", err)
	}
	if cfg.Port < 8080 || cfg.Port > 8089 {
		return nil, fmt.Errorf("EM_PORT: значение %d вне допустимого диапазона 8080-8089", cfg.Port)
	}

	// EM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EM_LOG_LEVEL: %w", err)
	}

	// EM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("EM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// EM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("EM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// EM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("EM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EM_DB_PORT: %w", err)
	}

	// EM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("EM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// EM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("EM_DB_USER")
	if err != nil {
		return nil, err
	}

	// EM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("EM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// EM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("EM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Внешние сервисы ---

	// EM_FILESTORE_URL — обязательный
	cfg.FileStoreURL, err = getEnvRequired("EM_FILESTORE_URL")
	if err != nil {
		return nil, err
	}
	cfg.FileStoreURL = strings.TrimRight(cfg.FileStoreURL, "/")

	// EM_FILESTORE_TIMEOUT — таймаут файлового сервиса (по умолчанию 30s)
	cfg.FileStoreTimeout, err = getEnvDuration("EM_FILESTORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_FILESTORE_TIMEOUT: %w", err)
	}

	// EM_PROFILE_URL — обязательный
	cfg.ProfileURL, err = getEnvRequired("EM_PROFILE_URL")
	if err != nil {
		return nil, err
	}
	cfg.ProfileURL = strings.TrimRight(cfg.ProfileURL, "/")

	// EM_PROFILE_TIMEOUT — таймаут сервиса профилей (по умолчанию 15s)
	cfg.ProfileTimeout, err = getEnvDuration("EM_PROFILE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_PROFILE_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// EM_JWT_JWKS_URL — JWKS endpoint (пустая строка отключает auth middleware)
	cfg.JWTJWKSURL = getEnvDefault("EM_JWT_JWKS_URL", "")

	// EM_JWT_ISSUER — ожидаемый issuer (опционально)
	cfg.JWTIssuer = getEnvDefault("EM_JWT_ISSUER", "")

	// --- Чек-листы и генерация ---

	// EM_REPORT_TEMPLATE — имя шаблона заключения (по умолчанию "expert-report")
	cfg.ReportTemplateName = getEnvDefault("EM_REPORT_TEMPLATE", "expert-report")

	// EM_TEMPLATE_CACHE_SIZE — размер кэша шаблонов (по умолчанию 128)
	cfg.TemplateCacheSize, err = getEnvInt("EM_TEMPLATE_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("EM_TEMPLATE_CACHE_SIZE: %w", err)
	}
	if cfg.TemplateCacheSize < 1 {
		return nil, fmt.Errorf("EM_TEMPLATE_CACHE_SIZE: значение %d должно быть положительным", cfg.TemplateCacheSize)
	}

	// EM_TEMPLATE_CACHE_TTL — TTL кэша шаблонов (по умолчанию 10m)
	cfg.TemplateCacheTTL, err = getEnvDuration("EM_TEMPLATE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EM_TEMPLATE_CACHE_TTL: %w", err)
	}

	// EM_PHOTO_WORKERS — количество воркеров пула фотографий (по умолчанию 4)
	cfg.PhotoWorkers, err = getEnvInt("EM_PHOTO_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("EM_PHOTO_WORKERS: %w", err)
	}
	if cfg.PhotoWorkers < 1 || cfg.PhotoWorkers > 64 {
		return nil, fmt.Errorf("EM_PHOTO_WORKERS: значение %d вне допустимого диапазона 1-64", cfg.PhotoWorkers)
	}

	// EM_PHOTO_QUEUE_SIZE — глубина очереди пула (по умолчанию 32)
	cfg.PhotoQueueSize, err = getEnvInt("EM_PHOTO_QUEUE_SIZE", 32)
	if err != nil {
		return nil, fmt.Errorf("EM_PHOTO_QUEUE_SIZE: %w", err)
	}
	if cfg.PhotoQueueSize < 1 || cfg.PhotoQueueSize > 1024 {
		return nil, fmt.Errorf("EM_PHOTO_QUEUE_SIZE: значение %d вне допустимого диапазона 1-1024", cfg.PhotoQueueSize)
	}

	// --- Мониторинг зависимостей ---

	// EM_DEPHEALTH_GROUP — группа в метриках (по умолчанию "stroyexpert")
	cfg.DephealthGroup = getEnvDefault("EM_DEPHEALTH_GROUP", "stroyexpert")

	// EM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("EM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// EM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("EM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для лейблов dephealth).
// Пароль в URL не включается.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
