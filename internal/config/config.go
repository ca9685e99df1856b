// Пакет config — загрузка и валидация конфигурации File Manager
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

// DefaultAllowedTypes — MIME-типы, допустимые для загрузки по умолчанию.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// Config содержит все параметры конфигурации File Manager.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Строка подключения к PostgreSQL (обязательный параметр)
	DatabaseURL string
	// Путь к директории хранения загруженных файлов
	DataDir string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Допустимые MIME-типы загружаемых файлов
	AllowedTypes []string
	// Раздавать ли загруженные файлы напрямую через /uploads/
	ServeUploads bool

	// Лимит запросов с одного IP за окно RateLimitWindow (0 — без ограничения)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Размер и TTL LRU-кэша метаданных
	CacheSize int
	CacheTTL  time.Duration

	// Интервал сверки диска с БД (0 — фоновая сверка отключена)
	ReconcileInterval time.Duration
	// Минимальный возраст файла без записи в БД, после которого он считается осиротевшим
	ReconcileGrace time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FM_DATABASE_URL — обязательный
	cfg.DatabaseURL, err = getEnvRequired("FM_DATABASE_URL")
	if err != nil {
		return nil, err
	}

	// FM_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("FM_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("FM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FM_DATA_DIR — директория хранения файлов (по умолчанию ./uploads)
	cfg.DataDir = getEnvDefault("FM_DATA_DIR", "./uploads")

	// FM_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 5 MiB)
	cfg.MaxFileSize, err = getEnvInt64("FM_MAX_FILE_SIZE", 5*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("FM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FM_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FM_ALLOWED_TYPES — список MIME-типов через запятую
	cfg.AllowedTypes = getEnvList("FM_ALLOWED_TYPES", DefaultAllowedTypes)
	if len(cfg.AllowedTypes) == 0 {
		return nil, fmt.Errorf("FM_ALLOWED_TYPES: список допустимых типов пуст")
	}

	// FM_SERVE_UPLOADS — раздача /uploads/ (по умолчанию true)
	cfg.ServeUploads, err = getEnvBool("FM_SERVE_UPLOADS", true)
	if err != nil {
		return nil, fmt.Errorf("FM_SERVE_UPLOADS: %w", err)
	}

	// FM_RATE_LIMIT_REQUESTS / FM_RATE_LIMIT_WINDOW — 100 запросов за 15 минут
	cfg.RateLimitRequests, err = getEnvInt("FM_RATE_LIMIT_REQUESTS", 100)
	if err != nil {
		return nil, fmt.Errorf("FM_RATE_LIMIT_REQUESTS: %w", err)
	}
	if cfg.RateLimitRequests < 0 {
		return nil, fmt.Errorf("FM_RATE_LIMIT_REQUESTS: значение не может быть отрицательным")
	}
	cfg.RateLimitWindow, err = getEnvPositiveDuration("FM_RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FM_RATE_LIMIT_WINDOW: %w", err)
	}

	// FM_CACHE_SIZE / FM_CACHE_TTL — LRU-кэш метаданных
	cfg.CacheSize, err = getEnvInt("FM_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("FM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("FM_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.CacheTTL, err = getEnvPositiveDuration("FM_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FM_CACHE_TTL: %w", err)
	}

	// FM_RECONCILE_INTERVAL — 0 отключает фоновую сверку
	cfg.ReconcileInterval, err = getEnvDuration("FM_RECONCILE_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("FM_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval < 0 {
		return nil, fmt.Errorf("FM_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}
	cfg.ReconcileGrace, err = getEnvDuration("FM_RECONCILE_GRACE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FM_RECONCILE_GRACE: %w", err)
	}

	// FM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("FM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FM_DEPHEALTH_GROUP", "file-manager")

	// Таймауты HTTP-сервера
	cfg.HTTPReadTimeout, err = getEnvPositiveDuration("FM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("FM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("FM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvPositiveDuration("FM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// FM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FM_LOG_LEVEL: %w", err)
	}

	// FM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
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
	val := strings.TrimSpace(os.Getenv(key))
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 5m, 1h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// getEnvList разбирает список значений через запятую. Пустые элементы
// отбрасываются, значения приводятся к нижнему регистру.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var result []string
	for _, item := range strings.Split(val, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			result = append(result, item)
		}
	}
	return result
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
