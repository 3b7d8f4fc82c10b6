package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации API-сервера
type Config struct {
	// DatabaseURL необязателен: без него обращения хранятся в памяти процесса
	DatabaseURL string `env:"DATABASE_URL"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PingMessage string `env:"PING_MESSAGE" envDefault:"ping"`

	// Redis Config, пустой адрес отключает кеш и вебхуки
	RedisAddr string `env:"REDIS_ADDR"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Minio Config, пустой endpoint - фото остаются data URL
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"issue-photos"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MinioPublicURL string `env:"MINIO_PUBLIC_URL"`

	// Порог голосов, после которого обращение уходит на рассмотрение
	VerificationThreshold int `env:"VERIFICATION_THRESHOLD" envDefault:"5"`

	// API Keys для административных маршрутов
	APIKeys []string `env:"API_KEYS"`
}

// ReporterConfig - конфигурация клиента для подачи обращений
type ReporterConfig struct {
	APIBaseURL           string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	APITimeout           time.Duration `env:"API_TIMEOUT" envDefault:"8s"`
	GeoTimeout           time.Duration `env:"GEO_TIMEOUT" envDefault:"10s"`
	ConnectivityInterval time.Duration `env:"CONNECTIVITY_INTERVAL" envDefault:"5s"`
	NotifyInterval       time.Duration `env:"NOTIFY_INTERVAL" envDefault:"10s"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`

	// QueueFile - путь к файлу офлайн-очереди, по умолчанию в каталоге данных XDG
	QueueFile string `env:"QUEUE_FILE"`
	// QueueRedisAddr переключает хранилище очереди на Redis
	QueueRedisAddr string `env:"QUEUE_REDIS_ADDR"`
	QueueRedisPass string `env:"QUEUE_REDIS_PASSWORD"`
	QueueRedisDB   int    `env:"QUEUE_REDIS_DB" envDefault:"0"`

	WardID string `env:"WARD_ID" envDefault:"ward-1"`
	UserID string `env:"USER_ID"`
}

// LoadConfig загружает конфигурацию сервера из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		PingMessage:           getEnv("PING_MESSAGE", "ping"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		MinioEndpoint:         os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:        os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:        os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:           getEnv("MINIO_BUCKET", "issue-photos"),
		MinioUseSSL:           getEnvAsBool("MINIO_USE_SSL", false),
		MinioPublicURL:        os.Getenv("MINIO_PUBLIC_URL"),
		VerificationThreshold: getEnvAsInt("VERIFICATION_THRESHOLD", 5),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if cfg.VerificationThreshold < 1 {
		return nil, fmt.Errorf("VERIFICATION_THRESHOLD must be positive, got %d", cfg.VerificationThreshold)
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}

	return cfg, nil
}

// LoadReporterConfig загружает конфигурацию клиента
func LoadReporterConfig() (*ReporterConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &ReporterConfig{
		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		APITimeout:           getEnvAsDuration("API_TIMEOUT", 8*time.Second),
		GeoTimeout:           getEnvAsDuration("GEO_TIMEOUT", 10*time.Second),
		ConnectivityInterval: getEnvAsDuration("CONNECTIVITY_INTERVAL", 5*time.Second),
		NotifyInterval:       getEnvAsDuration("NOTIFY_INTERVAL", 10*time.Second),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		QueueFile:            os.Getenv("QUEUE_FILE"),
		QueueRedisAddr:       os.Getenv("QUEUE_REDIS_ADDR"),
		QueueRedisPass:       os.Getenv("QUEUE_REDIS_PASSWORD"),
		QueueRedisDB:         getEnvAsInt("QUEUE_REDIS_DB", 0),
		WardID:               getEnv("WARD_ID", "ward-1"),
		UserID:               os.Getenv("USER_ID"),
	}

	for key, d := range map[string]time.Duration{
		"API_TIMEOUT":           cfg.APITimeout,
		"GEO_TIMEOUT":           cfg.GeoTimeout,
		"CONNECTIVITY_INTERVAL": cfg.ConnectivityInterval,
		"NOTIFY_INTERVAL":       cfg.NotifyInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	return cfg, nil
}

// loadDotEnv загружает переменные окружения из .env файла (если есть)
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool возвращает значение переменной окружения как bool или значение по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
