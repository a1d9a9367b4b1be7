package app

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы кэша.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CacheDriver           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CacheBreakerFailures  int
	CacheBreakerResetTime time.Duration

	// KafkaBrokers через запятую; пустое значение отключает outbox relay.
	KafkaBrokers       string
	KafkaTopic         string
	KafkaDLQTopic      string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	TxMaxAttempts int

	// SeedDevUser заводит учётку tester@example.com при in-memory хранилище.
	SeedDevUser bool

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		CacheDriver:           CacheDriverMemory,
		RedisAddr:             "localhost:6379",
		CacheBreakerFailures:  5,
		CacheBreakerResetTime: 30 * time.Second,

		KafkaTopic:         kafka.TopicOrderEvents,
		KafkaDLQTopic:      kafka.TopicDeadLetterQueue,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		TxMaxAttempts: 3,
		SeedDevUser:   true,

		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}
