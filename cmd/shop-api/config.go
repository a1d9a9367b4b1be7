package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envHTTPAddr                    = "SHOP_HTTP_ADDR"
	envGRPCAddr                    = "SHOP_GRPC_ADDR"
	envMetricsAddr                 = "SHOP_METRICS_ADDR"
	envStorageDriver               = "SHOP_STORAGE_DRIVER"
	envPostgresDSN                 = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate         = "SHOP_POSTGRES_AUTO_MIGRATE"
	envCacheDriver                 = "SHOP_CACHE_DRIVER"
	envRedisAddr                   = "SHOP_REDIS_ADDR"
	envRedisPassword               = "SHOP_REDIS_PASSWORD"
	envRedisDB                     = "SHOP_REDIS_DB"
	envCacheBreakerFailures        = "SHOP_CACHE_BREAKER_FAILURES"
	envCacheBreakerReset           = "SHOP_CACHE_BREAKER_RESET"
	envKafkaBrokers                = "SHOP_KAFKA_BROKERS"
	envKafkaTopic                  = "SHOP_KAFKA_TOPIC"
	envKafkaDLQTopic               = "SHOP_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "SHOP_OUTBOX_RETRY_DELAY"
	envTxMaxAttempts               = "SHOP_TX_MAX_ATTEMPTS"
	envSeedDevUser                 = "SHOP_SEED_DEV_USER"
	envIdempotencyCleanupInterval  = "SHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "SHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются и попадают в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string, normalize func(string) string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = normalize(v)
		}
	}
	intVar := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using default %d", key, err, *dst))
			return
		}
		*dst = parsed
	}
	durationVar := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using default %s", key, err, *dst))
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr, strings.TrimSpace)
	str(envGRPCAddr, &cfg.GRPCAddr, strings.TrimSpace)
	str(envMetricsAddr, &cfg.MetricsAddr, strings.TrimSpace)
	str(envStorageDriver, &cfg.StorageDriver, normalizeDriver)
	str(envPostgresDSN, &cfg.PostgresDSN, strings.TrimSpace)
	str(envCacheDriver, &cfg.CacheDriver, normalizeDriver)
	str(envRedisAddr, &cfg.RedisAddr, strings.TrimSpace)
	str(envRedisPassword, &cfg.RedisPassword, func(v string) string { return v })
	str(envKafkaBrokers, &cfg.KafkaBrokers, strings.TrimSpace)
	str(envKafkaTopic, &cfg.KafkaTopic, strings.TrimSpace)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic, strings.TrimSpace)

	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using default %t", envPostgresAutoMigrate, err, cfg.PostgresAutoMigrate))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookup(envSeedDevUser); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using default %t", envSeedDevUser, err, cfg.SeedDevUser))
		} else {
			cfg.SeedDevUser = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	intVar(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	intVar(envCacheBreakerFailures, &cfg.CacheBreakerFailures, positive, "must be > 0")
	durationVar(envCacheBreakerReset, &cfg.CacheBreakerResetTime, positiveDuration, "must be > 0")
	durationVar(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	intVar(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	intVar(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	durationVar(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	intVar(envTxMaxAttempts, &cfg.TxMaxAttempts, positive, "must be > 0")
	durationVar(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	intVar(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

func normalizeDriver(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("value %d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if valid != nil && !valid(v) {
		return 0, fmt.Errorf("value %s %s", v, rule)
	}
	return v, nil
}
