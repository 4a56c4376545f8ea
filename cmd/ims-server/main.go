package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/app"
	"github.com/vladislavdragonenkov/ims/internal/service/order"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

const (
	envHTTPAddr                    = "IMS_HTTP_ADDR"
	envGRPCAddr                    = "IMS_GRPC_ADDR"
	envMetricsAddr                 = "IMS_METRICS_ADDR"
	envStorageDriver               = "IMS_STORAGE_DRIVER"
	envPostgresDSN                 = "IMS_POSTGRES_DSN"
	envPostgresAutoMigrate         = "IMS_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "IMS_REDIS_ADDR"
	envRedisTTL                    = "IMS_REDIS_TTL"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaTopic                  = "IMS_KAFKA_TOPIC"
	envOutboxPollInterval          = "IMS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "IMS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "IMS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "IMS_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "IMS_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "IMS_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "IMS_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envStockGuard                  = "IMS_STOCK_GUARD"
	envLogLevel                    = "IMS_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
		return
	}
	log.SetLevel(level)
}

// readConfigFromEnv формирует конфигурацию приложения из переменных окружения.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию, а
// в warnings попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	stringValue := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	durationValue := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		value, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*target = value
	}
	intValue := func(key string, target *int, valid func(int) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		value, err := parseInt(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*target = value
	}
	positiveInt := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }

	stringValue(envHTTPAddr, &cfg.HTTPAddr)
	stringValue(envGRPCAddr, &cfg.GRPCAddr)
	stringValue(envMetricsAddr, &cfg.MetricsAddr)
	stringValue(envPostgresDSN, &cfg.PostgresDSN)
	stringValue(envRedisAddr, &cfg.RedisAddr)
	stringValue(envKafkaBrokers, &cfg.KafkaBrokers)
	stringValue(envKafkaTopic, &cfg.KafkaTopic)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	if raw, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(raw) != "" {
		value, err := parseBool(raw)
		if err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = value
		}
	}

	if raw, ok := lookup(envStockGuard); ok && strings.TrimSpace(raw) != "" {
		guard, err := order.ParseStockGuard(raw)
		if err != nil {
			warn(envStockGuard, raw, err)
		} else {
			cfg.StockGuard = guard
		}
	}

	durationValue(envRedisTTL, &cfg.RedisTTL, positiveDuration, "must be > 0")
	durationValue(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	intValue(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	intValue(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	durationValue(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	durationValue(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	durationValue(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	intValue(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"stock_guard":    cfg.StockGuard,
	}).Info("запускаем IMS")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("IMS остановлен")
}
