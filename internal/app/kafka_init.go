package app

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const kafkaClientID = "shop-api"

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, kafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startOutboxRelay запускает публикацию outbox в Kafka. Без producer relay не стартует.
func startOutboxRelay(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if producer == nil || repo == nil {
		logger.Info("kafka is not configured, outbox relay disabled")
		return nil, nil
	}

	relay := outbox.NewRelay(
		repo,
		kafka.NewOrderEventPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		outbox.WithDeadLetterPublisher(kafka.NewDeadLetterPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(relayCtx)
	}()

	logger.WithFields(log.Fields{
		"topic":         cfg.KafkaTopic,
		"dlq_topic":     cfg.KafkaDLQTopic,
		"poll_interval": cfg.OutboxPollInterval.String(),
	}).Info("outbox relay started")
	return cancel, done
}

// shutdownOutboxWorker останавливает relay и ждёт завершения текущей пачки.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}

	select {
	case <-done:
		logger.Info("outbox relay stopped")
	case <-time.After(5 * time.Second):
		logger.Warn("outbox relay did not stop in time")
	}
}
