package app

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ims/internal/service/outbox"
)

// producerFactory создаёт producer по списку брокеров; подменяется в тестах.
type producerFactory func(brokers []string) (*kafka.Producer, error)

// outboxPipeline связывает Kafka producer и worker, публикующий события заказов.
type outboxPipeline struct {
	producer *kafka.Producer
	worker   *outbox.Worker
}

// initOutboxPipeline возвращает nil, если брокеры не заданы или producer не создан.
// Ошибка Kafka не останавливает сервис: события копятся в outbox до появления брокера.
func initOutboxPipeline(
	cfg Config,
	repo domain.OutboxRepository,
	newProducer producerFactory,
	registerer prometheus.Registerer,
	logger *log.Entry,
) *outboxPipeline {
	brokers := cfg.kafkaBrokerList()
	if len(brokers) == 0 {
		logger.Info("kafka не настроен, публикация outbox отключена")
		return nil
	}

	producer, err := newProducer(brokers)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("failed to create kafka producer, events stay in outbox")
		return nil
	}
	logger.WithFields(log.Fields{
		"brokers": brokers,
		"topic":   cfg.KafkaTopic,
	}).Info("kafka producer initialized")

	return &outboxPipeline{
		producer: producer,
		worker:   newOutboxWorker(cfg, repo, producer, registerer, logger),
	}
}

func newOutboxWorker(
	cfg Config,
	repo domain.OutboxRepository,
	producer *kafka.Producer,
	registerer prometheus.Registerer,
	logger *log.Entry,
) *outbox.Worker {
	return outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithRegisterer(registerer),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// close закрывает producer после остановки worker. Безопасен для nil.
func (p *outboxPipeline) close(logger *log.Entry) {
	if p == nil || p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
