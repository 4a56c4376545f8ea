package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
)

type replayConfig struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c replayConfig) validate() error {
	var errs []error
	if len(c.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (--brokers or KAFKA_BROKERS)"))
	}
	if c.sourceTopic == "" {
		errs = append(errs, errors.New("source topic is required"))
	}
	if c.targetTopic == "" {
		errs = append(errs, errors.New("target topic is required"))
	}
	if c.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if c.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be > 0"))
	}
	return errors.Join(errs...)
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	return a.consumer.Close()
}

// replayDeps содержит подключения к Kafka, нужные для повтора.
type replayDeps struct {
	client    offsetClient
	consumer  partitionConsumerSource
	publisher domain.OutboxPublisher
	closeFn   func()
}

// connect создаёт клиента, consumer и, в режиме execute, паблишер в целевой topic.
var connect = func(cfg replayConfig) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := replayDeps{
		client:   client,
		consumer: saramaConsumerAdapter{consumer: rawConsumer},
		closeFn: func() {
			_ = rawConsumer.Close()
			_ = client.Close()
		},
	}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		deps.closeFn()
		return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	closeConsumer := deps.closeFn
	deps.closeFn = func() {
		_ = producer.Close()
		closeConsumer()
	}
	return deps, nil
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

type replayer struct {
	cfg       replayConfig
	client    offsetClient
	consumer  partitionConsumerSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

func newReplayer(cfg replayConfig, deps replayDeps, logger *log.Entry) (*replayer, error) {
	if deps.client == nil || deps.consumer == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && deps.publisher == nil {
		return nil, errors.New("publisher is required in execute mode")
	}
	return &replayer{
		cfg:       cfg,
		client:    deps.client,
		consumer:  deps.consumer,
		publisher: deps.publisher,
		logger:    logger,
	}, nil
}

// run проходит партиции DLQ по возрастанию номера, пока не обработает limit сообщений.
func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		remaining := r.cfg.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			if err := r.replayMessage(ctx, msg); err != nil {
				if errors.Is(err, errPublish) {
					return stats, err
				}
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
			} else {
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}

	return stats, nil
}

var errPublish = errors.New("publish replay message")

func (r *replayer) replayMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, record, err := decodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}

	fields := log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"outbox_id":    event.ID,
		"order_id":     event.AggregateID,
		"event_type":   event.EventType,
		"attempts":     record.Attempts,
		"target_topic": r.cfg.targetTopic,
	}
	if !r.cfg.execute {
		r.logger.WithFields(fields).WithField("publish_error", record.PublishError).Info("dlq replay candidate")
		return nil
	}

	if err := r.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("%w %s: %w", errPublish, event.ID, err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}

// decodeDeadLetter разбирает конверт DLQ и восстанавливает исходное событие outbox.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, domain.DeadLetterRecord, error) {
	envelope, err := kafka.ParseEnvelope(value)
	if err != nil {
		return domain.OutboxMessage{}, domain.DeadLetterRecord{}, err
	}
	if len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, domain.DeadLetterRecord{}, errors.New("dlq envelope has no payload")
	}

	var record domain.DeadLetterRecord
	if err := envelope.DecodePayload(&record); err != nil {
		return domain.OutboxMessage{}, domain.DeadLetterRecord{}, err
	}
	if len(record.Payload) == 0 {
		return domain.OutboxMessage{}, domain.DeadLetterRecord{}, errors.New("dlq record does not contain original event payload")
	}

	event := record.Message()
	event.ID = firstNonEmpty(event.ID, envelope.ID)
	event.AggregateType = firstNonEmpty(event.AggregateType, envelope.AggregateType)
	event.AggregateID = firstNonEmpty(event.AggregateID, envelope.AggregateID)
	event.EventType = firstNonEmpty(event.EventType, envelope.EventType)
	return event, record, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
