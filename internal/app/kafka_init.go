package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookshop/internal/service/redemption"
)

// messaging — Kafka-часть сервиса: паблишеры outbox и consumer погашения купонов.
type messaging struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	consumer  *kafka.Consumer
}

// initMessaging подключается к Kafka, если брокеры заданы.
// Ошибка подключения не фатальна: сервис работает без публикации событий.
func initMessaging(ctx context.Context, cfg Config, deps *Dependencies, logger *log.Entry) *messaging {
	if !cfg.KafkaEnabled() {
		logger.Info("kafka is not configured, outbox events stay pending")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

	m := &messaging{
		producer:  producer,
		publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:       kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}

	handler := redemption.NewHandler(deps.Coupons, deps.Ledger, logger.WithField("component", "coupon-redemption"))
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, []string{cfg.KafkaTopic}, handler.HandleMessage,
		kafka.WithDLQ(producer),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create coupon redemption consumer")
		return m
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start coupon redemption consumer")
		return m
	}
	m.consumer = consumer
	return m
}

func (m *messaging) close(logger *log.Entry) {
	if m == nil {
		return
	}
	if m.consumer != nil {
		if err := m.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if m.producer != nil {
		if err := m.producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}
}
