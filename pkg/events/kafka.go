package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/config"
	"content-harvester/pkg/log"
	"content-harvester/pkg/utils"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by the record ID,
// so every event of one record lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for cfg.Brokers and cfg.Topic.
func NewKafkaPublisher(cfg config.EventsConfig, logger *logrus.Entry) *KafkaPublisher {
	kafkaLog := logger.WithField("component", "kafka")
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
			Logger:                 log.NewKafkaLogrusAdapter(kafkaLog, logrus.DebugLevel),
			ErrorLogger:            log.NewKafkaLogrusAdapter(kafkaLog, logrus.ErrorLevel),
		},
		now: time.Now,
	}
}

// NewKafkaPublisherWithWriter builds a publisher around a custom writer (tests).
func NewKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

// Publish writes all events in one batch. Events without a timestamp are stamped now.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = p.now().UTC()
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%w: encoding %s event: %w", utils.ErrEventPublish, ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.ID),
			Value: payload,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrEventPublish, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
