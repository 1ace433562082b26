package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/manager-sync/internal/platform/id"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/usecase"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const syncEventType = "game.sync.finished"

type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits one message per finished game sync, keyed by game id
// so every event of a game lands on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	ids     id.Generator
	logger  *logging.Logger
}

func NewKafkaPublisher(cfg KafkaPublisherConfig, logger *logging.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, topic, cfg.WriteTimeout, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, timeout time.Duration, logger *logging.Logger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: timeout,
		ids:     id.NewRandomGenerator("evt_"),
		logger:  logger,
	}
}

func (p *KafkaPublisher) PublishSyncEvent(ctx context.Context, event usecase.SyncEvent) error {
	eventID, err := p.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate sync event id: %w", err)
	}
	msg, err := syncEventMessage(eventID, event)
	if err != nil {
		return err
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.Int64("game.id", event.GameID),
		)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("write sync event game_id=%d topic=%s: %w", event.GameID, p.topic, err)
	}
	p.logger.DebugContext(ctx, "sync event published", "topic", p.topic, "event_id", eventID, "game_id", event.GameID, "status", event.Status)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// syncEventMessage carries a per-message event-id header so consumers can
// drop redelivered copies.
func syncEventMessage(eventID string, event usecase.SyncEvent) (kafka.Message, error) {
	body, err := sonic.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal sync event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.GameID, 10)),
		Value: body,
		Time:  event.CompletedAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(eventID)},
			{Key: "event-type", Value: []byte(syncEventType)},
			{Key: "status", Value: []byte(event.Status)},
		},
	}, nil
}
