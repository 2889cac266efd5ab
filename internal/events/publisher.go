package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// Publisher publishes attempt events.
type Publisher interface {
	Publish(ctx context.Context, event *AttemptEvent) error
	Close() error
}

// WatermillConfig configures NewWatermillPublisher.
type WatermillConfig struct {
	KafkaBrokers []string
	Topic        string
}

// WatermillPublisher publishes events through watermill. Without brokers it
// uses an in-process channel, which Subscribe can read back.
type WatermillPublisher struct {
	publisher message.Publisher
	local     *gochannel.GoChannel
	topic     string
	log       zerolog.Logger
}

// NewWatermillPublisher creates the publisher.
func NewWatermillPublisher(cfg WatermillConfig, log zerolog.Logger) (*WatermillPublisher, error) {
	p := &WatermillPublisher{
		topic: cfg.Topic,
		log:   log.With().Str("component", "event_publisher").Logger(),
	}
	adapter := NewZerologAdapter(p.log)

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, adapter)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		p.publisher = kp
		p.log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.Topic).Msg("Publishing events to Kafka")
		return p, nil
	}

	p.local = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, adapter)
	p.publisher = p.local
	p.log.Info().Str("topic", cfg.Topic).Msg("Publishing events in-process")
	return p, nil
}

// Publish marshals event and publishes it on the configured topic.
func (p *WatermillPublisher) Publish(ctx context.Context, event *AttemptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("exam_id", strconv.FormatInt(event.ExamID, 10))
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.log.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("Publish failed")
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns the in-process event stream. It fails when events go to Kafka.
func (p *WatermillPublisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if p.local == nil {
		return nil, errors.New("events are published to kafka; subscribe there")
	}
	return p.local.Subscribe(ctx, p.topic)
}

// Close releases the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// RunAuditLog logs every in-process event until ctx is done. It returns
// immediately when events go to Kafka.
func (p *WatermillPublisher) RunAuditLog(ctx context.Context) {
	messages, err := p.Subscribe(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("Audit log disabled")
		return
	}

	for msg := range messages {
		var event AttemptEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			p.log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Discarding malformed event")
			msg.Ack()
			continue
		}
		p.log.Info().
			Str("event_type", string(event.Type)).
			Int64("exam_id", event.ExamID).
			Int64("user_id", event.UserID).
			Str("status", event.Status).
			Str("reason", event.Reason).
			Msg("Attempt event")
		msg.Ack()
	}
}

// Multi fans an event out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event *AttemptEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
