package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/segmentio/kafka-go"
)

// EventHandler processes one decoded booking event.
type EventHandler func(ctx context.Context, event BookingEvent) error

type Consumer struct {
	reader *kafka.Reader
	log    logger.Logger
}

func NewConsumer(brokers []string, groupID, topic string, log logger.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		log: log.With("component", "kafka_consumer", "topic", topic),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads events until ctx is cancelled. The offset is committed only
// after the handler returns, so a crash replays the in-flight event.
// Undecodable messages are logged and committed. Cancellation is not an error.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		event, err := DecodeBookingEvent(msg)
		if err != nil {
			c.log.Warn("skipping undecodable event", "offset", msg.Offset, "error", err)
		} else if err := handler(ctx, event); err != nil {
			return fmt.Errorf("handle %s for %s: %w", event.Type, event.Reference, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func DecodeBookingEvent(msg kafka.Message) (BookingEvent, error) {
	var event BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return BookingEvent{}, fmt.Errorf("decode booking event at offset %d: %w", msg.Offset, err)
	}
	if event.Type == "" || event.Reference == "" {
		return BookingEvent{}, fmt.Errorf("decode booking event at offset %d: missing type or reference", msg.Offset)
	}
	return event, nil
}
