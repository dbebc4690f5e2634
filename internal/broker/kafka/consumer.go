package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает события отгрузок и декодирует их до передачи обработчику.
type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume крутит цикл до первой ошибки. Нечитаемое сообщение коммитим и
// пропускаем, иначе оно навечно заклинит партицию.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, msg messages.ShipmentUpdated) error) error {
	for {
		raw, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		var msg messages.ShipmentUpdated
		if err := json.Unmarshal(raw.Value, &msg); err == nil {
			if err := handler(ctx, msg); err != nil {
				// commit только при успехе, иначе потеряем сообщение
				return err
			}
		}

		if err := c.r.CommitMessages(ctx, raw); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
