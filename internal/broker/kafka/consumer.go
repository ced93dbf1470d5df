package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает return.updated в return-api. Offset коммитится только
// после успешного применения: потерять апдейт хуже, чем применить дважды —
// слияние в хранилище идемпотентно.
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

func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			// Важно: commit делаем только при успехе, иначе потеряем сообщение.
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeReturnUpdated — типизированный цикл поверх Consume: десериализует
// ReturnUpdated и отдаёт его обработчику. Битый payload пропускается
// с коммитом — повторная доставка его не починит.
func (c *Consumer) ConsumeReturnUpdated(ctx context.Context, handler func(msg messages.ReturnUpdated) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		var m messages.ReturnUpdated
		if err := json.Unmarshal(value, &m); err != nil {
			slog.Warn("skip malformed return update", "key", string(key), "error", err.Error())
			return nil
		}
		return handler(m)
	})
}
