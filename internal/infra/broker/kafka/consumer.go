package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = NewConfig("")
	}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, handler: handler, logger: logger}, nil
}

// Run consumes until ctx is cancelled. Rebalances restart the loop.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	h := groupHandler{handler: c.handler, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim leaves failed messages unmarked; the next successful mark on the
// partition moves the offset past them.
func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler.Handle(sess.Context(), message); err != nil {
				h.logger.Warn("kafka message rejected",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
				continue
			}
			sess.MarkMessage(message, "")
		}
	}
}
