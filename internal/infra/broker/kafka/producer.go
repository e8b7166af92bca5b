package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

// Record is one message headed for a topic.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher is satisfied by Producer; consumers of the broker depend on this.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type Producer struct {
	sync   sarama.SyncProducer
	logger *slog.Logger
}

// NewConfig returns the sarama settings shared by producers and consumers.
func NewConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

func NewProducer(brokers []string, cfg *sarama.Config, logger *slog.Logger) (*Producer, error) {
	if cfg == nil {
		cfg = NewConfig("")
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewProducerFrom(sync, logger), nil
}

// NewProducerFrom wraps an existing sync producer.
func NewProducerFrom(sync sarama.SyncProducer, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{sync: sync, logger: logger}
}

var _ Publisher = (*Producer)(nil)

func (p *Producer) Publish(ctx context.Context, rec Record) error {
	if p == nil || p.sync == nil {
		return ErrProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	hs := make([]sarama.RecordHeader, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	msg := &sarama.ProducerMessage{
		Topic:   rec.Topic,
		Value:   sarama.ByteEncoder(rec.Value),
		Headers: hs,
	}
	if rec.Key != "" {
		msg.Key = sarama.StringEncoder(rec.Key)
	}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		return err
	}
	p.logger.Debug("kafka record published", "topic", rec.Topic, "partition", partition, "offset", offset)
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

// Topic joins the configured prefix with a base topic name.
func Topic(prefix, name string) string {
	return prefix + name
}
