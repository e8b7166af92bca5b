package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/app/chat"
	"marketchat/internal/infra/broker/kafka"
)

var ErrNotConfigured = errors.New("notify: publisher missing dependencies")

const (
	defaultSource    = "app://marketchat"
	defaultQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// KafkaNotifier queues notifications and publishes them as CloudEvents from a
// single background loop. A full queue drops the notification.
type KafkaNotifier struct {
	Publisher kafka.Publisher
	Topic     string
	Source    string
	Logger    *slog.Logger

	queue chan chat.Notification
}

func NewKafkaNotifier(pub kafka.Publisher, topic string, queueSize int, logger *slog.Logger) *KafkaNotifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{
		Publisher: pub,
		Topic:     topic,
		Logger:    logger,
		queue:     make(chan chat.Notification, queueSize),
	}
}

var _ chat.Notifier = (*KafkaNotifier)(nil)

func (n *KafkaNotifier) Notify(_ context.Context, note chat.Notification) {
	select {
	case n.queue <- note:
	default:
		n.Logger.Warn("notification dropped", "type", note.Type, "recipient_id", note.RecipientID, "message_id", note.MessageID)
	}
}

// Run publishes queued notifications until ctx is done, then drains what is
// already queued with a bounded deadline.
func (n *KafkaNotifier) Run(ctx context.Context) error {
	if n.Publisher == nil || n.queue == nil || n.Topic == "" {
		return ErrNotConfigured
	}
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return ctx.Err()
		case note := <-n.queue:
			n.publish(ctx, note)
		}
	}
}

func (n *KafkaNotifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case note := <-n.queue:
			n.publish(ctx, note)
		default:
			return
		}
	}
}

func (n *KafkaNotifier) publish(ctx context.Context, note chat.Notification) {
	payload, headers, err := encodeCloudEvent(note, n.Source)
	if err != nil {
		n.Logger.Error("notification encode failed", "message_id", note.MessageID, "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = n.Publisher.Publish(pubCtx, kafka.Record{
		Topic:   n.Topic,
		Key:     note.RecipientID,
		Value:   payload,
		Headers: headers,
	})
	if err != nil {
		n.Logger.Warn("notification publish failed", "recipient_id", note.RecipientID, "message_id", note.MessageID, "error", err)
		return
	}
	n.Logger.Debug("notification published", "recipient_id", note.RecipientID, "message_id", note.MessageID)
}

// encodeCloudEvent wraps a notification in a structured-mode CloudEvent.
func encodeCloudEvent(note chat.Notification, source string) ([]byte, map[string]string, error) {
	if source == "" {
		source = defaultSource
	}
	evtType := note.Type + ".v1"
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            evtType,
		"source":          source,
		"subject":         note.RecipientID,
		"time":            note.OccurredAt.UTC(),
		"datacontenttype": "application/json",
		"data":            note,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce_type":      evtType,
	}
	return payload, headers, nil
}
