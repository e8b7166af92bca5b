package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/app/chat"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/outbox"
)

const outboxWriteTimeout = 2 * time.Second

type OutboxStore interface {
	Add(ctx context.Context, n chat.Notification) error
	Claim(ctx context.Context, workerID string) (*outbox.Entry, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

// OutboxNotifier persists notifications instead of publishing them directly,
// so a broker outage does not lose them.
type OutboxNotifier struct {
	Store  OutboxStore
	Logger *slog.Logger
}

var _ chat.Notifier = OutboxNotifier{}

func (n OutboxNotifier) Notify(ctx context.Context, note chat.Notification) {
	ctx, cancel := context.WithTimeout(ctx, outboxWriteTimeout)
	defer cancel()
	if err := n.Store.Add(ctx, note); err != nil {
		logger := n.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("notification outbox write failed", "recipient_id", note.RecipientID, "message_id", note.MessageID, "error", err)
	}
}

// OutboxWorker publishes stored notifications, retrying failures with backoff.
type OutboxWorker struct {
	Store     OutboxStore
	Publisher kafka.Publisher
	Topic     string
	Source    string
	ID        string
	Interval  time.Duration
	Backoff   []time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	if w.Store == nil || w.Publisher == nil || w.Topic == "" {
		return ErrNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger().Error("notification outbox claim failed", "error", err)
			}
		}
	}
}

// drain publishes due entries until none is left.
func (w *OutboxWorker) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		processed, err := w.processOnce(ctx)
		if err != nil || !processed {
			return err
		}
	}
	return nil
}

func (w *OutboxWorker) processOnce(ctx context.Context) (bool, error) {
	entry, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || entry == nil {
		return false, err
	}
	payload, headers, err := encodeCloudEvent(entry.Notification, w.Source)
	if err == nil {
		err = w.Publisher.Publish(ctx, kafka.Record{
			Topic:   w.Topic,
			Key:     entry.Notification.RecipientID,
			Value:   payload,
			Headers: headers,
		})
	}
	if err != nil {
		w.logger().Warn("notification publish failed", "entry_id", entry.ID, "attempts", entry.Attempts, "error", err)
		return true, w.Store.MarkFailed(ctx, entry.ID, w.nextRetry(entry.Attempts), err.Error())
	}
	return true, w.Store.MarkSent(ctx, entry.ID)
}

func (w *OutboxWorker) workerID() string {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return w.ID
}

func (w *OutboxWorker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *OutboxWorker) nextRetry(attempts int) time.Time {
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	if attempts < len(w.Backoff) {
		return now.Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return now.Add(w.Backoff[len(w.Backoff)-1])
	}
	return now.Add(5 * time.Second)
}

func (w *OutboxWorker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}
