package notify

import (
	"context"
	"log/slog"

	"marketchat/internal/app/chat"
)

// LogNotifier records notifications when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ chat.Notifier = LogNotifier{}

func (n LogNotifier) Notify(ctx context.Context, note chat.Notification) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"type", note.Type,
		"recipient_id", note.RecipientID,
		"sender_id", note.SenderID,
		"message_id", note.MessageID,
	)
}
