package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/messaging"
)

func TestSummarize(t *testing.T) {
	req := require.New(t)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	msgs := []messaging.Message{
		{ID: "1", SenderID: "alice", ReceiverID: "bob", Content: "Olá", CreatedAt: base},
		{ID: "2", SenderID: "carol", ReceiverID: "alice", Content: "offer", CreatedAt: base.Add(time.Minute)},
		{ID: "3", SenderID: "bob", ReceiverID: "alice", Content: "Oi", ListingRef: "listing-1", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "4", SenderID: "bob", ReceiverID: "alice", Content: "still there?", CreatedAt: base.Add(2 * time.Minute), IsRead: true},
		{ID: "5", SenderID: "dave", ReceiverID: "erin", Content: "unrelated", CreatedAt: base.Add(3 * time.Minute)},
	}

	got := Summarize("alice", msgs)
	req.Len(got, 2)

	req.Equal("bob", got[0].CounterpartyID)
	req.Equal(messaging.MessageID("4"), got[0].LastMessageID)
	req.Equal("still there?", got[0].LastMessageContent)
	req.Equal(1, got[0].UnreadCount)

	req.Equal("carol", got[1].CounterpartyID)
	req.Equal(1, got[1].UnreadCount)
}

func TestSummarizeTiesSortByCounterparty(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	got := Summarize("alice", []messaging.Message{
		{ID: "1", SenderID: "alice", ReceiverID: "zoe", CreatedAt: at},
		{ID: "2", SenderID: "alice", ReceiverID: "bob", CreatedAt: at},
	})
	require.Len(t, got, 2)
	require.Equal(t, "bob", got[0].CounterpartyID)
	require.Zero(t, got[0].UnreadCount)
}

func TestSummarizeEmpty(t *testing.T) {
	require.Empty(t, Summarize("alice", nil))
}
