package chat

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"marketchat/internal/domain/messaging"
)

// ConversationSummary is the per-counterparty rollup shown in conversation lists.
type ConversationSummary struct {
	CounterpartyID      string
	LastMessageID       messaging.MessageID
	LastMessageContent  string
	LastMessageSenderID string
	LastMessageTime     time.Time
	ListingRef          string
	UnreadCount         int
}

// Summarize groups userID's messages by counterparty. msgs must be in creation
// order; ties on CreatedAt resolve to the later message. The result is sorted
// most recent conversation first.
func Summarize(userID string, msgs []messaging.Message) []ConversationSummary {
	involved := lo.Filter(msgs, func(m messaging.Message, _ int) bool {
		return m.Involves(userID) && m.SenderID != m.ReceiverID
	})
	groups := lo.GroupBy(involved, func(m messaging.Message) string {
		return m.Counterparty(userID)
	})

	summaries := make([]ConversationSummary, 0, len(groups))
	for counterparty, thread := range groups {
		last := thread[0]
		for _, m := range thread[1:] {
			if !m.CreatedAt.Before(last.CreatedAt) {
				last = m
			}
		}
		summaries = append(summaries, ConversationSummary{
			CounterpartyID:      counterparty,
			LastMessageID:       last.ID,
			LastMessageContent:  last.Content,
			LastMessageSenderID: last.SenderID,
			LastMessageTime:     last.CreatedAt,
			ListingRef:          last.ListingRef,
			UnreadCount: lo.CountBy(thread, func(m messaging.Message) bool {
				return m.ReceiverID == userID && !m.IsRead
			}),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastMessageTime.Equal(summaries[j].LastMessageTime) {
			return summaries[i].LastMessageTime.After(summaries[j].LastMessageTime)
		}
		return summaries[i].CounterpartyID < summaries[j].CounterpartyID
	})
	return summaries
}
