package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/blocks"
	"marketchat/internal/domain/messaging"
	domainuser "marketchat/internal/domain/user"
)

func seedMessages(t *testing.T, repo *MessageRepository, n int) time.Time {
	t.Helper()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		sender, receiver := "alice", "bob"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		msg, err := messaging.NewMessage(messaging.CreateParams{
			ID:         messaging.MessageID(fmt.Sprintf("m-%02d", i)),
			SenderID:   sender,
			ReceiverID: receiver,
			Content:    fmt.Sprintf("message %d", i),
			Now:        start.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), msg))
	}
	return start
}

func TestMessageRepositoryListBetweenPages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessages(t, repo, 5)
	other, err := messaging.NewMessage(messaging.CreateParams{ID: "x-1", SenderID: "carol", ReceiverID: "bob", Content: "hey"})
	req.NoError(err)
	req.NoError(repo.Create(ctx, other))

	first, err := repo.ListBetween(ctx, "bob", "alice", messaging.Page{Number: 1, Size: 2})
	req.NoError(err)
	req.Equal([]messaging.MessageID{"m-03", "m-04"}, ids(first))

	second, err := repo.ListBetween(ctx, "alice", "bob", messaging.Page{Number: 2, Size: 2})
	req.NoError(err)
	req.Equal([]messaging.MessageID{"m-01", "m-02"}, ids(second))

	last, err := repo.ListBetween(ctx, "alice", "bob", messaging.Page{Number: 3, Size: 2})
	req.NoError(err)
	req.Equal([]messaging.MessageID{"m-00"}, ids(last))

	beyond, err := repo.ListBetween(ctx, "alice", "bob", messaging.Page{Number: 9, Size: 2})
	req.NoError(err)
	req.Empty(beyond)
}

func TestMessageRepositoryReadTransitions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessages(t, repo, 4)

	_, _, err := repo.MarkRead(ctx, "m-00", "alice", time.Now())
	req.ErrorIs(err, messaging.ErrNotReceiver)

	msg, changed, err := repo.MarkRead(ctx, "m-00", "bob", time.Now())
	req.NoError(err)
	req.True(changed)
	req.True(msg.IsRead)

	_, changed, err = repo.MarkRead(ctx, "m-00", "bob", time.Now())
	req.NoError(err)
	req.False(changed)

	_, _, err = repo.MarkRead(ctx, "missing", "bob", time.Now())
	req.ErrorIs(err, messaging.ErrNotFound)

	unread, err := repo.ListUnread(ctx, "bob")
	req.NoError(err)
	req.Equal([]messaging.MessageID{"m-02"}, ids(unread))

	count, err := repo.MarkAllRead(ctx, "bob", "alice", time.Now())
	req.NoError(err)
	req.EqualValues(1, count)
	count, err = repo.MarkAllRead(ctx, "bob", "alice", time.Now())
	req.NoError(err)
	req.Zero(count)
}

func TestMessageRepositorySoftDelete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessages(t, repo, 1)

	_, err := repo.SoftDelete(ctx, "m-00", "bob", time.Now())
	req.ErrorIs(err, messaging.ErrNotSender)

	deleted, err := repo.SoftDelete(ctx, "m-00", "alice", time.Now())
	req.NoError(err)
	req.Equal(messaging.DeletedPlaceholder, deleted.Content)

	stored, err := repo.ByID(ctx, "m-00")
	req.NoError(err)
	req.True(stored.Deleted)

	// mutating a returned copy must not leak into the store
	stored.Content = "tampered"
	again, err := repo.ByID(ctx, "m-00")
	req.NoError(err)
	req.Equal(messaging.DeletedPlaceholder, again.Content)
}

func TestMessageRepositoryRejectsDuplicateID(t *testing.T) {
	repo := NewMessageRepository()
	seedMessages(t, repo, 1)
	msg, err := messaging.NewMessage(messaging.CreateParams{ID: "m-00", SenderID: "a", ReceiverID: "b", Content: "dup"})
	require.NoError(t, err)
	require.Error(t, repo.Create(context.Background(), msg))
}

func TestBlockRepository(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewBlockRepository()
	rel, err := blocks.NewRelation("bob", "alice", time.Now())
	req.NoError(err)

	req.NoError(repo.Block(ctx, rel))
	req.NoError(repo.Block(ctx, rel))

	blocked, err := repo.IsBlocked(ctx, "bob", "alice")
	req.NoError(err)
	req.True(blocked)
	blocked, err = repo.IsBlocked(ctx, "alice", "bob")
	req.NoError(err)
	req.False(blocked)

	list, err := repo.ListBlocked(ctx, "bob")
	req.NoError(err)
	req.Len(list, 1)

	req.NoError(repo.Unblock(ctx, "bob", "alice"))
	req.ErrorIs(repo.Unblock(ctx, "bob", "alice"), blocks.ErrNotFound)
}

func TestUserDirectoryAndCatalog(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := NewUserDirectory(domainuser.Profile{ID: "alice", FirstName: "Alice"})
	p, err := dir.ByID(ctx, "alice")
	req.NoError(err)
	req.Equal("Alice", p.FirstName)
	_, err = dir.ByID(ctx, "nobody")
	req.ErrorIs(err, domainuser.ErrNotFound)

	catalog := NewListingCatalog("l-1", " ")
	req.Equal(1, catalog.Len())
	ok, err := catalog.ListingExists(ctx, "l-1")
	req.NoError(err)
	req.True(ok)
	catalog.Remove("l-1")
	ok, err = catalog.ListingExists(ctx, "l-1")
	req.NoError(err)
	req.False(ok)
}

func ids(msgs []messaging.Message) []messaging.MessageID {
	out := make([]messaging.MessageID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestUserDirectoryReadProfiles(t *testing.T) {
	req := require.New(t)
	dir := NewUserDirectory()

	n, err := dir.ReadProfiles(strings.NewReader(`[
		{"id":"ana","first_name":"Ana","last_name":"Silva"},
		{"id":"  "},
		{"id":"bob","avatar_url":"https://cdn.example/bob.png"}
	]`))
	req.NoError(err)
	req.Equal(2, n)

	p, err := dir.ByID(context.Background(), "ana")
	req.NoError(err)
	req.Equal("Ana Silva", p.DisplayName())

	_, err = dir.ReadProfiles(strings.NewReader(`{}`))
	req.ErrorContains(err, "decode profiles")
}
