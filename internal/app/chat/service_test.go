package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/events"
	"marketchat/internal/app/presence"
	"marketchat/internal/app/presence/presencetest"
	"marketchat/internal/domain/messaging"
	"marketchat/internal/domain/shared/failure"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/storage/memory"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []chat.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification chat.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) all() []chat.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]chat.Notification(nil), n.sent...)
}

type failingRepo struct {
	messaging.Repository
	err error
}

func (r failingRepo) Create(context.Context, *messaging.Message) error {
	return r.err
}

type fixture struct {
	svc      *chat.Service
	repo     *memory.MessageRepository
	blocks   *memory.BlockRepository
	catalog  *memory.ListingCatalog
	registry *presence.Registry
	notifier *recordingNotifier
	seq      int
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     memory.NewMessageRepository(),
		blocks:   memory.NewBlockRepository(),
		catalog:  memory.NewListingCatalog("listing-1"),
		registry: presence.NewRegistry(nil),
		notifier: &recordingNotifier{},
		clock:    time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	users := memory.NewUserDirectory(
		domainuser.Profile{ID: "alice", FirstName: "Alice", LastName: "Silva", AvatarURL: "https://cdn.example/alice.png"},
		domainuser.Profile{ID: "bob", FirstName: "Bob", LastName: "Costa"},
		domainuser.Profile{ID: "carol", FirstName: "Carol"},
	)
	f.svc = &chat.Service{
		Store:    chat.MessageStore{Repo: f.repo, Catalog: f.catalog},
		Blocks:   f.blocks,
		Users:    users,
		Presence: f.registry,
		Notifier: f.notifier,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
		NewID: func() (messaging.MessageID, error) {
			f.seq++
			return messaging.MessageID(fmt.Sprintf("msg-%03d", f.seq)), nil
		},
	}
	return f
}

func (f *fixture) connect(userID string) *presencetest.Conn {
	conn := presencetest.NewConn()
	f.registry.Admit(userID, conn)
	conn.Reset()
	return conn
}

func TestSendDeliversToOnlineReceiver(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	aliceConn := f.connect("alice")
	bobConn := f.connect("bob")

	res, err := f.svc.Send(context.Background(), chat.SendParams{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "  Olá  ",
		ListingRef: "listing-1",
	})
	req.NoError(err)
	req.Equal(chat.StatusDelivered, res.Status)
	req.Equal("Olá", res.Message.Content)

	received := bobConn.Named(events.MessageReceived)
	req.Len(received, 1)
	evt := received[0].(events.MessageReceivedEvent)
	req.Equal("Olá", evt.Content)
	req.Equal("alice", evt.SenderID)
	req.Equal("Alice", evt.Sender.FirstName)
	req.Equal("https://cdn.example/alice.png", evt.Sender.Avatar)
	req.Equal("listing-1", evt.ListingRef)

	acks := aliceConn.Named(events.MessageSent)
	req.Len(acks, 1)
	ack := acks[0].(events.MessageSentEvent)
	req.Equal(string(res.Message.ID), ack.ID)
	req.Equal(chat.StatusDelivered, ack.Status)
	req.Empty(f.notifier.all())

	stored, err := f.repo.ByID(context.Background(), res.Message.ID)
	req.NoError(err)
	req.False(stored.IsRead)
}

func TestSendToOfflineReceiverNotifies(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	aliceConn := f.connect("alice")

	res, err := f.svc.Send(context.Background(), chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "are you there?"})
	req.NoError(err)
	req.Equal(chat.StatusSent, res.Status)

	ack := aliceConn.Named(events.MessageSent)[0].(events.MessageSentEvent)
	req.Equal(chat.StatusSent, ack.Status)

	notes := f.notifier.all()
	req.Len(notes, 1)
	req.Equal(chat.NotificationMessageCreated, notes[0].Type)
	req.Equal("bob", notes[0].RecipientID)
	req.Equal("Alice Silva", notes[0].SenderName)
	req.Equal(string(res.Message.ID), notes[0].MessageID)
}

func TestSendWithoutSenderConnection(t *testing.T) {
	f := newFixture(t)
	bobConn := f.connect("bob")

	res, err := f.svc.Send(context.Background(), chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "from REST"})
	require.NoError(t, err)
	require.Equal(t, chat.StatusDelivered, res.Status)
	require.Len(t, bobConn.Named(events.MessageReceived), 1)
}

func TestSendRejections(t *testing.T) {
	cases := map[string]struct {
		params chat.SendParams
		setup  func(f *fixture)
		want   error
		kind   failure.Kind
	}{
		"empty content": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "   "},
			want:   messaging.ErrEmptyMessage,
			kind:   failure.KindValidation,
		},
		"too long": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: strings.Repeat("a", messaging.MaxContentLength+1)},
			want:   messaging.ErrContentTooLong,
			kind:   failure.KindValidation,
		},
		"self message": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "alice", Content: "me"},
			want:   messaging.ErrSelfMessage,
			kind:   failure.KindValidation,
		},
		"unknown receiver": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "ghost", Content: "hi"},
			want:   messaging.ErrReceiverNotFound,
			kind:   failure.KindNotFound,
		},
		"unknown listing": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "hi", ListingRef: "listing-404"},
			want:   messaging.ErrInvalidReference,
			kind:   failure.KindNotFound,
		},
		"blocked by receiver": {
			params: chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "hi"},
			setup: func(f *fixture) {
				require.NoError(t, f.svc.Block(context.Background(), "bob", "alice"))
			},
			want: messaging.ErrBlocked,
			kind: failure.KindForbidden,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			bobConn := f.connect("bob")
			aliceConn := f.connect("alice")
			if tc.setup != nil {
				tc.setup(f)
			}

			res, err := f.svc.Send(context.Background(), tc.params)
			req.Nil(res)
			req.ErrorIs(err, tc.want)
			req.Equal(tc.kind, failure.KindOf(err))

			stored, err := f.repo.ListForUser(context.Background(), "alice")
			req.NoError(err)
			req.Empty(stored)
			req.Empty(bobConn.Named(events.MessageReceived))
			req.Empty(aliceConn.Named(events.MessageSent))
			req.Empty(f.notifier.all())
		})
	}
}

func TestBlockIsDirectional(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	req.NoError(f.svc.Block(ctx, "bob", "alice"))

	_, err := f.svc.Send(ctx, chat.SendParams{SenderID: "bob", ReceiverID: "alice", Content: "still allowed"})
	req.NoError(err)

	status, err := f.svc.BlockStatus(ctx, "alice", "bob")
	req.NoError(err)
	req.Equal(chat.BlockStatus{Blocked: false, BlockedBy: true}, status)

	req.NoError(f.svc.Unblock(ctx, "bob", "alice"))
	_, err = f.svc.Send(ctx, chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "unblocked"})
	req.NoError(err)

	req.ErrorIs(f.svc.Unblock(ctx, "bob", "alice"), failure.ErrNotFound)
	req.ErrorIs(f.svc.Block(ctx, "bob", "bob"), failure.ErrValidation)
	req.ErrorIs(f.svc.Block(ctx, "bob", "ghost"), failure.ErrNotFound)
}

func TestPersistenceFailureIsTransientAndUndelivered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	bobConn := f.connect("bob")
	f.svc.Store.Repo = failingRepo{Repository: f.repo, err: errors.New("connection reset")}

	_, err := f.svc.Send(context.Background(), chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	req.ErrorIs(err, failure.ErrTransient)
	req.Empty(bobConn.Named(events.MessageReceived))
}

func TestMarkReadNotifiesSenderOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	aliceConn := f.connect("alice")

	res, err := f.svc.Send(ctx, chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "Olá"})
	req.NoError(err)

	_, err = f.svc.MarkRead(ctx, res.Message.ID, "alice")
	req.ErrorIs(err, messaging.ErrNotReceiver)
	req.ErrorIs(err, failure.ErrForbidden)

	msg, err := f.svc.MarkRead(ctx, res.Message.ID, "bob")
	req.NoError(err)
	req.True(msg.IsRead)

	_, err = f.svc.MarkRead(ctx, res.Message.ID, "bob")
	req.NoError(err)

	reads := aliceConn.Named(events.MessageReadNotification)
	req.Len(reads, 1)
	readEvt := reads[0].(events.MessageReadEvent)
	req.Equal(string(res.Message.ID), readEvt.MessageID)
	req.Equal("bob", readEvt.ReadBy)

	_, err = f.svc.MarkRead(ctx, "missing", "bob")
	req.ErrorIs(err, failure.ErrNotFound)
}

func TestTypingRelay(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	bobConn := f.connect("bob")

	req.NoError(f.svc.Typing("alice", "bob", true))
	req.NoError(f.svc.Typing("alice", "bob", false))
	req.NoError(f.svc.Typing("alice", "carol", true))
	req.ErrorIs(f.svc.Typing("alice", "", true), chat.ErrTypingTargetRequired)

	req.Len(bobConn.Named(events.UserTyping), 1)
	req.Len(bobConn.Named(events.UserStoppedTyping), 1)
	req.Equal("alice", bobConn.Named(events.UserTyping)[0].(events.UserTypingEvent).UserID)
}

func TestConversationPagesAndMarksRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "Olá"})
	req.NoError(err)
	_, err = f.svc.Send(ctx, chat.SendParams{SenderID: "bob", ReceiverID: "alice", Content: "Oi"})
	req.NoError(err)
	_, err = f.svc.Send(ctx, chat.SendParams{SenderID: "carol", ReceiverID: "bob", Content: "other thread"})
	req.NoError(err)

	page, err := f.svc.Conversation(ctx, chat.ConversationParams{UserID: "bob", CounterpartyID: "alice", MarkRead: false})
	req.NoError(err)
	req.Len(page, 2)
	req.Equal("Olá", page[0].Content)
	req.Equal("Oi", page[1].Content)

	unread, err := f.svc.Unread(ctx, "bob")
	req.NoError(err)
	req.Len(unread, 2)

	_, err = f.svc.Conversation(ctx, chat.ConversationParams{UserID: "bob", CounterpartyID: "alice", MarkRead: true})
	req.NoError(err)

	unread, err = f.svc.Unread(ctx, "bob")
	req.NoError(err)
	req.Len(unread, 1)
	req.Equal("carol", unread[0].SenderID)

	// alice's own unread state is untouched by bob reading the thread
	unread, err = f.svc.Unread(ctx, "alice")
	req.NoError(err)
	req.Len(unread, 1)
}

func TestConversationsSummaries(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "Olá", ListingRef: "listing-1"})
	req.NoError(err)
	_, err = f.svc.Send(ctx, chat.SendParams{SenderID: "carol", ReceiverID: "bob", Content: "hello"})
	req.NoError(err)
	_, err = f.svc.Send(ctx, chat.SendParams{SenderID: "bob", ReceiverID: "alice", Content: "Oi"})
	req.NoError(err)

	summaries, err := f.svc.Conversations(ctx, "bob")
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal("alice", summaries[0].CounterpartyID)
	req.Equal("Oi", summaries[0].LastMessageContent)
	req.Equal("bob", summaries[0].LastMessageSenderID)
	req.Equal(1, summaries[0].UnreadCount)
	req.Equal("carol", summaries[1].CounterpartyID)
	req.Equal(1, summaries[1].UnreadCount)

	count, err := f.svc.MarkConversationRead(ctx, "bob", "alice")
	req.NoError(err)
	req.EqualValues(1, count)
	summaries, err = f.svc.Conversations(ctx, "bob")
	req.NoError(err)
	req.Zero(summaries[0].UnreadCount)
}

func TestDeleteKeepsIdentity(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Send(ctx, chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "oops"})
	req.NoError(err)

	_, err = f.svc.Delete(ctx, res.Message.ID, "bob")
	req.ErrorIs(err, messaging.ErrNotSender)

	deleted, err := f.svc.Delete(ctx, res.Message.ID, "alice")
	req.NoError(err)
	req.True(deleted.Deleted)
	req.Equal(messaging.DeletedPlaceholder, deleted.Content)
	req.Equal(res.Message.CreatedAt, deleted.CreatedAt)
}

func TestOperationTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	f.svc.OperationTimeout = time.Nanosecond
	f.svc.Users = slowDirectory{}

	_, err := f.svc.Send(context.Background(), chat.SendParams{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	require.ErrorIs(t, err, failure.ErrTransient)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowDirectory struct{}

func (slowDirectory) ByID(ctx context.Context, _ domainuser.ID) (domainuser.Profile, error) {
	<-ctx.Done()
	return domainuser.Profile{}, ctx.Err()
}

func TestMissingDependencies(t *testing.T) {
	svc := &chat.Service{}
	_, err := svc.Send(context.Background(), chat.SendParams{})
	require.Error(t, err)
	require.Empty(t, svc.OnlineUsers())
}
