package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"marketchat/internal/domain/messaging"
)

const messageColumns = `id, sender_id, receiver_id, content, listing_ref, attachment_url, has_location, lat, lng, address, is_read, read_at, deleted, created_at, updated_at`

// MessageStore keeps the message row keyed by id plus two lookup tables: one
// per conversation pair (newest first) and one per participant.
type MessageStore struct {
	session *gocql.Session
}

func NewMessageStore(session *gocql.Session) *MessageStore {
	return &MessageStore{session: session}
}

var _ messaging.Repository = (*MessageStore)(nil)

// Create writes the row and its lookup entries in one logged batch, so either
// all of them land or none do.
func (s *MessageStore) Create(ctx context.Context, msg *messaging.Message) error {
	if s.session == nil {
		return errSessionNotInitialized
	}
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, stmt := range createStatements(msg) {
		batch.Query(stmt.cql, stmt.args...)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("scylla: create message %s: %w", msg.ID, err)
	}
	return nil
}

type statement struct {
	cql  string
	args []interface{}
}

func createStatements(msg *messaging.Message) []statement {
	row := newMessageRow(msg)
	created := msg.CreatedAt.UTC()
	return []statement{
		{
			cql:  `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args: row.values(),
		},
		{
			cql:  `INSERT INTO messages_by_pair (pair, created_at, id) VALUES (?, ?, ?)`,
			args: []interface{}{messaging.PairKey(msg.SenderID, msg.ReceiverID), created, row.ID},
		},
		{
			cql:  `INSERT INTO messages_by_user (user_id, created_at, id) VALUES (?, ?, ?)`,
			args: []interface{}{msg.SenderID, created, row.ID},
		},
		{
			cql:  `INSERT INTO messages_by_user (user_id, created_at, id) VALUES (?, ?, ?)`,
			args: []interface{}{msg.ReceiverID, created, row.ID},
		},
	}
}

func (s *MessageStore) ByID(ctx context.Context, id messaging.MessageID) (*messaging.Message, error) {
	if s.session == nil {
		return nil, errSessionNotInitialized
	}
	var row messageRow
	err := s.session.Query(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, string(id)).
		WithContext(ctx).
		Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, messaging.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// MarkRead uses a lightweight transaction so only one concurrent caller sees
// the flag flip.
func (s *MessageStore) MarkRead(ctx context.Context, id messaging.MessageID, readerID string, at time.Time) (*messaging.Message, bool, error) {
	msg, err := s.ByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if msg.ReceiverID != readerID {
		return nil, false, messaging.ErrNotReceiver
	}
	if msg.IsRead {
		return msg, false, nil
	}
	applied, err := s.flipRead(ctx, id, at)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		current, err := s.ByID(ctx, id)
		return current, false, err
	}
	if _, err := msg.MarkRead(readerID, at); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func (s *MessageStore) flipRead(ctx context.Context, id messaging.MessageID, at time.Time) (bool, error) {
	at = at.UTC()
	return s.session.Query(
		`UPDATE messages SET is_read = true, read_at = ?, updated_at = ? WHERE id = ? IF is_read = false`,
		at, at, string(id),
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *MessageStore) MarkAllRead(ctx context.Context, receiverID, senderID string, at time.Time) (int64, error) {
	ids, err := s.pairIDs(ctx, messaging.PairKey(receiverID, senderID), 0)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, id := range ids {
		msg, err := s.ByID(ctx, id)
		if err != nil {
			if errors.Is(err, messaging.ErrNotFound) {
				continue
			}
			return count, err
		}
		if msg.ReceiverID != receiverID || msg.SenderID != senderID || msg.IsRead {
			continue
		}
		applied, err := s.flipRead(ctx, id, at)
		if err != nil {
			return count, err
		}
		if applied {
			count++
		}
	}
	return count, nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, id messaging.MessageID, requesterID string, at time.Time) (*messaging.Message, error) {
	msg, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	wasDeleted := msg.Deleted
	if err := msg.SoftDelete(requesterID, at); err != nil {
		return nil, err
	}
	if wasDeleted {
		return msg, nil
	}
	applied, err := s.session.Query(
		`UPDATE messages SET deleted = true, content = ?, attachment_url = null, has_location = false, lat = null, lng = null, address = null, updated_at = ? WHERE id = ? IF deleted = false`,
		msg.Content, msg.UpdatedAt.UTC(), string(id),
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.ByID(ctx, id)
	}
	return msg, nil
}

func (s *MessageStore) ListBetween(ctx context.Context, userA, userB string, page messaging.Page) ([]messaging.Message, error) {
	page = page.Normalized()
	ids, err := s.pairIDs(ctx, messaging.PairKey(userA, userB), page.Offset()+page.Size)
	if err != nil {
		return nil, err
	}
	window := pageWindow(ids, page)
	msgs, err := s.load(ctx, window)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MessageStore) ListForUser(ctx context.Context, userID string) ([]messaging.Message, error) {
	if s.session == nil {
		return nil, errSessionNotInitialized
	}
	iter := s.session.Query(`SELECT id FROM messages_by_user WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var (
		ids []messaging.MessageID
		id  string
	)
	for iter.Scan(&id) {
		ids = append(ids, messaging.MessageID(id))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *MessageStore) ListUnread(ctx context.Context, receiverID string) ([]messaging.Message, error) {
	msgs, err := s.ListForUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if m.ReceiverID == receiverID && !m.IsRead {
			out = append(out, m)
		}
	}
	return out, nil
}

// pairIDs returns ids newest first. limit <= 0 reads the whole partition.
func (s *MessageStore) pairIDs(ctx context.Context, pair string, limit int) ([]messaging.MessageID, error) {
	if s.session == nil {
		return nil, errSessionNotInitialized
	}
	cql := `SELECT id FROM messages_by_pair WHERE pair = ?`
	args := []interface{}{pair}
	if limit > 0 {
		cql += ` LIMIT ?`
		args = append(args, limit)
	}
	iter := s.session.Query(cql, args...).WithContext(ctx).Iter()
	var (
		ids []messaging.MessageID
		id  string
	)
	for iter.Scan(&id) {
		ids = append(ids, messaging.MessageID(id))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

// load resolves index ids in order, skipping rows that vanished in between.
func (s *MessageStore) load(ctx context.Context, ids []messaging.MessageID) ([]messaging.Message, error) {
	out := make([]messaging.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.ByID(ctx, id)
		if err != nil {
			if errors.Is(err, messaging.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

// pageWindow cuts one page out of a newest-first id list.
func pageWindow(ids []messaging.MessageID, page messaging.Page) []messaging.MessageID {
	page = page.Normalized()
	start := page.Offset()
	if start >= len(ids) {
		return nil
	}
	end := start + page.Size
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}

type messageRow struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Content       string
	ListingRef    string
	AttachmentURL string
	HasLocation   bool
	Lat           float64
	Lng           float64
	Address       string
	IsRead        bool
	ReadAt        time.Time
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newMessageRow(msg *messaging.Message) messageRow {
	row := messageRow{
		ID:            string(msg.ID),
		SenderID:      msg.SenderID,
		ReceiverID:    msg.ReceiverID,
		Content:       msg.Content,
		ListingRef:    msg.ListingRef,
		AttachmentURL: msg.AttachmentURL,
		IsRead:        msg.IsRead,
		ReadAt:        msg.ReadAt,
		Deleted:       msg.Deleted,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
	if msg.Location != nil {
		row.HasLocation = true
		row.Lat = msg.Location.Lat
		row.Lng = msg.Location.Lng
		row.Address = msg.Location.Address
	}
	return row
}

// values follows messageColumns.
func (r messageRow) values() []interface{} {
	return []interface{}{
		r.ID, r.SenderID, r.ReceiverID, r.Content, r.ListingRef, r.AttachmentURL,
		r.HasLocation, r.Lat, r.Lng, r.Address,
		r.IsRead, nullableTime(r.ReadAt), r.Deleted,
		nullableTime(r.CreatedAt), nullableTime(r.UpdatedAt),
	}
}

func (r *messageRow) dest() []interface{} {
	return []interface{}{
		&r.ID, &r.SenderID, &r.ReceiverID, &r.Content, &r.ListingRef, &r.AttachmentURL,
		&r.HasLocation, &r.Lat, &r.Lng, &r.Address,
		&r.IsRead, &r.ReadAt, &r.Deleted,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

func (r messageRow) toDomain() *messaging.Message {
	msg := &messaging.Message{
		ID:            messaging.MessageID(r.ID),
		SenderID:      r.SenderID,
		ReceiverID:    r.ReceiverID,
		Content:       r.Content,
		ListingRef:    r.ListingRef,
		AttachmentURL: r.AttachmentURL,
		IsRead:        r.IsRead,
		ReadAt:        fromTimestamp(r.ReadAt),
		Deleted:       r.Deleted,
		CreatedAt:     fromTimestamp(r.CreatedAt),
		UpdatedAt:     fromTimestamp(r.UpdatedAt),
	}
	if r.HasLocation {
		msg.Location = &messaging.Location{Lat: r.Lat, Lng: r.Lng, Address: r.Address}
	}
	return msg
}
