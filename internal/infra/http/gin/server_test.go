package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/chat"
	"marketchat/internal/app/dto"
	"marketchat/internal/app/events"
	"marketchat/internal/app/gateway"
	"marketchat/internal/app/presence"
	"marketchat/internal/app/presence/presencetest"
	"marketchat/internal/app/services/auth"
	"marketchat/internal/domain/messaging"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/http/ws"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

var testSecret = []byte("handler-secret")

type fakeAttachments struct {
	owner       string
	contentType string
}

func (f *fakeAttachments) Put(_ context.Context, ownerID string, _ []byte, contentType, extension string) (string, error) {
	f.owner = ownerID
	f.contentType = contentType
	return "https://files.example/" + ownerID + "/a" + extension, nil
}

type brokenRepo struct {
	messaging.Repository
}

func (brokenRepo) ListForUser(context.Context, string) ([]messaging.Message, error) {
	return nil, errors.New("store offline")
}

type testAPI struct {
	router   *gin.Engine
	svc      *chat.Service
	registry *presence.Registry
	files    *fakeAttachments
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	users := memory.NewUserDirectory(
		domainuser.Profile{ID: "alice", FirstName: "Alice"},
		domainuser.Profile{ID: "bob", FirstName: "Bob"},
	)
	registry := presence.NewRegistry(nil)
	svc := &chat.Service{
		Store:    chat.MessageStore{Repo: memory.NewMessageRepository(), Catalog: memory.NewListingCatalog("listing-1")},
		Blocks:   memory.NewBlockRepository(),
		Users:    users,
		Presence: registry,
	}
	authMW := AuthMiddleware{Service: &auth.Service{Tokens: security.JWTVerifier{Secret: testSecret}, Users: users}}
	files := &fakeAttachments{}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:   ChatHandler{Chat: svc},
		Blocks: BlockHandler{Chat: svc},
		Realtime: RealtimeHandler{
			Dispatcher: &gateway.Gateway{Chat: svc, Presence: registry},
			Presence:   registry,
			Options:    ws.Options{SendBuffer: 8},
		},
		Attachments:    AttachmentHandler{Store: files, MaxBytes: 1024},
		AuthMiddleware: authMW.Handle,
	})
	return &testAPI{router: router, svc: svc, registry: registry, files: files}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := security.JWTIssuer{Secret: testSecret}.Issue(userID)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessageOverREST(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	bobConn := presencetest.NewConn()
	api.registry.Admit("bob", bobConn)

	rec := api.do(t, http.MethodPost, "/api/v1/messages", "alice", gin.H{"receiver_id": "bob", "content": "Olá", "listing_ref": "listing-1"})
	req.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[dto.SentMessage](t, rec)
	req.Equal(chat.StatusDelivered, sent.Status)
	req.Equal("Olá", sent.Message.Content)
	req.Len(bobConn.Named(events.MessageReceived), 1)

	rec = api.do(t, http.MethodPost, "/api/v1/messages", "bob", gin.H{"receiver_id": "alice", "content": "Oi"})
	req.Equal(http.StatusCreated, rec.Code)
	req.Equal(chat.StatusSent, decode[dto.SentMessage](t, rec).Status)
}

func TestSendMessageErrors(t *testing.T) {
	cases := map[string]struct {
		body any
		want int
	}{
		"bad json":        {body: "nope", want: http.StatusBadRequest},
		"empty content":   {body: gin.H{"receiver_id": "bob", "content": " "}, want: http.StatusBadRequest},
		"self":            {body: gin.H{"receiver_id": "alice", "content": "hi"}, want: http.StatusBadRequest},
		"unknown user":    {body: gin.H{"receiver_id": "ghost", "content": "hi"}, want: http.StatusNotFound},
		"unknown listing": {body: gin.H{"receiver_id": "bob", "content": "hi", "listing_ref": "x"}, want: http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			api := newTestAPI(t)
			rec := api.do(t, http.MethodPost, "/api/v1/messages", "alice", tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestBlockFlow(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/blocks/alice", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/messages", "alice", gin.H{"receiver_id": "bob", "content": "hi"})
	req.Equal(http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/blocks/bob", "alice", nil)
	req.Equal(http.StatusOK, rec.Code)
	status := decode[dto.BlockStatus](t, rec)
	req.False(status.Blocked)
	req.True(status.BlockedBy)

	rec = api.do(t, http.MethodGet, "/api/v1/blocks", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Len(decode[dto.BlockedUserList](t, rec).Items, 1)

	rec = api.do(t, http.MethodDelete, "/api/v1/blocks/alice", "bob", nil)
	req.Equal(http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/v1/blocks/alice", "bob", nil)
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestConversationEndpoints(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	for _, content := range []string{"one", "two", "three"} {
		rec := api.do(t, http.MethodPost, "/api/v1/messages", "alice", gin.H{"receiver_id": "bob", "content": content})
		req.Equal(http.StatusCreated, rec.Code)
	}

	rec := api.do(t, http.MethodGet, "/api/v1/conversations", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	list := decode[dto.ConversationList](t, rec)
	req.Len(list.Items, 1)
	req.Equal(3, list.Items[0].UnreadCount)
	req.Equal("three", list.Items[0].LastMessageContent)

	rec = api.do(t, http.MethodGet, "/api/v1/conversations/alice/messages?page=1&page_size=2&mark_read=false", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	page := decode[dto.ChatMessageList](t, rec)
	req.Len(page.Items, 2)
	req.Equal("two", page.Items[0].Content)
	req.Equal("three", page.Items[1].Content)

	rec = api.do(t, http.MethodGet, "/api/v1/messages/unread", "bob", nil)
	unread := decode[dto.ChatMessageList](t, rec)
	req.Len(unread.Items, 3)

	rec = api.do(t, http.MethodPost, "/api/v1/messages/"+unread.Items[0].ID+"/read", "alice", nil)
	req.Equal(http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/v1/messages/"+unread.Items[0].ID+"/read", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.True(decode[dto.ChatMessage](t, rec).IsRead)

	rec = api.do(t, http.MethodGet, "/api/v1/conversations/alice/messages", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/v1/messages/unread", "bob", nil)
	req.Empty(decode[dto.ChatMessageList](t, rec).Items)

	rec = api.do(t, http.MethodPost, "/api/v1/conversations/alice/read", "bob", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"updated":0}`, rec.Body.String())

	rec = api.do(t, http.MethodDelete, "/api/v1/messages/"+unread.Items[1].ID, "alice", nil)
	req.Equal(http.StatusOK, rec.Code)
	deleted := decode[dto.ChatMessage](t, rec)
	req.True(deleted.Deleted)
	req.Equal(messaging.DeletedPlaceholder, deleted.Content)
}

func TestStoreOutageIsServiceUnavailable(t *testing.T) {
	api := newTestAPI(t)
	api.svc.Store.Repo = brokenRepo{Repository: api.svc.Store.Repo}
	rec := api.do(t, http.MethodGet, "/api/v1/conversations", "alice", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "store offline")
}

func TestPresenceOnline(t *testing.T) {
	api := newTestAPI(t)
	api.registry.Admit("bob", presencetest.NewConn())
	rec := api.do(t, http.MethodGet, "/api/v1/presence/online", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"bob"}, decode[dto.OnlineUsers](t, rec).Users)
}

func TestRealtimeHandshakeChecks(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/ws", "alice", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodGet, "/ws?userId=bob", "alice", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodGet, "/ws?userId=alice", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeSession(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=alice&token=" + token(t, "alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var env events.Envelope
	req.NoError(conn.ReadJSON(&env))
	req.Equal(events.UserOnline, env.Event)
	req.Eventually(func() bool { return api.registry.IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	for {
		req.NoError(conn.ReadJSON(&env))
		if env.Event == events.Pong {
			break
		}
	}

	req.NoError(conn.Close())
	req.Eventually(func() bool { return !api.registry.IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)
}

func TestAttachmentUpload(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

	upload := func(data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "photo.bin")
		req.NoError(err)
		_, err = part.Write(data)
		req.NoError(err)
		req.NoError(mw.Close())
		httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", &body)
		httpReq.Header.Set("Content-Type", mw.FormDataContentType())
		httpReq.Header.Set("Authorization", "Bearer "+token(t, "alice"))
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, httpReq)
		return rec
	}

	rec := upload(png)
	req.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	att := decode[dto.Attachment](t, rec)
	req.Equal("image/png", att.ContentType)
	req.Equal("https://files.example/alice/a.png", att.URL)
	req.Equal("alice", api.files.owner)

	rec = upload([]byte("plain text is not an attachment"))
	req.Equal(http.StatusUnsupportedMediaType, rec.Code)

	rec = upload(bytes.Repeat([]byte{0x89}, 2048))
	req.Equal(http.StatusRequestEntityTooLarge, rec.Code)
}
