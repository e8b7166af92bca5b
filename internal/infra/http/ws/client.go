package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketchat/internal/app/events"
	"marketchat/internal/app/presence"
)

var (
	ErrClosed       = errors.New("ws: connection closed")
	ErrSlowConsumer = errors.New("ws: send buffer full")
)

const writeWait = 10 * time.Second

type Options struct {
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	return o
}

// Dispatcher is the transport-agnostic side of a realtime session.
type Dispatcher interface {
	Connect(userID string, conn presence.Conn)
	Disconnect(conn presence.Conn)
	HandleFrame(ctx context.Context, userID string, conn presence.Conn, raw []byte)
}

// Client is one websocket connection. Send never blocks: a full buffer fails
// the push instead of stalling the sender.
type Client struct {
	conn      *websocket.Conn
	userID    string
	opts      Options
	logger    *slog.Logger
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, userID string, opts Options, logger *slog.Logger) *Client {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		userID: userID,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

var _ presence.Conn = (*Client)(nil)

func (c *Client) Send(evt events.Outbound) error {
	payload, err := events.Encode(evt)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops the pumps. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Run registers the client, pumps frames until either side goes away and then
// unregisters it. It blocks for the lifetime of the connection.
func (c *Client) Run(ctx context.Context, d Dispatcher) {
	d.Connect(c.userID, c)
	defer d.Disconnect(c)
	defer c.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump(ctx, d)
	c.Close()
	<-writerDone
}

func (c *Client) readPump(ctx context.Context, d Dispatcher) {
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("realtime read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		d.HandleFrame(ctx, c.userID, c, raw)
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued so a final error event still reaches
// the client before the close frame.
func (c *Client) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// NewUpgrader accepts requests from the configured origins. A "*" entry or an
// empty list allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[strings.TrimRight(origin, "/")]
			return ok
		},
	}
}
