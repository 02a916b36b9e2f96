package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/groupcast/groupcast/internal/bus"
	"github.com/groupcast/groupcast/internal/channels"
	"github.com/groupcast/groupcast/internal/chat"
	"github.com/groupcast/groupcast/internal/config"
)

const (
	channelName = "whatsapp"
	writeWait   = 10 * time.Second
)

// ErrNotConnected is returned by client calls while the bridge is down.
var ErrNotConnected = errors.New("whatsapp bridge not connected")

// BridgeError is a failure reported by the bridge for one request.
type BridgeError struct {
	Method  string
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge %s: %s", e.Method, e.Message)
}

// envelope is any frame read from the bridge.
// Expected formats:
//
//	{"type":"message","id":"...","from":"...","chat":"...","is_group":true,"content":"...","mentions":[...],"from_me":false,"from_name":"..."}
//	{"type":"response","id":"<request id>","result":{...},"error":"..."}
type envelope struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	From     string          `json:"from"`
	Chat     string          `json:"chat"`
	IsGroup  bool            `json:"is_group"`
	Content  string          `json:"content"`
	Mentions []string        `json:"mentions"`
	FromMe   bool            `json:"from_me"`
	FromName string          `json:"from_name"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error"`
	Status   string          `json:"status"`
}

type request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type reply struct {
	env envelope
	err error
}

// Channel connects to a WhatsApp bridge via WebSocket.
// The bridge (e.g. whatsapp-web.js based) handles the actual WhatsApp
// protocol; this channel forwards its message events to the bus and
// implements chat.Client as JSON request/response calls over the same socket.
type Channel struct {
	*channels.BaseChannel
	config config.BridgeConfig
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan reply
}

var (
	_ chat.Client      = (*Channel)(nil)
	_ channels.Channel = (*Channel)(nil)
)

// New creates a new WhatsApp channel from config.
func New(cfg config.BridgeConfig, msgBus bus.MessageRouter) (*Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("whatsapp bridge url is required")
	}

	base := channels.NewBaseChannel(channelName, msgBus, cfg.AllowFrom, cfg.GroupPolicy)

	return &Channel{
		BaseChannel: base,
		config:      cfg,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending:     make(map[string]chan reply),
	}, nil
}

// Start connects to the bridge and reads events until ctx is done,
// reconnecting with exponential backoff.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.URL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.SetRunning(true)
	defer c.SetRunning(false)

	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	c.listenLoop(ctx)
	return nil
}

// Stop ends a running Start and closes the bridge connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.closeConn()
	c.SetRunning(false)
	return nil
}

// Connected reports whether a bridge connection is open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect(ctx context.Context) error {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.URL)
	return nil
}

func (c *Channel) closeConn() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.failPending(ErrNotConnected)
}

// listenLoop reads messages from the bridge with automatic reconnection.
func (c *Channel) listenLoop(ctx context.Context) {
	minBackoff := c.config.ReconnectMin.Std()
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := c.config.ReconnectMax.Std()
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	backoff := minBackoff
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if !first {
				// Not connected: attempt reconnect with backoff
				slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
			}
			first = false

			if err := c.connect(ctx); err != nil {
				slog.Warn("whatsapp bridge connect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = minBackoff // reset on success
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect", "error", err)
			c.mu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			c.failPending(ErrNotConnected)
			continue
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Warn("invalid whatsapp message JSON", "error", err)
			continue
		}

		switch env.Type {
		case "message":
			c.handleIncomingMessage(env)
		case "response":
			c.resolve(env)
		default:
			slog.Debug("whatsapp bridge event", "type", env.Type, "status", env.Status)
		}
	}
}

// handleIncomingMessage processes a message event received from the bridge.
func (c *Channel) handleIncomingMessage(env envelope) {
	if env.From == "" || env.FromMe {
		return
	}

	chatID := env.Chat
	if chatID == "" {
		chatID = env.From
	}

	// WhatsApp groups have chatID ending in "@g.us"
	peerKind := bus.PeerDirect
	if env.IsGroup || strings.HasSuffix(chatID, "@g.us") {
		peerKind = bus.PeerGroup
	}

	slog.Debug("whatsapp message received",
		"sender_id", env.From,
		"chat_id", chatID,
		"preview", channels.Truncate(env.Content, 50),
	)

	forwarded := c.HandleMessage(bus.InboundMessage{
		MessageID:  env.ID,
		SenderID:   env.From,
		SenderName: env.FromName,
		ChatID:     chatID,
		Content:    env.Content,
		Mentions:   env.Mentions,
		PeerKind:   peerKind,
	})
	if !forwarded {
		slog.Debug("whatsapp message rejected by group policy", "chat_id", chatID)
	}
}

// call sends a request frame and waits for the matching response.
func (c *Channel) call(ctx context.Context, method string, params, out any) error {
	id := uuid.Must(uuid.NewV7()).String()
	ch := make(chan reply, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(request{Type: "request", ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if timeout := c.config.RequestTimeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		if r.env.Error != "" {
			return &BridgeError{Method: method, Message: r.env.Error}
		}
		if out != nil && len(r.env.Result) > 0 {
			if err := json.Unmarshal(r.env.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Channel) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write to bridge: %w", err)
	}
	return nil
}

func (c *Channel) resolve(env envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	c.pendingMu.Unlock()
	if !ok {
		slog.Debug("whatsapp response for unknown request", "id", env.ID)
		return
	}
	select {
	case ch <- reply{env: env}:
	default:
		slog.Debug("whatsapp duplicate response dropped", "id", env.ID)
	}
}

func (c *Channel) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- reply{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

// GetChat returns the conversation with its current participant list.
func (c *Channel) GetChat(ctx context.Context, chatID string) (*chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.call(ctx, "get_chat", map[string]string{"chat_id": chatID}, &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		conv.ID = chatID
	}
	return &conv, nil
}

// GetContactByID resolves a participant id into a contact.
func (c *Channel) GetContactByID(ctx context.Context, id string) (chat.Contact, error) {
	var contact chat.Contact
	if err := c.call(ctx, "get_contact", map[string]string{"id": id}, &contact); err != nil {
		return chat.Contact{}, err
	}
	if contact.ID == "" {
		contact.ID = id
	}
	if contact.Number == "" {
		contact.Number = strings.SplitN(contact.ID, "@", 2)[0]
	}
	return contact, nil
}

type sendParams struct {
	To              string   `json:"to"`
	Content         string   `json:"content"`
	Mentions        []string `json:"mentions,omitempty"`
	QuotedMessageID string   `json:"quoted_message_id,omitempty"`
}

// SendMessage sends text to a chat or contact id.
func (c *Channel) SendMessage(ctx context.Context, to, text string, opts chat.SendOptions) error {
	return c.call(ctx, "send_message", sendParams{
		To:              to,
		Content:         text,
		Mentions:        opts.Mentions,
		QuotedMessageID: opts.QuotedMessageID,
	}, nil)
}

// RemoveParticipants removes ids from a group chat.
func (c *Channel) RemoveParticipants(ctx context.Context, chatID string, ids []string) error {
	return c.call(ctx, "remove_participants", map[string]any{
		"chat_id":      chatID,
		"participants": ids,
	}, nil)
}
