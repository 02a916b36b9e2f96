package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/groupcast/groupcast/internal/bus"
	"github.com/groupcast/groupcast/internal/chat"
	"github.com/groupcast/groupcast/internal/config"
)

type bridgeRequest struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeBridge is a minimal bridge server. onConnect runs for every accepted
// socket with the connection index; answer decides the response to a request,
// returning ok=false to leave it unanswered.
type fakeBridge struct {
	srv   *httptest.Server
	conns atomic.Int32

	mu       sync.Mutex
	auth     []string
	requests []bridgeRequest

	onConnect connectFunc
	answer    answerFunc
}

type (
	connectFunc func(n int, conn *websocket.Conn) bool
	answerFunc  func(req bridgeRequest) (result any, errMsg string, ok bool)
)

func newFakeBridge(t *testing.T, onConnect connectFunc, answer answerFunc) *fakeBridge {
	t.Helper()
	fb := &fakeBridge{onConnect: onConnect, answer: answer}
	upgrader := websocket.Upgrader{}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := int(fb.conns.Add(1))
		fb.mu.Lock()
		fb.auth = append(fb.auth, r.Header.Get("Authorization"))
		fb.mu.Unlock()

		if fb.onConnect != nil && !fb.onConnect(n, conn) {
			return
		}

		for {
			var req bridgeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			fb.mu.Lock()
			fb.requests = append(fb.requests, req)
			fb.mu.Unlock()

			if fb.answer == nil {
				continue
			}
			result, errMsg, ok := fb.answer(req)
			if !ok {
				continue
			}
			resp := map[string]any{"type": "response", "id": req.ID}
			if errMsg != "" {
				resp["error"] = errMsg
			} else if result != nil {
				resp["result"] = result
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBridge) url() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func (fb *fakeBridge) request(method string) (bridgeRequest, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, r := range fb.requests {
		if r.Method == method {
			return r, true
		}
	}
	return bridgeRequest{}, false
}

func testBridgeConfig(url string) config.BridgeConfig {
	return config.BridgeConfig{
		URL:            url,
		Token:          "secret",
		RequestTimeout: config.Duration(2 * time.Second),
		ReconnectMin:   config.Duration(10 * time.Millisecond),
		ReconnectMax:   config.Duration(50 * time.Millisecond),
		GroupPolicy:    "open",
	}
}

func startChannel(t *testing.T, cfg config.BridgeConfig) (*Channel, *bus.MessageBus) {
	t.Helper()
	b := bus.New(8)
	ch, err := New(cfg, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ch.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ch, b
}

func consume(t *testing.T, b *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	require.True(t, ok, "no inbound message")
	return msg
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(config.BridgeConfig{}, bus.New(1))
	require.Error(t, err)
}

func TestChannel_NotConnected(t *testing.T) {
	ch, err := New(testBridgeConfig("ws://127.0.0.1:1"), bus.New(1))
	require.NoError(t, err)

	err = ch.SendMessage(context.Background(), "x@c.us", "hi", chat.SendOptions{})
	require.ErrorIs(t, err, ErrNotConnected)
	require.False(t, ch.Connected())
}

func TestChannel_ForwardsMessagesAndCalls(t *testing.T) {
	onConnect := func(_ int, conn *websocket.Conn) bool {
		_ = conn.WriteJSON(map[string]any{
			"type": "message", "id": "m0", "from": "bot@c.us", "chat": "120363@g.us",
			"content": "!even", "from_me": true,
		})
		_ = conn.WriteJSON(map[string]any{
			"type": "message", "id": "m1", "from": "5511@c.us", "chat": "120363@g.us",
			"content": "!ban @5522", "mentions": []string{"5522@c.us"}, "from_name": "Ana",
		})
		return true
	}
	answer := func(req bridgeRequest) (any, string, bool) {
		switch req.Method {
		case "get_chat":
			return map[string]any{
				"id":       "120363@g.us",
				"is_group": true,
				"participants": []map[string]any{
					{"id": "5511@c.us", "is_admin": true},
					{"id": "5522@c.us"},
				},
			}, "", true
		case "get_contact":
			return nil, "contact not found", true
		case "send_message":
			return map[string]any{"id": "sent-1"}, "", true
		default:
			return nil, "", false
		}
	}
	fb := newFakeBridge(t, onConnect, answer)

	cfg := testBridgeConfig(fb.url())
	cfg.RequestTimeout = config.Duration(150 * time.Millisecond)
	ch, b := startChannel(t, cfg)

	msg := consume(t, b)
	require.Equal(t, "m1", msg.MessageID)
	require.Equal(t, "whatsapp", msg.Channel)
	require.Equal(t, "5511@c.us", msg.SenderID)
	require.Equal(t, "Ana", msg.SenderName)
	require.Equal(t, "120363@g.us", msg.ChatID)
	require.Equal(t, []string{"5522@c.us"}, msg.Mentions)
	require.True(t, msg.IsGroup())
	require.True(t, ch.Connected())

	fb.mu.Lock()
	require.Equal(t, []string{"Bearer secret"}, fb.auth)
	fb.mu.Unlock()

	ctx := context.Background()

	conv, err := ch.GetChat(ctx, "120363@g.us")
	require.NoError(t, err)
	require.True(t, conv.IsGroup)
	require.Len(t, conv.Participants, 2)
	require.True(t, conv.IsAdmin("5511@c.us"))
	require.False(t, conv.IsAdmin("5522@c.us"))

	err = ch.SendMessage(ctx, "120363@g.us", "@5522", chat.SendOptions{
		Mentions:        []string{"5522@c.us"},
		QuotedMessageID: "m1",
	})
	require.NoError(t, err)
	req, ok := fb.request("send_message")
	require.True(t, ok)
	var sent sendParams
	require.NoError(t, json.Unmarshal(req.Params, &sent))
	require.Equal(t, sendParams{
		To:              "120363@g.us",
		Content:         "@5522",
		Mentions:        []string{"5522@c.us"},
		QuotedMessageID: "m1",
	}, sent)

	_, err = ch.GetContactByID(ctx, "5599@c.us")
	var berr *BridgeError
	require.True(t, errors.As(err, &berr))
	require.Equal(t, "get_contact", berr.Method)
	require.Equal(t, "contact not found", berr.Message)

	err = ch.RemoveParticipants(ctx, "120363@g.us", []string{"5522@c.us"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	req, ok = fb.request("remove_participants")
	require.True(t, ok)
	require.JSONEq(t, `{"chat_id":"120363@g.us","participants":["5522@c.us"]}`, string(req.Params))
}

func TestChannel_StopEndsStart(t *testing.T) {
	fb := newFakeBridge(t, nil, nil)
	ch, err := New(testBridgeConfig(fb.url()), bus.New(1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.Start(context.Background()) }()

	require.Eventually(t, ch.Connected, 3*time.Second, 10*time.Millisecond)
	require.True(t, ch.IsRunning())

	require.NoError(t, ch.Stop(context.Background()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	require.False(t, ch.Connected())
	require.False(t, ch.IsRunning())
}

func TestChannel_ContactNumberFallsBackToID(t *testing.T) {
	fb := newFakeBridge(t, nil, func(bridgeRequest) (any, string, bool) {
		return map[string]any{}, "", true
	})
	ch, _ := startChannel(t, testBridgeConfig(fb.url()))

	require.Eventually(t, ch.Connected, 3*time.Second, 10*time.Millisecond)

	contact, err := ch.GetContactByID(context.Background(), "5533@c.us")
	require.NoError(t, err)
	require.Equal(t, chat.Contact{ID: "5533@c.us", Number: "5533"}, contact)
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	fb := newFakeBridge(t, func(n int, conn *websocket.Conn) bool {
		if n == 1 {
			return false
		}
		_ = conn.WriteJSON(map[string]any{
			"type": "message", "id": "after-reconnect", "from": "5511@c.us", "content": "oi",
		})
		return true
	}, nil)
	_, b := startChannel(t, testBridgeConfig(fb.url()))

	msg := consume(t, b)
	require.Equal(t, "after-reconnect", msg.MessageID)
	require.Equal(t, "5511@c.us", msg.ChatID)
	require.False(t, msg.IsGroup())
	require.GreaterOrEqual(t, int(fb.conns.Load()), 2)
}

func TestChannel_GroupPolicyDropsMessages(t *testing.T) {
	fb := newFakeBridge(t, func(_ int, conn *websocket.Conn) bool {
		_ = conn.WriteJSON(map[string]any{
			"type": "message", "id": "blocked", "from": "1@c.us", "chat": "999@g.us", "content": "!even",
		})
		_ = conn.WriteJSON(map[string]any{
			"type": "message", "id": "allowed", "from": "1@c.us", "chat": "120363@g.us", "content": "!even",
		})
		return true
	}, nil)
	cfg := testBridgeConfig(fb.url())
	cfg.GroupPolicy = "allowlist"
	cfg.AllowFrom = config.FlexibleStringSlice{"120363@g.us"}
	_, b := startChannel(t, cfg)

	msg := consume(t, b)
	require.Equal(t, "allowed", msg.MessageID)
	require.Zero(t, b.Pending())
}
