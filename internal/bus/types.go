package bus

import "context"

// Peer kinds of an inbound message.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// InboundMessage represents a message received from a channel (the WhatsApp bridge).
type InboundMessage struct {
	Channel    string   `json:"channel"`
	MessageID  string   `json:"message_id"`
	SenderID   string   `json:"sender_id"`
	SenderName string   `json:"sender_name,omitempty"`
	ChatID     string   `json:"chat_id"`
	Content    string   `json:"content"`
	Mentions   []string `json:"mentions,omitempty"`  // platform ids tagged in the message
	PeerKind   string   `json:"peer_kind,omitempty"` // "direct" or "group"
}

// IsGroup reports whether the message was posted in a group chat.
func (m InboundMessage) IsGroup() bool { return m.PeerKind == PeerGroup }

// MessageRouter abstracts inbound message routing between channels and the
// command interpreter.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
}
