// Package channels provides the channel abstraction layer between the
// messaging platform bridge and the command interpreter.
// Channels read platform events and forward them to the message bus.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-runewidth"

	"github.com/groupcast/groupcast/internal/bus"
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"      // Accept all groups
	GroupPolicyAllowlist GroupPolicy = "allowlist" // Only whitelisted groups
	GroupPolicyDisabled  GroupPolicy = "disabled"  // No group messages
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "whatsapp").
	Name() string

	// Start begins listening for messages. Blocks until ctx is done.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a chat is permitted by the channel's allowlist.
	IsAllowed(chatID string) bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name        string
	bus         bus.MessageRouter
	running     atomic.Bool
	allowList   []string
	groupPolicy GroupPolicy
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, msgBus bus.MessageRouter, allowList []string, groupPolicy string) *BaseChannel {
	policy := GroupPolicy(groupPolicy)
	if policy == "" {
		policy = GroupPolicyOpen
	}
	return &BaseChannel{
		name:        name,
		bus:         msgBus,
		allowList:   allowList,
		groupPolicy: policy,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// IsAllowed checks if a chat is permitted by the allowlist. Entries match
// the full id ("1203...@g.us") or the part before "@".
// Empty allowlist means all chats are allowed.
func (c *BaseChannel) IsAllowed(chatID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := chatID
	if idx := strings.IndexByte(chatID, '@'); idx > 0 {
		idPart = chatID[:idx]
	}

	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == chatID || allowed == idPart {
			return true
		}
	}
	return false
}

// CheckPolicy evaluates the group policy for a message. Direct messages are
// always accepted: the interpreter answers them with the redirect reply.
func (c *BaseChannel) CheckPolicy(peerKind, chatID string) bool {
	if peerKind != bus.PeerGroup {
		return true
	}

	switch c.groupPolicy {
	case GroupPolicyDisabled:
		return false
	case GroupPolicyAllowlist:
		return c.IsAllowed(chatID)
	default: // "open"
		return true
	}
}

// HandleMessage applies the group policy and publishes msg to the bus.
// Reports whether the message was forwarded.
// This is the standard way for channels to forward received messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) bool {
	if !c.CheckPolicy(msg.PeerKind, msg.ChatID) {
		return false
	}
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
	return true
}

// Truncate shortens s to at most maxWidth display cells, appending "..."
// if truncated. Multi-byte runes are never split.
func Truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "") + "..."
}
