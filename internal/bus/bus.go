// Package bus decouples channel read loops from command handling.
package bus

import "context"

// DefaultBuffer is the inbound queue depth used by the run command.
const DefaultBuffer = 256

// MessageBus is an in-process MessageRouter backed by a buffered channel.
type MessageBus struct {
	inbound chan InboundMessage
}

var _ MessageRouter = (*MessageBus)(nil)

func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MessageBus{inbound: make(chan InboundMessage, buffer)}
}

// PublishInbound queues msg, blocking while the queue is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound waits for the next message. It returns false once ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// Pending reports how many messages are queued.
func (b *MessageBus) Pending() int { return len(b.inbound) }
