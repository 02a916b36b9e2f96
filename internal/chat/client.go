package chat

import "context"

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// SendOptions carries optional send parameters.
type SendOptions struct {
	// Mentions lists contact ids tagged by the message.
	Mentions []string
	// QuotedMessageID makes the message a reply to an earlier one.
	QuotedMessageID string
}

// Client is the messaging platform automation client. Every call may fail
// independently; callers decide whether a failure is fatal.
type Client interface {
	// GetChat returns the conversation with a fresh participant list.
	GetChat(ctx context.Context, chatID string) (*Conversation, error)
	// GetContactByID resolves a participant id into a contact.
	GetContactByID(ctx context.Context, id string) (Contact, error)
	// SendMessage sends text to a chat or to a contact (direct message).
	SendMessage(ctx context.Context, to, text string, opts SendOptions) error
	// RemoveParticipants removes ids from a group chat.
	RemoveParticipants(ctx context.Context, chatID string, ids []string) error
}

// ContactResolver is the subset of Client needed to resolve participants.
type ContactResolver interface {
	GetContactByID(ctx context.Context, id string) (Contact, error)
}
