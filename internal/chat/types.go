// Package chat holds the conversation model the bot reads from the
// messaging platform and the client contract used to act on it.
package chat

// Participant is a member reference inside a group conversation.
type Participant struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"is_admin"`
}

// Conversation is a chat as reported by the messaging client.
// Participants keep the order the platform returned them in.
type Conversation struct {
	ID           string        `json:"id"`
	IsGroup      bool          `json:"is_group"`
	Participants []Participant `json:"participants,omitempty"`
}

// Participant returns the entry for id, if present.
func (c *Conversation) Participant(id string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// IsAdmin reports whether id is an administrator of the conversation.
// Unknown ids are not administrators.
func (c *Conversation) IsAdmin(id string) bool {
	p, ok := c.Participant(id)
	return ok && p.IsAdmin
}

// Contact is an addressable entity resolved from a participant id.
type Contact struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

// Mention renders the contact as an inline mention token.
func (c Contact) Mention() string {
	return "@" + c.Number
}

// Message is an inbound chat message handed to the command handler.
type Message struct {
	ID       string
	ChatID   string
	SenderID string
	IsGroup  bool
	Body     string
	Mentions []string
}
