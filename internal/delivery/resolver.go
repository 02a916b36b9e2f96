// Package delivery builds mention target lists and paces outbound sends so a
// single command never floods the messaging platform.
package delivery

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/groupcast/groupcast/internal/chat"
)

// ResolveParticipants resolves participants into contacts, newest member
// first (reverse of the platform order). A failed lookup is logged and
// skipped; it never aborts the remaining lookups. The result may be empty.
func ResolveParticipants(ctx context.Context, resolver chat.ContactResolver, participants []chat.Participant, log *slog.Logger) []chat.Contact {
	if log == nil {
		log = slog.Default()
	}

	contacts := make([]chat.Contact, 0, len(participants))
	for i := len(participants) - 1; i >= 0; i-- {
		id := participants[i].ID
		contact, err := resolver.GetContactByID(ctx, id)
		if err != nil {
			log.Warn("contact lookup failed", "participant_id", id, "error", err)
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts
}

// Deduplicate drops contacts whose id was already seen, keeping the first
// occurrence in place.
func Deduplicate(contacts []chat.Contact) []chat.Contact {
	return lo.UniqBy(contacts, func(c chat.Contact) string {
		return c.ID
	})
}

// Targets resolves and deduplicates the mention targets of a conversation.
func Targets(ctx context.Context, resolver chat.ContactResolver, participants []chat.Participant, log *slog.Logger) []chat.Contact {
	return Deduplicate(ResolveParticipants(ctx, resolver, participants, log))
}
