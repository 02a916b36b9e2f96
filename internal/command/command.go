// Package command turns group chat messages into bot commands and executes
// them: mass mentions, announcements, raffles, number draws and removals.
package command

// Kind identifies a recognized command.
type Kind int

const (
	KindNone Kind = iota
	KindHelp
	KindMarkAll
	KindAnnounce
	KindRaffle
	KindRandomNumber
	KindRemoveParticipant
)

var kindNames = map[Kind]string{
	KindNone:              "none",
	KindHelp:              "help",
	KindMarkAll:           "mark_all",
	KindAnnounce:          "announce",
	KindRaffle:            "raffle",
	KindRandomNumber:      "random_number",
	KindRemoveParticipant: "remove_participant",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// RequiresAdmin reports whether only group administrators may run k.
func (k Kind) RequiresAdmin() bool {
	switch k {
	case KindNone, KindHelp:
		return false
	default:
		return true
	}
}

// Command is a parsed chat command.
type Command struct {
	Kind Kind
	// Payload is the trimmed text after the keyword, verbatim.
	Payload string
	// Text is the announcement body (Payload without the broadcast marker).
	Text string
	// Broadcast selects direct-message delivery for announcements.
	Broadcast bool
	// Min and Max bound a random number draw, inclusive.
	Min, Max int
	// Target is the participant id to remove.
	Target string
}
