package command

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	keyHelp     = "!help"
	keyMarkAll  = "!even"
	keyRaffle   = "!sorteio"
	keyAnnounce = "!anuncio"
	keyRandom   = "!num"
	keyRemove   = "!ban"

	broadcastMarker = "-b "
)

var rangePattern = regexp.MustCompile(`(?i)^(-?\d+)\s*a\s*(-?\d+)`)

type prefixCommand struct {
	key  string
	kind Kind
}

// Ordered so that no keyword is a prefix of a later one.
var prefixCommands = []prefixCommand{
	{keyAnnounce, KindAnnounce},
	{keyRandom, KindRandomNumber},
	{keyRemove, KindRemoveParticipant},
}

// Parse classifies a message body. Unrecognized text yields KindNone and a
// nil error. A recognized command with malformed arguments yields its Kind
// together with a *ValidationError, so callers can authorize before
// reporting the input problem.
func Parse(body string, mentions []string) (Command, error) {
	text := strings.TrimSpace(body)

	switch {
	case strings.EqualFold(text, keyHelp):
		return Command{Kind: KindHelp}, nil
	case strings.EqualFold(text, keyMarkAll):
		return Command{Kind: KindMarkAll}, nil
	case strings.EqualFold(text, keyRaffle):
		return Command{Kind: KindRaffle}, nil
	}

	for _, pc := range prefixCommands {
		if !hasKeyword(text, pc.key) {
			continue
		}
		payload := strings.TrimSpace(text[len(pc.key):])
		switch pc.kind {
		case KindAnnounce:
			return parseAnnounce(payload)
		case KindRandomNumber:
			return parseRange(payload)
		case KindRemoveParticipant:
			return parseRemove(payload, mentions)
		}
	}
	return Command{Kind: KindNone}, nil
}

// hasKeyword matches key case-insensitively at the start of s. Anything may
// follow it: "!anuncioTexto" announces "Texto" and "!numero" is "!num".
func hasKeyword(s, key string) bool {
	return len(s) >= len(key) && strings.EqualFold(s[:len(key)], key)
}

func parseAnnounce(payload string) (Command, error) {
	cmd := Command{Kind: KindAnnounce, Payload: payload, Text: payload}
	if payload == "" {
		return cmd, invalid(KindAnnounce, ErrEmptyPayload, "")
	}
	if strings.HasPrefix(payload, broadcastMarker) {
		cmd.Broadcast = true
		cmd.Text = strings.TrimSpace(payload[len(broadcastMarker):])
	}
	return cmd, nil
}

func parseRange(payload string) (Command, error) {
	cmd := Command{Kind: KindRandomNumber, Payload: payload}
	m := rangePattern.FindStringSubmatch(payload)
	if m == nil {
		return cmd, invalid(KindRandomNumber, ErrInvalidFormat, payload)
	}
	lo, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return cmd, invalid(KindRandomNumber, ErrInvalidFormat, err.Error())
	}
	hi, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return cmd, invalid(KindRandomNumber, ErrInvalidFormat, err.Error())
	}
	cmd.Min, cmd.Max = int(lo), int(hi)
	if cmd.Min >= cmd.Max {
		return cmd, invalid(KindRandomNumber, ErrInvalidRange, strconv.Itoa(cmd.Min)+" >= "+strconv.Itoa(cmd.Max))
	}
	return cmd, nil
}

func parseRemove(payload string, mentions []string) (Command, error) {
	cmd := Command{Kind: KindRemoveParticipant, Payload: payload}
	switch len(mentions) {
	case 0:
		return cmd, invalid(KindRemoveParticipant, ErrMissingTarget, "no mention")
	case 1:
		cmd.Target = mentions[0]
		return cmd, nil
	default:
		return cmd, invalid(KindRemoveParticipant, ErrMissingTarget, strconv.Itoa(len(mentions))+" mentions, want exactly one")
	}
}
