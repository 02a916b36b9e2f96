package delivery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/groupcast/groupcast/internal/chat"
	"github.com/groupcast/groupcast/internal/chat/mocks"
)

func participants(ids ...string) []chat.Participant {
	out := make([]chat.Participant, len(ids))
	for i, id := range ids {
		out[i] = chat.Participant{ID: id}
	}
	return out
}

func contact(id string) chat.Contact {
	return chat.Contact{ID: id, Number: strings.TrimSuffix(id, "@c.us")}
}

// TestResolveParticipants_SkipsFailures checks that two failed lookups out of
// five leave the other three contacts, in reversed order, with one log line
// per failure.
func TestResolveParticipants_SkipsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockContactResolver(ctrl)

	failing := map[string]bool{"2@c.us": true, "4@c.us": true}
	resolver.EXPECT().GetContactByID(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (chat.Contact, error) {
			if failing[id] {
				return chat.Contact{}, errors.New("lookup timeout")
			}
			return contact(id), nil
		}).Times(5)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	got := ResolveParticipants(context.Background(), resolver,
		participants("1@c.us", "2@c.us", "3@c.us", "4@c.us", "5@c.us"), log)

	require.Equal(t, []chat.Contact{contact("5@c.us"), contact("3@c.us"), contact("1@c.us")}, got)
	require.Equal(t, 2, strings.Count(buf.String(), "contact lookup failed"))
	require.Contains(t, buf.String(), "participant_id=2@c.us")
	require.Contains(t, buf.String(), "participant_id=4@c.us")
}

func TestResolveParticipants_ReverseOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockContactResolver(ctrl)

	gomock.InOrder(
		resolver.EXPECT().GetContactByID(gomock.Any(), "c").Return(contact("c"), nil),
		resolver.EXPECT().GetContactByID(gomock.Any(), "b").Return(contact("b"), nil),
		resolver.EXPECT().GetContactByID(gomock.Any(), "a").Return(contact("a"), nil),
	)

	got := ResolveParticipants(context.Background(), resolver, participants("a", "b", "c"), nil)
	require.Equal(t, []chat.Contact{contact("c"), contact("b"), contact("a")}, got)
}

func TestResolveParticipants_AllFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockContactResolver(ctrl)
	resolver.EXPECT().GetContactByID(gomock.Any(), gomock.Any()).
		Return(chat.Contact{}, errors.New("gone")).Times(2)

	got := ResolveParticipants(context.Background(), resolver, participants("a", "b"), slog.New(slog.DiscardHandler))
	require.Empty(t, got)
}

func TestDeduplicate(t *testing.T) {
	tests := []struct {
		name string
		in   []chat.Contact
		want []chat.Contact
	}{
		{
			name: "empty",
			in:   nil,
			want: []chat.Contact{},
		},
		{
			name: "no duplicates",
			in:   []chat.Contact{contact("a"), contact("b")},
			want: []chat.Contact{contact("a"), contact("b")},
		},
		{
			name: "later duplicates dropped",
			in:   []chat.Contact{contact("a"), contact("b"), contact("a"), contact("c"), contact("b")},
			want: []chat.Contact{contact("a"), contact("b"), contact("c")},
		},
		{
			name: "keyed by id only",
			in:   []chat.Contact{{ID: "a", Number: "1"}, {ID: "a", Number: "2"}},
			want: []chat.Contact{{ID: "a", Number: "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deduplicate(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, Deduplicate(got), "deduplicate must be idempotent")
		})
	}
}

func TestTargets_DeduplicatesResolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockContactResolver(ctrl)
	resolver.EXPECT().GetContactByID(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (chat.Contact, error) {
			return contact(id), nil
		}).Times(4)

	got := Targets(context.Background(), resolver, participants("a", "b", "a", "c"), nil)
	require.Equal(t, []chat.Contact{contact("c"), contact("a"), contact("b")}, got)
}
