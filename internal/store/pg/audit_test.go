package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupcast/groupcast/internal/store"
)

// Runs against a real server only when GROUPCAST_TEST_POSTGRES_DSN is set.
func TestAuditStore_Postgres(t *testing.T) {
	dsn := os.Getenv("GROUPCAST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GROUPCAST_TEST_POSTGRES_DSN not set")
	}

	s, err := Open(dsn)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	chatID := "pgtest-" + time.Now().Format("150405.000000") + "@g.us"
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := &store.CommandRecord{
		ChatID: chatID, SenderID: "a@c.us", Kind: "random_number",
		Outcome: store.OutcomeInvalid, Error: "invalid format",
		StartedAt: now, FinishedAt: now.Add(time.Millisecond),
	}
	require.NoError(t, s.Record(ctx, rec))

	got, err := s.Recent(ctx, store.HistoryQuery{ChatID: chatID, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.ID, got[0].ID)
	require.Equal(t, store.OutcomeInvalid, got[0].Outcome)
	require.True(t, got[0].StartedAt.Equal(now))
}
