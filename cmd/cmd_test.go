package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groupcast/groupcast/internal/bus"
	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store"
)

func TestToChatMessage(t *testing.T) {
	m := toChatMessage(bus.InboundMessage{
		MessageID: "m1",
		SenderID:  "5511@c.us",
		ChatID:    "120363@g.us",
		Content:   "!even",
		Mentions:  []string{"5522@c.us"},
		PeerKind:  bus.PeerGroup,
	})
	require.Equal(t, "m1", m.ID)
	require.Equal(t, "120363@g.us", m.ChatID)
	require.Equal(t, "5511@c.us", m.SenderID)
	require.True(t, m.IsGroup)
	require.Equal(t, "!even", m.Body)
	require.Equal(t, []string{"5522@c.us"}, m.Mentions)

	direct := toChatMessage(bus.InboundMessage{SenderID: "5511@c.us", ChatID: "5511@c.us", PeerKind: bus.PeerDirect})
	require.False(t, direct.IsGroup)
}

func TestSettingsFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.BatchSize = 10
	cfg.Delivery.DirectDelay = config.Duration(50 * time.Millisecond)
	cfg.Commands.AllowBroadcast = false
	cfg.Commands.RedirectReply = "só em grupos"

	s := settingsFrom(cfg)
	require.Equal(t, 10, s.BatchSize)
	require.Equal(t, 50*time.Millisecond, s.Pacing.DirectDelay)
	require.Equal(t, time.Second, s.Pacing.BatchDelay)
	require.Equal(t, 20, s.Pacing.CooldownEvery)
	require.False(t, s.AllowBroadcast)
	require.Equal(t, "só em grupos", s.RedirectReply)
}

func TestOpenAuditStore(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = store.DriverNone
	s, err := openAuditStore(cfg)
	require.NoError(t, err)
	require.IsType(t, store.NopAuditStore{}, s)

	cfg.Storage.Driver = store.DriverPostgres
	cfg.Storage.PostgresDSN = ""
	_, err = openAuditStore(cfg)
	require.ErrorContains(t, err, "GROUPCAST_POSTGRES_DSN")

	cfg.Storage.Driver = store.DriverSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "audit.db")
	s, err = openAuditStore(cfg)
	require.NoError(t, err)
	defer s.Close()

	rec := &store.CommandRecord{
		ChatID:     "120363@g.us",
		SenderID:   "5511@c.us",
		Kind:       "mark_all",
		Outcome:    store.OutcomeOK,
		Targets:    3,
		Sent:       3,
		StartedAt:  time.UnixMilli(1_700_000_000_000),
		FinishedAt: time.UnixMilli(1_700_000_001_500),
	}
	require.NoError(t, s.Record(context.Background(), rec))

	recs, err := s.Recent(context.Background(), store.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	var buf bytes.Buffer
	printHistory(&buf, recs)
	out := buf.String()
	require.Contains(t, out, "120363@g.us")
	require.Contains(t, out, "mark_all")
	require.Contains(t, out, "1.5s")

	require.Equal(t, "Storage", checkStorage(cfg).Name)
	require.Equal(t, "OK", checkStorage(cfg).Status)
}

func TestPrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	require.Equal(t, "No commands recorded.\n", buf.String())
}

func TestCheckStorage_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = store.DriverNone
	require.Equal(t, "OFF", checkStorage(cfg).Status)
}

func TestOnboardAnswers_Apply(t *testing.T) {
	base := config.Default()
	a := answersFrom(base)
	a.BridgeURL = " ws://bridge:3001 "
	a.RedirectReply = "Use os comandos no grupo."
	a.BatchSize = "100"
	a.AllowBroadcast = false
	a.StorageDriver = store.DriverNone

	cfg := a.apply(base)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "ws://bridge:3001", cfg.Bridge.URL)
	require.Equal(t, "Use os comandos no grupo.", cfg.Commands.RedirectReply)
	require.Equal(t, 100, cfg.Delivery.BatchSize)
	require.False(t, cfg.Commands.AllowBroadcast)
	require.Equal(t, store.DriverNone, cfg.Storage.Driver)

	// base is untouched
	require.Equal(t, "ws://127.0.0.1:3001", base.Bridge.URL)
	require.Equal(t, 250, base.Delivery.BatchSize)
}

func TestOnboardValidators(t *testing.T) {
	require.NoError(t, validateBridgeURL("ws://127.0.0.1:3001"))
	require.NoError(t, validateBridgeURL("wss://bridge.example.com/ws"))
	require.Error(t, validateBridgeURL("http://127.0.0.1:3001"))
	require.Error(t, validateBridgeURL("ws://"))

	require.NoError(t, validateBatchSize("250"))
	require.Error(t, validateBatchSize("0"))
	require.Error(t, validateBatchSize("muitos"))
}
