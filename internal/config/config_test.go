package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, 250, cfg.Delivery.BatchSize)
	require.Equal(t, time.Second, cfg.Delivery.BatchDelay.Std())
	require.Equal(t, 200*time.Millisecond, cfg.Delivery.DirectDelay.Std())
	require.Equal(t, 800*time.Millisecond, cfg.Delivery.CooldownDelay.Std())
	require.Equal(t, 20, cfg.Delivery.CooldownEvery)
	require.Equal(t, 400*time.Millisecond, cfg.Delivery.FailureDelay.Std())
	require.Equal(t, 30*time.Second, cfg.Bridge.RequestTimeout.Std())
	require.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoad_JSON5WithDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
  // bridge running next to the bot
  bridge: { url: "ws://bridge:3001", request_timeout: "10s" },
  delivery: {
    batch_size: 100,
    batch_delay: 1500, // milliseconds
    direct_delay: "250ms",
  },
  commands: { allow_broadcast: false, redirect_reply: 'Fale com o admin' },
  storage: { driver: "none" },
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws://bridge:3001", cfg.Bridge.URL)
	require.Equal(t, 10*time.Second, cfg.Bridge.RequestTimeout.Std())
	require.Equal(t, 100, cfg.Delivery.BatchSize)
	require.Equal(t, 1500*time.Millisecond, cfg.Delivery.BatchDelay.Std())
	require.Equal(t, 250*time.Millisecond, cfg.Delivery.DirectDelay.Std())
	require.Equal(t, 800*time.Millisecond, cfg.Delivery.CooldownDelay.Std(), "unset fields keep defaults")
	require.False(t, cfg.Commands.AllowBroadcast)
	require.Equal(t, "Fale com o admin", cfg.Commands.RedirectReply)
	require.Equal(t, "none", cfg.Storage.Driver)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{ delivery: { batch_size: 100 } }`)

	t.Setenv("GROUPCAST_BATCH_SIZE", "50")
	t.Setenv("GROUPCAST_BRIDGE_TOKEN", "s3cret")
	t.Setenv("GROUPCAST_POSTGRES_DSN", "postgres://u:p@db/groupcast")
	t.Setenv("GROUPCAST_STORAGE_DRIVER", "postgres")
	t.Setenv("GROUPCAST_THROTTLE_PER_MINUTE", "12")
	t.Setenv("GROUPCAST_THROTTLE_BURST", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Delivery.BatchSize)
	require.Equal(t, 12, cfg.Commands.ThrottlePerMinute)
	require.Equal(t, 4, cfg.Commands.ThrottleBurst)
	require.Equal(t, "s3cret", cfg.Bridge.Token)
	require.Equal(t, "postgres", cfg.Storage.Driver)
	require.Equal(t, "postgres://u:p@db/groupcast", cfg.Storage.PostgresDSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero batch size", `{ delivery: { batch_size: 0 } }`, "BatchSize"},
		{"bad driver", `{ storage: { driver: "mysql" } }`, "Driver"},
		{"bad url", `{ bridge: { url: "not a url" } }`, "URL"},
		{"telemetry without endpoint", `{ telemetry: { enabled: true } }`, "Endpoint"},
		{"backoff inverted", `{ bridge: { reconnect_min: "10s", reconnect_max: "1s" } }`, "ReconnectMax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{ delivery: { batch_delay: "soon" } }`)
	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}

func TestSave_OmitsSecretsAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Bridge.Token = "s3cret"
	cfg.Storage.PostgresDSN = "postgres://u:p@db/x"
	cfg.Delivery.BatchSize = 120

	require.NoError(t, Save(path, cfg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "s3cret")
	require.NotContains(t, string(data), "postgres://")
	require.Contains(t, string(data), `"batch_delay": "1s"`)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 120, loaded.Delivery.BatchSize)
	require.Equal(t, cfg.Delivery.BatchDelay, loaded.Delivery.BatchDelay)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".groupcast/audit.db"), ExpandHome("~/.groupcast/audit.db"))
	require.Equal(t, "/var/lib/audit.db", ExpandHome("/var/lib/audit.db"))
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{ delivery: { batch_size: 100 } }`)
	current, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, current, func(c *Config) { reloaded <- c })
	}()

	// Let the watcher register before editing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{ delivery: { batch_size: 0 } }`)
	time.Sleep(2 * reloadDebounce)
	writeFile(t, path, `{ delivery: { batch_size: 42 } }`)

	select {
	case c := <-reloaded:
		require.Equal(t, 42, c.Delivery.BatchSize)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
