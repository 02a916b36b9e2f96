package config

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/titanous/json5"
)

var validate = validator.New()

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			URL:            "ws://127.0.0.1:3001",
			RequestTimeout: Duration(30 * time.Second),
			ReconnectMin:   Duration(time.Second),
			ReconnectMax:   Duration(30 * time.Second),
			GroupPolicy:    "open",
		},
		Delivery: DeliveryConfig{
			BatchSize:     250,
			BatchDelay:    Duration(1000 * time.Millisecond),
			DirectDelay:   Duration(200 * time.Millisecond),
			CooldownDelay: Duration(800 * time.Millisecond),
			CooldownEvery: 20,
			FailureDelay:  Duration(400 * time.Millisecond),
		},
		Commands: CommandsConfig{
			AllowBroadcast:    true,
			ThrottlePerMinute: 6,
			ThrottleBurst:     3,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "~/.groupcast/audit.db",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "groupcast",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars and validates.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and reports every violated field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	// Bridge
	envStr("GROUPCAST_BRIDGE_URL", &c.Bridge.URL)
	envStr("GROUPCAST_BRIDGE_TOKEN", &c.Bridge.Token)
	envStr("GROUPCAST_GROUP_POLICY", &c.Bridge.GroupPolicy)
	if v := os.Getenv("GROUPCAST_ALLOW_FROM"); v != "" {
		c.Bridge.AllowFrom = strings.Split(v, ",")
	}

	// Delivery & commands
	envInt("GROUPCAST_BATCH_SIZE", &c.Delivery.BatchSize)
	envBool("GROUPCAST_ALLOW_BROADCAST", &c.Commands.AllowBroadcast)
	envInt("GROUPCAST_THROTTLE_PER_MINUTE", &c.Commands.ThrottlePerMinute)
	envInt("GROUPCAST_THROTTLE_BURST", &c.Commands.ThrottleBurst)
	envStr("GROUPCAST_REDIRECT_REPLY", &c.Commands.RedirectReply)

	// Storage
	envStr("GROUPCAST_STORAGE_DRIVER", &c.Storage.Driver)
	envStr("GROUPCAST_SQLITE_PATH", &c.Storage.SQLitePath)
	envStr("GROUPCAST_POSTGRES_DSN", &c.Storage.PostgresDSN)

	// Telemetry
	envStr("GROUPCAST_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GROUPCAST_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GROUPCAST_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("GROUPCAST_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("GROUPCAST_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// Save writes the config to a JSON file. Secrets are tagged json:"-" and
// never reach disk.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// SQLitePath returns the expanded audit database path.
func (c *Config) SQLitePath() string {
	return ExpandHome(c.Storage.SQLitePath)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
