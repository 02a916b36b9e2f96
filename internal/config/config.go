package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/titanous/json5"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json5.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Duration accepts "1.5s" style strings or integer milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json5.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json5.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\" or integer milliseconds")
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Config is the root configuration for the groupcast bot.
type Config struct {
	Bridge    BridgeConfig    `json:"bridge"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Commands  CommandsConfig  `json:"commands"`
	Storage   StorageConfig   `json:"storage"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// BridgeConfig points at the WhatsApp bridge WebSocket.
// Token is NEVER read from config.json (secret), only from env GROUPCAST_BRIDGE_TOKEN.
type BridgeConfig struct {
	URL            string              `json:"url" validate:"required,url"`
	Token          string              `json:"-"`
	RequestTimeout Duration            `json:"request_timeout" validate:"gt=0"`
	ReconnectMin   Duration            `json:"reconnect_min" validate:"gt=0"`
	ReconnectMax   Duration            `json:"reconnect_max" validate:"gtefield=ReconnectMin"`
	AllowFrom      FlexibleStringSlice `json:"allow_from,omitempty"` // group ids accepted under the allowlist policy
	GroupPolicy    string              `json:"group_policy,omitempty" validate:"omitempty,oneof=open allowlist disabled"`
}

// DeliveryConfig holds batch size and pacing delays.
type DeliveryConfig struct {
	BatchSize     int      `json:"batch_size" validate:"gt=0"`
	BatchDelay    Duration `json:"batch_delay" validate:"gte=0"`
	DirectDelay   Duration `json:"direct_delay" validate:"gte=0"`
	CooldownDelay Duration `json:"cooldown_delay" validate:"gte=0"`
	CooldownEvery int      `json:"cooldown_every" validate:"gte=0"`
	FailureDelay  Duration `json:"failure_delay" validate:"gte=0"`
}

// CommandsConfig tunes command behavior.
type CommandsConfig struct {
	AllowBroadcast    bool   `json:"allow_broadcast"`
	ThrottlePerMinute int    `json:"throttle_per_minute" validate:"gte=0"` // 0 disables throttling
	ThrottleBurst     int    `json:"throttle_burst" validate:"gte=0"`
	RedirectReply     string `json:"redirect_reply,omitempty"`
}

// StorageConfig selects the command audit backend.
// PostgresDSN is NEVER read from config.json (secret), only from env GROUPCAST_POSTGRES_DSN.
type StorageConfig struct {
	Driver      string `json:"driver" validate:"oneof=sqlite postgres none"`
	SQLitePath  string `json:"sqlite_path,omitempty" validate:"required_if=Driver sqlite"`
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty" validate:"required_if=Enabled true"`
	Protocol    string `json:"protocol,omitempty" validate:"omitempty,oneof=grpc http"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}
