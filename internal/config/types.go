package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Storefront StorefrontConfig `json:"storefront"`
	Telegram   TelegramConfig   `json:"telegram"`
	Watch      WatchConfig      `json:"watch"`

	// Assets is optional; with an empty endpoint image relocation is skipped
	// entirely and notifications carry the storefront URLs as-is.
	Assets AssetsConfig `json:"assets,omitempty"`

	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops,omitempty"`

	// Storage holds the optional run-history store ("file" or "sqlite").
	Storage *StorageConfig `json:"storage,omitempty"`

	ErrorTracker ErrorTrackerConfig `json:"error_tracker,omitempty"`
}

// StorefrontConfig targets the catalog API.
//
// Credential may be left empty in the file and supplied via the
// SHOPWATCH_STOREFRONT_CREDENTIAL environment variable instead; the
// environment always wins so secrets can stay out of the config file.
type StorefrontConfig struct {
	BaseURL    string `json:"base_url"`
	Credential string `json:"credential,omitempty"`

	// Timeout is a Go duration string (e.g. "15s").
	Timeout string `json:"timeout,omitempty"`
	// RetryMax caps transport-level GET retries (retryablehttp).
	RetryMax int `json:"retry_max,omitempty"`
}

// TelegramConfig holds the bot token and the two destinations: the digest
// channel and the responsible group for escalation alerts.
//
// Token may come from the SHOPWATCH_BOT_TOKEN environment variable, which
// overrides the file value.
type TelegramConfig struct {
	Token string `json:"token,omitempty"`

	ChannelID       int64 `json:"channel_id"`
	ChannelThreadID int   `json:"channel_thread_id,omitempty"`

	GroupID       int64 `json:"group_id"`
	GroupThreadID int   `json:"group_thread_id,omitempty"`
}

// WatchConfig controls the run pipeline.
//
// All durations are Go duration strings.
type WatchConfig struct {
	BaselinePath string `json:"baseline_path"`

	// AuditPath enables the pre-delivery digest audit log when set.
	AuditPath string `json:"audit_path,omitempty"`

	// RetryAttempts/RetryDelay configure the per-call-site retry budget
	// around scrape, relocation and each message send. Defaults: 3, "1s".
	RetryAttempts int    `json:"retry_attempts,omitempty"`
	RetryDelay    string `json:"retry_delay,omitempty"`

	// MaxBlocksPerMessage caps digest blocks per message. Default: 50.
	MaxBlocksPerMessage int `json:"max_blocks_per_message,omitempty"`

	// MessageRate is the send rate limit in messages per second. Default: 1.
	MessageRate float64 `json:"message_rate,omitempty"`
}

type AssetsConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	// Timeout is a Go duration string (e.g. "30s").
	Timeout string `json:"timeout,omitempty"`
}

// ScheduleConfig controls the recurring trigger. Spec accepts cron
// expressions, "@every"-style descriptors, plain durations ("55m") and HH:MM
// intervals. Default: "1m".
type ScheduleConfig struct {
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type ErrorTrackerConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
}

// StorageConfig controls the optional run-history layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./shopwatch_runs" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	KeepRuns    int    `json:"keep_runs,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to a chat,
// rate-limited. ChatID 0 falls back to the responsible group.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the optional ops HTTP server (health, status, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so /debug/pprof/profile (30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Validate checks the startup-required surface. It runs after environment
// overrides, so a credential supplied only via environment passes.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Storefront.BaseURL) == "" {
		return fmt.Errorf("storefront.base_url is required")
	}
	if strings.TrimSpace(c.Storefront.Credential) == "" {
		return fmt.Errorf("storefront.credential is required (file or SHOPWATCH_STOREFRONT_CREDENTIAL)")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (file or SHOPWATCH_BOT_TOKEN)")
	}
	if c.Telegram.ChannelID == 0 {
		return fmt.Errorf("telegram.channel_id is required")
	}
	if c.Telegram.GroupID == 0 {
		return fmt.Errorf("telegram.group_id is required")
	}
	if strings.TrimSpace(c.Watch.BaselinePath) == "" {
		return fmt.Errorf("watch.baseline_path is required")
	}
	if c.Watch.RetryAttempts < 0 {
		return fmt.Errorf("watch.retry_attempts must be >= 0")
	}
	if c.Watch.MaxBlocksPerMessage < 0 {
		return fmt.Errorf("watch.max_blocks_per_message must be >= 0")
	}
	if c.Watch.MessageRate < 0 {
		return fmt.Errorf("watch.message_rate must be >= 0")
	}
	for _, d := range []struct{ path, raw string }{
		{"storefront.timeout", c.Storefront.Timeout},
		{"assets.timeout", c.Assets.Timeout},
		{"watch.retry_delay", c.Watch.RetryDelay},
		{"ops.read_timeout", c.Ops.ReadTimeout},
		{"ops.write_timeout", c.Ops.WriteTimeout},
		{"ops.idle_timeout", c.Ops.IdleTimeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
		switch d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", d)
		}
	}
	return nil
}
