package config

import (
	"sort"
	"strings"

	logx "shopwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging. Secrets (credential, tokens) are
// never included; only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Storefront (never log the credential)
	if strings.TrimSpace(oldCfg.Storefront.BaseURL) != strings.TrimSpace(newCfg.Storefront.BaseURL) ||
		strings.TrimSpace(oldCfg.Storefront.Timeout) != strings.TrimSpace(newCfg.Storefront.Timeout) ||
		oldCfg.Storefront.RetryMax != newCfg.Storefront.RetryMax ||
		(strings.TrimSpace(oldCfg.Storefront.Credential) != "") != (strings.TrimSpace(newCfg.Storefront.Credential) != "") {
		changed = append(changed, "storefront")
		attrs = append(attrs,
			logx.String("storefront.base_url", strings.TrimSpace(newCfg.Storefront.BaseURL)),
			logx.Bool("storefront.credential_set", strings.TrimSpace(newCfg.Storefront.Credential) != ""),
		)
	}

	// Telegram (never log the token)
	if oldCfg.Telegram.ChannelID != newCfg.Telegram.ChannelID ||
		oldCfg.Telegram.ChannelThreadID != newCfg.Telegram.ChannelThreadID ||
		oldCfg.Telegram.GroupID != newCfg.Telegram.GroupID ||
		oldCfg.Telegram.GroupThreadID != newCfg.Telegram.GroupThreadID ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.channel_id", newCfg.Telegram.ChannelID),
			logx.Int64("telegram.group_id", newCfg.Telegram.GroupID),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Watch pipeline
	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs,
			logx.String("watch.baseline_path", strings.TrimSpace(newCfg.Watch.BaselinePath)),
			logx.Bool("watch.audit_enabled", strings.TrimSpace(newCfg.Watch.AuditPath) != ""),
			logx.Int("watch.retry_attempts", newCfg.Watch.RetryAttempts),
			logx.Int("watch.max_blocks", newCfg.Watch.MaxBlocksPerMessage),
		)
	}

	// Assets
	if oldCfg.Assets != newCfg.Assets {
		changed = append(changed, "assets")
		attrs = append(attrs,
			logx.Bool("assets.enabled", strings.TrimSpace(newCfg.Assets.Endpoint) != ""),
		)
	}

	// Schedule
	if strings.TrimSpace(oldCfg.Schedule.Spec) != strings.TrimSpace(newCfg.Schedule.Spec) ||
		strings.TrimSpace(oldCfg.Schedule.Timezone) != strings.TrimSpace(newCfg.Schedule.Timezone) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", strings.TrimSpace(newCfg.Schedule.Spec)),
			logx.String("schedule.tz", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Ops (never log the token)
	if oldCfg.Ops.Enabled != newCfg.Ops.Enabled ||
		strings.TrimSpace(oldCfg.Ops.Addr) != strings.TrimSpace(newCfg.Ops.Addr) ||
		oldCfg.Ops.AllowInsecure != newCfg.Ops.AllowInsecure ||
		strings.TrimSpace(oldCfg.Ops.ReadTimeout) != strings.TrimSpace(newCfg.Ops.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Ops.WriteTimeout) != strings.TrimSpace(newCfg.Ops.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Ops.IdleTimeout) != strings.TrimSpace(newCfg.Ops.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.Ops.Token) != "") != (strings.TrimSpace(newCfg.Ops.Token) != "") {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.allow_insecure", newCfg.Ops.AllowInsecure),
		)
	}

	// Storage (restart required; surfaced so the operator knows)
	oldS, newS := oldCfg.Storage, newCfg.Storage
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	// Error tracker
	if strings.TrimSpace(oldCfg.ErrorTracker.Endpoint) != strings.TrimSpace(newCfg.ErrorTracker.Endpoint) {
		changed = append(changed, "error_tracker")
		attrs = append(attrs,
			logx.Bool("error_tracker.enabled", strings.TrimSpace(newCfg.ErrorTracker.Endpoint) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
