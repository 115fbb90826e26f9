package app

import (
	"fmt"
	"strings"

	"shopwatch/internal/assets"
	"shopwatch/internal/config"
	"shopwatch/internal/notify"
	"shopwatch/internal/ops"
	"shopwatch/internal/retry"
	"shopwatch/internal/storage"
	"shopwatch/internal/storefront"
	"shopwatch/internal/transport"
	logx "shopwatch/pkg/logx"
)

// Config section -> component config mapping. Kept separate from wiring so
// the hot-reload validator can reject a bad file before anything commits.

func mapLogx(cfg *config.Config) logx.Config {
	chatID := cfg.Logging.Telegram.ChatID
	if chatID == 0 {
		// Default the log sink to the responsible group.
		chatID = cfg.Telegram.GroupID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	read, err := config.ParseDurationField("ops.read_timeout", cfg.Ops.ReadTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", cfg.Ops.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationField("ops.idle_timeout", cfg.Ops.IdleTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required for driver %q", driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		KeepRuns:    cfg.Storage.KeepRuns,
	}, true, nil
}

func mapRetry(cfg *config.Config) (retry.Policy, error) {
	delay, err := config.ParseDurationField("watch.retry_delay", cfg.Watch.RetryDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	return retry.Policy{Attempts: cfg.Watch.RetryAttempts, Delay: delay}, nil
}

func mapStorefront(cfg *config.Config) (storefront.Config, error) {
	timeout, err := config.ParseDurationField("storefront.timeout", cfg.Storefront.Timeout)
	if err != nil {
		return storefront.Config{}, err
	}
	return storefront.Config{
		BaseURL:    cfg.Storefront.BaseURL,
		Credential: cfg.Storefront.Credential,
		Timeout:    timeout,
		RetryMax:   cfg.Storefront.RetryMax,
	}, nil
}

func mapAssets(cfg *config.Config) (assets.Config, bool, error) {
	if strings.TrimSpace(cfg.Assets.Endpoint) == "" {
		return assets.Config{}, false, nil
	}
	timeout, err := config.ParseDurationField("assets.timeout", cfg.Assets.Timeout)
	if err != nil {
		return assets.Config{}, false, err
	}
	return assets.Config{Endpoint: cfg.Assets.Endpoint, Timeout: timeout}, true, nil
}

func mapDeliver(cfg *config.Config, policy retry.Policy) notify.DeliverConfig {
	return notify.DeliverConfig{
		Digest: transport.ChatTarget{
			ChatID:   cfg.Telegram.ChannelID,
			ThreadID: cfg.Telegram.ChannelThreadID,
		},
		Responsible: transport.ChatTarget{
			ChatID:   cfg.Telegram.GroupID,
			ThreadID: cfg.Telegram.GroupThreadID,
		},
		ParseMode:   "HTML",
		MessageRate: cfg.Watch.MessageRate,
		Retry:       policy,
	}
}
