package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Environment variables that override file values. Secrets should live here
// (or in a .env next to the config file) rather than in the config document.
const (
	EnvStorefrontCredential = "SHOPWATCH_STOREFRONT_CREDENTIAL"
	EnvBotToken             = "SHOPWATCH_BOT_TOKEN"
)

var dotenvOnce sync.Once

// LoadDotenv loads a .env file next to the config file into the process
// environment, without overriding variables that are already set. Missing
// .env is not an error. Loaded once per process; hot reloads re-read the
// config file but never re-read .env.
func LoadDotenv(configPath string) {
	dotenvOnce.Do(func() {
		dir := filepath.Dir(configPath)
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			return
		}
		_ = godotenv.Load(path)
	})
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorefrontCredential)); v != "" {
		cfg.Storefront.Credential = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Telegram.Token = v
	}
}
