package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-level configuration read from the environment.
// Runtime settings (channel, games, interval) live in storage and are
// managed through commands, not here.
type Config struct {
	DiscordToken string `env:"DISCORD_BOT_TOKEN"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/srcnotifications.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// CleanupCommands removes the registered slash commands on shutdown.
	// Off by default so routine restarts don't churn Discord's command
	// registry.
	CleanupCommands bool `env:"CLEANUP_COMMANDS" envDefault:"false"`
}

// Load reads configuration from environment variables, loading a .env
// file first if one exists.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}
