package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	derrors "github.com/draftworks/docforge/internal/errors"
)

// Config holds all application configuration loaded from environment variables.
// The document template itself is passed on the command line, not here.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Generation backend
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	Model           string        `envconfig:"DOCFORGE_MODEL" default:"claude-sonnet-4-5"`
	MaxTokens       int           `envconfig:"DOCFORGE_MAX_TOKENS" default:"4096"`
	GenerateTimeout time.Duration `envconfig:"DOCFORGE_GENERATE_TIMEOUT" default:"3m"`
	// MockBackend replaces the Anthropic backend with canned output. Useful
	// for dry runs without an API key.
	MockBackend bool `envconfig:"DOCFORGE_MOCK_BACKEND" default:"false"`

	// Orchestration
	MaxParallel         int `envconfig:"DOCFORGE_MAX_PARALLEL" default:"3"`
	MaxAttempts         int `envconfig:"DOCFORGE_MAX_ATTEMPTS" default:"3"`
	SupermajorityFloor  int `envconfig:"DOCFORGE_SUPERMAJORITY_FLOOR" default:"4"`
	SectionFailureLimit int `envconfig:"DOCFORGE_SECTION_FAILURE_LIMIT" default:"3"`

	// Checkpointing
	CheckpointDB string `envconfig:"DOCFORGE_CHECKPOINT_DB" default:"docforge.db"`
	OutputDir    string `envconfig:"DOCFORGE_OUTPUT_DIR" default:"published"`

	// Status server (optional, disabled when addr is empty)
	StatusAddr string `envconfig:"DOCFORGE_STATUS_ADDR"`

	// Slack notification (optional)
	SlackBotToken string `envconfig:"DOCFORGE_SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"DOCFORGE_SLACK_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required settings are present and coherent.
func (c *Config) Validate() error {
	if !c.MockBackend && c.AnthropicAPIKey == "" {
		return derrors.ConfigError("ANTHROPIC_API_KEY is required unless DOCFORGE_MOCK_BACKEND=true")
	}
	if c.MaxParallel < 1 {
		return derrors.ConfigError("DOCFORGE_MAX_PARALLEL must be >= 1, got %d", c.MaxParallel)
	}
	if c.MaxAttempts < 1 {
		return derrors.ConfigError("DOCFORGE_MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.SectionFailureLimit < 1 {
		return derrors.ConfigError("DOCFORGE_SECTION_FAILURE_LIMIT must be >= 1, got %d", c.SectionFailureLimit)
	}
	return nil
}

// SlackEnabled returns true if Slack notification is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// StatusEnabled returns true if the status server should be started.
func (c *Config) StatusEnabled() bool {
	return c.StatusAddr != ""
}
