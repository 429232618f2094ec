package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full agent configuration, loaded from YAML with env
// overrides.
type Config struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"production"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	// Identifiers come from the session-management collaborator; the core
	// only carries them on the wire.
	Workspace struct {
		ID        string `yaml:"id" env:"WORKSPACE_ID"`
		SessionID string `yaml:"session_id" env:"SESSION_ID"`
	} `yaml:"workspace"`

	Device struct {
		Class string `yaml:"class" env:"DEVICE_CLASS" env-default:"desktop"`
	} `yaml:"device"`

	Collector struct {
		Endpoint string `yaml:"endpoint" env:"COLLECTOR_ENDPOINT"`
		Timeout  int    `yaml:"timeout" env:"COLLECTOR_TIMEOUT" env-default:"10"` // seconds
	} `yaml:"collector"`

	Heartbeat struct {
		// Tiers map cumulative active seconds to emission intervals in
		// seconds. An interval of 0 stops the heartbeat once the tier is
		// entered.
		Tiers []TierConfig `yaml:"tiers"`
		// MaxDuration caps total heartbeat lifetime in seconds; 0 disables
		// the cap.
		MaxDuration       int  `yaml:"max_duration" env:"HEARTBEAT_MAX_DURATION"`
		ResetOnNavigation bool `yaml:"reset_on_navigation" env:"HEARTBEAT_RESET_ON_NAVIGATION"`
	} `yaml:"heartbeat"`

	Queue struct {
		Capacity      int `yaml:"capacity" env-default:"50"`
		MaxAgeHours   int `yaml:"max_age_hours" env-default:"24"`
		MaxAttempts   int `yaml:"max_attempts" env-default:"5"`
		BackoffBaseMs int `yaml:"backoff_base_ms" env-default:"1000"`
		BackoffCapMs  int `yaml:"backoff_cap_ms" env-default:"30000"`
		FlushInterval int `yaml:"flush_interval" env-default:"60"` // seconds
	} `yaml:"queue"`

	Batch struct {
		Size          int `yaml:"size" env-default:"20"`
		FlushInterval int `yaml:"flush_interval" env-default:"30"` // seconds
	} `yaml:"batch"`

	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"engagement.db"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"STATUS_SERVER_ENABLED"`
		Port    int  `yaml:"port" env:"STATUS_SERVER_PORT" env-default:"8931"`
	} `yaml:"server"`
}

// TierConfig is one heartbeat tier row. All values are seconds; a zero
// interval means the heartbeat stops permanently once the tier is entered.
type TierConfig struct {
	After   int `yaml:"after"`
	Desktop int `yaml:"desktop"`
	Mobile  int `yaml:"mobile"`
}

// LoadConfig reads configuration from the given YAML file with environment
// variable overrides.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if cfg.Collector.Endpoint == "" {
		return nil, fmt.Errorf("collector endpoint is required")
	}
	return &cfg, nil
}

// DefaultTiers is the tier table used when the config does not provide one.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{After: 0, Desktop: 10, Mobile: 7},
		{After: 180, Desktop: 20, Mobile: 0},
		{After: 300, Desktop: 30, Mobile: 0},
	}
}
