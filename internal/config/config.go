package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// RateLimitConfig bounds how many messages a sender may submit per window.
type RateLimitConfig struct {
	Window    time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	MaxEvents int           `mapstructure:"max_events" yaml:"max_events" validate:"gt=0"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path" validate:"required"`
	// RedisURL is optional; without it presence, rate limiting and fanout stay in process.
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url" validate:"omitempty,url"`
	InstanceID    string `mapstructure:"instance_id" yaml:"instance_id"`
	FanoutChannel string `mapstructure:"fanout_channel" yaml:"fanout_channel" validate:"required"`

	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	SendQueueSize   int             `mapstructure:"send_queue_size" yaml:"send_queue_size" validate:"gt=0"`
	MaxMessageChars int             `mapstructure:"max_message_chars" yaml:"max_message_chars" validate:"gt=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "relaychat.db",
		FanoutChannel:     "new_message",
		RateLimit: RateLimitConfig{
			Window:    time.Minute,
			MaxEvents: 30,
		},
		SendQueueSize:   64,
		MaxMessageChars: 4000,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.RedisURL != "" {
		c.RedisURL = other.RedisURL
	}
	if other.InstanceID != "" {
		c.InstanceID = other.InstanceID
	}
	if other.FanoutChannel != "" {
		c.FanoutChannel = other.FanoutChannel
	}
	if other.RateLimit.Window != 0 {
		c.RateLimit.Window = other.RateLimit.Window
	}
	if other.RateLimit.MaxEvents != 0 {
		c.RateLimit.MaxEvents = other.RateLimit.MaxEvents
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.MaxMessageChars != 0 {
		c.MaxMessageChars = other.MaxMessageChars
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the resolved configuration is usable.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
