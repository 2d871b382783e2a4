// Package config loads connection settings from the environment and batch
// documents from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of a run
type Config struct {
	Server ServerConfig

	// WaitTimeout bounds the wait for a single prompt, zero waits forever
	WaitTimeout time.Duration

	// ConnectRetries is how often the websocket dial is retried
	ConnectRetries int

	// FetchConcurrency is how many artifacts are downloaded at once
	FetchConcurrency int

	// InterruptOnCancel asks the server to stop the running prompt on timeout or Ctrl-C
	InterruptOnCancel bool

	Log LogConfig
}

// ServerConfig addresses the ComfyUI server
type ServerConfig struct {
	Protocol string
	Address  string
	Port     int
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // "text" or "json"
}

// URL returns the server's base URL
func (s ServerConfig) URL() string {
	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Address, s.Port)
}

// Load reads an optional .env file, then the environment
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// a missing file is fine, the environment alone is enough
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Protocol: getEnv("COMFY_PROTOCOL", "http"),
			Address:  getEnv("COMFY_ADDRESS", "127.0.0.1"),
			Port:     getEnvAsInt("COMFY_PORT", 8188),
		},
		WaitTimeout:       getEnvAsDuration("COMFY_WAIT_TIMEOUT", 0),
		ConnectRetries:    getEnvAsInt("COMFY_CONNECT_RETRIES", 3),
		FetchConcurrency:  getEnvAsInt("COMFY_FETCH_CONCURRENCY", 1),
		InterruptOnCancel: getEnvAsBool("COMFY_INTERRUPT_ON_CANCEL", false),
		Log: LogConfig{
			Level:  getEnv("COMFY_LOG_LEVEL", "info"),
			Format: getEnv("COMFY_LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the environment cannot be trusted with
func (c *Config) Validate() error {
	switch c.Server.Protocol {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported protocol %q", c.Server.Protocol)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("invalid wait timeout %s", c.WaitTimeout)
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("invalid connect retries %d", c.ConnectRetries)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to its slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("Ignoring invalid integer", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("Ignoring invalid boolean", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "5m") and plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("Ignoring invalid duration", "key", key, "value", valueStr)
		return defaultValue
	}
	return value
}
