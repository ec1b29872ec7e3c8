// Package config loads application settings for the gambit binary from a
// YAML file and GAMBIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Match   MatchConfig   `mapstructure:"match"`
	Wasm    WasmConfig    `mapstructure:"wasm"`
	Server  ServerConfig  `mapstructure:"server"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // json, text or tint
	AddSource bool   `mapstructure:"add_source"`
}

// UploadConfig bounds agent uploads.
type UploadConfig struct {
	MaxPayloadBytes   int `mapstructure:"max_payload_bytes"`
	MaxUploadedAgents int `mapstructure:"max_uploaded_agents"`
	// RetainPayloads keeps uploaded payloads in memory until the agent is unloaded.
	RetainPayloads bool `mapstructure:"retain_payloads"`
}

// MatchConfig tunes the orchestrator.
type MatchConfig struct {
	DecisionTimeout        time.Duration `mapstructure:"decision_timeout"`
	MoveDelay              time.Duration `mapstructure:"move_delay"`
	MaxPlies               int           `mapstructure:"max_plies"`
	MaxConcurrentDecisions int           `mapstructure:"max_concurrent_decisions"`
	MaxSessions            int           `mapstructure:"max_sessions"`
}

// WasmConfig tunes the compiled-agent sandbox.
type WasmConfig struct {
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages"`
	Interpreter      bool   `mapstructure:"interpreter"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// ArchiveConfig locates the finished-game database.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "tint")
	v.SetDefault("log.add_source", false)

	v.SetDefault("upload.max_payload_bytes", 10<<20)
	v.SetDefault("upload.max_uploaded_agents", 20)
	v.SetDefault("upload.retain_payloads", true)

	v.SetDefault("match.decision_timeout", 5*time.Second)
	v.SetDefault("match.move_delay", 500*time.Millisecond)
	v.SetDefault("match.max_plies", 0)
	v.SetDefault("match.max_concurrent_decisions", 10)
	v.SetDefault("match.max_sessions", 64)

	v.SetDefault("wasm.memory_limit_pages", 256)
	v.SetDefault("wasm.interpreter", false)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.event_buffer", 64)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", "data/gambit.db")
}

// Load reads the configuration. An empty path searches for gambit.yaml in
// ./config and the working directory; a missing file is not an error then.
// Environment variables such as GAMBIT_MATCH_MOVE_DELAY override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("gambit")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("GAMBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "tint":
	default:
		return fmt.Errorf("log.format must be json, text or tint, got %q", c.Log.Format)
	}
	if c.Upload.MaxPayloadBytes <= 0 {
		return fmt.Errorf("upload.max_payload_bytes must be greater than zero")
	}
	if c.Upload.MaxUploadedAgents < 0 {
		return fmt.Errorf("upload.max_uploaded_agents cannot be negative")
	}
	if c.Match.DecisionTimeout < 0 {
		return fmt.Errorf("match.decision_timeout cannot be negative")
	}
	if c.Match.MoveDelay < 0 {
		return fmt.Errorf("match.move_delay cannot be negative")
	}
	if c.Match.MaxPlies < 0 || c.Match.MaxConcurrentDecisions < 0 || c.Match.MaxSessions < 0 {
		return fmt.Errorf("match limits cannot be negative")
	}
	if c.Wasm.MemoryLimitPages == 0 || c.Wasm.MemoryLimitPages > 65536 {
		return fmt.Errorf("wasm.memory_limit_pages must be between 1 and 65536")
	}
	if c.Server.EventBuffer <= 0 {
		return fmt.Errorf("server.event_buffer must be greater than zero")
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Path) == "" {
		return fmt.Errorf("archive.path is required when the archive is enabled")
	}
	return nil
}
