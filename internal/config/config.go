// Package config provides Viper-based configuration loading for the plaza
// session server.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the websocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// WSPath is the websocket upgrade path.
	WSPath string `mapstructure:"ws_path"`
	// OutboxBuffer is the per-session outbound queue depth; a session
	// that falls this many frames behind is disconnected.
	OutboxBuffer int `mapstructure:"outbox_buffer"`
	// WriteTimeout is the per-frame network write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorldConfig holds the plaza geometry and ambient timers.
type WorldConfig struct {
	// HalfExtent is the world bound B: positions satisfy |x| <= B and
	// |z| <= B.
	HalfExtent float64 `mapstructure:"half_extent"`
	// MaxStep is the anti-cheat cap on the distance of a single move.
	MaxStep float64 `mapstructure:"max_step"`
	// TimeTick is how often the game clock advances and broadcasts.
	TimeTick time.Duration `mapstructure:"time_tick"`
	// HoursPerSecond is how many game hours pass per elapsed real second,
	// applied drift-free from the last fired timestamp.
	HoursPerSecond float64 `mapstructure:"hours_per_second"`
	// WeatherTick is how often a weather transition is considered.
	WeatherTick time.Duration `mapstructure:"weather_tick"`
	// WeatherChangeChance is the probability of a transition per tick.
	WeatherChangeChance float64 `mapstructure:"weather_change_chance"`
}

// NPCConfig holds the NPC roster and scheduler settings.
type NPCConfig struct {
	// RosterPath is the YAML roster file.
	RosterPath string `mapstructure:"roster_path"`
	// TickInterval is the movement tick period.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// DecisionMin/DecisionMax bound the idle delay before a new waypoint.
	DecisionMin time.Duration `mapstructure:"decision_min"`
	DecisionMax time.Duration `mapstructure:"decision_max"`
	// SpeedMin/SpeedMax bound the per-NPC movement speed (units/second).
	SpeedMin float64 `mapstructure:"speed_min"`
	SpeedMax float64 `mapstructure:"speed_max"`
	// ArrivalEpsilon is the waypoint arrival distance.
	ArrivalEpsilon float64 `mapstructure:"arrival_epsilon"`
	// ChatMin/ChatMax bound the ambient chat delay per NPC.
	ChatMin time.Duration `mapstructure:"chat_min"`
	ChatMax time.Duration `mapstructure:"chat_max"`
}

// ModerationConfig holds the chat scoring pipeline settings. The pattern
// fields are Go regular expressions; the protected-name list is product
// policy and belongs here, not in code.
type ModerationConfig struct {
	RateWindow time.Duration `mapstructure:"rate_window"`
	RateLimit  int           `mapstructure:"rate_limit"`

	PIIPattern       string `mapstructure:"pii_pattern"`
	SexualPattern    string `mapstructure:"sexual_pattern"`
	ProtectedPattern string `mapstructure:"protected_pattern"`
	PolitePattern    string `mapstructure:"polite_pattern"`

	PIIDelta     int `mapstructure:"pii_delta"`
	SexualDelta  int `mapstructure:"sexual_delta"`
	FlaggedDelta int `mapstructure:"flagged_delta"`
	AbuseDelta   int `mapstructure:"abuse_delta"`
	PoliteDelta  int `mapstructure:"polite_delta"`

	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

// AnthropicConfig holds the LLM provider settings. An empty APIKey
// disables the provider: moderation fails open and NPC replies fall back
// to canned lines.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	World      WorldConfig      `mapstructure:"world"`
	NPC        NPCConfig        `mapstructure:"npc"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateServer(c.Server),
		validateWorld(c.World),
		validateNPC(c.NPC),
		validateModeration(c.Moderation),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.WSPath, "/") {
		errs = append(errs, fmt.Sprintf("server.ws_path must start with '/', got %q", s.WSPath))
	}
	if s.OutboxBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.outbox_buffer must be >= 1, got %d", s.OutboxBuffer))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWorld(w WorldConfig) error {
	var errs []string
	if w.HalfExtent <= 0 {
		errs = append(errs, fmt.Sprintf("world.half_extent must be > 0, got %v", w.HalfExtent))
	}
	if w.MaxStep <= 0 {
		errs = append(errs, fmt.Sprintf("world.max_step must be > 0, got %v", w.MaxStep))
	}
	if w.TimeTick <= 0 {
		errs = append(errs, "world.time_tick must be > 0")
	}
	if w.HoursPerSecond <= 0 {
		errs = append(errs, fmt.Sprintf("world.hours_per_second must be > 0, got %v", w.HoursPerSecond))
	}
	if w.WeatherTick <= 0 {
		errs = append(errs, "world.weather_tick must be > 0")
	}
	if w.WeatherChangeChance < 0 || w.WeatherChangeChance > 1 {
		errs = append(errs, fmt.Sprintf("world.weather_change_chance must be in [0, 1], got %v", w.WeatherChangeChance))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateNPC(n NPCConfig) error {
	var errs []string
	if n.RosterPath == "" {
		errs = append(errs, "npc.roster_path must not be empty")
	}
	if n.TickInterval <= 0 {
		errs = append(errs, "npc.tick_interval must be > 0")
	}
	if n.DecisionMin <= 0 || n.DecisionMax < n.DecisionMin {
		errs = append(errs, "npc.decision_min must be > 0 and <= npc.decision_max")
	}
	if n.SpeedMin <= 0 || n.SpeedMax < n.SpeedMin {
		errs = append(errs, "npc.speed_min must be > 0 and <= npc.speed_max")
	}
	if n.ArrivalEpsilon <= 0 {
		errs = append(errs, fmt.Sprintf("npc.arrival_epsilon must be > 0, got %v", n.ArrivalEpsilon))
	}
	if n.ChatMin <= 0 || n.ChatMax < n.ChatMin {
		errs = append(errs, "npc.chat_min must be > 0 and <= npc.chat_max")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateModeration(m ModerationConfig) error {
	var errs []string
	if m.RateWindow <= 0 {
		errs = append(errs, "moderation.rate_window must be > 0")
	}
	if m.RateLimit < 1 {
		errs = append(errs, fmt.Sprintf("moderation.rate_limit must be >= 1, got %d", m.RateLimit))
	}
	patterns := []struct {
		name, pattern string
	}{
		{"moderation.pii_pattern", m.PIIPattern},
		{"moderation.sexual_pattern", m.SexualPattern},
		{"moderation.protected_pattern", m.ProtectedPattern},
		{"moderation.polite_pattern", m.PolitePattern},
	}
	for _, p := range patterns {
		if p.pattern == "" {
			continue
		}
		if _, err := regexp.Compile(p.pattern); err != nil {
			errs = append(errs, fmt.Sprintf("%s is not a valid regexp: %v", p.name, err))
		}
	}
	deltas := []struct {
		name  string
		delta int
	}{
		{"moderation.pii_delta", m.PIIDelta},
		{"moderation.sexual_delta", m.SexualDelta},
		{"moderation.flagged_delta", m.FlaggedDelta},
		{"moderation.abuse_delta", m.AbuseDelta},
	}
	for _, d := range deltas {
		if d.delta > 0 {
			errs = append(errs, fmt.Sprintf("%s must be <= 0, got %d", d.name, d.delta))
		}
	}
	if m.PoliteDelta < 0 {
		errs = append(errs, fmt.Sprintf("moderation.polite_delta must be >= 0, got %d", m.PoliteDelta))
	}
	if m.ProviderTimeout <= 0 {
		errs = append(errs, "moderation.provider_timeout must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration
// file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PLAZA_ prefix, e.g.
	// PLAZA_ANTHROPIC_API_KEY.
	v.SetEnvPrefix("PLAZA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.outbox_buffer", 256)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("world.half_extent", 50.0)
	v.SetDefault("world.max_step", 5.0)
	v.SetDefault("world.time_tick", 10*time.Second)
	v.SetDefault("world.hours_per_second", 1.0/120.0) // one game day per 48 real minutes
	v.SetDefault("world.weather_tick", 2*time.Minute)
	v.SetDefault("world.weather_change_chance", 0.3)

	v.SetDefault("npc.roster_path", "content/npcs.yaml")
	v.SetDefault("npc.tick_interval", 100*time.Millisecond)
	v.SetDefault("npc.decision_min", 10*time.Second)
	v.SetDefault("npc.decision_max", 30*time.Second)
	v.SetDefault("npc.speed_min", 1.0)
	v.SetDefault("npc.speed_max", 2.5)
	v.SetDefault("npc.arrival_epsilon", 0.2)
	v.SetDefault("npc.chat_min", time.Minute)
	v.SetDefault("npc.chat_max", 3*time.Minute)

	v.SetDefault("moderation.rate_window", 10*time.Second)
	v.SetDefault("moderation.rate_limit", 5)
	v.SetDefault("moderation.pii_delta", -100)
	v.SetDefault("moderation.sexual_delta", -75)
	v.SetDefault("moderation.flagged_delta", -50)
	v.SetDefault("moderation.abuse_delta", -500)
	v.SetDefault("moderation.polite_delta", 10)
	v.SetDefault("moderation.provider_timeout", 5*time.Second)

	v.SetDefault("anthropic.model", "claude-haiku-4-5")
	v.SetDefault("anthropic.max_tokens", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
