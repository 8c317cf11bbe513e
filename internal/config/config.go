// Package config holds the worker configuration: a JSON5 file overlaid with
// DMPILOT_* environment variables. Env vars take precedence over file values.
package config

import (
	"time"

	"github.com/himanstore/dmpilot/internal/telemetry"
)

// Config is the full worker configuration.
type Config struct {
	Database   DatabaseConfig   `json:"database,omitempty"`
	Generation GenerationConfig `json:"generation,omitempty"`
	Automation AutomationConfig `json:"automation,omitempty"`
	Instagram  InstagramConfig  `json:"instagram,omitempty"`
	Notify     NotifyConfig     `json:"notify,omitempty"`
	Sweep      SweepConfig      `json:"sweep,omitempty"`
	Telemetry  telemetry.Config `json:"telemetry,omitempty"`
	LogLevel   string           `json:"log_level,omitempty"` // debug|info|warn|error
}

// DatabaseConfig selects the backing store. A postgres:// DSN runs managed
// mode; anything else is treated as a SQLite path (standalone mode).
type DatabaseConfig struct {
	DSN string `json:"dsn,omitempty"`
}

// GenerationConfig configures the two-stage pipeline backend.
type GenerationConfig struct {
	APIKey           string  `json:"api_key,omitempty"`
	APIBase          string  `json:"api_base,omitempty"`
	AgentModel       string  `json:"agent_model,omitempty"`
	SerializerModel  string  `json:"serializer_model,omitempty"`
	AgentPrompt      string  `json:"agent_prompt,omitempty"`
	SerializerPrompt string  `json:"serializer_prompt,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	HistoryLimit     int     `json:"history_limit,omitempty"`
	ImageLimit       int     `json:"image_limit,omitempty"`
}

// AutomationConfig tunes the scanner and the send policy.
type AutomationConfig struct {
	ScanIntervalMs        int     `json:"scan_interval_ms,omitempty"`
	BatchSize             int     `json:"batch_size,omitempty"`
	DebounceSeconds       int     `json:"debounce_seconds,omitempty"`
	PostponeWindowSeconds int     `json:"postpone_window_seconds,omitempty"`
	PostponeMax           int     `json:"postpone_max,omitempty"`
	AutoRetryMax          int     `json:"auto_retry_max,omitempty"`
	ConfidenceThreshold   float64 `json:"confidence_threshold,omitempty"`
	GuardWindowSeconds    int     `json:"guard_window_seconds,omitempty"`
}

// InstagramConfig configures the Graph API transport.
type InstagramConfig struct {
	AccessToken       string  `json:"access_token,omitempty"`
	APIBase           string  `json:"api_base,omitempty"`
	MessagesPerSecond float64 `json:"messages_per_second,omitempty"`
}

// NotifyConfig configures operator escalation channels. A channel is active
// when its credentials are set.
type NotifyConfig struct {
	Telegram TelegramNotifyConfig `json:"telegram,omitempty"`
	Discord  DiscordNotifyConfig  `json:"discord,omitempty"`
}

type TelegramNotifyConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type DiscordNotifyConfig struct {
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// SweepConfig configures the periodic order-candidate sweep.
type SweepConfig struct {
	Schedule      string `json:"schedule,omitempty"` // cron expression
	LookbackHours int    `json:"lookback_hours,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// LookbackDuration converts LookbackHours, defaulting to a day.
func (s SweepConfig) LookbackDuration() time.Duration {
	if s.LookbackHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.LookbackHours) * time.Hour
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN: "dmpilot.db",
		},
		Generation: GenerationConfig{
			AgentModel:      "gpt-4o",
			SerializerModel: "gpt-4o-mini",
			Temperature:     0.7,
			MaxTokens:       1024,
			HistoryLimit:    40,
			ImageLimit:      3,
		},
		Automation: AutomationConfig{
			ScanIntervalMs:        500,
			BatchSize:             20,
			DebounceSeconds:       30,
			PostponeWindowSeconds: 180,
			PostponeMax:           3,
			AutoRetryMax:          3,
			ConfidenceThreshold:   0.49,
			GuardWindowSeconds:    10,
		},
		Instagram: InstagramConfig{
			MessagesPerSecond: 1,
		},
		Sweep: SweepConfig{
			Schedule:      "*/10 * * * *",
			LookbackHours: 24,
			Limit:         200,
		},
		LogLevel: "info",
	}
}
