package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env vars apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("DMPILOT_DATABASE_DSN", &c.Database.DSN)
	envStr("DMPILOT_LOG_LEVEL", &c.LogLevel)

	// Generation backend
	envStr("DMPILOT_OPENAI_API_KEY", &c.Generation.APIKey)
	envStr("DMPILOT_OPENAI_API_BASE", &c.Generation.APIBase)
	envStr("DMPILOT_AGENT_MODEL", &c.Generation.AgentModel)
	envStr("DMPILOT_SERIALIZER_MODEL", &c.Generation.SerializerModel)

	// Instagram transport
	envStr("DMPILOT_INSTAGRAM_TOKEN", &c.Instagram.AccessToken)
	envStr("DMPILOT_INSTAGRAM_API_BASE", &c.Instagram.APIBase)

	// Operator channels
	envStr("DMPILOT_TELEGRAM_TOKEN", &c.Notify.Telegram.Token)
	if v := os.Getenv("DMPILOT_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.Telegram.ChatID = id
		}
	}
	envStr("DMPILOT_DISCORD_TOKEN", &c.Notify.Discord.Token)
	envStr("DMPILOT_DISCORD_CHANNEL_ID", &c.Notify.Discord.ChannelID)

	// Telemetry
	envStr("DMPILOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("DMPILOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("DMPILOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("DMPILOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DMPILOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}
