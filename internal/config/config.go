// Package config loads the gateway configuration.
//
// The configuration is read once at start-up from a JSON file and is not
// reloadable. Environment variables override file values.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/graaaaa/sms900/internal/appinfo"
)

// Environment variable names for config overrides.
// Priority: Environment > Config File > Default
const (
	EnvServer          = "SMS900_SERVER"
	EnvServerPort      = "SMS900_SERVER_PORT"
	EnvNickname        = "SMS900_NICKNAME"
	EnvChannel         = "SMS900_CHANNEL"
	EnvTwilioSID       = "SMS900_TWILIO_ACCOUNT_SID"
	EnvTwilioToken     = "SMS900_TWILIO_AUTH_TOKEN"
	EnvTwilioNumber    = "SMS900_TWILIO_NUMBER"
	EnvHTTPListen      = "SMS900_HTTP_LISTEN"
	EnvDatabasePath    = "SMS900_DATABASE_PATH"
	EnvGenAIAPIKey     = "SMS900_GENAI_API_KEY"
	EnvGitHubSecret    = "SMS900_GITHUB_WEBHOOK_SECRET"
	EnvLogLevel        = "SMS900_LOG_LEVEL"
	EnvMediaBaseURL    = "SMS900_MEDIA_BASE_URL"
	EnvMMSSavePath     = "SMS900_MMS_SAVE_PATH"
	EnvMMSPortalMSISDN = "SMS900_MMS_PORTAL_MSISDN"
)

// DefaultMMSNotificationPattern matches the SMS a Swedish carrier sends when
// an MMS could not be delivered to a non-MMS handset. The first group is the
// retrieval code used to log into the carrier's MMS portal.
const DefaultMMSNotificationPattern = `(?i)(?:MMS|bildmeddelande).*?(?:kod|code)\s*:?\s*([A-Za-z0-9]{4,})`

// defaultWebhookBurst applies when a rate is set without a burst.
const defaultWebhookBurst = 20

// Config holds the gateway configuration.
type Config struct {
	// IRC
	Server     string `json:"server"`
	ServerPort int    `json:"server_port"`
	Nickname   string `json:"nickname"`
	Channel    string `json:"channel"`

	// Carrier
	TwilioAccountSID string `json:"twilio_account_sid"`
	TwilioAuthToken  Secret `json:"twilio_auth_token"`
	TwilioNumber     string `json:"twilio_number"`

	// Webhooks
	HTTPListen          string `json:"http_listen"`
	GitHubWebhookSecret Secret `json:"github_webhook_secret"`

	// WebhookRate is the per-IP request rate; 0 disables throttling so
	// bursts are queued instead of rejected.
	WebhookRate  float64 `json:"webhook_rate"`
	WebhookBurst int     `json:"webhook_burst"`

	// Storage
	DatabasePath string `json:"database_path"`

	// MMS
	MediaBaseURL           string `json:"media_base_url"`
	MMSSavePath            string `json:"mms_save_path"`
	MMSPortalMSISDN        string `json:"mms_portal_msisdn"`
	MMSNotificationPattern string `json:"mms_notification_pattern"`

	// QuickContact is the phonebook entry addressed by the !S shortcut.
	QuickContact string `json:"quick_contact"`

	// Chat responder (disabled when GenAIAPIKey is empty)
	GenAIAPIKey     Secret `json:"genai_api_key"`
	ChatModel       string `json:"chat_model"`
	ChatPrompt      string `json:"chat_prompt"`
	ChatHistorySize int    `json:"chat_history_size"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
// The IRC server, nickname and channel have no default and must be configured.
func DefaultConfig() Config {
	return Config{
		ServerPort:             6667,
		HTTPListen:             "0.0.0.0:8090",
		DatabasePath:           appinfo.DatabaseFileName,
		MMSSavePath:            "mms",
		MMSNotificationPattern: DefaultMMSNotificationPattern,
		ChatModel:              "gemini-2.5-flash",
		ChatHistorySize:        50,
		LogLevel:               "info",
	}
}

// LoadConfigFrom reads config from the specified path and applies environment
// overrides. Unlike a desktop app, the gateway cannot run on defaults alone, so
// a missing or corrupt file is an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file %q not found", path)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("decode config %q: %w", path, err)
	}

	cfg = ApplyEnvOverrides(cfg)
	cfg = normalizeConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalizeConfig replaces out-of-range values with defaults.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		cfg.ServerPort = defaults.ServerPort
	}
	if cfg.HTTPListen == "" {
		cfg.HTTPListen = defaults.HTTPListen
	}
	if cfg.WebhookRate < 0 {
		cfg.WebhookRate = 0
	}
	if cfg.WebhookRate > 0 && cfg.WebhookBurst <= 0 {
		cfg.WebhookBurst = defaultWebhookBurst
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if cfg.MMSSavePath == "" {
		cfg.MMSSavePath = defaults.MMSSavePath
	}
	if cfg.MMSNotificationPattern == "" {
		cfg.MMSNotificationPattern = defaults.MMSNotificationPattern
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaults.ChatModel
	}
	if cfg.ChatHistorySize <= 0 {
		cfg.ChatHistorySize = defaults.ChatHistorySize
	}
	cfg.MediaBaseURL = strings.TrimRight(cfg.MediaBaseURL, "/")
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}

	return cfg
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	var missing []string
	if c.Server == "" {
		missing = append(missing, "server")
	}
	if c.Nickname == "" {
		missing = append(missing, "nickname")
	}
	if c.Channel == "" {
		missing = append(missing, "channel")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if !strings.HasPrefix(c.Channel, "#") && !strings.HasPrefix(c.Channel, "&") {
		return fmt.Errorf("config: channel %q must start with # or &", c.Channel)
	}
	return nil
}

// CarrierConfigured reports whether SMS sending and lookups can be enabled.
func (c Config) CarrierConfigured() bool {
	return c.TwilioAccountSID != "" && !c.TwilioAuthToken.IsEmpty() && c.TwilioNumber != ""
}

// ChatEnabled reports whether the LLM chat responder should be started.
func (c Config) ChatEnabled() bool {
	return !c.GenAIAPIKey.IsEmpty()
}

// WebhookRateLimited reports whether webhook requests are throttled per IP.
func (c Config) WebhookRateLimited() bool {
	return c.WebhookRate > 0
}

// IRCAddr returns the host:port of the IRC server.
func (c Config) IRCAddr() string {
	return c.Server + ":" + strconv.Itoa(c.ServerPort)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
func ApplyEnvOverrides(cfg Config) Config {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setSecret := func(env string, dst *Secret) {
		if v := os.Getenv(env); v != "" {
			*dst = Secret(v)
		}
	}

	setString(EnvServer, &cfg.Server)
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.ServerPort = port
		}
	}
	setString(EnvNickname, &cfg.Nickname)
	setString(EnvChannel, &cfg.Channel)
	setString(EnvTwilioSID, &cfg.TwilioAccountSID)
	setSecret(EnvTwilioToken, &cfg.TwilioAuthToken)
	setString(EnvTwilioNumber, &cfg.TwilioNumber)
	setString(EnvHTTPListen, &cfg.HTTPListen)
	setString(EnvDatabasePath, &cfg.DatabasePath)
	setSecret(EnvGenAIAPIKey, &cfg.GenAIAPIKey)
	setSecret(EnvGitHubSecret, &cfg.GitHubWebhookSecret)
	setString(EnvLogLevel, &cfg.LogLevel)
	setString(EnvMediaBaseURL, &cfg.MediaBaseURL)
	setString(EnvMMSSavePath, &cfg.MMSSavePath)
	setString(EnvMMSPortalMSISDN, &cfg.MMSPortalMSISDN)

	return cfg
}
