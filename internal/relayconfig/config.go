// Package relayconfig resolves the relay's runtime configuration from
// viper (environment, config file) and command flags.
package relayconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/kbrelay/internal/configutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultTimeoutSeconds     = 180
	DefaultContextMessages    = 5
	DefaultEmbedColor         = "#FFA500"
	DefaultFeedbackMaxEntries = 1000
	DefaultMaxConcurrency     = 4
	defaultEmbedColorValue    = 0xFFA500
)

// envBindings maps the plain environment names used in deployments to
// viper keys.
var envBindings = []struct {
	Key string
	Env string
}{
	{"discord.token", "DISCORD_TOKEN"},
	{"discord.monitored_channel_id", "MONITORED_CHANNEL_ID"},
	{"openweb.api_url", "OPENWEB_API_URL"},
	{"openweb.api_key", "OPENWEB_API_KEY"},
	{"openweb.model", "MODEL_NAME"},
	{"openweb.timeout_seconds", "API_TIMEOUT_SECONDS"},
	{"relay.context_messages", "CONTEXT_MESSAGES_COUNT"},
	{"render.embed_color", "EMBED_COLOR"},
	{"render.display_sources", "DISPLAY_SOURCES"},
	{"feedback.enabled", "ENABLE_FEEDBACK_REACTIONS"},
}

// BindEnv binds every key to both its prefixed name (KBRELAY_DISCORD_TOKEN)
// and its plain name (DISCORD_TOKEN). The prefixed name wins.
func BindEnv(v *viper.Viper, prefix string) error {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	for _, b := range envBindings {
		names := []string{b.Env}
		if prefix != "" {
			prefixed := prefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(b.Key))
			names = []string{prefixed, b.Env}
		}
		if err := v.BindEnv(append([]string{b.Key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", b.Env, err)
		}
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("openweb.timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("relay.context_messages", DefaultContextMessages)
	v.SetDefault("relay.max_concurrency", DefaultMaxConcurrency)
	v.SetDefault("relay.placeholder_text", "")
	v.SetDefault("render.embed_color", DefaultEmbedColor)
	v.SetDefault("render.display_sources", true)
	v.SetDefault("feedback.enabled", true)
	v.SetDefault("feedback.max_entries", DefaultFeedbackMaxEntries)
	v.SetDefault("health.listen", "")
	v.SetDefault("health.auth_token", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
}

// ConfigError lists every missing or invalid required value.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

type Config struct {
	DiscordToken       string
	MonitoredChannelID string

	APIURL         string
	APIKey         string
	Model          string
	TimeoutSeconds int

	ContextMessages int
	MaxConcurrency  int
	PlaceholderText string

	EmbedColor      int
	EmbedColorValid bool
	DisplaySources  bool

	FeedbackEnabled    bool
	FeedbackMaxEntries int

	HealthListen    string
	HealthAuthToken string
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Requirement selects which values a command needs.
type Requirement int

const (
	RequireAPI Requirement = 1 << iota
	RequireDiscord
	RequireAll = RequireAPI | RequireDiscord
)

// Load resolves the configuration. Flags on cmd, when set, override viper.
func Load(cmd *cobra.Command, need Requirement) (Config, error) {
	cfg := Config{
		DiscordToken:       strings.TrimSpace(viper.GetString("discord.token")),
		MonitoredChannelID: configutil.FlagOrViperString(cmd, "monitored-channel-id", "discord.monitored_channel_id"),
		APIURL:             configutil.FlagOrViperString(cmd, "api-url", "openweb.api_url"),
		APIKey:             strings.TrimSpace(viper.GetString("openweb.api_key")),
		Model:              configutil.FlagOrViperString(cmd, "model", "openweb.model"),
		TimeoutSeconds:     configutil.FlagOrViperInt(cmd, "timeout-seconds", "openweb.timeout_seconds"),
		ContextMessages:    configutil.FlagOrViperInt(cmd, "context-messages", "relay.context_messages"),
		MaxConcurrency:     configutil.FlagOrViperInt(cmd, "max-concurrency", "relay.max_concurrency"),
		PlaceholderText:    strings.TrimSpace(viper.GetString("relay.placeholder_text")),
		DisplaySources:     viper.GetBool("render.display_sources"),
		FeedbackEnabled:    viper.GetBool("feedback.enabled"),
		FeedbackMaxEntries: viper.GetInt("feedback.max_entries"),
		HealthListen:       configutil.FlagOrViperString(cmd, "health-listen", "health.listen"),
		HealthAuthToken:    strings.TrimSpace(viper.GetString("health.auth_token")),
	}
	cfg.EmbedColor, cfg.EmbedColorValid = ParseColor(viper.GetString("render.embed_color"))
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.ContextMessages < 0 {
		cfg.ContextMessages = 0
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.FeedbackMaxEntries <= 0 {
		cfg.FeedbackMaxEntries = DefaultFeedbackMaxEntries
	}

	if err := cfg.Validate(need); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate(need Requirement) error {
	var problems []string
	if need&RequireDiscord != 0 {
		if c.DiscordToken == "" {
			problems = append(problems, "DISCORD_TOKEN is required")
		}
		if c.MonitoredChannelID == "" {
			problems = append(problems, "MONITORED_CHANNEL_ID is required")
		} else if id, err := strconv.ParseUint(c.MonitoredChannelID, 10, 64); err != nil || id == 0 {
			problems = append(problems, "MONITORED_CHANNEL_ID must be a positive integer")
		}
	}
	if need&RequireAPI != 0 {
		if c.APIURL == "" {
			problems = append(problems, "OPENWEB_API_URL is required")
		} else if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, "OPENWEB_API_URL must be an http(s) URL")
		}
		if c.APIKey == "" {
			problems = append(problems, "OPENWEB_API_KEY is required")
		}
		if c.Model == "" {
			problems = append(problems, "MODEL_NAME is required")
		}
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ParseColor reads "#RRGGBB", "0xRRGGBB" or "RRGGBB". Invalid input yields
// the default color and ok=false.
func ParseColor(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 6 {
		return defaultEmbedColorValue, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return defaultEmbedColorValue, false
	}
	return int(v), true
}

// Redacted is the printable view of Config with secrets masked.
type Redacted struct {
	Discord  RedactedDiscord  `yaml:"discord"`
	OpenWeb  RedactedOpenWeb  `yaml:"openweb"`
	Relay    RedactedRelay    `yaml:"relay"`
	Render   RedactedRender   `yaml:"render"`
	Feedback RedactedFeedback `yaml:"feedback"`
	Health   RedactedHealth   `yaml:"health"`
}

type RedactedDiscord struct {
	Token              string `yaml:"token"`
	MonitoredChannelID string `yaml:"monitored_channel_id"`
}

type RedactedOpenWeb struct {
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RedactedRelay struct {
	ContextMessages int    `yaml:"context_messages"`
	MaxConcurrency  int    `yaml:"max_concurrency"`
	PlaceholderText string `yaml:"placeholder_text,omitempty"`
}

type RedactedRender struct {
	EmbedColor     string `yaml:"embed_color"`
	DisplaySources bool   `yaml:"display_sources"`
}

type RedactedFeedback struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

type RedactedHealth struct {
	Listen    string `yaml:"listen,omitempty"`
	AuthToken string `yaml:"auth_token,omitempty"`
}

func (c Config) Redacted() Redacted {
	return Redacted{
		Discord: RedactedDiscord{
			Token:              mask(c.DiscordToken),
			MonitoredChannelID: c.MonitoredChannelID,
		},
		OpenWeb: RedactedOpenWeb{
			APIURL:         c.APIURL,
			APIKey:         mask(c.APIKey),
			Model:          c.Model,
			TimeoutSeconds: c.TimeoutSeconds,
		},
		Relay: RedactedRelay{
			ContextMessages: c.ContextMessages,
			MaxConcurrency:  c.MaxConcurrency,
			PlaceholderText: c.PlaceholderText,
		},
		Render: RedactedRender{
			EmbedColor:     fmt.Sprintf("#%06X", c.EmbedColor),
			DisplaySources: c.DisplaySources,
		},
		Feedback: RedactedFeedback{
			Enabled:    c.FeedbackEnabled,
			MaxEntries: c.FeedbackMaxEntries,
		},
		Health: RedactedHealth{
			Listen:    c.HealthListen,
			AuthToken: mask(c.HealthAuthToken),
		},
	}
}

func mask(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) <= 8 {
		return "****"
	}
	return string(runes[:4]) + "****"
}
