package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"

	DefaultFallbackURL = "https://example.com/manual"
	DefaultBotName     = "情シスの番猫シスにゃん"
)

// Config is built once at startup and handed to every component by value.
// Nothing reads it through package state.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Chat      ChatConfig      `json:"chat"`
	Bot       BotConfig       `json:"bot"`
	Providers ProvidersConfig `json:"providers"`
	Patrol    PatrolConfig    `json:"patrol"`
	Report    ReportConfig    `json:"report"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Logging   LoggingConfig   `json:"logging"`
}

type StoreConfig struct {
	Path     string `json:"path" env:"DESKPATROL_STORE_PATH"`
	LockPath string `json:"lock_path" env:"DESKPATROL_STORE_LOCK_PATH"`
}

type ChatConfig struct {
	Platform        string        `json:"platform" env:"DESKPATROL_CHAT_PLATFORM"`
	Slack           SlackConfig   `json:"slack"`
	Discord         DiscordConfig `json:"discord"`
	AdminChannelID  string        `json:"admin_channel_id" env:"DESKPATROL_CHAT_ADMIN_CHANNEL_ID"`
	PublicChannelID string        `json:"public_channel_id" env:"DESKPATROL_CHAT_PUBLIC_CHANNEL_ID"`
	ReportChannelID string        `json:"report_channel_id" env:"DESKPATROL_CHAT_REPORT_CHANNEL_ID"`
	BotID           string        `json:"bot_id" env:"DESKPATROL_CHAT_BOT_ID"`
	RetryAttempts   int           `json:"retry_attempts" env:"DESKPATROL_CHAT_RETRY_ATTEMPTS"`
	RetryBackoffMS  int           `json:"retry_backoff_ms" env:"DESKPATROL_CHAT_RETRY_BACKOFF_MS"`
}

type SlackConfig struct {
	Token   string `json:"token" env:"DESKPATROL_CHAT_SLACK_TOKEN"`
	APIBase string `json:"api_base,omitempty" env:"DESKPATROL_CHAT_SLACK_API_BASE"`
}

type DiscordConfig struct {
	Token string `json:"token" env:"DESKPATROL_CHAT_DISCORD_TOKEN"`
	// DMUserIDs are the users whose DMs are patrolled; Discord has no API
	// for a bot to list its open DMs.
	DMUserIDs []string `json:"dm_user_ids,omitempty" env:"DESKPATROL_CHAT_DISCORD_DM_USER_IDS" envSeparator:","`
}

type BotConfig struct {
	Name        string `json:"name" env:"DESKPATROL_BOT_NAME"`
	FallbackURL string `json:"fallback_url" env:"DESKPATROL_BOT_FALLBACK_URL"`
}

type ProvidersConfig struct {
	Primary   ProviderConfig `json:"primary" envPrefix:"DESKPATROL_PROVIDERS_PRIMARY_"`
	Secondary ProviderConfig `json:"secondary" envPrefix:"DESKPATROL_PROVIDERS_SECONDARY_"`
}

// ProviderConfig selects one language-model endpoint. Kind is one of the
// names registered in pkg/providers.
type ProviderConfig struct {
	Kind    string `json:"kind" env:"KIND"`
	APIKey  string `json:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base,omitempty" env:"API_BASE"`
	Model   string `json:"model,omitempty" env:"MODEL"`
	Proxy   string `json:"proxy,omitempty" env:"PROXY"`
	// MaxTokens caps the reply length; zero keeps the provider default.
	MaxTokens int `json:"max_tokens,omitempty" env:"MAX_TOKENS"`
}

type PatrolConfig struct {
	FetchLimit           int `json:"fetch_limit" env:"DESKPATROL_PATROL_FETCH_LIMIT"`
	ThreadFetchLimit     int `json:"thread_fetch_limit" env:"DESKPATROL_PATROL_THREAD_FETCH_LIMIT"`
	MaxContextItems      int `json:"max_context_items" env:"DESKPATROL_PATROL_MAX_CONTEXT_ITEMS"`
	MaxHistoryTurns      int `json:"max_history_turns" env:"DESKPATROL_PATROL_MAX_HISTORY_TURNS"`
	MaxTotalChars        int `json:"max_total_chars" env:"DESKPATROL_PATROL_MAX_TOTAL_CHARS"`
	MaxDMMonitor         int `json:"max_dm_monitor" env:"DESKPATROL_PATROL_MAX_DM_MONITOR"`
	MaxThreadMonitor     int `json:"max_thread_monitor" env:"DESKPATROL_PATROL_MAX_THREAD_MONITOR"`
	RetentionDays        int `json:"retention_days" env:"DESKPATROL_PATROL_RETENTION_DAYS"`
	LockTimeoutMS        int `json:"lock_timeout_ms" env:"DESKPATROL_PATROL_LOCK_TIMEOUT_MS"`
	ExecTimeLimitSec     int `json:"exec_time_limit_sec" env:"DESKPATROL_PATROL_EXEC_TIME_LIMIT_SEC"`
	MaxMemoryKeys        int `json:"max_memory_keys" env:"DESKPATROL_PATROL_MAX_MEMORY_KEYS"`
	IgnoreOlderThanSec   int `json:"ignore_older_than_sec" env:"DESKPATROL_PATROL_IGNORE_OLDER_THAN_SEC"`
	MessageDelayMS       int `json:"message_delay_ms" env:"DESKPATROL_PATROL_MESSAGE_DELAY_MS"`
	TargetDelayMS        int `json:"target_delay_ms" env:"DESKPATROL_PATROL_TARGET_DELAY_MS"`
	ActiveThreadTTLHours int `json:"active_thread_ttl_hours" env:"DESKPATROL_PATROL_ACTIVE_THREAD_TTL_HOURS"`
}

type ReportConfig struct {
	LookbackDays          int `json:"lookback_days" env:"DESKPATROL_REPORT_LOOKBACK_DAYS"`
	TimeSavedPerTicketMin int `json:"time_saved_per_ticket_min" env:"DESKPATROL_REPORT_TIME_SAVED_PER_TICKET_MIN"`
	TopTopics             int `json:"top_topics" env:"DESKPATROL_REPORT_TOP_TOPICS"`
}

type ScheduleConfig struct {
	PatrolCron string `json:"patrol_cron" env:"DESKPATROL_SCHEDULE_PATROL_CRON"`
	ReportCron string `json:"report_cron" env:"DESKPATROL_SCHEDULE_REPORT_CRON"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"DESKPATROL_LOGGING_LEVEL"`
	Format string `json:"format" env:"DESKPATROL_LOGGING_FORMAT"`
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Path:     "~/.deskpatrol/deskpatrol.db",
			LockPath: "~/.deskpatrol/patrol.lck",
		},
		Chat: ChatConfig{
			Platform:       PlatformSlack,
			RetryAttempts:  3,
			RetryBackoffMS: 1000,
		},
		Bot: BotConfig{
			Name:        DefaultBotName,
			FallbackURL: DefaultFallbackURL,
		},
		Providers: ProvidersConfig{
			Primary:   ProviderConfig{Kind: "gemini", Model: "gemini-1.5-flash"},
			Secondary: ProviderConfig{Kind: "groq", Model: "llama-3.1-8b-instant"},
		},
		Patrol: PatrolConfig{
			FetchLimit:           20,
			ThreadFetchLimit:     10,
			MaxContextItems:      15,
			MaxHistoryTurns:      2,
			MaxTotalChars:        15000,
			MaxDMMonitor:         50,
			MaxThreadMonitor:     5,
			RetentionDays:        30,
			LockTimeoutMS:        10000,
			ExecTimeLimitSec:     280,
			MaxMemoryKeys:        200,
			IgnoreOlderThanSec:   600,
			MessageDelayMS:       1500,
			TargetDelayMS:        200,
			ActiveThreadTTLHours: 48,
		},
		Report: ReportConfig{
			LookbackDays:          7,
			TimeSavedPerTicketMin: 15,
			TopTopics:             3,
		},
		Schedule: ScheduleConfig{
			PatrolCron: "*/5 * * * *",
			ReportCron: "0 9 * * 1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads path over the defaults and then applies DESKPATROL_*
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func SaveConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) normalize() {
	c.Chat.Platform = strings.ToLower(strings.TrimSpace(c.Chat.Platform))
	if c.Chat.Platform == "" {
		c.Chat.Platform = PlatformSlack
	}
	if strings.TrimSpace(c.Bot.FallbackURL) == "" {
		c.Bot.FallbackURL = DefaultFallbackURL
	}
	if strings.TrimSpace(c.Bot.Name) == "" {
		c.Bot.Name = DefaultBotName
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	switch c.Chat.Platform {
	case PlatformSlack:
		if strings.TrimSpace(c.Chat.Slack.Token) == "" {
			errs = append(errs, errors.New("chat.slack.token is required (or DESKPATROL_CHAT_SLACK_TOKEN)"))
		}
	case PlatformDiscord:
		if strings.TrimSpace(c.Chat.Discord.Token) == "" {
			errs = append(errs, errors.New("chat.discord.token is required (or DESKPATROL_CHAT_DISCORD_TOKEN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported chat.platform %q", c.Chat.Platform))
	}
	if strings.TrimSpace(c.Chat.AdminChannelID) == "" {
		errs = append(errs, errors.New("chat.admin_channel_id is required"))
	}
	return errors.Join(errs...)
}

func (c Config) StorePath() string {
	return expandHome(c.Store.Path)
}

func (c Config) LockPath() string {
	if strings.TrimSpace(c.Store.LockPath) == "" {
		return expandHome(c.Store.Path) + ".lck"
	}
	return expandHome(c.Store.LockPath)
}

// ReportChannel falls back to the admin channel.
func (c Config) ReportChannel() string {
	if id := strings.TrimSpace(c.Chat.ReportChannelID); id != "" {
		return id
	}
	return c.Chat.AdminChannelID
}

func (p PatrolConfig) LockTimeout() time.Duration {
	return time.Duration(p.LockTimeoutMS) * time.Millisecond
}

func (p PatrolConfig) ExecTimeLimit() time.Duration {
	return time.Duration(p.ExecTimeLimitSec) * time.Second
}

// StaleLockAfter is how old a lock file left behind by a crashed cycle must
// be before the next cycle breaks it.
func (p PatrolConfig) StaleLockAfter() time.Duration {
	return p.ExecTimeLimit() + p.LockTimeout() + 5*time.Minute
}

func (p PatrolConfig) IgnoreOlderThan() time.Duration {
	return time.Duration(p.IgnoreOlderThanSec) * time.Second
}

func (p PatrolConfig) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

func (p PatrolConfig) ActiveThreadTTL() time.Duration {
	return time.Duration(p.ActiveThreadTTLHours) * time.Hour
}

func (p PatrolConfig) MessageDelay() time.Duration {
	return time.Duration(p.MessageDelayMS) * time.Millisecond
}

func (p PatrolConfig) TargetDelay() time.Duration {
	return time.Duration(p.TargetDelayMS) * time.Millisecond
}

func (c ChatConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

// ExpandHome resolves a leading ~ against the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}
