package main

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/knowledge"
	"github.com/dotsetgreg/deskpatrol/pkg/lock"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/patrol"
	"github.com/dotsetgreg/deskpatrol/pkg/report"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/dotsetgreg/deskpatrol/pkg/state"
	"github.com/dotsetgreg/deskpatrol/pkg/storage"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
)

// globalFlags are bound on the root command and read by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if g.debug {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Logging.Format); err != nil {
		return config.Config{}, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// app holds the long-lived handles built from one Config.
type app struct {
	cfg      config.Config
	db       *sql.DB
	platform chat.Platform
	format   func(string) string
}

func openStore(cfg config.Config) (*sql.DB, error) {
	db, err := storage.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.StorePath(), err)
	}
	return db, nil
}

// newPlatform builds the configured chat adapter wrapped in the retry policy,
// plus the reply formatter matching its markup.
func newPlatform(cfg config.Config) (chat.Platform, func(string) string, error) {
	var (
		p      chat.Platform
		format = func(s string) string { return s }
	)
	switch cfg.Chat.Platform {
	case config.PlatformSlack:
		sp, err := chat.NewSlackPlatform(chat.SlackOptions{
			Token:    cfg.Chat.Slack.Token,
			APIBase:  cfg.Chat.Slack.APIBase,
			Username: cfg.Bot.Name,
		})
		if err != nil {
			return nil, nil, err
		}
		p, format = sp, chat.FormatMrkdwn
	case config.PlatformDiscord:
		dp, err := chat.NewDiscordPlatform(chat.DiscordOptions{
			Token:     cfg.Chat.Discord.Token,
			DMUserIDs: cfg.Chat.Discord.DMUserIDs,
		})
		if err != nil {
			return nil, nil, err
		}
		p = dp
	default:
		return nil, nil, fmt.Errorf("unsupported chat platform %q", cfg.Chat.Platform)
	}
	return chat.WithRetry(p, chat.RetryPolicy{
		Attempts: cfg.Chat.RetryAttempts,
		Backoff:  cfg.Chat.RetryBackoff(),
	}), format, nil
}

// openApp validates the config and opens the store and chat adapter.
func openApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	p, format, err := newPlatform(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{cfg: cfg, db: db, platform: p, format: format}, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) patrol() *patrol.Patrol {
	opts := patrol.OptionsFromConfig(a.cfg)
	opts.Format = a.format
	return patrol.New(patrol.Deps{
		Platform:  a.platform,
		Knowledge: knowledge.NewSQLiteSource(a.db),
		Answerer:  responder.FromConfig(a.cfg),
		KV:        state.NewSQLiteKV(a.db),
		Usage:     usagelog.NewRecorder(usagelog.NewSQLiteSink(a.db), nil),
		Locker:    newLocker(a.cfg),
	}, opts)
}

func (a *app) reporter() *report.Reporter {
	return report.New(usagelog.NewSQLiteSink(a.db), a.platform, report.OptionsFromConfig(a.cfg))
}

func newLocker(cfg config.Config) *lock.FileLock {
	return lock.NewFileLock(cfg.LockPath()).WithStaleAfter(cfg.Patrol.StaleLockAfter())
}

func ready(ok bool) string {
	if ok {
		return "✓"
	}
	return "not set"
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
