package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/knowledge"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/patrol"
	"github.com/dotsetgreg/deskpatrol/pkg/providers"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/dotsetgreg/deskpatrol/pkg/schedule"
	"github.com/dotsetgreg/deskpatrol/pkg/state"
	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()
	return root.ExecuteContext(ctx)
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var (
		showVersion bool
		flags       = &globalFlags{}
	)

	root := &cobra.Command{
		Use:   appName,
		Short: "Periodic chat helpdesk triage over DMs and a help channel",
		Long: strings.TrimSpace(`deskpatrol answers helpdesk questions from a curated knowledge base.

Each patrol cycle reads recent direct messages and the public help channel,
answers new questions with a language model grounded on the knowledge base,
recognises thanks and complaints after its own answers, and escalates
unresolved conversations to the admin channel.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", defaultConfigPath(), "Path to the JSON config file")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newPatrolCommand(flags))
	root.AddCommand(newReportCommand(flags))
	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newKnowledgeCommand(flags))
	root.AddCommand(newStateCommand(flags))
	root.AddCommand(newAskCommand(flags))
	root.AddCommand(newStatusCommand(flags))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		root.AddCommand(newDocsCommand(func() *cobra.Command { return buildRootCommand(false) }))
	}
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPatrolCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "patrol",
		Short:   "Run one patrol cycle",
		Long:    "Run a single bounded patrol cycle and print its statistics as JSON.",
		Example: "  deskpatrol patrol --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.patrol().Run(cmd.Context())
			if werr := writeJSON(cmd.OutOrStdout(), stats); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
}

func newReportCommand(flags *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Post the weekly activity report",
		Example: strings.Join([]string{
			"  deskpatrol report",
			"  deskpatrol report --dry-run",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.reporter()
			if dryRun {
				s, err := r.Build(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), s)
			}
			sent, err := r.Send(cmd.Context())
			if err != nil {
				return err
			}
			if !sent {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity in the reporting window; nothing posted.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the summary instead of posting it")
	return cmd
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run patrol and report on their cron schedules",
		Long: strings.TrimSpace(`Run the scheduler in the foreground. The patrol runs on schedule.patrol_cron
(default every 5 minutes) and the weekly report on schedule.report_cron
(default Mondays 09:00). Stop with Ctrl-C.`),
		Example: "  deskpatrol serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.patrol()
			r := a.reporter()
			s, err := schedule.New(
				schedule.Job{Name: "patrol", Expr: cfg.Schedule.PatrolCron, Run: func(ctx context.Context) error {
					_, err := p.Run(ctx)
					return err
				}},
				schedule.Job{Name: "report", Expr: cfg.Schedule.ReportCron, Run: func(ctx context.Context) error {
					_, err := r.Send(ctx)
					return err
				}},
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving (patrol %q, report %q)\n", cfg.Schedule.PatrolCron, cfg.Schedule.ReportCron)
			if err := s.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Stopped")
			return nil
		},
	}
}

func newKnowledgeCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the curated Q&A and document corpus",
	}

	root.AddCommand(&cobra.Command{
		Use:     "import <file.yaml>",
		Short:   "Replace the corpus with a YAML seed file",
		Args:    cobra.ExactArgs(1),
		Example: "  deskpatrol knowledge import ./knowledge.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			seed, err := knowledge.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := knowledge.NewSQLiteSource(db).Replace(cmd.Context(), seed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d Q&A rows and %d documents\n", len(seed.QA), len(seed.Docs))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "list",
		Short:   "List the corpus",
		Example: "  deskpatrol knowledge list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			items, err := fetchKnowledge(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCATEGORY\tQUESTION\tURL")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Kind, it.Category, it.Question, it.URL)
			}
			return tw.Flush()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "query <question>",
		Short:   "Show the ranked items and context assembled for a question",
		Args:    cobra.MinimumNArgs(1),
		Example: "  deskpatrol knowledge query \"VPNに接続できない\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			items, err := fetchKnowledge(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			scorer := knowledge.NewScorer(cfg.Patrol.MaxContextItems, cfg.Patrol.MaxTotalChars, nil)
			q := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Keywords: %s\n\n", strings.Join(scorer.Keywords(q), ", "))
			for _, sc := range scorer.Rank(items, q) {
				fmt.Fprintf(out, "%4d  [%s] %s\n", sc.Score, sc.Item.Kind, sc.Item.Question)
			}
			text, ok := scorer.BuildContext(items, q)
			if !ok {
				fmt.Fprintln(out, "\n(no context)")
				return nil
			}
			fmt.Fprintf(out, "\n--- context ---\n%s\n", text)
			return nil
		},
	})
	return root
}

func fetchKnowledge(ctx context.Context, cfg config.Config) ([]knowledge.Item, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return knowledge.NewSQLiteSource(db).FetchAll(ctx)
}

func newStateCommand(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "state",
		Short: "Inspect or compact the persisted patrol state",
	}

	root.AddCommand(&cobra.Command{
		Use:     "show",
		Short:   "Print the persisted state as JSON",
		Example: "  deskpatrol state show",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := state.Load(cmd.Context(), state.NewSQLiteKV(db), patrol.OptionsFromConfig(cfg).State)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st.Snapshot())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "gc",
		Short:   "Prune expired keys and idle threads now",
		Example: "  deskpatrol state gc",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			release, err := newLocker(cfg).Acquire(cmd.Context(), cfg.Patrol.LockTimeout())
			if err != nil {
				return fmt.Errorf("state is in use by a running patrol: %w", err)
			}
			defer release()

			st, err := state.Load(cmd.Context(), state.NewSQLiteKV(db), patrol.OptionsFromConfig(cfg).State)
			if err != nil {
				return err
			}
			stats := st.RunGC()
			if err := st.Save(cmd.Context()); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	})
	return root
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and store readiness",
		Example: "  deskpatrol status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "%s Status\n", appName)
			fmt.Fprintf(out, "Version: %s\n\n", formatVersion())

			if _, err := os.Stat(flags.configPath); err == nil {
				fmt.Fprintln(out, "Config:", flags.configPath, "✓")
			} else {
				fmt.Fprintln(out, "Config:", flags.configPath, "✗ (defaults + environment)")
			}
			if _, err := os.Stat(cfg.StorePath()); err == nil {
				fmt.Fprintln(out, "Store:", cfg.StorePath(), "✓")
			} else {
				fmt.Fprintln(out, "Store:", cfg.StorePath(), "not initialized")
			}

			fmt.Fprintln(out, "Chat platform:", cfg.Chat.Platform)
			fmt.Fprintln(out, "Slack token:", ready(!blank(cfg.Chat.Slack.Token)))
			fmt.Fprintln(out, "Discord token:", ready(!blank(cfg.Chat.Discord.Token)))
			if cfg.Chat.Platform == config.PlatformDiscord {
				fmt.Fprintln(out, "Discord DM users:", len(cfg.Chat.Discord.DMUserIDs))
			}
			fmt.Fprintln(out, "Admin channel:", ready(!blank(cfg.Chat.AdminChannelID)))
			fmt.Fprintln(out, "Public channel:", ready(!blank(cfg.Chat.PublicChannelID)))
			fmt.Fprintln(out, "Report channel:", cfg.ReportChannel())

			for _, slot := range responder.FromConfig(cfg).Slots() {
				label := strings.ToUpper(slot.Name[:1]) + slot.Name[1:] + " provider"
				switch {
				case slot.Kind == "":
					fmt.Fprintf(out, "%s: not set\n", label)
				case errors.Is(slot.Err, providers.ErrProviderNotConfigured):
					fmt.Fprintf(out, "%s: %s ✗ (missing credentials)\n", label, slot.Kind)
				case slot.Err != nil:
					fmt.Fprintf(out, "%s: %s ✗ (%v)\n", label, slot.Kind, slot.Err)
				default:
					model := slot.Model
					if model == "" {
						model = slot.Provider.GetDefaultModel()
					}
					fmt.Fprintf(out, "%s: %s ✓ (model %s)\n", label, slot.Kind, model)
				}
			}

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\nPatrol ready: ✗\n%v\n", err)
				return nil
			}
			fmt.Fprintln(out, "\nPatrol ready: ✓")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  deskpatrol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
