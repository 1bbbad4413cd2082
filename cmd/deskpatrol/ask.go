package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/knowledge"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/spf13/cobra"
)

// asker answers questions locally the way a DM would be answered, without
// touching chat state or the usage log.
type asker struct {
	items       []knowledge.Item
	scorer      *knowledge.Scorer
	gen         responder.Answerer
	fallbackURL string
	// history carries prior turns so follow-ups behave like a DM thread.
	history  []responder.Turn
	maxTurns int
}

func (a *asker) ask(ctx context.Context, q string) (string, error) {
	text, ok := a.scorer.BuildContext(a.items, q)
	if !ok && len(a.history) == 0 {
		return responder.NoInformation + "\n" + a.fallbackURL, nil
	}
	ans, err := a.gen.Generate(ctx, responder.Request{
		Context: text,
		Query:   q,
		Direct:  true,
		History: a.history,
	})
	a.history = append(a.history,
		responder.Turn{Role: responder.RoleUser, Text: q},
		responder.Turn{Role: responder.RoleModel, Text: ans.Text},
	)
	if over := len(a.history) - 2*a.maxTurns; over > 0 {
		a.history = a.history[over:]
	}
	if responder.IsNotConfigured(err) {
		return ans.Text, fmt.Errorf("no language model provider is configured, see `%s status`: %w", appName, err)
	}
	if err != nil {
		return ans.Text, err
	}
	return fmt.Sprintf("%s\n  (%s)", ans.Text, ans.Provider), nil
}

func newAskCommand(flags *globalFlags) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask the knowledge base locally (interactive or one-shot)",
		Long:  "Answer questions with the configured providers and knowledge base without posting anything to chat.",
		Example: strings.Join([]string{
			"  deskpatrol ask",
			"  deskpatrol ask --message \"VPNに接続できない\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := newAsker(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if strings.TrimSpace(message) != "" {
				reply, err := a.ask(cmd.Context(), message)
				fmt.Fprintln(out, reply)
				return err
			}
			interactiveAsk(cmd.Context(), a, cfg.Bot.Name, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot question")
	return cmd
}

func newAsker(ctx context.Context, cfg config.Config) (*asker, error) {
	items, err := fetchKnowledge(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &asker{
		items:       items,
		scorer:      knowledge.NewScorer(cfg.Patrol.MaxContextItems, cfg.Patrol.MaxTotalChars, nil),
		gen:         responder.FromConfig(cfg),
		fallbackURL: cfg.Bot.FallbackURL,
		maxTurns:    cfg.Patrol.MaxHistoryTurns,
	}, nil
}

func interactiveAsk(ctx context.Context, a *asker, botName string, out io.Writer) {
	prompt := "❓ "
	fmt.Fprintf(out, "%s (Ctrl+C or 'exit' to quit)\n\n", botName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".deskpatrol_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		simpleAsk(ctx, a, prompt, out)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !answerLine(ctx, a, line, out) {
			return
		}
	}
}

func simpleAsk(ctx context.Context, a *asker, prompt string, out io.Writer) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if !answerLine(ctx, a, line, out) {
			return
		}
	}
}

// answerLine returns false when the session should end.
func answerLine(ctx context.Context, a *asker, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return true
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return false
	}
	reply, err := a.ask(ctx, input)
	fmt.Fprintf(out, "\n🐱 %s\n\n", reply)
	if err != nil {
		fmt.Fprintf(out, "(%v)\n\n", err)
	}
	return ctx.Err() == nil
}
