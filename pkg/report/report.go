// Package report builds the weekly activity summary from the usage log.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
)

const rule = "━━━━━━━━━━━━━━"

type Options struct {
	BotName               string
	ChannelID             string
	Lookback              time.Duration
	TimeSavedPerTicketMin int
	TopTopics             int
	Now                   func() time.Time
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BotName:               cfg.Bot.Name,
		ChannelID:             cfg.ReportChannel(),
		Lookback:              time.Duration(cfg.Report.LookbackDays) * 24 * time.Hour,
		TimeSavedPerTicketMin: cfg.Report.TimeSavedPerTicketMin,
		TopTopics:             cfg.Report.TopTopics,
	}
}

func (o Options) withDefaults() Options {
	if o.Lookback <= 0 {
		o.Lookback = 7 * 24 * time.Hour
	}
	if o.TimeSavedPerTicketMin <= 0 {
		o.TimeSavedPerTicketMin = 15
	}
	if o.TopTopics <= 0 {
		o.TopTopics = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Summary is the aggregate over one reporting window. EffectiveSolved is an
// estimate: answers that were neither escalated nor rated bad.
type Summary struct {
	Interactions    int
	Escalations     int
	NoData          int
	Solved          int
	Bad             int
	Users           int
	EffectiveSolved int
	HoursSaved      float64
	TopTopics       []string
}

// Empty means nothing worth reporting happened.
func (s Summary) Empty() bool { return s.Interactions == 0 && s.Solved == 0 }

// Summarize aggregates entries. Reaction placeholders and anonymous users are
// not counted as users.
func Summarize(entries []usagelog.Entry, minutesPerTicket, topN int) Summary {
	var s Summary
	users := map[string]struct{}{}
	counts := map[string]int{}
	var order []string

	for _, e := range entries {
		switch {
		case e.Type == usagelog.Answered:
			s.Interactions++
		case e.Type == usagelog.Escalation:
			s.Escalations++
		case e.Type == usagelog.NoData:
			s.NoData++
		case e.Type.IsSolved():
			s.Solved++
		case e.Type == usagelog.BadFeedback:
			s.Bad++
		}

		if e.User != "" && !strings.Contains(e.User, "Reaction") && !strings.Contains(e.User, "匿名") {
			users[e.User] = struct{}{}
		}

		if (e.Type == usagelog.Answered || e.Type == usagelog.NoData) &&
			len([]rune(e.Text)) > 2 && !strings.Contains(e.Text, "[対象回答ID]") {
			if counts[e.Text] == 0 {
				order = append(order, e.Text)
			}
			counts[e.Text]++
		}
	}

	s.Users = len(users)
	s.EffectiveSolved = max(0, s.Interactions-s.Escalations-s.Bad)
	s.HoursSaved = float64(s.EffectiveSolved*minutesPerTicket) / 60

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topN {
		order = order[:topN]
	}
	s.TopTopics = order
	return s
}

// Render formats the summary as a Slack mrkdwn message.
func Render(botName string, lookbackDays, topN int, s Summary) string {
	topics := "特になし"
	if len(s.TopTopics) > 0 {
		lines := make([]string, len(s.TopTopics))
		for i, t := range s.TopTopics {
			lines[i] = fmt.Sprintf("%d. %s", i+1, t)
		}
		topics = strings.Join(lines, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s 週間活動レポート*\n", botName)
	fmt.Fprintf(&b, "(期間: 直近%d日間)\n\n", lookbackDays)
	b.WriteString(rule + "\n")
	b.WriteString("■ *ハイライト*\n")
	fmt.Fprintf(&b, "💰 削減工数: *%.1f時間* 相当\n", s.HoursSaved)
	fmt.Fprintf(&b, "🗣️ 対応件数: %d件 (%dユーザー)\n", s.Interactions, s.Users)
	fmt.Fprintf(&b, "✅ 解決数(推測): %d件\n", s.EffectiveSolved)
	fmt.Fprintf(&b, "👍 Good反応: %d件\n\n", s.Solved)
	b.WriteString("■ *要注意エリア*\n")
	fmt.Fprintf(&b, "🚨 有人対応: %d件\n", s.Escalations)
	fmt.Fprintf(&b, "👎 Bad反応: %d件\n", s.Bad)
	fmt.Fprintf(&b, "📉 資料不足: %d件\n\n", s.NoData)
	fmt.Fprintf(&b, "■ *よくある質問 (Top %d)*\n", topN)
	b.WriteString("```\n" + topics + "\n```\n")
	b.WriteString(rule)
	return b.String()
}

// Poster is the slice of chat.Platform the reporter needs.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) (chat.Posted, error)
}

type Reporter struct {
	sink   usagelog.Sink
	poster Poster
	opts   Options
}

func New(sink usagelog.Sink, poster Poster, opts Options) *Reporter {
	return &Reporter{sink: sink, poster: poster, opts: opts.withDefaults()}
}

// Build reads the window and summarizes it without posting.
func (r *Reporter) Build(ctx context.Context) (Summary, error) {
	since := r.opts.Now().Add(-r.opts.Lookback)
	entries, err := r.sink.Since(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("read usage log: %w", err)
	}
	return Summarize(entries, r.opts.TimeSavedPerTicketMin, r.opts.TopTopics), nil
}

// Send posts the report. It returns false when the window was empty and
// nothing was posted.
func (r *Reporter) Send(ctx context.Context) (bool, error) {
	s, err := r.Build(ctx)
	if err != nil {
		return false, err
	}
	if s.Empty() {
		logger.InfoCF("report", "Nothing to report", nil)
		return false, nil
	}
	if r.opts.ChannelID == "" {
		return false, errors.New("report channel is not configured")
	}

	text := Render(r.opts.BotName, int(r.opts.Lookback/(24*time.Hour)), r.opts.TopTopics, s)
	if _, err := r.poster.PostMessage(ctx, r.opts.ChannelID, text, ""); err != nil {
		return false, fmt.Errorf("post weekly report: %w", err)
	}
	logger.InfoCF("report", "Weekly report posted", map[string]any{
		"channel":      r.opts.ChannelID,
		"interactions": s.Interactions,
		"escalations":  s.Escalations,
	})
	return true, nil
}
