package patrol

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
)

const transcriptLookback = 3

// escalate hands trigger over to the admin channel at most once per
// (channel, ts). window holds the surrounding messages in chronological
// order. An error means the admin was not notified and nothing was recorded.
func (p *Patrol) escalate(ctx context.Context, c *cycle, target chat.Target, trigger chat.Message, window []chat.Message) error {
	if c.st.IsEscalated(target.ID, trigger.TS) {
		logger.DebugCF("escalation", "Already escalated", map[string]any{"channel": target.ID, "ts": trigger.TS})
		return nil
	}
	p.react(ctx, target.ID, trigger.TS, chat.ReactionEscalate)

	notice := adminNotice(trigger.User, p.transcript(trigger, window))
	if _, err := p.deps.Platform.PostMessage(ctx, p.opts.AdminChannelID, notice, ""); err != nil {
		return fmt.Errorf("post escalation notice: %w", err)
	}
	p.deps.Usage.Log(ctx, c.names.ResolveDisplayName(ctx, trigger.User), usagelog.Escalation, trigger.Text, "Admin Called")

	ack := EscalationReplyPublic
	if target.IsDirect() {
		ack = EscalationReplyDM
	}
	if _, err := p.deps.Platform.PostMessage(ctx, target.ID, mention(trigger.User)+"\n"+ack, trigger.ThreadRoot()); err != nil {
		logger.WarnCF("escalation", "Posting escalation acknowledgement failed", map[string]any{
			"cycle_id": c.id,
			"channel":  target.ID,
			"ts":       trigger.TS,
			"error":    err.Error(),
		})
	}
	p.react(ctx, target.ID, trigger.TS, chat.ReactionDone)

	c.st.MarkEscalated(target.ID, trigger.TS)
	p.saveCheckpoint(ctx, c)
	c.stats.Escalated++
	logger.InfoCF("escalation", "Escalated to admin channel", map[string]any{
		"cycle_id": c.id,
		"channel":  target.ID,
		"ts":       trigger.TS,
	})
	return nil
}

// transcript renders the trigger and up to three messages before it.
func (p *Patrol) transcript(trigger chat.Message, window []chat.Message) string {
	idx := -1
	for i, m := range window {
		if m.TS == trigger.TS {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	var b strings.Builder
	for _, m := range window[max(0, idx-transcriptLookback) : idx+1] {
		icon, name := "👤", "User"
		if m.IsBot() {
			icon, name = "🐱", p.opts.BotName
		}
		fmt.Fprintf(&b, "%s *%s:*\n%s\n\n", icon, name, strings.TrimSpace(StripGuides(m.Text)))
	}
	return b.String()
}
