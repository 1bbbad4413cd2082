package patrol

import (
	"context"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/state"
)

// revisitThreads looks at each watched thread for a late human reply that
// directly follows a bot answer. Only the last two messages are compared.
func (p *Patrol) revisitThreads(ctx context.Context, c *cycle) {
	threads := c.st.ActiveThreads()
	for i, th := range threads {
		if p.overBudget(c) {
			c.stats.Deferred += len(threads) - i
			logger.WarnCF("patrol", "Time budget spent, deferring thread revisit", map[string]any{
				"cycle_id": c.id,
				"deferred": len(threads) - i,
			})
			return
		}
		c.stats.Threads++
		p.revisitThread(ctx, c, th)
	}
}

func (p *Patrol) revisitThread(ctx context.Context, c *cycle, th state.ActiveThread) {
	replies, err := p.deps.Platform.FetchThreadReplies(ctx, th.ChannelID, th.ThreadTS, p.opts.ThreadFetchLimit)
	if err != nil {
		logger.WarnCF("patrol", "Fetching thread replies failed", map[string]any{
			"cycle_id": c.id,
			"channel":  th.ChannelID,
			"thread":   th.ThreadTS,
			"error":    err.Error(),
		})
		return
	}
	if len(replies) == 0 {
		return
	}

	kind := chat.KindPublic
	if c.isDirectTarget(th.ChannelID) {
		kind = chat.KindDirect
	}
	target := chat.Target{ID: th.ChannelID, Kind: kind}

	for i, m := range replies {
		if !m.IsBot() {
			continue
		}
		var question *chat.Message
		if i > 0 {
			question = &replies[i-1]
		}
		p.checkReactions(ctx, c, target, m, question)
	}

	last := replies[len(replies)-1]
	if c.st.IsProcessed(th.ChannelID, last.TS) || last.IsBot() || last.SubType != "" {
		return
	}
	if len(replies) < 2 || !replies[len(replies)-2].IsBot() {
		return
	}

	if IsGratitude(last.Text) {
		if p.resolve(ctx, c, target, last) {
			c.st.MarkProcessed(th.ChannelID, last.TS)
		}
		return
	}
	if err := p.escalate(ctx, c, target, last, replies); err != nil {
		c.stats.Failed++
		logger.ErrorCF("escalation", "Thread escalation failed, will retry next cycle", map[string]any{
			"cycle_id": c.id,
			"channel":  th.ChannelID,
			"ts":       last.TS,
			"error":    err.Error(),
		})
		return
	}
	c.st.MarkProcessed(th.ChannelID, last.TS)
	p.saveCheckpoint(ctx, c)
}
