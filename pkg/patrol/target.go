package patrol

import (
	"context"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
)

func (p *Patrol) patrolTarget(ctx context.Context, c *cycle, target chat.Target) {
	fields := map[string]any{"cycle_id": c.id, "channel": target.ID, "kind": string(target.Kind)}

	msgs, err := p.deps.Platform.FetchMessages(ctx, target.ID, p.opts.FetchLimit)
	if err != nil {
		fields["error"] = err.Error()
		logger.WarnCF("patrol", "Fetching messages failed", fields)
		return
	}
	if len(msgs) == 0 {
		return
	}

	sorted := chronological(msgs)
	cursor := c.st.Cursor(target.ID)
	advance := func(ts string) { cursor = chat.MaxTS(cursor, ts) }

	for _, msg := range sorted {
		var history []responder.Turn
		if target.IsDirect() && !msg.IsBot() && msg.SubType == "" {
			history = ConversationHistory(sorted, msg.TS, p.opts.MaxHistoryTurns)
		}
		action := Classify(target, msg, history, c.st.IsProcessed(target.ID, msg.TS), c.start.Sub(msg.Time()), p.opts.IgnoreOlderThan)

		switch action {
		case ActionFeedback:
			if msg.IsBot() {
				p.checkReactions(ctx, c, target, msg, nil)
			}
			advance(msg.TS)

		case ActionSkip:
			advance(msg.TS)

		case ActionStale:
			c.st.MarkProcessed(target.ID, msg.TS)
			c.stats.Stale++
			advance(msg.TS)

		case ActionFirstContact, ActionAnswer:
			p.react(ctx, target.ID, msg.TS, chat.ReactionThinking)
			if p.answer(ctx, c, target, msg, history) {
				c.st.MarkProcessed(target.ID, msg.TS)
				p.saveCheckpoint(ctx, c)
				advance(msg.TS)
			} else {
				c.stats.Failed++
			}
			p.pause(ctx, p.opts.MessageDelay)

		case ActionSolved:
			if p.resolve(ctx, c, target, msg) {
				c.st.MarkProcessed(target.ID, msg.TS)
				advance(msg.TS)
			} else {
				c.stats.Failed++
			}
			p.pause(ctx, p.opts.MessageDelay)

		case ActionEscalate:
			if err := p.escalate(ctx, c, target, msg, sorted); err != nil {
				c.stats.Failed++
				logger.ErrorCF("escalation", "Escalation failed, will retry next cycle", map[string]any{
					"cycle_id": c.id,
					"channel":  target.ID,
					"ts":       msg.TS,
					"error":    err.Error(),
				})
			} else {
				c.st.MarkProcessed(target.ID, msg.TS)
				p.saveCheckpoint(ctx, c)
				advance(msg.TS)
			}
			p.pause(ctx, p.opts.MessageDelay)
		}
	}

	if target.IsDirect() {
		c.st.SetCursor(target.ID, cursor)
	}
	p.saveCheckpoint(ctx, c)
}

// answer builds and posts a reply to msg. It reports whether the post landed;
// a failed post leaves msg unprocessed for the next cycle.
func (p *Patrol) answer(ctx context.Context, c *cycle, target chat.Target, msg chat.Message, history []responder.Turn) bool {
	direct := target.IsDirect()
	topLevelPublic := !direct && msg.ThreadTS == ""
	user := c.names.ResolveDisplayName(ctx, msg.User)

	contextText, ok := p.opts.Scorer.BuildContext(c.knowledge, msg.Text)

	var reply string
	if !ok && len(history) == 0 {
		p.deps.Usage.Log(ctx, user, usagelog.NoData, msg.Text, "Context Missing")
		c.stats.NoData++
		reply = fallbackText(p.opts.FallbackURL)
		if topLevelPublic {
			reply = responder.Greeting(p.opts.BotName) + "\n\n" + reply
		}
	} else {
		ans, err := p.deps.Answerer.Generate(ctx, responder.Request{
			Context:       contextText,
			Query:         msg.Text,
			Direct:        direct,
			History:       history,
			NeedsGreeting: topLevelPublic,
		})
		result := "AI Generated"
		if err != nil {
			result = "Generation Failed"
			logger.WarnCF("patrol", "Answer generation failed, replying with apology", map[string]any{
				"cycle_id": c.id,
				"channel":  target.ID,
				"ts":       msg.TS,
				"error":    err.Error(),
			})
		}
		p.deps.Usage.Log(ctx, user, usagelog.Answered, msg.Text, result)
		c.stats.Answered++
		reply = ans.Text
	}

	text := mention(msg.User) + "\n" + p.opts.Format(reply) + guideFor(direct)
	if _, err := p.deps.Platform.PostMessage(ctx, target.ID, text, msg.ThreadRoot()); err != nil {
		logger.ErrorCF("patrol", "Posting answer failed", map[string]any{
			"cycle_id": c.id,
			"channel":  target.ID,
			"ts":       msg.TS,
			"error":    err.Error(),
		})
		return false
	}
	c.st.AddActiveThread(target.ID, msg.ThreadRoot())
	return true
}

// resolve acknowledges a "thanks, solved" reply.
func (p *Patrol) resolve(ctx context.Context, c *cycle, target chat.Target, msg chat.Message) bool {
	p.react(ctx, target.ID, msg.TS, chat.ReactionSolved)
	if _, err := p.deps.Platform.PostMessage(ctx, target.ID, SolvedReply, msg.ThreadRoot()); err != nil {
		logger.ErrorCF("patrol", "Posting solved reply failed", map[string]any{
			"cycle_id": c.id,
			"channel":  target.ID,
			"ts":       msg.TS,
			"error":    err.Error(),
		})
		return false
	}
	p.deps.Usage.Log(ctx, c.names.ResolveDisplayName(ctx, msg.User), usagelog.SolvedText, msg.Text, "User said thanks")
	c.stats.Solved++
	return true
}

// react is best effort.
func (p *Patrol) react(ctx context.Context, channelID, ts, name string) {
	if err := p.deps.Platform.AddReaction(ctx, channelID, ts, name); err != nil {
		logger.WarnCF("patrol", "Adding reaction failed", map[string]any{
			"channel":  channelID,
			"ts":       ts,
			"reaction": name,
			"error":    err.Error(),
		})
	}
}
