package patrol

import (
	"context"
	"slices"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
)

const (
	feedbackGood = ":GOOD"
	feedbackBad  = ":BAD"

	reactionUser = "User(Reaction)"
)

// checkReactions turns reactions on a bot answer into usage events, once per
// answer and polarity. question is the message the answer replied to, when
// known.
func (p *Patrol) checkReactions(ctx context.Context, c *cycle, target chat.Target, answer chat.Message, question *chat.Message) {
	if len(answer.Reactions) == 0 {
		return
	}
	if p.opts.BotID != "" && answer.BotID != p.opts.BotID {
		return
	}

	for _, r := range answer.Reactions {
		var typ usagelog.EventType
		var key string
		switch {
		case slices.Contains(chat.GoodReactions, r):
			typ, key = usagelog.SolvedReaction, answer.TS+feedbackGood
		case slices.Contains(chat.BadReactions, r):
			typ, key = usagelog.BadFeedback, answer.TS+feedbackBad
		default:
			continue
		}
		if c.st.IsProcessed(target.ID, key) {
			continue
		}

		user, text := reactionUser, "[Bot回答への反応]: "+truncateRunes(answer.Text, 50)+"..."
		if question != nil {
			user = c.names.ResolveDisplayName(ctx, question.User)
			text = question.Text
		}
		p.deps.Usage.Log(ctx, user, typ, text, "Reaction: "+r)
		c.st.MarkProcessed(target.ID, key)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
