package patrol

import (
	"sort"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
)

// Action is what the cycle does with one fetched message.
type Action int

const (
	// ActionFeedback: bot or system message; only its reactions matter.
	ActionFeedback Action = iota
	ActionSkip
	ActionStale
	ActionFirstContact
	ActionSolved
	ActionEscalate
	ActionAnswer
)

func (a Action) String() string {
	switch a {
	case ActionFeedback:
		return "feedback"
	case ActionSkip:
		return "skip"
	case ActionStale:
		return "stale"
	case ActionFirstContact:
		return "first_contact"
	case ActionSolved:
		return "solved"
	case ActionEscalate:
		return "escalate"
	case ActionAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Classify decides the action for msg. history is the direct-conversation
// history preceding msg and is ignored for public targets. age is measured
// from cycle start.
func Classify(target chat.Target, msg chat.Message, history []responder.Turn, processed bool, age, staleAfter time.Duration) Action {
	if msg.IsBot() || msg.SubType != "" {
		return ActionFeedback
	}
	if processed {
		return ActionSkip
	}
	if age > staleAfter {
		return ActionStale
	}
	if !target.IsDirect() {
		return ActionAnswer
	}
	if len(history) == 0 {
		return ActionFirstContact
	}
	if history[len(history)-1].Role == responder.RoleModel {
		if IsGratitude(msg.Text) {
			return ActionSolved
		}
		return ActionEscalate
	}
	return ActionAnswer
}

// ConversationHistory walks back from currentTS over msgs (chronological)
// and returns up to 2*maxTurns earlier non-system messages, oldest first,
// with reply footers removed.
func ConversationHistory(msgs []chat.Message, currentTS string, maxTurns int) []responder.Turn {
	limit := 2 * maxTurns
	var out []responder.Turn
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := msgs[i]
		if chat.CompareTS(m.TS, currentTS) >= 0 || m.SubType != "" {
			continue
		}
		role := responder.RoleUser
		if m.IsBot() {
			role = responder.RoleModel
		}
		out = append(out, responder.Turn{Role: role, Text: StripGuides(m.Text)})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// chronological returns a copy of msgs ordered oldest first by ts value.
func chronological(msgs []chat.Message) []chat.Message {
	out := append([]chat.Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool { return chat.CompareTS(out[i].TS, out[j].TS) < 0 })
	return out
}
