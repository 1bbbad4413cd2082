package providers

import "strings"

// splitSystem separates leading system messages from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	i := 0
	for ; i < len(messages) && messages[i].Role == RoleSystem; i++ {
		if s := strings.TrimSpace(messages[i].Content); s != "" {
			system = append(system, s)
		}
	}
	return strings.Join(system, "\n\n"), messages[i:]
}

// mergeTurns folds consecutive same-role turns into one and makes sure the
// conversation opens with a user turn, which the Anthropic and Gemini APIs
// require.
func mergeTurns(turns []Message) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + t.Content
			continue
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	if len(out) > 0 && out[0].Role == RoleAssistant {
		out = append([]Message{{Role: RoleUser, Content: "(continued conversation)"}}, out...)
	}
	return out
}
