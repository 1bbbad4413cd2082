package patrol

import (
	"testing"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	dm := chat.Target{ID: "D1", Kind: chat.KindDirect}
	pub := chat.Target{ID: "C1", Kind: chat.KindPublic}
	afterBot := []responder.Turn{{Role: responder.RoleUser, Text: "q"}, {Role: responder.RoleModel, Text: "a"}}
	afterUser := []responder.Turn{{Role: responder.RoleModel, Text: "a"}, {Role: responder.RoleUser, Text: "q2"}}
	fresh, stale := 10*time.Second, 601*time.Second
	limit := 600 * time.Second

	cases := []struct {
		name      string
		target    chat.Target
		msg       chat.Message
		history   []responder.Turn
		processed bool
		age       time.Duration
		want      Action
	}{
		{"bot message", dm, chat.Message{BotID: "B1"}, nil, false, fresh, ActionFeedback},
		{"subtype", pub, chat.Message{SubType: "channel_join"}, nil, false, fresh, ActionFeedback},
		{"processed wins over stale", dm, chat.Message{Text: "x"}, nil, true, stale, ActionSkip},
		{"stale", pub, chat.Message{Text: "x"}, nil, false, stale, ActionStale},
		{"public ignores history", pub, chat.Message{Text: "まだ"}, afterBot, false, fresh, ActionAnswer},
		{"first contact", dm, chat.Message{Text: "x"}, nil, false, fresh, ActionFirstContact},
		{"thanks after bot", dm, chat.Message{Text: "解決しました！"}, afterBot, false, fresh, ActionSolved},
		{"complaint after bot", dm, chat.Message{Text: "まだ駄目"}, afterBot, false, fresh, ActionEscalate},
		{"follow-up after user", dm, chat.Message{Text: "ありがとう"}, afterUser, false, fresh, ActionAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.target, tc.msg, tc.history, tc.processed, tc.age, limit)
			assert.Equal(t, tc.want, got, got.String())
		})
	}
}

func TestConversationHistory(t *testing.T) {
	msgs := []chat.Message{
		{TS: "9.000001", User: "U1", Text: "oldest"},
		{TS: "10.000001", BotID: "B1", Text: "a1" + GuideDM},
		{TS: "10.000002", SubType: "channel_join", Text: "joined"},
		{TS: "11.0", User: "U1", Text: "q2"},
		{TS: "12.0", BotID: "B1", Text: "a2" + GuidePublic},
		{TS: "100.0", User: "U1", Text: "current"},
		{TS: "101.0", User: "U1", Text: "later"},
	}

	got := ConversationHistory(msgs, "100.0", 2)
	assert.Equal(t, []responder.Turn{
		{Role: responder.RoleUser, Text: "oldest"},
		{Role: responder.RoleModel, Text: "a1"},
		{Role: responder.RoleUser, Text: "q2"},
		{Role: responder.RoleModel, Text: "a2"},
	}, got)

	assert.Len(t, ConversationHistory(msgs, "100.0", 1), 2)
	assert.Empty(t, ConversationHistory(msgs, "9.000001", 2))
}

func TestChronologicalUsesNumericOrder(t *testing.T) {
	msgs := []chat.Message{{TS: "100.5"}, {TS: "99.9"}, {TS: "1000.0"}}
	got := chronological(msgs)
	assert.Equal(t, "99.9", got[0].TS)
	assert.Equal(t, "100.5", got[1].TS)
	assert.Equal(t, "1000.0", got[2].TS)
}

func TestIsGratitude(t *testing.T) {
	assert.True(t, IsGratitude("本当にありがとうございます"))
	assert.True(t, IsGratitude("助かったよ"))
	assert.False(t, IsGratitude("まだ解決していません"))
}
