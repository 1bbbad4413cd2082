package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscord struct {
	dms       map[string]*discordgo.Channel
	dmErrs    map[string]error
	opened    []string
	messages  []*discordgo.Message
	root      *discordgo.Message
	sent      []*discordgo.MessageSend
	reactions []string
	users     map[string]*discordgo.User
}

func (f *fakeDiscord) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.opened = append(f.opened, recipientID)
	if err := f.dmErrs[recipientID]; err != nil {
		return nil, err
	}
	return f.dms[recipientID], nil
}

func (f *fakeDiscord) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	if afterID == "" {
		return f.messages, nil
	}
	var out []*discordgo.Message
	for _, m := range f.messages {
		if CompareTS(m.ID, afterID) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeDiscord) ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.root, nil
}

func (f *fakeDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "9000000000000000001", ChannelID: channelID}, nil
}

func (f *fakeDiscord) MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error {
	f.reactions = append(f.reactions, emojiID)
	return nil
}

func (f *fakeDiscord) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	return f.users[userID], nil
}

func TestDiscordListDirectChannelsOpensConfiguredDMs(t *testing.T) {
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	fake := &fakeDiscord{
		dms: map[string]*discordgo.Channel{
			"u1": {ID: "1", Type: discordgo.ChannelTypeDM},
			"u3": {ID: "3", Type: discordgo.ChannelTypeDM},
			"u4": {ID: "4", Type: discordgo.ChannelTypeDM},
		},
		dmErrs: map[string]error{"u2": forbidden},
	}
	p := &DiscordPlatform{api: fake, dmUserIDs: cleanIDs([]string{"u1", " u2 ", "u1", "u3", "u4"})}

	ids, err := p.ListDirectChannels(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids)
	assert.Equal(t, []string{"u1", "u2", "u3"}, fake.opened)
}

func TestDiscordListDirectChannelsTransientErrorAborts(t *testing.T) {
	fake := &fakeDiscord{dmErrs: map[string]error{"u1": errors.New("connection reset")}}
	p := &DiscordPlatform{api: fake, dmUserIDs: []string{"u1"}}

	_, err := p.ListDirectChannels(context.Background(), 50)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestDiscordWithoutDMUsersMonitorsNoDMs(t *testing.T) {
	p, err := NewDiscordPlatform(DiscordOptions{Token: "tok"})
	require.NoError(t, err)
	ids, err := p.ListDirectChannels(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDiscordFetchMessagesMapsBotsRepliesAndReactions(t *testing.T) {
	fake := &fakeDiscord{messages: []*discordgo.Message{
		{ID: "1100000000000000001", Author: &discordgo.User{ID: "u1"}, Content: "older", Type: discordgo.MessageTypeDefault},
		{
			ID: "1100000000000000002", Author: &discordgo.User{ID: "bot", Bot: true}, Content: "answer",
			Type:             discordgo.MessageTypeReply,
			MessageReference: &discordgo.MessageReference{MessageID: "1100000000000000001"},
			Reactions:        []*discordgo.MessageReactions{{Emoji: &discordgo.Emoji{Name: "👍"}, Count: 1}},
		},
		{ID: "1100000000000000003", Author: &discordgo.User{ID: "u1"}, Type: discordgo.MessageTypeChannelPinnedMessage},
	}}
	p := &DiscordPlatform{api: fake}

	msgs, err := p.FetchMessages(context.Background(), "c", 20)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// newest first
	assert.Equal(t, "1100000000000000003", msgs[0].TS)
	assert.NotEmpty(t, msgs[0].SubType)

	answer := msgs[1]
	assert.True(t, answer.IsBot())
	assert.Equal(t, "1100000000000000001", answer.ThreadTS)
	assert.Equal(t, []string{"+1"}, answer.Reactions)
	assert.False(t, answer.At.IsZero())
}

func TestDiscordThreadRepliesFollowReplyChain(t *testing.T) {
	root := &discordgo.Message{ID: "100", Author: &discordgo.User{ID: "u1"}, Content: "question"}
	reply := func(id, to string, bot bool) *discordgo.Message {
		return &discordgo.Message{
			ID: id, Author: &discordgo.User{ID: "x", Bot: bot}, Type: discordgo.MessageTypeReply,
			MessageReference: &discordgo.MessageReference{MessageID: to},
		}
	}
	fake := &fakeDiscord{
		root: root,
		messages: []*discordgo.Message{
			reply("103", "102", false),
			{ID: "1025", Author: &discordgo.User{ID: "u2"}, Content: "unrelated"},
			reply("102", "101", false),
			reply("101", "100", true),
		},
	}
	p := &DiscordPlatform{api: fake}

	msgs, err := p.FetchThreadReplies(context.Background(), "c", "100", 10)
	require.NoError(t, err)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.TS)
	}
	assert.Equal(t, []string{"100", "101", "102", "103"}, ids)
}

func TestDiscordPostMessageSplitsAndReferencesThread(t *testing.T) {
	fake := &fakeDiscord{}
	p := &DiscordPlatform{api: fake}

	long := strings.Repeat("行\n", 1200)
	posted, err := p.PostMessage(context.Background(), "c", long, "100")
	require.NoError(t, err)
	assert.Equal(t, "9000000000000000001", posted.TS)

	require.Greater(t, len(fake.sent), 1)
	for _, s := range fake.sent {
		require.NotNil(t, s.Reference)
		assert.Equal(t, "100", s.Reference.MessageID)
		assert.LessOrEqual(t, len(s.Content), discordMessageLimit)
	}
}

func TestDiscordAddReactionMapsShortNames(t *testing.T) {
	fake := &fakeDiscord{}
	p := &DiscordPlatform{api: fake}

	require.NoError(t, p.AddReaction(context.Background(), "c", "1", "eyes"))
	require.NoError(t, p.AddReaction(context.Background(), "c", "1", "white_check_mark"))
	assert.Equal(t, []string{"👀", "✅"}, fake.reactions)
}

func TestSplitMessageKeepsCodeBlocksTogether(t *testing.T) {
	body := strings.Repeat("a", 1400) + "\n```\n" + strings.Repeat("b", 200) + "\n```\n" + strings.Repeat("c", 700)
	chunks := splitMessage(body, 1500)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, strings.Count(chunks[0], "```")%2)
}
