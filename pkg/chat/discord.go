package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

const discordMessageLimit = 1500 // Discord caps messages at 2000 chars; leave room for code-block overflow

// discordAPI is the REST subset of *discordgo.Session the adapter uses.
type discordAPI interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

var _ discordAPI = (*discordgo.Session)(nil)

// Slack short names the patrol uses, mapped to unicode emoji.
var discordEmoji = map[string]string{
	"eyes":             "👀",
	"sos":              "🆘",
	"white_check_mark": "✅",
	"heart":            "❤️",
	"+1":               "👍",
	"thumbsup":         "👍",
	"-1":               "👎",
	"thumbsdown":       "👎",
	"ok_hand":          "👌",
	"ng":               "🆖",
}

var discordEmojiNames = map[string]string{
	"👀":  "eyes",
	"🆘":  "sos",
	"✅":  "white_check_mark",
	"❤️": "heart",
	"❤":  "heart",
	"👍":  "+1",
	"👎":  "-1",
	"👌":  "ok_hand",
	"🆖":  "ng",
}

// DiscordOptions configures the Discord adapter. The REST API gives bots no
// way to list their DM channels, so direct conversations are opened for an
// explicit set of user ids; with none configured only the public channel
// is monitored.
type DiscordOptions struct {
	Token     string
	DMUserIDs []string
}

type DiscordPlatform struct {
	api       discordAPI
	dmUserIDs []string
}

func NewDiscordPlatform(opts DiscordOptions) (*DiscordPlatform, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordPlatform{api: session, dmUserIDs: cleanIDs(opts.DMUserIDs)}, nil
}

func cleanIDs(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ListDirectChannels opens (or reopens) the DM channel of each configured
// user. Users the bot cannot DM are skipped; transient failures abort so the
// retry policy can take over.
func (d *DiscordPlatform) ListDirectChannels(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	for _, userID := range d.dmUserIDs {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ch, err := d.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
		if err != nil {
			err = classifyDiscordErr("open dm", err)
			if !IsPermanent(err) {
				return nil, err
			}
			logger.WarnCF("chat", "Skipping Discord DM user", map[string]any{"user": userID, "error": err.Error()})
			continue
		}
		if ch == nil || ch.Type != discordgo.ChannelTypeDM {
			continue
		}
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

func (d *DiscordPlatform) FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	msgs, err := d.api.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyDiscordErr("channel messages", err)
	}
	out := convertDiscordMessages(msgs)
	sort.SliceStable(out, func(i, j int) bool { return CompareTS(out[i].TS, out[j].TS) > 0 })
	return out, nil
}

// FetchThreadReplies returns the root and every later message whose reply
// chain leads back to it.
func (d *DiscordPlatform) FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]Message, error) {
	root, err := d.api.ChannelMessage(channelID, threadTS, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyDiscordErr("channel message", err)
	}
	after, err := d.api.ChannelMessages(channelID, 100, "", threadTS, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyDiscordErr("channel messages", err)
	}

	later := convertDiscordMessages(after)
	sort.SliceStable(later, func(i, j int) bool { return CompareTS(later[i].TS, later[j].TS) < 0 })

	out := convertDiscordMessages([]*discordgo.Message{root})
	inThread := map[string]bool{threadTS: true}
	for _, m := range later {
		if limit > 0 && len(out) >= limit {
			break
		}
		if m.ThreadTS == "" || !inThread[m.ThreadTS] {
			continue
		}
		inThread[m.TS] = true
		out = append(out, m)
	}
	return out, nil
}

func (d *DiscordPlatform) PostMessage(ctx context.Context, channelID, text, threadTS string) (Posted, error) {
	var first Posted
	for i, chunk := range splitMessage(text, discordMessageLimit) {
		send := &discordgo.MessageSend{Content: chunk}
		if threadTS != "" {
			send.Reference = &discordgo.MessageReference{MessageID: threadTS, ChannelID: channelID}
		}
		msg, err := d.api.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
		if err != nil {
			if i > 0 {
				// Part of the reply is already visible; report what landed.
				return first, nil
			}
			return Posted{}, classifyDiscordErr("send message", err)
		}
		if i == 0 {
			first = Posted{ChannelID: msg.ChannelID, TS: msg.ID}
		}
	}
	return first, nil
}

func (d *DiscordPlatform) AddReaction(ctx context.Context, channelID, ts, name string) error {
	emoji, ok := discordEmoji[name]
	if !ok {
		emoji = name
	}
	if err := d.api.MessageReactionAdd(channelID, ts, emoji, discordgo.WithContext(ctx)); err != nil {
		return classifyDiscordErr("add reaction", err)
	}
	return nil
}

func (d *DiscordPlatform) UserInfo(ctx context.Context, userID string) (User, error) {
	u, err := d.api.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return User{}, classifyDiscordErr("user", err)
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return User{ID: u.ID, DisplayName: name}, nil
}

func convertDiscordMessages(in []*discordgo.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		msg := Message{
			TS:   m.ID,
			Text: m.Content,
			At:   m.Timestamp,
		}
		if m.Author != nil {
			msg.User = m.Author.ID
			if m.Author.Bot {
				msg.BotID = m.Author.ID
			}
		}
		switch m.Type {
		case discordgo.MessageTypeDefault:
		case discordgo.MessageTypeReply:
			if m.MessageReference != nil {
				msg.ThreadTS = m.MessageReference.MessageID
			}
		default:
			msg.SubType = fmt.Sprintf("discord_type_%d", m.Type)
		}
		if msg.At.IsZero() {
			if at, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
				msg.At = at
			}
		}
		for _, r := range m.Reactions {
			if r == nil || r.Emoji == nil {
				continue
			}
			name, ok := discordEmojiNames[r.Emoji.Name]
			if !ok {
				name = r.Emoji.Name
			}
			msg.Reactions = append(msg.Reactions, name)
		}
		out = append(out, msg)
	}
	return out
}

func classifyDiscordErr(op string, err error) error {
	wrapped := fmt.Errorf("discord %s: %w", op, err)
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusTooManyRequests {
			return Permanent(wrapped)
		}
	}
	return wrapped
}

// splitMessage splits long messages into chunks, preserving code block integrity.
// It prefers newline and space boundaries and stretches a chunk to swallow a
// closing ``` when one is close enough.
func splitMessage(content string, limit int) []string {
	var messages []string

	for len(content) > 0 {
		if len(content) <= limit {
			messages = append(messages, content)
			break
		}

		msgEnd := lastIndexWithin(content[:limit], 200, "\n")
		if msgEnd <= 0 {
			msgEnd = lastIndexWithin(content[:limit], 100, " \t")
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		if unclosedIdx := lastUnclosedFence(content[:msgEnd]); unclosedIdx >= 0 {
			extendedLimit := limit + 500
			if len(content) > extendedLimit {
				closingIdx := nextFenceEnd(content, msgEnd)
				if closingIdx > 0 && closingIdx <= extendedLimit {
					msgEnd = closingIdx
				} else {
					msgEnd = lastIndexWithin(content[:unclosedIdx], 200, "\n")
					if msgEnd <= 0 {
						msgEnd = lastIndexWithin(content[:unclosedIdx], 100, " \t")
					}
					if msgEnd <= 0 {
						msgEnd = unclosedIdx
					}
				}
			} else {
				msgEnd = len(content)
			}
		}

		if msgEnd <= 0 {
			msgEnd = limit
		}
		// never split inside a multi-byte rune
		for msgEnd < len(content) && msgEnd > 0 && !utf8Start(content[msgEnd]) {
			msgEnd--
		}

		messages = append(messages, content[:msgEnd])
		content = strings.TrimSpace(content[msgEnd:])
	}

	return messages
}

func lastUnclosedFence(text string) int {
	count := 0
	lastOpenIdx := -1
	for i := 0; i+2 < len(text); i++ {
		if text[i] == '`' && text[i+1] == '`' && text[i+2] == '`' {
			if count%2 == 0 {
				lastOpenIdx = i
			}
			count++
			i += 2
		}
	}
	if count%2 == 1 {
		return lastOpenIdx
	}
	return -1
}

func nextFenceEnd(text string, from int) int {
	if i := strings.Index(text[from:], "```"); i >= 0 {
		return from + i + 3
	}
	return -1
}

// lastIndexWithin finds the last of chars within the trailing window of s.
func lastIndexWithin(s string, window int, chars string) int {
	start := len(s) - window
	if start < 0 {
		start = 0
	}
	i := strings.LastIndexAny(s[start:], chars)
	if i < 0 {
		return -1
	}
	return start + i
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
