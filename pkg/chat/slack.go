package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// slackAPI is the subset of *slack.Client the adapter uses.
type slackAPI interface {
	GetConversationsForUserContext(ctx context.Context, params *slack.GetConversationsForUserParameters) ([]slack.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

var _ slackAPI = (*slack.Client)(nil)

type SlackPlatform struct {
	api      slackAPI
	username string
}

type SlackOptions struct {
	Token string
	// APIBase overrides https://slack.com/api/ (tests point it at httptest).
	APIBase  string
	Username string
}

func NewSlackPlatform(opts SlackOptions) (*SlackPlatform, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("slack token is required")
	}
	var clientOpts []slack.Option
	if base := strings.TrimSpace(opts.APIBase); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		clientOpts = append(clientOpts, slack.OptionAPIURL(base))
	}
	return &SlackPlatform{
		api:      slack.New(opts.Token, clientOpts...),
		username: opts.Username,
	}, nil
}

func (s *SlackPlatform) ListDirectChannels(ctx context.Context, limit int) ([]string, error) {
	channels, _, err := s.api.GetConversationsForUserContext(ctx, &slack.GetConversationsForUserParameters{
		Types: []string{"im"},
		Limit: limit,
	})
	if err != nil {
		return nil, classifySlackErr("users.conversations", err)
	}
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

func (s *SlackPlatform) FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	resp, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, classifySlackErr("conversations.history", err)
	}
	return convertSlackMessages(resp.Messages), nil
}

func (s *SlackPlatform) FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]Message, error) {
	msgs, _, _, err := s.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
	})
	if err != nil {
		return nil, classifySlackErr("conversations.replies", err)
	}
	return convertSlackMessages(msgs), nil
}

func (s *SlackPlatform) PostMessage(ctx context.Context, channelID, text, threadTS string) (Posted, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if s.username != "" {
		opts = append(opts, slack.MsgOptionUsername(s.username))
	}
	ch, ts, err := s.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return Posted{}, classifySlackErr("chat.postMessage", err)
	}
	return Posted{ChannelID: ch, TS: ts}, nil
}

func (s *SlackPlatform) AddReaction(ctx context.Context, channelID, ts, name string) error {
	err := s.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts))
	if err != nil {
		var apiErr slack.SlackErrorResponse
		if errors.As(err, &apiErr) && apiErr.Err == "already_reacted" {
			return nil
		}
		return classifySlackErr("reactions.add", err)
	}
	return nil
}

func (s *SlackPlatform) UserInfo(ctx context.Context, userID string) (User, error) {
	u, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return User{}, classifySlackErr("users.info", err)
	}
	name := u.Profile.DisplayName
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.Name
	}
	return User{ID: u.ID, DisplayName: name}, nil
}

func convertSlackMessages(in []slack.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		msg := Message{
			TS:       m.Timestamp,
			User:     m.User,
			Text:     m.Text,
			ThreadTS: m.ThreadTimestamp,
			BotID:    m.BotID,
			SubType:  m.SubType,
			At:       TSTime(m.Timestamp),
		}
		for _, r := range m.Reactions {
			msg.Reactions = append(msg.Reactions, r.Name)
		}
		out = append(out, msg)
	}
	return out
}

// classifySlackErr marks API-level refusals (ok:false) as permanent; transport
// failures, rate limits and 5xx stay retryable.
func classifySlackErr(method string, err error) error {
	wrapped := fmt.Errorf("slack %s: %w", method, err)
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return Permanent(wrapped)
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != 429 {
		return Permanent(wrapped)
	}
	return wrapped
}
