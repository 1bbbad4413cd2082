// Package chat abstracts the chat platform the patrol monitors.
package chat

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindPublic Kind = "PUBLIC"
	KindDirect Kind = "DIRECT"
)

// Target is a channel under monitoring.
type Target struct {
	ID   string
	Kind Kind
}

func (t Target) IsDirect() bool { return t.Kind == KindDirect }

// Message is one platform message. TS is a per-channel monotonic decimal
// string; order it with CompareTS, never lexically.
type Message struct {
	TS        string
	User      string
	Text      string
	ThreadTS  string
	BotID     string
	SubType   string
	Reactions []string
	At        time.Time
}

func (m Message) IsBot() bool { return m.BotID != "" }

// ThreadRoot is the ts replies to this message should be threaded under.
func (m Message) ThreadRoot() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.TS
}

// Time prefers the adapter-provided timestamp and falls back to the ts value.
func (m Message) Time() time.Time {
	if !m.At.IsZero() {
		return m.At
	}
	return TSTime(m.TS)
}

type Posted struct {
	ChannelID string
	TS        string
}

type User struct {
	ID          string
	DisplayName string
}

// Platform is the set of calls the patrol makes against the chat service.
// FetchMessages returns newest first; FetchThreadReplies returns the thread
// root followed by its replies in chronological order.
type Platform interface {
	ListDirectChannels(ctx context.Context, limit int) ([]string, error)
	FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]Message, error)
	PostMessage(ctx context.Context, channelID, text, threadTS string) (Posted, error)
	AddReaction(ctx context.Context, channelID, ts, name string) error
	UserInfo(ctx context.Context, userID string) (User, error)
}

// Reaction names used by the patrol, in Slack short-name form.
const (
	ReactionThinking = "eyes"
	ReactionEscalate = "sos"
	ReactionDone     = "white_check_mark"
	ReactionSolved   = "heart"
)

var (
	GoodReactions = []string{"+1", "thumbsup", "good", "ok_hand", "heart"}
	BadReactions  = []string{"-1", "thumbsdown", "bad", "ng"}
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (the platform answered, it just
// said no).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
