package patrol

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/knowledge"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/dotsetgreg/deskpatrol/pkg/state"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
	"github.com/stretchr/testify/require"
)

const (
	testNow   = 1_700_000_000
	adminChan = "CADMIN"
	botID     = "B1"
)

// ago renders a ts sec seconds before the test clock.
func ago(sec int) string { return fmt.Sprintf("%d.000100", testNow-sec) }

type post struct {
	Channel, Text, ThreadTS string
}

type reaction struct {
	Channel, TS, Name string
}

type fakePlatform struct {
	dms      []string
	messages map[string][]chat.Message
	threads  map[string][]chat.Message
	users    map[string]string
	postErr  map[string]error

	posts     []post
	reactions []reaction
	fetched   []string
	seq       int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		messages: map[string][]chat.Message{},
		threads:  map[string][]chat.Message{},
		users:    map[string]string{"U1": "山田"},
		postErr:  map[string]error{},
	}
}

func (f *fakePlatform) ListDirectChannels(context.Context, int) ([]string, error) {
	return f.dms, nil
}

// FetchMessages returns newest first, like the real adapters.
func (f *fakePlatform) FetchMessages(_ context.Context, channelID string, _ int) ([]chat.Message, error) {
	f.fetched = append(f.fetched, channelID)
	src := f.messages[channelID]
	out := make([]chat.Message, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (f *fakePlatform) FetchThreadReplies(_ context.Context, channelID, threadTS string, _ int) ([]chat.Message, error) {
	return f.threads[channelID+"/"+threadTS], nil
}

func (f *fakePlatform) PostMessage(_ context.Context, channelID, text, threadTS string) (chat.Posted, error) {
	if err := f.postErr[channelID]; err != nil {
		return chat.Posted{}, err
	}
	f.seq++
	f.posts = append(f.posts, post{Channel: channelID, Text: text, ThreadTS: threadTS})
	return chat.Posted{ChannelID: channelID, TS: fmt.Sprintf("%d.9%05d", testNow, f.seq)}, nil
}

func (f *fakePlatform) AddReaction(_ context.Context, channelID, ts, name string) error {
	f.reactions = append(f.reactions, reaction{Channel: channelID, TS: ts, Name: name})
	return nil
}

func (f *fakePlatform) UserInfo(_ context.Context, userID string) (chat.User, error) {
	name, ok := f.users[userID]
	if !ok {
		return chat.User{}, errors.New("user_not_found")
	}
	return chat.User{ID: userID, DisplayName: name}, nil
}

func (f *fakePlatform) postsTo(channelID string) []post {
	var out []post
	for _, p := range f.posts {
		if p.Channel == channelID {
			out = append(out, p)
		}
	}
	return out
}

type fakeAnswerer struct {
	text  string
	err   error
	panic string
	reqs  []responder.Request
}

func (f *fakeAnswerer) Generate(_ context.Context, req responder.Request) (responder.Answer, error) {
	f.reqs = append(f.reqs, req)
	if f.panic != "" {
		panic(f.panic)
	}
	if f.err != nil {
		return responder.Answer{Text: responder.Apology}, f.err
	}
	return responder.Answer{Text: f.text, Provider: "primary"}, nil
}

type staticSource struct {
	items []knowledge.Item
	err   error
}

func (s *staticSource) FetchAll(context.Context) ([]knowledge.Item, error) {
	return s.items, s.err
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type harness struct {
	now      time.Time
	platform *fakePlatform
	answerer *fakeAnswerer
	source   *staticSource
	kv       *state.MemoryKV
	sink     *usagelog.MemorySink
	locker   *fakeLocker
	opts     Options
	sleeps   []time.Duration
}

func newHarness() *harness {
	h := &harness{
		now:      time.Unix(testNow, 0),
		platform: newFakePlatform(),
		answerer: &fakeAnswerer{text: "VPNは再起動してね"},
		source:   &staticSource{},
		kv:       state.NewMemoryKV(),
		sink:     &usagelog.MemorySink{},
		locker:   &fakeLocker{},
	}
	h.opts = Options{
		BotName:        "シスにゃん",
		FallbackURL:    "https://wiki.example/qa",
		AdminChannelID: adminChan,
		MessageDelay:   1500 * time.Millisecond,
		TargetDelay:    200 * time.Millisecond,
		Now:            func() time.Time { return h.now },
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}
	return h
}

func (h *harness) patrol() *Patrol {
	return New(Deps{
		Platform:  h.platform,
		Knowledge: h.source,
		Answerer:  h.answerer,
		KV:        h.kv,
		Usage:     usagelog.NewRecorder(h.sink, func() time.Time { return h.now }),
		Locker:    h.locker,
	}, h.opts)
}

func (h *harness) run(t *testing.T) CycleStats {
	t.Helper()
	stats, err := h.patrol().Run(context.Background())
	require.NoError(t, err)
	return stats
}

func (h *harness) store(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Load(context.Background(), h.kv, state.Options{Now: func() time.Time { return h.now }})
	require.NoError(t, err)
	return st
}

func userMsg(ts, text string) chat.Message {
	return chat.Message{TS: ts, User: "U1", Text: text}
}

func botMsg(ts, text string, reactions ...string) chat.Message {
	return chat.Message{TS: ts, User: "UBOT", BotID: botID, Text: text, Reactions: reactions}
}
