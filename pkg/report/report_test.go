package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	channel string
	text    string
	err     error
}

func (f *fakePoster) PostMessage(_ context.Context, channelID, text, _ string) (chat.Posted, error) {
	if f.err != nil {
		return chat.Posted{}, f.err
	}
	f.channel, f.text = channelID, text
	return chat.Posted{ChannelID: channelID, TS: "1.0"}, nil
}

func entry(user string, typ usagelog.EventType, text string) usagelog.Entry {
	return usagelog.Entry{User: user, Type: typ, Text: text}
}

func TestSummarize(t *testing.T) {
	entries := []usagelog.Entry{
		entry("山田", usagelog.Answered, "VPNがつながらない"),
		entry("佐藤", usagelog.Answered, "プリンタが動かない"),
		entry("山田", usagelog.Answered, "VPNがつながらない"),
		entry("鈴木", usagelog.Answered, "OK"),
		entry("鈴木", usagelog.NoData, "経費精算のやり方"),
		entry("佐藤", usagelog.Escalation, "まだだめ"),
		entry("User(Reaction)", usagelog.SolvedReaction, "[Bot回答への反応]: ..."),
		entry("山田", usagelog.SolvedText, "ありがとう"),
		entry("User(Reaction)", usagelog.BadFeedback, "[Bot回答への反応]: ..."),
		entry("匿名", usagelog.Answered, "[対象回答ID]: 123"),
	}

	s := Summarize(entries, 15, 3)
	assert.Equal(t, 5, s.Interactions)
	assert.Equal(t, 1, s.Escalations)
	assert.Equal(t, 1, s.NoData)
	assert.Equal(t, 2, s.Solved)
	assert.Equal(t, 1, s.Bad)
	assert.Equal(t, 3, s.Users)
	assert.Equal(t, 3, s.EffectiveSolved)
	assert.InDelta(t, 0.75, s.HoursSaved, 1e-9)
	assert.Equal(t, []string{"VPNがつながらない", "プリンタが動かない", "経費精算のやり方"}, s.TopTopics)
}

func TestSummarizeClampsEffectiveSolved(t *testing.T) {
	s := Summarize([]usagelog.Entry{
		entry("a", usagelog.Answered, "q1"),
		entry("a", usagelog.Escalation, "q1"),
		entry("a", usagelog.BadFeedback, "q1"),
	}, 15, 3)
	assert.Equal(t, 0, s.EffectiveSolved)
	assert.Zero(t, s.HoursSaved)
	assert.Empty(t, s.TopTopics)
}

func TestRender(t *testing.T) {
	out := Render("シスにゃん", 7, 3, Summary{
		Interactions: 10, Users: 4, EffectiveSolved: 7, HoursSaved: 1.75,
		Solved: 2, Escalations: 2, Bad: 1, NoData: 3,
		TopTopics: []string{"VPN", "プリンタ"},
	})

	assert.True(t, strings.HasPrefix(out, "📊 *シスにゃん 週間活動レポート*\n(期間: 直近7日間)\n\n━━━━━━━━━━━━━━\n"))
	assert.Contains(t, out, "💰 削減工数: *1.8時間* 相当\n")
	assert.Contains(t, out, "🗣️ 対応件数: 10件 (4ユーザー)\n")
	assert.Contains(t, out, "✅ 解決数(推測): 7件\n")
	assert.Contains(t, out, "■ *よくある質問 (Top 3)*\n```\n1. VPN\n2. プリンタ\n```\n")
	assert.True(t, strings.HasSuffix(out, "━━━━━━━━━━━━━━"))

	empty := Render("x", 7, 3, Summary{Solved: 1})
	assert.Contains(t, empty, "```\n特になし\n```")
}

func TestSendPostsToChannel(t *testing.T) {
	now := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	sink := &usagelog.MemorySink{}
	rec := usagelog.NewRecorder(sink, func() time.Time { return now.Add(-8 * 24 * time.Hour) })
	rec.Log(context.Background(), "old", usagelog.Answered, "先月の質問", "")
	rec = usagelog.NewRecorder(sink, func() time.Time { return now.Add(-time.Hour) })
	rec.Log(context.Background(), "山田", usagelog.Answered, "VPNがつながらない", "")

	poster := &fakePoster{}
	r := New(sink, poster, Options{BotName: "bot", ChannelID: "CREPORT", Now: func() time.Time { return now }})

	sent, err := r.Send(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "CREPORT", poster.channel)
	assert.Contains(t, poster.text, "対応件数: 1件 (1ユーザー)")
	assert.NotContains(t, poster.text, "先月の質問")
}

func TestSendSkipsEmptyWindow(t *testing.T) {
	sink := &usagelog.MemorySink{}
	rec := usagelog.NewRecorder(sink, nil)
	rec.Log(context.Background(), "山田", usagelog.Escalation, "まだだめ", "")
	rec.Log(context.Background(), "山田", usagelog.NoData, "経費", "")

	poster := &fakePoster{}
	sent, err := New(sink, poster, Options{ChannelID: "C"}).Send(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, poster.text)
}

func TestSendSurfacesPostFailure(t *testing.T) {
	sink := &usagelog.MemorySink{}
	usagelog.NewRecorder(sink, nil).Log(context.Background(), "a", usagelog.SolvedText, "ありがとう", "")

	_, err := New(sink, &fakePoster{err: errors.New("channel_not_found")}, Options{ChannelID: "C"}).Send(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}
