// Package usagelog records one row per helpdesk outcome for the weekly report.
package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

type EventType string

const (
	Answered       EventType = "ANSWERED"
	NoData         EventType = "NO_DATA"
	Escalation     EventType = "ESCALATION"
	SolvedReaction EventType = "SOLVED_REACTION"
	SolvedText     EventType = "SOLVED_TEXT"
	BadFeedback    EventType = "BAD_FEEDBACK"
)

var labels = map[EventType]string{
	Answered:       "🤖 自動回答",
	NoData:         "📉 資料なし",
	Escalation:     "🚨 有人対応",
	SolvedReaction: "✅ 解決 (Good)",
	SolvedText:     "✅ 解決 (会話)",
	BadFeedback:    "👎 低評価 (Bad)",
}

// Label is the human-facing name shown in listings.
func (t EventType) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

func (t EventType) IsSolved() bool { return t == SolvedReaction || t == SolvedText }

const maxTextRunes = 150

type Entry struct {
	At     time.Time
	User   string
	Type   EventType
	Text   string
	Result string
}

// Sink is an append-only log.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	Since(ctx context.Context, since time.Time) ([]Entry, error)
}

var newlineRun = regexp.MustCompile(`[\r\n]+`)

// NormalizeText flattens newlines and truncates to the stored width.
func NormalizeText(text string) string {
	text = newlineRun.ReplaceAllString(text, " ")
	r := []rune(text)
	if len(r) > maxTextRunes {
		return string(r[:maxTextRunes])
	}
	return text
}

// Recorder writes to a Sink and never fails the caller.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

func NewRecorder(sink Sink, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{sink: sink, now: now}
}

func (r *Recorder) Log(ctx context.Context, user string, typ EventType, text, result string) {
	if r == nil || r.sink == nil {
		return
	}
	e := Entry{At: r.now(), User: user, Type: typ, Text: NormalizeText(text), Result: result}
	if err := r.sink.Append(ctx, e); err != nil {
		logger.WarnCF("usagelog", "Usage log write failed", map[string]any{
			"type":  string(typ),
			"error": err.Error(),
		})
	}
}

type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO usage_log(created_at_ms, user_name, event_type, text, result)
VALUES(?, ?, ?, ?, ?)`, e.At.UnixMilli(), e.User, string(e.Type), e.Text, e.Result); err != nil {
		return fmt.Errorf("append usage log: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Since(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT created_at_ms, user_name, event_type, text, result
FROM usage_log
WHERE created_at_ms >= ?
ORDER BY created_at_ms ASC, id ASC`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query usage log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			ms  int64
			e   Entry
			typ string
		)
		if err := rows.Scan(&ms, &e.User, &typ, &e.Text, &e.Result); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		e.At = time.UnixMilli(ms)
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemorySink is an in-process Sink for tests and dry runs.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	Err     error
}

func (m *MemorySink) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemorySink) Since(_ context.Context, since time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if !e.At.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns everything appended so far.
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Types lists the event types appended so far, in order.
func (m *MemorySink) Types() []EventType {
	var out []EventType
	for _, e := range m.Entries() {
		out = append(out, e.Type)
	}
	return out
}
