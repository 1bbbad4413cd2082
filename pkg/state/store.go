// Package state holds the patrol's persisted memory: processed and escalated
// message keys, per-conversation cursors and the active-thread watchlist.
// Everything is loaded at cycle start, mutated in memory and flushed as one
// snapshot by Save.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

const (
	BlobProcessed     = "processed_keys"
	BlobEscalated     = "escalated_keys"
	BlobCursors       = "dm_cursors"
	BlobActiveThreads = "active_threads"
)

var blobNames = []string{BlobProcessed, BlobEscalated, BlobCursors, BlobActiveThreads}

type Cursor struct {
	TS         string `json:"ts"`
	LastAccess int64  `json:"lastAccess"`
}

type ActiveThread struct {
	ChannelID  string `json:"channelId"`
	ThreadTS   string `json:"threadTs"`
	LastAccess int64  `json:"lastAccess"`
}

type Options struct {
	Retention        time.Duration
	MaxKeys          int
	MaxActiveThreads int
	ActiveThreadTTL  time.Duration
	// CursorLookback seeds the cursor of a conversation seen for the first time.
	CursorLookback time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = 30 * 24 * time.Hour
	}
	if o.MaxKeys <= 0 {
		o.MaxKeys = 200
	}
	if o.MaxActiveThreads <= 0 {
		o.MaxActiveThreads = 5
	}
	if o.ActiveThreadTTL <= 0 {
		o.ActiveThreadTTL = 48 * time.Hour
	}
	if o.CursorLookback <= 0 {
		o.CursorLookback = 600 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Store struct {
	kv   KV
	opts Options

	processed map[string]int64
	escalated map[string]int64
	cursors   map[string]Cursor
	threads   []ActiveThread
}

// Load reads all four blobs. A blob that fails to decode is logged and
// replaced with an empty collection rather than failing the cycle.
func Load(ctx context.Context, kv KV, opts Options) (*Store, error) {
	blobs, err := kv.LoadBlobs(ctx, blobNames)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	s := &Store{
		kv:        kv,
		opts:      opts.withDefaults(),
		processed: map[string]int64{},
		escalated: map[string]int64{},
		cursors:   map[string]Cursor{},
	}
	decode(blobs, BlobProcessed, &s.processed)
	decode(blobs, BlobEscalated, &s.escalated)
	decode(blobs, BlobCursors, &s.cursors)
	decode(blobs, BlobActiveThreads, &s.threads)

	if s.processed == nil {
		s.processed = map[string]int64{}
	}
	if s.escalated == nil {
		s.escalated = map[string]int64{}
	}
	if s.cursors == nil {
		s.cursors = map[string]Cursor{}
	}
	return s, nil
}

func decode[T any](blobs map[string][]byte, name string, dst *T) {
	raw, ok := blobs[name]
	if !ok || len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.WarnCF("state", "Discarding unreadable state blob", map[string]any{
			"blob":  name,
			"error": err.Error(),
		})
		return
	}
	*dst = v
}

func (s *Store) nowMS() int64 { return s.opts.Now().UnixMilli() }

func compositeKey(channelID, key string) string { return channelID + ":" + key }

// IsProcessed reports whether (channelID, key) was handled. key is a message
// ts or a synthetic feedback key such as "<ts>:GOOD".
func (s *Store) IsProcessed(channelID, key string) bool {
	_, ok := s.processed[compositeKey(channelID, key)]
	return ok
}

func (s *Store) MarkProcessed(channelID, key string) {
	s.processed[compositeKey(channelID, key)] = s.nowMS()
}

func (s *Store) IsEscalated(channelID, ts string) bool {
	_, ok := s.escalated[compositeKey(channelID, ts)]
	return ok
}

func (s *Store) MarkEscalated(channelID, ts string) {
	s.escalated[compositeKey(channelID, ts)] = s.nowMS()
}

// Cursor returns the stored cursor for channelID, or now minus the
// lookback window for a conversation without one.
func (s *Store) Cursor(channelID string) string {
	if c, ok := s.cursors[channelID]; ok && c.TS != "" {
		return c.TS
	}
	return chat.TSFromTime(s.opts.Now().Add(-s.opts.CursorLookback))
}

// SetCursor advances the cursor; an older ts only refreshes lastAccess.
func (s *Store) SetCursor(channelID, ts string) {
	c := s.cursors[channelID]
	c.TS = chat.MaxTS(c.TS, ts)
	c.LastAccess = s.nowMS()
	s.cursors[channelID] = c
}

// ActiveThreads returns a copy of the watchlist in insertion order.
func (s *Store) ActiveThreads() []ActiveThread {
	return append([]ActiveThread(nil), s.threads...)
}

// AddActiveThread touches an existing entry in place or appends a new one,
// evicting the oldest insertion when the cap is exceeded.
func (s *Store) AddActiveThread(channelID, threadTS string) {
	now := s.nowMS()
	for i := range s.threads {
		if s.threads[i].ChannelID == channelID && s.threads[i].ThreadTS == threadTS {
			s.threads[i].LastAccess = now
			return
		}
	}
	s.threads = append(s.threads, ActiveThread{ChannelID: channelID, ThreadTS: threadTS, LastAccess: now})
	if over := len(s.threads) - s.opts.MaxActiveThreads; over > 0 {
		s.threads = append([]ActiveThread(nil), s.threads[over:]...)
	}
}

// Save writes the whole snapshot.
func (s *Store) Save(ctx context.Context) error {
	blobs := make(map[string][]byte, len(blobNames))
	for name, v := range map[string]any{
		BlobProcessed:     s.processed,
		BlobEscalated:     s.escalated,
		BlobCursors:       s.cursors,
		BlobActiveThreads: s.threadsForSave(),
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode state blob %s: %w", name, err)
		}
		blobs[name] = data
	}
	if err := s.kv.SaveBlobs(ctx, blobs); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *Store) threadsForSave() []ActiveThread {
	if s.threads == nil {
		return []ActiveThread{}
	}
	return s.threads
}

type Snapshot struct {
	Processed     map[string]int64  `json:"processed"`
	Escalated     map[string]int64  `json:"escalated"`
	Cursors       map[string]Cursor `json:"cursors"`
	ActiveThreads []ActiveThread    `json:"activeThreads"`
}

// Snapshot copies the in-memory state for display.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Processed:     make(map[string]int64, len(s.processed)),
		Escalated:     make(map[string]int64, len(s.escalated)),
		Cursors:       make(map[string]Cursor, len(s.cursors)),
		ActiveThreads: s.ActiveThreads(),
	}
	for k, v := range s.processed {
		snap.Processed[k] = v
	}
	for k, v := range s.escalated {
		snap.Escalated[k] = v
	}
	for k, v := range s.cursors {
		snap.Cursors[k] = v
	}
	return snap
}
