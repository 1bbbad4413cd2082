package state

import (
	"sort"

	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

type GCStats struct {
	ExpiredProcessed int `json:"expiredProcessed"`
	ExpiredEscalated int `json:"expiredEscalated"`
	ExpiredCursors   int `json:"expiredCursors"`
	TrimmedKeys      int `json:"trimmedKeys"`
	DroppedThreads   int `json:"droppedThreads"`
}

// RunGC prunes entries older than the retention window, then trims each map
// to MaxKeys oldest-first, then drops active threads idle past their TTL.
func (s *Store) RunGC() GCStats {
	now := s.opts.Now()
	threshold := now.Add(-s.opts.Retention).UnixMilli()

	var st GCStats
	st.ExpiredProcessed = expire(s.processed, threshold)
	st.ExpiredEscalated = expire(s.escalated, threshold)
	for k, c := range s.cursors {
		if c.LastAccess < threshold {
			delete(s.cursors, k)
			st.ExpiredCursors++
		}
	}

	st.TrimmedKeys += trimOldest(s.processed, s.opts.MaxKeys)
	st.TrimmedKeys += trimOldest(s.escalated, s.opts.MaxKeys)
	if over := len(s.cursors) - s.opts.MaxKeys; over > 0 {
		access := make(map[string]int64, len(s.cursors))
		for k, c := range s.cursors {
			access[k] = c.LastAccess
		}
		for _, k := range oldestKeys(access, over) {
			delete(s.cursors, k)
		}
		st.TrimmedKeys += over
	}

	cutoff := now.Add(-s.opts.ActiveThreadTTL).UnixMilli()
	kept := s.threads[:0]
	for _, th := range s.threads {
		if th.LastAccess > cutoff {
			kept = append(kept, th)
			continue
		}
		st.DroppedThreads++
	}
	s.threads = kept

	logger.DebugCF("state", "GC finished", map[string]any{
		"expired_processed": st.ExpiredProcessed,
		"expired_escalated": st.ExpiredEscalated,
		"expired_cursors":   st.ExpiredCursors,
		"trimmed":           st.TrimmedKeys,
		"dropped_threads":   st.DroppedThreads,
	})
	return st
}

func expire(m map[string]int64, threshold int64) int {
	n := 0
	for k, at := range m {
		if at < threshold {
			delete(m, k)
			n++
		}
	}
	return n
}

func trimOldest(m map[string]int64, limit int) int {
	over := len(m) - limit
	if over <= 0 {
		return 0
	}
	for _, k := range oldestKeys(m, over) {
		delete(m, k)
	}
	return over
}

// oldestKeys returns the n keys with the smallest timestamps; ties go to the
// lexically smaller key so trimming is deterministic.
func oldestKeys(m map[string]int64, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] < m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys[:n]
}
