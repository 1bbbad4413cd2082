// Package patrol runs one bounded triage cycle over the monitored channels:
// it answers new questions from the knowledge base, detects thanks and
// complaints after bot answers, escalates to humans, and keeps the persisted
// state bounded.
package patrol

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/chat"
	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/knowledge"
	"github.com/dotsetgreg/deskpatrol/pkg/lock"
	"github.com/dotsetgreg/deskpatrol/pkg/logger"
	"github.com/dotsetgreg/deskpatrol/pkg/responder"
	"github.com/dotsetgreg/deskpatrol/pkg/state"
	"github.com/dotsetgreg/deskpatrol/pkg/usagelog"
	"github.com/google/uuid"
)

// Locker keeps two cycles from overlapping.
type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) (release func(), err error)
}

type Deps struct {
	Platform  chat.Platform
	Knowledge knowledge.Source
	Answerer  responder.Answerer
	KV        state.KV
	Usage     *usagelog.Recorder
	Locker    Locker
}

type Options struct {
	BotName         string
	FallbackURL     string
	PublicChannelID string
	AdminChannelID  string
	// BotID restricts reaction feedback to our own answers when set.
	BotID string

	FetchLimit       int
	ThreadFetchLimit int
	MaxHistoryTurns  int
	MaxDMMonitor     int

	LockTimeout     time.Duration
	ExecTimeLimit   time.Duration
	IgnoreOlderThan time.Duration
	MessageDelay    time.Duration
	TargetDelay     time.Duration

	State  state.Options
	Scorer *knowledge.Scorer
	// Format renders answer text for the platform's markup.
	Format func(string) string
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig maps the patrol tunables. Format is left to the caller
// since it depends on the chat platform.
func OptionsFromConfig(cfg config.Config) Options {
	p := cfg.Patrol
	return Options{
		BotName:          cfg.Bot.Name,
		FallbackURL:      cfg.Bot.FallbackURL,
		PublicChannelID:  cfg.Chat.PublicChannelID,
		AdminChannelID:   cfg.Chat.AdminChannelID,
		BotID:            cfg.Chat.BotID,
		FetchLimit:       p.FetchLimit,
		ThreadFetchLimit: p.ThreadFetchLimit,
		MaxHistoryTurns:  p.MaxHistoryTurns,
		MaxDMMonitor:     p.MaxDMMonitor,
		LockTimeout:      p.LockTimeout(),
		ExecTimeLimit:    p.ExecTimeLimit(),
		IgnoreOlderThan:  p.IgnoreOlderThan(),
		MessageDelay:     p.MessageDelay(),
		TargetDelay:      p.TargetDelay(),
		State: state.Options{
			Retention:        p.Retention(),
			MaxKeys:          p.MaxMemoryKeys,
			MaxActiveThreads: p.MaxThreadMonitor,
			ActiveThreadTTL:  p.ActiveThreadTTL(),
			CursorLookback:   p.IgnoreOlderThan(),
		},
		Scorer: knowledge.NewScorer(p.MaxContextItems, p.MaxTotalChars, nil),
	}
}

func (o Options) withDefaults() Options {
	if o.FetchLimit <= 0 {
		o.FetchLimit = 20
	}
	if o.ThreadFetchLimit <= 0 {
		o.ThreadFetchLimit = 10
	}
	if o.MaxHistoryTurns <= 0 {
		o.MaxHistoryTurns = 2
	}
	if o.MaxDMMonitor <= 0 {
		o.MaxDMMonitor = 50
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 10 * time.Second
	}
	if o.ExecTimeLimit <= 0 {
		o.ExecTimeLimit = 280 * time.Second
	}
	if o.IgnoreOlderThan <= 0 {
		o.IgnoreOlderThan = 600 * time.Second
	}
	if o.Scorer == nil {
		o.Scorer = knowledge.NewScorer(0, 0, nil)
	}
	if o.Format == nil {
		o.Format = func(s string) string { return s }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.BotName == "" {
		o.BotName = config.DefaultBotName
	}
	if o.FallbackURL == "" {
		o.FallbackURL = config.DefaultFallbackURL
	}
	o.State.Now = o.Now
	return o
}

type Patrol struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Patrol {
	return &Patrol{deps: deps, opts: opts.withDefaults()}
}

// CycleStats summarises one Run.
type CycleStats struct {
	CycleID   string        `json:"cycle_id"`
	Skipped   bool          `json:"skipped"`
	Targets   int           `json:"targets"`
	Deferred  int           `json:"deferred"`
	Answered  int           `json:"answered"`
	NoData    int           `json:"no_data"`
	Solved    int           `json:"solved"`
	Escalated int           `json:"escalated"`
	Stale     int           `json:"stale"`
	Failed    int           `json:"failed"`
	Threads   int           `json:"threads"`
	GC        state.GCStats `json:"gc"`
}

// cycle carries everything scoped to a single Run.
type cycle struct {
	id        string
	start     time.Time
	st        *state.Store
	knowledge []knowledge.Item
	names     NameResolver
	targets   []chat.Target
	stats     *CycleStats
}

// Run executes one cycle. A cycle that cannot get the lock in time is
// skipped and reported with Skipped set and a nil error.
func (p *Patrol) Run(ctx context.Context) (stats CycleStats, err error) {
	stats.CycleID = uuid.NewString()
	fields := map[string]any{"cycle_id": stats.CycleID}

	release, err := p.deps.Locker.Acquire(ctx, p.opts.LockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			logger.WarnCF("patrol", "Previous cycle still running, skipping", fields)
			stats.Skipped = true
			return stats, nil
		}
		return stats, fmt.Errorf("acquire patrol lock: %w", err)
	}
	defer release()

	st, err := state.Load(ctx, p.deps.KV, p.opts.State)
	if err != nil {
		return stats, err
	}

	c := &cycle{
		id:    stats.CycleID,
		start: p.opts.Now(),
		st:    st,
		names: newNameCache(p.deps.Platform),
		stats: &stats,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("patrol", "Cycle panicked", map[string]any{
				"cycle_id": c.id,
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			})
			err = fmt.Errorf("patrol cycle panicked: %v", r)
		}
		if saveErr := st.Save(context.WithoutCancel(ctx)); saveErr != nil {
			logger.ErrorCF("patrol", "Final state save failed", map[string]any{"cycle_id": c.id, "error": saveErr.Error()})
			err = errors.Join(err, saveErr)
		}
	}()

	logger.InfoCF("patrol", "Patrol started", fields)
	p.runCycle(ctx, c)
	stats.GC = st.RunGC()
	logger.InfoCF("patrol", "Patrol finished", map[string]any{
		"cycle_id":  c.id,
		"targets":   stats.Targets,
		"deferred":  stats.Deferred,
		"answered":  stats.Answered,
		"no_data":   stats.NoData,
		"solved":    stats.Solved,
		"escalated": stats.Escalated,
		"failed":    stats.Failed,
		"elapsed":   p.opts.Now().Sub(c.start).String(),
	})
	return stats, nil
}

func (p *Patrol) runCycle(ctx context.Context, c *cycle) {
	c.targets = p.monitoringTargets(ctx, c)
	c.stats.Targets = len(c.targets)

	c.knowledge = p.loadKnowledge(ctx, c)

	for i, target := range c.targets {
		if p.overBudget(c) {
			c.stats.Deferred += len(c.targets) - i
			logger.WarnCF("patrol", "Time budget spent, deferring remaining targets", map[string]any{
				"cycle_id": c.id,
				"deferred": len(c.targets) - i,
			})
			break
		}
		p.patrolTarget(ctx, c, target)
		p.pause(ctx, p.opts.TargetDelay)
	}

	p.revisitThreads(ctx, c)
}

// loadKnowledge degrades to an empty set on failure.
func (p *Patrol) loadKnowledge(ctx context.Context, c *cycle) []knowledge.Item {
	if p.deps.Knowledge == nil {
		return nil
	}
	items, err := p.deps.Knowledge.FetchAll(ctx)
	if err != nil {
		logger.ErrorCF("patrol", "Knowledge fetch failed, continuing without context", map[string]any{
			"cycle_id": c.id,
			"error":    err.Error(),
		})
		return nil
	}
	logger.DebugCF("patrol", "Knowledge loaded", map[string]any{"cycle_id": c.id, "items": len(items)})
	return items
}

func (p *Patrol) overBudget(c *cycle) bool {
	return p.opts.Now().Sub(c.start) > p.opts.ExecTimeLimit
}

func (p *Patrol) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	_ = p.opts.Sleep(ctx, d)
}

// monitoringTargets lists the public channel, if any, then the most recent
// direct conversations.
func (p *Patrol) monitoringTargets(ctx context.Context, c *cycle) []chat.Target {
	var targets []chat.Target
	seen := map[string]struct{}{}
	if p.opts.PublicChannelID != "" {
		targets = append(targets, chat.Target{ID: p.opts.PublicChannelID, Kind: chat.KindPublic})
		seen[p.opts.PublicChannelID] = struct{}{}
	}

	ids, err := p.deps.Platform.ListDirectChannels(ctx, p.opts.MaxDMMonitor)
	if err != nil {
		logger.WarnCF("patrol", "Listing direct conversations failed", map[string]any{
			"cycle_id": c.id,
			"error":    err.Error(),
		})
	}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, chat.Target{ID: id, Kind: chat.KindDirect})
	}
	return targets
}

func (c *cycle) isDirectTarget(channelID string) bool {
	for _, t := range c.targets {
		if t.ID == channelID {
			return t.IsDirect()
		}
	}
	return false
}

// saveCheckpoint flushes state mid-cycle. A failed checkpoint is logged; the
// final save in Run gets another chance.
func (p *Patrol) saveCheckpoint(ctx context.Context, c *cycle) {
	if err := c.st.Save(ctx); err != nil {
		logger.ErrorCF("patrol", "State checkpoint failed", map[string]any{"cycle_id": c.id, "error": err.Error()})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
