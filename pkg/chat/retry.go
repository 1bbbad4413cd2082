package chat

import (
	"context"
	"time"

	"github.com/dotsetgreg/deskpatrol/pkg/logger"
)

type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

type retryingPlatform struct {
	inner  Platform
	policy RetryPolicy
}

// WithRetry retries transient platform failures with a fixed backoff.
// Errors marked Permanent and context cancellation are returned immediately.
func WithRetry(p Platform, policy RetryPolicy) Platform {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepCtx
	}
	return &retryingPlatform{inner: p, policy: policy}
}

func (r *retryingPlatform) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		err = fn()
		if err == nil || IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		if attempt == r.policy.Attempts {
			break
		}
		logger.WarnCF("chat", "platform call failed, retrying", map[string]any{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if serr := r.policy.Sleep(ctx, r.policy.Backoff); serr != nil {
			return serr
		}
	}
	return err
}

func (r *retryingPlatform) ListDirectChannels(ctx context.Context, limit int) ([]string, error) {
	var out []string
	err := r.do(ctx, "list_direct_channels", func() error {
		var err error
		out, err = r.inner.ListDirectChannels(ctx, limit)
		return err
	})
	return out, err
}

func (r *retryingPlatform) FetchMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	var out []Message
	err := r.do(ctx, "fetch_messages", func() error {
		var err error
		out, err = r.inner.FetchMessages(ctx, channelID, limit)
		return err
	})
	return out, err
}

func (r *retryingPlatform) FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]Message, error) {
	var out []Message
	err := r.do(ctx, "fetch_thread_replies", func() error {
		var err error
		out, err = r.inner.FetchThreadReplies(ctx, channelID, threadTS, limit)
		return err
	})
	return out, err
}

func (r *retryingPlatform) PostMessage(ctx context.Context, channelID, text, threadTS string) (Posted, error) {
	var out Posted
	err := r.do(ctx, "post_message", func() error {
		var err error
		out, err = r.inner.PostMessage(ctx, channelID, text, threadTS)
		return err
	})
	return out, err
}

func (r *retryingPlatform) AddReaction(ctx context.Context, channelID, ts, name string) error {
	return r.do(ctx, "add_reaction", func() error {
		return r.inner.AddReaction(ctx, channelID, ts, name)
	})
}

func (r *retryingPlatform) UserInfo(ctx context.Context, userID string) (User, error) {
	var out User
	err := r.do(ctx, "user_info", func() error {
		var err error
		out, err = r.inner.UserInfo(ctx, userID)
		return err
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
