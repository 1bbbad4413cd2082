package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyPlatform struct {
	Platform
	failures int
	err      error
	calls    int
}

func (f *flakyPlatform) AddReaction(ctx context.Context, channelID, ts, name string) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyPlatform) PostMessage(ctx context.Context, channelID, text, threadTS string) (Posted, error) {
	f.calls++
	if f.calls <= f.failures {
		return Posted{}, f.err
	}
	return Posted{ChannelID: channelID, TS: "1.1"}, nil
}

func noSleep(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	inner := &flakyPlatform{failures: 2, err: errors.New("502 bad gateway")}
	var sleeps []time.Duration
	p := WithRetry(inner, RetryPolicy{Attempts: 3, Backoff: time.Second, Sleep: noSleep(&sleeps)})

	posted, err := p.PostMessage(context.Background(), "C1", "hi", "")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if posted.TS != "1.1" {
		t.Fatalf("posted = %+v", posted)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second {
		t.Fatalf("sleeps = %v", sleeps)
	}
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	inner := &flakyPlatform{failures: 10, err: errors.New("timeout")}
	var sleeps []time.Duration
	p := WithRetry(inner, RetryPolicy{Attempts: 3, Sleep: noSleep(&sleeps)})

	if err := p.AddReaction(context.Background(), "C1", "1.0", "eyes"); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestWithRetry_PermanentErrorsAreNotRetried(t *testing.T) {
	inner := &flakyPlatform{failures: 10, err: Permanent(errors.New("channel_not_found"))}
	var sleeps []time.Duration
	p := WithRetry(inner, RetryPolicy{Attempts: 3, Sleep: noSleep(&sleeps)})

	err := p.AddReaction(context.Background(), "C1", "1.0", "eyes")
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if inner.calls != 1 || len(sleeps) != 0 {
		t.Fatalf("calls = %d sleeps = %d", inner.calls, len(sleeps))
	}
}
