package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	draftsAt time.Time
	tokensAt time.Time
	err      error
}

func (f *fakePurger) DeleteExpiredDrafts(_ context.Context, now time.Time) (int64, error) {
	f.draftsAt = now
	return 3, f.err
}

func (f *fakePurger) PurgeCloseTokens(_ context.Context, before time.Time) (int64, error) {
	f.tokensAt = before
	return 1, nil
}

func TestCleanupJobsCutoffs(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	jobs := CleanupJobs(p, p, func() time.Time { return now })
	require.Len(t, jobs, 2)
	assert.Equal(t, "@every 1h", jobs[0].Spec)
	assert.Equal(t, "@daily", jobs[1].Spec)

	require.NoError(t, RunOnce(context.Background(), jobs))
	assert.Equal(t, now, p.draftsAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), p.tokensAt)
}

func TestRunOnceReportsFailures(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	err := RunOnce(context.Background(), CleanupJobs(p, p, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired_drafts")
	// the second job still ran
	assert.False(t, p.tokensAt.IsZero())
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(Job{Name: "bad", Spec: "not a spec", Run: func(context.Context) (int64, error) { return 0, nil }})
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestStartAndStop(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New(Job{Name: "tick", Spec: "@every 1s", Run: func(context.Context) (int64, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}})
	require.NoError(t, s.Start(context.Background()))
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
	s.Stop()
}
