package cronrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunnerRunsJobs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(zap.New(core), context.Background())

	var runs int32
	_, err := r.Add("tick", "@every 1s", time.Second, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	})
	require.NoError(t, err)

	r.Start()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 3*time.Second, 10*time.Millisecond)
	r.Stop()

	require.Eventually(t, func() bool { return logs.FilterMessage("cron job failed").Len() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestRunnerSkipsAfterBaseContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, ctx)
	var runs int32
	_, err := r.Add("tick", "@every 1s", 0, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	require.NoError(t, err)
	r.Start()
	time.Sleep(1500 * time.Millisecond)
	r.Stop()
	assert.Zero(t, atomic.LoadInt32(&runs))
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Add("bad", "not a spec", 0, func(context.Context) error { return nil })
	assert.Error(t, err)
}
