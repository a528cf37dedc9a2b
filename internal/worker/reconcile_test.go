package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) Reconcile(context.Context) (int64, error) {
	r.calls.Add(1)
	return 2, r.err
}

func TestRunOnce(t *testing.T) {
	target := &countingReconciler{}
	w := NewReconcileWorker(target, &config.ReconcileConfig{Interval: time.Minute}, clockwork.NewFakeClock(), nil)

	w.RunOnce(context.Background())
	assert.Equal(t, int32(1), target.calls.Load())

	target.err = errors.New("database unavailable")
	w.RunOnce(context.Background())
	assert.Equal(t, int32(2), target.calls.Load())
}

func TestStartRunsOnInterval(t *testing.T) {
	target := &countingReconciler{}
	clock := clockwork.NewFakeClock()
	w := NewReconcileWorker(target, &config.ReconcileConfig{Interval: time.Minute}, clock, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return target.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}
