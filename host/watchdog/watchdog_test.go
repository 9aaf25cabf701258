package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/internal/testutil"
)

type fakeTarget struct {
	suspended atomic.Int32
}

func (f *fakeTarget) SuspendExecuting() { f.suspended.Add(1) }

func TestWatchdog_SuspendsExpired(t *testing.T) {
	clock := testutil.NewClock()
	logger, logs := testutil.NewLogger()
	w := New(WithClock(clock.Now), WithLogger(logger), WithTimeouts(time.Second, 0))

	slow, fast := &fakeTarget{}, &fakeTarget{}
	w.Register(1, slow)
	clock.Advance(800 * time.Millisecond)
	w.Register(2, fast)

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 1, w.Check())
	assert.Equal(t, int32(1), slow.suspended.Load())
	assert.Zero(t, fast.suspended.Load())

	active := w.Active()
	require.Len(t, active, 1)
	assert.Equal(t, uint64(2), active[0].PoolID)

	assert.Zero(t, w.Check(), "a suspended record is removed")
	testutil.AssertLogged(t, logs, "script timed out", "pool=1")

	w.Unregister(2)
	w.Unregister(2)
	assert.Empty(t, w.Active())
}

func TestWatchdog_WarnsOnce(t *testing.T) {
	clock := testutil.NewClock()
	logger, logs := testutil.NewLogger()
	w := New(WithClock(clock.Now), WithLogger(logger), WithTimeouts(0, 100*time.Millisecond))

	target := &fakeTarget{}
	w.Register(7, target)
	clock.Advance(time.Second)
	assert.Zero(t, w.Check())
	assert.Zero(t, w.Check())

	assert.Len(t, logs.Lines("script running long", "pool=7"), 1)
	assert.Zero(t, target.suspended.Load(), "zero suspend threshold never suspends")
	assert.Len(t, w.Active(), 1)
}

func TestWatchdog_SetTimeouts(t *testing.T) {
	clock := testutil.NewClock()
	w := New(WithClock(clock.Now))

	target := &fakeTarget{}
	w.Register(1, target)
	clock.Advance(time.Minute)
	assert.Zero(t, w.Check())

	w.SetTimeouts(time.Second, 0)
	suspend, warn := w.Timeouts()
	assert.Equal(t, time.Second, suspend)
	assert.Zero(t, warn)
	assert.Equal(t, 1, w.Check())
}

func TestWatchdog_Run(t *testing.T) {
	w := New(WithPollInterval(5*time.Millisecond), WithTimeouts(20*time.Millisecond, 0))
	target := &fakeTarget{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Register(1, target)
	require.Eventually(t, func() bool { return target.suspended.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
