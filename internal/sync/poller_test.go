package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	initial  atomic.Int32
	unread   atomic.Int32
	fallback atomic.Int32
	refresh  atomic.Int32
	fresh    atomic.Bool
}

func (f *fakeTarget) InitialLoad(context.Context) bool {
	f.initial.Add(1)
	return true
}

func (f *fakeTarget) SyncUnreadCount(context.Context) { f.unread.Add(1) }

func (f *fakeTarget) PollFallback(context.Context) bool {
	if f.fresh.Load() {
		return false
	}
	f.fallback.Add(1)
	return true
}

func (f *fakeTarget) Refresh(context.Context) int {
	f.refresh.Add(1)
	return 2
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func startPoller(t *testing.T, target *fakeTarget) (*Poller, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	p := New(target, Options{Clock: clock, Logger: zerolog.Nop()})
	require.NotNil(t, p.Start())
	t.Cleanup(p.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 3))
	return p, clock
}

func TestPollerSchedule(t *testing.T) {
	target := &fakeTarget{}
	_, clock := startPoller(t, target)

	eventually(t, func() bool { return target.unread.Load() == 1 })
	assert.Equal(t, int32(0), target.initial.Load())

	clock.Advance(500 * time.Millisecond)
	eventually(t, func() bool { return target.initial.Load() == 1 })

	clock.Advance(9500 * time.Millisecond)
	eventually(t, func() bool { return target.fallback.Load() == 1 })

	clock.Advance(10 * time.Second)
	eventually(t, func() bool { return target.fallback.Load() == 2 })

	clock.Advance(10 * time.Second)
	eventually(t, func() bool { return target.unread.Load() == 2 && target.fallback.Load() == 3 })
	assert.Equal(t, int32(1), target.initial.Load())
}

func TestPollerReportsSkippedFallback(t *testing.T) {
	target := &fakeTarget{}
	target.fresh.Store(true)
	p, clock := startPoller(t, target)

	clock.Advance(500 * time.Millisecond)
	clock.Advance(9500 * time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-p.Results():
			if msg.Kind == KindFallback {
				assert.False(t, msg.Ran)
				assert.Equal(t, int32(0), target.fallback.Load())
				return
			}
		case <-deadline:
			t.Fatal("no fallback result")
		}
	}
}

func TestPollerRefreshTrigger(t *testing.T) {
	target := &fakeTarget{}
	p, _ := startPoller(t, target)

	p.Refresh()
	eventually(t, func() bool { return target.refresh.Load() == 1 })
}

func TestPollerStartStop(t *testing.T) {
	target := &fakeTarget{}
	p, _ := startPoller(t, target)

	assert.Nil(t, p.Start())
	assert.True(t, p.Running())

	p.Stop()
	assert.False(t, p.Running())
	p.Stop()

	assert.NotNil(t, p.Start())
	assert.True(t, p.Running())
}
