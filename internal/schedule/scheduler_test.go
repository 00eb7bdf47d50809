package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingDispatcher struct {
	mu    sync.Mutex
	calls map[Action]int
}

func newCountingDispatcher() *countingDispatcher {
	return &countingDispatcher{calls: make(map[Action]int)}
}

func (d *countingDispatcher) Perform(_ context.Context, action Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[action]++
}

func (d *countingDispatcher) count(action Action) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[action]
}

func TestSchedulerFiresBothActions(t *testing.T) {
	d := newCountingDispatcher()
	s := New(d, nil)
	s.Start(context.Background(), 5*time.Millisecond, 5*time.Millisecond)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for d.count(ActionQuery) == 0 || d.count(ActionNextPage) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never fired")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerDisablesActionWithZeroInterval(t *testing.T) {
	d := newCountingDispatcher()
	s := New(d, nil)
	s.Start(context.Background(), 5*time.Millisecond, 0)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for d.count(ActionQuery) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("query action never fired")
		}
		time.Sleep(time.Millisecond)
	}
	assert.Zero(t, d.count(ActionNextPage))
	assert.True(t, s.NextRun(ActionNextPage).IsZero())
	assert.False(t, s.NextRun(ActionQuery).IsZero())
}

func TestSchedulerStopHaltsFiring(t *testing.T) {
	d := newCountingDispatcher()
	s := New(d, nil)
	s.Start(context.Background(), time.Millisecond, time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for d.count(ActionQuery) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never fired")
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	before := d.count(ActionQuery)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, d.count(ActionQuery))
	assert.True(t, s.NextRun(ActionQuery).IsZero())

	// Stopping twice is harmless.
	s.Stop()
}

func TestSchedulerRestartReplacesIntervals(t *testing.T) {
	d := newCountingDispatcher()
	s := New(d, nil)
	ctx := context.Background()
	s.Start(ctx, time.Hour, 0)
	s.Start(ctx, 5*time.Millisecond, 0)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for d.count(ActionQuery) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("restarted scheduler never fired")
		}
		time.Sleep(time.Millisecond)
	}
}
