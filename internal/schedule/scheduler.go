package schedule

import (
	"context"
	"sync"
	"time"

	"tabmon/internal/logger"
)

// Action names one scheduled page interaction.
type Action string

const (
	ActionQuery    Action = "query"
	ActionNextPage Action = "nextPage"
)

// Dispatcher executes one scheduled action. Implementations must not
// block longer than the shortest schedule interval.
type Dispatcher interface {
	Perform(ctx context.Context, action Action)
}

// Scheduler fires the query and next-page actions on independent
// periodic timers.
type Scheduler struct {
	dispatcher Dispatcher
	log        logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	nextRuns map[Action]time.Time
}

// New creates a stopped scheduler.
func New(d Dispatcher, l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.NewNop()
	}
	return &Scheduler{
		dispatcher: d,
		log:        l,
		nextRuns:   make(map[Action]time.Time),
	}
}

// Start begins firing actions. A non-positive interval disables that
// action. Calling Start on a running scheduler restarts it with the new
// intervals.
func (s *Scheduler) Start(ctx context.Context, queryEvery, nextPageEvery time.Duration) {
	s.Stop()

	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if queryEvery > 0 {
		s.spawn(ctx, ActionQuery, queryEvery)
	}
	if nextPageEvery > 0 {
		s.spawn(ctx, ActionNextPage, nextPageEvery)
	}
	s.log.Info("scheduler started",
		"queryEvery", queryEvery.String(),
		"nextPageEvery", nextPageEvery.String())
}

// Stop cancels all timers and waits for in-flight actions to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.nextRuns = make(map[Action]time.Time)
	s.mu.Unlock()
}

// NextRun reports when the given action fires next. The zero time means
// the action is not scheduled.
func (s *Scheduler) NextRun(action Action) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRuns[action]
}

func (s *Scheduler) spawn(ctx context.Context, action Action, every time.Duration) {
	s.setNextRun(action, time.Now().Add(every))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.setNextRun(action, time.Now().Add(every))
				s.dispatcher.Perform(ctx, action)
			}
		}
	}()
}

func (s *Scheduler) setNextRun(action Action, at time.Time) {
	s.mu.Lock()
	s.nextRuns[action] = at
	s.mu.Unlock()
}
