package scheduler

import (
	"context"
	"sync"
	"time"

	"conductor/internal/logger"
)

const DefaultReplayInterval = 1000 * time.Millisecond

// ReplayScheduler fires a step function on a fixed interval until the step
// reports exhaustion or the context ends. It never blocks the caller.
type ReplayScheduler struct {
	Interval time.Duration

	newTicker func(time.Duration) (<-chan time.Time, func())

	once sync.Once
	done chan struct{}
}

func NewReplayScheduler(interval time.Duration) *ReplayScheduler {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	return &ReplayScheduler{
		Interval: interval,
		done:     make(chan struct{}),
	}
}

// Start schedules step and returns immediately. step returns false once the
// queue is empty; the timer is then cancelled and Done is closed.
func (s *ReplayScheduler) Start(ctx context.Context, step func(context.Context) bool) {
	if s == nil {
		return
	}
	if step == nil {
		logger.Warnf("ReplayScheduler: step is nil, exit")
		s.finish()
		return
	}
	if s.Interval <= 0 {
		s.Interval = DefaultReplayInterval
	}
	tick, stop := s.ticker()
	go func() {
		defer s.finish()
		defer stop()
		for {
			select {
			case <-ctx.Done():
				logger.Infof("ReplayScheduler: ctx done, exit")
				return
			case <-tick:
			}
			if !step(ctx) {
				logger.Debugf("ReplayScheduler: queue exhausted, timer cancelled")
				return
			}
		}
	}()
}

// Done is closed once the replay has stopped for any reason.
func (s *ReplayScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *ReplayScheduler) finish() {
	s.once.Do(func() { close(s.done) })
}

func (s *ReplayScheduler) ticker() (<-chan time.Time, func()) {
	if s.newTicker != nil {
		return s.newTicker(s.Interval)
	}
	t := time.NewTicker(s.Interval)
	return t.C, t.Stop
}
