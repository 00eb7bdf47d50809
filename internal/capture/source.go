package capture

import (
	"context"
	"errors"
	"time"

	"tabmon/internal/debugger"
	"tabmon/internal/logger"
	"tabmon/pkg/model"
)

// Source delivers the lifecycle events of one tab. The channel closes
// when the subscription ends.
type Source interface {
	Subscribe(ctx context.Context, tab model.TabID) (<-chan model.NetworkEvent, error)
}

// NewSource selects an event source by capability detection on the
// transport: direct event subscription when available, otherwise a
// timer-based polling stand-in.
func NewSource(t debugger.Transport, pollInterval time.Duration, l logger.Logger) (Source, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if s, ok := t.(debugger.Streamer); ok {
		return &streamSource{s: s}, nil
	}
	if p, ok := t.(debugger.Poller); ok {
		if pollInterval <= 0 {
			pollInterval = time.Second
		}
		return &pollSource{p: p, interval: pollInterval, log: l}, nil
	}
	return nil, errors.New("capture: transport supports neither streaming nor polling")
}

type streamSource struct {
	s debugger.Streamer
}

func (s *streamSource) Subscribe(ctx context.Context, tab model.TabID) (<-chan model.NetworkEvent, error) {
	return s.s.StreamNetwork(ctx, tab)
}

type pollSource struct {
	p        debugger.Poller
	interval time.Duration
	log      logger.Logger
}

func (s *pollSource) Subscribe(ctx context.Context, tab model.TabID) (<-chan model.NetworkEvent, error) {
	out := make(chan model.NetworkEvent, 64)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			evs, err := s.p.PollNetwork(ctx, tab)
			if err != nil {
				s.log.Warn("network poll failed", "tab", string(tab), "error", err)
				continue
			}
			for _, ev := range evs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
