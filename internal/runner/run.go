package runner

import (
	"context"
	"errors"
	"time"

	"wfrunner/internal/eventbus"
	"wfrunner/internal/retry"
	"wfrunner/pkg/logx"
)

// ErrAlreadyRunning is returned by RunOnce when an invocation is in flight.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// fire executes one scheduled run and advances the schedule. Called only
// from the loop goroutine, so the Waiting -> Firing transition here cannot
// race another fire.
func (s *Service) fire(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateFiring {
		// Defensive: the loop is single-threaded, so this means a previous
		// run is somehow still marked in-flight. Skip, never overlap.
		s.mu.Unlock()
		s.log.Warn("run still in progress, skipping due instant")
		return
	}
	s.state = StateFiring
	s.mu.Unlock()

	firedAt := time.Now()
	err := s.execute(ctx, false)

	// last_fired_at advances to the due instant that just fired; the next
	// due time is computed only after the run completed, so a run that
	// overlaps a would-be instant coalesces into the following one.
	now := time.Now()
	next, nextErr := s.trig.Next(now, firedAt, s.loc)

	s.mu.Lock()
	s.state = StateWaiting
	s.lastRun = firedAt
	if nextErr == nil {
		s.nextDue = next
	}
	s.mu.Unlock()

	if nextErr != nil {
		s.log.Error("failed to compute next due time", logx.Err(nextErr))
		return
	}
	if err != nil {
		s.log.Warn("scheduled run failed, waiting for next due time", logx.Time("next_due", next))
	} else {
		s.log.Info("scheduled run complete", logx.Time("next_due", next))
	}
}

// RunOnce performs a single manual invocation, bypassing the loop. It shares
// the retry executor and bookkeeping with scheduled runs but does not touch
// the schedule: last_run/next_due advance only on scheduled fires.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateFiring {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := s.state
	s.state = StateFiring
	s.mu.Unlock()

	err := s.execute(ctx, true)

	s.mu.Lock()
	s.state = prev
	s.mu.Unlock()
	return err
}

// execute runs the invocation under the retry policy and records the
// outcome: counters, history record, bus events. The returned error is the
// exhausted-retries aggregate (or nil); it is never fatal to the caller.
func (s *Service) execute(ctx context.Context, manual bool) error {
	start := time.Now()
	attempts := 0

	s.publish(eventbus.RunStarted, RunEvent{At: start, Descriptor: s.trig.String(), Manual: manual})

	err := retry.Do(ctx, s.log, s.policy, "workflow", func(ctx context.Context) error {
		attempts++
		output, err := s.invoker.Run(ctx)
		if err != nil {
			return err
		}
		if output != "" {
			s.log.Debug("workflow output", logx.String("data", truncate(output, 500)))
		}
		return nil
	})

	took := time.Since(start)

	s.mu.Lock()
	s.runs++
	if err != nil {
		s.failures++
		s.lastOutcome = "exhausted"
		s.lastErr = err.Error()
	} else {
		s.lastOutcome = "success"
		s.lastErr = ""
	}
	s.mu.Unlock()

	ev := RunEvent{
		At:         start,
		Descriptor: s.trig.String(),
		Manual:     manual,
		Attempts:   attempts,
		Took:       took,
	}
	if err != nil {
		ev.Error = err.Error()
		s.publish(eventbus.RunFailed, ev)
	} else {
		s.publish(eventbus.RunFinished, ev)
	}

	s.record(ctx, ev, err == nil)
	return err
}

// RunEvent is the payload published on the bus for run lifecycle events.
type RunEvent struct {
	At         time.Time     `json:"at"`
	Descriptor string        `json:"descriptor"`
	Manual     bool          `json:"manual,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Took       time.Duration `json:"took,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (s *Service) record(ctx context.Context, ev RunEvent, ok bool) {
	if s.store == nil {
		return
	}
	// Don't let a canceled shutdown context lose the final record.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	rec := storageRecord(ev, ok)
	if err := s.store.AppendRun(rctx, rec); err != nil {
		s.log.Warn("failed to append run history", logx.Err(err))
	}
}

func truncate(s string, maxN int) string {
	if len(s) <= maxN {
		return s
	}
	return s[:maxN] + "..."
}
