package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wfrunner/internal/eventbus"
	"wfrunner/internal/retry"
	"wfrunner/internal/schedule"
	"wfrunner/internal/storage"
	"wfrunner/pkg/logx"
)

const defaultPoll = 15 * time.Second

// Service owns the scheduling loop and its state.
type Service struct {
	log     logx.Logger
	cfg     Config
	trig    *schedule.Trigger
	loc     *time.Location
	policy  retry.Policy
	invoker Invoker
	store   storage.Store // nil when history is disabled
	bus     eventbus.Bus  // nil when nothing subscribes

	mu          sync.Mutex
	state       State
	lastRun     time.Time
	nextDue     time.Time
	runs        uint64
	failures    uint64
	lastOutcome string
	lastErr     string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds the runner. The descriptor, timezone and retry policy are
// validated here: a bad configuration must fail before the loop starts.
// For cron descriptors this includes one trial evaluation, surfacing
// malformed expressions at startup rather than on the first tick.
func New(cfg Config, policy retry.Policy, invoker Invoker, store storage.Store, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if invoker == nil {
		return nil, errors.New("runner: invoker is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	trig, err := schedule.Parse(cfg.Descriptor)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("runner: invalid timezone %q: %w", tz, err)
		}
	}

	if _, err := trig.Next(time.Now(), time.Time{}, loc); err != nil {
		return nil, err
	}

	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	return &Service{
		log:     log.With(logx.String("comp", "runner"), logx.String("schedule", trig.String())),
		cfg:     cfg,
		trig:    trig,
		loc:     loc,
		policy:  policy,
		invoker: invoker,
		store:   store,
		bus:     bus,
		state:   StateIdle,
	}, nil
}

// Trigger exposes the parsed trigger (read-only, for the status surface).
func (s *Service) Trigger() *schedule.Trigger { return s.trig }

// Start launches the loop goroutine. It is a no-op when the schedule is
// disabled or the loop is already running.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("schedule disabled, loop not started")
		return nil
	}

	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to exit. An in-flight invocation
// is allowed to finish; ctx bounds how long Stop itself waits.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.doneCh)
	defer s.setState(StateIdle)

	stopCh := s.currentStopCh()

	now := time.Now()
	next, err := s.trig.Next(now, time.Time{}, s.loc)
	if err != nil {
		// Validated in New; only reachable if the clock jumped far enough to
		// exhaust the monthly search window.
		s.log.Error("cannot compute initial due time", logx.Err(err))
		return
	}

	s.mu.Lock()
	s.state = StateWaiting
	s.nextDue = next
	s.mu.Unlock()

	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Duration("poll", s.cfg.Poll),
		logx.Time("next_due", next))

	if s.cfg.RunOnStart {
		s.fire(ctx)
	}

	tick := time.NewTicker(s.cfg.Poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping", logx.String("reason", "context canceled"))
			return
		case <-stopCh:
			s.log.Info("scheduler stopping", logx.String("reason", "stop requested"))
			return
		case <-tick.C:
		}

		s.mu.Lock()
		due := s.state == StateWaiting && !time.Now().Before(s.nextDue)
		s.mu.Unlock()

		if due {
			s.fire(ctx)
		}
	}
}

func (s *Service) currentStopCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
