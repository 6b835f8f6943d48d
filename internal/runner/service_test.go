package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wfrunner/internal/eventbus"
	"wfrunner/internal/retry"
	"wfrunner/internal/storage"
	"wfrunner/pkg/logx"
)

type fakeStore struct {
	mu   sync.Mutex
	recs []storage.RunRecord
}

func (f *fakeStore) AppendRun(ctx context.Context, r storage.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, r)
	return nil
}

func (f *fakeStore) RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.RunRecord(nil), f.recs...), nil
}

func (f *fakeStore) Close() error { return nil }

func okInvoker(calls *atomic.Int64) Invoker {
	return InvokerFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	inv := InvokerFunc(func(ctx context.Context) (string, error) { return "", nil })

	tests := []struct {
		name   string
		cfg    Config
		policy retry.Policy
	}{
		{name: "bad descriptor", cfg: Config{Descriptor: "yearly:01"}},
		{name: "interval too small", cfg: Config{Descriptor: "interval:10"}},
		{name: "bad timezone", cfg: Config{Descriptor: "daily:18:00", Timezone: "Mars/Olympus"}},
		{name: "bad cron surfaces at startup", cfg: Config{Descriptor: "cron:nope nope"}},
		{name: "bad policy", cfg: Config{Descriptor: "daily:18:00"}, policy: retry.Policy{MaxRetries: -1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.policy, inv, nil, nil, logx.Nop()); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := New(Config{Descriptor: "daily:18:00"}, retry.Policy{}, nil, nil, nil, logx.Nop()); err == nil {
		t.Fatal("nil invoker must be rejected")
	}
}

func TestRunOnceUpdatesSnapshot(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	st := &fakeStore{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s, err := New(Config{Descriptor: "daily:18:00"}, retry.Policy{}, okInvoker(&calls), st, bus, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	snap := s.Snapshot()
	if snap.Runs != 1 || snap.Failures != 0 {
		t.Fatalf("runs/failures = %d/%d, want 1/0", snap.Runs, snap.Failures)
	}
	if snap.LastOutcome != "success" {
		t.Fatalf("LastOutcome = %q", snap.LastOutcome)
	}
	if snap.Running || snap.State == StateFiring {
		t.Fatalf("state not restored after RunOnce: %+v", snap)
	}
	// Manual runs do not advance the schedule.
	if !snap.LastRunAt.IsZero() {
		t.Fatalf("manual run advanced last_run_at: %v", snap.LastRunAt)
	}

	if len(st.recs) != 1 || !st.recs[0].OK || !st.recs[0].Manual {
		t.Fatalf("history record = %+v", st.recs)
	}

	var types []string
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("bus events missing, got %v", types)
		}
	}
	if types[0] != eventbus.RunStarted || types[1] != eventbus.RunFinished {
		t.Fatalf("event types = %v", types)
	}
}

func TestRunOnceExhausted(t *testing.T) {
	t.Parallel()
	boom := errors.New("api down")
	inv := InvokerFunc(func(ctx context.Context) (string, error) { return "", boom })
	st := &fakeStore{}

	s, err := New(Config{Descriptor: "daily:18:00"}, retry.Policy{MaxRetries: 2}, inv, st, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.RunOnce(context.Background())
	var ex *retry.ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error %v is not *ExhaustedError", err)
	}

	snap := s.Snapshot()
	if snap.Failures != 1 || snap.LastOutcome != "exhausted" || snap.LastError == "" {
		t.Fatalf("snapshot after failure: %+v", snap)
	}
	if len(st.recs) != 1 || st.recs[0].OK || st.recs[0].Attempts != 3 {
		t.Fatalf("history record = %+v", st.recs)
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{})
	inv := InvokerFunc(func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	})

	s, err := New(Config{Descriptor: "daily:18:00"}, retry.Policy{}, inv, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-started

	if err := s.RunOnce(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
}

func TestLoopFiresIntervalTrigger(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64

	s, err := New(Config{
		Enabled:    true,
		Descriptor: "interval:60",
	}, retry.Policy{}, okInvoker(&calls), nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Shrink timings for the test; Parse enforces the production minimum.
	s.cfg.Poll = 2 * time.Millisecond
	s.trig.Every = 30 * time.Millisecond

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("loop fired %d times, want >= 2", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap := s.Snapshot()
	if snap.Runs < 2 {
		t.Fatalf("Runs = %d, want >= 2", snap.Runs)
	}
	if snap.LastRunAt.IsZero() || snap.NextDueAt.IsZero() {
		t.Fatalf("schedule bookkeeping missing: %+v", snap)
	}
	if !snap.NextDueAt.After(snap.LastRunAt) {
		t.Fatalf("next_due %v not after last_run %v", snap.NextDueAt, snap.LastRunAt)
	}
	if snap.State != StateIdle {
		t.Fatalf("state after Stop = %v, want idle", snap.State)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	s, err := New(Config{Descriptor: "interval:60"}, retry.Policy{}, okInvoker(&calls), nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("disabled runner invoked the workflow %d times", calls.Load())
	}
}
