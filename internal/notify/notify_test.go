package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"wfrunner/internal/eventbus"
	"wfrunner/internal/runner"
	"wfrunner/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := what.(string); ok {
		f.texts = append(f.texts, s)
	}
	return &tele.Message{}, nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDeliversOnRunFailed(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	n := newWithSender(Config{ChatID: 42, RatePerSec: 10}, fake, logx.Nop())
	bus := eventbus.New()
	n.Start(bus)
	defer n.Stop()

	bus.Publish(eventbus.Event{Type: eventbus.RunFailed, Data: runner.RunEvent{
		Descriptor: "daily:18:00",
		Attempts:   4,
		Took:       3 * time.Second,
		Error:      "workflow invocation failed after 4 attempts",
	}})

	waitFor(t, func() bool { return len(fake.sent()) == 1 })
	msg := fake.sent()[0]
	for _, want := range []string{"daily:18:00", "Attempts: 4", "failed after 4 attempts"} {
		if !strings.Contains(msg, want) {
			t.Errorf("alert missing %q:\n%s", want, msg)
		}
	}
}

func TestIgnoresNonFailureEvents(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	n := newWithSender(Config{ChatID: 42}, fake, logx.Nop())
	bus := eventbus.New()
	n.Start(bus)

	bus.Publish(eventbus.Event{Type: eventbus.RunStarted, Data: runner.RunEvent{}})
	bus.Publish(eventbus.Event{Type: eventbus.RunFinished, Data: runner.RunEvent{}})

	// Stop drains the consumer; anything delivered would be recorded.
	time.Sleep(50 * time.Millisecond)
	n.Stop()
	if got := len(fake.sent()); got != 0 {
		t.Errorf("sent %d alerts, want 0", got)
	}
}

func TestRateLimitSuppresses(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	n := newWithSender(Config{ChatID: 42, RatePerSec: 1}, fake, logx.Nop())
	bus := eventbus.New()
	n.Start(bus)
	defer n.Stop()

	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.RunFailed, Data: runner.RunEvent{Attempts: 1}})
	}

	waitFor(t, func() bool { return len(fake.sent()) >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := len(fake.sent()); got > 2 {
		t.Errorf("sent %d alerts despite 1/s limit", got)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Token: "", ChatID: 1}, logx.Nop()); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(Config{Token: "123:abc", ChatID: 0}, logx.Nop()); err == nil {
		t.Error("expected error for missing chat id")
	}
}

func TestFormatFailureTruncatesError(t *testing.T) {
	t.Parallel()

	msg := formatFailure(runner.RunEvent{Error: strings.Repeat("x", 2000)})
	if len(msg) > 1000 {
		t.Errorf("alert not truncated: %d bytes", len(msg))
	}
	if !strings.HasSuffix(msg, "...") {
		t.Error("truncated error should end with ellipsis")
	}
}
