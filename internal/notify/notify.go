// Package notify pushes failure alerts to a Telegram chat. It listens on
// the event bus so the runner stays unaware of any delivery channel.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"wfrunner/internal/eventbus"
	"wfrunner/internal/runner"
	"wfrunner/pkg/logx"
)

const defaultRatePerSec = 1

// Config controls the Telegram notifier.
type Config struct {
	Token      string
	ChatID     int64
	RatePerSec int // alert throttle; <=0 means 1/s
}

// sender is the slice of the Telegram bot API the notifier needs.
// Satisfied by *tele.Bot.
type sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Notifier forwards run.failed events to a Telegram chat.
type Notifier struct {
	log     logx.Logger
	bot     sender
	chat    tele.ChatID
	limiter *rate.Limiter

	unsub func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// New connects to the Telegram API and builds the notifier.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: chat_id is required")
	}
	// Send-only: no poller, the bot never consumes updates.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return newWithSender(cfg, b, log), nil
}

func newWithSender(cfg Config, b sender, log logx.Logger) *Notifier {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	return &Notifier{
		log:     log,
		bot:     b,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Start subscribes to the bus and begins delivering alerts.
func (n *Notifier) Start(bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(16)
	n.unsub = unsub
	n.done = make(chan struct{})
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-n.done:
				return
			case ev := <-ch:
				n.handle(ev)
			}
		}
	}()
}

// Stop unsubscribes and waits for the in-flight delivery, if any.
func (n *Notifier) Stop() {
	if n.unsub == nil {
		return
	}
	n.unsub()
	close(n.done)
	n.wg.Wait()
	n.unsub = nil
}

func (n *Notifier) handle(ev eventbus.Event) {
	if ev.Type != eventbus.RunFailed {
		return
	}
	run, ok := ev.Data.(runner.RunEvent)
	if !ok {
		return
	}
	if !n.limiter.Allow() {
		n.log.Warn("failure alert suppressed by rate limit", logx.String("descriptor", run.Descriptor))
		return
	}
	if _, err := n.bot.Send(n.chat, formatFailure(run), tele.ModeMarkdown); err != nil {
		n.log.Warn("failed to deliver failure alert", logx.Err(err))
	}
}

func formatFailure(ev runner.RunEvent) string {
	var b strings.Builder
	b.WriteString("*Workflow run failed*\n")
	fmt.Fprintf(&b, "Schedule: `%s`\n", ev.Descriptor)
	if ev.Manual {
		b.WriteString("Trigger: manual\n")
	}
	fmt.Fprintf(&b, "Attempts: %d\n", ev.Attempts)
	fmt.Fprintf(&b, "Took: %s\n", ev.Took.Round(time.Millisecond))
	if ev.Error != "" {
		fmt.Fprintf(&b, "Error: %s", truncate(ev.Error, 800))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
