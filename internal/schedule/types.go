package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes the normalized kind of a schedule descriptor.
type Kind int

const (
	KindDaily Kind = iota
	KindCron
	KindInterval
	KindHourly
	KindWeekly
	KindMonthly
)

func (k Kind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindCron:
		return "cron"
	case KindInterval:
		return "interval"
	case KindHourly:
		return "hourly"
	case KindWeekly:
		return "weekly"
	case KindMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// Trigger is a parsed schedule descriptor. Exactly one kind is active; only
// the fields for that kind are meaningful.
//
// A Trigger is immutable after Parse except for the lazily compiled cron
// schedule, which is owned by the single evaluation goroutine.
type Trigger struct {
	Kind Kind

	Hour    int          // daily, weekly, monthly
	Minute  int          // daily, hourly, weekly, monthly
	Weekday time.Weekday // weekly
	Day     int          // monthly, 1..31

	Every time.Duration // interval

	Expr string // cron, stored verbatim

	compiled cron.Schedule
}

// String renders the canonical descriptor form, suitable for logs and the
// status surface.
func (t *Trigger) String() string {
	switch t.Kind {
	case KindDaily:
		return fmt.Sprintf("daily:%02d:%02d", t.Hour, t.Minute)
	case KindCron:
		return "cron:" + t.Expr
	case KindInterval:
		return fmt.Sprintf("interval:%d", int(t.Every/time.Second))
	case KindHourly:
		return fmt.Sprintf("hourly:%02d", t.Minute)
	case KindWeekly:
		return fmt.Sprintf("weekly:%s:%02d:%02d", weekdayName(t.Weekday), t.Hour, t.Minute)
	case KindMonthly:
		return fmt.Sprintf("monthly:%d:%02d:%02d", t.Day, t.Hour, t.Minute)
	default:
		return "unknown"
	}
}

func weekdayName(d time.Weekday) string {
	names := [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	if d < 0 || int(d) >= len(names) {
		return "unknown"
	}
	return names[d]
}
