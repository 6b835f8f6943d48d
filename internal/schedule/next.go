package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// monthSearchLimit bounds the forward search for monthly triggers. Day 31
// occurs at least 7 times a year, so this is never reached for valid input.
const monthSearchLimit = 48

// Next computes the first fire instant strictly after ref, in loc.
//
// last is the instant of the previous fire; it only affects interval
// triggers, which fire at last+Every (or immediately when never fired).
// Wall-clock and cron triggers depend on ref alone.
func (t *Trigger) Next(ref, last time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	now := ref.In(loc)

	switch t.Kind {
	case KindDaily:
		c := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, loc)
		if !c.After(now) {
			c = c.AddDate(0, 0, 1)
		}
		return c, nil

	case KindHourly:
		c := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), t.Minute, 0, 0, loc)
		if !c.After(now) {
			c = c.Add(time.Hour)
		}
		return c, nil

	case KindWeekly:
		ahead := (int(t.Weekday) - int(now.Weekday()) + 7) % 7
		c := time.Date(now.Year(), now.Month(), now.Day()+ahead, t.Hour, t.Minute, 0, 0, loc)
		if !c.After(now) {
			c = c.AddDate(0, 0, 7)
		}
		return c, nil

	case KindMonthly:
		for i := 0; i < monthSearchLimit; i++ {
			c := time.Date(now.Year(), now.Month()+time.Month(i), t.Day, t.Hour, t.Minute, 0, 0, loc)
			// time.Date normalizes overflow (Feb 31 -> Mar 3); a changed day
			// means this month is too short, so it is skipped, not clamped.
			if c.Day() != t.Day {
				continue
			}
			if c.After(now) {
				return c, nil
			}
		}
		return time.Time{}, fmt.Errorf("no occurrence of day %d within %d months", t.Day, monthSearchLimit)

	case KindInterval:
		if last.IsZero() {
			// Never fired: due immediately.
			return now, nil
		}
		return last.Add(t.Every), nil

	case KindCron:
		sched, err := t.cronSchedule()
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(now), nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown trigger kind %d", ErrInvalidSpec, int(t.Kind))
	}
}

// Due reports whether the trigger's fire condition holds at now, given the
// previous fire instant. Firing must advance last so the same instant cannot
// re-fire.
//
// With no prior fire, interval triggers are due immediately; wall-clock and
// cron triggers wait for their next occurrence computed from now.
func (t *Trigger) Due(now, last time.Time, loc *time.Location) (bool, error) {
	if last.IsZero() {
		if t.Kind == KindInterval {
			return true, nil
		}
		last = now
	}
	next, err := t.Next(last, last, loc)
	if err != nil {
		return false, err
	}
	return !now.Before(next), nil
}

// cronSchedule compiles the verbatim expression on first use. Parse defers
// cron syntax checking to evaluation; callers surface the error at startup
// when computing the initial due time.
func (t *Trigger) cronSchedule() (cron.Schedule, error) {
	if t.compiled != nil {
		return t.compiled, nil
	}
	sched, err := cron.ParseStandard(t.Expr)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %v", ErrInvalidSpec, t.Expr, err)
	}
	t.compiled = sched
	return sched, nil
}
