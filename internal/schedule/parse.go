package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSpec marks a malformed or out-of-range schedule descriptor.
// It is fatal at startup: the loop must not start on a descriptor that
// cannot be evaluated.
var ErrInvalidSpec = errors.New("invalid schedule spec")

// MinInterval is the smallest accepted interval. Anything tighter is a
// misconfiguration that would hammer the remote API.
const MinInterval = 60 * time.Second

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Parse parses a schedule descriptor into a Trigger.
//
// Parse is a pure function of its input. Cron expressions are kept verbatim
// and compiled on first evaluation; every other kind is fully validated here.
func Parse(raw string) (*Trigger, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty descriptor", ErrInvalidSpec)
	}

	kind, rest, _ := strings.Cut(s, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))

	switch kind {
	case "daily":
		// daily:HH:MM
		h, m, err := parseHHMM(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: daily:HH:MM: %v", ErrInvalidSpec, err)
		}
		return &Trigger{Kind: KindDaily, Hour: h, Minute: m}, nil

	case "cron":
		// cron:<expr>, everything after the first colon kept verbatim.
		expr := strings.TrimSpace(rest)
		if expr == "" {
			return nil, fmt.Errorf("%w: cron expression required after 'cron:'", ErrInvalidSpec)
		}
		return &Trigger{Kind: KindCron, Expr: expr}, nil

	case "interval":
		// interval:<seconds>
		v := strings.TrimSpace(rest)
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: interval seconds %q is not an integer", ErrInvalidSpec, v)
		}
		every := time.Duration(n) * time.Second
		if every < MinInterval {
			return nil, fmt.Errorf("%w: interval must be at least %d seconds", ErrInvalidSpec, int(MinInterval/time.Second))
		}
		return &Trigger{Kind: KindInterval, Every: every}, nil

	case "hourly":
		// hourly:MM
		m, err := parseMinute(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("%w: hourly:MM: %v", ErrInvalidSpec, err)
		}
		return &Trigger{Kind: KindHourly, Minute: m}, nil

	case "weekly":
		// weekly:<day>:HH:MM
		day, timePart, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("%w: weekly format is weekly:day:HH:MM", ErrInvalidSpec)
		}
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSpec, strings.TrimSpace(day))
		}
		h, m, err := parseHHMM(timePart)
		if err != nil {
			return nil, fmt.Errorf("%w: weekly:day:HH:MM: %v", ErrInvalidSpec, err)
		}
		return &Trigger{Kind: KindWeekly, Weekday: wd, Hour: h, Minute: m}, nil

	case "monthly":
		// monthly:<day>:HH:MM
		day, timePart, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("%w: monthly format is monthly:day:HH:MM", ErrInvalidSpec)
		}
		d, err := strconv.Atoi(strings.TrimSpace(day))
		if err != nil || d < 1 || d > 31 {
			return nil, fmt.Errorf("%w: day of month must be 1..31, got %q", ErrInvalidSpec, strings.TrimSpace(day))
		}
		h, m, err := parseHHMM(timePart)
		if err != nil {
			return nil, fmt.Errorf("%w: monthly:day:HH:MM: %v", ErrInvalidSpec, err)
		}
		return &Trigger{Kind: KindMonthly, Day: d, Hour: h, Minute: m}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, kind)
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hh))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := parseMinute(strings.TrimSpace(mm))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func parseMinute(s string) (int, error) {
	m, err := strconv.Atoi(s)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute must be 0..59, got %q", s)
	}
	return m, nil
}
