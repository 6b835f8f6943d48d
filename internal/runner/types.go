package runner

import (
	"context"
	"time"
)

// Invoker runs the remote workflow once. The output is opaque: the runner
// only cares about pass/fail.
type Invoker interface {
	Run(ctx context.Context) (output string, err error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context) (string, error)

func (f InvokerFunc) Run(ctx context.Context) (string, error) { return f(ctx) }

// Config controls the scheduling loop.
type Config struct {
	Enabled    bool
	Descriptor string // schedule descriptor, e.g. "daily:18:00"
	Timezone   string // IANA TZ, e.g. "Asia/Shanghai"; empty means Local

	// Poll is the loop's due-check cadence. Sub-minute; defaults to 15s.
	Poll time.Duration

	// RunOnStart fires one run immediately when the loop starts.
	RunOnStart bool
}

// State is the loop's current phase.
type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateFiring  State = "firing"
)

// Snapshot is a point-in-time copy of the scheduler state for the status
// surface. Reads tolerate mid-update staleness; writers hold the mutex.
type Snapshot struct {
	Enabled    bool      `json:"enabled"`
	Descriptor string    `json:"descriptor"`
	Timezone   string    `json:"timezone"`
	State      State     `json:"state"`
	Running    bool      `json:"running"`
	LastRunAt  time.Time `json:"last_run_at"`
	NextDueAt  time.Time `json:"next_due_at"`

	Runs        uint64 `json:"runs"`
	Failures    uint64 `json:"failures"`
	LastOutcome string `json:"last_outcome,omitempty"` // "success" | "exhausted"
	LastError   string `json:"last_error,omitempty"`
}
