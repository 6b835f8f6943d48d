// Package runner drives the scheduling loop: a single goroutine that polls
// the trigger, fires the retry-wrapped workflow invocation when due, and
// owns the scheduler state snapshot read by the HTTP status surface.
//
// # States
//
// The loop moves through three states: idle (not started), waiting (polling
// for the next due instant), and firing (an invocation, possibly retrying,
// is in flight). At most one invocation runs at a time: a poll tick that
// lands while the previous run is still executing is skipped, and the next
// due time is recomputed only after the run completes.
//
// # Cancellation
//
// Shutdown is cooperative. Context cancellation is observed between poll
// ticks and between retry attempts; an in-flight invocation finishes on its
// own (or hits its per-attempt timeout) rather than being preempted.
package runner
