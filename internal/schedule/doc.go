// Package schedule parses human-readable schedule descriptors and computes
// when a trigger fires next.
//
// # Descriptor formats
//
// A descriptor is a "kind:params" string. Supported kinds:
//
//   - "daily:HH:MM"          every day at HH:MM
//   - "cron:<expr>"          standard 5-field cron (min hour dom mon dow)
//   - "interval:<seconds>"   fixed interval, minimum 60 seconds
//   - "hourly:MM"            every hour at minute MM
//   - "weekly:<day>:HH:MM"   weekly, day is monday..sunday
//   - "monthly:<day>:HH:MM"  monthly, day is 1..31
//
// Parameters are range-validated at parse time; out-of-range values are
// rejected, never clamped. Cron expressions are stored verbatim and compiled
// on first evaluation.
//
// # Evaluation
//
// Trigger.Next computes the next fire instant strictly after a reference
// time, in the caller's timezone. All wall-clock arithmetic happens in that
// location, so DST transitions are handled by the time package rather than
// special-cased. Monthly triggers whose day exceeds the length of a month
// skip that month entirely (monthly:31 never fires in February).
package schedule
