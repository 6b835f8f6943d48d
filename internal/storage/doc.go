// Package storage persists run history for the /history status surface.
//
// History is an audit feed only: the scheduler never consults it, so a wiped
// database changes nothing about when the next run fires.
//
// Two drivers exist:
//   - "file": dependency-free append-only JSON Lines
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// An empty or "none" driver disables storage entirely.
package storage
