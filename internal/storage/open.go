package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"wfrunner/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one completed scheduled (or manual) run.
// Keep it compact and schema-stable.
type RunRecord struct {
	At         time.Time `json:"at"`
	Descriptor string    `json:"descriptor"`
	Manual     bool      `json:"manual,omitempty"`
	Attempts   int       `json:"attempts"`
	TookMS     int64     `json:"took_ms"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
}

// Store is the minimal persistence API used by the runner and HTTP surface.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
