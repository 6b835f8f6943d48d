package config

import "encoding/json"

// Config is the full runner configuration.
//
// All duration fields are Go duration strings (e.g. "30s", "10m"). The
// config file is optional; every operationally relevant field can also be
// supplied through environment variables (see env.go), which win over the
// file.
type Config struct {
	Schedule ScheduleConfig `json:"schedule"`
	Workflow WorkflowConfig `json:"workflow"`
	Retry    RetryConfig    `json:"retry"`
	API      APIConfig      `json:"api"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Notify   *NotifyConfig  `json:"notify,omitempty"`
}

// ScheduleConfig controls the trigger and the scheduling loop.
//
// Enabled is a pointer so an omitted field defaults to true while an
// explicit false still disables the loop.
type ScheduleConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Descriptor string `json:"descriptor"`
	Timezone   string `json:"timezone,omitempty"`
	Poll       string `json:"poll,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

func (c ScheduleConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// WorkflowConfig identifies the workflow to invoke. Parameters is an opaque
// JSON object forwarded verbatim.
type WorkflowConfig struct {
	WorkflowID string          `json:"workflow_id"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// APIConfig holds credentials for the workflow-execution API.
type APIConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url,omitempty"`
}

// RetryConfig controls the per-run retry policy.
//
// MaxRetries is a pointer to distinguish "omitted" (default 3) from an
// explicit 0 (single attempt, no retries).
type RetryConfig struct {
	MaxRetries *int   `json:"max_retries,omitempty"`
	Delay      string `json:"delay,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the status/health HTTP server.
type HTTPConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Addr       string `json:"addr,omitempty"`         // default ":8080"
	RatePerSec int    `json:"rate_per_sec,omitempty"` // request throttle, default 20
}

func (c HTTPConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./wfrunner_history" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifyConfig controls the optional Telegram failure notifier.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
