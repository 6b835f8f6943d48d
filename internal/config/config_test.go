package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, err := NewManager("").Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.Descriptor != "daily:18:00" {
		t.Errorf("descriptor: got %q", cfg.Schedule.Descriptor)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("timezone: got %q", cfg.Schedule.Timezone)
	}
	if !cfg.Schedule.IsEnabled() {
		t.Error("schedule should default to enabled")
	}
	if got := cfg.Retry.EffectiveMaxRetries(); got != 3 {
		t.Errorf("max retries: got %d, want 3", got)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr: got %q", cfg.HTTP.Addr)
	}
}

func TestParseJSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"schedule": {"descriptor": "cron:*/5 * * * *", "enabled": false},
		"workflow": {"workflow_id": "wf-1", "parameters": {"q": "news"}},
		"api": {"token": "tok", "base_url": "https://api.example.com"},
		"retry": {"max_retries": 0, "delay": "5s"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.Descriptor != "cron:*/5 * * * *" {
		t.Errorf("descriptor: got %q", cfg.Schedule.Descriptor)
	}
	if cfg.Schedule.IsEnabled() {
		t.Error("explicit enabled=false should disable the schedule")
	}
	if got := cfg.Retry.EffectiveMaxRetries(); got != 0 {
		t.Errorf("explicit max_retries=0: got %d", got)
	}
	if string(cfg.Workflow.Parameters) != `{"q": "news"}` {
		t.Errorf("parameters: got %s", cfg.Workflow.Parameters)
	}
	// Omitted file fields keep defaults.
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("timezone default lost: got %q", cfg.Schedule.Timezone)
	}
}

func TestParseYAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", strings.Join([]string{
		"schedule:",
		"  descriptor: weekly:monday:09:30",
		"  timezone: Asia/Shanghai",
		"workflow:",
		"  workflow_id: wf-2",
		"api:",
		"  token: tok",
	}, "\n"))

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.Descriptor != "weekly:monday:09:30" {
		t.Errorf("descriptor: got %q", cfg.Schedule.Descriptor)
	}
	if cfg.Schedule.Timezone != "Asia/Shanghai" {
		t.Errorf("timezone: got %q", cfg.Schedule.Timezone)
	}
	if cfg.Workflow.WorkflowID != "wf-2" {
		t.Errorf("workflow id: got %q", cfg.Workflow.WorkflowID)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"schedule": {"descriptr": "daily:10:00"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeFile(t, "config.json", `{"schedule": {}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULE_CONFIG", "interval:120")
	t.Setenv("SCHEDULE_TIMEZONE", "America/New_York")
	t.Setenv("SCHEDULE_ENABLED", "false")
	t.Setenv("RUN_ON_START", "true")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_DELAY", "30")
	t.Setenv("TIMEOUT_SECONDS", "600")
	t.Setenv("WORKFLOW_ID", "wf-env")
	t.Setenv("WORKFLOW_PARAMETERS", `{"a":1}`)
	t.Setenv("API_TOKEN", "tok-env")
	t.Setenv("API_BASE", "https://env.example.com")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := NewManager("").Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Schedule.Descriptor != "interval:120" {
		t.Errorf("descriptor: got %q", cfg.Schedule.Descriptor)
	}
	if cfg.Schedule.IsEnabled() {
		t.Error("SCHEDULE_ENABLED=false not applied")
	}
	if !cfg.Schedule.RunOnStart {
		t.Error("RUN_ON_START=true not applied")
	}
	if got := cfg.Retry.EffectiveMaxRetries(); got != 5 {
		t.Errorf("max retries: got %d", got)
	}
	if cfg.Retry.Delay != "30s" {
		t.Errorf("delay: got %q", cfg.Retry.Delay)
	}
	if cfg.Retry.Timeout != "10m0s" {
		t.Errorf("timeout: got %q", cfg.Retry.Timeout)
	}
	if cfg.API.Token != "tok-env" {
		t.Errorf("token: got %q", cfg.API.Token)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http addr: got %q", cfg.HTTP.Addr)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("log level: got %q", cfg.Logging.Level)
	}
}

func TestApplyEnvInvalidValues(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{"SCHEDULE_ENABLED", "maybe"},
		{"MAX_RETRIES", "three"},
		{"RETRY_DELAY", "1m"},
		{"WORKFLOW_PARAMETERS", "{broken"},
		{"PORT", "http"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := NewManager("").Parse(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadRunsValidator(t *testing.T) {
	wantErr := errors.New("bad config")
	m := NewManager("")
	m.SetValidator(func(cfg *Config) error { return wantErr })
	if _, err := m.Load(); !errors.Is(err, wantErr) {
		t.Fatalf("Load err = %v, want %v", err, wantErr)
	}
	if m.Get() != nil {
		t.Error("rejected config must not be committed")
	}

	m.SetValidator(nil)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Error("Get should return the committed config")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"30s", "30s", false},
		{"", "0s", false},
		{"10 parsecs", "", true},
		{"-5s", "", true},
	}
	for _, tc := range cases {
		d, err := ParseDurationField("retry.delay", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.raw, err)
			continue
		}
		if d.String() != tc.want {
			t.Errorf("%q: got %s, want %s", tc.raw, d, tc.want)
		}
	}
}
