package app

import (
	"testing"

	"wfrunner/internal/config"
	"wfrunner/pkg/logx"
)

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.Workflow.WorkflowID = "wf-1"
	cfg.API.Token = "tok"
	return cfg
}

func TestValidateAcceptsWorkingConfig(t *testing.T) {
	t.Parallel()
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"bad descriptor", func(c *config.Config) { c.Schedule.Descriptor = "daily:25:00" }},
		{"bad timezone", func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"bad poll", func(c *config.Config) { c.Schedule.Poll = "fast" }},
		{"negative retries", func(c *config.Config) {
			n := -1
			c.Retry.MaxRetries = &n
		}},
		{"bad delay", func(c *config.Config) { c.Retry.Delay = "soonish" }},
		{"missing workflow id", func(c *config.Config) { c.Workflow.WorkflowID = "" }},
		{"missing token", func(c *config.Config) { c.API.Token = "" }},
		{"notify without token", func(c *config.Config) {
			c.Notify = &config.NotifyConfig{Enabled: true, ChatID: 1}
		}},
		{"notify without chat", func(c *config.Config) {
			c.Notify = &config.NotifyConfig{Enabled: true, Token: "t"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestInputsOfDetectsChanges(t *testing.T) {
	t.Parallel()

	base := inputsOf(validConfig())

	changed := validConfig()
	changed.Schedule.Descriptor = "hourly:30"
	if inputsOf(changed) == base {
		t.Error("descriptor change not detected")
	}

	same := validConfig()
	same.Logging.Level = "DEBUG"
	if inputsOf(same) != base {
		t.Error("logging-only change should not rebuild the runner")
	}
}

func TestBuildRunnerFromDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	svc, err := buildRunner(cfg, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("buildRunner: %v", err)
	}
	snap := svc.Snapshot()
	if snap.Descriptor != "daily:18:00" {
		t.Errorf("descriptor: got %q", snap.Descriptor)
	}
	if !snap.Enabled {
		t.Error("runner should be enabled by default")
	}
}
