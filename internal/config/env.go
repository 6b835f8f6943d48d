package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto cfg. Env wins over the file,
// matching container deployments where the file is baked and the env is not.
//
// Integer second counts (RETRY_DELAY, TIMEOUT_SECONDS) are kept for
// compatibility with existing deployments; file fields use duration strings.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup("SCHEDULE_CONFIG"); ok {
		cfg.Schedule.Descriptor = v
	}
	if v, ok := lookup("SCHEDULE_TIMEZONE"); ok {
		cfg.Schedule.Timezone = v
	}
	if v, ok := lookup("SCHEDULE_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("SCHEDULE_ENABLED: invalid bool %q", v)
		}
		cfg.Schedule.Enabled = &b
	}
	if v, ok := lookup("RUN_ON_START"); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("RUN_ON_START: invalid bool %q", v)
		}
		cfg.Schedule.RunOnStart = b
	}

	if v, ok := lookup("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_RETRIES: invalid integer %q", v)
		}
		cfg.Retry.MaxRetries = &n
	}
	if v, ok := lookup("RETRY_DELAY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RETRY_DELAY: invalid seconds %q", v)
		}
		cfg.Retry.Delay = (time.Duration(n) * time.Second).String()
	}
	if v, ok := lookup("TIMEOUT_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIMEOUT_SECONDS: invalid seconds %q", v)
		}
		cfg.Retry.Timeout = (time.Duration(n) * time.Second).String()
	}

	if v, ok := lookup("WORKFLOW_ID"); ok {
		cfg.Workflow.WorkflowID = v
	}
	if v, ok := lookup("WORKFLOW_PARAMETERS"); ok {
		if !json.Valid([]byte(v)) {
			return fmt.Errorf("WORKFLOW_PARAMETERS: not valid JSON")
		}
		cfg.Workflow.Parameters = json.RawMessage(v)
	}
	if v, ok := lookup("API_TOKEN"); ok {
		cfg.API.Token = v
	}
	if v, ok := lookup("API_BASE"); ok {
		cfg.API.BaseURL = v
	}

	if v, ok := lookup("PORT"); ok {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: invalid port %q", v)
		}
		cfg.HTTP.Addr = ":" + v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
