package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wfrunner/internal/config"
	"wfrunner/internal/eventbus"
	"wfrunner/internal/retry"
	"wfrunner/internal/runner"
	"wfrunner/internal/schedule"
	"wfrunner/internal/storage"
	"wfrunner/internal/workflow"
	"wfrunner/pkg/logx"
)

// Validate is the config.Manager hook: it rejects configs that could not
// drive the runner, so a bad edit never takes down a running daemon.
func Validate(cfg *config.Config) error {
	if _, err := schedule.Parse(cfg.Schedule.Descriptor); err != nil {
		return err
	}
	if tz := cfg.Schedule.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if _, err := config.ParseDurationField("schedule.poll", cfg.Schedule.Poll); err != nil {
		return err
	}

	policy, err := mapRetry(cfg.Retry)
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	if err := mapWorkflow(cfg).Validate(); err != nil {
		return err
	}

	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if n := cfg.Notify; n != nil && n.Enabled {
		if n.Token == "" {
			return errors.New("notify.token is required when notify is enabled")
		}
		if n.ChatID == 0 {
			return errors.New("notify.chat_id is required when notify is enabled")
		}
	}
	return nil
}

// runnerInputs is the comparable subset of the config that feeds the
// scheduler. A reload rebuilds the loop only when one of these changed.
type runnerInputs struct {
	enabled    bool
	descriptor string
	timezone   string
	poll       string
	runOnStart bool
	maxRetries int
	delay      string
	timeout    string
	workflowID string
	parameters string
	token      string
	baseURL    string
}

func inputsOf(cfg *config.Config) runnerInputs {
	return runnerInputs{
		enabled:    cfg.Schedule.IsEnabled(),
		descriptor: cfg.Schedule.Descriptor,
		timezone:   cfg.Schedule.Timezone,
		poll:       cfg.Schedule.Poll,
		runOnStart: cfg.Schedule.RunOnStart,
		maxRetries: cfg.Retry.EffectiveMaxRetries(),
		delay:      cfg.Retry.Delay,
		timeout:    cfg.Retry.Timeout,
		workflowID: cfg.Workflow.WorkflowID,
		parameters: string(cfg.Workflow.Parameters),
		token:      cfg.API.Token,
		baseURL:    cfg.API.BaseURL,
	}
}

func buildRunner(cfg *config.Config, store storage.Store, bus eventbus.Bus, log logx.Logger) (*runner.Service, error) {
	poll, err := config.ParseDurationField("schedule.poll", cfg.Schedule.Poll)
	if err != nil {
		return nil, err
	}
	policy, err := mapRetry(cfg.Retry)
	if err != nil {
		return nil, err
	}

	client, err := workflow.New(mapWorkflow(cfg), log)
	if err != nil {
		return nil, err
	}
	invoker := runner.InvokerFunc(func(ctx context.Context) (string, error) {
		res, err := client.Run(ctx)
		if err != nil {
			return "", err
		}
		return res.Data, nil
	})

	return runner.New(runner.Config{
		Enabled:    cfg.Schedule.IsEnabled(),
		Descriptor: cfg.Schedule.Descriptor,
		Timezone:   cfg.Schedule.Timezone,
		Poll:       poll,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, policy, invoker, store, bus, log)
}

func mapRetry(cfg config.RetryConfig) (retry.Policy, error) {
	delay, err := config.ParseDurationOrDefault("retry.delay", cfg.Delay, time.Minute)
	if err != nil {
		return retry.Policy{}, err
	}
	timeout, err := config.ParseDurationField("retry.timeout", cfg.Timeout)
	if err != nil {
		return retry.Policy{}, err
	}
	return retry.Policy{
		MaxRetries: cfg.EffectiveMaxRetries(),
		Delay:      delay,
		Timeout:    timeout,
	}, nil
}

func mapWorkflow(cfg *config.Config) workflow.Config {
	return workflow.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		WorkflowID: cfg.Workflow.WorkflowID,
		Parameters: cfg.Workflow.Parameters,
	}
}
