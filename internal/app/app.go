// Package app wires the pieces together: config, logging, storage, the
// scheduling loop, the status server and the failure notifier.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"wfrunner/internal/config"
	"wfrunner/internal/eventbus"
	"wfrunner/internal/httpserv"
	"wfrunner/internal/notify"
	"wfrunner/internal/runner"
	"wfrunner/internal/storage"
	"wfrunner/pkg/logx"
)

const stopTimeout = 10 * time.Second

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store

	mu     sync.Mutex // guards svc and inputs across config reloads
	svc    *runner.Service
	inputs runnerInputs
	http   *httpserv.Server
	notif  *notify.Notifier

	cancelWatch context.CancelFunc
	wg          sync.WaitGroup
}

// NewApp loads the configuration and builds all components. cfgPath may be
// empty for env-only deployments.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		bus:    eventbus.New(),
	}

	if cfg.Storage != nil {
		st, err := openStorage(*cfg.Storage, log)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.store = st
	}

	svc, err := buildRunner(cfg, a.store, a.bus, log)
	if err != nil {
		a.closeInfra()
		return nil, err
	}
	a.svc = svc
	a.inputs = inputsOf(cfg)

	return a, nil
}

// Start brings up the HTTP surface, the notifier, the scheduling loop and
// the config watcher, then signals readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	if cfg.HTTP.IsEnabled() {
		a.http = httpserv.New(httpserv.Config{
			Addr:       cfg.HTTP.Addr,
			RatePerSec: cfg.HTTP.RatePerSec,
		}, a.snapshot, a.store, a.log.With(logx.String("comp", "http")))
		if err := a.http.Start(); err != nil {
			return err
		}
	}

	if cfg.Notify != nil && cfg.Notify.Enabled {
		n, err := notify.New(notify.Config{
			Token:      cfg.Notify.Token,
			ChatID:     cfg.Notify.ChatID,
			RatePerSec: cfg.Notify.RatePerSec,
		}, a.log.With(logx.String("comp", "notify")))
		if err != nil {
			return err
		}
		n.Start(a.bus)
		a.notif = n
	}

	if err := a.svc.Start(ctx); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(watchCtx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(watchCtx)
	}()

	a.notifySystemd(daemon.SdNotifyReady)
	a.startWatchdog(watchCtx)

	a.log.Info("started",
		logx.String("descriptor", cfg.Schedule.Descriptor),
		logx.Bool("schedule_enabled", cfg.Schedule.IsEnabled()))
	return nil
}

// Stop shuts everything down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	a.notifySystemd(daemon.SdNotifyStopping)

	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	a.wg.Wait()

	a.mu.Lock()
	svc := a.svc
	a.mu.Unlock()
	if svc != nil {
		if err := svc.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop", logx.Err(err))
		}
	}
	if a.http != nil {
		a.http.Stop(ctx)
	}
	if a.notif != nil {
		a.notif.Stop()
	}
	a.closeInfra()
	a.log.Info("stopped")
	return nil
}

// RunOnce performs a single manual invocation and returns its outcome.
// Used by the -run-once flag; the loop never starts.
func (a *App) RunOnce(ctx context.Context) error {
	return a.svc.RunOnce(ctx)
}

func (a *App) snapshot() runner.Snapshot {
	a.mu.Lock()
	svc := a.svc
	a.mu.Unlock()
	return svc.Snapshot()
}

func (a *App) closeInfra() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
		a.store = nil
	}
	a.logSvc.Close()
}

// reloadLoop applies committed config updates: logging always, and the
// scheduler is rebuilt when anything feeding it changed. Storage, HTTP and
// notifier settings require a restart.
func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-a.cfgm.Updates():
			a.applyUpdate(ctx, cfg)
		}
	}
}

func (a *App) applyUpdate(ctx context.Context, cfg *config.Config) {
	a.logSvc.Apply(mapLogging(cfg.Logging))

	a.mu.Lock()
	old := a.svc
	unchanged := a.inputs == inputsOf(cfg)
	a.mu.Unlock()

	if unchanged {
		return
	}

	next, err := buildRunner(cfg, a.store, a.bus, a.log)
	if err != nil {
		// Validation passed but construction failed; keep the old loop.
		a.log.Error("config update not applied", logx.Err(err))
		return
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := old.Stop(stopCtx); err != nil {
		a.log.Warn("previous scheduler did not stop cleanly", logx.Err(err))
	}
	if err := next.Start(ctx); err != nil {
		a.log.Error("restarted scheduler failed to start", logx.Err(err))
		return
	}

	a.mu.Lock()
	a.svc = next
	a.inputs = inputsOf(cfg)
	a.mu.Unlock()
	a.log.Info("schedule configuration applied",
		logx.String("descriptor", cfg.Schedule.Descriptor))
}

func (a *App) notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval.
func (a *App) startWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
}

func openStorage(cfg config.StorageConfig, log logx.Logger) (storage.Store, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      cfg.Driver,
		Path:        cfg.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return st, nil
}

func mapLogging(cfg config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   cfg.Level,
		Console: cfg.Console,
		File: logx.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		},
	}
}
