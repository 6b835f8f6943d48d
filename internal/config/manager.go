package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wfrunner/pkg/logx"
)

const watchDebounce = 300 * time.Millisecond

// Default returns the built-in configuration, before file and env overlays.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{Descriptor: "daily:18:00", Timezone: "UTC", Poll: "15s"},
		API:      APIConfig{BaseURL: "https://api.coze.cn"},
		Retry:    RetryConfig{Delay: "60s", Timeout: "30m"},
		Logging:  LoggingConfig{Level: "INFO", Console: true},
		HTTP:     HTTPConfig{Addr: ":8080", RatePerSec: 20},
	}
}

// EffectiveMaxRetries resolves the omitted/default case.
func (c RetryConfig) EffectiveMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// Manager loads the configuration and optionally watches the file for
// changes. The config file is optional: with an empty path, defaults plus
// environment variables are the whole configuration and Watch is a no-op.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log       logx.Logger
	validator func(cfg *Config) error

	// lastHash tracks the last committed config content, so editor-induced
	// duplicate write events don't republish an unchanged config.
	lastHash uint64

	updates chan *Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path, updates: make(chan *Config, 1)}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs a validation hook run before committing/publishing.
func (m *Manager) SetValidator(fn func(cfg *Config) error) { m.validator = fn }

// Parse reads defaults, the file (when configured) and the environment.
func (m *Manager) Parse() (*Config, error) {
	cfg := Default()

	if m.path != "" {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		jb, _, err := coerceToJSONBytes(m.path, b)
		if err != nil {
			return nil, err
		}

		dec := json.NewDecoder(bytes.NewReader(jb))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", m.path, err)
		}
		// Reject trailing tokens (e.g. concatenated JSON).
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, errors.New("invalid config: trailing data")
			}
			return nil, err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses and commits the configuration.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if m.validator != nil {
		if err := m.validator(cfg); err != nil {
			return nil, err
		}
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Updates delivers committed configs from Watch. Buffered; an unread update
// is replaced by the next one.
func (m *Manager) Updates() <-chan *Config { return m.updates }

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Watch blocks, reloading and publishing the config when the file changes.
// Intended to run in its own goroutine; returns when ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	var pending <-chan time.Time
	target := filepath.Clean(m.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watcher error", logx.Err(err))
		case <-pending:
			pending = nil
			m.reload()
		}
	}
}

func (m *Manager) reload() {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed, keeping previous config", logx.Err(err))
		return
	}
	if m.validator != nil {
		if err := m.validator(cfg); err != nil {
			m.log.Warn("config reload rejected by validation", logx.Err(err))
			return
		}
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	same := h == m.lastHash && h != 0
	m.mu.RUnlock()
	if same {
		return
	}

	m.commit(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path))

	// Replace any unread update.
	select {
	case m.updates <- cfg:
	default:
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- cfg:
		default:
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
