package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wfrunner/pkg/logx"
)

// maxTail bounds the in-memory history kept for RecentRuns. The JSONL file
// itself is append-only and unbounded; rotation is an operator concern.
const maxTail = 200

// fileStore is a dependency-free persistence backend: an append-only JSON
// Lines file plus a bounded in-memory tail reloaded at open.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
	tail []RunRecord
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if filepath.Ext(path) == "" {
		path += ".runs.jsonl"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	tail, err := loadTail(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, file: f, tail: tail}, nil
}

func loadTail(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tail []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Torn final line after a crash is expected; skip it.
			continue
		}
		tail = append(tail, r)
		if len(tail) > maxTail {
			tail = tail[len(tail)-maxTail:]
		}
	}
	return tail, sc.Err()
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("run history file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}
	s.tail = append(s.tail, r)
	if len(s.tail) > maxTail {
		s.tail = s.tail[len(s.tail)-maxTail:]
	}
	return nil
}

// RecentRuns returns up to limit records, newest first.
func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.tail) {
		limit = len(s.tail)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.tail) - 1; i >= len(s.tail)-limit; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
