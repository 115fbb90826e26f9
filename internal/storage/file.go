package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "shopwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend: an append-only JSON
// Lines journal plus an in-memory window of the most recent runs for the
// status endpoint. The journal is replayed on open to rebuild the window.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	file   *os.File
	recent []RunRecord // oldest first, capped at keep
	keep   int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	recent, err := replayRuns(path, cfg.KeepRuns)
	if err != nil {
		log.Debug("run journal replay failed", logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f, recent: recent, keep: cfg.KeepRuns}, nil
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

func (s *fileStore) AppendRun(ctx context.Context, rec RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("run journal closed")
	}
	if err := json.NewEncoder(s.file).Encode(rec); err != nil {
		return err
	}
	s.recent = append(s.recent, rec)
	if len(s.recent) > s.keep {
		s.recent = s.recent[len(s.recent)-s.keep:]
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

// replayRuns reads the journal tail back into memory. Malformed lines are
// skipped so one bad write cannot brick the store.
func replayRuns(path string, keep int) ([]RunRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var recent []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec RunRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.RunID == "" {
			continue
		}
		recent = append(recent, rec)
		if len(recent) > keep {
			recent = recent[len(recent)-keep:]
		}
	}
	return recent, sc.Err()
}
