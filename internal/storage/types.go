package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures run-history storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	KeepRuns    int           // recent-window size; 0 means default
}

// RunRecord is the durable outcome of one watch run.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	State      string    `json:"state"`           // "done" or "failed"
	Stage      string    `json:"stage,omitempty"` // failing stage when failed
	Items      int       `json:"items"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Removed    int       `json:"removed"`
	Messages   int       `json:"messages"`
	Escalated  bool      `json:"escalated"`
	Error      string    `json:"error,omitempty"`
}
