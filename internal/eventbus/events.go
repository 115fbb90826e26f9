package eventbus

import "time"

// Event types published by shopwatch components.
const (
	TypeRunStarted     = "run.started"
	TypeRunFinished    = "run.finished"
	TypeRunFailed      = "run.failed"
	TypeNotifySent     = "notify.sent"
	TypeConfigReloaded = "config.reloaded"
)

// RunEvent is the payload of run.{started,finished,failed}.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	State     string        `json:"state,omitempty"`
	Stage     string        `json:"stage,omitempty"`
	Items     int           `json:"items,omitempty"`
	Added     int           `json:"added,omitempty"`
	Updated   int           `json:"updated,omitempty"`
	Removed   int           `json:"removed,omitempty"`
	Messages  int           `json:"messages,omitempty"`
	Escalated bool          `json:"escalated,omitempty"`
	Took      time.Duration `json:"took,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NotifyEvent is the payload of notify.sent.
type NotifyEvent struct {
	RunID  string `json:"run_id"`
	ChatID int64  `json:"chat_id"`
	Chunk  int    `json:"chunk"`
	Total  int    `json:"total"`
}
