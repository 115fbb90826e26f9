package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AuditRecord is one line of the audit log: the fully composed digest of a
// run, written before any delivery is attempted so operators can inspect
// what a failed run wanted to send.
type AuditRecord struct {
	RunID    string    `json:"run_id"`
	At       time.Time `json:"at"`
	Escalate bool      `json:"escalate"`
	Chunks   [][]Block `json:"chunks"`
	Alert    string    `json:"alert,omitempty"`
}

// WriteAudit appends rec as one JSON line to path. An empty path disables
// auditing and is not an error.
func WriteAudit(path string, rec AuditRecord) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("audit: create dir: %w", err)
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("audit: write %s: %w", path, err)
	}
	return nil
}
