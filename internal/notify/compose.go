// Package notify turns classified catalog changes into chunked digest
// messages and delivers them over a transport sender.
package notify

import (
	"errors"

	"shopwatch/internal/catalog"
)

// MaxBlocksPerMessage caps how many digest blocks one message may carry.
const MaxBlocksPerMessage = 50

// ErrEmptyDigest signals that a non-empty change set rendered into zero
// blocks. That is a renderer defect, never an environmental failure, so the
// run must fail loudly instead of skipping delivery.
var ErrEmptyDigest = errors.New("notify: change set rendered into empty digest")

// Block is one rendered unit of a digest message. Blocks within a chunk are
// joined with a blank line when the chunk is flattened into message text.
type Block string

// Renderer turns one classified change into its digest blocks and the
// run-level summary into the escalation alert text. Implementations are
// platform-specific; the Telegram one lives in internal/render.
type Renderer interface {
	Change(ch catalog.Change, escalate bool) []Block
	Escalation(sum Summary) string
}

// Summary carries the per-kind item titles of one run, in change order.
type Summary struct {
	Added   []string `json:"added,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func (s Summary) Total() int { return len(s.Added) + len(s.Updated) + len(s.Removed) }

// Digest is the fully composed output of one run: ordered message chunks,
// the run summary, and the escalation decision with its pre-rendered alert.
type Digest struct {
	Chunks   [][]Block `json:"chunks"`
	Summary  Summary   `json:"summary"`
	Escalate bool      `json:"escalate"`
	Alert    string    `json:"alert,omitempty"`
}

// Compose renders every change in order, flattens the resulting blocks into
// one sequence, and splits it into chunks of at most maxBlocks. flags must be
// index-aligned with changes (catalog.Classify output). An empty change set
// composes an empty digest; a non-empty one that renders no blocks is
// ErrEmptyDigest.
func Compose(changes []catalog.Change, flags []bool, r Renderer, maxBlocks int) (*Digest, error) {
	if maxBlocks <= 0 {
		maxBlocks = MaxBlocksPerMessage
	}
	d := &Digest{}
	if len(changes) == 0 {
		return d, nil
	}

	flat := make([]Block, 0, len(changes))
	for i, ch := range changes {
		esc := i < len(flags) && flags[i]
		flat = append(flat, r.Change(ch, esc)...)

		title := ch.Item.Title
		switch ch.Kind {
		case catalog.ChangeNew:
			d.Summary.Added = append(d.Summary.Added, title)
		case catalog.ChangeUpdated:
			d.Summary.Updated = append(d.Summary.Updated, title)
		case catalog.ChangeDeleted:
			d.Summary.Removed = append(d.Summary.Removed, title)
		}
	}
	if len(flat) == 0 {
		return nil, ErrEmptyDigest
	}

	d.Chunks = chunkBlocks(flat, maxBlocks)
	d.Escalate = catalog.EscalateAny(flags)
	if d.Escalate {
		d.Alert = r.Escalation(d.Summary)
	}
	return d, nil
}

// ChunkText flattens one chunk into the text of a single message.
func ChunkText(chunk []Block) string {
	switch len(chunk) {
	case 0:
		return ""
	case 1:
		return string(chunk[0])
	}
	n := 0
	for _, b := range chunk {
		n += len(b) + 2
	}
	buf := make([]byte, 0, n)
	for i, b := range chunk {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, b...)
	}
	return string(buf)
}

func chunkBlocks(blocks []Block, limit int) [][]Block {
	if len(blocks) == 0 {
		return nil
	}
	chunks := make([][]Block, 0, (len(blocks)+limit-1)/limit)
	for start := 0; start < len(blocks); start += limit {
		end := start + limit
		if end > len(blocks) {
			end = len(blocks)
		}
		chunks = append(chunks, blocks[start:end])
	}
	return chunks
}
