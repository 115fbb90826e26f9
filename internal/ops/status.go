package ops

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"shopwatch/internal/eventbus"
	rtsup "shopwatch/internal/runtime/supervisor"
	"shopwatch/internal/storage"
	logx "shopwatch/pkg/logx"
)

const eventRingSize = 32

// StatusSource aggregates what /status shows: uptime, the next scheduled
// run, recent run records and supervisor goroutine stats. Run events arrive
// over the event bus so the endpoint works even with storage disabled.
type StatusSource struct {
	version   string
	startedAt time.Time

	nextRun  func() time.Time
	supSnap  func() rtsup.Snapshot
	runs     storage.Store // may be nil
	log      logx.Logger
	unsubOne sync.Once
	unsub    func()

	mu     sync.Mutex
	recent []eventbus.RunEvent // newest last, bounded ring
}

type StatusDeps struct {
	Version string
	NextRun func() time.Time
	SupSnap func() rtsup.Snapshot
	Runs    storage.Store
	Bus     eventbus.Bus
}

func NewStatusSource(d StatusDeps, log logx.Logger) *StatusSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &StatusSource{
		version:   d.Version,
		startedAt: time.Now(),
		nextRun:   d.NextRun,
		supSnap:   d.SupSnap,
		runs:      d.Runs,
		log:       log,
	}
	if d.Bus != nil {
		ch, unsub := d.Bus.Subscribe(eventRingSize)
		s.unsub = unsub
		go s.consume(ch)
	}
	return s
}

// Close detaches the bus subscription; the consume goroutine exits when the
// channel drains.
func (s *StatusSource) Close() {
	if s.unsub != nil {
		s.unsubOne.Do(s.unsub)
	}
}

func (s *StatusSource) consume(ch <-chan eventbus.Event) {
	for e := range ch {
		switch e.Type {
		case eventbus.TypeRunStarted, eventbus.TypeRunFinished, eventbus.TypeRunFailed:
		default:
			continue
		}
		ev, ok := e.Data.(eventbus.RunEvent)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.recent = append(s.recent, ev)
		if len(s.recent) > eventRingSize {
			s.recent = s.recent[len(s.recent)-eventRingSize:]
		}
		s.mu.Unlock()
	}
}

type statusPayload struct {
	Version   string              `json:"version,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	Uptime    string              `json:"uptime"`
	NextRun   *time.Time          `json:"next_run,omitempty"`
	Events    []eventbus.RunEvent `json:"events,omitempty"`
	Runs      []storage.RunRecord `json:"runs,omitempty"`
	Tasks     rtsup.Snapshot      `json:"tasks"`
}

func (s *StatusSource) serveStatus(w http.ResponseWriter, r *http.Request) {
	p := statusPayload{
		Version:   s.version,
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.nextRun != nil {
		if t := s.nextRun(); !t.IsZero() {
			p.NextRun = &t
		}
	}
	if s.supSnap != nil {
		p.Tasks = s.supSnap()
	}
	s.mu.Lock()
	p.Events = append([]eventbus.RunEvent(nil), s.recent...)
	s.mu.Unlock()

	if s.runs != nil {
		recs, err := s.runs.RecentRuns(r.Context(), 10)
		if err != nil {
			s.log.Warn("status: recent runs query failed", logx.Err(err))
		} else {
			p.Runs = recs
		}
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(p)
}
