// Package errtrack pushes run failures to an external error tracker endpoint.
//
// Reporting is fire-and-forget: events are queued on a bounded channel and
// POSTed in JSON batches by a background goroutine. A full buffer drops the
// event instead of blocking a run, and tracker outages are logged, never
// propagated.
package errtrack

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	logx "shopwatch/pkg/logx"
)

const (
	bufferSize    = 1024
	batchSize     = 64
	flushInterval = time.Second
)

// Event is one reported failure.
type Event struct {
	At    time.Time `json:"at"`
	RunID string    `json:"run_id,omitempty"`
	Stage string    `json:"stage,omitempty"`
	Error string    `json:"error"`
	Host  string    `json:"host,omitempty"`
}

// Reporter batches events to the tracker endpoint. All methods are safe on a
// nil receiver, so callers never need to branch on whether tracking is
// configured.
type Reporter struct {
	url    string
	client *http.Client
	log    logx.Logger
	host   string

	ch   chan Event
	done chan struct{}
	once sync.Once
}

// New starts a reporter for endpoint, or returns nil when endpoint is empty.
// A nil client gets a 5s-timeout default.
func New(endpoint string, client *http.Client, log logx.Logger) *Reporter {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	host, _ := os.Hostname()
	r := &Reporter{
		url:    endpoint,
		client: client,
		log:    log,
		host:   host,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go r.flushLoop()
	return r
}

// Record queues an event for async push. Non-blocking; drops when the buffer
// is full.
func (r *Reporter) Record(ev Event) {
	if r == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Host == "" {
		ev.Host = r.host
	}
	select {
	case r.ch <- ev:
	default:
	}
}

// ReportError records a run-stage failure. No-op on nil errors.
func (r *Reporter) ReportError(runID, stage string, err error) {
	if r == nil || err == nil {
		return
	}
	r.Record(Event{RunID: runID, Stage: stage, Error: err.Error()})
}

// Close drains the buffer and stops the flush goroutine.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		close(r.ch)
		<-r.done
	})
	return nil
}

func (r *Reporter) flushLoop() {
	defer close(r.done)

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				r.flushBatch(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				r.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Reporter) flushBatch(batch []Event) {
	if len(batch) == 0 {
		return
	}
	body, err := json.Marshal(batch)
	if err != nil {
		r.log.Warn("errtrack: marshal batch", logx.Err(err))
		return
	}
	resp, err := r.client.Post(r.url, "application/json", bytes.NewReader(body))
	if err != nil {
		r.log.Warn("errtrack: post batch", logx.Err(err), logx.Int("events", len(batch)))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		r.log.Warn("errtrack: batch rejected",
			logx.Int("status", resp.StatusCode),
			logx.Int("events", len(batch)),
		)
	}
}
