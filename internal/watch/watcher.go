package watch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shopwatch/internal/catalog"
	"shopwatch/internal/errtrack"
	"shopwatch/internal/eventbus"
	"shopwatch/internal/notify"
	"shopwatch/internal/retry"
	"shopwatch/internal/storage"
	logx "shopwatch/pkg/logx"
)

// State is the phase a run is in. Every transition is logged with the run id;
// a failed run records the state it failed in.
type State string

const (
	StateBootstrap  State = "bootstrap"
	StateFetching   State = "fetching"
	StateDiffing    State = "diffing"
	StateComposing  State = "composing"
	StateDelivering State = "delivering"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Fetcher obtains the current catalog snapshot.
type Fetcher interface {
	FetchCatalog(ctx context.Context) (catalog.Snapshot, error)
}

// Relocator rewrites item image URLs in place with re-hosted ones.
type Relocator interface {
	RelocateSnapshot(ctx context.Context, snap catalog.Snapshot) (int, error)
}

// Baseline is the durable comparison point (implemented by baseline.Store).
type Baseline interface {
	Load() (catalog.Snapshot, bool, error)
	Save(snap catalog.Snapshot) error
}

// Deliverer pushes a composed digest to the messaging channel.
type Deliverer interface {
	Deliver(ctx context.Context, dg *notify.Digest) error
}

type Config struct {
	// AuditPath enables the pre-delivery digest audit log when non-empty.
	AuditPath string

	// Retry is the per-call-site budget around fetch and relocation.
	// Delivery retries are owned by the Deliverer with the same policy.
	Retry retry.Policy

	// MaxBlocksPerMessage caps digest blocks per message (default 50).
	MaxBlocksPerMessage int
}

// Watcher runs the fetch-diff-notify-persist pipeline. One run is a linear
// sequence of suspend points; overlapping triggers are skipped via an atomic
// in-flight guard (the cron layer adds its own skip-if-still-running wrapper).
type Watcher struct {
	cfg      Config
	fetch    Fetcher
	reloc    Relocator // nil disables relocation
	base     Baseline
	renderer notify.Renderer
	deliver  Deliverer

	runs  storage.Store      // optional run history
	bus   eventbus.Bus       // optional lifecycle events
	track *errtrack.Reporter // nil-safe
	log   logx.Logger

	inFlight atomic.Bool
}

type Deps struct {
	Fetcher   Fetcher
	Relocator Relocator
	Baseline  Baseline
	Renderer  notify.Renderer
	Deliverer Deliverer

	Runs    storage.Store
	Bus     eventbus.Bus
	Tracker *errtrack.Reporter
}

func New(cfg Config, deps Deps, log logx.Logger) (*Watcher, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("watch: fetcher is nil")
	}
	if deps.Baseline == nil {
		return nil, errors.New("watch: baseline store is nil")
	}
	if deps.Renderer == nil {
		return nil, errors.New("watch: renderer is nil")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("watch: deliverer is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		cfg:      cfg,
		fetch:    deps.Fetcher,
		reloc:    deps.Relocator,
		base:     deps.Baseline,
		renderer: deps.Renderer,
		deliver:  deps.Deliverer,
		runs:     deps.Runs,
		bus:      deps.Bus,
		track:    deps.Tracker,
		log:      log,
	}, nil
}

// Run executes one complete watch run. A run already in flight makes Run a
// logged no-op. The returned error is the fatal run error, already logged,
// reported and recorded; callers decide whether it ends the process (-once)
// or just this tick (daemon).
func (w *Watcher) Run(ctx context.Context) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.log.Warn("run trigger skipped: previous run still in flight")
		return nil
	}
	defer w.inFlight.Store(false)

	runID := uuid.NewString()
	start := time.Now()
	log := w.log.With(logx.String("run_id", runID))
	log.Info("run started")
	w.publish(eventbus.TypeRunStarted, eventbus.RunEvent{RunID: runID})

	rec := storage.RunRecord{RunID: runID, StartedAt: start}
	state, err := w.run(ctx, runID, log, &rec)
	rec.FinishedAt = time.Now()
	took := rec.FinishedAt.Sub(start)

	if err != nil {
		rec.State = string(StateFailed)
		rec.Stage = string(state)
		rec.Error = err.Error()
		log.Error("run failed",
			logx.String("state", string(state)),
			logx.Duration("took", took),
			logx.Err(err),
		)
		w.track.ReportError(runID, string(state), err)
		w.appendRun(ctx, rec, log)
		w.publish(eventbus.TypeRunFailed, eventbus.RunEvent{
			RunID: runID,
			State: string(StateFailed),
			Stage: string(state),
			Took:  took,
			Error: err.Error(),
		})
		return fmt.Errorf("%s: %w", state, err)
	}

	rec.State = string(StateDone)
	log.Info("run finished",
		logx.Int("items", rec.Items),
		logx.Int("added", rec.Added),
		logx.Int("updated", rec.Updated),
		logx.Int("removed", rec.Removed),
		logx.Int("messages", rec.Messages),
		logx.Bool("escalated", rec.Escalated),
		logx.Duration("took", took),
	)
	w.appendRun(ctx, rec, log)
	w.publish(eventbus.TypeRunFinished, eventbus.RunEvent{
		RunID:     runID,
		State:     string(StateDone),
		Items:     rec.Items,
		Added:     rec.Added,
		Updated:   rec.Updated,
		Removed:   rec.Removed,
		Messages:  rec.Messages,
		Escalated: rec.Escalated,
		Took:      took,
	})
	return nil
}

// run walks the state machine. It returns the state an error arose in; rec is
// filled with counts as stages complete.
func (w *Watcher) run(ctx context.Context, runID string, log logx.Logger, rec *storage.RunRecord) (State, error) {
	// Bootstrap: probe the baseline before any network work so a malformed
	// baseline fails fast.
	log.Debug("state", logx.String("state", string(StateBootstrap)))
	base, haveBaseline, err := w.base.Load()
	if err != nil {
		return StateBootstrap, err
	}

	// Fetching: scrape, then relocate assets. Both wrapped in the bounded
	// retry; no partial snapshot ever leaves this stage.
	log.Debug("state", logx.String("state", string(StateFetching)))
	var current catalog.Snapshot
	err = w.cfg.Retry.Do(ctx, log, "storefront.fetch", func(ctx context.Context) error {
		snap, err := w.fetch.FetchCatalog(ctx)
		if err != nil {
			return err
		}
		current = snap
		return nil
	})
	if err != nil {
		return StateFetching, err
	}
	rec.Items = len(current)

	if w.reloc != nil {
		var relocated int
		err = w.cfg.Retry.Do(ctx, log, "assets.relocate", func(ctx context.Context) error {
			n, err := w.reloc.RelocateSnapshot(ctx, current)
			if err != nil {
				return err
			}
			relocated = n
			return nil
		})
		if err != nil {
			return StateFetching, err
		}
		if relocated > 0 {
			log.Debug("images relocated", logx.Int("count", relocated))
		}
	}

	// First run: persist the relocated snapshot as baseline and stop. No
	// deltas are meaningful against nothing.
	if !haveBaseline {
		if err := w.base.Save(current); err != nil {
			return StatePersisting, err
		}
		log.Info("baseline bootstrapped; no notifications on first run",
			logx.Int("items", len(current)))
		return StateDone, nil
	}

	// Diffing. The whole-snapshot equality check short-circuits the common
	// no-change run before per-item work; a reordering slips past it but
	// still yields an empty diff. Both paths rewrite the baseline so its
	// content stays deterministic.
	log.Debug("state", logx.String("state", string(StateDiffing)))
	if base.Equal(current) {
		log.Info("catalog unchanged")
		if err := w.base.Save(current); err != nil {
			return StatePersisting, err
		}
		return StateDone, nil
	}
	changes := catalog.Diff(base, current)
	if len(changes) == 0 {
		log.Info("catalog reordered; no item changes")
		if err := w.base.Save(current); err != nil {
			return StatePersisting, err
		}
		return StateDone, nil
	}

	// Composing.
	log.Debug("state", logx.String("state", string(StateComposing)), logx.Int("changes", len(changes)))
	flags := catalog.Classify(changes)
	dg, err := notify.Compose(changes, flags, w.renderer, w.cfg.MaxBlocksPerMessage)
	if err != nil {
		return StateComposing, err
	}
	rec.Added = len(dg.Summary.Added)
	rec.Updated = len(dg.Summary.Updated)
	rec.Removed = len(dg.Summary.Removed)
	rec.Escalated = dg.Escalate

	if err := notify.WriteAudit(w.cfg.AuditPath, notify.AuditRecord{
		RunID:    runID,
		At:       time.Now(),
		Escalate: dg.Escalate,
		Chunks:   dg.Chunks,
		Alert:    dg.Alert,
	}); err != nil {
		// Audit is offline inspection only; a write failure must not cost
		// the run its notifications.
		log.Warn("audit write failed", logx.Err(err))
	}

	// Delivering: chunks in order, each independently retried, then the
	// escalation alert. A chunk failure aborts the rest and the run, and the
	// baseline is NOT persisted, so the next run re-diffs the remaining
	// changes against the old baseline.
	log.Debug("state", logx.String("state", string(StateDelivering)), logx.Int("chunks", len(dg.Chunks)))
	if err := w.deliver.Deliver(ctx, dg); err != nil {
		return StateDelivering, err
	}
	rec.Messages = len(dg.Chunks)
	if dg.Escalate {
		rec.Messages++
	}

	// Persisting: only after delivery succeeded.
	log.Debug("state", logx.String("state", string(StatePersisting)))
	if err := w.base.Save(current); err != nil {
		return StatePersisting, err
	}
	return StateDone, nil
}

func (w *Watcher) appendRun(ctx context.Context, rec storage.RunRecord, log logx.Logger) {
	if w.runs == nil {
		return
	}
	if err := w.runs.AppendRun(ctx, rec); err != nil {
		log.Warn("run record append failed", logx.Err(err))
	}
}

func (w *Watcher) publish(typ string, data eventbus.RunEvent) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
