// Package app wires the shopwatch daemon: configuration with hot reload,
// logging, the telegram adapter, the watch pipeline, the recurring schedule,
// the ops server and the optional run-history store.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"shopwatch/internal/assets"
	"shopwatch/internal/baseline"
	"shopwatch/internal/config"
	"shopwatch/internal/errtrack"
	"shopwatch/internal/eventbus"
	"shopwatch/internal/notify"
	"shopwatch/internal/ops"
	"shopwatch/internal/render"
	"shopwatch/internal/runtime/supervisor"
	"shopwatch/internal/schedule"
	"shopwatch/internal/storage"
	"shopwatch/internal/storefront"
	"shopwatch/internal/transport/telegram"
	"shopwatch/internal/watch"
	logx "shopwatch/pkg/logx"
)

const defaultScheduleSpec = "1m"

type App struct {
	cfgPath string
	version string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	track *errtrack.Reporter

	adapter *telegram.Adapter
	sched   *schedule.Service
	opsSrv  *ops.Service
	opsSt   *ops.StatusSource

	// watcher is rebuilt on hot reload; runMu serializes runs across swaps.
	mu      sync.Mutex
	watcher *watch.Watcher
	runMu   sync.Mutex
}

func New(cfgPath, version string) (*App, error) {
	config.LoadDotenv(cfgPath)

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	logSvc, log := logx.New(mapLogx(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorage(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("run history enabled", logx.String("driver", sc.Driver))
	}

	track := errtrack.New(cfg.ErrorTracker.Endpoint, nil, log.With(logx.String("comp", "errtrack")))
	if track != nil {
		log.Info("error tracker enabled")
	}

	a := &App{
		cfgPath: cfgPath,
		version: version,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		track:   track,
		adapter: ad,
	}

	w, err := a.buildPipeline(cfg)
	if err != nil {
		return nil, err
	}
	a.watcher = w

	a.sched = schedule.New(schedule.Config{
		Spec:     specOrDefault(cfg),
		Timezone: cfg.Schedule.Timezone,
	}, a.runJob, log.With(logx.String("comp", "schedule")))

	a.opsSt = ops.NewStatusSource(ops.StatusDeps{
		Version: version,
		NextRun: a.sched.NextRun,
		SupSnap: a.supSnapshot,
		Runs:    store,
		Bus:     bus,
	}, log.With(logx.String("comp", "ops")))
	opsCfg, err := mapOps(cfg)
	if err != nil {
		return nil, err
	}
	a.opsSrv = ops.New(opsCfg, a.opsSt, log.With(logx.String("comp", "ops")))

	return a, nil
}

func specOrDefault(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Schedule.Spec); s != "" {
		return s
	}
	return defaultScheduleSpec
}

// buildPipeline constructs the run pipeline from cfg. Called at startup and
// again on hot reload; the result swaps in for the next run.
func (a *App) buildPipeline(cfg *config.Config) (*watch.Watcher, error) {
	sfCfg, err := mapStorefront(cfg)
	if err != nil {
		return nil, err
	}
	fetcher, err := storefront.New(sfCfg, a.log.With(logx.String("comp", "storefront")))
	if err != nil {
		return nil, err
	}

	var reloc watch.Relocator
	if ac, enabled, err := mapAssets(cfg); err != nil {
		return nil, err
	} else if enabled {
		cl, err := assets.New(ac, a.log.With(logx.String("comp", "assets")))
		if err != nil {
			return nil, err
		}
		reloc = cl
	}

	base, err := baseline.NewStore(cfg.Watch.BaselinePath)
	if err != nil {
		return nil, err
	}

	policy, err := mapRetry(cfg)
	if err != nil {
		return nil, err
	}
	deliverer, err := notify.NewDeliverer(a.adapter, mapDeliver(cfg, policy), a.log.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}

	return watch.New(watch.Config{
		AuditPath:           cfg.Watch.AuditPath,
		Retry:               policy,
		MaxBlocksPerMessage: cfg.Watch.MaxBlocksPerMessage,
	}, watch.Deps{
		Fetcher:   fetcher,
		Relocator: reloc,
		Baseline:  base,
		Renderer:  render.Telegram{},
		Deliverer: deliverer,
		Runs:      a.store,
		Bus:       a.bus,
		Tracker:   a.track,
	}, a.log.With(logx.String("comp", "watch")))
}

func (a *App) currentWatcher() *watch.Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watcher
}

func (a *App) supSnapshot() supervisor.Snapshot {
	if a.sup == nil {
		return supervisor.Snapshot{}
	}
	return a.sup.Snapshot()
}

// runJob is the schedule trigger. Cron's skip-if-still-running wrapper covers
// overlapping ticks; the TryLock covers overlap with the immediate startup
// run and across watcher swaps. A failed run is logged and reported inside
// the watcher; the schedule stays alive.
func (a *App) runJob() {
	if a.sup == nil {
		return
	}
	a.runWith(a.sup.Context())
}

func (a *App) runWith(ctx context.Context) error {
	if !a.runMu.TryLock() {
		a.log.Warn("run trigger skipped: previous run still in flight")
		return nil
	}
	defer a.runMu.Unlock()
	return a.currentWatcher().Run(ctx)
}

// RunOnce performs exactly one watch run without starting the daemon
// services (schedule, ops, config watch). Used by -once mode.
func (a *App) RunOnce(ctx context.Context) error {
	return a.runWith(ctx)
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := schedule.ParseSchedule(specOrDefault(cfg)); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
			}
		}
		if _, err := mapOps(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorage(cfg); err != nil {
			return err
		}
		if _, err := mapRetry(cfg); err != nil {
			return err
		}
		if _, err := mapStorefront(cfg); err != nil {
			return err
		}
		if _, _, err := mapAssets(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.opsSrv.Enabled() {
		a.opsSrv.Start(a.sup.Context())
	}

	// Immediate startup run, then the recurring trigger.
	a.sup.Go0("run.initial", func(c context.Context) {
		_ = a.runWith(c)
	})
	if err := a.sched.Start(); err != nil {
		return err
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.startWatchdog()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("shopwatch started", logx.String("version", a.version))
	return nil
}

// startWatchdog kicks the systemd watchdog at half its interval. Silently
// inactive outside systemd or when WatchdogSec is unset.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				lastApplied = newCfg
				continue
			}
			a.log.Debug("config change summary",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			lastApplied = newCfg

			a.applyReload(ctx, newCfg, sections)

			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			if a.bus != nil {
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
			}
		}
	}
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	changed := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	// Logging first so later apply steps log at the new level.
	if changed("logging") || changed("telegram") {
		a.logs.Apply(mapLogx(cfg))
	}

	if changed("schedule") {
		if err := a.sched.Apply(schedule.Config{
			Spec:     specOrDefault(cfg),
			Timezone: cfg.Schedule.Timezone,
		}); err != nil {
			a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
		}
	}

	if changed("ops") {
		if opsCfg, err := mapOps(cfg); err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			a.opsSrv.Reconfigure(ctx, opsCfg)
		}
	}

	// The run pipeline is cheap to rebuild; swap it for the next run.
	if changed("storefront") || changed("telegram") || changed("watch") || changed("assets") {
		if w, err := a.buildPipeline(cfg); err != nil {
			a.log.Warn("invalid pipeline config; keeping previous", logx.Err(err))
		} else {
			a.mu.Lock()
			a.watcher = w
			a.mu.Unlock()
			a.log.Info("watch pipeline rebuilt")
		}
	}

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed("error_tracker") {
		a.log.Warn("error_tracker config changed; restart required for changes to take effect")
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.sup != nil {
		a.sup.Cancel()
	}

	// Bounded shutdown steps so one component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("schedule", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error { a.opsSrv.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("errtrack", 2*time.Second, func(context.Context) error { return a.track.Close() })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	a.opsSt.Close()

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
