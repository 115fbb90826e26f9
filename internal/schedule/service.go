package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "shopwatch/pkg/logx"
)

type Config struct {
	Spec     string
	Timezone string // IANA name; empty means the host zone
}

// Service owns the single recurring trigger. The job runs on the cron
// goroutine wrapped with SkipIfStillRunning, which enforces the
// run-once-per-tick policy.
type Service struct {
	log logx.Logger
	job func()

	mu    sync.Mutex
	cfg   Config
	c     *cron.Cron
	entry cron.EntryID
}

func New(cfg Config, job func(), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, job: job, log: log}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	spec, err := ParseSchedule(s.cfg.Spec)
	if err != nil {
		return err
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)

	switch spec.Kind {
	case SpecCron:
		id, err := c.AddJob(spec.Cron, cron.FuncJob(s.job))
		if err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec.Cron, err)
		}
		s.entry = id
	case SpecInterval:
		s.entry = c.Schedule(cron.Every(spec.Every), cron.FuncJob(s.job))
	}

	c.Start()
	s.c = c
	s.log.Info("schedule started",
		logx.String("spec", spec.String()),
		logx.String("tz", loc.String()),
	)
	return nil
}

// Apply swaps in a changed schedule at runtime. The new spec is validated
// before the old trigger is torn down, so a bad reload never leaves the
// service without a schedule.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sameSpec := strings.TrimSpace(cfg.Spec) == strings.TrimSpace(s.cfg.Spec)
	sameTZ := strings.TrimSpace(cfg.Timezone) == strings.TrimSpace(s.cfg.Timezone)
	if sameSpec && sameTZ {
		s.cfg = cfg
		return nil
	}

	if _, err := ParseSchedule(cfg.Spec); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}

	s.cfg = cfg
	if s.c == nil {
		return nil
	}
	old := s.c
	s.c = nil
	old.Stop()
	if err := s.startLocked(); err != nil {
		return err
	}
	s.log.Info("schedule updated", logx.String("spec", strings.TrimSpace(cfg.Spec)))
	return nil
}

// NextRun reports when the next tick fires; zero when not started.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

// Stop halts triggering and waits for an in-flight job until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logx to the cron.Logger interface. Skip notices from the
// overlap guard land at debug, cron internals' errors at warn.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
