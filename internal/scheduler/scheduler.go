// Package scheduler is the single external timer: it drives dispatch ticks
// and the periodic warmup, DNS, inbox and holiday jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"MailRamp/internal/dispatch"
	"MailRamp/internal/holidays"
	"MailRamp/internal/jobs"
	"MailRamp/internal/models"
	"MailRamp/internal/warmup"
)

type Dispatcher interface {
	Tick(ctx context.Context, now time.Time) (dispatch.TickReport, error)
}

type Warmup interface {
	RollDay(ctx context.Context, now time.Time) (warmup.DayReport, error)
	SendDue(ctx context.Context, now time.Time) (bool, error)
	ReclaimStale(ctx context.Context, now time.Time) (int64, error)
	CheckPendingDNS(ctx context.Context) (int, error)
	ProcessInbox(ctx context.Context) (int, error)
}

type Prefetcher interface {
	Prefetch(ctx context.Context, countries []string, now time.Time, progress holidays.Progress) error
}

type JobRunner interface {
	Run(ctx context.Context, kind string, total int, fn jobs.Func) (*models.Job, error)
}

// Specs are standard five-field cron expressions. An empty spec disables
// the job.
type Specs struct {
	Tick       string
	RollDay    string
	WarmupSend string
	DNSCheck   string
	Inbox      string
	Prefetch   string
}

// DefaultSpecs leaves the inbox job off; it needs an inbox client.
func DefaultSpecs() Specs {
	return Specs{
		Tick:       "* * * * *",
		RollDay:    "5 0 * * *",
		WarmupSend: "*/5 * * * *",
		DNSCheck:   "*/30 * * * *",
		Prefetch:   "0 3 * * 1",
	}
}

type Deps struct {
	Dispatcher Dispatcher
	Warmup     Warmup
	Holidays   Prefetcher
	Jobs       JobRunner
}

type Options struct {
	Location  *time.Location
	Countries []string

	// WarmupBurst bounds the warmup emails sent in one run.
	WarmupBurst int
	// Timeout bounds a single run of any job.
	Timeout time.Duration
}

type Scheduler struct {
	deps  Deps
	specs Specs
	opts  Options
	log   *zap.Logger

	cron *cron.Cron
	now  func() time.Time

	mu  sync.Mutex
	ctx context.Context
}

func New(deps Deps, specs Specs, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WarmupBurst <= 0 {
		opts.WarmupBurst = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if len(opts.Countries) == 0 {
		opts.Countries = holidays.DefaultCountries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		deps:  deps,
		specs: specs,
		opts:  opts,
		log:   logger,
		cron:  cron.New(cron.WithLocation(opts.Location)),
		now:   time.Now,
		ctx:   context.Background(),
	}
}

// Setup registers every enabled job.
func (s *Scheduler) Setup() error {
	entries := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"dispatch tick", s.specs.Tick, s.RunTick},
		{"roll day", s.specs.RollDay, s.RunRollDay},
		{"warmup send", s.specs.WarmupSend, s.RunWarmupSend},
		{"dns check", s.specs.DNSCheck, s.RunDNSCheck},
		{"inbox", s.specs.Inbox, s.RunInbox},
		{"holiday prefetch", s.specs.Prefetch, s.RunPrefetch},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, s.wrap(e.name, e.run)); err != nil {
			return fmt.Errorf("schedule %s %q: %w", e.name, e.spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, s.opts.Timeout)
		defer cancel()

		if err := run(ctx); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// Start rolls the day once, for a process that slept through midnight, and
// then starts the timer. Jobs are cancelled with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.specs.RollDay != "" {
		s.wrap("roll day", s.RunRollDay)()
	}

	s.log.Info("scheduler started")
	s.cron.Start()
}

// Stop halts the timer and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) RunTick(ctx context.Context) error {
	_, err := s.deps.Dispatcher.Tick(ctx, s.now())
	return err
}

func (s *Scheduler) RunRollDay(ctx context.Context) error {
	_, err := s.deps.Warmup.RollDay(ctx, s.now())
	return err
}

// RunWarmupSend reclaims stale claims, then sends due warmup emails until
// none is left or the burst is used up. A failed send does not stop the run.
func (s *Scheduler) RunWarmupSend(ctx context.Context) error {
	if _, err := s.deps.Warmup.ReclaimStale(ctx, s.now()); err != nil {
		return err
	}

	var lastErr error
	sent := 0

	for i := 0; i < s.opts.WarmupBurst; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := s.deps.Warmup.SendDue(ctx, s.now())
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			break
		}
		sent++
	}

	if sent > 0 {
		s.log.Info("warmup emails sent", zap.Int("sent", sent))
	}
	return lastErr
}

func (s *Scheduler) RunDNSCheck(ctx context.Context) error {
	_, err := s.deps.Warmup.CheckPendingDNS(ctx)
	return err
}

func (s *Scheduler) RunInbox(ctx context.Context) error {
	_, err := s.deps.Warmup.ProcessInbox(ctx)
	return err
}

// RunPrefetch warms the holiday cache as a tracked job.
func (s *Scheduler) RunPrefetch(ctx context.Context) error {
	if s.deps.Holidays == nil {
		return nil
	}
	now := s.now()
	total := len(s.opts.Countries) * 2

	fn := func(ctx context.Context, report jobs.Report) error {
		return s.deps.Holidays.Prefetch(ctx, s.opts.Countries, now, func(_ context.Context, done, _ int) {
			report(done)
		})
	}

	if s.deps.Jobs == nil {
		return fn(ctx, func(int) {})
	}
	_, err := s.deps.Jobs.Run(ctx, "holiday_prefetch", total, fn)
	return err
}
