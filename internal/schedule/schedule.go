// Package schedule powers the panel on and off from cron specs.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"panelseq/internal/config"
	appLog "panelseq/internal/log"
)

// Source is how scheduled transitions are labelled in events and logs.
const Source = "schedule"

// Job names.
const (
	PowerOn  = "power_on"
	PowerOff = "power_off"
)

// jobTimeout bounds one scheduled transition, waiting for the controller
// included.
const jobTimeout = 30 * time.Second

// Target is driven by the scheduler. *control.Controller implements it.
type Target interface {
	Prepare(ctx context.Context, source string) error
	Unprepare(ctx context.Context, source string) error
}

type job struct {
	name  string
	spec  string
	sched cron.Schedule
	run   func()
}

// Scheduler runs power_on/power_off jobs in one time zone.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	target Target
	jobs   []*job
	ctx    context.Context
	cancel context.CancelFunc
}

// Entry describes one scheduled job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// cronLogger routes cron's own logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New parses the configured specs. Empty specs are skipped, so a scheduler
// with no jobs is valid and does nothing.
func New(loc *time.Location, cfg config.ScheduleConfig, t Target) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		loc:    loc,
		target: t,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	add := func(name, spec string, fn func(ctx context.Context, source string) error) error {
		if spec == "" {
			return nil
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("schedule: %s %q: %w", name, spec, err)
		}
		j := &job{name: name, spec: spec, sched: sched}
		j.run = func() { s.runJob(j.name, fn) }
		s.cron.Schedule(sched, cron.FuncJob(j.run))
		s.jobs = append(s.jobs, j)
		return nil
	}
	if err := add(PowerOn, cfg.PowerOn, t.Prepare); err != nil {
		return nil, err
	}
	if err := add(PowerOff, cfg.PowerOff, t.Unprepare); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runJob(name string, fn func(ctx context.Context, source string) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	appLog.Info("scheduled job start", "job", name)
	if err := fn(ctx, Source); err != nil {
		appLog.Error("scheduled job failed", err, "job", name)
		return
	}
	appLog.Info("scheduled job done", "job", name, "took", time.Since(start).String())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	if len(s.jobs) == 0 {
		appLog.Info("no power schedule configured")
		return
	}
	for _, e := range s.Entries(time.Now()) {
		appLog.Info("power schedule", "job", e.Name, "spec", e.Spec, "next", e.Next.Format(time.RFC3339))
	}
	s.cron.Start()
}

// Stop cancels any running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Entries lists the jobs with their next run after now, soonest first.
func (s *Scheduler) Entries(now time.Time) []Entry {
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, Entry{Name: j.name, Spec: j.spec, Next: j.sched.Next(now.In(s.loc))})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Next.Before(out[b].Next) })
	return out
}

// Run executes the named job immediately, as if its time had come.
func (s *Scheduler) Run(name string) error {
	for _, j := range s.jobs {
		if j.name == name {
			j.run()
			return nil
		}
	}
	return fmt.Errorf("schedule: no job %q", name)
}
