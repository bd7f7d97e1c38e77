// Package maintenance runs the periodic sweeps that keep the in-memory error
// state bounded.
package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

type counterResetter interface {
	ResetCounters()
}

type trackerSweeper interface {
	SweepPatterns() int
	Reset()
}

type sweeper interface {
	Sweep() int
}

type historyPruner interface {
	PruneHistory() int
}

// Targets are the components the scheduler maintains. Nil fields are skipped.
type Targets struct {
	Logger     counterResetter
	Tracker    trackerSweeper
	Breaker    sweeper
	Budget     sweeper
	Limiter    sweeper
	Dispatcher historyPruner
}

// Job is one scheduled sweep.
type Job struct {
	Name string
	Spec string
	Run  func()
}

// Jobs lists the sweeps for t with their schedules.
func Jobs(t Targets) []Job {
	var jobs []Job
	if t.Logger != nil {
		jobs = append(jobs, Job{"logger-counters", "@every 1h", t.Logger.ResetCounters})
	}
	if t.Tracker != nil {
		jobs = append(jobs,
			Job{"tracker-patterns", "@every 1h", func() {
				if n := t.Tracker.SweepPatterns(); n > 0 {
					logger.WithField("evicted", n).Debug("Swept stale error patterns")
				}
			}},
			Job{"tracker-reset", "@every 24h", t.Tracker.Reset},
		)
	}
	if t.Breaker != nil {
		jobs = append(jobs, Job{"circuit-breakers", "@every 60s", func() {
			if n := t.Breaker.Sweep(); n > 0 {
				logger.WithField("evicted", n).Debug("Swept idle circuit breakers")
			}
		}})
	}
	if t.Budget != nil {
		jobs = append(jobs, Job{"recovery-budget", "@every 1m", func() { t.Budget.Sweep() }})
	}
	if t.Limiter != nil {
		jobs = append(jobs, Job{"rate-limiters", "@every 5m", func() { t.Limiter.Sweep() }})
	}
	if t.Dispatcher != nil {
		jobs = append(jobs, Job{"notification-history", "@every 1h", func() { t.Dispatcher.PruneHistory() }})
	}
	return jobs
}

type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

// New registers every job on a cron instance. A job that panics is logged
// and the schedule keeps running.
func New(t Targets) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{})))
	jobs := Jobs(t)
	for _, job := range jobs {
		if _, err := c.AddFunc(job.Spec, job.Run); err != nil {
			return nil, err
		}
	}
	return &Scheduler{cron: c, jobs: jobs}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.WithField("jobs", len(s.jobs)).Info("Maintenance scheduler started")
}

// Stop halts scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("Maintenance jobs still running at shutdown")
	}
}

// RunAll executes every job once, synchronously.
func (s *Scheduler) RunAll() {
	for _, job := range s.jobs {
		job.Run()
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) logger.Fields {
	f := logger.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
