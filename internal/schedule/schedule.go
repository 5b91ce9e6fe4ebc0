// Package schedule runs portal collections on cron schedules.
//
// Each job is wrapped so that a run still in progress suppresses the next
// tick of the same job. Different jobs may overlap.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/portal"
)

// Job is one scheduled collection
type Job struct {
	Name   string        `json:"name"`
	Spec   string        `json:"spec"`
	Portal string        `json:"portal"`
	Params portal.Params `json:"params"`
}

// DefaultJobs collects ComprasNet twice a day over the last day and once a
// week over the last seven days.
func DefaultJobs() []Job {
	return []Job{
		{Name: "comprasnet-daily", Spec: "0 9,15 * * *", Portal: portal.ComprasNetID, Params: portal.Params{Days: 1}},
		{Name: "comprasnet-weekly", Spec: "0 23 * * 1", Portal: portal.ComprasNetID, Params: portal.Params{Days: 7}},
	}
}

// Collector runs one collection
type Collector interface {
	Collect(ctx context.Context, portalID string, p portal.Params) portal.Result
}

// Scheduler owns the cron runner and its jobs
type Scheduler struct {
	cron   *cron.Cron
	cancel context.CancelFunc
	jobs   map[string]cron.Job
	specs  map[string]string
	manual sync.WaitGroup
}

// New registers jobs on a cron runner evaluated in loc. It fails on a
// duplicate name or an invalid spec.
func New(collector Collector, jobs []Job, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	l := cronLogger{}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(l)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		cancel: cancel,
		jobs:   make(map[string]cron.Job),
		specs:  make(map[string]string),
	}

	for _, j := range jobs {
		if _, dup := s.jobs[j.Name]; dup {
			cancel()
			return nil, fmt.Errorf("duplicate job name %q", j.Name)
		}
		job := cron.NewChain(cron.SkipIfStillRunning(l)).Then(&collectJob{
			job:       j,
			collector: collector,
			ctx:       ctx,
		})
		if _, err := c.AddJob(j.Spec, job); err != nil {
			cancel()
			return nil, fmt.Errorf("job %q: invalid spec %q: %w", j.Name, j.Spec, err)
		}
		s.jobs[j.Name] = cron.NewChain(cron.Recover(l)).Then(job)
		s.specs[j.Name] = j.Spec
	}
	return s, nil
}

// Start begins evaluating schedules in the background
func (s *Scheduler) Start() {
	for _, name := range s.Names() {
		logger.Info("Scheduled collection", logger.Fields{
			"job":  name,
			"spec": s.specs[name],
		})
	}
	s.cron.Start()
}

// Stop halts scheduling, cancels running collections and waits for them to
// return or ctx to expire. Runs started by Trigger or Go are waited on too.
func (s *Scheduler) Stop(ctx context.Context) error {
	scheduled := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-scheduled.Done()
		s.manual.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Names lists the registered job names in order
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger runs a job immediately, honouring the same overlap suppression as
// scheduled ticks.
func (s *Scheduler) Trigger(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.manual.Add(1)
	defer s.manual.Done()
	job.Run()
	return nil
}

// Go is Trigger in the background. Stop waits for the run to finish.
func (s *Scheduler) Go(name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		job.Run()
	}()
	return nil
}

type collectJob struct {
	job       Job
	collector Collector
	ctx       context.Context
}

func (c *collectJob) Run() {
	logger.Info("Running scheduled collection", logger.Fields{
		"job":    c.job.Name,
		"portal": c.job.Portal,
	})
	res := c.collector.Collect(c.ctx, c.job.Portal, c.job.Params)
	if !res.Success {
		logger.IncrCounter("schedule.failures")
		logger.Warn("Scheduled collection failed", logger.Fields{
			"job":     c.job.Name,
			"message": res.Message,
		})
		return
	}
	logger.IncrCounter("schedule.runs")
}

// cronLogger forwards cron's own logging to the structured logger
type cronLogger struct{}

func (cronLogger) fields(keysAndValues []any) logger.Fields {
	f := logger.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("cron: "+msg, l.fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("cron: "+msg, l.fields(keysAndValues), err)
}
