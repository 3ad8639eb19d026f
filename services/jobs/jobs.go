// Package jobsvc schedules the background jobs of the api.
package jobsvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/escola/core"
)

const overdueSweepJob = "overdue_sweep"

// TodayFunc returns the date the overdue sweep runs as of.
var TodayFunc = func() core.Date { return core.DateOf(time.Now().UTC()) } // mockable

type (
	OverdueMarker interface {
		MarkOverdue(ctx context.Context, asOf core.Date) (int, error)
	}

	Recorder interface {
		OverdueMarked(n int)
		JobRun(job string, err error)
	}

	Scheduler struct {
		cron     *cron.Cron
		boletos  OverdueMarker
		logger   core.Logger
		recorder Recorder
		timeout  time.Duration
	}
)

// NewScheduler registers the enabled jobs. Nothing runs before Start.
func NewScheduler(conf *core.Config, boletos OverdueMarker, logger core.Logger, recorder Recorder) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		boletos:  boletos,
		logger:   logger,
		recorder: recorder,
		timeout:  time.Minute,
	}
	if conf.Jobs.OverdueSweep {
		if _, err := s.cron.AddFunc(conf.Jobs.OverdueSchedule, s.runOverdueSweep); err != nil {
			return nil, errors.Wrapf(err, "scheduling %s (%q)", overdueSweepJob, conf.Jobs.OverdueSchedule)
		}
	}
	return s, nil
}

func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for the running jobs, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOverdue moves the pending boletos due before today to overdue.
func (s *Scheduler) SweepOverdue(ctx context.Context) (int, error) {
	n, err := s.boletos.MarkOverdue(ctx, TodayFunc())
	if s.recorder != nil {
		s.recorder.JobRun(overdueSweepJob, err)
		if err == nil {
			s.recorder.OverdueMarked(n)
		}
	}
	return n, err
}

func (s *Scheduler) runOverdueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", err)
		return
	}
	s.logger.Info("overdue sweep done", map[string]interface{}{"marked": n})
}
