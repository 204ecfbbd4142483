package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultDigestSchedule fires the digest at 09:00 every day.
const DefaultDigestSchedule = "0 9 * * *"

// JobFunc is a calendar job such as the daily digest.
type JobFunc func(ctx context.Context, at time.Time) error

// Daily runs a job on a cron schedule in a fixed time zone.
type Daily struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	loc      *time.Location
	logger   zerolog.Logger
}

// NewDaily parses spec (standard five-field cron) for the named time zone.
// An empty zone means UTC.
func NewDaily(spec, timezone string, logger zerolog.Logger) (*Daily, error) {
	if spec == "" {
		spec = DefaultDigestSchedule
	}
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	return &Daily{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		spec:     spec,
		loc:      loc,
		logger:   logger.With().Str("component", "daily").Logger(),
	}, nil
}

// Next reports the first fire time after t.
func (d *Daily) Next(t time.Time) time.Time {
	return d.schedule.Next(t.In(d.loc))
}

// Run schedules job and blocks until ctx is cancelled, then waits for a
// running job to finish.
func (d *Daily) Run(ctx context.Context, job JobFunc) error {
	d.cron.Schedule(d.schedule, cron.FuncJob(func() {
		at := time.Now().In(d.loc)
		if err := job(ctx, at); err != nil {
			d.logger.Error().Err(err).Msg("daily job failed")
		}
	}))

	d.cron.Start()
	d.logger.Info().Str("schedule", d.spec).Str("tz", d.loc.String()).Time("next", d.Next(time.Now())).Msg("daily job scheduled")

	<-ctx.Done()
	<-d.cron.Stop().Done()
	return nil
}
