package operator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// timerChan returns the timer's channel, or nil (blocks forever) for a
// nil timer, so disabled schedules fall out of the select.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// runSchedules manages the cron-based digest and retention timers. It
// returns immediately if neither is configured.
func (o *Operator) runSchedules(ctx context.Context) {
	digestEnabled := o.digest != ""
	retentionEnabled := o.db != nil && o.retention.Schedule != "" && o.retention.MaxAgeDays > 0
	if !digestEnabled && !retentionEnabled {
		return
	}

	var digestTimer, retentionTimer *time.Timer
	if digestEnabled {
		if d := nextCronDuration(o.digest); d > 0 {
			digestTimer = time.NewTimer(d)
		} else {
			log.Printf("operator: invalid digest schedule %q", o.digest)
		}
	}
	if retentionEnabled {
		if d := nextCronDuration(o.retention.Schedule); d > 0 {
			retentionTimer = time.NewTimer(d)
		} else {
			log.Printf("operator: invalid retention schedule %q", o.retention.Schedule)
		}
	}

	defer func() {
		if digestTimer != nil {
			digestTimer.Stop()
		}
		if retentionTimer != nil {
			retentionTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerChan(digestTimer):
			o.fireDigest(ctx)
			if d := nextCronDuration(o.digest); d > 0 {
				digestTimer.Reset(d)
			}
		case <-timerChan(retentionTimer):
			o.fireRetention()
			if d := nextCronDuration(o.retention.Schedule); d > 0 {
				retentionTimer.Reset(d)
			}
		}
	}
}

// digestReport holds computed fleet metrics for a 24-hour period.
type digestReport struct {
	Calls          int64
	Failed         int64
	StationsOnline int
	StationsTotal  int
	InstancesBound int
}

// buildDigestReport counts the last 24 hours of calls and the current
// fleet state. The counts are zero when persistence is disabled.
func (o *Operator) buildDigestReport(since time.Time) digestReport {
	snap := o.exch.Snapshot()
	report := digestReport{
		StationsOnline: snap.OnlineWorkers(),
		StationsTotal:  len(snap.Workers),
		InstancesBound: len(snap.Patches),
	}
	if o.db != nil {
		o.db.Model(&models.CallRecord{}).
			Where("created_at >= ?", since).
			Count(&report.Calls)
		o.db.Model(&models.CallRecord{}).
			Where("created_at >= ? AND status = ?", since, "error").
			Count(&report.Failed)
	}
	return report
}

// fireDigest builds and sends one fleet digest. Suppressed when there is
// nothing to report.
func (o *Operator) fireDigest(ctx context.Context) {
	report := o.buildDigestReport(time.Now().Add(-24 * time.Hour))

	if report.Calls == 0 && report.StationsTotal == 0 {
		return
	}

	o.notifier.Notify(ctx, notify.Event{
		Title:    "Switchboard daily digest",
		Body:     fmt.Sprintf("%d call(s) in the last 24h, %d failed", report.Calls, report.Failed),
		Severity: "info",
		Fields: []notify.Field{
			{Name: "Stations online", Value: fmt.Sprintf("%d/%d", report.StationsOnline, report.StationsTotal), Short: true},
			{Name: "Instances bound", Value: fmt.Sprintf("%d", report.InstancesBound), Short: true},
		},
	})
}

// fireRetention purges call records and station events past the
// configured age.
func (o *Operator) fireRetention() {
	cutoff := time.Now().AddDate(0, 0, -o.retention.MaxAgeDays)

	calls := o.db.Where("created_at < ?", cutoff).Delete(&models.CallRecord{})
	if calls.Error != nil {
		log.Printf("operator: retention purge call records: %v", calls.Error)
		return
	}
	events := o.db.Where("created_at < ?", cutoff).Delete(&models.StationEvent{})
	if events.Error != nil {
		log.Printf("operator: retention purge station events: %v", events.Error)
		return
	}
	log.Printf("operator: retention purged %d call record(s), %d station event(s) older than %dd",
		calls.RowsAffected, events.RowsAffected, o.retention.MaxAgeDays)
}
