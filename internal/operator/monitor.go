package operator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

// runSweeps demotes stale stations on a fixed interval until ctx is
// cancelled. Demotion is unconditional: a station that misses its
// heartbeat window goes OFFLINE and every instance bound to it is
// invalidated. A slow station is never demoted here; only silence is.
func (o *Operator) runSweeps(ctx context.Context) {
	interval := time.Duration(o.cfg.SweepIntervalSec) * time.Second
	timeout := time.Duration(o.cfg.HeartbeatTimeoutSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(timeout)
		}
	}
}

func (o *Operator) sweepOnce(timeout time.Duration) {
	evictions := o.exch.Sweep(timeout)
	for _, ev := range evictions {
		o.metrics.evictions.Inc()
		log.Printf("operator: station %s offline after %s of silence, %d instance(s) invalidated",
			ev.WorkerID, timeout, len(ev.InstanceIDs))
		o.rec.Event(&models.StationEvent{
			WorkerID: ev.WorkerID,
			Event:    "offline",
			Detail:   fmt.Sprintf("%d instance(s) invalidated", len(ev.InstanceIDs)),
		})
		go o.notifier.Notify(context.Background(), notify.StationOffline(ev.WorkerID, len(ev.InstanceIDs)))
	}
	if len(evictions) > 0 {
		o.metrics.observeSnapshot(o.exch.Snapshot())
	}
}
