package exchange

import (
	"sort"
	"time"
)

// Eviction reports one worker demoted by a sweep and the instance ids
// invalidated with it.
type Eviction struct {
	WorkerID    string
	BaseURL     string
	InstanceIDs []string
}

// Sweep demotes every ONLINE worker whose last heartbeat is older than
// timeout: the worker drops to OFFLINE, leaves the tool index, and all its
// patches are removed. Demotion is unconditional; a worker that heartbeats
// late gets ErrUnknownWorker and must register again. The OFFLINE record
// itself stays visible in snapshots until explicitly removed or replaced.
//
// Returns one Eviction per demoted worker, sorted by worker id.
func (e *Exchange) Sweep(timeout time.Duration) []Eviction {
	if timeout <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-timeout)
	var evicted []Eviction
	for id, w := range e.workers {
		if w.Status != StatusOnline || !w.LastHeartbeatAt.Before(cutoff) {
			continue
		}
		w.Status = StatusOffline
		w.ActiveInstances = 0
		e.unindexLocked(id)
		evicted = append(evicted, Eviction{
			WorkerID:    id,
			BaseURL:     w.BaseURL,
			InstanceIDs: e.dropPatchesLocked(id),
		})
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].WorkerID < evicted[j].WorkerID })
	return evicted
}
