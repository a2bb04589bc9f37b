package exchange

import "sort"

// Snapshot is a point-in-time copy of the routing table, served by the
// health endpoint and the dashboard. Workers includes OFFLINE records;
// Tools only ever lists ONLINE workers.
type Snapshot struct {
	Workers []Worker            `json:"workers"`
	Tools   map[string][]string `json:"tools"`
	Patches []Patch             `json:"patches"`
}

// OnlineWorkers counts the ONLINE records in the snapshot.
func (s Snapshot) OnlineWorkers() int {
	n := 0
	for _, w := range s.Workers {
		if w.Status == StatusOnline {
			n++
		}
	}
	return n
}

// Snapshot copies the full table under the lock. The copies are detached;
// mutating them does not touch the Exchange.
func (e *Exchange) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Workers: make([]Worker, 0, len(e.workers)),
		Tools:   make(map[string][]string, len(e.tools)),
		Patches: make([]Patch, 0, len(e.patches)),
	}
	for _, w := range e.workers {
		c := *w
		c.Tools = append([]string(nil), w.Tools...)
		snap.Workers = append(snap.Workers, c)
	}
	for tool, set := range e.tools {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		snap.Tools[tool] = ids
	}
	for _, p := range e.patches {
		snap.Patches = append(snap.Patches, *p)
	}
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].ID < snap.Workers[j].ID })
	sort.Slice(snap.Patches, func(i, j int) bool { return snap.Patches[i].InstanceID < snap.Patches[j].InstanceID })
	return snap
}
