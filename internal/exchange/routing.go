package exchange

import "fmt"

// PickAndBind selects the least-loaded ONLINE worker advertising the tool,
// binds the instance to it, and increments its active count, all in one
// critical section, so two concurrent creates can never both observe the
// same minimal load. Ties break toward the earliest last heartbeat. The
// returned Worker is a copy; callers use its BaseURL outside the lock.
//
// The selection is evaluated fresh on every call. Rankings are never cached
// because load changes with every create, release, and sweep.
func (e *Exchange) PickAndBind(tool, instanceID string, identity map[string]interface{}) (Worker, error) {
	if tool == "" {
		return Worker{}, fmt.Errorf("exchange: tool is required: %w", ErrValidation)
	}
	if instanceID == "" {
		return Worker{}, fmt.Errorf("exchange: instance id is required: %w", ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.patches[instanceID]; ok {
		return Worker{}, fmt.Errorf("exchange: instance %s: %w", instanceID, ErrInstanceBound)
	}

	var best *Worker
	for id := range e.tools[tool] {
		w := e.workers[id]
		if w == nil || w.Status != StatusOnline {
			continue
		}
		if best == nil || w.ActiveInstances < best.ActiveInstances ||
			(w.ActiveInstances == best.ActiveInstances && w.LastHeartbeatAt.Before(best.LastHeartbeatAt)) {
			best = w
		}
	}
	if best == nil {
		return Worker{}, fmt.Errorf("exchange: no worker for tool %q: %w", tool, ErrNoWorkerAvailable)
	}

	e.patches[instanceID] = &Patch{
		InstanceID: instanceID,
		WorkerID:   best.ID,
		Tool:       tool,
		Identity:   identity,
		CreatedAt:  e.now(),
	}
	best.ActiveInstances++
	return *best, nil
}

// Resolve returns copies of the patch for the instance and the worker it is
// bound to. Fails with ErrInstanceNotBound if no live patch exists; the
// caller must not fall back to picking a fresh worker, since losing affinity
// would corrupt any session state the tool keeps.
func (e *Exchange) Resolve(instanceID string) (Patch, Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.patches[instanceID]
	if !ok {
		return Patch{}, Worker{}, fmt.Errorf("exchange: instance %s: %w", instanceID, ErrInstanceNotBound)
	}
	w, ok := e.workers[p.WorkerID]
	if !ok || w.Status != StatusOnline {
		// Patches are dropped with their worker, so this indicates table
		// corruption rather than a routine miss.
		return Patch{}, Worker{}, fmt.Errorf("exchange: instance %s bound to missing worker %s: %w",
			instanceID, p.WorkerID, ErrInstanceNotBound)
	}
	return *p, *w, nil
}

// Unbind removes the patch and decrements the bound worker's active count.
// Used both when a caller releases an instance and when a create is rolled
// back after the forwarded call fails.
func (e *Exchange) Unbind(instanceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.patches[instanceID]
	if !ok {
		return fmt.Errorf("exchange: unbind %s: %w", instanceID, ErrInstanceNotBound)
	}
	delete(e.patches, instanceID)
	if w, ok := e.workers[p.WorkerID]; ok && w.ActiveInstances > 0 {
		w.ActiveInstances--
	}
	return nil
}
