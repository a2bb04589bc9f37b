// Package exchange implements the operator's routing table: registered
// stations, the tool index, and live instance patches.
package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a worker's liveness state. OFFLINE is entered only by the
// health monitor's sweep; removal is always explicit.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// HostInfo is descriptive metadata reported by a station at registration.
// Observability only; never consulted for routing.
type HostInfo struct {
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// Worker is one registered station. ActiveInstances is operator-maintained
// ground truth and the load-balancing signal; ReportedInstances is whatever
// the station last claimed in a heartbeat and is never used for routing.
type Worker struct {
	ID                string    `json:"worker_id"`
	BaseURL           string    `json:"base_url"`
	Tools             []string  `json:"supported_tools"`
	ActiveInstances   int       `json:"active_instance_count"`
	ReportedInstances int       `json:"reported_instances"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at"`
	RegisteredAt      time.Time `json:"registered_at"`
	Status            Status    `json:"status"`
	Host              HostInfo  `json:"host_info"`
}

// Patch binds one tool-call session to one worker. The identity payload is
// forwarded to the worker at creation and never reinterpreted here; it is
// excluded from snapshots because it may carry ground-truth answers.
type Patch struct {
	InstanceID string                 `json:"instance_id"`
	WorkerID   string                 `json:"worker_id"`
	Tool       string                 `json:"tool"`
	Identity   map[string]interface{} `json:"-"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Exchange is the routing table. A single mutex guards workers, the tool
// index, and patches together so no caller observes a half-updated table;
// methods copy data out and never hold the lock across I/O.
type Exchange struct {
	mu      sync.Mutex
	workers map[string]*Worker
	tools   map[string]map[string]bool // tool name -> ONLINE worker ids
	patches map[string]*Patch

	nowFunc func() time.Time // test seam
}

// New returns an empty Exchange.
func New() *Exchange {
	return &Exchange{
		workers: make(map[string]*Worker),
		tools:   make(map[string]map[string]bool),
		patches: make(map[string]*Patch),
		nowFunc: time.Now,
	}
}

func (e *Exchange) now() time.Time {
	return e.nowFunc()
}

// RegisterOpts describes a station joining the exchange.
type RegisterOpts struct {
	WorkerID string // generated when empty
	BaseURL  string
	Tools    []string
	Host     HostInfo
}

// Register inserts a worker record, or replaces it entirely if the id is
// already present: the fresh record starts ONLINE with a zero instance
// count and any patches bound to the old record are dropped. Returns the
// effective worker id.
func (e *Exchange) Register(opts RegisterOpts) (string, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return "", fmt.Errorf("exchange: base_url is required: %w", ErrValidation)
	}
	tools := normalizeTools(opts.Tools)
	if len(tools) == 0 {
		return "", fmt.Errorf("exchange: supported_tools is required: %w", ErrValidation)
	}

	id := opts.WorkerID
	if id == "" {
		id = newWorkerID()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.workers[id]; ok {
		e.dropWorkerLocked(id)
	}

	now := e.now()
	w := &Worker{
		ID:                id,
		BaseURL:           strings.TrimRight(opts.BaseURL, "/"),
		Tools:             tools,
		ReportedInstances: -1,
		LastHeartbeatAt:   now,
		RegisteredAt:      now,
		Status:            StatusOnline,
		Host:              opts.Host,
	}
	e.workers[id] = w
	for _, tool := range tools {
		if e.tools[tool] == nil {
			e.tools[tool] = make(map[string]bool)
		}
		e.tools[tool][id] = true
	}
	return id, nil
}

// Heartbeat refreshes the worker's liveness timestamp. A reported instance
// count >= 0 is stored for observability; pass -1 to leave it unchanged.
// A heartbeat from an unknown or OFFLINE worker fails with ErrUnknownWorker:
// once demoted, a station must register again.
func (e *Exchange) Heartbeat(workerID string, reported int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workers[workerID]
	if !ok || w.Status != StatusOnline {
		return fmt.Errorf("exchange: heartbeat %s: %w", workerID, ErrUnknownWorker)
	}
	w.LastHeartbeatAt = e.now()
	if reported >= 0 {
		w.ReportedInstances = reported
	}
	return nil
}

// Remove explicitly deletes a worker record in any state and all patches
// bound to it, returning the invalidated instance ids sorted.
func (e *Exchange) Remove(workerID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.workers[workerID]; !ok {
		return nil, fmt.Errorf("exchange: remove %s: %w", workerID, ErrUnknownWorker)
	}
	dropped := e.dropWorkerLocked(workerID)
	return dropped, nil
}

// dropWorkerLocked deletes the record, its tool index entries, and its
// patches. Caller holds the lock.
func (e *Exchange) dropWorkerLocked(workerID string) []string {
	delete(e.workers, workerID)
	e.unindexLocked(workerID)
	return e.dropPatchesLocked(workerID)
}

// unindexLocked removes the worker from every tool set. Caller holds the lock.
func (e *Exchange) unindexLocked(workerID string) {
	for tool, set := range e.tools {
		delete(set, workerID)
		if len(set) == 0 {
			delete(e.tools, tool)
		}
	}
}

// dropPatchesLocked removes every patch bound to the worker, returning the
// instance ids sorted. Caller holds the lock.
func (e *Exchange) dropPatchesLocked(workerID string) []string {
	var ids []string
	for id, p := range e.patches {
		if p.WorkerID == workerID {
			delete(e.patches, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// normalizeTools dedupes, trims, and sorts the advertised tool names.
func normalizeTools(tools []string) []string {
	seen := make(map[string]bool, len(tools))
	var out []string
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// newWorkerID returns a short random id, matching the station-side default.
func newWorkerID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewInstanceID returns a fresh instance id for creates that do not supply one.
func NewInstanceID() string {
	return uuid.NewString()
}
