package operator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/exchange"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
)

func (o *Operator) registerRoutes(router *gin.Engine) {
	// Station lifecycle.
	router.POST("/register", o.handleRegister)
	router.PUT("/heartbeat/:worker_id", o.handleHeartbeat)
	router.DELETE("/workers/:worker_id", o.handleUnregister)

	// Proxied tool operations.
	router.POST("/tools/:tool/create", o.handleCreate)
	router.POST("/tools/:tool/execute", o.handleExecute)
	router.POST("/tools/:tool/calc_reward", o.handleCalcReward)
	router.POST("/tools/:tool/release", o.handleRelease)

	// Observability.
	router.GET("/health", o.handleHealth)
	router.GET("/metrics", gin.WrapH(o.metrics.handler()))
	router.GET("/", o.handleDashboard)
	router.GET("/events", o.handleEvents)
}

// httpStatus maps routing and forwarding errors to response codes in one
// place so no handler invents its own.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, exchange.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrUnknownWorker), errors.Is(err, exchange.ErrInstanceNotBound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrNoWorkerAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, exchange.ErrInstanceBound):
		return http.StatusConflict
	case errors.Is(err, ErrStationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStationUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

type registerRequest struct {
	WorkerID string            `json:"worker_id"`
	BaseURL  string            `json:"base_url"`
	Tools    []string          `json:"supported_tools"`
	Host     exchange.HostInfo `json:"host_info"`
}

func (o *Operator) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("operator: parse register request: %v: %w", err, exchange.ErrValidation))
		return
	}
	if strings.TrimSpace(req.BaseURL) == "" {
		writeError(c, fmt.Errorf("operator: base_url is required: %w", exchange.ErrValidation))
		return
	}

	// Reject stations the operator cannot reach; a registration that can
	// never serve traffic only poisons the routing table.
	if err := o.client.Probe(c.Request.Context(), req.BaseURL); err != nil {
		writeError(c, fmt.Errorf("operator: station health probe failed: %v: %w", err, exchange.ErrValidation))
		return
	}

	id, err := o.exch.Register(exchange.RegisterOpts{
		WorkerID: req.WorkerID,
		BaseURL:  req.BaseURL,
		Tools:    req.Tools,
		Host:     req.Host,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	o.metrics.registrations.Inc()
	o.metrics.observeSnapshot(o.exch.Snapshot())
	o.rec.Event(&models.StationEvent{WorkerID: id, Event: "registered", Detail: req.BaseURL})
	go o.notifier.Notify(context.Background(), notify.StationRegistered(id, req.BaseURL, req.Tools))
	log.Printf("operator: station %s registered at %s serving [%s]", id, req.BaseURL, strings.Join(req.Tools, " "))

	c.JSON(http.StatusOK, gin.H{"worker_id": id})
}

type heartbeatRequest struct {
	ActiveInstances *int `json:"active_instances"`
}

func (o *Operator) handleHeartbeat(c *gin.Context) {
	workerID := c.Param("worker_id")

	var req heartbeatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("operator: parse heartbeat request: %v: %w", err, exchange.ErrValidation))
			return
		}
	}
	reported := -1
	if req.ActiveInstances != nil {
		reported = *req.ActiveInstances
	}

	if err := o.exch.Heartbeat(workerID, reported); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (o *Operator) handleUnregister(c *gin.Context) {
	workerID := c.Param("worker_id")

	dropped, err := o.exch.Remove(workerID)
	if err != nil {
		writeError(c, err)
		return
	}

	o.metrics.observeSnapshot(o.exch.Snapshot())
	o.rec.Event(&models.StationEvent{WorkerID: workerID, Event: "removed", Detail: fmt.Sprintf("%d instance(s) dropped", len(dropped))})
	go o.notifier.Notify(context.Background(), notify.StationRemoved(workerID, len(dropped)))
	log.Printf("operator: station %s removed, %d instance(s) dropped", workerID, len(dropped))

	c.JSON(http.StatusOK, gin.H{"worker_id": workerID, "dropped_instances": dropped})
}

type createRequest struct {
	InstanceID string                 `json:"instance_id"`
	Identity   map[string]interface{} `json:"identity"`
}

func (o *Operator) handleCreate(c *gin.Context) {
	toolName := c.Param("tool")

	var req createRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("operator: parse create request: %v: %w", err, exchange.ErrValidation))
			return
		}
	}
	if req.InstanceID == "" {
		req.InstanceID = exchange.NewInstanceID()
	}

	// An instance that is already bound resolves to its existing worker:
	// no forward, no second count increment.
	if _, w, err := o.exch.Resolve(req.InstanceID); err == nil {
		c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "worker_id": w.ID, "status": "exists"})
		return
	}

	w, err := o.exch.PickAndBind(toolName, req.InstanceID, req.Identity)
	if err != nil {
		// A concurrent create for the same instance can win the bind
		// between our Resolve miss and here; answer with its binding.
		if errors.Is(err, exchange.ErrInstanceBound) {
			if _, bound, rerr := o.exch.Resolve(req.InstanceID); rerr == nil {
				c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "worker_id": bound.ID, "status": "exists"})
				return
			}
		}
		writeError(c, err)
		return
	}

	start := time.Now()
	_, err = o.client.Forward(c.Request.Context(), w.BaseURL, toolName, "create", gin.H{
		"instance_id": req.InstanceID,
		"identity":    req.Identity,
	})
	o.recordCall(toolName, req.InstanceID, w.ID, "create", start, err)
	if err != nil {
		// Roll the binding back so the instance can be placed again.
		o.exch.Unbind(req.InstanceID)
		writeError(c, err)
		return
	}

	o.metrics.observeSnapshot(o.exch.Snapshot())
	c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "worker_id": w.ID, "status": "created"})
}

type executeRequest struct {
	InstanceID string                 `json:"instance_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

func (o *Operator) handleExecute(c *gin.Context) {
	toolName := c.Param("tool")

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("operator: parse execute request: %v: %w", err, exchange.ErrValidation))
		return
	}
	if req.InstanceID == "" {
		writeError(c, fmt.Errorf("operator: instance_id is required: %w", exchange.ErrValidation))
		return
	}

	// Affinity: calls for a bound instance go to its worker or fail.
	// An unbound instance is never silently re-placed.
	_, w, err := o.exch.Resolve(req.InstanceID)
	if err != nil {
		writeError(c, err)
		return
	}

	start := time.Now()
	raw, err := o.client.Forward(c.Request.Context(), w.BaseURL, toolName, "execute", gin.H{
		"instance_id": req.InstanceID,
		"parameters":  req.Parameters,
	})
	o.recordCall(toolName, req.InstanceID, w.ID, "execute", start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

type instanceRequest struct {
	InstanceID string `json:"instance_id"`
}

func (o *Operator) handleCalcReward(c *gin.Context) {
	toolName := c.Param("tool")

	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("operator: parse calc_reward request: %v: %w", err, exchange.ErrValidation))
		return
	}
	if req.InstanceID == "" {
		writeError(c, fmt.Errorf("operator: instance_id is required: %w", exchange.ErrValidation))
		return
	}

	_, w, err := o.exch.Resolve(req.InstanceID)
	if err != nil {
		writeError(c, err)
		return
	}

	start := time.Now()
	raw, err := o.client.Forward(c.Request.Context(), w.BaseURL, toolName, "calc_reward", gin.H{
		"instance_id": req.InstanceID,
	})
	o.recordCall(toolName, req.InstanceID, w.ID, "calc_reward", start, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (o *Operator) handleRelease(c *gin.Context) {
	toolName := c.Param("tool")

	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("operator: parse release request: %v: %w", err, exchange.ErrValidation))
		return
	}
	if req.InstanceID == "" {
		writeError(c, fmt.Errorf("operator: instance_id is required: %w", exchange.ErrValidation))
		return
	}

	_, w, err := o.exch.Resolve(req.InstanceID)
	if err != nil {
		writeError(c, err)
		return
	}

	start := time.Now()
	_, ferr := o.client.Forward(c.Request.Context(), w.BaseURL, toolName, "release", gin.H{
		"instance_id": req.InstanceID,
	})
	// The binding is dropped no matter how the forward went, so a dead
	// station can never pin an instance forever.
	o.exch.Unbind(req.InstanceID)
	o.recordCall(toolName, req.InstanceID, w.ID, "release", start, ferr)
	if ferr != nil {
		log.Printf("operator: release forward to %s failed: %v", w.ID, ferr)
	}

	o.metrics.observeSnapshot(o.exch.Snapshot())
	c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "released": true})
}

func (o *Operator) handleHealth(c *gin.Context) {
	snap := o.exch.Snapshot()
	o.metrics.observeSnapshot(snap)
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"online_workers": snap.OnlineWorkers(),
		"workers":        snap.Workers,
		"tools":          snap.Tools,
		"patches":        snap.Patches,
	})
}

// recordCall updates call metrics and enqueues the persistent record.
func (o *Operator) recordCall(tool, instanceID, workerID, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	status := "ok"
	errText := ""
	if err != nil {
		status = "error"
		errText = err.Error()
		if len(errText) > 512 {
			errText = errText[:512]
		}
	}
	o.metrics.calls.WithLabelValues(tool, op, status).Inc()
	o.metrics.callDuration.WithLabelValues(tool, op).Observe(elapsed.Seconds())
	o.rec.Call(&models.CallRecord{
		Tool:       tool,
		InstanceID: instanceID,
		WorkerID:   workerID,
		Kind:       op,
		Status:     status,
		Error:      errText,
		DurationMs: int(elapsed.Milliseconds()),
	})
}
