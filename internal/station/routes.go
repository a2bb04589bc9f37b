package station

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/tool"
)

// Handler builds the station's HTTP surface.
func (s *Station) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.POST("/tools/:tool/create", s.handleCreate)
	router.POST("/tools/:tool/execute", s.handleExecute)
	router.POST("/tools/:tool/calc_reward", s.handleCalcReward)
	router.POST("/tools/:tool/release", s.handleRelease)

	return router
}

func (s *Station) handleHealth(c *gin.Context) {
	s.mu.Lock()
	workerID := s.workerID
	registered := s.registered
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"worker_id":     workerID,
		"tools":         s.tools.Names(),
		"is_registered": registered,
		"operator_url":  s.cfg.OperatorURL,
	})
}

// lookupTool resolves the path parameter to a hosted tool or writes 404.
func (s *Station) lookupTool(c *gin.Context) (tool.Tool, bool) {
	name := c.Param("tool")
	tl, ok := s.tools[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("station: tool %q not hosted here", name)})
		return nil, false
	}
	return tl, true
}

type createRequest struct {
	InstanceID string                 `json:"instance_id"`
	Identity   map[string]interface{} `json:"identity"`
}

func (s *Station) handleCreate(c *gin.Context) {
	tl, ok := s.lookupTool(c)
	if !ok {
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("station: parse create request: %v", err)})
		return
	}
	if req.InstanceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station: instance_id is required"})
		return
	}

	if err := tl.Create(c.Request.Context(), req.InstanceID, req.Identity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.trackInstance(req.InstanceID)
	c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "status": "created"})
}

type executeRequest struct {
	InstanceID string                 `json:"instance_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

func (s *Station) handleExecute(c *gin.Context) {
	tl, ok := s.lookupTool(c)
	if !ok {
		return
	}
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("station: parse execute request: %v", err)})
		return
	}
	if req.InstanceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station: instance_id is required"})
		return
	}

	// Tool-level problems (unknown instance, bad operands) come back as
	// results with a penalty score, not transport errors.
	res, err := tl.Execute(c.Request.Context(), req.InstanceID, req.Parameters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type instanceRequest struct {
	InstanceID string `json:"instance_id"`
}

func (s *Station) handleCalcReward(c *gin.Context) {
	tl, ok := s.lookupTool(c)
	if !ok {
		return
	}
	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("station: parse calc_reward request: %v", err)})
		return
	}

	score, err := tl.CalcReward(c.Request.Context(), req.InstanceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward_score": score})
}

func (s *Station) handleRelease(c *gin.Context) {
	tl, ok := s.lookupTool(c)
	if !ok {
		return
	}
	var req instanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("station: parse release request: %v", err)})
		return
	}

	if err := tl.Release(c.Request.Context(), req.InstanceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.untrackInstance(req.InstanceID)
	c.JSON(http.StatusOK, gin.H{"instance_id": req.InstanceID, "status": "released"})
}
