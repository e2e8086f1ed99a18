// Package handlers implements the HTTP control surface over a running
// Coordinator/Queen pair.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

var validate = validator.New()

// Handlers bundles the coordinator/queen references every route needs.
type Handlers struct {
	coordinator *swarm.Coordinator
	queen       *swarm.Queen
	logger      *logrus.Logger
}

// New constructs a Handlers bound to a running coordinator and queen.
func New(coordinator *swarm.Coordinator, queen *swarm.Queen, logger *logrus.Logger) *Handlers {
	return &Handlers{coordinator: coordinator, queen: queen, logger: logger}
}

func statusFor(err error) int {
	se, ok := err.(*swarm.SwarmError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch se.Type {
	case swarm.ErrPreconditionFailed:
		return http.StatusBadRequest
	case swarm.ErrCapacityExceeded:
		return http.StatusTooManyRequests
	case swarm.ErrTimeout:
		return http.StatusGatewayTimeout
	case swarm.ErrUnavailable:
		return http.StatusServiceUnavailable
	case swarm.ErrDependencyUnsatisfied:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// registerAgentRequest is the DTO for POST /api/agents.
type registerAgentRequest struct {
	Type         string             `json:"type" validate:"required"`
	Domain       string             `json:"domain" validate:"required"`
	Capabilities swarm.Capabilities `json:"capabilities"`
}

// RegisterAgent handles POST /api/agents.
func (h *Handlers) RegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.coordinator.RegisterAgent(swarm.AgentType(req.Type), swarm.Domain(req.Domain), req.Capabilities)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agentId": id})
}

// spawnAgentRequest is the DTO for POST /api/agents/spawn.
type spawnAgentRequest struct {
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	Domain       string             `json:"domain"`
	AgentNumber  int                `json:"agentNumber"`
	Capabilities swarm.Capabilities `json:"capabilities"`
}

// SpawnAgent handles POST /api/agents/spawn.
func (h *Handlers) SpawnAgent(c *gin.Context) {
	var req spawnAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, domain, status, spawned, err := h.coordinator.SpawnAgent(
		swarm.AgentType(req.Type), req.Name, swarm.Domain(req.Domain), req.AgentNumber, req.Capabilities,
	)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"agentId": id, "domain": domain, "status": status, "spawned": spawned,
	})
}

// terminateAgentRequest is the DTO for POST /api/agents/:id/terminate.
type terminateAgentRequest struct {
	Force         bool   `json:"force"`
	Reason        string `json:"reason"`
	GracePeriodMs int64  `json:"gracePeriodMs"`
}

// TerminateAgent handles POST /api/agents/:id/terminate.
func (h *Handlers) TerminateAgent(c *gin.Context) {
	var req terminateAgentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	id := c.Param("id")
	terminated, reason, tasksReassigned, err := h.coordinator.TerminateAgent(id, req.Force, req.Reason, req.GracePeriodMs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"terminated": terminated, "agentId": id, "reason": reason, "tasksReassigned": tasksReassigned,
	})
}

// SpawnHierarchy handles POST /api/agents/hierarchy.
func (h *Handlers) SpawnHierarchy(c *gin.Context) {
	ids, err := h.coordinator.SpawnFullHierarchy()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agentIds": ids})
}

// GetAgent handles GET /api/agents/:id.
func (h *Handlers) GetAgent(c *gin.Context) {
	agent := h.coordinator.Agent(c.Param("id"))
	if agent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, agent.Snapshot())
}

// UnregisterAgent handles DELETE /api/agents/:id.
func (h *Handlers) UnregisterAgent(c *gin.Context) {
	if err := h.coordinator.UnregisterAgent(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// submitTaskRequest is the DTO for POST /api/tasks.
type submitTaskRequest struct {
	Type         string                 `json:"type" validate:"required"`
	Priority     string                 `json:"priority"`
	Domain       string                 `json:"domain" validate:"required"`
	Input        map[string]interface{} `json:"input"`
	Dependencies []string               `json:"dependencies"`
}

// SubmitTask handles POST /api/tasks.
func (h *Handlers) SubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priority := swarm.PriorityNormal
	if req.Priority != "" {
		priority = swarm.TaskPriority(req.Priority)
	}
	key, err := h.coordinator.SubmitTask(swarm.TaskType(req.Type), priority, swarm.Domain(req.Domain), req.Input, req.Dependencies)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"taskId": key})
}

// GetTask handles GET /api/tasks/:id.
func (h *Handlers) GetTask(c *gin.Context) {
	task := h.coordinator.Task(c.Param("id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}

// CancelTask handles DELETE /api/tasks/:id.
func (h *Handlers) CancelTask(c *gin.Context) {
	if err := h.coordinator.CancelTask(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DelegateTask handles POST /api/tasks/:id/delegate — runs the queen's
// analyze+delegate pipeline for an already-submitted task.
func (h *Handlers) DelegateTask(c *gin.Context) {
	task := h.coordinator.Task(c.Param("id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	analysis := h.queen.Analyze(context.Background(), task)
	plan, err := h.queen.Delegate(task, analysis)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis, "plan": plan})
}

// consensusRequest is the DTO for POST /api/consensus.
type consensusRequest struct {
	Value        interface{} `json:"value" validate:"required"`
	Algorithm    string      `json:"algorithm" validate:"required"`
	DecisionType string      `json:"decisionType" validate:"required"`
}

// ProposeConsensus handles POST /api/consensus.
func (h *Handlers) ProposeConsensus(c *gin.Context) {
	var req consensusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.queen.CoordinateConsensus(c.Request.Context(), req.Value, swarm.ConsensusAlgorithm(req.Algorithm), req.DecisionType)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetHealth handles GET /api/health — the queen's swarm-wide health report.
func (h *Handlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.queen.MonitorSwarmHealth())
}

// GetState handles GET /api/state.
func (h *Handlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetState())
}

// GetStatus handles GET /api/status.
func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetStatus())
}

// GetMetrics handles GET /api/metrics/snapshot — a JSON summary distinct
// from the Prometheus /metrics exposition endpoint.
func (h *Handlers) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetMetrics())
}

// GetTopology handles GET /api/topology.
func (h *Handlers) GetTopology(c *gin.Context) {
	nodes, edges, partitions, leader := h.coordinator.Topology().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"nodes": nodes, "edges": edges, "partitions": partitions, "leader": leader,
	})
}

// GetLearningState handles GET /api/queen/learning.
func (h *Handlers) GetLearningState(c *gin.Context) {
	c.JSON(http.StatusOK, h.queen.LearningState())
}
