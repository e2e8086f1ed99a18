package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestHandlers(t *testing.T) (*Handlers, *swarm.Coordinator) {
	gin.SetMode(gin.TestMode)
	cfg := swarm.DefaultConfig()
	cfg.HeartbeatIntervalMs = 50
	cfg.HealthIntervalMs = 50
	c := swarm.NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	t.Cleanup(func() { _ = c.Shutdown() })

	neural := swarm.NewStubNeuralSystem(testLogger())
	memory := swarm.NewInMemoryMemoryService()
	queen := swarm.NewQueen(c, neural, memory, testLogger())

	return New(c, queen, testLogger()), c
}

func doRequest(h gin.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = req
	h(ctx)
	return rec
}

func TestRegisterAgentSuccess(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := doRequest(h.RegisterAgent, http.MethodPost, "/api/agents", registerAgentRequest{
		Type: "coder", Domain: "core",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["agentId"])
}

func TestRegisterAgentMissingFieldsRejected(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := doRequest(h.RegisterAgent, http.MethodPost, "/api/agents", registerAgentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpawnAgentByAgentNumber(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := doRequest(h.SpawnAgent, http.MethodPost, "/api/agents/spawn", spawnAgentRequest{
		AgentNumber: 6, Name: "scout",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["agentId"])
	assert.Equal(t, "core", resp["domain"])
	assert.Equal(t, true, resp["spawned"])
}

func TestSpawnAgentMissingDomainAndNumberRejected(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := doRequest(h.SpawnAgent, http.MethodPost, "/api/agents/spawn", spawnAgentRequest{Type: "tester"})
	assert.NotEqual(t, http.StatusCreated, rec.Code)
}

func TestTerminateAgentReassignsTask(t *testing.T) {
	h, c := newTestHandlers(t)
	busyID, err := c.RegisterAgent(swarm.AgentCoder, swarm.DomainCore, swarm.Capabilities{MaxConcurrentTasks: 1})
	require.NoError(t, err)
	_ = swarm.NewSimAgent(busyID, c.Bus(), testLogger(), func(swarm.Task) bool { time.Sleep(time.Hour); return false })

	key, err := c.SubmitTask(swarm.TaskCoding, swarm.PriorityNormal, swarm.DomainCore, nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.Task(key).Status == swarm.TaskAssigned }, time.Second, 5*time.Millisecond)

	// Registered only after the task is assigned to busyID, so it's the sole
	// candidate left once busyID is terminated.
	_, err = c.RegisterAgent(swarm.AgentCoder, swarm.DomainCore, swarm.Capabilities{MaxConcurrentTasks: 1})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/agents/"+busyID+"/terminate", bytes.NewReader([]byte(`{"force":true,"reason":"maintenance"}`)))
	ctx.Request.Header.Set("Content-Type", "application/json")
	ctx.Params = gin.Params{{Key: "id", Value: busyID}}
	h.TerminateAgent(ctx)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["terminated"])
	assert.Equal(t, "maintenance", resp["reason"])
	assert.EqualValues(t, 1, resp["tasksReassigned"])
}

func TestGetAgentNotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/agents/missing", nil)
	ctx.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.GetAgent(ctx)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitTaskAndGetRoundTrip(t *testing.T) {
	h, c := newTestHandlers(t)
	_, err := c.RegisterAgent(swarm.AgentCoder, swarm.DomainCore, swarm.Capabilities{MaxConcurrentTasks: 1})
	require.NoError(t, err)

	rec := doRequest(h.SubmitTask, http.MethodPost, "/api/tasks", submitTaskRequest{
		Type: "coding", Domain: "core", Priority: "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	taskID, _ := resp["taskId"].(string)
	require.NotEmpty(t, taskID)

	gin.SetMode(gin.TestMode)
	getRec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(getRec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil)
	ctx.Params = gin.Params{{Key: "id", Value: taskID}}
	h.GetTask(ctx)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestCancelTaskUnknownReturnsError(t *testing.T) {
	h, _ := newTestHandlers(t)
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodDelete, "/api/tasks/missing", nil)
	ctx.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.CancelTask(ctx)
	assert.NotEqual(t, http.StatusNoContent, rec.Code)
}

func TestGetStatusAndHealth(t *testing.T) {
	h, _ := newTestHandlers(t)
	gin.SetMode(gin.TestMode)

	statusRec := httptest.NewRecorder()
	statusCtx, _ := gin.CreateTestContext(statusRec)
	statusCtx.Request = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	h.GetStatus(statusCtx)
	assert.Equal(t, http.StatusOK, statusRec.Code)

	healthRec := httptest.NewRecorder()
	healthCtx, _ := gin.CreateTestContext(healthRec)
	healthCtx.Request = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	h.GetHealth(healthCtx)
	assert.Equal(t, http.StatusOK, healthRec.Code)
}
