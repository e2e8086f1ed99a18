package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueen(t *testing.T) (*Queen, *Coordinator) {
	c := newTestCoordinator(t)
	q := NewQueen(c, nil, nil, testLogger())
	return q, c
}

func TestQueenAnalyzeDecomposesNonSimpleTaskWithinBounds(t *testing.T) {
	q, c := newTestQueen(t)
	key, err := c.SubmitTask(TaskCoding, PriorityCritical, DomainCore, nil, nil)
	require.NoError(t, err)
	task := c.Task(key)
	require.NotNil(t, task)
	// At least 200 characters, so the task is not "simple" and is decomposed.
	task.Description = "implement a new authentication flow with security review, covering password login, " +
		"token refresh, session expiry handling, account lockout after repeated failures, " +
		"audit logging of every sign-in attempt, and migration of existing user records"

	analysis := q.Analyze(context.Background(), task)
	assert.NotEmpty(t, analysis.Subtasks)
	assert.Greater(t, analysis.Complexity, 0.3)
	assert.LessOrEqual(t, analysis.Complexity, 1.0)
	assert.Greater(t, analysis.EstimatedDurationMs, int64(0))
	assert.Contains(t, analysis.RequiredCapabilities, "security")
	assert.Greater(t, analysis.Confidence, 0.0)
	assert.LessOrEqual(t, analysis.Confidence, 0.95)
}

func TestQueenAnalyzeSimpleTaskSkipsDecomposition(t *testing.T) {
	q, c := newTestQueen(t)
	key, err := c.SubmitTask(TaskReview, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)
	task := c.Task(key)
	task.Description = "short review"

	analysis := q.Analyze(context.Background(), task)
	assert.Empty(t, analysis.Subtasks)
}

func TestQueenDelegatePicksBestAgentInRecommendedDomain(t *testing.T) {
	q, c := newTestQueen(t)
	weakID, err := c.RegisterAgent(AgentWorker, DomainCore, Capabilities{})
	require.NoError(t, err)
	strongID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{Languages: []string{"coding", "implementation"}})
	require.NoError(t, err)

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)
	task := c.Task(key)
	task.Description = "implement a feature"

	analysis := q.Analyze(context.Background(), task)
	plan, err := q.Delegate(task, analysis)
	require.NoError(t, err)
	assert.Equal(t, strongID, plan.PrimaryAgent)
	assert.NotEqual(t, weakID, plan.PrimaryAgent)
	assert.NotEmpty(t, plan.Strategy)
}

func TestQueenDelegateFailsWithNoAgents(t *testing.T) {
	// PoolMaxSize 0 keeps the core pool's factory from auto-spawning an agent
	// when the task is submitted.
	cfg := DefaultConfig()
	cfg.PoolMaxSize = 0
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()
	q := NewQueen(c, nil, nil, testLogger())

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)
	task := c.Task(key)
	analysis := q.Analyze(context.Background(), task)

	_, err = q.Delegate(task, analysis)
	assert.Error(t, err)
}

func TestQueenMonitorSwarmHealthFlagsQueueBacklog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolMaxSize = 1
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()
	q := NewQueen(c, nil, nil, testLogger())

	agentID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	_ = NewSimAgent(agentID, c.Bus(), testLogger(), func(Task) bool { time.Sleep(time.Hour); return false })

	for i := 0; i < 12; i++ {
		_, _ = c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	}
	time.Sleep(20 * time.Millisecond)

	report := q.MonitorSwarmHealth()
	assert.GreaterOrEqual(t, c.DomainQueueDepth(DomainCore), 10)
	assert.Contains(t, report.Bottlenecks, "domain queue depth exceeded: "+string(DomainCore))
	assert.GreaterOrEqual(t, report.OverallHealth, 0.0)
	assert.LessOrEqual(t, report.OverallHealth, 1.0)
}

func TestQueenCoordinateConsensusRejectsDisallowedOverride(t *testing.T) {
	q, _ := newTestQueen(t)
	_, err := q.CoordinateConsensus(context.Background(), "assign", AlgoQueenOverride, "task-assignment")
	assert.Error(t, err)
}

func TestQueenCoordinateConsensusAllowsEmergencyOverride(t *testing.T) {
	q, _ := newTestQueen(t)
	res, err := q.CoordinateConsensus(context.Background(), "halt", AlgoQueenOverride, "emergency-action")
	require.NoError(t, err)
	assert.True(t, res.Approved)
}

func TestQueenRecordOutcomeAdvancesLearningPhase(t *testing.T) {
	q, _ := newTestQueen(t)
	assert.Equal(t, "seed", q.LearningState()["phase"])

	for i := 0; i < 11; i++ {
		q.RecordOutcome(context.Background(), "task-x", DomainCore, TaskCoding, true, 0.9)
	}
	assert.Equal(t, "growth", q.LearningState()["phase"])
	assert.Equal(t, 11, q.OutcomeHistoryLen())
}
