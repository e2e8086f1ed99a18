package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioFullHierarchySpawn implements E2E-1: fresh coordinator,
// hierarchical topology, maxAgents=15, SpawnFullHierarchy produces exactly
// 15 agents with the {queen:1, security:3, core:5, integration:3, support:3}
// domain split, leader=the first agent, every non-queen node connected to it.
func TestScenarioFullHierarchySpawn(t *testing.T) {
	c := newTestCoordinator(t)
	ids, err := c.SpawnFullHierarchy()
	require.NoError(t, err)
	require.Len(t, ids, 15)

	counts := map[Domain]int{}
	for _, id := range ids {
		counts[c.Agent(id).Domain]++
	}
	assert.Equal(t, map[Domain]int{
		DomainQueen: 1, DomainSecurity: 3, DomainCore: 5,
		DomainIntegration: 3, DomainSupport: 3,
	}, counts)

	leader := c.Topology().Leader()
	assert.Equal(t, ids[0], leader)

	nodes, _, _, _ := c.Topology().Snapshot()
	for _, n := range nodes {
		if n.AgentID == leader {
			continue
		}
		assert.Contains(t, n.Connections, leader)
	}
}

// TestScenarioParallelDomainExecution implements E2E-2: spawn the full
// hierarchy, submit 5 tasks across the 5 canonical types concurrently via
// ExecuteParallel, expect all 5 to succeed with wall-clock well under the
// sum of their individual simulated durations.
func TestScenarioParallelDomainExecution(t *testing.T) {
	c := newTestCoordinator(t)
	ids, err := c.SpawnFullHierarchy()
	require.NoError(t, err)

	var sims []*SimAgent
	for _, id := range ids {
		sims = append(sims, NewSimAgent(id, c.Bus(), testLogger(), nil))
	}
	defer func() {
		for _, s := range sims {
			s.Stop()
		}
	}()

	items := []struct {
		Type     TaskType
		Priority TaskPriority
		Domain   Domain
		Input    map[string]interface{}
	}{
		{Type: TaskCoding, Priority: PriorityNormal, Domain: DomainCore},
		{Type: TaskTesting, Priority: PriorityNormal, Domain: DomainCore},
		{Type: TaskResearch, Priority: PriorityNormal, Domain: DomainCore},
		{Type: TaskReview, Priority: PriorityNormal, Domain: DomainSecurity},
		{Type: TaskCoordination, Priority: PriorityNormal, Domain: DomainIntegration},
	}

	start := time.Now()
	results := c.ExecuteParallel(items)
	elapsed := time.Since(start)

	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Success, "task %s should have succeeded: %v", r.TaskKey, r.Err)
	}
	assert.Less(t, elapsed, 500*time.Millisecond, "parallel execution should not serialize the simulated task durations")
}

// TestScenarioHeartbeatLossRecovery implements E2E-6: an agent busy on a
// task stops heartbeating; after 3x the heartbeat interval it enters error,
// autoRecovery requeues its task and eventually the agent returns to idle
// with health restored.
func TestScenarioHeartbeatLossRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMs = 20
	cfg.HealthIntervalMs = 500
	cfg.AutoRecovery = true
	cfg.PoolMaxSize = 2
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()

	_, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	rescueID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)

	// Only the rescuer responds to task_assign; the other agent never sends
	// task_complete/heartbeat, simulating a stalled agent that must be
	// detected, recovered and have its task reassigned.
	rescuer := NewSimAgent(rescueID, c.Bus(), testLogger(), nil)
	defer rescuer.Stop()

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)

	task := c.Task(key)
	require.NotNil(t, task)
	assert.Equal(t, TaskAssigned, task.Status)

	deadline := time.Now().Add(3 * time.Second)
	var recovered bool
	for time.Now().Before(deadline) {
		final := c.Task(key)
		if final != nil && final.Status == TaskCompleted {
			recovered = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, recovered, "stalled agent's task should have been requeued and completed by the rescuer")
}
