package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMs = 50
	cfg.HealthIntervalMs = 50
	cfg.MessageBusMaxQueueSize = 500
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func TestCoordinatorDoubleInitializeFails(t *testing.T) {
	c := newTestCoordinator(t)
	err := c.Initialize()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestCoordinatorDoubleShutdownSafe(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Shutdown())
}

func TestCoordinatorSpawnFullHierarchy(t *testing.T) {
	c := newTestCoordinator(t)
	ids, err := c.SpawnFullHierarchy()
	require.NoError(t, err)
	assert.Len(t, ids, 15)

	counts := map[Domain]int{}
	for _, id := range ids {
		a := c.Agent(id)
		require.NotNil(t, a)
		counts[a.Domain]++
	}
	assert.Equal(t, 1, counts[DomainQueen])
	assert.Equal(t, 3, counts[DomainSecurity])
	assert.Equal(t, 5, counts[DomainCore])
	assert.Equal(t, 3, counts[DomainIntegration])
	assert.Equal(t, 3, counts[DomainSupport])

	assert.Equal(t, ids[0], c.Topology().Leader())
}

func TestCoordinatorRegisterAgentFailsAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAgents = 1
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()

	_, err := c.RegisterAgent(AgentWorker, DomainCore, Capabilities{})
	require.NoError(t, err)
	_, err = c.RegisterAgent(AgentWorker, DomainCore, Capabilities{})
	assert.Error(t, err)
}

func TestCoordinatorSubmitTaskRoundTripToCompletion(t *testing.T) {
	c := newTestCoordinator(t)
	agentID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	sim := NewSimAgent(agentID, c.Bus(), testLogger(), nil)
	defer sim.Stop()

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task := c.Task(key)
		if task != nil && task.Status == TaskCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	task := c.Task(key)
	require.NotNil(t, task)
	assert.Equal(t, TaskCompleted, task.Status)
}

func TestCoordinatorCancelTaskReleasesAgent(t *testing.T) {
	c := newTestCoordinator(t)
	agentID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	_ = NewSimAgent(agentID, c.Bus(), testLogger(), func(Task) bool { time.Sleep(time.Hour); return false })

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.CancelTask(key))

	task := c.Task(key)
	require.NotNil(t, task)
	assert.Equal(t, TaskCancelled, task.Status)
}

func TestCoordinatorSpawnAgentWithAgentNumber(t *testing.T) {
	c := newTestCoordinator(t)
	id, domain, status, spawned, err := c.SpawnAgent("", "scout", "", 6, defaultCapabilitiesForNumber(6))
	require.NoError(t, err)
	assert.True(t, spawned)
	assert.Equal(t, DomainCore, domain)
	assert.Equal(t, StatusIdle, status)

	a := c.Agent(id)
	require.NotNil(t, a)
	assert.Equal(t, "scout", a.Name)
}

func TestCoordinatorSpawnAgentWithExplicitTypeAndDomain(t *testing.T) {
	c := newTestCoordinator(t)
	id, domain, _, spawned, err := c.SpawnAgent(AgentTester, "", DomainSecurity, 0, Capabilities{})
	require.NoError(t, err)
	assert.True(t, spawned)
	assert.Equal(t, DomainSecurity, domain)
	assert.Equal(t, AgentTester, c.Agent(id).Type)
}

func TestCoordinatorSpawnAgentRequiresDomainOrAgentNumber(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, _, spawned, err := c.SpawnAgent(AgentTester, "", "", 0, Capabilities{})
	assert.Error(t, err)
	assert.False(t, spawned)
}

func TestCoordinatorTerminateAgentReassignsCurrentTask(t *testing.T) {
	c := newTestCoordinator(t)
	busyID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	_ = NewSimAgent(busyID, c.Bus(), testLogger(), func(Task) bool { time.Sleep(time.Hour); return false })

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Task(key).Status != TaskAssigned {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, busyID, c.taskAssignments[key])

	// Registered only after the task is already assigned to busyID. The pool
	// also holds the tester it auto-spawned when busyID was acquired; as a
	// coder, freeID outscores it for the requeued coding task.
	freeID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	free := NewSimAgent(freeID, c.Bus(), testLogger(), nil)
	defer free.Stop()

	terminated, reason, reassigned, err := c.TerminateAgent(busyID, true, "maintenance", 0)
	require.NoError(t, err)
	assert.True(t, terminated)
	assert.Equal(t, "maintenance", reason)
	assert.Equal(t, 1, reassigned)
	assert.Nil(t, c.Agent(busyID))

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task := c.Task(key)
		if task != nil && task.Status == TaskCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, TaskCompleted, c.Task(key).Status)
}

func TestCoordinatorTerminateAgentUnknownFails(t *testing.T) {
	c := newTestCoordinator(t)
	_, _, _, err := c.TerminateAgent("missing", true, "", 0)
	assert.Error(t, err)
}

func TestCoordinatorPoolFactoryAutoSpawnsOnDemand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolMinSize = 0
	cfg.PoolMaxSize = 2
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()

	key, err := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Task(key).Status != TaskAssigned {
		time.Sleep(5 * time.Millisecond)
	}
	task := c.Task(key)
	require.NotNil(t, task)
	assert.Equal(t, TaskAssigned, task.Status, "pool factory should auto-spawn an agent when none is registered yet")
}

func TestCoordinatorBackPressureOnDomainQueueWhenPoolExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolMaxSize = 1
	c := NewCoordinator(cfg, testLogger())
	require.NoError(t, c.Initialize())
	defer c.Shutdown()

	agentID, err := c.RegisterAgent(AgentCoder, DomainCore, Capabilities{})
	require.NoError(t, err)
	_ = NewSimAgent(agentID, c.Bus(), testLogger(), func(Task) bool { time.Sleep(time.Hour); return false })

	key1, _ := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)
	key2, _ := c.SubmitTask(TaskCoding, PriorityNormal, DomainCore, nil, nil)

	time.Sleep(20 * time.Millisecond)
	t1 := c.Task(key1)
	t2 := c.Task(key2)
	require.NotNil(t, t1)
	require.NotNil(t, t2)
	statuses := []TaskStatus{t1.Status, t2.Status}
	assert.Contains(t, statuses, TaskAssigned)
	assert.Contains(t, statuses, TaskQueued)
}
