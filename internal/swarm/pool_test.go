package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgentFactory() (AgentFactory, *int) {
	n := 0
	return func() *Agent {
		n++
		return &Agent{ID: NewID(), Type: AgentWorker, Status: StatusIdle, Health: 1.0,
			Metrics: AgentMetrics{SuccessRate: 1.0}, LastHeartbeat: time.Now()}
	}, &n
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	factory, _ := newTestAgentFactory()
	cfg := DefaultPoolConfig(1, 5)
	p := NewPool("core", cfg, factory, testLogger(), nil)
	p.Add(factory())

	a := p.Acquire()
	require.NotNil(t, a)
	// Utilization 1/1 >= 0.8 on acquire scales the pool up by one agent.
	total, avail, busy := p.Size()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, avail)
	assert.Equal(t, 1, busy)

	// Release drops utilization to 0, but the scale-down is inside the cooldown.
	p.Release(a.ID)
	_, avail, busy = p.Size()
	assert.Equal(t, 2, avail)
	assert.Equal(t, 0, busy)
}

func TestPoolAcquireCreatesOnDemandUpToMax(t *testing.T) {
	factory, _ := newTestAgentFactory()
	cfg := DefaultPoolConfig(0, 2)
	p := NewPool("core", cfg, factory, testLogger(), nil)

	a1 := p.Acquire()
	a2 := p.Acquire()
	require.NotNil(t, a1)
	require.NotNil(t, a2)
	a3 := p.Acquire()
	assert.Nil(t, a3, "pool exhausted at max size")
}

func TestPoolHealthCheckRemovesStaleAgents(t *testing.T) {
	factory, _ := newTestAgentFactory()
	cfg := DefaultPoolConfig(0, 5)
	cfg.HealthInterval = 10 * time.Millisecond
	p := NewPool("core", cfg, factory, testLogger(), nil)
	a := factory()
	a.LastHeartbeat = time.Now().Add(-1 * time.Hour)
	a.Health = 0.1
	p.Add(a)

	p.CheckHealth(time.Now())
	total, _, _ := p.Size()
	assert.Equal(t, 0, total, "stale agent with health<=0 after decrement should be removed")
}

func TestPoolScaleCooldown(t *testing.T) {
	factory, _ := newTestAgentFactory()
	cfg := DefaultPoolConfig(0, 5)
	cfg.ScaleCooldown = time.Hour
	p := NewPool("core", cfg, factory, testLogger(), nil)

	ok := p.Scale(1)
	assert.True(t, ok)
	ok = p.Scale(1)
	assert.False(t, ok, "second scale within cooldown should be a no-op")
}
