package swarm

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestTopologyHierarchicalEveryNodeConnectsToQueen(t *testing.T) {
	topo := NewTopology(TopologyHierarchical, 15, testLogger())
	_, err := topo.AddNode("queen-1", RoleQueenNode)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := topo.AddNode(string(rune('a'+i)), RoleWorkerNode)
		require.NoError(t, err)
	}

	nodes, _, _, leader := topo.Snapshot()
	assert.Equal(t, "queen-1", leader)
	for _, n := range nodes {
		if n.ID == "queen-1" {
			continue
		}
		assert.Contains(t, n.Connections, "queen-1")
	}
}

func TestTopologyAtMostOneQueenAndCoordinator(t *testing.T) {
	topo := NewTopology(TopologyHybrid, 10, testLogger())
	_, err := topo.AddNode("queen-1", RoleQueenNode)
	require.NoError(t, err)
	_, err = topo.AddNode("coord-1", RoleCoordinatorNode)
	require.NoError(t, err)

	nodes, _, _, _ := topo.Snapshot()
	queens, coords := 0, 0
	for _, n := range nodes {
		if n.Role == RoleQueenNode {
			queens++
		}
		if n.Role == RoleCoordinatorNode {
			coords++
		}
	}
	assert.Equal(t, 1, queens)
	assert.Equal(t, 1, coords)
}

func TestTopologyAddNodeRejectsSecondQueenOrCoordinator(t *testing.T) {
	topo := NewTopology(TopologyHybrid, 10, testLogger())
	_, err := topo.AddNode("queen-1", RoleQueenNode)
	require.NoError(t, err)
	_, err = topo.AddNode("queen-2", RoleQueenNode)
	assert.Error(t, err)

	_, err = topo.AddNode("coord-1", RoleCoordinatorNode)
	require.NoError(t, err)
	_, err = topo.AddNode("coord-2", RoleCoordinatorNode)
	assert.Error(t, err)

	nodes, _, _, _ := topo.Snapshot()
	queens, coords := 0, 0
	for _, n := range nodes {
		if n.Role == RoleQueenNode {
			queens++
		}
		if n.Role == RoleCoordinatorNode {
			coords++
		}
	}
	assert.Equal(t, 1, queens)
	assert.Equal(t, 1, coords)
}

func TestTopologyAddNodeFailsOnDuplicateAndCapacity(t *testing.T) {
	topo := NewTopology(TopologyMesh, 2, testLogger())
	_, err := topo.AddNode("a", RolePeerNode)
	require.NoError(t, err)

	_, err = topo.AddNode("a", RolePeerNode)
	assert.Error(t, err)

	_, err = topo.AddNode("b", RolePeerNode)
	require.NoError(t, err)
	_, err = topo.AddNode("c", RolePeerNode)
	assert.Error(t, err)
}

func TestTopologyRemoveNodeReelectsLeader(t *testing.T) {
	topo := NewTopology(TopologyHierarchical, 5, testLogger())
	_, _ = topo.AddNode("queen-1", RoleQueenNode)
	_, _ = topo.AddNode("worker-1", RoleWorkerNode)
	assert.Equal(t, "queen-1", topo.Leader())

	err := topo.RemoveNode("queen-1")
	require.NoError(t, err)
	leader, err := topo.ElectLeader()
	require.NoError(t, err)
	assert.Equal(t, "worker-1", leader)
}

func TestTopologyFindOptimalPathBFS(t *testing.T) {
	topo := NewTopology(TopologyMesh, 10, testLogger())
	_, _ = topo.AddNode("a", RolePeerNode)
	_, _ = topo.AddNode("b", RolePeerNode)
	_, _ = topo.AddNode("c", RolePeerNode)

	path := topo.FindOptimalPath("a", "c")
	assert.NotEmpty(t, path)
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "c", path[len(path)-1])
}

func TestTopologyRebalanceIdempotentWithinWindow(t *testing.T) {
	topo := NewTopology(TopologyHierarchical, 5, testLogger())
	_, _ = topo.AddNode("queen-1", RoleQueenNode)

	did := topo.Rebalance()
	assert.True(t, did)
	did = topo.Rebalance()
	assert.False(t, did, "second rebalance within 5s should be a no-op")
}

func TestTopologyEdgesReferenceExistingNodes(t *testing.T) {
	topo := NewTopology(TopologyMesh, 10, testLogger())
	for i := 0; i < 4; i++ {
		_, _ = topo.AddNode(string(rune('a'+i)), RolePeerNode)
	}
	nodes, edges, _, _ := topo.Snapshot()
	ids := make(map[string]bool)
	for _, n := range nodes {
		ids[n.ID] = true
	}
	for _, e := range edges {
		assert.True(t, ids[e.From])
		assert.True(t, ids[e.To])
	}
}
