package swarm

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/metrics"
)

// roleRank orders structural roles for deterministic leader election in
// mesh/hybrid topologies: queen < coordinator < peer ≈ worker.
func roleRank(r NodeRole) int {
	switch r {
	case RoleQueenNode:
		return 0
	case RoleCoordinatorNode:
		return 1
	default:
		return 2
	}
}

// Topology owns the agent interconnection graph: nodes, edges, partitions
// and leader election. All mutation paths are serialized under one lock so
// that AddNode plus its edge/partition updates are atomic from the
// viewpoint of a snapshot read.
type Topology struct {
	mu                sync.RWMutex
	logger            *logrus.Logger
	typ               TopologyType
	maxAgents         int
	replicationFactor int

	nodeByID    map[string]*Node
	adjacency   map[string]map[string]struct{}
	roleIndex   map[NodeRole]map[string]struct{}
	edges       []Edge
	partitions  map[string]*Partition
	leader      string
	queenNode   string
	coordNode   string

	lastRebalance time.Time
	rng           *rand.Rand
}

// NewTopology constructs an empty topology of the given type.
func NewTopology(typ TopologyType, maxAgents int, logger *logrus.Logger) *Topology {
	return &Topology{
		logger:            logger,
		typ:               typ,
		maxAgents:         maxAgents,
		replicationFactor: 3,
		nodeByID:          make(map[string]*Node),
		adjacency:         make(map[string]map[string]struct{}),
		roleIndex:         make(map[NodeRole]map[string]struct{}),
		partitions:        make(map[string]*Partition),
		rng:               rand.New(rand.NewSource(1)),
	}
}

func (t *Topology) addAdjacency(a, b string) {
	if t.adjacency[a] == nil {
		t.adjacency[a] = make(map[string]struct{})
	}
	t.adjacency[a][b] = struct{}{}
}

func (t *Topology) indexRole(role NodeRole, id string) {
	if t.roleIndex[role] == nil {
		t.roleIndex[role] = make(map[string]struct{})
	}
	t.roleIndex[role][id] = struct{}{}
}

func (t *Topology) unindexRole(role NodeRole, id string) {
	delete(t.roleIndex[role], id)
}

// activeIDsLocked returns every currently-present node id (caller holds lock).
func (t *Topology) activeIDsLocked() []string {
	ids := make([]string, 0, len(t.nodeByID))
	for id := range t.nodeByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// initialConnectionsLocked computes AddNode's initial-connection policy.
func (t *Topology) initialConnectionsLocked(role NodeRole) []string {
	existing := t.activeIDsLocked()
	switch t.typ {
	case TopologyMesh:
		n := 10
		if len(existing) < n {
			n = len(existing)
		}
		return existing[:n]
	case TopologyHierarchical:
		if role == RoleQueenNode || t.queenNode == "" {
			return existing
		}
		if t.queenNode != "" {
			return []string{t.queenNode}
		}
		return nil
	case TopologyCentralized:
		if role == RoleCoordinatorNode || t.coordNode == "" {
			return existing
		}
		return []string{t.coordNode}
	case TopologyHybrid:
		seen := make(map[string]struct{})
		var conns []string
		for id := range t.roleIndex[RoleQueenNode] {
			conns = append(conns, id)
			seen[id] = struct{}{}
		}
		for id := range t.roleIndex[RoleCoordinatorNode] {
			if _, ok := seen[id]; !ok {
				conns = append(conns, id)
				seen[id] = struct{}{}
			}
		}
		n := 3
		if len(existing) < n {
			n = len(existing)
		}
		for _, id := range existing[:n] {
			if _, ok := seen[id]; !ok {
				conns = append(conns, id)
				seen[id] = struct{}{}
			}
		}
		return conns
	}
	return nil
}

// assignPartitionLocked implements mesh/hybrid partition assignment.
func (t *Topology) assignPartitionLocked(nodeID string) {
	if t.typ != TopologyMesh && t.typ != TopologyHybrid {
		return
	}
	bucket := 10
	if t.maxAgents > 0 {
		bucket = (t.maxAgents + 9) / 10
		if bucket < 1 {
			bucket = 1
		}
	}
	idx := len(t.nodeByID) / bucket
	pid := partitionID(idx)
	p, ok := t.partitions[pid]
	if !ok {
		p = &Partition{ID: pid, Leader: nodeID, ReplicaCount: 1}
		t.partitions[pid] = p
	}
	p.Nodes = append(p.Nodes, nodeID)
	if p.ReplicaCount = len(p.Nodes); p.ReplicaCount > t.replicationFactor {
		p.ReplicaCount = t.replicationFactor
	}
}

func partitionID(idx int) string {
	return "partition-" + itoa(idx)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// AddNode inserts a node for agentID with the requested structural role.
func (t *Topology) AddNode(agentID string, role NodeRole) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodeByID[agentID]; exists {
		return nil, preconditionErr("duplicate_node", "node already exists: "+agentID)
	}
	if t.maxAgents > 0 && len(t.nodeByID) >= t.maxAgents {
		return nil, capacityErr("topology_capacity", "topology at max agents")
	}
	if role == RoleQueenNode && t.queenNode != "" {
		return nil, preconditionErr("duplicate_queen", "a queen node already exists: "+t.queenNode)
	}
	if role == RoleCoordinatorNode && t.coordNode != "" {
		return nil, preconditionErr("duplicate_coordinator", "a coordinator node already exists: "+t.coordNode)
	}

	conns := t.initialConnectionsLocked(role)
	node := &Node{
		ID:          agentID,
		AgentID:     agentID,
		Role:        role,
		Status:      NodeSyncing,
		Connections: append([]string(nil), conns...),
		Metadata:    make(map[string]interface{}),
	}
	t.nodeByID[agentID] = node
	t.indexRole(role, agentID)

	for _, other := range conns {
		t.addAdjacency(agentID, other)
		t.addAdjacency(other, agentID)
		t.edges = append(t.edges, Edge{From: agentID, To: other, Weight: 1, Bidirectional: true, LatencyMs: 1})
		if on, ok := t.nodeByID[other]; ok {
			on.Connections = appendUnique(on.Connections, agentID)
		}
	}

	if role == RoleQueenNode {
		t.queenNode = agentID
	}
	if role == RoleCoordinatorNode {
		t.coordNode = agentID
	}

	t.assignPartitionLocked(agentID)
	node.Status = NodeActive

	if t.leader == "" {
		t.electLeaderLocked()
	}

	t.logger.WithFields(logrus.Fields{"node": agentID, "role": role, "topology": t.typ}).Debug("topology node added")
	return node.clone(), nil
}

func appendUnique(list []string, id string) []string {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

func (n *Node) clone() *Node {
	cp := *n
	cp.Connections = append([]string(nil), n.Connections...)
	return &cp
}

// RemoveNode removes agentID, all incident edges and partition membership,
// re-electing a leader if necessary.
func (t *Topology) RemoveNode(agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodeByID[agentID]
	if !ok {
		return preconditionErr("unknown_node", "no such node: "+agentID)
	}
	delete(t.nodeByID, agentID)
	t.unindexRole(node.Role, agentID)
	delete(t.adjacency, agentID)
	for _, peers := range t.adjacency {
		delete(peers, agentID)
	}
	for id, n := range t.nodeByID {
		n.Connections = removeID(n.Connections, agentID)
		t.nodeByID[id] = n
	}
	kept := t.edges[:0]
	for _, e := range t.edges {
		if e.From != agentID && e.To != agentID {
			kept = append(kept, e)
		}
	}
	t.edges = kept
	for _, p := range t.partitions {
		p.Nodes = removeID(p.Nodes, agentID)
		if p.Leader == agentID && len(p.Nodes) > 0 {
			p.Leader = p.Nodes[0]
		}
	}
	if t.queenNode == agentID {
		t.queenNode = ""
	}
	if t.coordNode == agentID {
		t.coordNode = ""
	}
	if t.leader == agentID {
		t.electLeaderLocked()
	}
	return nil
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, x := range list {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// UpdateNode patches role/status/connections/metadata with validation.
func (t *Topology) UpdateNode(agentID string, fn func(*Node)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodeByID[agentID]
	if !ok {
		return preconditionErr("unknown_node", "no such node: "+agentID)
	}
	oldRole := node.Role
	fn(node)
	if node.Role != oldRole {
		t.unindexRole(oldRole, agentID)
		t.indexRole(node.Role, agentID)
	}
	return nil
}

// ElectLeader re-elects and returns the current leader per topology type.
func (t *Topology) ElectLeader() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.electLeaderLocked()
}

func (t *Topology) electLeaderLocked() (string, error) {
	prev := t.leader
	defer func() {
		if t.leader != prev && t.leader != "" {
			metrics.TopologyLeaderChanges.Inc()
		}
	}()

	switch t.typ {
	case TopologyHierarchical:
		if t.queenNode != "" {
			t.leader = t.queenNode
			return t.leader, nil
		}
	case TopologyCentralized:
		if t.coordNode != "" {
			t.leader = t.coordNode
			return t.leader, nil
		}
	}
	var best *Node
	ids := t.activeIDsLocked()
	for _, id := range ids {
		n := t.nodeByID[id]
		if n.Status != NodeActive {
			continue
		}
		if best == nil || roleRank(n.Role) < roleRank(best.Role) ||
			(roleRank(n.Role) == roleRank(best.Role) && n.ID < best.ID) {
			best = n
		}
	}
	if best == nil {
		t.leader = ""
		return "", unavailableErr("no_active_nodes", "cannot elect leader: no active nodes")
	}
	t.leader = best.ID
	return t.leader, nil
}

// Rebalance applies the topology's repair policy; a no-op if called within
// 5s of the previous rebalance.
func (t *Topology) Rebalance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastRebalance) < 5*time.Second {
		return false
	}
	t.lastRebalance = time.Now()

	switch t.typ {
	case TopologyMesh:
		t.rebalanceMeshLocked()
	case TopologyHierarchical:
		t.rebalanceHierarchicalLocked()
	case TopologyCentralized:
		t.rebalanceCentralizedLocked()
	case TopologyHybrid:
		t.rebalanceHybridLocked()
	}
	return true
}

func (t *Topology) rebalanceMeshLocked() {
	ids := t.activeIDsLocked()
	n := len(ids)
	if n < 2 {
		return
	}
	target := 5
	if n-1 < target {
		target = n - 1
	}
	for _, id := range ids {
		for len(t.adjacency[id]) < target {
			candidate := ids[t.rng.Intn(n)]
			if candidate == id {
				continue
			}
			if _, linked := t.adjacency[id][candidate]; linked {
				continue
			}
			t.linkLocked(id, candidate)
		}
	}
}

func (t *Topology) linkLocked(a, b string) {
	t.addAdjacency(a, b)
	t.addAdjacency(b, a)
	t.edges = append(t.edges, Edge{From: a, To: b, Weight: 1, Bidirectional: true, LatencyMs: 1})
	if na, ok := t.nodeByID[a]; ok {
		na.Connections = appendUnique(na.Connections, b)
	}
	if nb, ok := t.nodeByID[b]; ok {
		nb.Connections = appendUnique(nb.Connections, a)
	}
}

func (t *Topology) rebalanceHierarchicalLocked() {
	if t.queenNode == "" {
		ids := t.activeIDsLocked()
		if len(ids) == 0 {
			return
		}
		first := t.nodeByID[ids[0]]
		t.unindexRole(first.Role, first.ID)
		first.Role = RoleQueenNode
		t.indexRole(RoleQueenNode, first.ID)
		t.queenNode = first.ID
	}
	for id, n := range t.nodeByID {
		if id == t.queenNode {
			continue
		}
		if _, ok := t.adjacency[id][t.queenNode]; !ok {
			t.linkLocked(id, t.queenNode)
		}
		t.nodeByID[id] = n
	}
}

func (t *Topology) rebalanceCentralizedLocked() {
	if t.coordNode == "" {
		ids := t.activeIDsLocked()
		if len(ids) == 0 {
			return
		}
		first := t.nodeByID[ids[0]]
		t.unindexRole(first.Role, first.ID)
		first.Role = RoleCoordinatorNode
		t.indexRole(RoleCoordinatorNode, first.ID)
		t.coordNode = first.ID
	}
	for id, n := range t.nodeByID {
		if id == t.coordNode {
			continue
		}
		n.Connections = []string{t.coordNode}
	}
}

func (t *Topology) rebalanceHybridLocked() {
	ids := t.activeIDsLocked()
	var workers []string
	for _, id := range ids {
		if t.nodeByID[id].Role == RoleWorkerNode {
			workers = append(workers, id)
		}
	}
	for _, id := range workers {
		for len(t.peerEdgesLocked(id)) < 3 && len(workers) > 1 {
			candidate := workers[t.rng.Intn(len(workers))]
			if candidate == id {
				continue
			}
			if _, linked := t.adjacency[id][candidate]; linked {
				break
			}
			t.linkLocked(id, candidate)
			break
		}
		hasLeader := false
		for peer := range t.adjacency[id] {
			role := t.nodeByID[peer].Role
			if role == RoleQueenNode || role == RoleCoordinatorNode {
				hasLeader = true
				break
			}
		}
		if !hasLeader {
			var leaderID string
			for lid := range t.roleIndex[RoleCoordinatorNode] {
				leaderID = lid
				break
			}
			if leaderID == "" {
				for lid := range t.roleIndex[RoleQueenNode] {
					leaderID = lid
					break
				}
			}
			if leaderID != "" {
				t.linkLocked(id, leaderID)
			}
		}
	}
}

func (t *Topology) peerEdgesLocked(id string) []string {
	var out []string
	for peer := range t.adjacency[id] {
		if t.nodeByID[peer].Role == RoleWorkerNode {
			out = append(out, peer)
		}
	}
	return out
}

// GetNeighbors returns id's adjacency set in O(1).
func (t *Topology) GetNeighbors(id string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	peers := t.adjacency[id]
	out := make([]string, 0, len(peers))
	for p := range peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FindOptimalPath returns a BFS shortest path from `from` to `to`, or nil if
// disconnected.
func (t *Topology) FindOptimalPath(from, to string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if from == to {
		return []string{from}
	}
	if _, ok := t.nodeByID[from]; !ok {
		return nil
	}
	visited := map[string]bool{from: true}
	prev := map[string]string{}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbors := make([]string, 0, len(t.adjacency[cur]))
		for n := range t.adjacency[cur] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			prev[n] = cur
			if n == to {
				return reconstructPath(prev, from, to)
			}
			queue = append(queue, n)
		}
	}
	return nil
}

func reconstructPath(prev map[string]string, from, to string) []string {
	path := []string{to}
	cur := to
	for cur != from {
		cur = prev[cur]
		path = append([]string{cur}, path...)
	}
	return path
}

// Leader returns the currently elected leader id, if any.
func (t *Topology) Leader() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leader
}

// NodeCount returns the number of live nodes.
func (t *Topology) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodeByID)
}

// Snapshot returns an immutable copy of the whole graph, matching
// GetState's contract of never exposing the live maps.
func (t *Topology) Snapshot() (nodes []Node, edges []Edge, partitions []Partition, leader string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.nodeByID {
		nodes = append(nodes, *n.clone())
	}
	edges = append(edges, t.edges...)
	for _, p := range t.partitions {
		cp := *p
		cp.Nodes = append([]string(nil), p.Nodes...)
		partitions = append(partitions, cp)
	}
	leader = t.leader
	return
}

// Node returns a snapshot of a single node, or nil.
func (t *Topology) Node(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodeByID[id]
	if !ok {
		return nil
	}
	return n.clone()
}
