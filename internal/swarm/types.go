// Package swarm implements the Unified Swarm Coordinator: topology, message
// bus, agent pools, consensus, the top-level coordinator and the Queen
// strategic layer.
package swarm

import (
	"time"

	"github.com/google/uuid"
)

// AgentType enumerates the roles an agent can take on.
type AgentType string

const (
	AgentQueen       AgentType = "queen"
	AgentCoordinator AgentType = "coordinator"
	AgentResearcher  AgentType = "researcher"
	AgentCoder       AgentType = "coder"
	AgentTester      AgentType = "tester"
	AgentReviewer    AgentType = "reviewer"
	AgentDocumenter  AgentType = "documenter"
	AgentAnalyst     AgentType = "analyst"
	AgentOptimizer   AgentType = "optimizer"
	AgentSpecialist  AgentType = "specialist"
	AgentArchitect   AgentType = "architect"
	AgentWorker      AgentType = "worker"
	AgentMonitor     AgentType = "monitor"
)

// AgentStatus is the lifecycle status of an agent.
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusBusy       AgentStatus = "busy"
	StatusError      AgentStatus = "error"
	StatusTerminated AgentStatus = "terminated"
	StatusSyncing    AgentStatus = "syncing"
)

// Domain is a functional grouping of agents with a fixed numbering scheme.
type Domain string

const (
	DomainQueen       Domain = "queen"
	DomainSecurity    Domain = "security"
	DomainCore        Domain = "core"
	DomainIntegration Domain = "integration"
	DomainSupport     Domain = "support"
)

// Capabilities is a flat record of booleans, lists and numeric limits —
// never an inheritance tree, per the coordinator's typed-variant design.
type Capabilities struct {
	Languages          []string `json:"languages,omitempty"`
	Frameworks         []string `json:"frameworks,omitempty"`
	Domains            []string `json:"domains,omitempty"`
	Tools              []string `json:"tools,omitempty"`
	MaxConcurrentTasks int      `json:"maxConcurrentTasks"`
	MaxMemoryUsage     int64    `json:"maxMemoryUsage"`
	MaxExecutionTime   int64    `json:"maxExecutionTimeMs"`
	Reliability        float64  `json:"reliability"`
	Speed              float64  `json:"speed"`
	Quality            float64  `json:"quality"`
}

// AgentMetrics tracks the rolling performance of an agent.
type AgentMetrics struct {
	TasksCompleted       int64     `json:"tasksCompleted"`
	TasksFailed          int64     `json:"tasksFailed"`
	AverageExecutionTime float64   `json:"averageExecutionTimeMs"`
	SuccessRate          float64   `json:"successRate"`
	CPUUsage             float64   `json:"cpuUsage"`
	MemoryUsage          float64   `json:"memoryUsage"`
	MessagesProcessed    int64     `json:"messagesProcessed"`
	LastActivity         time.Time `json:"lastActivity"`
	ResponseTime         float64   `json:"responseTimeMs"`
	Health               float64   `json:"health"`
}

// Agent is the coordinator's view of a worker. The Coordinator owns this
// struct exclusively; callers only ever see immutable snapshots of it.
type Agent struct {
	ID             string       `json:"id"`
	SwarmID        string       `json:"swarmId"`
	Name           string       `json:"name,omitempty"`
	Type           AgentType    `json:"type"`
	Instance       int          `json:"instance"`
	Domain         Domain       `json:"domain"`
	Status         AgentStatus  `json:"status"`
	Capabilities   Capabilities `json:"capabilities"`
	Metrics        AgentMetrics `json:"metrics"`
	Workload       float64      `json:"workload"`
	Health         float64      `json:"health"`
	LastHeartbeat  time.Time    `json:"lastHeartbeat"`
	CurrentTask    string       `json:"currentTask,omitempty"`
	Connections    []string     `json:"connections"`
	TopologyRole   NodeRole     `json:"topologyRole"`
	RegisteredAt   time.Time    `json:"registeredAt"`
	registrationSeq int64       `json:"-"`
}

// Snapshot returns a value copy safe to hand to external callers.
func (a *Agent) Snapshot() Agent {
	cp := *a
	cp.Connections = append([]string(nil), a.Connections...)
	cp.Capabilities.Languages = append([]string(nil), a.Capabilities.Languages...)
	cp.Capabilities.Frameworks = append([]string(nil), a.Capabilities.Frameworks...)
	cp.Capabilities.Domains = append([]string(nil), a.Capabilities.Domains...)
	cp.Capabilities.Tools = append([]string(nil), a.Capabilities.Tools...)
	return cp
}

// TaskType enumerates the kinds of work a task performs.
type TaskType string

const (
	TaskResearch      TaskType = "research"
	TaskAnalysis      TaskType = "analysis"
	TaskCoding        TaskType = "coding"
	TaskTesting       TaskType = "testing"
	TaskReview        TaskType = "review"
	TaskDocumentation TaskType = "documentation"
	TaskCoordination  TaskType = "coordination"
	TaskConsensus     TaskType = "consensus"
	TaskCustom        TaskType = "custom"
)

// TaskPriority mirrors the message priority band names.
type TaskPriority string

const (
	PriorityCritical   TaskPriority = "critical"
	PriorityHigh       TaskPriority = "high"
	PriorityNormal     TaskPriority = "normal"
	PriorityLow        TaskPriority = "low"
	PriorityBackground TaskPriority = "background"
)

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskQueued    TaskStatus = "queued"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskTimeout   TaskStatus = "timeout"
)

// TaskID carries the swarm id and the strictly increasing sequence that
// orders tasks within it, plus the priority used for routing.
type TaskID struct {
	SwarmID  string       `json:"swarmId"`
	Sequence int64        `json:"sequence"`
	Priority TaskPriority `json:"priority"`
}

// Task is the coordinator's view of a unit of work.
type Task struct {
	ID           TaskID                 `json:"id"`
	Type         TaskType               `json:"type"`
	Priority     TaskPriority           `json:"priority"`
	Status       TaskStatus             `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	AssignedTo   string                 `json:"assignedTo,omitempty"`
	StartedAt    *time.Time             `json:"startedAt,omitempty"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
	Retries      int                    `json:"retries"`
	MaxRetries   int                    `json:"maxRetries"`
	Input        map[string]interface{} `json:"input,omitempty"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Timeout      time.Duration          `json:"timeout"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Domain       Domain                 `json:"domain,omitempty"`
}

func (t *Task) Snapshot() Task {
	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	return cp
}

// TopologyType selects the interconnection policy among agent nodes.
type TopologyType string

const (
	TopologyMesh         TopologyType = "mesh"
	TopologyHierarchical TopologyType = "hierarchical"
	TopologyCentralized  TopologyType = "centralized"
	TopologyHybrid       TopologyType = "hybrid"
)

// NodeRole is a topology node's structural role, distinct from AgentType.
type NodeRole string

const (
	RoleQueenNode       NodeRole = "queen"
	RoleCoordinatorNode NodeRole = "coordinator"
	RolePeerNode        NodeRole = "peer"
	RoleWorkerNode      NodeRole = "worker"
)

// NodeStatus is the liveness state of a topology node.
type NodeStatus string

const (
	NodeSyncing NodeStatus = "syncing"
	NodeActive  NodeStatus = "active"
	NodeDown    NodeStatus = "down"
)

// Node is a single vertex of the topology graph.
type Node struct {
	ID          string                 `json:"id"`
	AgentID     string                 `json:"agentId"`
	Role        NodeRole               `json:"role"`
	Status      NodeStatus             `json:"status"`
	Connections []string               `json:"connections"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a weighted, optionally bidirectional connection between nodes.
type Edge struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Weight        float64 `json:"weight"`
	Bidirectional bool    `json:"bidirectional"`
	LatencyMs     float64 `json:"latencyMs"`
}

// Partition groups nodes under a partition-local leader for sharding.
type Partition struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Leader       string   `json:"leader"`
	ReplicaCount int      `json:"replicaCount"`
}

// MessageType enumerates the inter-agent message kinds.
type MessageType string

const (
	MsgTaskAssign   MessageType = "task_assign"
	MsgTaskComplete MessageType = "task_complete"
	MsgTaskFail     MessageType = "task_fail"
	MsgHeartbeat    MessageType = "heartbeat"
	MsgStatusUpdate MessageType = "status_update"
	MsgBroadcast    MessageType = "broadcast"
	MsgDelegation   MessageType = "delegation"
)

// MessagePriority selects the delivery band.
type MessagePriority string

const (
	MsgUrgent MessagePriority = "urgent"
	MsgHigh   MessagePriority = "high"
	MsgNormal MessagePriority = "normal"
	MsgLow    MessagePriority = "low"
)

// priorityRank orders bands for queue draining: lower rank drains first.
func priorityRank(p MessagePriority) int {
	switch p {
	case MsgUrgent:
		return 0
	case MsgHigh:
		return 1
	case MsgNormal:
		return 2
	default:
		return 3
	}
}

// Message is the envelope exchanged over the message bus.
type Message struct {
	ID           string                 `json:"id"`
	Type         MessageType            `json:"type"`
	From         string                 `json:"from"`
	To           string                 `json:"to"`
	Payload      map[string]interface{} `json:"payload"`
	Priority     MessagePriority        `json:"priority"`
	RequiresAck  bool                   `json:"requiresAck"`
	TTLMs        int64                  `json:"ttlMs"`
	Timestamp    time.Time              `json:"timestamp"`
	retryCount   int
}

func (m Message) expired(now time.Time) bool {
	return now.After(m.Timestamp.Add(time.Duration(m.TTLMs) * time.Millisecond))
}

// Ack acknowledges receipt (or failure) of a previously delivered message.
type Ack struct {
	MessageID string
	Receiver  string
	Status    AckStatus
}

// AckStatus is the outcome a receiver reports for a delivered message.
type AckStatus string

const (
	AckOK   AckStatus = "ok"
	AckFail AckStatus = "fail"
)

// VoteDecision is a voter's response to a consensus proposal.
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
	VoteAbstain VoteDecision = "abstain"
)

// ConsensusAlgorithm selects the approval rule applied to collected votes.
type ConsensusAlgorithm string

const (
	AlgoMajority      ConsensusAlgorithm = "majority"
	AlgoSupermajority ConsensusAlgorithm = "supermajority"
	AlgoUnanimous     ConsensusAlgorithm = "unanimous"
	AlgoWeighted      ConsensusAlgorithm = "weighted"
	AlgoQueenOverride ConsensusAlgorithm = "queen-override"
)

// Proposal is a value submitted for collective decision-making.
type Proposal struct {
	ID             string
	Value          interface{}
	Proposer       string
	Algorithm      ConsensusAlgorithm
	DecisionType   string
	CreatedAt      time.Time
	Deadline       time.Time
	Threshold      float64
	RequireQuorum  bool
	RequiredQuorum float64
}

// Vote is a single voter's response to a proposal.
type Vote struct {
	ProposalID string
	Voter      string
	Decision   VoteDecision
	Weight     float64
}

// ConsensusResult is the terminal outcome of a consensus round.
type ConsensusResult struct {
	ProposalID       string
	Approved         bool
	ApprovalRate     float64
	ParticipationRate float64
	FinalValue       interface{}
	Rounds           int
	DurationMs       int64
}

// DelegationStrategy is the Queen's chosen execution shape for a plan.
type DelegationStrategy string

const (
	StrategySequential    DelegationStrategy = "sequential"
	StrategyParallel      DelegationStrategy = "parallel"
	StrategyPipeline      DelegationStrategy = "pipeline"
	StrategyFanOutFanIn   DelegationStrategy = "fan-out-fan-in"
	StrategyHybrid        DelegationStrategy = "hybrid"
)

// SubtaskAssignment pairs a decomposed subtask with its chosen agent.
type SubtaskAssignment struct {
	SubtaskID string
	AgentID   string
	Domain    Domain
}

// DelegationPlan is the Queen's concrete assignment proposal for a task.
type DelegationPlan struct {
	PlanID               string
	TaskID                string
	AnalysisID             string
	PrimaryAgent           string
	BackupAgents           []string
	ParallelAssignments    []SubtaskAssignment
	Strategy               DelegationStrategy
	EstimatedCompletionMs  int64
}

// Subtask is a decomposed unit of a larger task.
type Subtask struct {
	ID                  string
	Type                 TaskType
	EstimatedDurationMs   int64
	RequiredCapabilities  []string
	RecommendedDomain     Domain
	DependsOn             []string
}

// ResourceRequirements is the Queen's estimate of what a task will need.
type ResourceRequirements struct {
	MinAgents       int
	MaxAgents       int
	MemoryMb        float64
	CPUIntensive    bool
	IOIntensive     bool
	NetworkRequired bool
}

// PatternMatch is a single result from the neural pattern-matching call.
type PatternMatch struct {
	PatternID      string
	RelevanceScore float64
	SuccessRate    float64
}

// TaskAnalysis is the Queen's decomposition/estimation output for a task.
type TaskAnalysis struct {
	AnalysisID           string
	TaskID               string
	Complexity           float64
	EstimatedDurationMs  int64
	RequiredCapabilities []string
	RecommendedDomain    Domain
	Subtasks             []Subtask
	MatchedPatterns      []PatternMatch
	Resources            ResourceRequirements
	Confidence           float64
}

// NewID generates a fresh unique identifier.
func NewID() string {
	return uuid.NewString()
}
