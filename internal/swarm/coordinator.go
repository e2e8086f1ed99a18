package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/metrics"
	"github.com/kooshapari/swarmcoordinator/pkg/logger"
)

// CoordinatorState is the top-level lifecycle state machine:
// Initialize -> Running -> (Paused <-> Running) -> ShuttingDown -> Stopped.
type CoordinatorState string

const (
	StateCreated      CoordinatorState = "created"
	StateRunning      CoordinatorState = "running"
	StatePaused       CoordinatorState = "paused"
	StateShuttingDown CoordinatorState = "shutting_down"
	StateStopped      CoordinatorState = "stopped"
)

// domainForAgentNumber maps the well-known 15-agent numbering to domains.
func domainForAgentNumber(n int) (Domain, error) {
	switch {
	case n == 1:
		return DomainQueen, nil
	case n >= 2 && n <= 4:
		return DomainSecurity, nil
	case n >= 5 && n <= 9:
		return DomainCore, nil
	case n >= 10 && n <= 12:
		return DomainIntegration, nil
	case n >= 13 && n <= 15:
		return DomainSupport, nil
	default:
		return "", preconditionErr("invalid_agent_number", "agent number out of range [1,15]")
	}
}

// defaultTypeForDomain picks a representative agent type for hierarchy
// spawning; within "core" types rotate to give a realistic mixed fleet.
func defaultTypeForDomain(domain Domain, numberInDomain int) AgentType {
	switch domain {
	case DomainQueen:
		return AgentQueen
	case DomainSecurity:
		return AgentSpecialist
	case DomainCore:
		rotation := []AgentType{AgentCoder, AgentTester, AgentResearcher, AgentAnalyst, AgentReviewer}
		return rotation[numberInDomain%len(rotation)]
	case DomainIntegration:
		rotation := []AgentType{AgentCoordinator, AgentArchitect, AgentCoordinator}
		return rotation[numberInDomain%len(rotation)]
	case DomainSupport:
		rotation := []AgentType{AgentDocumenter, AgentMonitor, AgentOptimizer}
		return rotation[numberInDomain%len(rotation)]
	default:
		return AgentWorker
	}
}

func nodeRoleForType(t AgentType) NodeRole {
	switch t {
	case AgentQueen:
		return RoleQueenNode
	case AgentCoordinator:
		return RoleCoordinatorNode
	default:
		return RoleWorkerNode
	}
}

var taskTypePreferred = map[TaskType][]AgentType{
	TaskResearch:      {AgentResearcher},
	TaskAnalysis:      {AgentAnalyst, AgentResearcher},
	TaskCoding:        {AgentCoder},
	TaskTesting:       {AgentTester},
	TaskReview:        {AgentReviewer},
	TaskDocumentation: {AgentDocumenter},
	TaskCoordination:  {AgentCoordinator, AgentQueen},
	TaskConsensus:     {AgentCoordinator, AgentQueen},
	TaskCustom:        {AgentWorker},
}

func taskPriorityToMessagePriority(p TaskPriority) MessagePriority {
	switch p {
	case PriorityCritical:
		return MsgUrgent
	case PriorityHigh:
		return MsgHigh
	case PriorityLow, PriorityBackground:
		return MsgLow
	default:
		return MsgNormal
	}
}

// Coordinator is the top-level orchestrator (C5): it registers agents,
// submits/assigns tasks, routes by domain, and integrates topology,
// message bus, pools and consensus.
type Coordinator struct {
	cfg    Config
	logger *logrus.Logger

	topology  *Topology
	bus       *Bus
	consensus *Consensus
	events    *EventBus

	mu             sync.RWMutex
	state          CoordinatorState
	agents         map[string]*Agent
	tasks          map[string]*Task
	seq            int64
	agentDomainMap map[string]Domain
	domainPools    map[Domain]*Pool
	typeIndex      map[AgentType]map[string]struct{}
	domainQueues   map[Domain][]*Task
	taskAssignments map[string]string // taskKey -> agentID
	registrationOrder map[string]int64

	statsMu         sync.Mutex
	completedTasks  int64
	failedTasks     int64
	latencySamples  []float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator constructs a Coordinator in the Created state; call
// Initialize to start its background loops.
func NewCoordinator(cfg Config, logger *logrus.Logger) *Coordinator {
	events := NewEventBus(logger)
	bus := NewBus(cfg.MessageBusMaxQueueSize, logger, events)
	topology := NewTopology(cfg.TopologyType, cfg.MaxAgents, logger)

	c := &Coordinator{
		cfg:               cfg,
		logger:            logger,
		topology:          topology,
		bus:               bus,
		events:            events,
		state:             StateCreated,
		agents:            make(map[string]*Agent),
		tasks:             make(map[string]*Task),
		agentDomainMap:    make(map[string]Domain),
		domainPools:       make(map[Domain]*Pool),
		typeIndex:         make(map[AgentType]map[string]struct{}),
		domainQueues:      make(map[Domain][]*Task),
		taskAssignments:   make(map[string]string),
		registrationOrder: make(map[string]int64),
	}
	c.consensus = NewConsensus(c.voterWeight, bus, events, logger)
	for _, d := range []Domain{DomainQueen, DomainSecurity, DomainCore, DomainIntegration, DomainSupport} {
		domain := d
		factory := func() *Agent { return c.spawnPoolAgent(domain) }
		c.domainPools[domain] = NewPool(string(domain), DefaultPoolConfig(cfg.PoolMinSize, cfg.PoolMaxSize), factory, logger, events)
	}
	return c
}

// spawnPoolAgent fully registers a new agent for domain d and returns it
// without touching any pool's internal state. It backs every domain pool's
// AgentFactory, so it must never call back into Pool.Add/Acquire/Release —
// pool.acquire/scaleLocked/CheckHealth invoke it while already holding the
// pool's own lock.
func (c *Coordinator) spawnPoolAgent(d Domain) *Agent {
	c.mu.Lock()
	if len(c.agents) >= c.cfg.MaxAgents {
		c.mu.Unlock()
		return nil
	}
	domainCount := 0
	for _, dd := range c.agentDomainMap {
		if dd == d {
			domainCount++
		}
	}
	typ := defaultTypeForDomain(d, domainCount)
	id := NewID()
	now := time.Now()
	agent := &Agent{
		ID: id, SwarmID: c.cfg.SwarmID, Type: typ, Domain: d,
		Status: StatusIdle, Capabilities: defaultCapabilitiesForNumber(domainCount),
		Metrics:       AgentMetrics{SuccessRate: 1.0, Health: 1.0, LastActivity: now},
		Health:        1.0,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	c.agents[id] = agent
	c.agentDomainMap[id] = d
	if c.typeIndex[typ] == nil {
		c.typeIndex[typ] = make(map[string]struct{})
	}
	c.typeIndex[typ][id] = struct{}{}
	c.registrationOrder[id] = int64(len(c.registrationOrder))
	c.mu.Unlock()

	if _, err := c.topology.AddNode(id, nodeRoleForType(typ)); err != nil {
		c.logger.WithError(err).Warn("pool factory: failed to add topology node for auto-spawned agent")
	}
	c.bus.Subscribe(id, func(m Message) { c.handleAgentMessage(id, m) })
	c.consensus.RegisterVoter(id)
	logger.WithAgent(c.logger, id, string(d)).Debug("pool auto-spawned agent")
	c.events.Publish(Event{Type: "agent.auto_spawned", Source: "pool", Data: map[string]interface{}{"agentId": id, "domain": string(d)}})
	return agent
}

func (c *Coordinator) voterWeight(voter string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[voter]
	if !ok {
		return 0
	}
	return a.Metrics.SuccessRate * a.Health
}

func taskKey(id TaskID) string {
	return fmt.Sprintf("%s-%d", id.SwarmID, id.Sequence)
}

// Initialize starts topology/bus/consensus and the background heartbeat,
// health-check and metrics loops. Fails if already initialized.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	if c.state != StateCreated {
		c.mu.Unlock()
		return preconditionErr("already_initialized", "coordinator already initialized")
	}
	c.state = StateRunning
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.bus.Subscribe("coordinator", func(m Message) { c.handleAgentMessage(m.From, m) })
	c.bus.Start()

	c.wg.Add(3)
	go c.heartbeatLoop()
	go c.healthLoop()
	go c.metricsLoop()

	logger.WithSwarm(c.logger, c.cfg.SwarmID).Info("coordinator initialized")
	c.events.Publish(Event{Type: "swarm.initialized", Source: "coordinator"})
	c.events.Publish(Event{Type: "swarm.started", Source: "coordinator"})
	return nil
}

// Shutdown drains in-flight tasks best-effort and tears down subsystems.
// Safe to call twice.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	if c.state == StateStopped || c.state == StateShuttingDown {
		c.mu.Unlock()
		return nil
	}
	c.state = StateShuttingDown
	for _, t := range c.tasks {
		if t.Status != TaskCompleted && t.Status != TaskFailed && t.Status != TaskCancelled {
			t.Status = TaskCancelled
		}
	}
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.bus.Stop()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	logger.WithSwarm(c.logger, c.cfg.SwarmID).Info("coordinator stopped")
	c.events.Publish(Event{Type: "swarm.stopped", Source: "coordinator"})
	return nil
}

// Pause transitions Running -> Paused: background loops keep running but
// new task assignment is suspended.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return preconditionErr("not_running", "coordinator is not running")
	}
	c.state = StatePaused
	c.events.Publish(Event{Type: "swarm.paused", Source: "coordinator"})
	return nil
}

// Resume transitions Paused -> Running.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return preconditionErr("not_paused", "coordinator is not paused")
	}
	c.state = StateRunning
	c.events.Publish(Event{Type: "swarm.resumed", Source: "coordinator"})
	return nil
}

func (c *Coordinator) State() CoordinatorState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RegisterAgent assigns an id, adds a topology node, subscribes to the
// message bus and registers as a consensus voter.
func (c *Coordinator) RegisterAgent(typ AgentType, domain Domain, caps Capabilities) (string, error) {
	c.mu.Lock()
	if len(c.agents) >= c.cfg.MaxAgents {
		c.mu.Unlock()
		return "", capacityErr("max_agents", "maximum agent count reached")
	}
	id := NewID()
	now := time.Now()
	agent := &Agent{
		ID: id, SwarmID: c.cfg.SwarmID, Type: typ, Domain: domain,
		Status: StatusIdle, Capabilities: caps,
		Metrics:       AgentMetrics{SuccessRate: 1.0, Health: 1.0, LastActivity: now},
		Health:        1.0,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}
	c.agents[id] = agent
	c.agentDomainMap[id] = domain
	if c.typeIndex[typ] == nil {
		c.typeIndex[typ] = make(map[string]struct{})
	}
	c.typeIndex[typ][id] = struct{}{}
	c.registrationOrder[id] = int64(len(c.registrationOrder))
	pool := c.domainPools[domain]
	c.mu.Unlock()

	if _, err := c.topology.AddNode(id, nodeRoleForType(typ)); err != nil {
		return "", err
	}
	c.bus.Subscribe(id, func(m Message) { c.handleAgentMessage(id, m) })
	c.consensus.RegisterVoter(id)
	if pool != nil {
		pool.Add(agent)
	}
	logger.WithAgent(c.logger, id, string(domain)).Info("agent registered")
	c.events.Publish(Event{Type: "agent.joined", Source: "coordinator", Data: map[string]interface{}{"agentId": id, "domain": string(domain)}})
	return id, nil
}

// RegisterAgentWithDomain maps the well-known 1..15 agent numbering to its
// domain and registers the agent.
func (c *Coordinator) RegisterAgentWithDomain(agentNumber int, caps Capabilities) (agentID string, domain Domain, err error) {
	domain, err = domainForAgentNumber(agentNumber)
	if err != nil {
		return "", "", err
	}
	var numberInDomain int
	switch domain {
	case DomainSecurity:
		numberInDomain = agentNumber - 2
	case DomainCore:
		numberInDomain = agentNumber - 5
	case DomainIntegration:
		numberInDomain = agentNumber - 10
	case DomainSupport:
		numberInDomain = agentNumber - 13
	}
	typ := defaultTypeForDomain(domain, numberInDomain)
	agentID, err = c.RegisterAgent(typ, domain, caps)
	return agentID, domain, err
}

// SpawnAgent is the loose-request counterpart to RegisterAgent/
// RegisterAgentWithDomain: callers supply either an agentNumber (the
// well-known 1..15 mapping) or an explicit type/domain pair, with an
// optional display name.
func (c *Coordinator) SpawnAgent(typ AgentType, name string, domain Domain, agentNumber int, caps Capabilities) (agentID string, resolvedDomain Domain, status AgentStatus, spawned bool, err error) {
	if agentNumber > 0 {
		agentID, resolvedDomain, err = c.RegisterAgentWithDomain(agentNumber, caps)
	} else {
		if domain == "" {
			return "", "", "", false, preconditionErr("missing_domain", "domain or agentNumber is required")
		}
		if typ == "" {
			typ = defaultTypeForDomain(domain, 0)
		}
		agentID, err = c.RegisterAgent(typ, domain, caps)
		resolvedDomain = domain
	}
	if err != nil {
		return "", "", "", false, err
	}

	if name != "" {
		c.mu.Lock()
		if agent, ok := c.agents[agentID]; ok {
			agent.Name = name
		}
		c.mu.Unlock()
	}
	return agentID, resolvedDomain, StatusIdle, true, nil
}

// UnregisterAgent cancels any current task, removes the agent from
// topology, unsubscribes it, and drops it from consensus.
func (c *Coordinator) UnregisterAgent(agentID string) error {
	c.mu.Lock()
	agent, ok := c.agents[agentID]
	if !ok {
		c.mu.Unlock()
		return preconditionErr("unknown_agent", "no such agent: "+agentID)
	}
	domain := c.agentDomainMap[agentID]
	currentTask := agent.CurrentTask
	delete(c.agents, agentID)
	delete(c.agentDomainMap, agentID)
	delete(c.typeIndex[agent.Type], agentID)
	pool := c.domainPools[domain]
	c.mu.Unlock()

	if currentTask != "" {
		_ = c.CancelTask(currentTask)
	}
	_ = c.topology.RemoveNode(agentID)
	c.bus.Unsubscribe(agentID)
	c.consensus.UnregisterVoter(agentID)
	if pool != nil {
		pool.Remove(agentID)
	}
	logger.WithAgent(c.logger, agentID, string(domain)).Info("agent unregistered")
	c.events.Publish(Event{Type: "agent.left", Source: "coordinator", Data: map[string]interface{}{"agentId": agentID}})
	return nil
}

// TerminateAgent removes agentID like UnregisterAgent, but instead of
// cancelling its current task outright, requeues that task at the front of
// its domain queue so another agent in the domain picks it up. If force is
// false and gracePeriodMs is set, termination waits that long first to give
// the agent a chance to finish on its own.
func (c *Coordinator) TerminateAgent(agentID string, force bool, reason string, gracePeriodMs int64) (terminated bool, resolvedReason string, tasksReassigned int, err error) {
	c.mu.Lock()
	agent, ok := c.agents[agentID]
	if !ok {
		c.mu.Unlock()
		return false, "", 0, preconditionErr("unknown_agent", "no such agent: "+agentID)
	}
	domain := c.agentDomainMap[agentID]
	currentTask := agent.CurrentTask
	c.mu.Unlock()

	if currentTask != "" && !force && gracePeriodMs > 0 {
		time.Sleep(time.Duration(gracePeriodMs) * time.Millisecond)
	}

	if currentTask != "" {
		c.mu.Lock()
		if task, ok := c.tasks[currentTask]; ok &&
			task.Status != TaskCompleted && task.Status != TaskFailed && task.Status != TaskCancelled {
			task.Status = TaskQueued
			task.StartedAt = nil
			delete(c.taskAssignments, currentTask)
			c.domainQueues[domain] = append([]*Task{task}, c.domainQueues[domain]...)
			tasksReassigned = 1
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	delete(c.agents, agentID)
	delete(c.agentDomainMap, agentID)
	delete(c.typeIndex[agent.Type], agentID)
	pool := c.domainPools[domain]
	c.mu.Unlock()

	_ = c.topology.RemoveNode(agentID)
	c.bus.Unsubscribe(agentID)
	c.consensus.UnregisterVoter(agentID)
	if pool != nil {
		pool.Remove(agentID)
	}

	resolvedReason = reason
	if resolvedReason == "" {
		resolvedReason = "terminated"
	}
	logger.WithAgent(c.logger, agentID, string(domain)).
		WithField("reassigned", tasksReassigned).
		Info("agent terminated: " + resolvedReason)
	c.events.Publish(Event{Type: "agent.terminated", Source: "coordinator", Data: map[string]interface{}{
		"agentId": agentID, "reason": resolvedReason, "force": force,
	}})

	if tasksReassigned > 0 {
		c.drainDomainQueue(domain)
	}
	return true, resolvedReason, tasksReassigned, nil
}

// SpawnFullHierarchy deterministically registers one agent per number
// 1..15, applying the domain mapping with per-domain default capabilities.
func (c *Coordinator) SpawnFullHierarchy() ([]string, error) {
	ids := make([]string, 0, 15)
	for n := 1; n <= 15; n++ {
		id, _, err := c.RegisterAgentWithDomain(n, defaultCapabilitiesForNumber(n))
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	_, err := c.topology.ElectLeader()
	return ids, err
}

func defaultCapabilitiesForNumber(n int) Capabilities {
	return Capabilities{
		MaxConcurrentTasks: 3,
		MaxMemoryUsage:     512 * 1024 * 1024,
		MaxExecutionTime:   60000,
		Reliability:        0.9,
		Speed:              0.8,
		Quality:            0.85,
	}
}

// SubmitTask allocates a monotonically increasing sequence, stores the
// task, then tries to assign it.
func (c *Coordinator) SubmitTask(typ TaskType, priority TaskPriority, domain Domain, input map[string]interface{}, deps []string) (string, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	id := TaskID{SwarmID: c.cfg.SwarmID, Sequence: seq, Priority: priority}
	task := &Task{
		ID: id, Type: typ, Priority: priority, Status: TaskCreated,
		CreatedAt: time.Now(), MaxRetries: 3, Timeout: c.cfg.taskTimeout(),
		Input: input, Dependencies: deps, Domain: domain,
	}
	key := taskKey(id)
	if len(deps) > 0 {
		task.Status = TaskQueued
	}
	c.tasks[key] = task
	c.mu.Unlock()

	c.events.Publish(Event{Type: "task.created", Source: "coordinator", Data: map[string]interface{}{"taskId": key}})

	if c.dependenciesSatisfied(task) {
		_, _ = c.AssignTaskToDomain(key, domain)
	}
	return key, nil
}

func (c *Coordinator) dependenciesSatisfied(t *Task) bool {
	if len(t.Dependencies) == 0 {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, dep := range t.Dependencies {
		d, ok := c.tasks[dep]
		if !ok || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// AssignTaskToDomain acquires an agent from the domain pool; if none is
// available it enqueues the task for that domain and returns no agent.
func (c *Coordinator) AssignTaskToDomain(taskKeyStr string, domain Domain) (string, error) {
	c.mu.Lock()
	task, ok := c.tasks[taskKeyStr]
	if !ok {
		c.mu.Unlock()
		return "", preconditionErr("unknown_task", "no such task: "+taskKeyStr)
	}
	if !c.dependenciesSatisfied(task) {
		task.Status = TaskQueued
		c.mu.Unlock()
		return "", dependencyErr("deps_unsatisfied", "task dependencies not completed: "+taskKeyStr)
	}
	pool := c.domainPools[domain]
	c.mu.Unlock()

	var agent *Agent
	if pool != nil {
		agent = pool.AcquireForTask(task)
	}
	if agent == nil {
		c.mu.Lock()
		task.Status = TaskQueued
		c.domainQueues[domain] = append(c.domainQueues[domain], task)
		c.mu.Unlock()
		return "", unavailableErr("no_agent", "no agent available in domain: "+string(domain))
	}

	c.mu.Lock()
	agent.Status = StatusBusy
	agent.CurrentTask = taskKeyStr
	agent.Workload = 1.0
	task.Status = TaskAssigned
	now := time.Now()
	task.StartedAt = &now
	c.taskAssignments[taskKeyStr] = agent.ID
	c.mu.Unlock()

	msgPriority := taskPriorityToMessagePriority(task.Priority)
	_, err := c.bus.Send(Message{
		Type: MsgTaskAssign, From: "coordinator", To: agent.ID,
		Payload:     map[string]interface{}{"taskId": taskKeyStr, "task": *task},
		Priority:    msgPriority,
		RequiresAck: true,
		TTLMs:       task.Timeout.Milliseconds(),
	})
	if err != nil {
		return "", err
	}
	c.events.Publish(Event{Type: "task.assigned", Source: "coordinator", Data: map[string]interface{}{"taskId": taskKeyStr, "agentId": agent.ID}})
	return agent.ID, nil
}

// ParallelResult is a single task's outcome from ExecuteParallel.
type ParallelResult struct {
	TaskKey string
	Success bool
	Output  map[string]interface{}
	Err     error
}

// ExecuteParallel submits every (task,domain) pair, dispatches each via
// AssignTaskToDomain, then awaits completion per task. Failures are
// per-task; one task's failure never aborts the others.
func (c *Coordinator) ExecuteParallel(items []struct {
	Type     TaskType
	Priority TaskPriority
	Domain   Domain
	Input    map[string]interface{}
}) []ParallelResult {
	results := make([]ParallelResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item struct {
			Type     TaskType
			Priority TaskPriority
			Domain   Domain
			Input    map[string]interface{}
		}) {
			defer wg.Done()
			key, err := c.SubmitTask(item.Type, item.Priority, item.Domain, item.Input, nil)
			if err != nil {
				results[i] = ParallelResult{TaskKey: key, Err: err}
				return
			}
			out, success, err := c.awaitTask(key, c.cfg.taskTimeout())
			results[i] = ParallelResult{TaskKey: key, Success: success, Output: out, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) awaitTask(key string, timeout time.Duration) (map[string]interface{}, bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.RLock()
		task, ok := c.tasks[key]
		c.mu.RUnlock()
		if !ok {
			return nil, false, preconditionErr("unknown_task", "no such task: "+key)
		}
		switch task.Status {
		case TaskCompleted:
			return task.Output, true, nil
		case TaskFailed, TaskCancelled, TaskTimeout:
			return task.Output, false, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil, false, timeoutErr("task_timeout", "task did not complete in time: "+key)
}

// CancelTask notifies the assigned agent, releases it, and marks the task
// cancelled.
func (c *Coordinator) CancelTask(key string) error {
	c.mu.Lock()
	task, ok := c.tasks[key]
	if !ok {
		c.mu.Unlock()
		return preconditionErr("unknown_task", "no such task: "+key)
	}
	agentID := c.taskAssignments[key]
	task.Status = TaskCancelled
	c.mu.Unlock()

	if agentID != "" {
		_, _ = c.bus.Send(Message{
			Type: MsgTaskFail, From: "coordinator", To: agentID,
			Payload: map[string]interface{}{"taskId": key, "reason": "cancelled"},
			Priority: MsgHigh, TTLMs: 5000,
		})
		c.releaseAgent(agentID)
	}
	return nil
}

func (c *Coordinator) releaseAgent(agentID string) {
	c.mu.Lock()
	agent, ok := c.agents[agentID]
	if !ok {
		c.mu.Unlock()
		return
	}
	agent.Status = StatusIdle
	agent.CurrentTask = ""
	agent.Workload = 0
	domain := c.agentDomainMap[agentID]
	pool := c.domainPools[domain]
	c.mu.Unlock()
	if pool != nil {
		pool.Release(agentID)
	}
	c.drainDomainQueue(domain)
}

func (c *Coordinator) drainDomainQueue(domain Domain) {
	c.mu.Lock()
	queue := c.domainQueues[domain]
	if len(queue) == 0 {
		c.mu.Unlock()
		return
	}
	next := queue[0]
	c.domainQueues[domain] = queue[1:]
	key := taskKey(next.ID)
	c.mu.Unlock()
	_, _ = c.AssignTaskToDomain(key, domain)
}

// ProposeConsensus is a thin pass-through with the coordinator as proposer.
func (c *Coordinator) ProposeConsensus(value interface{}, algo ConsensusAlgorithm, decisionType string) (*ConsensusResult, error) {
	p, err := c.consensus.Propose(value, "coordinator", algo, decisionType, false, 0)
	if err != nil {
		return nil, err
	}
	return c.consensus.AwaitConsensus(p.ID)
}

// BroadcastMessage is a thin pass-through with the coordinator as origin.
func (c *Coordinator) BroadcastMessage(payload map[string]interface{}, priority MessagePriority) {
	c.bus.Broadcast(Message{Type: MsgBroadcast, From: "coordinator", Payload: payload, Priority: priority, TTLMs: 10000})
}

// scoreAgentForTask implements the task-agent scoring fallback used when
// picking an agent from a domain pool without an explicit assignment.
func scoreAgentForTask(task *Task, agent *Agent, registrationOrder int64) float64 {
	score := 100.0
	for _, preferred := range taskTypePreferred[task.Type] {
		if agent.Type == preferred {
			score += 50
			break
		}
	}
	score -= 20 * agent.Workload
	score *= agent.Health
	score += 10 * agent.Metrics.SuccessRate
	score -= (agent.Metrics.AverageExecutionTime / 60000) * 5
	return score
}

// handleAgentMessage processes inbound agent responses.
func (c *Coordinator) handleAgentMessage(agentID string, m Message) {
	switch m.Type {
	case MsgTaskComplete:
		c.onTaskComplete(agentID, m)
	case MsgTaskFail:
		c.onTaskFail(agentID, m)
	case MsgHeartbeat:
		c.onHeartbeat(agentID, m)
	case MsgStatusUpdate:
		c.onStatusUpdate(agentID, m)
	}
	if m.RequiresAck {
		c.bus.Acknowledge(Ack{MessageID: m.ID, Receiver: agentID, Status: AckOK})
	}
}

func (c *Coordinator) onTaskComplete(agentID string, m Message) {
	key, _ := m.Payload["taskId"].(string)
	output, _ := m.Payload["result"].(map[string]interface{})

	c.mu.Lock()
	task, ok := c.tasks[key]
	agent := c.agents[agentID]
	if !ok {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	task.Status = TaskCompleted
	task.CompletedAt = &now
	task.Output = output
	if agent != nil && task.StartedAt != nil {
		durationMs := float64(now.Sub(*task.StartedAt).Milliseconds())
		agent.Metrics.AverageExecutionTime = agent.Metrics.AverageExecutionTime*0.9 + durationMs*0.1
		agent.Metrics.TasksCompleted++
		agent.Metrics.MessagesProcessed++
		c.recordLatency(durationMs)
		metrics.TaskLatency.Observe(durationMs / 1000)
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	c.completedTasks++
	c.statsMu.Unlock()
	metrics.TasksCompleted.Inc()

	c.releaseAgent(agentID)
	c.events.Publish(Event{Type: "task.completed", Source: "coordinator", Data: map[string]interface{}{"taskId": key, "agentId": agentID}})
}

func (c *Coordinator) onTaskFail(agentID string, m Message) {
	key, _ := m.Payload["taskId"].(string)

	c.mu.Lock()
	task, ok := c.tasks[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if task.Status == TaskCancelled {
		c.mu.Unlock()
		c.releaseAgent(agentID)
		return
	}
	if agent := c.agents[agentID]; agent != nil {
		agent.Metrics.TasksFailed++
	}
	retry := task.Retries < task.MaxRetries
	if retry {
		task.Retries++
		task.Status = TaskQueued
	} else {
		task.Status = TaskFailed
	}
	domain := task.Domain
	c.mu.Unlock()

	c.releaseAgent(agentID)

	if retry {
		_, _ = c.AssignTaskToDomain(key, domain)
	} else {
		c.statsMu.Lock()
		c.failedTasks++
		c.statsMu.Unlock()
		metrics.TasksFailed.Inc()
		c.events.Publish(Event{Type: "task.failed", Source: "coordinator", Data: map[string]interface{}{"taskId": key}})
	}
}

func (c *Coordinator) onHeartbeat(agentID string, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agent, ok := c.agents[agentID]
	if !ok {
		return
	}
	agent.LastHeartbeat = time.Now()
	if h, ok := m.Payload["health"].(float64); ok {
		agent.Health = h
	}
}

func (c *Coordinator) onStatusUpdate(agentID string, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agent, ok := c.agents[agentID]
	if !ok {
		return
	}
	if s, ok := m.Payload["status"].(string); ok {
		agent.Status = AgentStatus(s)
	}
}

func (c *Coordinator) recordLatency(ms float64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.latencySamples = append(c.latencySamples, ms)
	if len(c.latencySamples) > maxLatencySamples {
		c.latencySamples = c.latencySamples[1:]
	}
}

// LatencyPercentiles reports p50/p99 of the bounded coordination latency
// sample window.
func (c *Coordinator) LatencyPercentiles() (p50, p99 float64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return percentile(c.latencySamples, 0.50), percentile(c.latencySamples, 0.99)
}

func (c *Coordinator) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkAgentLiveness()
		}
	}
}

func (c *Coordinator) checkAgentLiveness() {
	now := time.Now()
	stale := 3 * c.cfg.heartbeatInterval()

	type recoveredAgent struct {
		id     string
		domain Domain
		task   string
	}

	c.mu.Lock()
	var recovered []recoveredAgent
	for id, agent := range c.agents {
		if agent.Status == StatusTerminated {
			continue
		}
		if now.Sub(agent.LastHeartbeat) <= stale {
			continue
		}
		agent.Status = StatusError
		agent.Health -= 0.2
		if agent.Health < 0 {
			agent.Health = 0
		}
		if c.cfg.AutoRecovery && agent.Health <= 0.2 {
			current := agent.CurrentTask
			agent.Status = StatusIdle
			agent.Health = 1.0
			agent.LastHeartbeat = now
			agent.CurrentTask = ""
			agent.Workload = 0
			rec := recoveredAgent{id: id, domain: c.agentDomainMap[id]}
			if current != "" {
				if task, ok := c.tasks[current]; ok && task.Retries < task.MaxRetries {
					task.Retries++
					task.Status = TaskQueued
					rec.task = current
				}
			}
			recovered = append(recovered, rec)
		} else {
			c.events.Publish(Event{Type: "agent.unhealthy", Source: "coordinator", Data: map[string]interface{}{"agentId": id}})
		}
	}
	c.mu.Unlock()

	for _, rec := range recovered {
		if pool := c.domainPools[rec.domain]; pool != nil {
			pool.Release(rec.id)
		}
		c.events.Publish(Event{Type: "agent.recovered", Source: "coordinator", Data: map[string]interface{}{"agentId": rec.id}})
		if rec.task != "" {
			_, _ = c.AssignTaskToDomain(rec.task, rec.domain)
		}
		c.drainDomainQueue(rec.domain)
	}
}

func (c *Coordinator) healthLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.healthInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, pool := range c.domainPools {
				pool.CheckHealth(now)
			}
		}
	}
}

func (c *Coordinator) metricsLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.events.Publish(Event{Type: "metrics.tick", Source: "coordinator", Data: c.metricsSnapshot()})
		}
	}
}

func (c *Coordinator) metricsSnapshot() map[string]interface{} {
	c.statsMu.Lock()
	completed, failed := c.completedTasks, c.failedTasks
	p50, p99 := percentile(c.latencySamples, 0.50), percentile(c.latencySamples, 0.99)
	c.statsMu.Unlock()
	busStats := c.bus.Stats()
	c.mu.RLock()
	agentCount := len(c.agents)
	domainCounts := make(map[Domain]int, len(c.domainPools))
	for _, agent := range c.agents {
		domainCounts[agent.Domain]++
	}
	for domain := range c.domainPools {
		metrics.AgentsRegistered.WithLabelValues(string(domain)).Set(float64(domainCounts[domain]))
		metrics.TaskQueueDepth.WithLabelValues(string(domain)).Set(float64(len(c.domainQueues[domain])))
	}
	for domain, pool := range c.domainPools {
		total, _, busy := pool.Size()
		if total > 0 {
			metrics.PoolUtilization.WithLabelValues(string(domain)).Set(float64(busy) / float64(total))
		}
	}
	for id, agent := range c.agents {
		metrics.AgentHealth.WithLabelValues(id, string(agent.Domain)).Set(agent.Health)
	}
	c.mu.RUnlock()
	return map[string]interface{}{
		"completedTasks": completed,
		"failedTasks":    failed,
		"agents":         agentCount,
		"latencyP50Ms":   p50,
		"latencyP99Ms":   p99,
		"busEnqueued":    busStats.Enqueued,
		"busDelivered":   busStats.Delivered,
		"busDropped":     busStats.Dropped,
		"busFailed":      busStats.Failed,
	}
}

// GetStatus returns a coarse health snapshot.
func (c *Coordinator) GetStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]interface{}{
		"state":  c.state,
		"agents": len(c.agents),
		"tasks":  len(c.tasks),
		"leader": c.topology.Leader(),
	}
}

// GetMetrics returns the coordinator's performance metrics snapshot.
func (c *Coordinator) GetMetrics() map[string]interface{} {
	return c.metricsSnapshot()
}

// CoordinatorStateSnapshot is an immutable view returned by GetState.
type CoordinatorStateSnapshot struct {
	State      CoordinatorState
	Agents     []Agent
	Tasks      []Task
	Nodes      []Node
	Edges      []Edge
	Partitions []Partition
	Leader     string
}

// GetState returns a fully immutable snapshot of coordinator-owned state,
// never exposing the live maps.
func (c *Coordinator) GetState() CoordinatorStateSnapshot {
	c.mu.RLock()
	agents := make([]Agent, 0, len(c.agents))
	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		agents = append(agents, c.agents[id].Snapshot())
	}
	tasks := make([]Task, 0, len(c.tasks))
	keys := make([]string, 0, len(c.tasks))
	for k := range c.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tasks = append(tasks, c.tasks[k].Snapshot())
	}
	c.mu.RUnlock()

	nodes, edges, partitions, leader := c.topology.Snapshot()
	return CoordinatorStateSnapshot{
		State: c.State(), Agents: agents, Tasks: tasks,
		Nodes: nodes, Edges: edges, Partitions: partitions, Leader: leader,
	}
}

// Agent returns a snapshot of a single agent, or nil.
func (c *Coordinator) Agent(id string) *Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	if !ok {
		return nil
	}
	snap := a.Snapshot()
	return &snap
}

// Task returns a snapshot of a single task, or nil.
func (c *Coordinator) Task(key string) *Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[key]
	if !ok {
		return nil
	}
	snap := t.Snapshot()
	return &snap
}

// AgentsByDomain returns every agent id in a given domain.
func (c *Coordinator) AgentsByDomain(domain Domain) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, d := range c.agentDomainMap {
		if d == domain {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Bus exposes the coordinator's message bus for agent runtime wiring.
func (c *Coordinator) Bus() *Bus { return c.bus }

// Topology exposes the coordinator's topology manager.
func (c *Coordinator) Topology() *Topology { return c.topology }

// Consensus exposes the coordinator's consensus engine.
func (c *Coordinator) Consensus() *Consensus { return c.consensus }

// Events exposes the coordinator's event bus for telemetry subscribers.
func (c *Coordinator) Events() *EventBus { return c.events }

// DomainQueueDepth reports how many tasks are waiting for an agent in the
// given domain's queue.
func (c *Coordinator) DomainQueueDepth(domain Domain) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.domainQueues[domain])
}
