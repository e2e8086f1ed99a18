package swarm

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/metrics"
)

var taskTypeBaseDurationMs = map[TaskType]int64{
	TaskResearch: 30000, TaskAnalysis: 20000, TaskCoding: 60000,
	TaskTesting: 30000, TaskReview: 15000, TaskDocumentation: 20000,
	TaskCoordination: 10000, TaskConsensus: 15000, TaskCustom: 30000,
}

var taskTypeComplexityBias = map[TaskType]float64{
	TaskCoding: 0.1, TaskAnalysis: 0.08, TaskResearch: 0.05, TaskCoordination: 0.05,
}

var taskTypePriorityFactor = map[TaskPriority]float64{
	PriorityCritical: 1.3, PriorityHigh: 1.15, PriorityNormal: 1.0,
	PriorityLow: 0.9, PriorityBackground: 0.8,
}

var taskTypeBaseCapabilities = map[TaskType][]string{
	TaskResearch:      {"research", "information_gathering"},
	TaskAnalysis:      {"analysis", "reasoning"},
	TaskCoding:        {"coding", "implementation"},
	TaskTesting:       {"testing", "validation"},
	TaskReview:        {"review", "quality_assurance"},
	TaskDocumentation: {"documentation", "writing"},
	TaskCoordination:  {"coordination", "planning"},
	TaskConsensus:     {"consensus", "decision_making"},
	TaskCustom:        {"general"},
}

var descriptionCapabilityScan = []string{"security", "performance", "architecture", "integration", "deploy"}

// DecisionRecord is the Queen's outcome-history entry, shaped after the
// teacher's HiveCoordinator.DecisionRecord.
type DecisionRecord struct {
	Timestamp     time.Time
	TaskKey       string
	Success       bool
	QualityScore  float64
	Effectiveness float64
}

const maxOutcomeHistory = 1000
const maxHealthHistory = 100
const maxQueenCaches = 500

// HealthReport is the Queen's periodic swarm-wide health assessment.
type HealthReport struct {
	Timestamp       time.Time
	OverallHealth   float64
	DomainHealth    map[Domain]float64
	AgentHealth     map[string]float64
	Bottlenecks     []string
	Alerts          []string
	Recommendations []string
}

// Queen is the strategic layer (C6): task analysis, decomposition, agent
// scoring, delegation, health oversight and outcome-driven learning.
type Queen struct {
	logger      *logrus.Logger
	coordinator *Coordinator
	neural      NeuralSystem
	memory      MemoryService

	mu              sync.Mutex
	outcomeHistory  *list.List
	healthHistory   *list.List
	analysisCache   map[string]*TaskAnalysis
	learningState   map[string]interface{}
}

// NewQueen wires a Queen strategic layer on top of an already-constructed
// Coordinator. neural/memory may be nil; all Queen integrations with them
// are best-effort and never block the coordinator's main loop.
func NewQueen(coordinator *Coordinator, neural NeuralSystem, memory MemoryService, logger *logrus.Logger) *Queen {
	return &Queen{
		logger:         logger,
		coordinator:    coordinator,
		neural:         neural,
		memory:         memory,
		outcomeHistory: list.New(),
		healthHistory:  list.New(),
		analysisCache:  make(map[string]*TaskAnalysis),
		learningState:  map[string]interface{}{"phase": "seed"},
	}
}

func simpleTask(taskType TaskType, description string) bool {
	if len(description) < 200 {
		return true
	}
	return taskType == TaskDocumentation || taskType == TaskReview
}

// decompose yields type-specific subtask templates for a given task type.
func decompose(taskType TaskType, baseDurationMs int64) []Subtask {
	mk := func(id string, typ TaskType, frac float64, caps []string, domain Domain, deps ...string) Subtask {
		return Subtask{ID: id, Type: typ, EstimatedDurationMs: int64(float64(baseDurationMs) * frac),
			RequiredCapabilities: caps, RecommendedDomain: domain, DependsOn: deps}
	}
	switch taskType {
	case TaskCoding:
		return []Subtask{
			mk("design", TaskAnalysis, 0.2, []string{"architecture"}, DomainCore),
			mk("implement", TaskCoding, 0.6, []string{"coding"}, DomainCore, "design"),
			mk("test", TaskTesting, 0.2, []string{"testing"}, DomainCore, "implement"),
		}
	case TaskTesting:
		return []Subtask{
			mk("analyze", TaskAnalysis, 0.4, []string{"analysis"}, DomainCore),
			mk("execute", TaskTesting, 0.6, []string{"testing"}, DomainCore, "analyze"),
		}
	case TaskResearch:
		return []Subtask{
			mk("gather", TaskResearch, 0.5, []string{"research"}, DomainCore),
			mk("analyze", TaskAnalysis, 0.5, []string{"analysis"}, DomainCore, "gather"),
		}
	case TaskCoordination:
		return []Subtask{
			mk("plan", TaskCoordination, 0.3, []string{"planning"}, DomainQueen),
			mk("execute", TaskCoordination, 0.7, []string{"coordination"}, DomainIntegration, "plan"),
		}
	default:
		return []Subtask{mk("execute", taskType, 1.0, []string{"general"}, DomainCore)}
	}
}

func recommendedDomain(caps []string, taskType TaskType) Domain {
	has := func(s string) bool {
		for _, c := range caps {
			if c == s {
				return true
			}
		}
		return false
	}
	switch {
	case has("security"):
		return DomainSecurity
	case has("coordination") || has("planning"):
		return DomainQueen
	case has("testing") || has("performance"):
		return DomainSupport
	case has("integration"):
		return DomainIntegration
	}
	switch taskType {
	case TaskCoordination, TaskConsensus:
		return DomainQueen
	case TaskTesting:
		return DomainSupport
	default:
		return DomainCore
	}
}

// Analyze computes a TaskAnalysis for the given task.
func (q *Queen) Analyze(ctx context.Context, task *Task) *TaskAnalysis {
	description := task.Description

	var subtasks []Subtask
	if !simpleTask(task.Type, description) {
		base := taskTypeBaseDurationMs[task.Type]
		if base == 0 {
			base = 30000
		}
		subtasks = decompose(task.Type, base)
	}

	caps := append([]string(nil), taskTypeBaseCapabilities[task.Type]...)
	lowerDesc := strings.ToLower(description)
	for _, kw := range descriptionCapabilityScan {
		if strings.Contains(lowerDesc, kw) {
			caps = appendUnique(caps, kw)
		}
	}

	totalDeps := 0
	for _, st := range subtasks {
		totalDeps += len(st.DependsOn)
	}
	complexity := 0.3 + 0.1*float64(len(subtasks)) + 0.05*float64(totalDeps)
	complexity *= taskTypePriorityFactor[task.Priority]
	complexity += taskTypeComplexityBias[task.Type]
	if dlen := len(description); dlen > 0 {
		bonus := float64(dlen) / 2000
		if bonus > 0.2 {
			bonus = 0.2
		}
		complexity += bonus
	}
	if complexity > 1.0 {
		complexity = 1.0
	}

	baseDuration := taskTypeBaseDurationMs[task.Type]
	if baseDuration == 0 {
		baseDuration = 30000
	}
	var subtaskTotal int64
	for _, st := range subtasks {
		subtaskTotal += st.EstimatedDurationMs
	}
	estDuration := int64(float64(baseDuration)*(0.5+1.5*complexity)) + int64(0.5*float64(subtaskTotal))

	domain := recommendedDomain(caps, task.Type)

	var patterns []PatternMatch
	avgPatternSuccess := 0.0
	if q.neural != nil {
		embedding := pseudoEmbed(description)
		if matches, err := q.neural.FindPatterns(ctx, embedding, 5); err == nil {
			for _, m := range matches {
				if m.RelevanceScore >= 0.6 {
					patterns = append(patterns, m)
				}
			}
			if len(patterns) > 0 {
				sum := 0.0
				for _, p := range patterns {
					sum += p.SuccessRate
				}
				avgPatternSuccess = sum / float64(len(patterns))
			}
		} else {
			q.logger.WithError(err).Debug("neural pattern lookup failed, continuing without patterns")
		}
	}

	minAgents := 1
	if complexity > 0.7 {
		minAgents = 2
	}
	maxAgents := 2
	if complexity > 0.8 {
		maxAgents = 4
	} else if complexity > 0.5 {
		maxAgents = 3
	}
	resources := ResourceRequirements{
		MinAgents: minAgents, MaxAgents: maxAgents,
		MemoryMb:        256 + 512*complexity,
		CPUIntensive:    task.Type == TaskCoding || task.Type == TaskAnalysis,
		IOIntensive:     task.Type == TaskResearch || task.Type == TaskTesting,
		NetworkRequired: task.Type == TaskResearch,
	}

	capBonus := 0.05 * float64(len(caps))
	if capBonus > 0.15 {
		capBonus = 0.15
	}
	confidence := 0.5 + 0.1*float64(len(patterns)) + 0.2*(1-complexity) + capBonus + 0.1*avgPatternSuccess
	if confidence > 0.95 {
		confidence = 0.95
	}

	analysis := &TaskAnalysis{
		AnalysisID: NewID(), TaskID: taskKey(task.ID), Complexity: complexity,
		EstimatedDurationMs: estDuration, RequiredCapabilities: caps,
		RecommendedDomain: domain, Subtasks: subtasks, MatchedPatterns: patterns,
		Resources: resources, Confidence: confidence,
	}

	q.mu.Lock()
	q.analysisCache[analysis.AnalysisID] = analysis
	if len(q.analysisCache) > maxQueenCaches {
		for k := range q.analysisCache {
			delete(q.analysisCache, k)
			break
		}
	}
	q.mu.Unlock()

	if q.coordinator != nil {
		q.coordinator.events.Publish(Event{Type: "queen.task.analyzed", Source: "queen", Data: map[string]interface{}{"taskId": analysis.TaskID}})
	}
	return analysis
}

func availabilityScore(status AgentStatus) float64 {
	switch status {
	case StatusIdle:
		return 1.0
	case StatusBusy:
		return 0.3
	default:
		return 0
	}
}

func capabilityScore(agent *Agent, required []string) float64 {
	if len(required) == 0 {
		return 0.5
	}
	match := 0
	pool := append(append(append([]string{}, agent.Capabilities.Languages...), agent.Capabilities.Frameworks...), agent.Capabilities.Tools...)
	pool = append(pool, agent.Capabilities.Domains...)
	for _, req := range required {
		for _, have := range pool {
			if strings.EqualFold(have, req) {
				match++
				break
			}
		}
	}
	return float64(match) / float64(len(required))
}

func performanceScore(agent *Agent) float64 {
	return agent.Metrics.SuccessRate
}

// agentTotalScore implements Delegate's 0.30/0.20/0.25/0.15/0.10 weighting.
func agentTotalScore(agent *Agent, required []string) float64 {
	return 0.30*capabilityScore(agent, required) +
		0.20*(1-agent.Workload) +
		0.25*performanceScore(agent) +
		0.15*agent.Health +
		0.10*availabilityScore(agent.Status)
}

func chooseStrategy(analysis *TaskAnalysis) DelegationStrategy {
	n := len(analysis.Subtasks)
	hasDeps := false
	for _, st := range analysis.Subtasks {
		if len(st.DependsOn) > 0 {
			hasDeps = true
			break
		}
	}
	switch {
	case n == 0:
		return StrategySequential
	case n > 2 && !hasDeps:
		return StrategyParallel
	case hasDeps && n > 3:
		return StrategyPipeline
	case analysis.Complexity > 0.7:
		return StrategyFanOutFanIn
	default:
		return StrategyHybrid
	}
}

// Delegate scores every registered agent and produces a concrete
// assignment proposal.
func (q *Queen) Delegate(task *Task, analysis *TaskAnalysis) (*DelegationPlan, error) {
	state := q.coordinator.GetState()
	if len(state.Agents) == 0 {
		return nil, unavailableErr("no_agents", "no agents registered to delegate to")
	}

	type scored struct {
		agent Agent
		score float64
	}
	var candidates []scored
	for _, a := range state.Agents {
		candidates = append(candidates, scored{agent: a, score: agentTotalScore(&a, analysis.RequiredCapabilities)})
	}

	var best *scored
	for i := range candidates {
		if candidates[i].agent.Domain != analysis.RecommendedDomain {
			continue
		}
		if best == nil || candidates[i].score > best.score {
			best = &candidates[i]
		}
	}
	if best == nil {
		for i := range candidates {
			if best == nil || candidates[i].score > best.score {
				best = &candidates[i]
			}
		}
	}

	var backups []string
	for i := range candidates {
		if candidates[i].agent.ID == best.agent.ID {
			continue
		}
		if candidates[i].score >= 0.3 {
			backups = append(backups, candidates[i].agent.ID)
		}
		if len(backups) >= 2 {
			break
		}
	}

	var parallel []SubtaskAssignment
	for _, st := range analysis.Subtasks {
		var subBest *scored
		for i := range candidates {
			if candidates[i].agent.Domain != st.RecommendedDomain {
				continue
			}
			if subBest == nil || candidates[i].score > subBest.score {
				subBest = &candidates[i]
			}
		}
		if subBest != nil {
			parallel = append(parallel, SubtaskAssignment{SubtaskID: st.ID, AgentID: subBest.agent.ID, Domain: st.RecommendedDomain})
		}
	}

	plan := &DelegationPlan{
		PlanID: NewID(), TaskID: analysis.TaskID, AnalysisID: analysis.AnalysisID,
		PrimaryAgent: best.agent.ID, BackupAgents: backups, ParallelAssignments: parallel,
		Strategy: chooseStrategy(analysis), EstimatedCompletionMs: analysis.EstimatedDurationMs,
	}

	_, _ = q.coordinator.AssignTaskToDomain(taskKey(task.ID), analysis.RecommendedDomain)
	q.coordinator.BroadcastMessage(map[string]interface{}{"planId": plan.PlanID, "taskId": plan.TaskID}, MsgNormal)
	q.coordinator.events.Publish(Event{Type: "queen.task.delegated", Source: "queen", Data: map[string]interface{}{"taskId": plan.TaskID, "planId": plan.PlanID}})

	return plan, nil
}

// MonitorSwarmHealth computes a swarm-wide health report.
func (q *Queen) MonitorSwarmHealth() *HealthReport {
	state := q.coordinator.GetState()

	domainAgents := make(map[Domain][]Agent)
	for _, a := range state.Agents {
		domainAgents[a.Domain] = append(domainAgents[a.Domain], a)
	}

	domainHealth := make(map[Domain]float64)
	agentHealth := make(map[string]float64)
	var bottlenecks, alerts []string
	errorCount := 0
	healthSum, healthCount := 0.0, 0

	for domain, agents := range domainAgents {
		busy := 0
		hSum := 0.0
		for _, a := range agents {
			if a.Status == StatusBusy {
				busy++
			}
			if a.Status == StatusError {
				errorCount++
			}
			hSum += a.Health
			agentHealth[a.ID] = a.Health
			healthSum += a.Health
			healthCount++
		}
		util := 0.0
		if len(agents) > 0 {
			util = float64(busy) / float64(len(agents))
		}
		queueDepth := q.coordinator.DomainQueueDepth(domain)
		dh := 1.0
		if len(agents) > 0 {
			dh = hSum/float64(len(agents))*0.7 + (1-util)*0.3
		}
		domainHealth[domain] = dh
		if queueDepth > 10 {
			severity := "high"
			bottlenecks = append(bottlenecks, "domain queue depth exceeded: "+string(domain))
			alerts = append(alerts, severity+": queue backlog in "+string(domain))
		}
	}
	if errorCount >= 1 {
		bottlenecks = append(bottlenecks, "agents in error state")
	}
	p50, _ := q.coordinator.LatencyPercentiles()
	if p50 > 5000 {
		bottlenecks = append(bottlenecks, "coordination latency above threshold")
		alerts = append(alerts, "high: coordination latency degraded")
	}

	avgAgentHealth := 0.0
	if healthCount > 0 {
		avgAgentHealth = healthSum / float64(healthCount)
	}
	avgDomainHealth := 0.0
	if len(domainHealth) > 0 {
		sum := 0.0
		for _, h := range domainHealth {
			sum += h
		}
		avgDomainHealth = sum / float64(len(domainHealth))
	}
	if avgAgentHealth < 0.3 {
		alerts = append(alerts, "critical: average agent health below 0.3")
	} else if avgAgentHealth < 0.5 {
		alerts = append(alerts, "warning: average agent health below 0.5")
	}

	penalty := 0.02 * float64(len(bottlenecks))
	overall := 0.4*avgDomainHealth + 0.4*avgAgentHealth - penalty
	if overall < 0 {
		overall = 0
	}
	if overall > 1 {
		overall = 1
	}

	recs := dedupStrings(recommendationsFor(bottlenecks))

	report := &HealthReport{
		Timestamp: time.Now(), OverallHealth: overall, DomainHealth: domainHealth,
		AgentHealth: agentHealth, Bottlenecks: dedupStrings(bottlenecks),
		Alerts: dedupStrings(alerts), Recommendations: recs,
	}

	q.mu.Lock()
	q.healthHistory.PushBack(report)
	if q.healthHistory.Len() > maxHealthHistory {
		q.healthHistory.Remove(q.healthHistory.Front())
	}
	q.mu.Unlock()

	metrics.QueenOverallHealth.Set(overall)
	q.coordinator.events.Publish(Event{Type: "queen.health.report", Source: "queen", Data: map[string]interface{}{"overallHealth": overall}})
	return report
}

func recommendationsFor(bottlenecks []string) []string {
	var out []string
	for _, b := range bottlenecks {
		switch {
		case strings.Contains(b, "queue depth"):
			out = append(out, "scale up the affected domain's agent pool")
		case strings.Contains(b, "error state"):
			out = append(out, "investigate agents reporting error status")
		case strings.Contains(b, "latency"):
			out = append(out, "review message bus throughput and consensus load")
		}
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CoordinateConsensus routes a decision through the consensus engine,
// restricting queen-override to the allowed decision types.
func (q *Queen) CoordinateConsensus(ctx context.Context, value interface{}, algo ConsensusAlgorithm, decisionType string) (*ConsensusResult, error) {
	if algo == AlgoQueenOverride && !queenOverrideAllowed[decisionType] {
		return nil, preconditionErr("override_not_allowed", "queen-override not permitted for decision type: "+decisionType)
	}
	res, err := q.coordinator.ProposeConsensus(value, algo, decisionType)
	if err == nil {
		q.coordinator.events.Publish(Event{Type: "queen.consensus.completed", Source: "queen", Data: map[string]interface{}{"approved": res.Approved}})
	}
	return res, err
}

// RecordOutcome appends to the bounded outcome history and, if configured,
// opens a neural trajectory and stores a memory entry. All integration
// failures are logged and non-fatal.
func (q *Queen) RecordOutcome(ctx context.Context, taskKey string, domain Domain, taskType TaskType, success bool, quality float64) {
	record := DecisionRecord{Timestamp: time.Now(), TaskKey: taskKey, Success: success, QualityScore: quality}
	if success {
		record.Effectiveness = 0.8*quality + 0.2
	} else {
		record.Effectiveness = 0.3 * quality
	}

	q.mu.Lock()
	q.outcomeHistory.PushBack(record)
	if q.outcomeHistory.Len() > maxOutcomeHistory {
		q.outcomeHistory.Remove(q.outcomeHistory.Front())
	}
	q.advanceLearningPhaseLocked()
	q.mu.Unlock()

	if q.neural != nil {
		trajID, err := q.neural.BeginTask(ctx, taskKey, domain)
		if err != nil {
			q.logger.WithError(err).Debug("neural BeginTask failed, continuing without trajectory")
		} else {
			_ = q.neural.RecordStep(ctx, trajID, "complete", record.Effectiveness, pseudoEmbed(taskKey))
			if err := q.neural.CompleteTask(ctx, trajID, quality); err != nil {
				q.logger.WithError(err).Debug("neural CompleteTask failed")
			}
		}
	}

	if q.memory != nil {
		status := "success"
		if !success {
			status = "failure"
		}
		entry := MemoryEntry{
			Key: taskKey, Namespace: "queen-outcomes",
			Content: "outcome for " + taskKey,
			Tags:    []string{string(taskType), string(domain), status},
		}
		if err := q.memory.Store(ctx, entry); err != nil {
			q.logger.WithError(err).Debug("memory store failed, continuing")
		}
	}

	q.coordinator.events.Publish(Event{Type: "queen.outcome.recorded", Source: "queen", Data: map[string]interface{}{"taskId": taskKey, "success": success}})
}

// advanceLearningPhaseLocked tracks a seed->growth->expansion->autonomous
// progression, purely as bookkeeping on the outcome volume.
func (q *Queen) advanceLearningPhaseLocked() {
	n := q.outcomeHistory.Len()
	phase := "seed"
	switch {
	case n > 200:
		phase = "autonomous"
	case n > 50:
		phase = "expansion"
	case n > 10:
		phase = "growth"
	}
	q.learningState["phase"] = phase
}

// LearningState returns a copy of the Queen's bounded learning bookkeeping.
func (q *Queen) LearningState() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]interface{}, len(q.learningState))
	for k, v := range q.learningState {
		out[k] = v
	}
	return out
}

// OutcomeHistoryLen reports how many outcomes are retained.
func (q *Queen) OutcomeHistoryLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outcomeHistory.Len()
}
