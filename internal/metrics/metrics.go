// Package metrics exposes the coordinator's Prometheus gauges and counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AgentsRegistered tracks currently registered agents per domain.
	AgentsRegistered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_agents_registered",
		Help: "Current number of registered agents per domain",
	}, []string{"domain"})

	// AgentHealth tracks the last-reported health score per agent.
	AgentHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_agent_health",
		Help: "Last reported health score (0-1) per agent",
	}, []string{"agent_id", "domain"})

	// TaskQueueDepth tracks tasks waiting for an agent, per domain.
	TaskQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_task_queue_depth",
		Help: "Current number of tasks queued for assignment, per domain",
	}, []string{"domain"})

	// TasksCompleted counts completed tasks.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_tasks_completed_total",
		Help: "Total number of tasks completed",
	})

	// TasksFailed counts permanently failed tasks.
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_tasks_failed_total",
		Help: "Total number of tasks that failed after exhausting retries",
	})

	// TaskLatency tracks end-to-end task completion latency.
	TaskLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_task_latency_seconds",
		Help:    "Task completion latency from assignment to completion",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// MessageBusDelivered counts messages delivered by the bus.
	MessageBusDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_bus_messages_delivered_total",
		Help: "Total number of messages delivered by the message bus",
	})

	// MessageBusDropped counts messages dropped (expired or back-pressured).
	MessageBusDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_bus_messages_dropped_total",
		Help: "Total number of messages dropped by the message bus",
	})

	// MessageBusFailed counts messages that exhausted their ack retries.
	MessageBusFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_bus_messages_failed_total",
		Help: "Total number of messages that exhausted ack retries",
	})

	// ConsensusRounds counts completed consensus rounds by algorithm and outcome.
	ConsensusRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_consensus_rounds_total",
		Help: "Total number of completed consensus rounds",
	}, []string{"algorithm", "approved"})

	// ConsensusDuration tracks consensus round duration.
	ConsensusDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_consensus_duration_seconds",
		Help:    "Duration of consensus rounds from proposal to resolution",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// TopologyLeaderChanges counts leader elections.
	TopologyLeaderChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_topology_leader_changes_total",
		Help: "Total number of leader elections performed by the topology manager",
	})

	// PoolUtilization tracks the busy/total ratio per domain pool.
	PoolUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_pool_utilization",
		Help: "Busy/total ratio of a domain's agent pool",
	}, []string{"domain"})

	// QueenOverallHealth tracks the Queen's latest swarm-wide health score.
	QueenOverallHealth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_queen_overall_health",
		Help: "Queen's most recently computed overall swarm health score",
	})
)
