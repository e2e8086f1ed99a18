package swarm

import "time"

// Config is the single nested configuration object the coordinator and its
// subsystems are built from.
type Config struct {
	SwarmID   string
	Namespace string

	TopologyType TopologyType
	MaxAgents    int

	ConsensusDefaultAlgorithm ConsensusAlgorithm

	MessageBusMaxQueueSize int

	PoolMinSize            int
	PoolMaxSize            int
	ScaleUpThreshold       float64
	ScaleDownThreshold     float64

	HeartbeatIntervalMs int64
	HealthIntervalMs    int64
	TaskTimeoutMs       int64

	AutoScaling   bool
	AutoRecovery  bool

	NeuralEnabled bool
	MemoryEnabled bool
}

// DefaultConfig returns the nominal 15-agent hierarchical swarm
// configuration.
func DefaultConfig() Config {
	return Config{
		SwarmID:                   NewID(),
		Namespace:                 "default",
		TopologyType:              TopologyHierarchical,
		MaxAgents:                 15,
		ConsensusDefaultAlgorithm: AlgoMajority,
		MessageBusMaxQueueSize:    1000,
		PoolMinSize:               1,
		PoolMaxSize:               15,
		ScaleUpThreshold:          0.8,
		ScaleDownThreshold:        0.2,
		HeartbeatIntervalMs:       5000,
		HealthIntervalMs:          10000,
		TaskTimeoutMs:             30000,
		AutoScaling:               true,
		AutoRecovery:              true,
	}
}

func (c Config) heartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c Config) healthInterval() time.Duration {
	return time.Duration(c.HealthIntervalMs) * time.Millisecond
}

func (c Config) taskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMs) * time.Millisecond
}
