package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

// Config holds all configuration for the swarm coordinator process.
type Config struct {
	Environment string        `mapstructure:"environment"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
	Server      ServerConfig  `mapstructure:"server"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Swarm       SwarmConfig   `mapstructure:"swarm"`
	Monitoring  MonitorConfig `mapstructure:"monitoring"`
	WebSocket   WSConfig      `mapstructure:"websocket"`
}

// ServerConfig holds the HTTP control-plane server configuration.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	TLSCertFile  string `mapstructure:"tls_cert_file"`
	TLSKeyFile   string `mapstructure:"tls_key_file"`
}

// RedisConfig holds the connection settings for the optional Redis-backed
// memory service; when Addr is empty the coordinator falls back to the
// in-memory implementation.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// SwarmConfig holds the coordinator's own nested configuration, mirroring
// swarm.Config field-for-field so Load can produce one directly.
type SwarmConfig struct {
	SwarmID   string `mapstructure:"swarm_id"`
	Namespace string `mapstructure:"namespace"`

	Topology  string `mapstructure:"topology"`
	MaxAgents int    `mapstructure:"max_agents"`

	ConsensusDefaultAlgorithm string `mapstructure:"consensus_default_algorithm"`

	MessageBusMaxQueueSize int `mapstructure:"message_bus_max_queue_size"`

	PoolMinSize        int     `mapstructure:"pool_min_size"`
	PoolMaxSize        int     `mapstructure:"pool_max_size"`
	ScaleUpThreshold   float64 `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold float64 `mapstructure:"scale_down_threshold"`

	HeartbeatIntervalMs int64 `mapstructure:"heartbeat_interval_ms"`
	HealthIntervalMs    int64 `mapstructure:"health_interval_ms"`
	TaskTimeoutMs       int64 `mapstructure:"task_timeout_ms"`

	AutoScaling  bool `mapstructure:"auto_scaling"`
	AutoRecovery bool `mapstructure:"auto_recovery"`

	NeuralEnabled bool `mapstructure:"neural_enabled"`
	MemoryEnabled bool `mapstructure:"memory_enabled"`
}

// ToSwarmConfig converts the viper-bound SwarmConfig section into the
// swarm package's own Config type.
func (s SwarmConfig) ToSwarmConfig() swarm.Config {
	return swarm.Config{
		SwarmID:                   s.SwarmID,
		Namespace:                 s.Namespace,
		TopologyType:              swarm.TopologyType(s.Topology),
		MaxAgents:                 s.MaxAgents,
		ConsensusDefaultAlgorithm: swarm.ConsensusAlgorithm(s.ConsensusDefaultAlgorithm),
		MessageBusMaxQueueSize:    s.MessageBusMaxQueueSize,
		PoolMinSize:               s.PoolMinSize,
		PoolMaxSize:               s.PoolMaxSize,
		ScaleUpThreshold:          s.ScaleUpThreshold,
		ScaleDownThreshold:        s.ScaleDownThreshold,
		HeartbeatIntervalMs:       s.HeartbeatIntervalMs,
		HealthIntervalMs:          s.HealthIntervalMs,
		TaskTimeoutMs:             s.TaskTimeoutMs,
		AutoScaling:               s.AutoScaling,
		AutoRecovery:              s.AutoRecovery,
		NeuralEnabled:             s.NeuralEnabled,
		MemoryEnabled:             s.MemoryEnabled,
	}
}

// MonitorConfig holds metrics/health-check exposition configuration.
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MetricsPath        string        `mapstructure:"metrics_path"`
	HealthCheckPath    string        `mapstructure:"health_check_path"`
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
}

// WSConfig holds the event-stream WebSocket hub configuration.
type WSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Path             string        `mapstructure:"path"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values, mirroring swarm.DefaultConfig.
func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.tls_enabled", false)

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("swarm.namespace", "default")
	viper.SetDefault("swarm.topology", "hierarchical")
	viper.SetDefault("swarm.max_agents", 15)
	viper.SetDefault("swarm.consensus_default_algorithm", "majority")
	viper.SetDefault("swarm.message_bus_max_queue_size", 1000)
	viper.SetDefault("swarm.pool_min_size", 1)
	viper.SetDefault("swarm.pool_max_size", 15)
	viper.SetDefault("swarm.scale_up_threshold", 0.8)
	viper.SetDefault("swarm.scale_down_threshold", 0.2)
	viper.SetDefault("swarm.heartbeat_interval_ms", 5000)
	viper.SetDefault("swarm.health_interval_ms", 10000)
	viper.SetDefault("swarm.task_timeout_ms", 30000)
	viper.SetDefault("swarm.auto_scaling", true)
	viper.SetDefault("swarm.auto_recovery", true)
	viper.SetDefault("swarm.neural_enabled", false)
	viper.SetDefault("swarm.memory_enabled", false)

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_check_path", "/health")
	viper.SetDefault("monitoring.collection_interval", "30s")

	viper.SetDefault("websocket.enabled", true)
	viper.SetDefault("websocket.path", "/ws")
	viper.SetDefault("websocket.read_buffer_size", 1024)
	viper.SetDefault("websocket.write_buffer_size", 1024)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.ping_period", "54s")
	viper.SetDefault("websocket.pong_wait", "60s")
	viper.SetDefault("websocket.write_wait", "10s")
	viper.SetDefault("websocket.max_message_size", 512)
}

// validate validates the configuration.
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Swarm.MaxAgents <= 0 {
		return fmt.Errorf("swarm.max_agents must be positive")
	}
	if config.Swarm.PoolMinSize > config.Swarm.PoolMaxSize {
		return fmt.Errorf("swarm.pool_min_size cannot exceed swarm.pool_max_size")
	}
	switch swarm.TopologyType(config.Swarm.Topology) {
	case swarm.TopologyMesh, swarm.TopologyHierarchical, swarm.TopologyCentralized, swarm.TopologyHybrid:
	default:
		return fmt.Errorf("invalid swarm.topology: %s", config.Swarm.Topology)
	}
	return nil
}
