// Package config provides flowroute configuration: defaults, a YAML + env
// loader, and hot reload of routing thresholds and feature switches.
//
// Load order: defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete flowroute configuration.
type Config struct {
	// Classifier configuration
	Classifier ClassifierConfig `yaml:"classifier" env:"CLASSIFIER"`

	// Recommender configuration
	Recommender RecommenderConfig `yaml:"recommender" env:"RECOMMENDER"`

	// Routing thresholds and feature switches
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	// Session lifecycle and handover validation
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Store selects and configures the session persistence backend
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log configuration
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ClassifierConfig tunes the text classifier.
type ClassifierConfig struct {
	// Maximum input length before truncation
	MaxInputLen int `yaml:"max_input_len" env:"MAX_INPUT_LEN"`
	// LRU cache capacity (entries)
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
}

// RecommenderConfig tunes the node recommender.
type RecommenderConfig struct {
	// LRU cache capacity (entries)
	CacheSize int `yaml:"cache_size" env:"CACHE_SIZE"`
	// Maximum alternatives per primary recommendation
	MaxAlternatives int `yaml:"max_alternatives" env:"MAX_ALTERNATIVES"`
	// Learning feedback queue capacity; feedback is dropped when full
	LearnQueueSize int `yaml:"learn_queue_size" env:"LEARN_QUEUE_SIZE"`
}

// RoutingConfig holds all externally tunable routing thresholds.
// Read at decision time so hot reload takes effect immediately.
type RoutingConfig struct {
	// Complexity score below this is express
	StandardThreshold float64 `yaml:"standard_threshold" env:"STANDARD_THRESHOLD"`
	// Complexity score above this is enterprise
	EnterpriseThreshold float64 `yaml:"enterprise_threshold" env:"ENTERPRISE_THRESHOLD"`
	// Integration count above this triggers a handover for standard requests
	IntegrationThreshold int `yaml:"integration_threshold" env:"INTEGRATION_THRESHOLD"`
	// Integration count above this upgrades a lightweight handover to a full chain
	FullChainIntegrationThreshold int `yaml:"full_chain_integration_threshold" env:"FULL_CHAIN_INTEGRATION_THRESHOLD"`

	// Feature switches
	HandoversEnabled   bool `yaml:"handovers_enabled" env:"HANDOVERS_ENABLED"`
	ForceCollaborative bool `yaml:"force_collaborative" env:"FORCE_COLLABORATIVE"`

	// Worker ids per role
	OrchestratorWorker string `yaml:"orchestrator_worker" env:"ORCHESTRATOR_WORKER"`
	AISpecialistWorker string `yaml:"ai_specialist_worker" env:"AI_SPECIALIST_WORKER"`
	BuilderWorker      string `yaml:"builder_worker" env:"BUILDER_WORKER"`
	EmergencyWorker    string `yaml:"emergency_worker" env:"EMERGENCY_WORKER"`

	// Estimated duration of a single hop, used for duration estimates
	HopEstimate time.Duration `yaml:"hop_estimate" env:"HOP_ESTIMATE"`
}

// SessionConfig tunes session lifecycle and handover validation.
type SessionConfig struct {
	// Absolute session lifetime; ExpiresAt is always CreatedAt + Timeout
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// How often expired sessions are swept and auto-cancelled
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// Minimum handover note length in characters
	MinNotesLen int `yaml:"min_notes_len" env:"MIN_NOTES_LEN"`
	// Handovers scoring below this are rejected (0-100)
	QualityCutoff int `yaml:"quality_cutoff" env:"QUALITY_CUTOFF"`
	// Maximum steps a single rollback call may undo
	MaxRollbackSteps int `yaml:"max_rollback_steps" env:"MAX_ROLLBACK_STEPS"`
	// Rollback rate limit per session (calls per minute, with burst)
	RollbackPerMinute int `yaml:"rollback_per_minute" env:"ROLLBACK_PER_MINUTE"`
	RollbackBurst     int `yaml:"rollback_burst" env:"ROLLBACK_BURST"`
	// Maximum handovers per chain before dispatch refuses to continue
	MaxChainLength int `yaml:"max_chain_length" env:"MAX_CHAIN_LENGTH"`
	// HMAC secret for session tokens
	TokenSecret string `yaml:"token_secret" env:"TOKEN_SECRET"`
}

// StoreType selects the session persistence backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Backend type: memory, redis, sql
	Type StoreType `yaml:"type" env:"TYPE"`

	// Redis configuration (Type == redis)
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configuration (Type == sql)
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// How long terminal sessions are retained for audit reads
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the SQL store backend.
type DatabaseConfig struct {
	// Driver type: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Log level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Output format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
	// Metric namespace prefix
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DefaultConfig returns the default configuration.
// Threshold values are deliberate defaults, not contracts; every one of them
// is overridable via YAML, env, or hot reload.
func DefaultConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			MaxInputLen: 4096,
			CacheSize:   2048,
		},
		Recommender: RecommenderConfig{
			CacheSize:       1024,
			MaxAlternatives: 3,
			LearnQueueSize:  256,
		},
		Routing: RoutingConfig{
			StandardThreshold:             4.0,
			EnterpriseThreshold:           7.0,
			IntegrationThreshold:          2,
			FullChainIntegrationThreshold: 4,
			HandoversEnabled:              true,
			OrchestratorWorker:            "orchestrator",
			AISpecialistWorker:            "ai-specialist",
			BuilderWorker:                 "builder",
			EmergencyWorker:               "security-review",
			HopEstimate:                   2 * time.Minute,
		},
		Session: SessionConfig{
			Timeout:           30 * time.Minute,
			SweepInterval:     time.Minute,
			MinNotesLen:       20,
			QualityCutoff:     60,
			MaxRollbackSteps:  5,
			RollbackPerMinute: 6,
			RollbackBurst:     2,
			MaxChainLength:    8,
			TokenSecret:       "",
		},
		Store: StoreConfig{
			Type: StoreTypeMemory,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "flowroute:",
			},
			Database: DatabaseConfig{
				Driver:  "sqlite",
				Name:    "flowroute.db",
				SSLMode: "disable",
			},
			Retention: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: "flowroute",
		},
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Routing.StandardThreshold <= 0 {
		errs = append(errs, "routing.standard_threshold must be positive")
	}
	if c.Routing.EnterpriseThreshold <= c.Routing.StandardThreshold {
		errs = append(errs, "routing.enterprise_threshold must exceed standard_threshold")
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, "session.timeout must be positive")
	}
	if c.Session.QualityCutoff < 0 || c.Session.QualityCutoff > 100 {
		errs = append(errs, "session.quality_cutoff must be in [0,100]")
	}
	if c.Session.MinNotesLen < 0 {
		errs = append(errs, "session.min_notes_len must be non-negative")
	}
	if c.Session.MaxRollbackSteps <= 0 {
		errs = append(errs, "session.max_rollback_steps must be positive")
	}
	if c.Classifier.MaxInputLen <= 0 {
		errs = append(errs, "classifier.max_input_len must be positive")
	}
	switch c.Store.Type {
	case StoreTypeMemory, StoreTypeRedis, StoreTypeSQL:
	default:
		errs = append(errs, fmt.Sprintf("store.type %q is not one of memory, redis, sql", c.Store.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
