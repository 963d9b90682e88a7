package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback is invoked after a new configuration is applied.
type ReloadCallback func(oldConfig, newConfig *Config)

// Manager holds the live configuration and applies hot reloads. Consumers
// that must see threshold changes immediately read through the accessor
// methods on every decision instead of caching a snapshot.
type Manager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	watcher   *FileWatcher
	callbacks []ReloadCallback

	logger  *zap.Logger
	running bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConfigFile enables file-based hot reload from path.
func WithConfigFile(path string) ManagerOption {
	return func(m *Manager) {
		m.configPath = path
	}
}

// NewManager creates a manager seeded with cfg.
func NewManager(cfg *Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_manager"))
	return m
}

// Start begins watching the config file, when one was configured.
func (m *Manager) Start(ctx context.Context, opts ...WatcherOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("config manager already running")
	}
	if m.configPath != "" {
		opts = append(opts, WithWatcherLogger(m.logger))
		m.watcher = NewFileWatcher(m.configPath, opts...)
		m.watcher.OnChange(func(string) {
			if err := m.Reload(); err != nil {
				m.logger.Error("config reload failed, keeping current config", zap.Error(err))
			}
		})
		m.watcher.Start(ctx)
	}
	m.running = true
	return nil
}

// Stop stops the file watcher.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		m.watcher.Stop()
	}
	m.running = false
}

// Reload re-reads the config file and applies it if valid. An invalid file
// leaves the current configuration untouched.
func (m *Manager) Reload() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return m.Apply(newConfig)
}

// Apply swaps in a new configuration and notifies reload callbacks.
func (m *Manager) Apply(newConfig *Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	oldConfig := m.config
	m.config = newConfig
	callbacks := append([]ReloadCallback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(oldConfig, newConfig)
	}

	m.logger.Info("configuration applied",
		zap.Time("at", time.Now()),
		zap.Float64("standard_threshold", newConfig.Routing.StandardThreshold),
		zap.Float64("enterprise_threshold", newConfig.Routing.EnterpriseThreshold))
	return nil
}

// OnReload registers a callback run after each successful reload.
func (m *Manager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Config returns the current full configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Routing returns the current routing thresholds and switches.
func (m *Manager) Routing() RoutingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Routing
}

// Session returns the current session settings.
func (m *Manager) Session() SessionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Session
}

// Classifier returns the current classifier settings.
func (m *Manager) Classifier() ClassifierConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Classifier
}

// Recommender returns the current recommender settings.
func (m *Manager) Recommender() RecommenderConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Recommender
}
