// Package config defines the indexer configuration: node connection,
// synchronization knobs, storage, logging, metrics and the API surface.
package config

import (
	"fmt"
	"time"

	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
)

// Config represents the complete configuration for the TezosIndexor.
type Config struct {
	// Node contains the Tezos node connection configuration
	Node NodeConfig `yaml:"node" json:"node" toml:"node"`

	// Sync contains the chain synchronization configuration
	Sync SyncConfig `yaml:"sync" json:"sync" toml:"sync"`

	// DB contains the SQLite storage configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the HTTP API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// NodeConfig represents the connection to the remote Tezos node.
type NodeConfig struct {
	// Protocol is the URL scheme, "http" or "https"
	Protocol string `yaml:"protocol" json:"protocol" toml:"protocol"`

	// Host is the node's host name or address
	Host string `yaml:"host" json:"host" toml:"host"`

	// Port is the node's RPC port
	Port int `yaml:"port" json:"port" toml:"port"`

	// PathPrefix is an optional path segment inserted before chains/main/
	PathPrefix string `yaml:"path_prefix" json:"path_prefix" toml:"path_prefix"`

	// PoolSize bounds the HTTP connection pool towards the node
	PoolSize int `yaml:"pool_size" json:"pool_size" toml:"pool_size"`

	// ConnectTimeout caps connection establishment
	ConnectTimeout common.Duration `yaml:"connect_timeout" json:"connect_timeout" toml:"connect_timeout"`

	// IdleConnTimeout caps how long pooled connections stay open unused
	IdleConnTimeout common.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" toml:"idle_conn_timeout"`

	// GetResponseEntityTimeout caps materialization of GET response bodies
	GetResponseEntityTimeout common.Duration `yaml:"get_response_entity_timeout" json:"get_response_entity_timeout" toml:"get_response_entity_timeout"` //nolint:lll

	// PostResponseEntityTimeout caps materialization of POST response bodies
	PostResponseEntityTimeout common.Duration `yaml:"post_response_entity_timeout" json:"post_response_entity_timeout" toml:"post_response_entity_timeout"` //nolint:lll

	// RequestsPerSecond throttles outbound calls; 0 disables throttling
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional node configuration fields.
func (n *NodeConfig) ApplyDefaults() {
	if n.Protocol == "" {
		n.Protocol = "http"
	}
	if n.Port == 0 {
		n.Port = 8732
	}
	if n.PoolSize == 0 {
		n.PoolSize = 10
	}
	if n.ConnectTimeout.Duration == 0 {
		n.ConnectTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if n.IdleConnTimeout.Duration == 0 {
		n.IdleConnTimeout = common.NewDuration(90 * time.Second) //nolint:mnd
	}
	if n.GetResponseEntityTimeout.Duration == 0 {
		n.GetResponseEntityTimeout = common.NewDuration(90 * time.Second) //nolint:mnd
	}
	if n.PostResponseEntityTimeout.Duration == 0 {
		n.PostResponseEntityTimeout = common.NewDuration(90 * time.Second) //nolint:mnd
	}

	if n.Retry != nil {
		n.Retry.ApplyDefaults()
	}
}

// SyncConfig represents the chain synchronization knobs.
type SyncConfig struct {
	// BlockPageSize is the max levels per page and max account ids per batch
	BlockPageSize int64 `yaml:"block_page_size" json:"block_page_size" toml:"block_page_size"`

	// BlockOperationsConcurrencyLevel bounds per-block operations and votes fetches
	BlockOperationsConcurrencyLevel int `yaml:"block_operations_concurrency_level" json:"block_operations_concurrency_level" toml:"block_operations_concurrency_level"` //nolint:lll

	// AccountConcurrencyLevel bounds per-account fetches
	AccountConcurrencyLevel int `yaml:"account_concurrency_level" json:"account_concurrency_level" toml:"account_concurrency_level"` //nolint:lll

	// FollowFork enables fork detection on each sync cycle
	FollowFork bool `yaml:"follow_fork" json:"follow_fork" toml:"follow_fork"`

	// PollInterval is the pause between head polls once caught up
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`
}

// ApplyDefaults sets default values for optional sync configuration fields.
func (s *SyncConfig) ApplyDefaults() {
	if s.BlockPageSize == 0 {
		s.BlockPageSize = 500
	}
	if s.BlockOperationsConcurrencyLevel == 0 {
		s.BlockOperationsConcurrencyLevel = 10
	}
	if s.AccountConcurrencyLevel == 0 {
		s.AccountConcurrencyLevel = 5
	}
	if s.PollInterval.Duration == 0 {
		s.PollInterval = common.NewDuration(30 * time.Second) //nolint:mnd
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - sync-engine: Chain synchronization orchestration
	//   - data-fetcher: Batched node fetching
	//   - fork-follower: Fork detection and repair
	//   - rpc: Node RPC gateway
	//   - store: SQLite persistence
	//   - michelson: Script decoding
	//   - indexer: Top-level indexing loop
	//   - api: HTTP API surface
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	// Validate default level
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		// Check if component is valid
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		// Check if level is valid
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// AllowedOrigins lists the origins allowed to call the API
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// APIConfig configures the HTTP API surface over the indexed data.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout caps reading of incoming requests
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout caps writing of responses
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout caps idle keep-alive connections
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin access
	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("listen_address is required when the API is enabled")
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Node.ApplyDefaults()
	c.Sync.ApplyDefaults()
	c.DB.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Node.Host == "" {
		return fmt.Errorf("node.host is required")
	}

	if c.Node.Protocol != "http" && c.Node.Protocol != "https" {
		return fmt.Errorf("node.protocol must be 'http' or 'https'")
	}

	if c.Node.Port <= 0 || c.Node.Port > 65535 {
		return fmt.Errorf("node.port must be a valid port number")
	}

	if c.Sync.BlockPageSize <= 0 {
		return fmt.Errorf("sync.block_page_size must be positive")
	}

	if c.Sync.BlockOperationsConcurrencyLevel <= 0 {
		return fmt.Errorf("sync.block_operations_concurrency_level must be positive")
	}

	if c.Sync.AccountConcurrencyLevel <= 0 {
		return fmt.Errorf("sync.account_concurrency_level must be positive")
	}

	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}

	if c.DB.JournalMode != "" && c.DB.JournalMode != "WAL" &&
		c.DB.JournalMode != "DELETE" && c.DB.JournalMode != "TRUNCATE" &&
		c.DB.JournalMode != "PERSIST" && c.DB.JournalMode != "MEMORY" {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if c.DB.Synchronous != "" && c.DB.Synchronous != "FULL" &&
		c.DB.Synchronous != "NORMAL" && c.DB.Synchronous != "OFF" {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
