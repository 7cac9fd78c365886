package config

import (
	"fmt"
	"time"

	"github.com/eosplugins/chainindex/internal/common"
	"github.com/eosplugins/chainindex/internal/logger"
)

// Config represents the complete configuration shared by the esindexer
// and blacklistd binaries. Each binary reads only the sections it needs.
type Config struct {
	// DocStore contains the Elasticsearch-compatible document store configuration
	DocStore DocStoreConfig `yaml:"docstore" json:"docstore" toml:"docstore"`

	// Indexer contains the chain indexing pipeline configuration
	Indexer IndexerConfig `yaml:"indexer" json:"indexer" toml:"indexer"`

	// Controller contains the blockchain node connection configuration
	Controller ControllerConfig `yaml:"controller" json:"controller" toml:"controller"`

	// Blacklist contains the blacklist reconciler and signature provider configuration
	Blacklist *BlacklistConfig `yaml:"blacklist,omitempty" json:"blacklist,omitempty" toml:"blacklist,omitempty"`

	// API contains the HTTP API server configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// DocStoreConfig configures the HTTP client used to talk to the document store.
type DocStoreConfig struct {
	// URLs is the list of document store node addresses
	URLs []string `yaml:"urls" json:"urls" toml:"urls"`

	// Username and Password hold basic auth credentials, if required
	Username string `yaml:"username,omitempty" json:"username,omitempty" toml:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty" toml:"password,omitempty"`

	// IndexNamePrefix is the name of the single index this indexer manages
	IndexNamePrefix string `yaml:"index_name_prefix" json:"index_name_prefix" toml:"index_name_prefix"`

	// MappingPath points at the JSON index mapping/settings document applied
	// on create_index. Empty creates the index with no request body.
	MappingPath string `yaml:"mapping_path,omitempty" json:"mapping_path,omitempty" toml:"mapping_path,omitempty"`

	// RequestTimeout bounds a single HTTP request to the document store
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// ConnectTimeout bounds the startup readiness probe (WaitReady)
	ConnectTimeout common.Duration `yaml:"connect_timeout" json:"connect_timeout" toml:"connect_timeout"`
}

// ApplyDefaults sets default values for optional document store configuration fields.
func (d *DocStoreConfig) ApplyDefaults() {
	if len(d.URLs) == 0 {
		d.URLs = []string{"http://localhost:9200"}
	}
	if d.IndexNamePrefix == "" {
		d.IndexNamePrefix = "chain"
	}
	if d.RequestTimeout.Duration == 0 {
		d.RequestTimeout = common.NewDuration(10 * time.Second)
	}
	if d.ConnectTimeout.Duration == 0 {
		d.ConnectTimeout = common.NewDuration(30 * time.Second)
	}
}

// Validate checks if the document store configuration is valid.
func (d *DocStoreConfig) Validate() error {
	if len(d.URLs) == 0 {
		return fmt.Errorf("docstore.urls: at least one URL is required")
	}
	if d.IndexNamePrefix == "" {
		return fmt.Errorf("docstore.index_name_prefix is required")
	}
	return nil
}

// IndexerConfig represents the configuration for the chain data ingestion pipeline.
type IndexerConfig struct {
	// StartBlock is the block number to begin accepting accepted_block callbacks from
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// AcceptedBlockQueueSize and AppliedTransactionQueueSize together set the
	// entry bound shared by all four stream queues: the larger of the two
	AcceptedBlockQueueSize int `yaml:"accepted_block_queue_size" json:"accepted_block_queue_size" toml:"accepted_block_queue_size"`

	// IrreversibleBlockQueueSize is validated but not consulted by the
	// pipeline; the irreversible-block stream uses the shared bound above
	IrreversibleBlockQueueSize int `yaml:"irreversible_block_queue_size" json:"irreversible_block_queue_size" toml:"irreversible_block_queue_size"` //nolint:lll

	// AppliedTransactionQueueSize takes part in the shared bound described
	// on AcceptedBlockQueueSize
	AppliedTransactionQueueSize int `yaml:"applied_transaction_queue_size" json:"applied_transaction_queue_size" toml:"applied_transaction_queue_size"` //nolint:lll

	// AbiUpdateQueueSize is validated but not consulted by the pipeline,
	// which has no separate ABI update queue
	AbiUpdateQueueSize int `yaml:"abi_update_queue_size" json:"abi_update_queue_size" toml:"abi_update_queue_size"`

	// ABICacheSize bounds the number of accounts' ABIs cached in memory
	ABICacheSize int `yaml:"abi_cache_size" json:"abi_cache_size" toml:"abi_cache_size"`

	// MaxQueueSizeMB is defaulted but not consulted by the pipeline;
	// backpressure engages on the entry bound described on
	// AcceptedBlockQueueSize, not on a size in megabytes
	MaxQueueSizeMB uint64 `yaml:"max_queue_size_mb" json:"max_queue_size_mb" toml:"max_queue_size_mb"`

	// StoreBlocks controls whether block records are indexed in addition to transactions
	StoreBlocks bool `yaml:"store_blocks" json:"store_blocks" toml:"store_blocks"`

	// StoreTransactions controls whether transaction trace records are indexed
	StoreTransactions bool `yaml:"store_transactions" json:"store_transactions" toml:"store_transactions"`

	// StoreActions controls whether individual action traces are indexed as their own documents
	StoreActions bool `yaml:"store_actions" json:"store_actions" toml:"store_actions"`

	// FilterOnAccounts, if non-empty, restricts action indexing to these contract accounts
	FilterOnAccounts []string `yaml:"filter_on_accounts,omitempty" json:"filter_on_accounts,omitempty" toml:"filter_on_accounts,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional indexer configuration fields.
func (i *IndexerConfig) ApplyDefaults() {
	if i.AcceptedBlockQueueSize == 0 {
		i.AcceptedBlockQueueSize = 1000
	}
	if i.IrreversibleBlockQueueSize == 0 {
		i.IrreversibleBlockQueueSize = 1000
	}
	if i.AppliedTransactionQueueSize == 0 {
		i.AppliedTransactionQueueSize = 10000
	}
	if i.AbiUpdateQueueSize == 0 {
		i.AbiUpdateQueueSize = 100
	}
	if i.ABICacheSize == 0 {
		i.ABICacheSize = 2048
	}
	if i.MaxQueueSizeMB == 0 {
		i.MaxQueueSizeMB = 256
	}
}

// Validate checks if the indexer configuration is valid.
func (i *IndexerConfig) Validate() error {
	if i.AcceptedBlockQueueSize <= 0 {
		return fmt.Errorf("indexer.accepted_block_queue_size must be positive")
	}
	if i.IrreversibleBlockQueueSize <= 0 {
		return fmt.Errorf("indexer.irreversible_block_queue_size must be positive")
	}
	if i.AppliedTransactionQueueSize <= 0 {
		return fmt.Errorf("indexer.applied_transaction_queue_size must be positive")
	}
	if i.AbiUpdateQueueSize <= 0 {
		return fmt.Errorf("indexer.abi_update_queue_size must be positive")
	}
	if i.ABICacheSize <= 0 {
		return fmt.Errorf("indexer.abi_cache_size must be positive")
	}
	return nil
}

// ControllerConfig configures the HTTP connection to the blockchain node
// this plugin observes and reads table state from.
type ControllerConfig struct {
	// NodeURL is the node's chain API base URL, e.g. http://localhost:8888
	NodeURL string `yaml:"node_url" json:"node_url" toml:"node_url"`

	// PollInterval is how often the controller polls for new blocks
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// RequestTimeout bounds a single HTTP request to the node
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
}

// ApplyDefaults sets default values for optional controller configuration fields.
func (c *ControllerConfig) ApplyDefaults() {
	if c.NodeURL == "" {
		c.NodeURL = "http://localhost:8888"
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(500 * time.Millisecond)
	}
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = common.NewDuration(5 * time.Second)
	}
}

// Validate checks if the controller configuration is valid.
func (c *ControllerConfig) Validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("controller.node_url is required")
	}
	return nil
}

// BlacklistConfig configures the actor blacklist integrity checker.
type BlacklistConfig struct {
	// ContractAccount is the account hosting the onchain blacklist table
	ContractAccount string `yaml:"contract_account" json:"contract_account" toml:"contract_account"`

	// ProducerName is this block producer's account name, used to find this
	// producer's row in the onchain producerhash table
	ProducerName string `yaml:"producer_name" json:"producer_name" toml:"producer_name"`

	// SignatureProvider is a "PUBKEY=SCHEME:PAYLOAD" descriptor, e.g.
	// "EOS6MRyAj...=KEY:5KQwrPbw..."
	SignatureProvider string `yaml:"signature_provider" json:"signature_provider" toml:"signature_provider"`

	// Actors is the locally configured canonical list of blacklisted accounts
	Actors []string `yaml:"actors" json:"actors" toml:"actors"`

	// ReconcileInterval is how often the reconciler re-fingerprints the local,
	// onchain, and last-submitted actor lists
	ReconcileInterval common.Duration `yaml:"reconcile_interval" json:"reconcile_interval" toml:"reconcile_interval"`
}

// ApplyDefaults sets default values for optional blacklist configuration fields.
func (b *BlacklistConfig) ApplyDefaults() {
	if b.ReconcileInterval.Duration == 0 {
		b.ReconcileInterval = common.NewDuration(time.Minute)
	}
}

// Validate checks if the blacklist configuration is valid.
func (b *BlacklistConfig) Validate() error {
	if b.ContractAccount == "" {
		return fmt.Errorf("blacklist.contract_account is required")
	}
	if b.ProducerName == "" {
		return fmt.Errorf("blacklist.producer_name is required")
	}
	if b.SignatureProvider == "" {
		return fmt.Errorf("blacklist.signature_provider is required")
	}
	return nil
}

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	// Enabled turns on CORS response headers
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// AllowedOrigins is the list of origins permitted; "*" allows any origin
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

// APIConfig configures the HTTP API server exposing check_hash and health.
type APIConfig struct {
	// Enabled controls whether the HTTP API server starts
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout, WriteTimeout, IdleTimeout configure the underlying http.Server
	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross-origin access
	CORS CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty" toml:"cors,omitempty"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(10 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second)
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("api.listen_address is required when the API is enabled")
	}
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components: pipeline, consumer, abi-cache, docstore, processor,
	// blacklist, api, metrics
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
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

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.DocStore.ApplyDefaults()
	c.Indexer.ApplyDefaults()
	c.Controller.ApplyDefaults()

	if c.Blacklist != nil {
		c.Blacklist.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.DocStore.Validate(); err != nil {
		return err
	}
	if err := c.Indexer.Validate(); err != nil {
		return err
	}
	if err := c.Controller.Validate(); err != nil {
		return err
	}

	if c.Blacklist != nil {
		if err := c.Blacklist.Validate(); err != nil {
			return err
		}
	}
	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return err
		}
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

	return nil
}
