package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Block response modes.
const (
	BlockModeNXDomain = "nxdomain"
	BlockModeSinkhole = "sinkhole"
)

// Extractor tiers.
const (
	ExtractorBase     = "base"
	ExtractorEnhanced = "enhanced"
)

// Config holds the application configuration
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Upstream resolvers
	Upstream UpstreamConfig `yaml:"upstream"`

	// Cache settings (block-decision and response caches)
	Cache CacheConfig `yaml:"cache"`

	// Classifier settings
	Classifier ClassifierConfig `yaml:"classifier"`

	// Blocked-response settings
	Blocking BlockingConfig `yaml:"blocking"`

	// Query-log storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry (OTEL)
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// UpstreamConfig holds upstream resolver settings
type UpstreamConfig struct {
	// Servers are host:port pairs; a bare host gets port 53 appended.
	Servers []string      `yaml:"servers"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds TTLs for the two relay caches
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BlockTTL    time.Duration `yaml:"block_ttl"`
	ResponseTTL time.Duration `yaml:"response_ttl"`
}

// ClassifierConfig holds model loading and decision settings
type ClassifierConfig struct {
	ModelPath        string  `yaml:"model_path"`
	FeatureNamesPath string  `yaml:"feature_names_path"`
	Threshold        float64 `yaml:"threshold"`
	Extractor        string  `yaml:"extractor"` // base, enhanced
}

// BlockingConfig holds blocked-response settings
type BlockingConfig struct {
	Mode            string `yaml:"mode"` // nxdomain, sinkhole
	SinkholeAddress string `yaml:"sinkhole_address"`
	SinkholeTTL     uint32 `yaml:"sinkhole_ttl"`
}

// StorageConfig holds query-log storage settings
type StorageConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DatabasePath  string        `yaml:"database_path"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RetentionDays int           `yaml:"retention_days"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`      // debug, info, warn, error
	Format    string `yaml:"format"`     // json, text
	Output    string `yaml:"output"`     // stdout, stderr, file
	FilePath  string `yaml:"file_path"`  // if output=file
	AddSource bool   `yaml:"add_source"` // include source file/line
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ServiceName       string `yaml:"service_name"`
	ServiceVersion    string `yaml:"service_version"`
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
}

// Load loads the configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults creates a configuration with sensible defaults
func LoadWithDefaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults sets default values for unset configuration fields
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":53"
	}

	// Upstream defaults
	if len(c.Upstream.Servers) == 0 {
		c.Upstream.Servers = []string{"8.8.8.8:53"}
	}
	for i, upstream := range c.Upstream.Servers {
		if _, _, err := net.SplitHostPort(upstream); err != nil {
			c.Upstream.Servers[i] = net.JoinHostPort(upstream, "53")
		}
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 5 * time.Second
	}

	// Cache defaults
	if c.Cache.BlockTTL == 0 {
		c.Cache.BlockTTL = 5 * time.Minute
	}
	if c.Cache.ResponseTTL == 0 {
		c.Cache.ResponseTTL = 60 * time.Second
	}

	// Classifier defaults
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.5
	}
	if c.Classifier.Extractor == "" {
		c.Classifier.Extractor = ExtractorEnhanced
	}

	// Blocking defaults
	if c.Blocking.Mode == "" {
		c.Blocking.Mode = BlockModeNXDomain
	}
	if c.Blocking.SinkholeAddress == "" {
		c.Blocking.SinkholeAddress = "0.0.0.0"
	}
	if c.Blocking.SinkholeTTL == 0 {
		c.Blocking.SinkholeTTL = 60
	}

	// Storage defaults
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./adwarden.db"
	}
	if c.Storage.BufferSize == 0 {
		c.Storage.BufferSize = 1000
	}
	if c.Storage.FlushInterval == 0 {
		c.Storage.FlushInterval = 5 * time.Second
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	// Telemetry defaults
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "adwarden"
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = "dev"
	}
	if c.Telemetry.PrometheusPort == 0 {
		c.Telemetry.PrometheusPort = 9090
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	if len(c.Upstream.Servers) == 0 {
		return fmt.Errorf("at least one upstream resolver must be configured")
	}
	for _, upstream := range c.Upstream.Servers {
		if _, _, err := net.SplitHostPort(upstream); err != nil {
			return fmt.Errorf("invalid upstream address %q: %w", upstream, err)
		}
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}

	if c.Cache.BlockTTL <= 0 || c.Cache.ResponseTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be in [0,1], got %v", c.Classifier.Threshold)
	}
	if c.Classifier.Extractor != ExtractorBase && c.Classifier.Extractor != ExtractorEnhanced {
		return fmt.Errorf("invalid classifier.extractor: %s (must be base or enhanced)", c.Classifier.Extractor)
	}

	if c.Blocking.Mode != BlockModeNXDomain && c.Blocking.Mode != BlockModeSinkhole {
		return fmt.Errorf("invalid blocking.mode: %s (must be nxdomain or sinkhole)", c.Blocking.Mode)
	}
	if ip := net.ParseIP(c.Blocking.SinkholeAddress); ip == nil || ip.To4() == nil {
		return fmt.Errorf("blocking.sinkhole_address must be an IPv4 address, got %q", c.Blocking.SinkholeAddress)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	validOutputs := map[string]bool{
		"stdout": true,
		"stderr": true,
		"file":   true,
	}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid logging output: %s (must be stdout, stderr, or file)", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path must be set when output is 'file'")
	}

	return nil
}
