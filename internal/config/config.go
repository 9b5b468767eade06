// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Storage() StorageConfig
	Detection() DetectionConfig
	Classifier() ClassifierConfig
	Topology() TopologyConfig
	Mitigation() MitigationConfig
	Server() ServerConfig

	// Setters for values that CLI flags override.
	SetDatabaseURL(url string)
	SetStorageFallbackPath(path string)
	SetDetectionBatchSize(n int)
	SetServerAddr(addr string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	StorageCfg    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	DetectionCfg  DetectionConfig  `mapstructure:"detection" yaml:"detection"`
	ClassifierCfg ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	TopologyCfg   TopologyConfig   `mapstructure:"topology" yaml:"topology"`
	MitigationCfg MitigationConfig `mapstructure:"mitigation" yaml:"mitigation"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Storage() StorageConfig       { return c.StorageCfg }
func (c *Config) Detection() DetectionConfig   { return c.DetectionCfg }
func (c *Config) Classifier() ClassifierConfig { return c.ClassifierCfg }
func (c *Config) Topology() TopologyConfig     { return c.TopologyCfg }
func (c *Config) Mitigation() MitigationConfig { return c.MitigationCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDatabaseURL(url string)          { c.DatabaseCfg.URL = url }
func (c *Config) SetStorageFallbackPath(path string) { c.StorageCfg.FallbackPath = path }
func (c *Config) SetDetectionBatchSize(n int)        { c.DetectionCfg.BatchSize = n }
func (c *Config) SetServerAddr(addr string)          { c.ServerCfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the primary store connection details. An empty URL
// runs the core in fallback-only mode.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// StorageConfig tunes the persistence adapter.
type StorageConfig struct {
	FallbackPath string `mapstructure:"fallback_path" yaml:"fallback_path"`
	// Retention caps the snapshot; the oldest alerts are dropped beyond it.
	Retention int `mapstructure:"retention" yaml:"retention"`
	// Cooldown is how long the gate stays open after a primary failure.
	Cooldown      time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	WatchFallback bool          `mapstructure:"watch_fallback" yaml:"watch_fallback"`
}

// DetectionConfig configures a detection run.
type DetectionConfig struct {
	BatchSize        int    `mapstructure:"batch_size" yaml:"batch_size"`
	OffenderCapacity int    `mapstructure:"offender_capacity" yaml:"offender_capacity"`
	BaselineLabel    string `mapstructure:"baseline_label" yaml:"baseline_label"`
	// FlowFile, when set, is tailed for JSON-lines flow records instead of
	// using the built-in synthesizer.
	FlowFile string `mapstructure:"flow_file" yaml:"flow_file"`
}

// ClassifierConfig selects and configures the model adapter.
type ClassifierConfig struct {
	Type      string        `mapstructure:"type" yaml:"type"` // "heuristic" or "remote"
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Burst     int           `mapstructure:"burst" yaml:"burst"`
}

// TopologyConfig configures the topology projector.
type TopologyConfig struct {
	GraphFile   string `mapstructure:"graph_file" yaml:"graph_file"`
	AlertWindow int    `mapstructure:"alert_window" yaml:"alert_window"`
}

// MitigationConfig configures where block requests are published.
type MitigationConfig struct {
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// ServerConfig configures the HTTP presentation layer.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aegiscore")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.connect_timeout", "5s")

	// -- Storage --
	v.SetDefault("storage.fallback_path", "threats.json")
	v.SetDefault("storage.retention", 200)
	v.SetDefault("storage.cooldown", "10s")
	v.SetDefault("storage.watch_fallback", false)

	// -- Detection --
	v.SetDefault("detection.batch_size", 50)
	v.SetDefault("detection.offender_capacity", 4096)
	v.SetDefault("detection.baseline_label", "Normal")
	v.SetDefault("detection.flow_file", "")

	// -- Classifier --
	v.SetDefault("classifier.type", "heuristic")
	v.SetDefault("classifier.endpoint", "http://localhost:8500")
	v.SetDefault("classifier.timeout", "3s")
	v.SetDefault("classifier.rate_limit", 50.0)
	v.SetDefault("classifier.burst", 10)

	// -- Topology --
	v.SetDefault("topology.graph_file", "")
	v.SetDefault("topology.alert_window", 200)

	// -- Mitigation --
	v.SetDefault("mitigation.nats_url", "")
	v.SetDefault("mitigation.subject", "aegis.mitigation.block")

	// -- Server --
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("database.url", "AEGIS_DATABASE_URL")
	_ = v.BindEnv("mitigation.nats_url", "AEGIS_NATS_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	// database.url is optional: without it the adapter serves from the fallback file.
	if c.StorageCfg.FallbackPath == "" {
		return fmt.Errorf("storage.fallback_path is required")
	}
	if c.StorageCfg.Retention <= 0 {
		return fmt.Errorf("storage.retention must be a positive integer")
	}
	if c.StorageCfg.Cooldown <= 0 {
		return fmt.Errorf("storage.cooldown must be a positive duration")
	}
	if c.DatabaseCfg.ConnectTimeout <= 0 {
		return fmt.Errorf("database.connect_timeout must be a positive duration")
	}
	if err := c.DetectionCfg.Validate(); err != nil {
		return fmt.Errorf("detection configuration invalid: %w", err)
	}
	if err := c.ClassifierCfg.Validate(); err != nil {
		return fmt.Errorf("classifier configuration invalid: %w", err)
	}
	if c.TopologyCfg.AlertWindow <= 0 {
		return fmt.Errorf("topology.alert_window must be a positive integer")
	}
	return nil
}

// Validate checks the detection settings.
func (d *DetectionConfig) Validate() error {
	if d.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be a positive integer")
	}
	if d.OffenderCapacity <= 0 {
		return fmt.Errorf("offender_capacity must be a positive integer")
	}
	if d.BaselineLabel == "" {
		return fmt.Errorf("baseline_label is required")
	}
	return nil
}

// Validate checks the classifier settings.
func (c *ClassifierConfig) Validate() error {
	switch c.Type {
	case "heuristic":
		return nil
	case "remote":
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the remote classifier")
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("timeout must be a positive duration")
		}
		if c.RateLimit <= 0 {
			return fmt.Errorf("rate_limit must be positive")
		}
		return nil
	default:
		return fmt.Errorf("unknown classifier type %q", c.Type)
	}
}
