package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the node configuration.
type Config struct {
	DataDir       string              `mapstructure:"data_dir" yaml:"data_dir"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	GRPC          GRPCConfig          `mapstructure:"grpc" yaml:"grpc"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Storage       BackendConfig       `mapstructure:"storage" yaml:"storage"`
	Archive       ArchiveConfig       `mapstructure:"archive" yaml:"archive"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper" yaml:"sweeper"`
}

// BackendConfig names a registered backend and its string options.
type BackendConfig struct {
	Backend string            `mapstructure:"backend" yaml:"backend"`
	Config  map[string]string `mapstructure:"config" yaml:"config,omitempty"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// GRPCConfig configures the grpc.health.v1 listener. An empty Addr
// disables it.
type GRPCConfig struct {
	HealthAddr string `mapstructure:"health_addr" yaml:"health_addr"`
}

type ArchiveConfig struct {
	Backend string            `mapstructure:"backend" yaml:"backend"`
	Config  map[string]string `mapstructure:"config" yaml:"config,omitempty"`
	Workers int               `mapstructure:"workers" yaml:"workers"`
}

type SweeperConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

type ObservabilityConfig struct {
	LogLevel       string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat      string  `mapstructure:"log_format" yaml:"log_format"`
	MetricsAddr    string  `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPProtocol   string  `mapstructure:"otlp_protocol" yaml:"otlp_protocol"`
	SampleRatio    float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
}

// Validate reports settings the node cannot start with.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.Burst < 1 {
		return fmt.Errorf("http.burst must be at least 1 when rate limiting")
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage.backend is required")
	}
	if c.Archive.Workers < 1 {
		return fmt.Errorf("archive.workers must be at least 1")
	}
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("observability.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func Dump(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
