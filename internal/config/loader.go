package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROSCA_HTTP_ADDR.
const EnvPrefix = "ROSCA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())

	v.SetDefault("http.addr", Defaults.HTTPAddr)
	v.SetDefault("http.rate_limit", Defaults.RateLimit)
	v.SetDefault("http.burst", Defaults.Burst)

	v.SetDefault("grpc.health_addr", Defaults.HealthAddr)

	v.SetDefault("observability.log_level", Defaults.LogLevel)
	v.SetDefault("observability.log_format", Defaults.LogFormat)
	v.SetDefault("observability.metrics_addr", Defaults.MetricsAddr)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.sample_ratio", 1.0)
	v.SetDefault("observability.service_name", Defaults.ServiceName)
	v.SetDefault("observability.service_version", "dev")

	v.SetDefault("storage.backend", Defaults.StorageBackend)

	v.SetDefault("archive.backend", Defaults.ArchiveBackend)
	v.SetDefault("archive.workers", Defaults.ArchiveWorkers)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", Defaults.SweeperSchedule)
}

// BindNodeFlags binds the flags of `rosca node start` to viper.
func BindNodeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("health-addr", "", "gRPC health listen address")
	f.String("storage", "", "storage backend (memory, badger, redis, sqlite)")
	f.String("archive", "", "archive backend (fs, s3, memory, none)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")
	f.String("metrics-addr", "", "dedicated metrics listen address")
	f.Bool("no-sweep", false, "disable the expired rosca sweeper")

	_ = v.BindPFlag("http.addr", f.Lookup("addr"))
	_ = v.BindPFlag("grpc.health_addr", f.Lookup("health-addr"))
	_ = v.BindPFlag("storage.backend", f.Lookup("storage"))
	_ = v.BindPFlag("archive.backend", f.Lookup("archive"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
}

// Load reads config from flags, env, and file, returning the merged Config.
// A missing file is only an error when configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("rosca")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
		v.AddConfigPath("/etc/rosca")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && (configFile != "" || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NodeAddr returns the remote node address for client commands.
// Priority: flag > ROSCA_NODE env > empty (run in-process).
func NodeAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return strings.TrimSpace(os.Getenv(EnvPrefix + "_NODE"))
}

// NodeHealthAddr resolves the gRPC health address of a remote node the same
// way, from the flag or ROSCA_NODE_HEALTH. Empty means ping over HTTP.
func NodeHealthAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return strings.TrimSpace(os.Getenv(EnvPrefix + "_NODE_HEALTH"))
}
