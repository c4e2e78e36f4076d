// Package config provides configuration loading and defaults for the rosca
// node and CLI.
package config

import (
	"os"
	"path/filepath"
)

// Defaults contains default values shared by the node and the CLI.
var Defaults = struct {
	HTTPAddr        string
	HealthAddr      string
	NodeAddr        string
	RateLimit       float64
	Burst           int
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	StorageBackend  string
	ArchiveBackend  string
	ArchiveWorkers  int
	SweeperSchedule string
	ServiceName     string
}{
	HTTPAddr:        ":8480",
	HealthAddr:      ":8481",
	NodeAddr:        "http://localhost:8480",
	RateLimit:       50,
	Burst:           100,
	LogLevel:        "info",
	LogFormat:       "text",
	MetricsAddr:     "",
	StorageBackend:  "badger",
	ArchiveBackend:  "fs",
	ArchiveWorkers:  4,
	SweeperSchedule: "@every 1m",
	ServiceName:     "rosca",
}

// DefaultDataDir returns the default data directory (~/.rosca).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rosca"
	}
	return filepath.Join(home, ".rosca")
}
