// Package node assembles a rosca node from configuration: storage
// backends, ledger, projection, archive and the service on top.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"

	"github.com/gezibash/arc-rosca/internal/archive"
	archivephysical "github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/config"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/internal/service"
	"github.com/gezibash/arc-rosca/internal/store"
	storephysical "github.com/gezibash/arc-rosca/internal/store/physical"
	"github.com/gezibash/arc-rosca/pkg/logging"
	"github.com/gezibash/arc-rosca/pkg/rosca"

	// Register archive backends
	_ "github.com/gezibash/arc-rosca/internal/archive/physical/fs"
	_ "github.com/gezibash/arc-rosca/internal/archive/physical/memory"
	_ "github.com/gezibash/arc-rosca/internal/archive/physical/s3"

	// Register store backends
	_ "github.com/gezibash/arc-rosca/internal/store/physical/badger"
	_ "github.com/gezibash/arc-rosca/internal/store/physical/redis"
	_ "github.com/gezibash/arc-rosca/internal/store/physical/sqlite"
)

// dataDirPaths are the backend paths placed under the data directory when
// the configuration does not set one.
var dataDirPaths = map[string]string{
	"badger": "state",
	"sqlite": "rosca.db",
	"fs":     "archive",
}

func backendConfig(cfg config.BackendConfig, dataDir string) map[string]string {
	out := maps.Clone(cfg.Config)
	if out == nil {
		out = map[string]string{}
	}
	if rel, ok := dataDirPaths[cfg.Backend]; ok && dataDir != "" && out["path"] == "" {
		out["path"] = filepath.Join(dataDir, rel)
	}
	return out
}

// Node is an assembled rosca node.
type Node struct {
	Service    *service.Service
	Store      *store.Store
	Ledger     *store.Ledger
	Projection *projection.Projector
	Archive    *archive.Archiver

	backend storephysical.Backend
}

// Options carries the parts of a node that do not come from configuration.
type Options struct {
	Clock   rosca.Clock
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Open creates the backends named in cfg and the service over them.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Node, error) {
	backend, err := storephysical.New(ctx, cfg.Storage.Backend, backendConfig(cfg.Storage, cfg.DataDir), opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("create store backend: %w", err)
	}

	n := &Node{
		Store:      store.New(backend, opts.Metrics),
		Ledger:     store.NewLedger(backend, opts.Metrics),
		Projection: projection.New(backend, opts.Metrics),
		backend:    backend,
	}

	if cfg.Archive.Backend != "" && cfg.Archive.Backend != "none" {
		ab, err := archivephysical.New(ctx, cfg.Archive.Backend, backendConfig(config.BackendConfig{Backend: cfg.Archive.Backend, Config: cfg.Archive.Config}, cfg.DataDir), opts.Metrics)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("create archive backend: %w", err)
		}
		n.Archive = archive.New(ab, cfg.Archive.Workers, opts.Metrics, opts.Logger)
	}

	n.Service = service.New(n.Store, n.Ledger, n.Projection, service.Options{
		Clock:   opts.Clock,
		Archive: n.Archive,
		Metrics: opts.Metrics,
		Logger:  logging.New(opts.Logger),
	})
	if err := n.Service.RefreshGauges(ctx); err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("load active roscas: %w", err)
	}
	return n, nil
}

// Close drains the archive queue and closes the backends.
func (n *Node) Close() error {
	var errs []error
	if n.Archive != nil {
		errs = append(errs, n.Archive.Close())
	}
	errs = append(errs, n.backend.Close())
	return errors.Join(errs...)
}
