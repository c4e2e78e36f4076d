// Package archive writes snapshots of finished Roscas to object storage.
// Uploads run on a bounded worker pool so the operation that completes a
// Rosca never waits for the archive.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// SnapshotVersion is the format version written by this package.
const SnapshotVersion = 1

const keyPrefix = "roscas/"

// ErrNotArchived is returned for Roscas without a snapshot.
var ErrNotArchived = errors.New("rosca not archived")

// Snapshot is the archived record of one Rosca.
type Snapshot struct {
	Version    int                      `json:"version"`
	ArchivedAt time.Time                `json:"archived_at"`
	State      *rosca.State             `json:"state"`
	Summary    *projection.Summary      `json:"summary,omitempty"`
	Rounds     []projection.RoundRecord `json:"rounds,omitempty"`
	Events     []projection.Record      `json:"events,omitempty"`
}

func snapshotKey(id rosca.ID) string { return fmt.Sprintf("%s%010d.json", keyPrefix, uint64(id)) }

// Archiver uploads snapshots through a physical backend.
type Archiver struct {
	backend physical.Backend
	pool    pond.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New returns an archiver running at most workers uploads at once.
// metrics may be nil.
func New(backend physical.Backend, workers int, metrics *observability.Metrics, logger *slog.Logger) *Archiver {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		backend: backend,
		pool:    pond.NewPool(workers, pond.WithQueueSize(workers*64)),
		metrics: metrics,
		logger:  logger.With("component", "archive"),
	}
}

// Submit queues snap for upload and returns the pending task. Failures are
// logged and counted, and surface from the task's Wait.
func (a *Archiver) Submit(ctx context.Context, snap Snapshot) pond.Task {
	ctx = context.WithoutCancel(ctx)
	return a.pool.SubmitErr(func() error {
		err := a.Put(ctx, snap)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive upload failed", "error", err)
		}
		return err
	})
}

// Put uploads snap synchronously.
func (a *Archiver) Put(ctx context.Context, snap Snapshot) (err error) {
	op, ctx := observability.StartOperation(ctx, a.metrics, "archive.put")
	defer func() {
		op.End(err)
		a.record(err)
	}()

	if snap.State == nil {
		return errors.New("snapshot without state")
	}
	if snap.Version == 0 {
		snap.Version = SnapshotVersion
	}
	if snap.ArchivedAt.IsZero() {
		snap.ArchivedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %d: %w", snap.State.ID, err)
	}
	if err := a.backend.Put(ctx, snapshotKey(snap.State.ID), data); err != nil {
		return fmt.Errorf("upload snapshot %d: %w", snap.State.ID, err)
	}
	a.logger.InfoContext(ctx, "rosca archived", "rosca_id", snap.State.ID, "bytes", len(data))
	return nil
}

func (a *Archiver) record(err error) {
	if a.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.ArchiveUploads.WithLabelValues(status).Inc()
}

// Get downloads the snapshot of id.
func (a *Archiver) Get(ctx context.Context, id rosca.ID) (*Snapshot, error) {
	data, err := a.backend.Get(ctx, snapshotKey(id))
	if errors.Is(err, physical.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotArchived, id)
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", id, err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot %d has unsupported version %d", id, snap.Version)
	}
	return &snap, nil
}

// List returns the ids of archived Roscas in ascending order.
func (a *Archiver) List(ctx context.Context) ([]rosca.ID, error) {
	keys, err := a.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]rosca.ID, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(k, keyPrefix), ".json")
		n, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping foreign archive object", "key", k)
			continue
		}
		ids = append(ids, rosca.ID(n))
	}
	return ids, nil
}

// Close waits for queued uploads and closes the backend.
func (a *Archiver) Close() error {
	a.pool.StopAndWait()
	return a.backend.Close()
}
