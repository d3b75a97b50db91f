package container

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
)

// IsEmpty reports whether the chunks directory of d has no entries.
// A missing directory counts as empty.
func (m *Manager) IsEmpty(d *Data) (bool, error) {
	return chunksDirEmpty(d.ChunksPath)
}

func chunksDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, containererrors.NewIOError(dir, "failed to open chunks directory", err)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, containererrors.NewIOError(dir, "failed to list chunks directory", err)
	}
	return false, nil
}

// Delete removes a container from this node.
//
// Unless force is set, the container must have a zero block count, an
// empty chunks directory and no live rows in its block table; otherwise
// Delete fails with ContainerNotEmpty and changes nothing. The store entry
// is then disposed (the container's key range for a shared store, the
// whole private store otherwise) and the metadata directory, chunks
// directory and their parent are removed.
func (m *Manager) Delete(ctx context.Context, d *Data, force bool) (err error) {
	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerDelete, d.spanInfo(), telemetry.Force(force))
	defer span.End()

	outcome := "error"
	defer func() {
		telemetry.RecordError(ctx, err)
		if m.metrics != nil {
			m.metrics.RecordDelete(force, outcome)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	version := d.schema()
	dbPath := d.StorePath()
	_, statErr := os.Stat(dbPath)
	storeExists := statErr == nil

	if !force {
		if reason, err := m.checkEmpty(d, version, dbPath, storeExists); err != nil {
			return err
		} else if reason != containererrors.ReasonNone {
			outcome = reason.String()
			span.SetAttributes(telemetry.Reason(outcome))
			logger.WarnCtx(ctx, "Refusing to delete non-empty container",
				logger.KeyContainerID, d.ID, logger.KeyReason, outcome)
			return containererrors.NewContainerNotEmptyError(d.ID, reason)
		}
	}

	if version.Shared() {
		if storeExists {
			h, err := m.cache.Acquire(version, dbPath)
			if err != nil {
				return err
			}
			removeErr := h.Store().RemoveContainer(d.ID)
			_ = h.Close()
			if removeErr != nil {
				return removeErr
			}
		}
	} else if err := m.cache.ForceEvict(dbPath); err != nil {
		logger.ErrorCtx(ctx, "Failed to stop container store, keeping directories",
			logger.KeyContainerID, d.ID, logger.KeyStorePath, dbPath, logger.KeyError, err)
		return containererrors.NewIOError(dbPath, "failed to stop container store", err)
	}

	for _, dir := range []string{d.MetadataPath, d.ChunksPath, filepath.Dir(d.MetadataPath)} {
		if err := os.RemoveAll(dir); err != nil {
			return containererrors.NewIOError(dir, "failed to remove container directory", err)
		}
	}

	d.State = StateDeleted
	d.setLifecycle(Removed)
	outcome = DeleteOutcomeDeleted
	logger.InfoCtx(ctx, "Container deleted",
		logger.KeyContainerID, d.ID, logger.KeyForce, force)
	return nil
}

// checkEmpty evaluates the non-forced delete preconditions in order and
// returns the first one violated.
func (m *Manager) checkEmpty(d *Data, version store.SchemaVersion, dbPath string, storeExists bool) (containererrors.NotEmptyReason, error) {
	if d.BlockCount() != 0 {
		return containererrors.ReasonBlockCountNonZero, nil
	}

	empty, err := chunksDirEmpty(d.ChunksPath)
	if err != nil {
		return containererrors.ReasonNone, err
	}
	if !empty {
		return containererrors.ReasonFilesOnDisk, nil
	}

	if !storeExists {
		logger.Warn("Container store is missing, skipping block table check",
			logger.KeyContainerID, d.ID, logger.KeyStorePath, dbPath)
		return containererrors.ReasonNone, nil
	}

	h, err := m.cache.Acquire(version, dbPath)
	if err != nil {
		return containererrors.ReasonNone, err
	}
	defer h.Close()

	rows, err := h.Store().BlockDataTable().GetRangeKVs("", 1, d.KeyPrefix(), store.LiveBlockFilter())
	if err != nil {
		if containererrors.IsBlockParse(err) {
			// An unreadable live row is still a row.
			return containererrors.ReasonBlockTableNotEmpty, nil
		}
		return containererrors.ReasonNone, err
	}
	if len(rows) > 0 {
		return containererrors.ReasonBlockTableNotEmpty, nil
	}
	return containererrors.ReasonNone, nil
}
