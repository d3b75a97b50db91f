package container

import (
	"context"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	"github.com/marmos91/kvcontainer/pkg/block"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// PutBlock writes b to the container's block table and persists the
// updated bytesUsed, blockCount and BCSID in the same batch. Writing a
// block that already exists replaces it without counting it twice.
func (m *Manager) PutBlock(ctx context.Context, d *Data, b *block.Data) (err error) {
	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerPutBlock, d.spanInfo())
	defer span.End()
	defer func() { telemetry.RecordError(ctx, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil {
		return containererrors.NewInvalidArgumentError("nil block")
	}
	if b.BlockID.ContainerID != d.ID {
		return containererrors.NewInvalidArgumentError("block belongs to another container")
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	h, err := m.acquire(d)
	if err != nil {
		return err
	}
	defer h.Close()
	s := h.Store()

	key := d.BlockKey(b.BlockID.LocalID)
	bytesUsed := d.BytesUsed() + int64(BlockLength(b))
	blockCount := d.BlockCount()

	old, err := s.BlockDataTable().Get(key)
	switch {
	case err == nil:
		bytesUsed -= int64(BlockLength(old))
	case containererrors.IsNotFound(err):
		blockCount++
	case containererrors.IsBlockParse(err):
		// The unreadable record was never counted in bytes.
		logger.WarnCtx(ctx, "Overwriting unreadable block", logger.KeyBlockKey, key)
	default:
		return err
	}

	batch := s.NewBatch()
	if err := s.BlockDataTable().PutWithBatch(batch, key, b); err != nil {
		return err
	}
	meta := s.MetadataTable()
	meta.PutWithBatch(batch, d.MetadataKey(BytesUsedKey), uint64(bytesUsed))
	meta.PutWithBatch(batch, d.MetadataKey(BlockCountKey), uint64(blockCount))
	if b.BlockCommitSequenceID > d.BlockCommitSequenceID() {
		meta.PutWithBatch(batch, d.MetadataKey(BCSIDKey), b.BlockCommitSequenceID)
	}
	if err := s.CommitBatch(batch); err != nil {
		return err
	}

	d.SetBytesUsed(bytesUsed)
	d.SetBlockCount(blockCount)
	d.UpdateBlockCommitSequenceID(b.BlockCommitSequenceID)
	return nil
}

// MarkBlocksForDeletion moves the given live blocks to the pending-delete
// partition and persists the pending count and the delete transaction id
// in one batch. Unknown, repeated and unreadable ids are skipped; any other
// read error aborts without writing. It returns the number of blocks moved.
//
// Pending-delete blocks keep counting towards blockCount and bytesUsed
// until they are purged.
func (m *Manager) MarkBlocksForDeletion(ctx context.Context, d *Data, txnID uint64, localIDs []int64) (moved int, err error) {
	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerMarkDel, d.spanInfo())
	defer span.End()
	defer func() { telemetry.RecordError(ctx, err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	h, err := m.acquire(d)
	if err != nil {
		return 0, err
	}
	defer h.Close()
	s := h.Store()
	blocks := s.BlockDataTable()

	batch := s.NewBatch()
	seen := make(map[int64]struct{}, len(localIDs))
	for _, id := range localIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		key := d.BlockKey(id)
		b, err := blocks.Get(key)
		switch {
		case err == nil:
		case containererrors.IsNotFound(err):
			logger.DebugCtx(ctx, "Block not found, skipping", logger.KeyContainerID, d.ID, logger.KeyLocalID, id)
			continue
		case containererrors.IsBlockParse(err):
			logger.WarnCtx(ctx, "Cannot mark unreadable block for deletion",
				logger.KeyContainerID, d.ID, logger.KeyLocalID, id, logger.KeyError, err)
			continue
		default:
			return 0, err
		}
		blocks.DeleteWithBatch(batch, key)
		if err := blocks.PutWithBatch(batch, d.DeletingBlockKey(id), b); err != nil {
			return 0, err
		}
		moved++
	}
	if moved == 0 && txnID <= d.DeleteTransactionID() {
		return 0, nil
	}

	pending := d.PendingDeletionBlocks() + int64(moved)
	meta := s.MetadataTable()
	meta.PutWithBatch(batch, d.MetadataKey(PendingDeleteBlockCountKey), uint64(pending))
	if txnID > d.DeleteTransactionID() {
		meta.PutWithBatch(batch, d.MetadataKey(DeleteTxnKey), txnID)
	}
	if err := s.CommitBatch(batch); err != nil {
		return 0, err
	}

	d.SetPendingDeletionBlocks(pending)
	d.UpdateDeleteTransactionID(txnID)
	logger.DebugCtx(ctx, "Blocks marked for deletion",
		logger.KeyContainerID, d.ID,
		logger.KeyTxnID, txnID,
		logger.KeyCount, moved)
	return moved, nil
}
