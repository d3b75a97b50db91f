package container

import (
	"context"
	"os"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	"github.com/marmos91/kvcontainer/pkg/block"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
)

// ReconcileResult describes how a reconcile arrived at its counters.
type ReconcileResult struct {
	// FullScan is set when blockCount and bytesUsed were recomputed from
	// the block table.
	FullScan bool

	// CorruptBlocks is the number of blocks that failed to decode during
	// the scan and were excluded from the totals.
	CorruptBlocks int
}

// Reconcile makes the in-memory counters of d consistent with what is
// persisted in s.
//
// Persisted counters are adopted as they are. When either blockCount or
// bytesUsed is missing, both are recomputed by scanning the live and the
// pending-delete partitions of the block table; pending-delete blocks still
// count as present data. Blocks that fail to decode are logged and excluded.
// Reconcile also recreates a missing chunks directory and finally runs the
// inspector hook.
func (m *Manager) Reconcile(ctx context.Context, d *Data, s store.Store) (result ReconcileResult, err error) {
	ctx, span := telemetry.StartContainerSpan(ctx, telemetry.SpanContainerReconcile, d.spanInfo())
	defer span.End()
	defer func() { telemetry.RecordError(ctx, err) }()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	meta := s.MetadataTable()
	blocks := s.BlockDataTable()

	// Pending-delete block count.
	pending, ok, err := meta.Get(d.MetadataKey(PendingDeleteBlockCountKey))
	if err != nil {
		return result, err
	}
	if ok {
		d.SetPendingDeletionBlocks(int64(pending))
	} else {
		n, err := blocks.Count(d.KeyPrefix(), store.DeletingBlockFilter())
		if err != nil {
			return result, err
		}
		d.SetPendingDeletionBlocks(int64(n))
	}

	// Latest delete transaction and block commit sequence id.
	if txn, ok, err := meta.Get(d.MetadataKey(DeleteTxnKey)); err != nil {
		return result, err
	} else if ok {
		d.UpdateDeleteTransactionID(txn)
	}
	if bcsID, ok, err := meta.Get(d.MetadataKey(BCSIDKey)); err != nil {
		return result, err
	} else if ok {
		d.UpdateBlockCommitSequenceID(bcsID)
	}

	// Block count and bytes used.
	bytesUsed, haveBytes, err := meta.Get(d.MetadataKey(BytesUsedKey))
	if err != nil {
		return result, err
	}
	blockCount, haveCount, err := meta.Get(d.MetadataKey(BlockCountKey))
	if err != nil {
		return result, err
	}

	if haveBytes && haveCount {
		d.SetBytesUsed(int64(bytesUsed))
		d.SetBlockCount(int64(blockCount))
	} else {
		result.FullScan = true
		var total ScanTotals
		for _, filter := range []store.KeyFilter{store.LiveBlockFilter(), store.DeletingBlockFilter()} {
			t, err := ScanBlocks(d, s, filter)
			if err != nil {
				return result, err
			}
			total.Add(t)
		}
		result.CorruptBlocks = total.Corrupt
		d.SetBytesUsed(total.Bytes)
		d.SetBlockCount(total.Count)
	}

	// A missing chunks directory is recreated empty.
	if _, statErr := os.Stat(d.ChunksPath); os.IsNotExist(statErr) {
		logger.WarnCtx(ctx, "Chunks directory missing, recreating",
			logger.KeyContainerID, d.ID, logger.KeyChunksPath, d.ChunksPath)
		if err := os.MkdirAll(d.ChunksPath, 0o755); err != nil {
			return result, containererrors.NewDirectoryCreateError(d.ChunksPath, err)
		}
	}

	if err := m.inspector.Process(ctx, d, s); err != nil {
		logger.ErrorCtx(ctx, "Container inspector failed",
			logger.KeyContainerID, d.ID, logger.KeyError, err)
	}

	span.SetAttributes(telemetry.FullScan(result.FullScan), telemetry.CorruptBlocks(result.CorruptBlocks))
	if m.metrics != nil {
		m.metrics.RecordReconcile(result.FullScan, result.CorruptBlocks)
	}
	logger.DebugCtx(ctx, "Container reconciled",
		logger.KeyContainerID, d.ID,
		logger.KeyFullScan, result.FullScan,
		logger.KeyBlockCount, d.BlockCount(),
		logger.KeyBytesUsed, d.BytesUsed(),
		logger.KeyPendingCount, d.PendingDeletionBlocks())
	return result, nil
}

// ScanTotals is the result of scanning a partition of the block table.
type ScanTotals struct {
	Count   int64
	Bytes   int64
	Corrupt int
}

// Add accumulates o into t.
func (t *ScanTotals) Add(o ScanTotals) {
	t.Count += o.Count
	t.Bytes += o.Bytes
	t.Corrupt += o.Corrupt
}

// ScanBlocks counts the blocks of d in s whose keys pass filter and sums
// their lengths. A block that fails to decode still counts as a block but
// adds no bytes; it is logged and reported as corrupt.
func ScanBlocks(d *Data, s store.Store, filter store.KeyFilter) (ScanTotals, error) {
	var t ScanTotals
	it, err := s.BlockIterator(d.ID, filter)
	if err != nil {
		return t, err
	}
	defer it.Close()

	for it.HasNext() {
		b, err := it.NextBlock()
		if err != nil {
			if containererrors.IsBlockParse(err) {
				t.Count++
				t.Corrupt++
				logger.Error("Skipping unreadable block",
					logger.KeyContainerID, d.ID, logger.KeyError, err)
				continue
			}
			return t, err
		}
		t.Count++
		t.Bytes += int64(BlockLength(b))
	}
	return t, nil
}

// BlockLength returns the sum of the chunk lengths of b.
func BlockLength(b *block.Data) uint64 {
	return block.Length(b)
}
