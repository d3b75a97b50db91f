// Package inspector checks the persisted counters of a container against
// its block table and optionally repairs them.
package inspector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/store"
)

// EnvVar enables the inspector out of band. It overrides the configured mode.
const EnvVar = "KVCONTAINER_INSPECTOR"

// Mode selects what the inspector does.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeInspect Mode = "inspect"
	ModeRepair  Mode = "repair"
)

// ParseMode parses a mode name. The empty string is ModeOff.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOff:
		return ModeOff, nil
	case ModeInspect:
		return ModeInspect, nil
	case ModeRepair:
		return ModeRepair, nil
	}
	return ModeOff, fmt.Errorf("invalid inspector mode %q (want off, inspect or repair)", s)
}

// Counter is one persisted counter compared with its computed value.
type Counter struct {
	Key       string
	Persisted uint64
	Present   bool
	Computed  uint64
}

// Mismatch reports whether the persisted value disagrees with the scan.
func (c Counter) Mismatch() bool {
	return !c.Present || c.Persisted != c.Computed
}

// Report is the result of inspecting one container.
type Report struct {
	ContainerID   int64
	Counters      []Counter
	CorruptBlocks int
	Repaired      bool
}

// Mismatches returns the counters that disagree with the block table.
func (r *Report) Mismatches() []Counter {
	var out []Counter
	for _, c := range r.Counters {
		if c.Mismatch() {
			out = append(out, c)
		}
	}
	return out
}

// MetadataInspector implements container.Inspector.
type MetadataInspector struct {
	mode Mode
}

// New creates an inspector running in mode, unless EnvVar selects another
// valid mode.
func New(mode Mode) *MetadataInspector {
	if env := os.Getenv(EnvVar); env != "" {
		if m, err := ParseMode(env); err == nil {
			mode = m
		} else {
			logger.Warn("Ignoring invalid inspector mode from environment", logger.KeyMode, env, logger.KeyError, err)
		}
	}
	return &MetadataInspector{mode: mode}
}

// Mode returns the active mode.
func (i *MetadataInspector) Mode() Mode {
	return i.mode
}

// Process implements container.Inspector.
func (i *MetadataInspector) Process(ctx context.Context, d *container.Data, s store.Store) error {
	if i.mode == ModeOff {
		return nil
	}
	_, err := i.Inspect(ctx, d, s)
	return err
}

// Inspect scans the container and compares the persisted counters with the
// scan. In repair mode, mismatching counters are rewritten in one batch and
// the in-memory counters of d are updated.
func (i *MetadataInspector) Inspect(ctx context.Context, d *container.Data, s store.Store) (*Report, error) {
	live, err := container.ScanBlocks(d, s, store.LiveBlockFilter())
	if err != nil {
		return nil, err
	}
	deleting, err := container.ScanBlocks(d, s, store.DeletingBlockFilter())
	if err != nil {
		return nil, err
	}
	total := live
	total.Add(deleting)

	report := &Report{ContainerID: d.ID, CorruptBlocks: total.Corrupt}
	computed := []struct {
		key   string
		value uint64
	}{
		{container.BlockCountKey, uint64(total.Count)},
		{container.BytesUsedKey, uint64(total.Bytes)},
		{container.PendingDeleteBlockCountKey, uint64(deleting.Count)},
	}

	meta := s.MetadataTable()
	for _, c := range computed {
		v, ok, err := meta.Get(d.MetadataKey(c.key))
		if err != nil {
			return nil, err
		}
		report.Counters = append(report.Counters, Counter{Key: c.key, Persisted: v, Present: ok, Computed: c.value})
	}

	mismatches := report.Mismatches()
	if len(mismatches) == 0 {
		logger.DebugCtx(ctx, "Container metadata consistent", logger.KeyContainerID, d.ID)
		return report, nil
	}

	for _, c := range mismatches {
		logger.WarnCtx(ctx, "Container metadata mismatch",
			logger.KeyContainerID, d.ID,
			"counter", c.Key,
			"persisted", c.Persisted,
			"present", c.Present,
			"computed", c.Computed)
	}

	if i.mode != ModeRepair {
		return report, nil
	}

	batch := s.NewBatch()
	for _, c := range mismatches {
		meta.PutWithBatch(batch, d.MetadataKey(c.Key), c.Computed)
	}
	if err := s.CommitBatch(batch); err != nil {
		return report, fmt.Errorf("failed to repair container %d: %w", d.ID, err)
	}

	d.SetBlockCount(total.Count)
	d.SetBytesUsed(total.Bytes)
	d.SetPendingDeletionBlocks(deleting.Count)
	report.Repaired = true
	logger.InfoCtx(ctx, "Container metadata repaired",
		logger.KeyContainerID, d.ID, logger.KeyCount, len(mismatches))
	return report, nil
}
