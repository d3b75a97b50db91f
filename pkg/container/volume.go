package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"golang.org/x/sync/errgroup"
)

// ContainerResult is the load outcome of one container of a volume.
type ContainerResult struct {
	Descriptor string
	Data       *Data
	Outcome    string
	Err        error
}

// VolumeReport summarizes a LoadVolume run.
type VolumeReport struct {
	Volume   string
	Results  []ContainerResult
	Duration time.Duration
}

func (r *VolumeReport) count(outcome string) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Loaded returns the number of containers loaded successfully.
func (r *VolumeReport) Loaded() int { return r.count(LoadOutcomeLoaded) }

// Skipped returns the number of containers skipped for a missing store.
func (r *VolumeReport) Skipped() int { return r.count(LoadOutcomeSkipped) }

// Failed returns the number of containers that failed to load.
func (r *VolumeReport) Failed() int { return r.count(LoadOutcomeFailed) }

// Containers returns the loaded containers ordered by id.
func (r *VolumeReport) Containers() []*Data {
	var out []*Data
	for _, res := range r.Results {
		if res.Outcome == LoadOutcomeLoaded {
			out = append(out, res.Data)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadVolume loads every container found under volumeRoot with at most
// concurrency loads in flight. A failing container never stops its
// siblings; its error is recorded in the report.
func LoadVolume(ctx context.Context, m *Manager, volumeRoot string, concurrency int) (*VolumeReport, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanVolumeLoad)
	span.SetAttributes(telemetry.Volume(volumeRoot))
	defer span.End()

	paths, err := filepath.Glob(descriptorGlob(volumeRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers of %s: %w", volumeRoot, err)
	}
	sort.Strings(paths)

	if concurrency <= 0 {
		concurrency = 1
	}

	report := &VolumeReport{
		Volume:  volumeRoot,
		Results: make([]ContainerResult, len(paths)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			telemetry.ProfileOperation(gctx, "load", func(ctx context.Context) {
				report.Results[i] = loadOne(ctx, m, volumeRoot, path)
			})
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	logger.InfoCtx(ctx, "Volume loaded",
		logger.KeyVolume, volumeRoot,
		"loaded", report.Loaded(),
		"skipped", report.Skipped(),
		"failed", report.Failed(),
		logger.KeyDurationMs, logger.Duration(start))
	return report, nil
}

func loadOne(ctx context.Context, m *Manager, volumeRoot, path string) ContainerResult {
	res := ContainerResult{Descriptor: path, Outcome: LoadOutcomeFailed}

	desc, err := ReadDescriptor(path)
	if err != nil {
		res.Err = err
		logger.Error("Failed to read container descriptor", logger.KeyDescriptor, path, logger.KeyError, err)
		return res
	}

	d := desc.Data(volumeRoot)
	res.Data = d

	if err := m.Load(ctx, d); err != nil {
		res.Err = err
		if containererrors.IsMissingStoreFile(err) {
			res.Outcome = LoadOutcomeSkipped
		}
		return res
	}
	res.Outcome = LoadOutcomeLoaded
	return res
}

// OpenContainer reads the descriptor of container id under volumeRoot and
// loads it. A container without a descriptor is a NotFound error.
func OpenContainer(ctx context.Context, m *Manager, volumeRoot string, id int64) (*Data, error) {
	path := NewData(id, "", volumeRoot).DescriptorPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, containererrors.NewNotFoundError(path, "container")
	}

	desc, err := ReadDescriptor(path)
	if err != nil {
		return nil, err
	}
	d := desc.Data(volumeRoot)
	if err := m.Load(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
