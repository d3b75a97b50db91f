package container

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/marmos91/kvcontainer/internal/logger"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
	"github.com/marmos91/kvcontainer/pkg/store"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Descriptor is the on-disk form of a container's identity, written at
// create time and read back at node startup.
type Descriptor struct {
	ContainerID   int64  `yaml:"containerID"`
	ContainerType string `yaml:"containerType"`
	SchemaVersion string `yaml:"schemaVersion,omitempty"`
	LayoutVersion int    `yaml:"layOutVersion"`
	State         State  `yaml:"state"`
	MaxSize       uint64 `yaml:"maxSize"`
	MetadataPath  string `yaml:"metadataPath"`
	ChunksPath    string `yaml:"chunksPath"`
	OriginNodeID  string `yaml:"originNodeId,omitempty"`
	Checksum      string `yaml:"checksum"`
}

// DescriptorOf captures the persistent fields of d.
func DescriptorOf(d *Data) *Descriptor {
	return &Descriptor{
		ContainerID:   d.ID,
		ContainerType: d.ContainerType,
		SchemaVersion: string(d.SchemaVersion),
		LayoutVersion: d.LayoutVersion,
		State:         d.State,
		MaxSize:       d.MaxSize,
		MetadataPath:  d.MetadataPath,
		ChunksPath:    d.ChunksPath,
		OriginNodeID:  d.OriginNodeID,
		Checksum:      d.Checksum,
	}
}

// Data builds the in-memory container described by desc. Counters start at
// zero until the container is loaded.
func (desc *Descriptor) Data(volumeRoot string) *Data {
	return &Data{
		ID:            desc.ContainerID,
		SchemaVersion: store.SchemaVersion(desc.SchemaVersion),
		ContainerType: desc.ContainerType,
		LayoutVersion: desc.LayoutVersion,
		MaxSize:       desc.MaxSize,
		OriginNodeID:  desc.OriginNodeID,
		State:         desc.State,
		Checksum:      desc.Checksum,
		VolumeRoot:    volumeRoot,
		MetadataPath:  desc.MetadataPath,
		ChunksPath:    desc.ChunksPath,
	}
}

// ComputeChecksum returns the hex BLAKE3 digest of the descriptor's YAML
// encoding with the checksum field blanked.
func ComputeChecksum(desc *Descriptor) (string, error) {
	c := *desc
	c.Checksum = ""
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("failed to encode descriptor: %w", err)
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// WriteDescriptor stamps d with a fresh checksum and writes its descriptor
// to d.DescriptorPath() through a temporary file.
func WriteDescriptor(d *Data) error {
	desc := DescriptorOf(d)
	sum, err := ComputeChecksum(desc)
	if err != nil {
		return err
	}
	desc.Checksum = sum

	buf, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}

	path := d.DescriptorPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return containererrors.NewIOError(tmp, "failed to write descriptor", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return containererrors.NewIOError(path, "failed to install descriptor", err)
	}

	d.Checksum = sum
	return nil
}

// ReadDescriptor reads a descriptor file.
func ReadDescriptor(path string) (*Descriptor, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, containererrors.NewNotFoundError(path, "descriptor")
	}
	if err != nil {
		return nil, containererrors.NewIOError(path, "failed to read descriptor", err)
	}

	var desc Descriptor
	if err := yaml.Unmarshal(buf, &desc); err != nil {
		return nil, containererrors.NewIOError(path, "failed to parse descriptor", err)
	}
	return &desc, nil
}

// ============================================================================
// Verifier
// ============================================================================

// Verifier checks a container's descriptor before it is loaded.
type Verifier interface {
	Verify(d *Data) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(d *Data) error

// Verify calls f(d).
func (f VerifierFunc) Verify(d *Data) error { return f(d) }

// NopVerifier accepts every container.
type NopVerifier struct{}

// Verify implements Verifier.
func (NopVerifier) Verify(*Data) error { return nil }

// ChecksumVerifier recomputes the checksum of the descriptor on disk and
// compares it with the recorded one and with d.Checksum when set.
type ChecksumVerifier struct{}

// Verify implements Verifier.
func (ChecksumVerifier) Verify(d *Data) error {
	path := d.DescriptorPath()
	desc, err := ReadDescriptor(path)
	if err != nil {
		return err
	}

	if desc.Checksum == "" {
		logger.Warn("Descriptor has no checksum, skipping verification",
			logger.KeyContainerID, d.ID, logger.KeyDescriptor, path)
		return nil
	}

	actual, err := ComputeChecksum(desc)
	if err != nil {
		return err
	}
	if actual != desc.Checksum {
		return containererrors.NewChecksumMismatchError(path, desc.Checksum, actual)
	}
	if d.Checksum != "" && d.Checksum != desc.Checksum {
		return containererrors.NewChecksumMismatchError(path, d.Checksum, desc.Checksum)
	}
	return nil
}
