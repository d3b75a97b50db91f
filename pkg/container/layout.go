package container

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Volume layout:
//
//	<volume>/container.db/                                  shared store
//	<volume>/containers/<id>/metadata/<id>.container        descriptor
//	<volume>/containers/<id>/metadata/<id>-dn-container.db/ private store
//	<volume>/containers/<id>/chunks/
const (
	ContainersDirName = "containers"
	MetadataDirName   = "metadata"
	ChunksDirName     = "chunks"
	SharedStoreName   = "container.db"
	PrivateStoreExt   = "-dn-container.db"
	DescriptorExt     = ".container"

	DefaultContainerType = "KeyValueContainer"
	CurrentLayoutVersion = 1
)

// ContainerDir returns the root directory of a container.
func ContainerDir(volumeRoot string, id int64) string {
	return filepath.Join(volumeRoot, ContainersDirName, strconv.FormatInt(id, 10))
}

// MetadataDir returns the metadata directory of a container.
func MetadataDir(volumeRoot string, id int64) string {
	return filepath.Join(ContainerDir(volumeRoot, id), MetadataDirName)
}

// ChunksDir returns the chunks directory of a container.
func ChunksDir(volumeRoot string, id int64) string {
	return filepath.Join(ContainerDir(volumeRoot, id), ChunksDirName)
}

// SharedStorePath returns the per-volume store path.
func SharedStorePath(volumeRoot string) string {
	return filepath.Join(volumeRoot, SharedStoreName)
}

// PrivateStorePath returns the store path of a V1/V2 container.
func PrivateStorePath(metadataDir string, id int64) string {
	return filepath.Join(metadataDir, fmt.Sprintf("%d%s", id, PrivateStoreExt))
}

// descriptorGlob matches every descriptor under a volume.
func descriptorGlob(volumeRoot string) string {
	return filepath.Join(volumeRoot, ContainersDirName, "*", MetadataDirName, "*"+DescriptorExt)
}
