// Package block defines the block record stored in a container's block
// table: an ordered list of chunk descriptors plus free-form metadata.
//
// Records are encoded with CBOR. Integrity fields on chunks are carried but
// never interpreted here.
package block

import (
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	containererrors "github.com/marmos91/kvcontainer/pkg/container/errors"
)

// ID identifies a block: the owning container and a container-local id.
type ID struct {
	ContainerID int64 `cbor:"1,keyasint"`
	LocalID     int64 `cbor:"2,keyasint"`
}

func (id ID) String() string {
	return fmt.Sprintf("conID: %d locID: %d", id.ContainerID, id.LocalID)
}

// LocalKey returns the container-local block table key for this block.
func (id ID) LocalKey() string {
	return strconv.FormatInt(id.LocalID, 10)
}

// ChunkInfo describes one contiguous byte range within a block.
type ChunkInfo struct {
	Name     string `cbor:"1,keyasint"`
	Offset   uint64 `cbor:"2,keyasint"`
	Len      uint64 `cbor:"3,keyasint"`
	Checksum []byte `cbor:"4,keyasint,omitempty"`
}

// Data is the block record persisted in the block table.
type Data struct {
	BlockID  ID                `cbor:"1,keyasint"`
	Chunks   []ChunkInfo       `cbor:"2,keyasint"`
	Metadata map[string]string `cbor:"3,keyasint,omitempty"`

	// BlockCommitSequenceID is the BCSID of the write that produced this record.
	BlockCommitSequenceID uint64 `cbor:"4,keyasint,omitempty"`
}

// NewData creates an empty block record for the given id.
func NewData(id ID) *Data {
	return &Data{BlockID: id}
}

// AddChunk appends a chunk descriptor.
func (d *Data) AddChunk(c ChunkInfo) {
	d.Chunks = append(d.Chunks, c)
}

// Length returns the sum of declared chunk lengths, 0 for an empty list.
func Length(d *Data) uint64 {
	if d == nil {
		return 0
	}
	var n uint64
	for _, c := range d.Chunks {
		n += c.Len
	}
	return n
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("block: cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("block: cbor decode mode: %v", err))
	}
}

// Encode serializes a block record.
func Encode(d *Data) ([]byte, error) {
	buf, err := encMode.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %s: %w", d.BlockID, err)
	}
	return buf, nil
}

// Decode parses a block record stored under key. Failures are reported as
// BlockParse errors so callers can decide to skip the entry.
func Decode(key string, buf []byte) (*Data, error) {
	var d Data
	if err := decMode.Unmarshal(buf, &d); err != nil {
		return nil, containererrors.NewBlockParseError(key, err)
	}
	return &d, nil
}
