package commands

import (
	"fmt"
	"strconv"

	"github.com/marmos91/kvcontainer/pkg/block"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/spf13/cobra"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Block table operations",
	Long: `Write block records and mark them for deletion. These commands keep the
container counters in step with the block table.`,
}

var (
	putChunkLens []int64
	putBCSID     uint64
	markTxnID    uint64
)

var blockPutCmd = &cobra.Command{
	Use:   "put <container-id> <local-id>",
	Short: "Write a block record",
	Long: `Write a block record with one chunk per --chunk-len.

Examples:
  # Write block 7 of container 12 made of two 4 MiB chunks
  kvcontainer block put 12 7 --chunk-len 4194304 --chunk-len 4194304 --volume /data/vol1`,
	Args: cobra.ExactArgs(2),
	RunE: runBlockPut,
}

var blockMarkDeletedCmd = &cobra.Command{
	Use:   "mark-deleted <container-id> <local-id>...",
	Short: "Move live blocks to the deleting prefix",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runBlockMarkDeleted,
}

func init() {
	blockPutCmd.Flags().Int64SliceVar(&putChunkLens, "chunk-len", nil, "Length of a chunk (repeatable)")
	blockPutCmd.Flags().Uint64Var(&putBCSID, "bcsid", 0, "Block commit sequence id of the write")
	blockMarkDeletedCmd.Flags().Uint64Var(&markTxnID, "txn", 0, "Delete transaction id")

	blockCmd.AddCommand(blockPutCmd)
	blockCmd.AddCommand(blockMarkDeletedCmd)
}

func parseLocalIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid local block id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runBlockPut(cmd *cobra.Command, args []string) error {
	containerID, err := parseContainerID(args[0])
	if err != nil {
		return err
	}
	localIDs, err := parseLocalIDs(args[1:])
	if err != nil {
		return err
	}

	b := block.NewData(block.ID{ContainerID: containerID, LocalID: localIDs[0]})
	b.BlockCommitSequenceID = putBCSID
	var offset uint64
	for i, n := range putChunkLens {
		if n < 0 {
			return fmt.Errorf("invalid chunk length %d", n)
		}
		b.AddChunk(block.ChunkInfo{
			Name:   fmt.Sprintf("%d_chunk_%d", localIDs[0], i),
			Offset: offset,
			Len:    uint64(n),
		})
		offset += uint64(n)
	}

	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		d, err := container.OpenContainer(ctx, s.manager, s.volume, containerID)
		if err != nil {
			return err
		}
		if err := s.manager.PutBlock(ctx, d, b); err != nil {
			return err
		}
		return printResult(containerList{newContainerInfo(d)})
	})
}

func runBlockMarkDeleted(cmd *cobra.Command, args []string) error {
	containerID, err := parseContainerID(args[0])
	if err != nil {
		return err
	}
	localIDs, err := parseLocalIDs(args[1:])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		d, err := container.OpenContainer(ctx, s.manager, s.volume, containerID)
		if err != nil {
			return err
		}
		moved, err := s.manager.MarkBlocksForDeletion(ctx, d, markTxnID, localIDs)
		if err != nil {
			return err
		}
		fmt.Printf("%d of %d blocks marked for deletion\n", moved, len(localIDs))
		return printResult(containerList{newContainerInfo(d)})
	})
}
