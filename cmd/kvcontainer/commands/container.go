package commands

import (
	"fmt"
	"strconv"

	"github.com/marmos91/kvcontainer/internal/cli/output"
	"github.com/marmos91/kvcontainer/internal/cli/prompt"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/container/inspector"
	"github.com/marmos91/kvcontainer/pkg/store"
	"github.com/spf13/cobra"
)

var containerCmd = &cobra.Command{
	Use:     "container",
	Aliases: []string{"c"},
	Short:   "Container management",
	Long: `Create, list, inspect and delete the containers of a volume.

Every subcommand takes the volume from --volume or KVCONTAINER_VOLUME.`,
}

var (
	createSchema  string
	inspectRepair bool
	deleteForce   bool
	deleteYes     bool
)

var containerCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a container",
	Long: `Create a container: its metadata and chunks directories, its store
(private for schema 1 and 2, the volume's shared store for schema 3) and
its descriptor.

Examples:
  # Create container 12 with the configured default schema
  kvcontainer container create 12 --volume /data/vol1

  # Create a schema 2 container
  kvcontainer container create 13 --schema 2 --volume /data/vol1`,
	Args: cobra.ExactArgs(1),
	RunE: runContainerCreate,
}

var containerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the containers of the volume",
	RunE:  runContainerList,
}

var containerInspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Compare persisted counters with the block table",
	Long: `Load a container and compare its persisted block count, bytes used and
pending deletion count with a scan of its block table. With --repair,
mismatching counters are rewritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runContainerInspect,
}

var containerDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a container",
	Long: `Delete a container. Without --force the container must be empty: no
blocks counted, no chunk files and no live rows in its block table.

The command asks for confirmation first. A forced delete requires typing the
container id. Use --yes to skip the prompt in scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runContainerDelete,
}

func init() {
	containerCreateCmd.Flags().StringVar(&createSchema, "schema", "", "Schema version (1|2|3, default: container.default_schema_version)")
	containerInspectCmd.Flags().BoolVar(&inspectRepair, "repair", false, "Rewrite mismatching counters")
	containerDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete even if the container is not empty")
	containerDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")

	containerCmd.AddCommand(containerCreateCmd)
	containerCmd.AddCommand(containerListCmd)
	containerCmd.AddCommand(containerInspectCmd)
	containerCmd.AddCommand(containerDeleteCmd)
}

func parseContainerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid container id %q", s)
	}
	return id, nil
}

// containerInfo is the printable state of one container.
type containerInfo struct {
	ID         int64  `json:"id" yaml:"id"`
	Schema     string `json:"schema" yaml:"schema"`
	State      string `json:"state" yaml:"state"`
	Lifecycle  string `json:"lifecycle" yaml:"lifecycle"`
	BlockCount int64  `json:"block_count" yaml:"block_count"`
	BytesUsed  int64  `json:"bytes_used" yaml:"bytes_used"`
	MaxSize    uint64 `json:"max_size" yaml:"max_size"`
	Pending    int64  `json:"pending_deletion" yaml:"pending_deletion"`
	DeleteTxn  uint64 `json:"delete_txn_id" yaml:"delete_txn_id"`
	BCSID      uint64 `json:"bcs_id" yaml:"bcs_id"`
	StorePath  string `json:"store_path" yaml:"store_path"`
}

func newContainerInfo(d *container.Data) containerInfo {
	return containerInfo{
		ID:         d.ID,
		Schema:     string(d.SchemaVersion),
		State:      string(d.State),
		Lifecycle:  d.Lifecycle().String(),
		BlockCount: d.BlockCount(),
		BytesUsed:  d.BytesUsed(),
		MaxSize:    d.MaxSize,
		Pending:    d.PendingDeletionBlocks(),
		DeleteTxn:  d.DeleteTransactionID(),
		BCSID:      d.BlockCommitSequenceID(),
		StorePath:  d.StorePath(),
	}
}

type containerList []containerInfo

// Headers implements output.TableRenderer.
func (l containerList) Headers() []string {
	return []string{"ID", "Schema", "State", "Blocks", "Bytes", "Max Size", "Pending", "Store"}
}

// Rows implements output.TableRenderer.
func (l containerList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.Schema,
			c.State,
			output.Count(c.BlockCount),
			output.Bytes(c.BytesUsed),
			output.Bytes(int64(c.MaxSize)),
			output.Count(c.Pending),
			c.StorePath,
		})
	}
	return rows
}

func runContainerCreate(cmd *cobra.Command, args []string) error {
	id, err := parseContainerID(args[0])
	if err != nil {
		return err
	}
	version := store.SchemaVersion(createSchema)
	if version != "" && !version.Valid() {
		return fmt.Errorf("invalid schema version %q (want 1, 2 or 3)", createSchema)
	}

	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		d := container.NewData(id, version, s.volume)
		if err := s.manager.Create(ctx, d); err != nil {
			return err
		}
		return printResult(containerList{newContainerInfo(d)})
	})
}

func runContainerList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		report, err := container.LoadVolume(ctx, s.manager, s.volume, s.cfg.Container.LoadConcurrency)
		if err != nil {
			return err
		}
		list := containerList{}
		for _, d := range report.Containers() {
			list = append(list, newContainerInfo(d))
		}
		return printResult(list)
	})
}

// inspectResult is the printable form of an inspector report.
type inspectResult struct {
	Container     containerInfo      `json:"container" yaml:"container"`
	Empty         bool               `json:"empty" yaml:"empty"`
	CorruptBlocks int                `json:"corrupt_blocks" yaml:"corrupt_blocks"`
	Repaired      bool               `json:"repaired" yaml:"repaired"`
	Counters      []inspectorCounter `json:"counters" yaml:"counters"`
}

type inspectorCounter struct {
	Key       string `json:"key" yaml:"key"`
	Persisted uint64 `json:"persisted" yaml:"persisted"`
	Present   bool   `json:"present" yaml:"present"`
	Computed  uint64 `json:"computed" yaml:"computed"`
	Mismatch  bool   `json:"mismatch" yaml:"mismatch"`
}

// Headers implements output.TableRenderer.
func (r *inspectResult) Headers() []string {
	return []string{"Counter", "Persisted", "Computed", "Status"}
}

// Rows implements output.TableRenderer.
func (r *inspectResult) Rows() [][]string {
	rows := make([][]string, 0, len(r.Counters))
	for _, c := range r.Counters {
		persisted := strconv.FormatUint(c.Persisted, 10)
		if !c.Present {
			persisted = "-"
		}
		status := "ok"
		if c.Mismatch {
			status = "MISMATCH"
			if r.Repaired {
				status = "repaired"
			}
		}
		rows = append(rows, []string{c.Key, persisted, strconv.FormatUint(c.Computed, 10), status})
	}
	return rows
}

func runContainerInspect(cmd *cobra.Command, args []string) error {
	id, err := parseContainerID(args[0])
	if err != nil {
		return err
	}

	mode := inspector.ModeInspect
	if inspectRepair {
		mode = inspector.ModeRepair
	}

	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		d, err := container.OpenContainer(ctx, s.manager, s.volume, id)
		if err != nil {
			return err
		}

		var report *inspector.Report
		err = s.manager.View(d, func(st store.Store) error {
			var inspectErr error
			report, inspectErr = inspector.New(mode).Inspect(ctx, d, st)
			return inspectErr
		})
		if err != nil {
			return err
		}

		empty, err := s.manager.IsEmpty(d)
		if err != nil {
			return err
		}

		result := &inspectResult{
			Container:     newContainerInfo(d),
			Empty:         empty,
			CorruptBlocks: report.CorruptBlocks,
			Repaired:      report.Repaired,
		}
		for _, c := range report.Counters {
			result.Counters = append(result.Counters, inspectorCounter{
				Key:       c.Key,
				Persisted: c.Persisted,
				Present:   c.Present,
				Computed:  c.Computed,
				Mismatch:  c.Mismatch(),
			})
		}

		if err := printResult(result); err != nil {
			return err
		}
		if format, _ := outputFormat(); format == output.FormatTable {
			fmt.Printf("\ncontainer %d: %d corrupt blocks, empty=%t\n", d.ID, result.CorruptBlocks, empty)
		}
		return nil
	})
}

func runContainerDelete(cmd *cobra.Command, args []string) error {
	id, err := parseContainerID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		d, err := container.OpenContainer(ctx, s.manager, s.volume, id)
		if err != nil {
			return err
		}

		confirmed, err := prompt.ConfirmContainerDelete(id, deleteForce, deleteYes)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}

		if err := s.manager.Delete(ctx, d, deleteForce); err != nil {
			return err
		}
		fmt.Printf("Container %d deleted\n", id)
		return nil
	})
}
