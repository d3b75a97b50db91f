package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/kvcontainer/internal/cli/output"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/metrics"
	"github.com/spf13/cobra"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Volume management",
	Long: `Prepare and load container volumes.

A volume holds the containers of one disk and the shared store used by
schema V3 containers.`,
}

var volumeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the volume layout and its shared store",
	RunE:  runVolumeInit,
}

var volumeLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load every container of the volume",
	Long: `Load every container of the volume the way a node does at startup:
verify each descriptor, open its store and reconcile its counters.

Examples:
  # Load and print a summary table
  kvcontainer volume load --volume /data/vol1

  # Load with the metadata inspector in repair mode
  KVCONTAINER_INSPECTOR=repair kvcontainer volume load --volume /data/vol1`,
	RunE: runVolumeLoad,
}

var showMetrics bool

func init() {
	volumeLoadCmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print collected metrics after loading (requires metrics.enabled)")

	volumeCmd.AddCommand(volumeInitCmd)
	volumeCmd.AddCommand(volumeLoadCmd)
}

func runVolumeInit(cmd *cobra.Command, args []string) error {
	volume, err := requireVolume()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	if err := container.InitVolume(volume, cfg.StoreOptions()); err != nil {
		return fmt.Errorf("failed to initialize volume: %w", err)
	}
	fmt.Printf("Volume initialized at: %s\n", volume)
	fmt.Printf("Shared store: %s\n", container.SharedStorePath(volume))
	return nil
}

// loadResult is one row of the volume load report.
type loadResult struct {
	ContainerID int64  `json:"container_id" yaml:"container_id"`
	Schema      string `json:"schema" yaml:"schema"`
	Outcome     string `json:"outcome" yaml:"outcome"`
	BlockCount  int64  `json:"block_count" yaml:"block_count"`
	BytesUsed   int64  `json:"bytes_used" yaml:"bytes_used"`
	Pending     int64  `json:"pending_deletion" yaml:"pending_deletion"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
	Descriptor  string `json:"descriptor" yaml:"descriptor"`
}

// volumeLoadReport is the printable form of container.VolumeReport.
type volumeLoadReport struct {
	Volume   string       `json:"volume" yaml:"volume"`
	Loaded   int          `json:"loaded" yaml:"loaded"`
	Skipped  int          `json:"skipped" yaml:"skipped"`
	Failed   int          `json:"failed" yaml:"failed"`
	Duration string       `json:"duration" yaml:"duration"`
	Results  []loadResult `json:"results" yaml:"results"`
}

func newVolumeLoadReport(r *container.VolumeReport) *volumeLoadReport {
	out := &volumeLoadReport{
		Volume:   r.Volume,
		Loaded:   r.Loaded(),
		Skipped:  r.Skipped(),
		Failed:   r.Failed(),
		Duration: r.Duration.Round(time.Millisecond).String(),
	}
	for _, res := range r.Results {
		row := loadResult{Outcome: res.Outcome, Descriptor: res.Descriptor}
		if res.Data != nil {
			row.ContainerID = res.Data.ID
			row.Schema = string(res.Data.SchemaVersion)
			row.BlockCount = res.Data.BlockCount()
			row.BytesUsed = res.Data.BytesUsed()
			row.Pending = res.Data.PendingDeletionBlocks()
		}
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
		out.Results = append(out.Results, row)
	}
	return out
}

// Headers implements output.TableRenderer.
func (r *volumeLoadReport) Headers() []string {
	return []string{"Container", "Schema", "Outcome", "Blocks", "Bytes", "Pending", "Error"}
}

// Rows implements output.TableRenderer.
func (r *volumeLoadReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, []string{
			strconv.FormatInt(res.ContainerID, 10),
			res.Schema,
			res.Outcome,
			output.Count(res.BlockCount),
			output.Bytes(res.BytesUsed),
			output.Count(res.Pending),
			res.Error,
		})
	}
	return rows
}

func runVolumeLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withSession(ctx, func(s *session) error {
		report, err := container.LoadVolume(ctx, s.manager, s.volume, s.cfg.Container.LoadConcurrency)
		if err != nil {
			return err
		}

		printable := newVolumeLoadReport(report)
		if err := printResult(printable); err != nil {
			return err
		}

		format, _ := outputFormat()
		if format == output.FormatTable {
			fmt.Printf("\n%d loaded, %d skipped, %d failed in %s\n",
				printable.Loaded, printable.Skipped, printable.Failed, printable.Duration)
		}

		if showMetrics {
			return printMetrics()
		}
		return nil
	})
}

// printMetrics prints a snapshot of the kvcontainer metrics.
func printMetrics() error {
	if !metrics.IsEnabled() {
		fmt.Fprintln(os.Stderr, "Metrics are disabled: set metrics.enabled in the configuration")
		return nil
	}
	samples, err := metrics.Snapshot()
	if err != nil {
		return err
	}

	table := output.NewTableData("Metric", "Labels", "Value")
	for _, sample := range samples {
		table.AddRow(sample.Name, formatLabels(sample.Labels), strconv.FormatFloat(sample.Value, 'f', -1, 64))
	}
	fmt.Println()
	return output.PrintTable(os.Stdout, table)
}

func formatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
