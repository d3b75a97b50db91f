// Package commands implements the kvcontainer CLI.
package commands

import (
	"os"

	"github.com/marmos91/kvcontainer/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile    string
	volumeRoot string
	outputFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kvcontainer",
	Short: "kvcontainer - node-local key-value container storage",
	Long: `kvcontainer manages the key-value containers of a storage node volume.

Each container owns a metadata directory, a chunks directory and a row set
in a badger store, either private to the container or shared by the volume.

Use "kvcontainer [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/kvcontainer/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&volumeRoot, "volume", "v", os.Getenv("KVCONTAINER_VOLUME"), "volume root directory (env: KVCONTAINER_VOLUME)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format (table|json|yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(blockCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// outputFormat parses the global --output flag.
func outputFormat() (output.Format, error) {
	return output.ParseFormat(outputFlag)
}

// printResult writes data to stdout in the selected format.
func printResult(data any) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}
	return output.Print(os.Stdout, format, data)
}
