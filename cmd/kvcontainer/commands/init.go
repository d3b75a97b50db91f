package commands

import (
	"fmt"

	"github.com/marmos91/kvcontainer/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample kvcontainer configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/kvcontainer/config.yaml.
Use --config to specify a custom path. A fresh origin node id is generated
on every init.

Examples:
  # Initialize with default location
  kvcontainer init

  # Initialize with custom path
  kvcontainer init --config /etc/kvcontainer/config.yaml

  # Force overwrite existing config
  kvcontainer init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Prepare a volume with: kvcontainer volume init --volume /data/vol1")
	fmt.Println("  3. Create a container with: kvcontainer container create 1 --volume /data/vol1")
	return nil
}
