package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args against a fresh config file and volume.
func run(t *testing.T, args ...string) error {
	t.Helper()
	// Flag variables outlive a single Execute.
	deleteForce, deleteYes = false, false
	rootCmd.SetArgs(args)
	return Execute()
}

func setup(t *testing.T) (configPath, volume string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	volume = filepath.Join(dir, "vol")
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.NoError(t, run(t, "init", "--config", configPath))
	require.NoError(t, run(t, "volume", "init", "--config", configPath, "--volume", volume))
	return configPath, volume
}

func TestContainerLifecycleCommands(t *testing.T) {
	configPath, volume := setup(t)
	flags := []string{"--config", configPath, "--volume", volume, "--output", "json"}

	assert.FileExists(t, container.SharedStorePath(volume))

	require.NoError(t, run(t, append([]string{"container", "create", "1"}, flags...)...))
	require.NoError(t, run(t, append([]string{"container", "create", "2", "--schema", "2"}, flags...)...))
	assert.FileExists(t, container.NewData(1, "", volume).DescriptorPath())
	assert.DirExists(t, container.PrivateStorePath(container.MetadataDir(volume, 2), 2))

	require.NoError(t, run(t, append([]string{"block", "put", "1", "5", "--chunk-len", "10", "--chunk-len", "20"}, flags...)...))
	require.NoError(t, run(t, append([]string{"container", "list"}, flags...)...))
	require.NoError(t, run(t, append([]string{"container", "inspect", "1"}, flags...)...))
	require.NoError(t, run(t, append([]string{"volume", "load", "--metrics"}, flags...)...))

	// A container with a block is refused without --force.
	err := run(t, append([]string{"container", "delete", "1", "--yes"}, flags...)...)
	require.Error(t, err)
	assert.DirExists(t, container.ContainerDir(volume, 1))

	require.NoError(t, run(t, append([]string{"block", "mark-deleted", "1", "5", "--txn", "3"}, flags...)...))
	require.NoError(t, run(t, append([]string{"container", "delete", "2", "-y"}, flags...)...))
	_, statErr := os.Stat(container.ContainerDir(volume, 2))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCommandArgumentErrors(t *testing.T) {
	configPath, volume := setup(t)

	assert.Error(t, run(t, "container", "create", "abc", "--config", configPath, "--volume", volume))
	assert.Error(t, run(t, "container", "create", "3", "--schema", "9", "--config", configPath, "--volume", volume))
	assert.Error(t, run(t, "container", "inspect", "42", "--config", configPath, "--volume", volume))
	assert.Error(t, run(t, "container", "list", "--config", configPath, "--volume", volume, "--output", "xml"))
	assert.Error(t, run(t, "container", "list", "--config", configPath, "--volume", ""))
}
