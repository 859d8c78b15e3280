package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "kce", cmd.Use)
	assert.Contains(t, cmd.Long, "k-core propagation framework")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "batch", "validate", "runs", "binarize"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	ledgerFlag := cmd.PersistentFlags().Lookup("ledger")
	require.NotNil(t, ledgerFlag)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"config", "params", "sub-embedder-params"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestBatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	batchCmd, _, err := cmd.Find([]string{"batch"})
	require.NoError(t, err)

	scripts := batchCmd.Flags().Lookup("scripts-dir")
	require.NotNil(t, scripts)
	assert.Equal(t, DefaultScriptsDir, scripts.DefValue)

	failFast := batchCmd.Flags().Lookup("fail-fast")
	require.NotNil(t, failFast)
	assert.Equal(t, "false", failFast.DefValue)

	require.NotNil(t, batchCmd.Flags().Lookup("exec"))
}

func TestEnvironmentDefaults(t *testing.T) {
	t.Setenv(EnvScriptsDir, "/data/scripts")
	t.Setenv(EnvLedger, "/data/runs.db")

	cmd := NewRootCommand()
	assert.Equal(t, "/data/runs.db", cmd.PersistentFlags().Lookup("ledger").DefValue)

	batchCmd, _, err := cmd.Find([]string{"batch"})
	require.NoError(t, err)
	assert.Equal(t, "/data/scripts", batchCmd.Flags().Lookup("scripts-dir").DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "x.json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
