package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/veil/internal/config"
	"github.com/mrz1836/veil/internal/output"
	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// resetGlobals clears flag state and restores everything on cleanup.
func resetGlobals(t *testing.T) string {
	t.Helper()
	saved := saveState()
	t.Cleanup(saved.restore)

	for _, env := range []string{config.EnvHome, config.EnvStorageBackend, config.EnvOutputFormat, config.EnvLogLevel, config.EnvVerbose, config.EnvMaxRetries} {
		t.Setenv(env, "")
	}

	home := t.TempDir()
	homeDir, outputFormat, envFile, verbose = home, "", "", false
	return home
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())
	return cmd
}

func TestInitGlobals_DefaultConfig(t *testing.T) {
	home := resetGlobals(t)

	require.NoError(t, initGlobals(newTestCommand()))

	require.NotNil(t, cfg)
	require.NotNil(t, logger)
	require.NotNil(t, formatter)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, config.Defaults().Storage, cfg.Storage)
}

func TestInitGlobals_ConfigFile(t *testing.T) {
	home := resetGlobals(t)

	file := config.Defaults()
	file.Storage.Backend = "memory"
	file.Retry.MaxRetries = 7
	require.NoError(t, config.Save(file, config.Path(home)))

	require.NoError(t, initGlobals(newTestCommand()))
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, home, cfg.Home, "the flag wins over the file")
}

func TestInitGlobals_EnvironmentAndFlags(t *testing.T) {
	resetGlobals(t)
	t.Setenv(config.EnvStorageBackend, "redis")
	t.Setenv(config.EnvMaxRetries, "9")
	outputFormat = "json"
	verbose = true

	require.NoError(t, initGlobals(newTestCommand()))
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, 9, cfg.Retry.MaxRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, output.FormatJSON, formatter.Format())
}

func TestInitGlobals_HomeFromEnvironment(t *testing.T) {
	resetGlobals(t)
	envHome := t.TempDir()
	homeDir = ""
	t.Setenv(config.EnvHome, envHome)

	require.NoError(t, initGlobals(newTestCommand()))
	assert.Equal(t, envHome, cfg.Home)
}

func TestInitGlobals_EnvFile(t *testing.T) {
	home := resetGlobals(t)
	if _, set := os.LookupEnv(config.EnvSignatureDays); set {
		t.Skip(config.EnvSignatureDays + " is set in the environment")
	}
	t.Cleanup(func() { _ = os.Unsetenv(config.EnvSignatureDays) })

	envFile = filepath.Join(home, "veil.env")
	require.NoError(t, os.WriteFile(envFile, []byte(config.EnvSignatureDays+"=42\n"), 0o600))

	require.NoError(t, initGlobals(newTestCommand()))
	assert.Equal(t, 42, cfg.Signature.DurationDays)

	t.Run("missing explicit file", func(t *testing.T) {
		envFile = filepath.Join(home, "absent.env")
		err := initGlobals(newTestCommand())
		require.ErrorIs(t, err, veilerr.ErrConfigInvalid)
	})
}

func TestInitGlobals_InvalidConfig(t *testing.T) {
	home := resetGlobals(t)

	file := config.Defaults()
	file.Storage.Backend = "postgres"
	require.NoError(t, config.Save(file, config.Path(home)))

	err := initGlobals(signCmd)
	require.ErrorIs(t, err, veilerr.ErrConfigInvalid)
	assert.Equal(t, veilerr.ExitInput, ExitCode(err))

	// The config commands still run so the file can be repaired.
	require.NoError(t, initGlobals(configSetCmd))
	require.NoError(t, initGlobals(versionCmd))
}

func TestInitGlobals_UnreadableConfig(t *testing.T) {
	home := resetGlobals(t)
	require.NoError(t, os.WriteFile(config.Path(home), []byte("storage: [unclosed"), 0o600))

	err := initGlobals(cacheListCmd)
	require.ErrorIs(t, err, veilerr.ErrConfigInvalid)

	require.NoError(t, initGlobals(configInitCmd))
	assert.Equal(t, config.Defaults().Storage, cfg.Storage)
}

func TestInitGlobals_LogFile(t *testing.T) {
	home := resetGlobals(t)
	t.Setenv(config.EnvLogLevel, "debug")

	file := config.Defaults()
	file.Logging.File = filepath.Join(home, "logs", "veil.log")
	require.NoError(t, config.Save(file, config.Path(home)))

	require.NoError(t, initGlobals(newTestCommand()))
	cleanup()

	data, err := os.ReadFile(file.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"veil starting"`)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, veilerr.ExitInput, ExitCode(veilerr.ErrInvalidAddress))
	assert.Equal(t, veilerr.ExitAuth, ExitCode(veilerr.ErrSignatureRejected))
	assert.Equal(t, veilerr.ExitNotFound, ExitCode(veilerr.ErrNotFound))
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		names[cmd.CommandPath()] = true
	})
	for _, path := range []string{
		"veil sign",
		"veil cache show",
		"veil cache list",
		"veil cache clear",
		"veil backoff",
		"veil config init",
		"veil config show",
		"veil config get",
		"veil config set",
		"veil version",
	} {
		assert.True(t, names[path], path)
	}
}
