package cli

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/veil/internal/config"
	"github.com/mrz1836/veil/internal/output"
	veilerr "github.com/mrz1836/veil/pkg/errors"
)

func TestConfigInit(t *testing.T) {
	buf := setupCLI(t, output.FormatText)
	path := config.Path(cfg.Home)

	require.NoError(t, runConfigInit(&cobra.Command{}, nil))
	assert.Contains(t, buf.String(), "Configuration initialized at "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Home, loaded.Home)
	require.NoError(t, config.Validate(loaded))

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := runConfigInit(&cobra.Command{}, nil)
		require.ErrorIs(t, err, veilerr.ErrGeneral)
	})

	t.Run("force overwrites", func(t *testing.T) {
		require.NoError(t, config.Set(loaded, "storage.backend", "memory"))
		require.NoError(t, config.Save(loaded, path))

		configForce = true
		require.NoError(t, runConfigInit(&cobra.Command{}, nil))

		reloaded, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "file", reloaded.Storage.Backend)
	})
}

func TestConfigSetGet(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	path := config.Path(cfg.Home)

	require.NoError(t, runConfigSet(&cobra.Command{}, []string{"storage.backend", "redis"}))
	var status map[string]string
	decodeJSON(t, buf, &status)
	assert.Equal(t, "Set storage.backend = redis", status["message"])

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", loaded.Storage.Backend)
	assert.Equal(t, cfg.Home, loaded.Home)

	require.NoError(t, runConfigSet(&cobra.Command{}, []string{"retry.max_retries", "6"}))
	buf.Reset()
	loaded, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Retry.MaxRetries)
	assert.Equal(t, "redis", loaded.Storage.Backend, "earlier edits survive")

	t.Run("invalid value leaves the file alone", func(t *testing.T) {
		err := runConfigSet(&cobra.Command{}, []string{"storage.backend", "rediss"})
		require.ErrorIs(t, err, veilerr.ErrConfigInvalid)

		var ve *veilerr.VeilError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "did you mean 'redis'?", ve.Suggestion)

		again, loadErr := config.Load(path)
		require.NoError(t, loadErr)
		assert.Equal(t, "redis", again.Storage.Backend)
	})

	t.Run("unknown key", func(t *testing.T) {
		err := runConfigSet(&cobra.Command{}, []string{"retry.max_retry", "2"})
		require.ErrorIs(t, err, veilerr.ErrUnknownConfigKey)
		assert.Equal(t, veilerr.ExitInput, ExitCode(err))
	})

	t.Run("get", func(t *testing.T) {
		cfg.Signature.DurationDays = 30
		require.NoError(t, runConfigGet(&cobra.Command{}, []string{"signature.duration_days"}))
		var got map[string]string
		decodeJSON(t, buf, &got)
		assert.Equal(t, map[string]string{"signature.duration_days": "30"}, got)
	})

	t.Run("get unknown", func(t *testing.T) {
		err := runConfigGet(&cobra.Command{}, []string{"storage.backnd"})
		require.ErrorIs(t, err, veilerr.ErrUnknownConfigKey)
	})
}

func TestConfigGet_Text(t *testing.T) {
	buf := setupCLI(t, output.FormatText)

	require.NoError(t, runConfigGet(&cobra.Command{}, []string{"chain.verifying_contract"}))
	assert.Equal(t, config.DefaultVerifyingContract+"\n", buf.String())
}

func TestConfigShow(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)

	require.NoError(t, runConfigShow(&cobra.Command{}, nil))
	var values map[string]string
	decodeJSON(t, buf, &values)

	assert.Len(t, values, len(config.Keys()))
	assert.Equal(t, "file", values["storage.backend"])
	assert.Equal(t, "11155111", values["chain.chain_id"])
	assert.NotContains(t, values, "storage.redis_password")
}
