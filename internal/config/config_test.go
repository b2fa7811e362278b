package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/veil/internal/config"
	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/storage"
)

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	require.NoError(t, config.Validate(cfg))
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 365, cfg.Signature.DurationDays)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := config.Defaults()
	cfg.Chain.ChainID = 31337
	cfg.Storage.Backend = "redis"
	cfg.Retry.Jitter = false
	cfg.Retry.BackoffMultiplier = 2.5

	require.NoError(t, config.Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: memory\nretry:\n  max_retries: 7\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 500, cfg.Retry.InitialDelayMs)
	assert.Equal(t, int64(config.DefaultChainID), cfg.Chain.ChainID)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [not, a, map"), 0o600))
	_, err = config.Load(path)
	require.Error(t, err)
}

func TestPathAndExpand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/srv/veil", "config.yaml"), config.Path("/srv/veil"))
	assert.Equal(t, "/abs/path", config.ExpandPath("/abs/path"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".veil", "x"), config.ExpandPath("~/.veil/x"))
}

func TestStorageOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Storage.Path = "/var/lib/veil"
	cfg.Storage.IdentityFile = "/var/lib/veil/identity.age"
	cfg.Storage.TTL = "36h"

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.BackendFile, opts.Backend)
	assert.Equal(t, "/var/lib/veil", opts.Dir)
	assert.Equal(t, "/var/lib/veil/identity.age", opts.IdentityFile)
	assert.Equal(t, 36*time.Hour, opts.TTL)
	assert.Equal(t, "veil:", opts.RedisPrefix)

	cfg.Storage.Encrypt = false
	assert.Empty(t, cfg.StorageOptions().IdentityFile)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Home = "/srv/veil"

	assert.Equal(t, "/srv/veil/signatures", cfg.ResolvePath(cfg.Storage.Path))
	assert.Equal(t, "/srv/veil/veil.log", cfg.LogFile())
	assert.Equal(t, "/tmp/other.log", cfg.ResolvePath("/tmp/other.log"))
	assert.Empty(t, cfg.ResolvePath(""))

	cfg.Storage.TTL = ""
	assert.Equal(t, "/srv/veil/identity.age", cfg.StorageOptions().IdentityFile)

	cfg.Logging.File = ""
	assert.Empty(t, cfg.LogFile())
}

func TestRetryPolicyAndLimiter(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Retry = config.RetryConfig{
		MaxRetries:        5,
		InitialDelayMs:    100,
		MaxDelayMs:        800,
		BackoffMultiplier: 3,
		Jitter:            false,
		TimeoutSeconds:    20,
	}

	p := cfg.RetryPolicy()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 800*time.Millisecond, p.MaxDelay)
	assert.InDelta(t, 3.0, p.BackoffMultiplier, 0)
	assert.False(t, p.UseJitter)
	assert.Equal(t, 300*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Second, cfg.RetryTimeout())

	fc := cfg.FHEConfig()
	assert.Equal(t, int64(config.DefaultChainID), fc.ChainID)
	assert.Equal(t, config.DefaultVerifyingContract, fc.VerifyingContract)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(c *config.Config)
		suggestion string
	}{
		{"zero chain id", func(c *config.Config) { c.Chain.ChainID = 0 }, ""},
		{"bad verifier", func(c *config.Config) { c.Chain.VerifyingContract = "0x12" }, ""},
		{"misspelled backend", func(c *config.Config) { c.Storage.Backend = "rediss" }, "did you mean 'redis'?"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "postgresql" }, "valid values: memory, file, redis"},
		{"bad ttl", func(c *config.Config) { c.Storage.TTL = "one day" }, ""},
		{"file without path", func(c *config.Config) { c.Storage.Path = "" }, ""},
		{"encrypt without identity", func(c *config.Config) { c.Storage.IdentityFile = "" }, ""},
		{"zero duration", func(c *config.Config) { c.Signature.DurationDays = 0 }, ""},
		{"duration too long", func(c *config.Config) { c.Signature.DurationDays = fhe.MaxDurationDays + 1 }, ""},
		{"negative retries", func(c *config.Config) { c.Retry.MaxRetries = -1 }, ""},
		{"max below initial", func(c *config.Config) { c.Retry.MaxDelayMs = 10 }, ""},
		{"shrinking backoff", func(c *config.Config) { c.Retry.BackoffMultiplier = 0.5 }, ""},
		{"negative timeout", func(c *config.Config) { c.Retry.TimeoutSeconds = -1 }, ""},
		{"misspelled format", func(c *config.Config) { c.Output.DefaultFormat = "jsn" }, "did you mean 'json'?"},
		{"bad color", func(c *config.Config) { c.Output.Color = "sometimes" }, ""},
		{"misspelled level", func(c *config.Config) { c.Logging.Level = "debgu" }, "did you mean 'debug'?"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tc.mutate(cfg)

			err := config.Validate(cfg)
			require.ErrorIs(t, err, veilerr.ErrConfigInvalid)
			if tc.suggestion != "" {
				var ve *veilerr.VeilError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tc.suggestion, ve.Suggestion)
			}
		})
	}
}

func TestValidate_DurationCapMatchesInstance(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Signature.DurationDays = fhe.MaxDurationDays
	require.NoError(t, config.Validate(cfg))

	inst, err := fhe.NewLocalInstance(cfg.FHEConfig())
	require.NoError(t, err)
	_, err = inst.CreateEIP712("0x01", []string{cfg.Chain.VerifyingContract}, 1, cfg.Signature.DurationDays)
	require.NoError(t, err, "every duration config accepts must be signable")
}

func TestGetSet(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()

	v, err := config.Get(cfg, "storage.backend")
	require.NoError(t, err)
	assert.Equal(t, "file", v)

	require.NoError(t, config.Set(cfg, "retry.max_retries", "6"))
	assert.Equal(t, 6, cfg.Retry.MaxRetries)

	require.NoError(t, config.Set(cfg, "Retry.Backoff_Multiplier", "1.5"))
	v, err = config.Get(cfg, "retry.backoff_multiplier")
	require.NoError(t, err)
	assert.Equal(t, "1.5", v)

	require.NoError(t, config.Set(cfg, "retry.jitter", "off"))
	assert.False(t, cfg.Retry.Jitter)

	err = config.Set(cfg, "retry.max_retries", "lots")
	require.ErrorIs(t, err, veilerr.ErrConfigInvalid)

	err = config.Set(cfg, "storage.backend", "s3")
	require.ErrorIs(t, err, veilerr.ErrConfigInvalid)
	assert.Equal(t, "file", cfg.Storage.Backend, "rejected values leave the config unchanged")

	_, err = config.Get(cfg, "storage.backnd")
	require.ErrorIs(t, err, veilerr.ErrUnknownConfigKey)
	var ve *veilerr.VeilError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "did you mean 'storage.backend'?", ve.Suggestion)

	_, err = config.Get(cfg, "completely.unrelated.path")
	require.ErrorIs(t, err, veilerr.ErrUnknownConfigKey)

	assert.Contains(t, config.Keys(), "signature.duration_days")
	assert.NotContains(t, config.Keys(), "storage.redis_password")
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "redis", config.Suggest("REDIS", storage.Backends()))
	assert.Equal(t, "memory", config.Suggest("memroy", storage.Backends()))
	assert.Empty(t, config.Suggest("cassandra", storage.Backends()))
}
