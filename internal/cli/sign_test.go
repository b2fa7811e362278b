package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/veil/internal/output"
	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
)

func TestSign_SignsThenReusesCache(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	signContracts = []string{testContractA, testContractB}

	require.NoError(t, runSign(&cobra.Command{}, nil))
	var first signatureView
	decodeJSON(t, buf, &first)

	assert.False(t, first.Cached)
	assert.Equal(t, "file", first.Backend)
	assert.True(t, strings.EqualFold(testAddress, first.UserAddress))
	assert.Equal(t, 365, first.DurationDays)
	assert.NotEmpty(t, first.Signature)
	assert.NotContains(t, first.PublicKey, " ")

	// Reordered contracts hit the same entry
	signContracts = []string{testContractB, testContractA}
	require.NoError(t, runSign(&cobra.Command{}, nil))
	var second signatureView
	decodeJSON(t, buf, &second)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.PublicKey, second.PublicKey)

	entries, err := os.ReadDir(cfg.Storage.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	_, err = os.Stat(cfg.Storage.IdentityFile)
	require.NoError(t, err, "encrypted file backend creates its identity")
}

func TestSign_Force(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	signContracts = []string{testContractA}

	require.NoError(t, runSign(&cobra.Command{}, nil))
	var first signatureView
	decodeJSON(t, buf, &first)

	signForce = true
	signDays = 7
	require.NoError(t, runSign(&cobra.Command{}, nil))
	var forced signatureView
	decodeJSON(t, buf, &forced)

	assert.False(t, forced.Cached)
	assert.NotEqual(t, first.PublicKey, forced.PublicKey)
	assert.Equal(t, 7, forced.DurationDays)
}

func TestSign_KeyByPublicKey(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	cfg.Signature.KeyByPublicKey = true
	signContracts = []string{testContractA}

	require.NoError(t, runSign(&cobra.Command{}, nil))
	var view signatureView
	decodeJSON(t, buf, &view)

	entries, err := os.ReadDir(cfg.Storage.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "stored under the unpinned and the pinned key")

	cacheContracts = []string{testContractA}
	cacheUser = testAddress
	cachePublicKey = view.PublicKey
	require.NoError(t, runCacheShow(&cobra.Command{}, nil))
	var pinned signatureView
	decodeJSON(t, buf, &pinned)
	assert.Equal(t, view.Signature, pinned.Signature)
}

func TestSign_MetricsOut(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	signContracts = []string{testContractA}
	signMetricsOut = filepath.Join(t.TempDir(), "veil.prom")

	require.NoError(t, runSign(&cobra.Command{}, nil))
	buf.Reset()

	data, err := os.ReadFile(signMetricsOut)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "veil_signatures_created_total 1")
	assert.Contains(t, text, "veil_signature_cache_misses_total 1")
	assert.Contains(t, text, "veil_signature_cache_hits_total 0")
}

func TestSign_TextOutput(t *testing.T) {
	buf := setupCLI(t, output.FormatText)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	signContracts = []string{testContractA}

	require.NoError(t, runSign(&cobra.Command{}, nil))
	text := buf.String()
	assert.Contains(t, text, "Contracts:  "+testContractA)
	assert.Contains(t, text, "Source:     signed (file)")
	assert.Contains(t, text, "(365 days)")
}

func TestSign_MemoryBackend(t *testing.T) {
	buf := setupCLI(t, output.FormatJSON)
	t.Setenv(EnvPrivateKey, testPrivateKey)
	cfg.Storage.Backend = "memory"
	signContracts = []string{testContractA}

	// Every process starts with an empty memory cache.
	for range 2 {
		require.NoError(t, runSign(&cobra.Command{}, nil))
		var view signatureView
		decodeJSON(t, buf, &view)
		assert.False(t, view.Cached)
		assert.Equal(t, "memory", view.Backend)
	}
}

func TestSign_SignerSources(t *testing.T) {
	t.Run("mnemonic from environment", func(t *testing.T) {
		buf := setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvMnemonic, testMnemonic)
		t.Setenv(EnvMnemonicPassphrase, "")
		signContracts = []string{testContractA}

		require.NoError(t, runSign(&cobra.Command{}, nil))
		var view signatureView
		decodeJSON(t, buf, &view)
		assert.True(t, strings.EqualFold(testAddress, view.UserAddress))
	})

	t.Run("mnemonic account index", func(t *testing.T) {
		buf := setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvMnemonic, testMnemonic)
		t.Setenv(EnvMnemonicPassphrase, "")
		signContracts = []string{testContractA}
		signIndex = 1

		require.NoError(t, runSign(&cobra.Command{}, nil))
		var view signatureView
		decodeJSON(t, buf, &view)
		assert.False(t, strings.EqualFold(testAddress, view.UserAddress))
	})

	t.Run("prompted private key", func(t *testing.T) {
		buf := setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvMnemonic, "")
		promptSecretFn = func(string) (string, error) { return strings.TrimPrefix(testPrivateKey, "0x"), nil }
		signContracts = []string{testContractA}

		require.NoError(t, runSign(&cobra.Command{}, nil))
		var view signatureView
		decodeJSON(t, buf, &view)
		assert.True(t, strings.EqualFold(testAddress, view.UserAddress))
	})

	t.Run("prompted mnemonic", func(t *testing.T) {
		buf := setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvMnemonic, "")
		t.Setenv(EnvMnemonicPassphrase, "")
		promptSecretFn = func(string) (string, error) { return testMnemonic, nil }
		signContracts = []string{testContractA}

		require.NoError(t, runSign(&cobra.Command{}, nil))
		var view signatureView
		decodeJSON(t, buf, &view)
		assert.True(t, strings.EqualFold(testAddress, view.UserAddress))
	})

	t.Run("nothing entered", func(t *testing.T) {
		setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "")
		t.Setenv(EnvMnemonic, "")
		promptSecretFn = func(string) (string, error) { return "", nil }
		signContracts = []string{testContractA}

		err := runSign(&cobra.Command{}, nil)
		require.ErrorIs(t, err, veilerr.ErrMissingParameter)
	})

	t.Run("bad private key", func(t *testing.T) {
		setupCLI(t, output.FormatJSON)
		t.Setenv(EnvPrivateKey, "0x1234")
		signContracts = []string{testContractA}

		err := runSign(&cobra.Command{}, nil)
		require.ErrorIs(t, err, veilerr.ErrInvalidInput)
		assert.Equal(t, veilerr.ExitInput, ExitCode(err))
	})
}

func TestSign_InvalidContracts(t *testing.T) {
	tests := []struct {
		name      string
		contracts []string
		want      error
	}{
		{name: "malformed", contracts: []string{"0x1234"}, want: veilerr.ErrInvalidAddress},
		{name: "bad checksum", contracts: []string{"0x5FBDB2315678afecb367f032d93F642f64180aa3"}, want: veilerr.ErrInvalidChecksum},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setupCLI(t, output.FormatJSON)
			t.Setenv(EnvPrivateKey, testPrivateKey)
			signContracts = tc.contracts

			err := runSign(&cobra.Command{}, nil)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, veilerr.ExitInput, ExitCode(err))
		})
	}
}

func TestSign_DaysOutOfRange(t *testing.T) {
	for _, days := range []int{-1, fhe.MaxDurationDays + 1, 5000} {
		t.Run(strconv.Itoa(days), func(t *testing.T) {
			setupCLI(t, output.FormatJSON)
			t.Setenv(EnvPrivateKey, "")
			t.Setenv(EnvMnemonic, "")
			prompted := false
			promptSecretFn = func(string) (string, error) {
				prompted = true
				return "", nil
			}
			signContracts = []string{testContractA}
			signDays = days

			err := runSign(&cobra.Command{}, nil)
			require.ErrorIs(t, err, veilerr.ErrInvalidInput)
			assert.Equal(t, veilerr.ExitInput, ExitCode(err))
			assert.False(t, prompted, "range is checked before asking for a key")

			entries, _ := os.ReadDir(cfg.Storage.Path)
			assert.Empty(t, entries)
		})
	}
}
