package cli

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/metrics"
	"github.com/mrz1836/veil/pkg/signature"
	"github.com/mrz1836/veil/pkg/storage"
	"github.com/mrz1836/veil/pkg/wallet"
)

// Signing key sources, checked in order before falling back to a prompt.
const (
	EnvPrivateKey         = "VEIL_PRIVATE_KEY"         // #nosec G101 -- variable name, not a credential
	EnvMnemonic           = "VEIL_MNEMONIC"            // #nosec G101 -- variable name, not a credential
	EnvMnemonicPassphrase = "VEIL_MNEMONIC_PASSPHRASE" // #nosec G101 -- variable name, not a credential
)

// resolveSigner builds the local wallet from the environment, or prompts for
// a private key or mnemonic when neither is set. index selects the BIP-44
// account for mnemonics.
func resolveSigner(index uint32) (*wallet.KeySigner, error) {
	if key := strings.TrimSpace(os.Getenv(EnvPrivateKey)); key != "" {
		return wallet.FromHex(key)
	}
	if phrase := strings.TrimSpace(os.Getenv(EnvMnemonic)); phrase != "" {
		return wallet.FromMnemonic(phrase, os.Getenv(EnvMnemonicPassphrase), index)
	}

	secret, err := promptSecretFn("Private key or mnemonic: ")
	if err != nil {
		return nil, veilerr.WithCause(veilerr.ErrOperationAborted, err)
	}
	if secret == "" {
		return nil, veilerr.WithSuggestion(
			veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "signing key"}),
			"set "+EnvPrivateKey+" or "+EnvMnemonic+", or enter a key when prompted",
		)
	}
	if strings.Contains(secret, " ") {
		return wallet.FromMnemonic(secret, os.Getenv(EnvMnemonicPassphrase), index)
	}
	return wallet.FromHex(secret)
}

// sdk holds the collaborators every signature command needs.
type sdk struct {
	instance *fhe.LocalInstance
	store    storage.Storage
	backend  storage.Backend
	metrics  *metrics.Metrics
}

// openSDK creates the local instance and opens the configured cache.
func openSDK(ctx context.Context) (*sdk, error) {
	instance, err := fhe.NewLocalInstance(cfg.FHEConfig())
	if err != nil {
		return nil, err
	}

	store, backend, err := storage.Open(ctx, cfg.StorageOptions(), logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("signature cache opened", zap.String("backend", string(backend)))

	return &sdk{instance: instance, store: store, backend: backend, metrics: metrics.New()}, nil
}

// Close releases the cache.
func (s *sdk) Close() error {
	return storage.Close(s.store)
}

// options returns the signature options derived from the configuration.
func (s *sdk) options() []signature.Option {
	return []signature.Option{
		signature.WithLogger(logger),
		signature.WithMetrics(s.metrics),
		signature.WithRetry(cfg.RetryPolicy()),
		signature.WithDurationDays(cfg.Signature.DurationDays),
	}
}

// manager binds the cache to a wallet. extra options apply after the
// configured ones.
func (s *sdk) manager(w *wallet.KeySigner, extra ...signature.Option) (*signature.Manager, error) {
	return signature.NewManager(s.instance, s.store, w, w, append(s.options(), extra...)...)
}
