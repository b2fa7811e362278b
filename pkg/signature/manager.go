package signature

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/storage"
)

// Manager binds an instance, a store and a wallet, and coalesces concurrent
// LoadOrSign calls for the same cache key so the wallet is prompted once.
type Manager struct {
	instance fhe.Instance
	store    storage.Storage
	signer   TypedDataSigner
	resolver AddressResolver
	opts     []Option
	o        options

	group singleflight.Group
}

// NewManager returns a manager. opts apply to every operation.
func NewManager(instance fhe.Instance, store storage.Storage, signer TypedDataSigner, resolver AddressResolver, opts ...Option) (*Manager, error) {
	switch {
	case instance == nil:
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "instance"})
	case store == nil:
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "storage"})
	case signer == nil:
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "signer"})
	case resolver == nil:
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "resolver"})
	}

	return &Manager{
		instance: instance,
		store:    store,
		signer:   signer,
		resolver: resolver,
		opts:     opts,
		o:        newOptions(opts),
	}, nil
}

// Instance returns the crypto instance.
func (m *Manager) Instance() fhe.Instance { return m.instance }

// Storage returns the cache store.
func (m *Manager) Storage() storage.Storage { return m.store }

// LoadOrSign behaves like the package-level LoadOrSign. Callers racing on the
// same user, contracts and pinned key share one load-or-sign run and its
// result; the run uses the first caller's context.
func (m *Manager) LoadOrSign(ctx context.Context, contractAddresses []string, keyPair *fhe.Keypair) (*DecryptionSignature, error) {
	userAddress, err := m.resolver.GetAddress(ctx)
	if err != nil {
		return nil, classifySigningError(ctx, err)
	}

	pinned := ""
	if keyPair != nil {
		pinned = keyPair.PublicKey
	}
	key, err := StorageKey(m.instance, contractAddresses, userAddress, pinned)
	if err != nil {
		return nil, err
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		return LoadOrSign(ctx, m.instance, contractAddresses, m.signer, m.resolver, m.store, keyPair, m.opts...)
	})
	if shared {
		m.o.logger.Debug("joined in-flight decryption signature request", zap.String("key", key))
	}
	if err != nil {
		return nil, err
	}
	return v.(*DecryptionSignature), nil
}

// Load returns the cached valid signature, or nil.
func (m *Manager) Load(ctx context.Context, contractAddresses []string, userAddress, publicKey string) *DecryptionSignature {
	return Load(ctx, m.store, m.instance, contractAddresses, userAddress, publicKey, m.opts...)
}

// Save caches sig.
func (m *Manager) Save(ctx context.Context, sig *DecryptionSignature, alsoKeyByPublicKey bool) {
	sig.Save(ctx, m.store, m.instance, alsoKeyByPublicKey, m.opts...)
}

// Forget removes the cached signature for the user and contracts. Unlike the
// cache reads, a storage failure here is returned.
func (m *Manager) Forget(ctx context.Context, contractAddresses []string, userAddress, publicKey string) error {
	key, err := StorageKey(m.instance, contractAddresses, userAddress, publicKey)
	if err != nil {
		return err
	}
	return m.store.RemoveItem(ctx, key)
}
