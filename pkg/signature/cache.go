package signature

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/storage"
	"github.com/mrz1836/veil/pkg/validate"
)

// unpinnedPublicKey stands in for the public key in cache keys that are not
// bound to one keypair.
const unpinnedPublicKey = "0x0000000000000000000000000000000000000000"

// StorageKey derives the cache key for a user and contract set. The contract
// order and address casing do not matter. An empty publicKey yields the
// unpinned key, distinct from every pinned one.
//
// The key embeds the EIP-712 hash of a zero-time payload from instance, so it
// also changes with the chain and verifying contract.
func StorageKey(instance fhe.Instance, contractAddresses []string, userAddress, publicKey string) (string, error) {
	if instance == nil {
		return "", veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "instance"})
	}
	if err := validate.Address(userAddress); err != nil {
		return "", err
	}

	sorted := make([]string, len(contractAddresses))
	for i, a := range contractAddresses {
		sorted[i] = strings.ToLower(a)
	}
	sort.Strings(sorted)

	pk := publicKey
	if pk == "" {
		pk = unpinnedPublicKey
	}

	td, err := instance.CreateEIP712(pk, sorted, 0, 0)
	if err != nil {
		return "", err
	}
	hash, err := fhe.HashTypedData(td)
	if err != nil {
		return "", veilerr.WithCause(veilerr.ErrInvalidType, err)
	}

	return strings.ToLower(userAddress) + ":" + hexutil.Encode(hash), nil
}

// Save writes d to store, keyed by its user and contracts, and additionally by
// its public key when alsoKeyByPublicKey is set. Caching is best effort:
// failures are logged and counted, never returned.
func (d *DecryptionSignature) Save(ctx context.Context, store storage.Storage, instance fhe.Instance, alsoKeyByPublicKey bool, opts ...Option) {
	o := newOptions(opts)

	pk := ""
	if alsoKeyByPublicKey {
		pk = d.publicKey
	}

	key, err := StorageKey(instance, d.contractAddresses, d.userAddress, pk)
	if err != nil {
		o.cacheFailure("deriving cache key", err)
		return
	}

	data, err := json.Marshal(d.ToJSON())
	if err != nil {
		o.cacheFailure("encoding signature", err)
		return
	}

	if store == nil {
		o.cacheFailure("saving signature", veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "storage"}))
		return
	}
	if err := store.SetItem(ctx, key, string(data)); err != nil {
		o.cacheFailure("saving signature", err)
		return
	}
	o.logger.Debug("decryption signature cached", zap.String("key", key))
}

// Load returns the cached, currently valid signature for the user and
// contracts (pinned to publicKey when non-empty), or nil. Every failure mode
// is a cache miss: nothing stored, unreadable storage, malformed JSON, a record
// failing CheckIs, or an expired signature.
func Load(ctx context.Context, store storage.Storage, instance fhe.Instance, contractAddresses []string, userAddress, publicKey string, opts ...Option) *DecryptionSignature {
	o := newOptions(opts)

	sig := load(ctx, store, instance, contractAddresses, userAddress, publicKey, o)
	if sig == nil {
		o.metrics.RecordCacheMiss()
		return nil
	}
	o.metrics.RecordCacheHit()
	return sig
}

func load(ctx context.Context, store storage.Storage, instance fhe.Instance, contractAddresses []string, userAddress, publicKey string, o options) *DecryptionSignature {
	if store == nil {
		return nil
	}

	key, err := StorageKey(instance, contractAddresses, userAddress, publicKey)
	if err != nil {
		o.cacheFailure("deriving cache key", err)
		return nil
	}

	raw, found, err := store.GetItem(ctx, key)
	if err != nil {
		o.cacheFailure("reading signature", err)
		return nil
	}
	if !found {
		return nil
	}

	sig, err := FromJSON(raw)
	if err != nil {
		o.cacheFailure("decoding cached signature", veilerr.WithCause(veilerr.ErrCacheCorrupted, err))
		return nil
	}

	if !sig.IsValidAt(o.now().Unix()) {
		o.logger.Debug("cached decryption signature expired",
			zap.String("key", key),
			zap.Time("expired_at", sig.ExpiresAt()),
		)
		return nil
	}
	return sig
}

// LoadOrSign returns a valid signature for contracts, from the cache when
// possible. On a hit the wallet is not contacted for a signature. On a miss it
// uses keyPair (or a fresh one from instance), signs with New, caches the
// result best effort, and returns it.
//
// When keyPair is supplied the cache lookup and write are pinned to its public
// key. Signing failures are returned as classified errors with a nil signature.
func LoadOrSign(
	ctx context.Context,
	instance fhe.Instance,
	contractAddresses []string,
	signer TypedDataSigner,
	resolver AddressResolver,
	store storage.Storage,
	keyPair *fhe.Keypair,
	opts ...Option,
) (*DecryptionSignature, error) {
	o := newOptions(opts)

	if instance == nil || resolver == nil {
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "instance and resolver"})
	}

	userAddress, err := resolver.GetAddress(ctx)
	if err != nil {
		return nil, classifySigningError(ctx, err)
	}

	pinned := ""
	if keyPair != nil {
		pinned = keyPair.PublicKey
	}

	if cached := Load(ctx, store, instance, contractAddresses, userAddress, pinned, opts...); cached != nil {
		o.logger.Debug("decryption signature cache hit", zap.String("user", userAddress))
		return cached, nil
	}

	var kp fhe.Keypair
	if keyPair != nil {
		if v, ok := instance.(fhe.KeypairValidator); ok {
			if err := v.ValidateKeypair(*keyPair); err != nil {
				return nil, err
			}
		}
		kp = *keyPair
	} else {
		if kp, err = instance.GenerateKeypair(); err != nil {
			return nil, classifySigningError(ctx, err)
		}
	}

	sig, err := signWithRetry(ctx, instance, contractAddresses, kp, signer, resolver, o, opts)
	if err != nil {
		return nil, err
	}

	sig.Save(ctx, store, instance, keyPair != nil, opts...)
	return sig, nil
}

func (o options) cacheFailure(msg string, err error) {
	if veilerr.Is(err, veilerr.ErrStorage) {
		o.metrics.RecordStorageError()
	}
	o.logger.Debug("signature cache: "+msg, zap.String("code", veilerr.Code(err)), zap.Error(err))
}
