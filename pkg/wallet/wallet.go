// Package wallet signs EIP-712 typed data with a local secp256k1 key. It is
// the in-process implementation of the wallet collaborator used to authorize
// decryption; browser or hardware wallets satisfy the same interface.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
)

const (
	// ethCoinType is the BIP-44 coin type for Ethereum.
	ethCoinType = 60
	sigLength   = 65
)

// KeySigner holds a private key and signs typed data with it.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner wraps an existing private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// FromHex parses a hex private key, with or without 0x prefix.
func FromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{"privateKey": "not a valid secp256k1 key"})
	}
	return NewKeySigner(key), nil
}

// FromMnemonic derives the key at m/44'/60'/0'/0/index from a BIP-39 mnemonic.
func FromMnemonic(mnemonic, passphrase string, index uint32) (*KeySigner, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	seed, err := bip39.NewSeedWithErrorChecking(normalized, passphrase)
	if err != nil {
		return nil, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{"mnemonic": "invalid mnemonic phrase"})
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + ethCoinType,
		bip32.FirstHardenedChild,
		0,
		index,
	}
	for _, child := range path {
		if key, err = key.NewChildKey(child); err != nil {
			return nil, fmt.Errorf("deriving child key: %w", err)
		}
	}

	priv, err := crypto.ToECDSA(common.LeftPadBytes(key.Key, 32))
	if err != nil {
		return nil, fmt.Errorf("converting derived key: %w", err)
	}
	return NewKeySigner(priv), nil
}

// DerivationPath returns the BIP-44 path FromMnemonic uses for index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", ethCoinType, index)
}

// Address returns the EIP-55 checksummed address of the key.
func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// GetAddress returns the signer address.
func (s *KeySigner) GetAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", veilerr.WithCause(veilerr.ErrOperationAborted, err)
	}
	return s.address.Hex(), nil
}

// SignTypedData signs the EIP-712 payload made of domain, types and message.
// types may omit EIP712Domain; it is derived from the populated domain fields.
// The primary type is the one no other type refers to. The signature is
// 0x-prefixed r||s||v with v in {27, 28}.
func (s *KeySigner) SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", veilerr.WithCause(veilerr.ErrOperationAborted, err)
	}

	primary, err := primaryType(types)
	if err != nil {
		return "", err
	}

	hash, err := fhe.HashTypedData(apitypes.TypedData{
		Types:       types,
		PrimaryType: primary,
		Domain:      domain,
		Message:     message,
	})
	if err != nil {
		return "", veilerr.WithCause(veilerr.ErrSignatureCreation, fmt.Errorf("hashing typed data: %w", err))
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", veilerr.WithCause(veilerr.ErrSignatureCreation, fmt.Errorf("signing: %w", err))
	}
	sig[64] += 27

	return hexutil.Encode(sig), nil
}

// RecoverTypedDataSigner returns the checksummed address that produced sigHex
// over td.
func RecoverTypedDataSigner(td apitypes.TypedData, sigHex string) (string, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != sigLength {
		return "", veilerr.WithDetails(veilerr.ErrInvalidSignatureFormat, map[string]string{"signature": sigHex})
	}

	hash, err := fhe.HashTypedData(td)
	if err != nil {
		return "", veilerr.WithCause(veilerr.ErrInvalidSignatureFormat, fmt.Errorf("hashing typed data: %w", err))
	}

	// Copy before normalizing v so the caller's bytes are untouched.
	rsv := make([]byte, sigLength)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, rsv)
	if err != nil {
		return "", veilerr.WithCause(veilerr.ErrInvalidSignatureFormat, fmt.Errorf("recovering public key: %w", err))
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// primaryType finds the single struct type not referenced by any other type.
func primaryType(types apitypes.Types) (string, error) {
	referenced := make(map[string]bool)
	for name, fields := range types {
		if name == fhe.DomainTypeName {
			continue
		}
		for _, f := range fields {
			referenced[strings.TrimSuffix(f.Type, "[]")] = true
		}
	}

	var candidates []string
	for name := range types {
		if name != fhe.DomainTypeName && !referenced[name] {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)

	if len(candidates) != 1 {
		return "", veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{
			"primaryType": fmt.Sprintf("ambiguous: %v", candidates),
		})
	}
	return candidates[0], nil
}
