// Package fhe defines the crypto instance the SDK builds decryption requests
// with, plus a local implementation for a configured chain.
package fhe

import (
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Keypair is an ephemeral keypair for decryption requests. Both halves are
// 0x-prefixed hex.
type Keypair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Instance builds typed-data payloads and keypairs for user decryption.
type Instance interface {
	// CreateEIP712 returns the typed data a user signs to authorize decryption
	// of the given contracts' ciphertexts with publicKey, valid for
	// durationDays from startTimestamp (Unix seconds).
	CreateEIP712(publicKey string, contractAddresses []string, startTimestamp int64, durationDays int) (apitypes.TypedData, error)

	// GenerateKeypair returns a fresh ephemeral keypair.
	GenerateKeypair() (Keypair, error)
}

// KeypairValidator is implemented by instances that can check a caller-supplied
// keypair before it is bound into a signature.
type KeypairValidator interface {
	ValidateKeypair(kp Keypair) error
}
