// Package relayer drives decrypt and encrypt requests against an FHE relayer.
// The wire protocol stays behind the Relayer interface; the Client supplies
// validation, decryption authorizations, pacing and retries.
package relayer

import (
	"context"

	"github.com/mrz1836/veil/pkg/validate"
)

//go:generate mockgen -destination=mocks/relayer_mock.go -package=mocks github.com/mrz1836/veil/pkg/relayer Relayer

// HandleContractPair names a ciphertext handle and the contract that owns it.
type HandleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// UserDecryptRequest is a user decryption call authorized by a decryption
// signature.
type UserDecryptRequest struct {
	RequestID         string               `json:"requestId"`
	Handles           []HandleContractPair `json:"handleContractPairs"`
	PublicKey         string               `json:"publicKey"`
	PrivateKey        string               `json:"privateKey"`
	Signature         string               `json:"signature"`
	ContractAddresses []string             `json:"contractAddresses"`
	UserAddress       string               `json:"userAddress"`
	StartTimestamp    int64                `json:"startTimestamp"`
	DurationDays      int                  `json:"durationDays"`
}

// EncryptedValue is one plaintext in canonical string form: "true"/"false",
// a decimal integer, or a lowercase address.
type EncryptedValue struct {
	Type  validate.EncryptedType `json:"type"`
	Value string                 `json:"value"`
}

// EncryptRequest asks the relayer to encrypt values for use by a contract.
type EncryptRequest struct {
	RequestID       string           `json:"requestId"`
	ContractAddress string           `json:"contractAddress"`
	UserAddress     string           `json:"userAddress"`
	Values          []EncryptedValue `json:"values"`
}

// EncryptedInput holds the handles for encrypted values, in request order, and
// the proof the contract verifies.
type EncryptedInput struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

// Relayer is the transport to an FHE relayer.
type Relayer interface {
	// UserDecrypt returns cleartexts keyed by handle.
	UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[string]string, error)
	// Encrypt returns the encrypted input for req.Values.
	Encrypt(ctx context.Context, req EncryptRequest) (EncryptedInput, error)
}

// TypedValue is a plaintext to encrypt. Value takes the Go forms accepted by
// validate.EncryptionValue.
type TypedValue struct {
	Type  validate.EncryptedType
	Value any
}
