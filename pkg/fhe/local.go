package fhe

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/validate"
)

// MaxDurationDays is the longest validity CreateEIP712 accepts.
const MaxDurationDays = 365 * 10

// EIP-712 names used by the decryption authorization payload.
const (
	DomainName       = "Decryption"
	DomainVersion    = "1"
	PrimaryType      = "UserDecryptRequestVerification"
	DomainTypeName   = "EIP712Domain"
	defaultExtraData = "0x"
	hexPrefix        = "0x"

	// An ML-KEM-768 private key embeds its public key at this offset.
	publicKeyOffset = 1152
)

// Config identifies the chain and decryption contract a LocalInstance signs for.
type Config struct {
	// ChainID is the chain of the gateway that verifies decryption requests.
	ChainID int64
	// ContractsChainID is the chain the FHE contracts live on.
	ContractsChainID int64
	// VerifyingContract is the decryption verification contract address.
	VerifyingContract string
}

// LocalInstance builds decryption payloads locally from a chain configuration.
type LocalInstance struct {
	cfg  Config
	rand io.Reader
}

var (
	_ Instance         = (*LocalInstance)(nil)
	_ KeypairValidator = (*LocalInstance)(nil)
)

// NewLocalInstance validates cfg and returns an instance for it.
func NewLocalInstance(cfg Config) (*LocalInstance, error) {
	if cfg.ChainID <= 0 {
		return nil, veilerr.WithDetails(veilerr.ErrUnsupportedChain, map[string]string{
			"chainId": strconv.FormatInt(cfg.ChainID, 10),
		})
	}
	if cfg.ContractsChainID == 0 {
		cfg.ContractsChainID = cfg.ChainID
	}
	if err := validate.Address(cfg.VerifyingContract); err != nil {
		return nil, veilerr.Wrap(err, "verifying contract")
	}
	return &LocalInstance{cfg: cfg, rand: rand.Reader}, nil
}

// Config returns the instance configuration.
func (l *LocalInstance) Config() Config {
	return l.cfg
}

// Types returns the EIP-712 type definitions of the decryption payload.
func Types() apitypes.Types {
	return apitypes.Types{
		DomainTypeName: {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		PrimaryType: {
			{Name: "publicKey", Type: "bytes"},
			{Name: "contractAddresses", Type: "address[]"},
			{Name: "contractsChainId", Type: "uint256"},
			{Name: "startTimestamp", Type: "uint256"},
			{Name: "durationDays", Type: "uint256"},
			{Name: "extraData", Type: "bytes"},
		},
	}
}

// CreateEIP712 implements Instance. Integers are encoded as decimal strings so
// the payload survives a JSON round trip unchanged.
func (l *LocalInstance) CreateEIP712(publicKey string, contractAddresses []string, startTimestamp int64, durationDays int) (apitypes.TypedData, error) {
	pk, err := normalizeHex(publicKey)
	if err != nil {
		return apitypes.TypedData{}, veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"publicKey": publicKey})
	}
	if err := validate.Addresses(contractAddresses); err != nil {
		return apitypes.TypedData{}, err
	}
	if startTimestamp < 0 {
		return apitypes.TypedData{}, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{
			"startTimestamp": strconv.FormatInt(startTimestamp, 10),
		})
	}
	if durationDays < 0 || durationDays > MaxDurationDays {
		return apitypes.TypedData{}, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{
			"durationDays": strconv.Itoa(durationDays),
		})
	}

	contracts := make([]any, len(contractAddresses))
	for i, a := range contractAddresses {
		contracts[i] = a
	}

	return apitypes.TypedData{
		Types:       Types(),
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(l.cfg.ChainID),
			VerifyingContract: l.cfg.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         pk,
			"contractAddresses": contracts,
			"contractsChainId":  strconv.FormatInt(l.cfg.ContractsChainID, 10),
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.Itoa(durationDays),
			"extraData":         defaultExtraData,
		},
	}, nil
}

// GenerateKeypair implements Instance with an ML-KEM-768 keypair.
func (l *LocalInstance) GenerateKeypair() (Keypair, error) {
	return GenerateKeypair(l.rand)
}

// GenerateKeypair creates an ML-KEM-768 keypair from r (crypto/rand when nil).
func GenerateKeypair(r io.Reader) (Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := mlkem768.GenerateKeyPair(r)
	if err != nil {
		return Keypair{}, veilerr.WithCause(veilerr.ErrInstanceCreation, fmt.Errorf("generating keypair: %w", err))
	}

	// MarshalBinary never fails for keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return Keypair{
		PublicKey:  hexPrefix + hex.EncodeToString(pubBytes),
		PrivateKey: hexPrefix + hex.EncodeToString(privBytes),
	}, nil
}

// ValidateKeypair implements KeypairValidator.
func (l *LocalInstance) ValidateKeypair(kp Keypair) error {
	return ValidateKeypair(kp)
}

// ValidateKeypair checks that kp holds a matching ML-KEM-768 keypair.
func ValidateKeypair(kp Keypair) error {
	pub, err := decodeHex(kp.PublicKey)
	if err != nil || len(pub) != mlkem768.PublicKeySize {
		return veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"field": "publicKey"})
	}
	priv, err := decodeHex(kp.PrivateKey)
	if err != nil || len(priv) != mlkem768.PrivateKeySize {
		return veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"field": "privateKey"})
	}

	var sk mlkem768.PrivateKey
	if err := sk.Unpack(priv); err != nil {
		return veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"field": "privateKey"})
	}
	if !bytes.Equal(priv[publicKeyOffset:publicKeyOffset+mlkem768.PublicKeySize], pub) {
		return veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{"keypair": "public key does not match private key"})
	}
	return nil
}

func normalizeHex(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, hexPrefix) {
		s = hexPrefix + s
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, hexPrefix))
}
