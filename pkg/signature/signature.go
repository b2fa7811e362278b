// Package signature manages decryption signatures: time-bounded, wallet-signed
// authorizations that let the relayer decrypt ciphertext handles for a user and
// a set of contracts.
//
// A signature is created once by asking the user's wallet to sign an EIP-712
// payload, then cached in a storage backend and reused until it expires, so the
// wallet is not prompted on every decryption.
package signature

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/wallet"
)

const (
	// DefaultDurationDays is how long a new signature stays valid.
	DefaultDurationDays = 365

	secondsPerDay = 86400
	hexPrefix     = "0x"
)

var (
	errNilCandidate = errors.New("nil candidate")
	errNotObject    = errors.New("not a JSON object")
	errTrailingData = errors.New("trailing data after JSON object")
)

// Serialized is the persisted form of a DecryptionSignature. Its JSON encoding
// is the cache entry format.
type Serialized struct {
	PublicKey         string             `json:"publicKey"`
	PrivateKey        string             `json:"privateKey"`
	Signature         string             `json:"signature"`
	StartTimestamp    int64              `json:"startTimestamp"`
	DurationDays      int                `json:"durationDays"`
	UserAddress       string             `json:"userAddress"`
	ContractAddresses []string           `json:"contractAddresses"`
	EIP712            apitypes.TypedData `json:"eip712"`
}

// DecryptionSignature is an immutable decryption authorization.
type DecryptionSignature struct {
	publicKey         string
	privateKey        string
	signature         string
	startTimestamp    int64
	durationDays      int
	userAddress       string
	contractAddresses []string
	eip712            apitypes.TypedData
}

func fromSerialized(s Serialized) *DecryptionSignature {
	return &DecryptionSignature{
		publicKey:         s.PublicKey,
		privateKey:        s.PrivateKey,
		signature:         s.Signature,
		startTimestamp:    s.StartTimestamp,
		durationDays:      s.DurationDays,
		userAddress:       s.UserAddress,
		contractAddresses: append([]string(nil), s.ContractAddresses...),
		eip712:            s.EIP712,
	}
}

// PublicKey returns the ephemeral decryption public key.
func (d *DecryptionSignature) PublicKey() string { return d.publicKey }

// PrivateKey returns the ephemeral decryption private key.
func (d *DecryptionSignature) PrivateKey() string { return d.privateKey }

// Signature returns the wallet's EIP-712 signature.
func (d *DecryptionSignature) Signature() string { return d.signature }

// StartTimestamp returns the Unix second validity begins.
func (d *DecryptionSignature) StartTimestamp() int64 { return d.startTimestamp }

// DurationDays returns the validity length in days.
func (d *DecryptionSignature) DurationDays() int { return d.durationDays }

// UserAddress returns the signing account.
func (d *DecryptionSignature) UserAddress() string { return d.userAddress }

// ContractAddresses returns a copy of the authorized contracts.
func (d *DecryptionSignature) ContractAddresses() []string {
	return append([]string(nil), d.contractAddresses...)
}

// EIP712 returns the typed data that was signed.
func (d *DecryptionSignature) EIP712() apitypes.TypedData { return d.eip712 }

// ToJSON returns the serialized form. FromJSON(d.ToJSON()) reproduces d.
func (d *DecryptionSignature) ToJSON() Serialized {
	return Serialized{
		PublicKey:         d.publicKey,
		PrivateKey:        d.privateKey,
		Signature:         d.signature,
		StartTimestamp:    d.startTimestamp,
		DurationDays:      d.durationDays,
		UserAddress:       d.userAddress,
		ContractAddresses: d.ContractAddresses(),
		EIP712:            d.eip712,
	}
}

// MarshalJSON encodes the serialized form.
func (d *DecryptionSignature) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToJSON())
}

// Equals reports whether other serializes to the same content as d.
func (d *DecryptionSignature) Equals(other Serialized) bool {
	a, err := json.Marshal(d.ToJSON())
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// IsValid reports whether the signature is valid now.
func (d *DecryptionSignature) IsValid() bool {
	return d.IsValidAt(time.Now().Unix())
}

// IsValidAt reports whether now (Unix seconds) falls in
// [startTimestamp, startTimestamp + durationDays*86400).
func (d *DecryptionSignature) IsValidAt(now int64) bool {
	return now >= d.startTimestamp && now < d.expiresAtUnix()
}

// ExpiresAt returns the first instant the signature is no longer valid.
func (d *DecryptionSignature) ExpiresAt() time.Time {
	return time.Unix(d.expiresAtUnix(), 0).UTC()
}

// TTL returns the remaining validity at now, or 0 once expired.
func (d *DecryptionSignature) TTL(now time.Time) time.Duration {
	remaining := d.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (d *DecryptionSignature) expiresAtUnix() int64 {
	return d.startTimestamp + int64(d.durationDays)*secondsPerDay
}

// Verify recovers the signer of the retained typed data and checks it is the
// user address, and that the payload binds this signature's public key.
func (d *DecryptionSignature) Verify() error {
	signer, err := wallet.RecoverTypedDataSigner(d.eip712, d.signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer, d.userAddress) {
		return veilerr.WithDetails(veilerr.ErrInvalidSignatureFormat, map[string]string{
			"expected": d.userAddress,
			"signer":   signer,
		})
	}
	if pk, ok := d.eip712.Message["publicKey"].(string); ok && !strings.EqualFold(pk, d.publicKey) {
		return veilerr.WithDetails(veilerr.ErrInvalidSignatureFormat, map[string]string{
			"publicKey": "typed data does not bind this public key",
		})
	}
	return nil
}

// CheckIs reports whether candidate is a well-formed signature record. It
// accepts a Serialized value, a map decoded from JSON, or JSON text (string or
// []byte). It never fails; anything it cannot inspect is reported as false.
//
// Required: non-empty publicKey, privateKey and signature strings; integer
// startTimestamp and durationDays; a non-empty contractAddresses array of
// 0x-prefixed strings; a 0x-prefixed userAddress; and an eip712 object with
// domain, primaryType, message and types.
func CheckIs(candidate any) bool {
	raw, err := toRaw(candidate)
	if err != nil {
		return false
	}
	m, err := decodeObject(raw)
	if err != nil {
		return false
	}
	return checkObject(m)
}

// FromJSON builds a signature from a Serialized value, a JSON-decoded map, or
// JSON text. Candidates failing CheckIs are rejected with
// INVALID_SIGNATURE_FORMAT.
func FromJSON(candidate any) (*DecryptionSignature, error) {
	raw, err := toRaw(candidate)
	if err != nil {
		return nil, veilerr.WithCause(veilerr.ErrInvalidSignatureFormat, err)
	}
	m, err := decodeObject(raw)
	if err != nil {
		return nil, veilerr.WithCause(veilerr.ErrInvalidSignatureFormat, err)
	}
	if !checkObject(m) {
		return nil, veilerr.ErrInvalidSignatureFormat
	}

	var s Serialized
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, veilerr.WithCause(veilerr.ErrInvalidSignatureFormat, err)
	}
	return fromSerialized(s), nil
}

func toRaw(candidate any) ([]byte, error) {
	switch v := candidate.(type) {
	case nil:
		return nil, errNilCandidate
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case *DecryptionSignature:
		if v == nil {
			return nil, errNilCandidate
		}
		return json.Marshal(v.ToJSON())
	default:
		return json.Marshal(v)
	}
}

// decodeObject decodes raw into a generic object, keeping numbers exact.
func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return m, nil
}

func checkObject(m map[string]any) bool {
	for _, field := range []string{"publicKey", "privateKey", "signature"} {
		if s, ok := m[field].(string); !ok || s == "" {
			return false
		}
	}

	for _, field := range []string{"startTimestamp", "durationDays"} {
		if !isInteger(m[field]) {
			return false
		}
	}

	if !isPrefixedString(m["userAddress"]) {
		return false
	}

	contracts, ok := m["contractAddresses"].([]any)
	if !ok || len(contracts) == 0 {
		return false
	}
	for _, c := range contracts {
		if !isPrefixedString(c) {
			return false
		}
	}

	typed, ok := m["eip712"].(map[string]any)
	if !ok {
		return false
	}
	if _, ok := typed["domain"].(map[string]any); !ok {
		return false
	}
	if _, ok := typed["primaryType"].(string); !ok {
		return false
	}
	if _, ok := typed["message"].(map[string]any); !ok {
		return false
	}
	if _, ok := typed["types"].(map[string]any); !ok {
		return false
	}
	return true
}

func isInteger(v any) bool {
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	_, err := strconv.ParseInt(n.String(), 10, 64)
	return err == nil
}

func isPrefixedString(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, hexPrefix)
}
