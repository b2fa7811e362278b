package validate

import (
	"fmt"
	"math/big"
	"strings"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// EncryptedType names the plaintext type of a value to be encrypted.
type EncryptedType string

// Supported encrypted types.
const (
	TypeBool    EncryptedType = "bool"
	TypeUint8   EncryptedType = "uint8"
	TypeUint16  EncryptedType = "uint16"
	TypeUint32  EncryptedType = "uint32"
	TypeUint64  EncryptedType = "uint64"
	TypeUint128 EncryptedType = "uint128"
	TypeUint256 EncryptedType = "uint256"
	TypeAddress EncryptedType = "address"
)

//nolint:gochecknoglobals // Lookup table
var uintBits = map[EncryptedType]uint{
	TypeUint8:   8,
	TypeUint16:  16,
	TypeUint32:  32,
	TypeUint64:  64,
	TypeUint128: 128,
	TypeUint256: 256,
}

// ParseEncryptedType parses a type name such as "uint32" (case-insensitive).
func ParseEncryptedType(s string) (EncryptedType, error) {
	t := EncryptedType(strings.ToLower(strings.TrimSpace(s)))
	if t == TypeBool || t == TypeAddress {
		return t, nil
	}
	if _, ok := uintBits[t]; ok {
		return t, nil
	}
	return "", veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"type": s})
}

// EncryptionValue checks that value fits the encrypted type.
//
// bool accepts a Go bool. Unsigned types accept any Go integer, *big.Int, or a
// decimal/0x-hex string, and reject negatives and values wider than the type.
// address accepts an address string.
func EncryptionValue(t EncryptedType, value any) error {
	if value == nil {
		return veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "value"})
	}

	switch t {
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return invalidValue(t, value)
		}
		return nil

	case TypeAddress:
		s, ok := value.(string)
		if !ok {
			return invalidValue(t, value)
		}
		return Address(s)
	}

	bits, ok := uintBits[t]
	if !ok {
		return veilerr.WithDetails(veilerr.ErrInvalidType, map[string]string{"type": string(t)})
	}

	n, ok := toBigInt(value)
	if !ok || n.Sign() < 0 || uint(n.BitLen()) > bits {
		return invalidValue(t, value)
	}
	return nil
}

// ToBigInt converts an unsigned value accepted by EncryptionValue to *big.Int.
func ToBigInt(value any) (*big.Int, bool) {
	return toBigInt(value)
}

func toBigInt(value any) (*big.Int, bool) {
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v)), true
	case int8:
		return big.NewInt(int64(v)), true
	case int16:
		return big.NewInt(int64(v)), true
	case int32:
		return big.NewInt(int64(v)), true
	case int64:
		return big.NewInt(v), true
	case uint:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false
		}
		// Base 0 accepts 0x prefixes and underscores.
		return new(big.Int).SetString(s, 0)
	default:
		return nil, false
	}
}

func invalidValue(t EncryptedType, value any) error {
	return veilerr.WithDetails(veilerr.ErrInvalidEncryptionValue, map[string]string{
		"type":  string(t),
		"value": fmt.Sprint(value),
	})
}
