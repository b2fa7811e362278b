// Package validate checks user supplied addresses, ciphertext handles, and
// plaintext values before they reach the relayer.
package validate

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

const (
	addressLength = 42 // 0x + 40 hex chars
	handleLength  = 66 // 0x + 64 hex chars
)

// IsAddress reports whether s is 0x followed by exactly 40 hex characters.
// Checksum casing is not inspected.
func IsAddress(s string) bool {
	return len(s) == addressLength && strings.HasPrefix(s, "0x") && isHex(s[2:])
}

// Address validates the format and, for mixed-case input, the EIP-55 checksum.
// All-lowercase and all-uppercase addresses are accepted as non-checksummed.
func Address(address string) error {
	if address == "" {
		return veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "address"})
	}
	if !IsAddress(address) {
		return veilerr.WithDetails(veilerr.ErrInvalidAddress, map[string]string{"address": address})
	}

	body := address[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}

	if expected := ChecksumAddress(address); address != expected {
		return veilerr.WithDetails(veilerr.ErrInvalidChecksum, map[string]string{
			"expected": expected,
			"actual":   address,
		})
	}
	return nil
}

// ChecksumAddress converts an address to EIP-55 checksum format.
// Invalid input is returned unchanged.
func ChecksumAddress(address string) string {
	if !IsAddress(address) {
		return address
	}

	addr := strings.ToLower(address[2:])

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(addr))
	hash := hex.EncodeToString(hasher.Sum(nil))

	out := []byte("0x" + addr)
	for i := range 40 {
		c := addr[i]
		if hash[i] >= '8' && c >= 'a' && c <= 'f' {
			out[i+2] = c - ('a' - 'A')
		}
	}
	return string(out)
}

// Addresses validates a non-empty list of contract addresses.
func Addresses(addresses []string) error {
	if len(addresses) == 0 {
		return veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "contractAddresses"})
	}
	for _, a := range addresses {
		if err := Address(a); err != nil {
			return err
		}
	}
	return nil
}

// Handle validates a ciphertext handle: 0x followed by 64 hex characters.
func Handle(handle string) error {
	if handle == "" {
		return veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "handle"})
	}
	if len(handle) != handleLength || !strings.HasPrefix(handle, "0x") || !isHex(handle[2:]) {
		return veilerr.WithDetails(veilerr.ErrInvalidHandle, map[string]string{"handle": handle})
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
