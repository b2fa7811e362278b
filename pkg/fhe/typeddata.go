package fhe

import (
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// HashTypedData returns the EIP-712 digest of td. td.Types may omit
// EIP712Domain, as wallets receive it; the domain type is then derived from
// the populated fields of td.Domain.
func HashTypedData(td apitypes.TypedData) ([]byte, error) {
	td.Types = WithDomainType(td.Types, td.Domain)
	hash, _, err := apitypes.TypedDataAndHash(td)
	return hash, err
}

// WithDomainType returns a copy of types with an EIP712Domain entry matching
// the populated fields of domain. An existing entry is kept.
func WithDomainType(types apitypes.Types, domain apitypes.TypedDataDomain) apitypes.Types {
	out := make(apitypes.Types, len(types)+1)
	for k, v := range types {
		out[k] = v
	}
	if _, ok := out[DomainTypeName]; ok {
		return out
	}

	var fields []apitypes.Type
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	out[DomainTypeName] = fields
	return out
}
